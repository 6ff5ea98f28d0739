package models

import (
	"time"

	"gorm.io/datatypes"
)

// Scope types a message or notification can belong to.
const (
	ScopeChannel      = "channel"
	ScopeConversation = "conversation"
)

// Notification kinds.
const (
	NotificationKindMessage = "message"
	NotificationKindReply   = "reply"
	NotificationKindMention = "mention"
	NotificationKindNotice  = "notice"
)

// Message is a single chat entry posted into a channel or a direct conversation.
// Exactly one of ChannelID and ConversationID is set.
type Message struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	ChannelID      *uint     `gorm:"index" json:"channel_id,omitempty"`
	ConversationID *uint     `gorm:"index" json:"conversation_id,omitempty"`
	MemberID       uint      `gorm:"index;not null" json:"member_id"`
	Member         Member    `json:"member"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	FileURL        string    `gorm:"size:512" json:"file_url,omitempty"`
	ReplyToID      *uint     `gorm:"index" json:"reply_to_id,omitempty"`
	ReplyTo        *Message  `gorm:"foreignKey:ReplyToID" json:"reply_to,omitempty"`
	Deleted        bool      `gorm:"not null;default:false" json:"deleted"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ScopeType reports whether the message lives in a channel or a conversation.
func (m Message) ScopeType() string {
	if m.ConversationID != nil {
		return ScopeConversation
	}
	return ScopeChannel
}

// ScopeID returns the id of the channel or conversation holding the message.
func (m Message) ScopeID() uint {
	if m.ConversationID != nil {
		return *m.ConversationID
	}
	if m.ChannelID != nil {
		return *m.ChannelID
	}
	return 0
}

// Notification is a per-recipient record produced by message fanout.
type Notification struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	ProfileID uint              `gorm:"index:idx_notification_unread,priority:1;not null" json:"profile_id"`
	ScopeType string            `gorm:"size:16;index:idx_notification_unread,priority:2;not null" json:"scope_type"`
	ScopeID   uint              `gorm:"index:idx_notification_unread,priority:3;not null" json:"scope_id"`
	Kind      string            `gorm:"size:32;not null;default:message" json:"kind"`
	Message   string            `gorm:"type:text" json:"message"`
	Read      bool              `gorm:"index:idx_notification_unread,priority:4;not null;default:false" json:"read"`
	Metadata  datatypes.JSONMap `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}
