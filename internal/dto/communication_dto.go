package dto

import (
	"time"

	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/realtime"
)

// Scope addresses a channel or a direct conversation.
type Scope struct {
	Type string `json:"type" validate:"required,oneof=channel conversation"`
	ID   uint   `json:"id" validate:"required"`
}

// ChannelScope builds a channel scope.
func ChannelScope(id uint) Scope {
	return Scope{Type: models.ScopeChannel, ID: id}
}

// ConversationScope builds a conversation scope.
func ConversationScope(id uint) Scope {
	return Scope{Type: models.ScopeConversation, ID: id}
}

// Room returns the broadcast room of the scope.
func (s Scope) Room() realtime.RoomKey {
	if s.Type == models.ScopeConversation {
		return realtime.ConversationRoom(s.ID)
	}
	return realtime.ChannelRoom(s.ID)
}

// ProfileResponse is the public view of a profile.
type ProfileResponse struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"image_url,omitempty"`
}

// NewProfileResponse converts a profile model into a DTO.
func NewProfileResponse(profile models.Profile) ProfileResponse {
	return ProfileResponse{
		ID:       profile.ID,
		Name:     profile.Name,
		ImageURL: profile.ImageURL,
	}
}

// NewProfileResponseSlice converts profiles into DTOs.
func NewProfileResponseSlice(items []models.Profile) []ProfileResponse {
	out := make([]ProfileResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewProfileResponse(item))
	}
	return out
}

// MemberResponse is a member with its profile.
type MemberResponse struct {
	ID       uint            `json:"id"`
	Role     string          `json:"role"`
	ServerID uint            `json:"server_id"`
	Profile  ProfileResponse `json:"profile"`
}

// NewMemberResponse converts a member model into a DTO.
func NewMemberResponse(member models.Member) MemberResponse {
	return MemberResponse{
		ID:       member.ID,
		Role:     member.Role,
		ServerID: member.ServerID,
		Profile:  NewProfileResponse(member.Profile),
	}
}

// NewMemberResponseSlice converts members into DTOs.
func NewMemberResponseSlice(items []models.Member) []MemberResponse {
	out := make([]MemberResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewMemberResponse(item))
	}
	return out
}

// MessageCreateRequest is the payload to post a message or a reply. Content
// length is bounded by the configured message.max_length.
type MessageCreateRequest struct {
	Content   string `json:"content" validate:"required"`
	FileURL   string `json:"file_url" validate:"omitempty,url,max=512"`
	ReplyToID *uint  `json:"reply_to_id" validate:"omitempty,min=1"`
}

// MessageUpdateRequest is the payload to edit a message.
type MessageUpdateRequest struct {
	Content string `json:"content" validate:"required"`
}

// MessageHistoryQuery pages backwards through a scope's messages.
type MessageHistoryQuery struct {
	Before uint `query:"before"`
	Limit  int  `query:"limit" validate:"omitempty,min=1,max=100"`
}

// MessageReference summarises the parent of a reply.
type MessageReference struct {
	ID       uint            `json:"id"`
	MemberID uint            `json:"member_id"`
	Author   ProfileResponse `json:"author"`
	Content  string          `json:"content"`
	Deleted  bool            `json:"deleted"`
}

// MessageResponse is the serialized representation of a message.
type MessageResponse struct {
	ID             uint                `json:"id"`
	ScopeType      string              `json:"scope_type"`
	ScopeID        uint                `json:"scope_id"`
	ChannelID      *uint               `json:"channel_id,omitempty"`
	ConversationID *uint               `json:"conversation_id,omitempty"`
	Member         MemberResponse      `json:"member"`
	Content        string              `json:"content"`
	FileURL        string              `json:"file_url,omitempty"`
	ReplyToID      *uint               `json:"reply_to_id,omitempty"`
	ReplyTo        *MessageReference   `json:"reply_to,omitempty"`
	Deleted        bool                `json:"deleted"`
	Reactions      []ReactionAggregate `json:"reactions,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// NewMessageResponse converts a message model into a DTO.
func NewMessageResponse(message models.Message) MessageResponse {
	response := MessageResponse{
		ID:             message.ID,
		ScopeType:      message.ScopeType(),
		ScopeID:        message.ScopeID(),
		ChannelID:      message.ChannelID,
		ConversationID: message.ConversationID,
		Member:         NewMemberResponse(message.Member),
		Content:        message.Content,
		FileURL:        message.FileURL,
		ReplyToID:      message.ReplyToID,
		Deleted:        message.Deleted,
		CreatedAt:      message.CreatedAt,
		UpdatedAt:      message.UpdatedAt,
	}
	if message.ReplyTo != nil {
		response.ReplyTo = &MessageReference{
			ID:       message.ReplyTo.ID,
			MemberID: message.ReplyTo.MemberID,
			Author:   NewProfileResponse(message.ReplyTo.Member.Profile),
			Content:  message.ReplyTo.Content,
			Deleted:  message.ReplyTo.Deleted,
		}
	}
	return response
}

// ReactionRequest carries the emoji to add.
type ReactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=64"`
}

// ReactionAggregate is the grouped view of every reactor row for one emoji.
type ReactionAggregate struct {
	Emoji    string            `json:"emoji"`
	Count    int               `json:"count"`
	Reactors []ProfileResponse `json:"reactors"`
}

// ReactionSnapshot is the authoritative reaction state of a message; it is
// the payload of reaction:update.
type ReactionSnapshot struct {
	MessageID  uint                `json:"message_id"`
	Aggregates []ReactionAggregate `json:"aggregates"`
}

// NotifyRequest describes one fanout: every recipient gets the same text.
type NotifyRequest struct {
	SourceProfileID uint   `validate:"required"`
	Scope           Scope  `validate:"required"`
	Kind            string `validate:"required,oneof=message reply mention notice"`
	Message         string `validate:"required,max=2000"`
	MessageID       uint
	RecipientIDs    []uint
}

// NoticeRequest is a system notice sent by a moderator to everyone in a scope.
type NoticeRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// NotifyResult reports how a fanout went per recipient.
type NotifyResult struct {
	Created int    `json:"created"`
	Failed  []uint `json:"failed,omitempty"`
}

// NotificationResponse represents notification data returned to clients.
type NotificationResponse struct {
	ID        uint                   `json:"id"`
	ProfileID uint                   `json:"profile_id"`
	ScopeType string                 `json:"scope_type"`
	ScopeID   uint                   `json:"scope_id"`
	ChannelID *uint                  `json:"channel_id,omitempty"`
	Kind      string                 `json:"kind"`
	Message   string                 `json:"message"`
	Read      bool                   `json:"read"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationResponse converts a notification model to DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	response := NotificationResponse{
		ID:        model.ID,
		ProfileID: model.ProfileID,
		ScopeType: model.ScopeType,
		ScopeID:   model.ScopeID,
		Kind:      model.Kind,
		Message:   model.Message,
		Read:      model.Read,
		CreatedAt: model.CreatedAt,
	}
	if model.ScopeType == models.ScopeChannel {
		channelID := model.ScopeID
		response.ChannelID = &channelID
	}
	if len(model.Metadata) > 0 {
		response.Metadata = map[string]interface{}(model.Metadata)
	}
	return response
}

// NewNotificationResponseSlice converts a slice to DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewNotificationResponse(item))
	}
	return out
}

// MarkReadResponse reports how many notifications were flipped to read.
type MarkReadResponse struct {
	ScopeType string `json:"scope_type"`
	ScopeID   uint   `json:"scope_id"`
	Updated   int64  `json:"updated"`
}

// UnreadCountResponse carries the unread badge for one scope.
type UnreadCountResponse struct {
	ScopeType   string `json:"scope_type"`
	ScopeID     uint   `json:"scope_id"`
	UnreadCount int64  `json:"unread_count"`
}

// ConversationCreateRequest opens (or reuses) a direct conversation with a member.
type ConversationCreateRequest struct {
	ServerID uint `json:"server_id" validate:"required"`
	MemberID uint `json:"member_id" validate:"required"`
}

// ConversationResponse describes a direct conversation.
type ConversationResponse struct {
	ID        uint           `json:"id"`
	MemberOne MemberResponse `json:"member_one"`
	MemberTwo MemberResponse `json:"member_two"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewConversationResponse converts a conversation model to DTO.
func NewConversationResponse(model models.Conversation) ConversationResponse {
	return ConversationResponse{
		ID:        model.ID,
		MemberOne: NewMemberResponse(model.MemberOne),
		MemberTwo: NewMemberResponse(model.MemberTwo),
		CreatedAt: model.CreatedAt,
	}
}

// MemberSearchQuery looks up members of one scope by partial name.
type MemberSearchQuery struct {
	Query string `query:"q" validate:"required,min=1,max=64"`
	Limit int    `query:"limit" validate:"omitempty,min=1,max=50"`
}
