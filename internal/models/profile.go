package models

import "time"

// Member roles inside a server.
const (
	MemberRoleAdmin     = "admin"
	MemberRoleModerator = "moderator"
	MemberRoleGuest     = "guest"
)

// Profile is the identity supplied by the authentication provider.
type Profile struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	ImageURL  string    `gorm:"size:512" json:"image_url,omitempty"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Server groups channels and the members allowed to use them.
type Server struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	ProfileID uint      `gorm:"index" json:"profile_id"`
	Members   []Member  `json:"members,omitempty"`
	Channels  []Channel `json:"channels,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member binds a profile to a server with a role.
type Member struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Role      string    `gorm:"size:32;not null;default:guest" json:"role"`
	ProfileID uint      `gorm:"uniqueIndex:idx_member_server_profile,priority:2;not null" json:"profile_id"`
	Profile   Profile   `json:"profile"`
	ServerID  uint      `gorm:"uniqueIndex:idx_member_server_profile,priority:1;not null" json:"server_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanModerate reports whether the member may act on other members' messages.
func (m Member) CanModerate() bool {
	return m.Role == MemberRoleAdmin || m.Role == MemberRoleModerator
}

// Channel is a broadcast scope inside a server; every server member belongs to it.
type Channel struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	ServerID  uint      `gorm:"index;not null" json:"server_id"`
	Server    Server    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Conversation is a direct scope between two members of the same server.
type Conversation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MemberOneID uint      `gorm:"uniqueIndex:idx_conversation_pair,priority:1;not null" json:"member_one_id"`
	MemberOne   Member    `json:"member_one"`
	MemberTwoID uint      `gorm:"uniqueIndex:idx_conversation_pair,priority:2;not null" json:"member_two_id"`
	MemberTwo   Member    `json:"member_two"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// All lists every model owned by the chat core, in migration order.
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Server{},
		&Member{},
		&Channel{},
		&Conversation{},
		&Message{},
		&Reaction{},
		&Notification{},
	}
}
