package dto

import "time"

// Client frame actions accepted on the realtime socket.
const (
	FrameActionJoin  = "join"
	FrameActionLeave = "leave"
	FrameActionPing  = "ping"
)

// ClientFrame is a command sent by a client over its socket.
type ClientFrame struct {
	Action string `json:"action" validate:"required,oneof=join leave ping"`
	Scope  string `json:"scope" validate:"omitempty,oneof=channel conversation"`
	ID     uint   `json:"id"`
}

// SessionReady is sent once a connection has been admitted.
type SessionReady struct {
	ConnectionID string   `json:"connection_id"`
	ProfileID    uint     `json:"profile_id"`
	Rooms        []string `json:"rooms"`
}

// RoomAck confirms a join or leave.
type RoomAck struct {
	Room string `json:"room"`
}

// ErrorFrame reports a rejected client frame.
type ErrorFrame struct {
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}

// NotificationEvent is the payload of notification:new.
type NotificationEvent struct {
	ID        uint      `json:"id"`
	ScopeType string    `json:"scope_type"`
	ScopeID   uint      `json:"scope_id"`
	ChannelID *uint     `json:"channel_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	MessageID *uint     `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
