package models

import "time"

// Reaction is one reactor's emoji on one message. The unique index keeps a
// single row per (message, emoji, reactor); Count above one only appears on
// rows migrated from the old shared-counter layout.
type Reaction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID uint      `gorm:"uniqueIndex:idx_reaction_key,priority:1;not null" json:"message_id"`
	Emoji     string    `gorm:"size:64;uniqueIndex:idx_reaction_key,priority:2;not null" json:"emoji"`
	ProfileID uint      `gorm:"uniqueIndex:idx_reaction_key,priority:3;not null" json:"profile_id"`
	Profile   Profile   `json:"profile"`
	Count     int       `gorm:"not null;default:1" json:"count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
