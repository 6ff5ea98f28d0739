package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat/internal/models"
)

const reactionCASAttempts = 5

// ErrReactionContended is returned when a reactor row kept changing underneath
// a compare-and-swap for every attempt.
var ErrReactionContended = errors.New("reaction row contended")

// ReactionRepository stores one row per (message, emoji, reactor).
//
// Every mutation is keyed by the full triple; no method touches rows of a
// different reactor.
type ReactionRepository interface {
	Add(ctx context.Context, messageID, profileID uint, emoji string) (bool, error)
	Remove(ctx context.Context, messageID, profileID uint, emoji string) error
	ListByMessage(ctx context.Context, messageID uint) ([]models.Reaction, error)
	ListByMessages(ctx context.Context, messageIDs []uint) ([]models.Reaction, error)
	ListReactors(ctx context.Context, messageID uint, emoji string) ([]models.Profile, error)
}

type reactionRepository struct {
	db *gorm.DB
}

// NewReactionRepository constructs a reaction repository backed by GORM.
func NewReactionRepository(db *gorm.DB) ReactionRepository {
	return &reactionRepository{db: db}
}

// Add inserts the reactor's row. It reports false when the row already
// existed, including when a concurrent identical insert won the race.
func (r *reactionRepository) Add(ctx context.Context, messageID, profileID uint, emoji string) (bool, error) {
	row := models.Reaction{
		MessageID: messageID,
		ProfileID: profileID,
		Emoji:     emoji,
		Count:     1,
	}

	result := r.db.WithContext(ctx).
		Omit("Profile").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}, {Name: "emoji"}, {Name: "profile_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// Remove deletes the reactor's row, or decrements a legacy row holding more
// than one count. gorm.ErrRecordNotFound is returned when the reactor holds no
// row for the emoji.
func (r *reactionRepository) Remove(ctx context.Context, messageID, profileID uint, emoji string) error {
	for attempt := 0; attempt < reactionCASAttempts; attempt++ {
		done, err := r.removeOnce(ctx, messageID, profileID, emoji)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return ErrReactionContended
}

func (r *reactionRepository) removeOnce(ctx context.Context, messageID, profileID uint, emoji string) (bool, error) {
	done := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Reaction
		if err := tx.
			Where("message_id = ? AND emoji = ? AND profile_id = ?", messageID, emoji, profileID).
			First(&row).Error; err != nil {
			return err
		}

		var result *gorm.DB
		if row.Count > 1 {
			result = tx.Model(&models.Reaction{}).
				Where("id = ? AND count = ?", row.ID, row.Count).
				Update("count", row.Count-1)
		} else {
			result = tx.
				Where("id = ? AND count = ?", row.ID, row.Count).
				Delete(&models.Reaction{})
		}
		if result.Error != nil {
			return result.Error
		}

		done = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return done, nil
}

func (r *reactionRepository) ListByMessage(ctx context.Context, messageID uint) ([]models.Reaction, error) {
	return r.ListByMessages(ctx, []uint{messageID})
}

func (r *reactionRepository) ListByMessages(ctx context.Context, messageIDs []uint) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return []models.Reaction{}, nil
	}

	var reactions []models.Reaction
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&reactions).Error
	if err != nil {
		return nil, err
	}
	return reactions, nil
}

func (r *reactionRepository) ListReactors(ctx context.Context, messageID uint, emoji string) ([]models.Profile, error) {
	var profiles []models.Profile
	err := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Joins("JOIN reactions ON reactions.profile_id = profiles.id").
		Where("reactions.message_id = ? AND reactions.emoji = ?", messageID, emoji).
		Order("reactions.created_at ASC").
		Order("reactions.id ASC").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}
