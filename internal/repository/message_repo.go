package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/models"
)

// MessageRepository persists chat messages for channels and conversations.
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id uint) (models.Message, error)
	Update(ctx context.Context, message *models.Message) error
	ListByScope(ctx context.Context, scopeType string, scopeID uint, before uint, limit int) ([]models.Message, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.db.WithContext(ctx).Omit("Member", "ReplyTo").Create(message).Error; err != nil {
		return err
	}

	loaded, err := r.FindByID(ctx, message.ID)
	if err != nil {
		return err
	}
	*message = loaded
	return nil
}

func (r *messageRepository) FindByID(ctx context.Context, id uint) (models.Message, error) {
	var message models.Message
	err := r.withAuthors(r.db.WithContext(ctx)).First(&message, id).Error
	if err != nil {
		return models.Message{}, err
	}
	return message, nil
}

func (r *messageRepository) Update(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).
		Model(&models.Message{ID: message.ID}).
		Select("Content", "FileURL", "Deleted", "UpdatedAt").
		Updates(message).Error
}

func (r *messageRepository) ListByScope(ctx context.Context, scopeType string, scopeID uint, before uint, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.withAuthors(r.db.WithContext(ctx))
	switch scopeType {
	case models.ScopeConversation:
		query = query.Where("conversation_id = ?", scopeID)
	default:
		query = query.Where("channel_id = ?", scopeID)
	}
	if before > 0 {
		query = query.Where("id < ?", before)
	}

	var messages []models.Message
	if err := query.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	// Reverse to chronological order ascending for clients.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *messageRepository) withAuthors(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Member.Profile").
		Preload("ReplyTo.Member.Profile")
}
