package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/models"
)

// NotificationRepository handles persistence for notification entities.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uint, profileID uint) (models.Notification, error)
	MarkScopeRead(ctx context.Context, profileID uint, scopeType string, scopeID uint) (int64, error)
	CountUnread(ctx context.Context, profileID uint, scopeType string, scopeID uint) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository constructs a repository backed by GORM.
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) ListByProfile(ctx context.Context, profileID uint, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var notifications []models.Notification
	if err := r.db.WithContext(ctx).
		Where("profile_id = ?", profileID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&notifications).Error; err != nil {
		return nil, err
	}

	return notifications, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, id uint, profileID uint) (models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND profile_id = ?", id, profileID).First(&notification).Error; err != nil {
		return models.Notification{}, err
	}

	if notification.Read {
		return notification, nil
	}

	if err := r.db.WithContext(ctx).
		Model(&notification).
		Where("read = ?", false).
		Update("read", true).Error; err != nil {
		return models.Notification{}, err
	}
	notification.Read = true

	return notification, nil
}

// MarkScopeRead flips every unread notification of the profile in the scope
// with a single UPDATE and returns the number of rows changed.
func (r *notificationRepository) MarkScopeRead(ctx context.Context, profileID uint, scopeType string, scopeID uint) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("profile_id = ? AND scope_type = ? AND scope_id = ? AND read = ?", profileID, scopeType, scopeID, false).
		Update("read", true)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *notificationRepository) CountUnread(ctx context.Context, profileID uint, scopeType string, scopeID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("profile_id = ? AND scope_type = ? AND scope_id = ? AND read = ?", profileID, scopeType, scopeID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
