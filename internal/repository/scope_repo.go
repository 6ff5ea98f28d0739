package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-chat/internal/models"
)

// ScopeRepository reads the channels, conversations and memberships that
// decide who may post into and receive from a scope.
type ScopeRepository interface {
	FindChannel(ctx context.Context, id uint) (models.Channel, error)
	FindConversation(ctx context.Context, id uint) (models.Conversation, error)
	FindMember(ctx context.Context, id uint) (models.Member, error)
	FindMemberByProfile(ctx context.Context, serverID, profileID uint) (models.Member, error)
	ListServerMembers(ctx context.Context, serverID uint) ([]models.Member, error)
	SearchServerMembers(ctx context.Context, serverID uint, query string, limit int) ([]models.Member, error)
	FindConversationBetween(ctx context.Context, memberA, memberB uint) (models.Conversation, error)
	CreateConversation(ctx context.Context, conversation *models.Conversation) error
}

type scopeRepository struct {
	db *gorm.DB
}

// NewScopeRepository constructs a scope repository backed by GORM.
func NewScopeRepository(db *gorm.DB) ScopeRepository {
	return &scopeRepository{db: db}
}

func (r *scopeRepository) FindChannel(ctx context.Context, id uint) (models.Channel, error) {
	var channel models.Channel
	if err := r.db.WithContext(ctx).First(&channel, id).Error; err != nil {
		return models.Channel{}, err
	}
	return channel, nil
}

func (r *scopeRepository) FindConversation(ctx context.Context, id uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("MemberOne.Profile").
		Preload("MemberTwo.Profile").
		First(&conversation, id).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

func (r *scopeRepository) FindMember(ctx context.Context, id uint) (models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Preload("Profile").First(&member, id).Error; err != nil {
		return models.Member{}, err
	}
	return member, nil
}

func (r *scopeRepository) FindMemberByProfile(ctx context.Context, serverID, profileID uint) (models.Member, error) {
	var member models.Member
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("server_id = ? AND profile_id = ?", serverID, profileID).
		First(&member).Error
	if err != nil {
		return models.Member{}, err
	}
	return member, nil
}

func (r *scopeRepository) ListServerMembers(ctx context.Context, serverID uint) ([]models.Member, error) {
	var members []models.Member
	err := r.db.WithContext(ctx).
		Preload("Profile").
		Where("server_id = ?", serverID).
		Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *scopeRepository) SearchServerMembers(ctx context.Context, serverID uint, query string, limit int) ([]models.Member, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(query))) + "%"

	var members []models.Member
	err := r.db.WithContext(ctx).
		Joins("Profile").
		Where("members.server_id = ?", serverID).
		Where(`LOWER("Profile"."name") LIKE ? ESCAPE '\'`, pattern).
		Order(`"Profile"."name" ASC`).
		Limit(limit).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *scopeRepository) FindConversationBetween(ctx context.Context, memberA, memberB uint) (models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Preload("MemberOne.Profile").
		Preload("MemberTwo.Profile").
		Where("(member_one_id = ? AND member_two_id = ?) OR (member_one_id = ? AND member_two_id = ?)", memberA, memberB, memberB, memberA).
		First(&conversation).Error
	if err != nil {
		return models.Conversation{}, err
	}
	return conversation, nil
}

// CreateConversation inserts the conversation unless the same ordered pair
// already exists; either way the stored row is loaded back into conversation.
func (r *scopeRepository) CreateConversation(ctx context.Context, conversation *models.Conversation) error {
	err := r.db.WithContext(ctx).
		Omit("MemberOne", "MemberTwo").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(conversation).Error
	if err != nil {
		return err
	}

	stored, err := r.FindConversationBetween(ctx, conversation.MemberOneID, conversation.MemberTwoID)
	if err != nil {
		return err
	}
	*conversation = stored
	return nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
