package service

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// ConversationService opens direct conversations between two members.
type ConversationService interface {
	GetOrCreate(ctx context.Context, profileID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, error)
}

type conversationService struct {
	repo      repository.ScopeRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewConversationService constructs a conversation service.
func NewConversationService(repo repository.ScopeRepository, validate *validator.Validate, logger zerolog.Logger) ConversationService {
	return &conversationService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "conversation_service").Logger(),
	}
}

// GetOrCreate returns the conversation between the caller's membership in the
// server and the target member, creating it when neither ordering exists.
func (s *conversationService) GetOrCreate(ctx context.Context, profileID uint, req dto.ConversationCreateRequest) (dto.ConversationResponse, error) {
	if profileID == 0 {
		return dto.ConversationResponse{}, ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationResponse{}, invalid(err)
	}

	self, err := s.repo.FindMemberByProfile(ctx, req.ServerID, profileID)
	if err != nil {
		return dto.ConversationResponse{}, lookup(err, "server")
	}

	other, err := s.repo.FindMember(ctx, req.MemberID)
	if err != nil {
		return dto.ConversationResponse{}, lookup(err, "member")
	}
	if other.ServerID != self.ServerID {
		return dto.ConversationResponse{}, notFound("member %d not found", req.MemberID)
	}
	if other.ID == self.ID {
		return dto.ConversationResponse{}, badRequest("cannot open a conversation with yourself")
	}

	existing, err := s.repo.FindConversationBetween(ctx, self.ID, other.ID)
	if err == nil {
		return dto.NewConversationResponse(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.ConversationResponse{}, err
	}

	conversation := models.Conversation{MemberOneID: self.ID, MemberTwoID: other.ID}
	if err := s.repo.CreateConversation(ctx, &conversation); err != nil {
		return dto.ConversationResponse{}, err
	}

	s.logger.Info().Uint("conversation_id", conversation.ID).Uint("member_one", self.ID).Uint("member_two", other.ID).Msg("conversation opened")
	return dto.NewConversationResponse(conversation), nil
}
