package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// MemberService looks up members inside one scope, for mention pickers.
type MemberService interface {
	Search(ctx context.Context, profileID uint, scope dto.Scope, query dto.MemberSearchQuery) ([]dto.MemberResponse, error)
}

type memberService struct {
	repo      repository.ScopeRepository
	scopes    scopeResolver
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewMemberService constructs a member lookup service.
func NewMemberService(repo repository.ScopeRepository, validate *validator.Validate, logger zerolog.Logger) MemberService {
	return &memberService{
		repo:      repo,
		scopes:    scopeResolver{repo: repo},
		validator: validate,
		logger:    logger.With().Str("component", "member_service").Logger(),
	}
}

// Search returns members of the scope whose name contains the query. Only
// members of the scope itself are ever returned.
func (s *memberService) Search(ctx context.Context, profileID uint, scope dto.Scope, query dto.MemberSearchQuery) ([]dto.MemberResponse, error) {
	query.Query = strings.TrimSpace(query.Query)
	if err := s.validator.Struct(scope); err != nil {
		return nil, invalid(err)
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, invalid(err)
	}

	resolved, _, err := s.scopes.resolveForMember(ctx, scope, profileID)
	if err != nil {
		return nil, err
	}

	if scope.Type == models.ScopeChannel {
		members, err := s.repo.SearchServerMembers(ctx, resolved.ServerID, query.Query, query.Limit)
		if err != nil {
			return nil, err
		}
		return dto.NewMemberResponseSlice(members), nil
	}

	needle := strings.ToLower(query.Query)
	matches := make([]models.Member, 0, len(resolved.Members))
	for _, member := range resolved.Members {
		if strings.Contains(strings.ToLower(member.Profile.Name), needle) {
			matches = append(matches, member)
		}
	}
	return dto.NewMemberResponseSlice(matches), nil
}
