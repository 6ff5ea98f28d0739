package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// ReactionService mutates per-reactor reaction rows and republishes the
// grouped view after every change.
type ReactionService interface {
	Add(ctx context.Context, profileID, messageID uint, req dto.ReactionRequest) (dto.ReactionSnapshot, error)
	Remove(ctx context.Context, profileID, messageID uint, emoji string) (dto.ReactionSnapshot, error)
	Aggregates(ctx context.Context, profileID, messageID uint) (dto.ReactionSnapshot, error)
	ListReactors(ctx context.Context, profileID, messageID uint, emoji string) ([]dto.ProfileResponse, error)
}

type reactionService struct {
	reactions repository.ReactionRepository
	messages  repository.MessageRepository
	scopes    scopeResolver
	publisher realtime.Publisher
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewReactionService constructs the reaction aggregator.
func NewReactionService(
	reactions repository.ReactionRepository,
	messages repository.MessageRepository,
	scopes repository.ScopeRepository,
	publisher realtime.Publisher,
	validate *validator.Validate,
	logger zerolog.Logger,
) ReactionService {
	return &reactionService{
		reactions: reactions,
		messages:  messages,
		scopes:    scopeResolver{repo: scopes},
		publisher: publisher,
		validator: validate,
		logger:    logger.With().Str("component", "reaction_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat/internal/service/reaction"),
	}
}

// Add records the actor's reaction. Reacting twice with the same emoji
// leaves the state unchanged and still returns the current snapshot.
func (s *reactionService) Add(ctx context.Context, profileID, messageID uint, req dto.ReactionRequest) (dto.ReactionSnapshot, error) {
	req.Emoji = strings.TrimSpace(req.Emoji)
	if err := s.validator.Struct(req); err != nil {
		return dto.ReactionSnapshot{}, invalid(err)
	}

	spanCtx, span := s.tracer.Start(ctx, "reactions.add", trace.WithAttributes(
		attribute.Int64("reaction.message_id", int64(messageID)),
		attribute.Int64("reaction.profile_id", int64(profileID)),
	))
	defer span.End()

	scope, err := s.authorize(spanCtx, profileID, messageID)
	if err != nil {
		return dto.ReactionSnapshot{}, err
	}

	created, err := s.reactions.Add(spanCtx, messageID, profileID, req.Emoji)
	if err != nil {
		span.RecordError(err)
		return dto.ReactionSnapshot{}, fmt.Errorf("add reaction: %w", err)
	}

	snapshot, err := s.snapshot(spanCtx, messageID)
	if err != nil {
		return dto.ReactionSnapshot{}, err
	}
	if !created {
		return snapshot, nil
	}

	observability.ChatReactions().WithLabelValues("add").Inc()
	s.publish(spanCtx, scope, snapshot)
	return snapshot, nil
}

// Remove deletes the actor's own reaction. Rows of other reactors are never
// touched; removing a reaction the actor does not hold is ErrNotFound.
func (s *reactionService) Remove(ctx context.Context, profileID, messageID uint, emoji string) (dto.ReactionSnapshot, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return dto.ReactionSnapshot{}, badRequest("emoji is required")
	}

	spanCtx, span := s.tracer.Start(ctx, "reactions.remove", trace.WithAttributes(
		attribute.Int64("reaction.message_id", int64(messageID)),
		attribute.Int64("reaction.profile_id", int64(profileID)),
	))
	defer span.End()

	scope, err := s.authorize(spanCtx, profileID, messageID)
	if err != nil {
		return dto.ReactionSnapshot{}, err
	}

	if err := s.reactions.Remove(spanCtx, messageID, profileID, emoji); err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return dto.ReactionSnapshot{}, notFound("no %s reaction from you on message %d", emoji, messageID)
		case errors.Is(err, repository.ErrReactionContended):
			return dto.ReactionSnapshot{}, fmt.Errorf("%w: %s", ErrConflict, err.Error())
		default:
			span.RecordError(err)
			return dto.ReactionSnapshot{}, fmt.Errorf("remove reaction: %w", err)
		}
	}
	observability.ChatReactions().WithLabelValues("remove").Inc()

	snapshot, err := s.snapshot(spanCtx, messageID)
	if err != nil {
		return dto.ReactionSnapshot{}, err
	}
	s.publish(spanCtx, scope, snapshot)
	return snapshot, nil
}

func (s *reactionService) Aggregates(ctx context.Context, profileID, messageID uint) (dto.ReactionSnapshot, error) {
	if _, err := s.authorize(ctx, profileID, messageID); err != nil {
		return dto.ReactionSnapshot{}, err
	}
	return s.snapshot(ctx, messageID)
}

func (s *reactionService) ListReactors(ctx context.Context, profileID, messageID uint, emoji string) ([]dto.ProfileResponse, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, badRequest("emoji is required")
	}
	if _, err := s.authorize(ctx, profileID, messageID); err != nil {
		return nil, err
	}

	profiles, err := s.reactions.ListReactors(ctx, messageID, emoji)
	if err != nil {
		return nil, err
	}
	return dto.NewProfileResponseSlice(profiles), nil
}

// authorize loads the message and checks the actor belongs to its scope.
func (s *reactionService) authorize(ctx context.Context, profileID, messageID uint) (resolvedScope, error) {
	if profileID == 0 {
		return resolvedScope{}, ErrUnauthorized
	}

	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return resolvedScope{}, lookup(err, "message")
	}

	scope, err := s.scopes.resolve(ctx, scopeOfMessage(message))
	if err != nil {
		return resolvedScope{}, err
	}
	if _, ok := scope.memberFor(profileID); !ok {
		return resolvedScope{}, forbidden("profile %d is not a member of %s %d", profileID, scope.Scope.Type, scope.Scope.ID)
	}
	return scope, nil
}

func (s *reactionService) snapshot(ctx context.Context, messageID uint) (dto.ReactionSnapshot, error) {
	rows, err := s.reactions.ListByMessage(ctx, messageID)
	if err != nil {
		return dto.ReactionSnapshot{}, err
	}
	return dto.ReactionSnapshot{MessageID: messageID, Aggregates: aggregateReactions(rows)}, nil
}

func (s *reactionService) publish(ctx context.Context, scope resolvedScope, snapshot dto.ReactionSnapshot) {
	if err := s.publisher.Publish(ctx, scope.room(), realtime.EventReactionUpdate, snapshot); err != nil {
		s.logger.Warn().Err(err).Uint("message_id", snapshot.MessageID).Msg("failed to publish reaction update")
	}
}

// aggregateReactions groups reactor rows by emoji in order of each emoji's
// first reaction. rows must already be ordered by creation. Emojis whose
// rows sum to zero are left out.
func aggregateReactions(rows []models.Reaction) []dto.ReactionAggregate {
	index := make(map[string]int)
	aggregates := make([]dto.ReactionAggregate, 0)

	for _, row := range rows {
		if row.Count <= 0 {
			continue
		}
		pos, ok := index[row.Emoji]
		if !ok {
			pos = len(aggregates)
			index[row.Emoji] = pos
			aggregates = append(aggregates, dto.ReactionAggregate{Emoji: row.Emoji, Reactors: []dto.ProfileResponse{}})
		}
		aggregates[pos].Count += row.Count
		aggregates[pos].Reactors = append(aggregates[pos].Reactors, dto.NewProfileResponse(row.Profile))
	}

	return aggregates
}
