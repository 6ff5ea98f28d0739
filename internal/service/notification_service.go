package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

// NotificationService persists per-recipient notifications, pushes them to
// personal rooms and keeps unread counters.
type NotificationService interface {
	Notify(ctx context.Context, req dto.NotifyRequest) (dto.NotifyResult, error)
	MarkRead(ctx context.Context, profileID uint, scope dto.Scope) (dto.MarkReadResponse, error)
	UnreadCount(ctx context.Context, profileID uint, scope dto.Scope) (dto.UnreadCountResponse, error)
	List(ctx context.Context, profileID uint, limit, offset int) ([]dto.NotificationResponse, error)
	MarkOne(ctx context.Context, id uint, profileID uint) (dto.NotificationResponse, error)
	Broadcast(ctx context.Context, profileID uint, scope dto.Scope, req dto.NoticeRequest) (dto.NotifyResult, error)
}

// NotificationOptions configures the unread cache.
type NotificationOptions struct {
	Redis    *redis.Client
	KeyBase  string
	CacheTTL time.Duration
}

type notificationService struct {
	repo      repository.NotificationRepository
	scopes    scopeResolver
	publisher realtime.Publisher
	unread    *unreadCounter
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, scopes repository.ScopeRepository, publisher realtime.Publisher, opts NotificationOptions, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	componentLogger := logger.With().Str("component", "notification_service").Logger()

	return &notificationService{
		repo:      repo,
		scopes:    scopeResolver{repo: scopes},
		publisher: publisher,
		unread:    newUnreadCounter(repo, opts.Redis, opts.KeyBase, opts.CacheTTL, componentLogger),
		validator: validate,
		logger:    componentLogger,
		tracer:    otel.Tracer("github.com/noah-isme/gema-chat/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Notify notifies every listed recipient except the source.
func (s *notificationService) Notify(ctx context.Context, req dto.NotifyRequest) (dto.NotifyResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.NotifyResult{}, invalid(err)
	}

	text := strings.TrimSpace(s.sanitizer.Sanitize(req.Message))
	if text == "" {
		return dto.NotifyResult{}, badRequest("notification message empty after sanitization")
	}

	return s.fanout(ctx, req, text, uniqueRecipients(req.RecipientIDs, req.SourceProfileID))
}

// Broadcast sends a system notice to every member of the scope, the sender
// included. Only moderators and admins may broadcast into a channel.
func (s *notificationService) Broadcast(ctx context.Context, profileID uint, scope dto.Scope, req dto.NoticeRequest) (dto.NotifyResult, error) {
	if err := s.validator.Struct(scope); err != nil {
		return dto.NotifyResult{}, invalid(err)
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.NotifyResult{}, invalid(err)
	}

	resolved, actor, err := s.scopes.resolveForMember(ctx, scope, profileID)
	if err != nil {
		return dto.NotifyResult{}, err
	}
	if scope.Type == models.ScopeChannel && !actor.CanModerate() {
		return dto.NotifyResult{}, forbidden("member %d cannot broadcast into channel %d", actor.ID, scope.ID)
	}

	text := strings.TrimSpace(s.sanitizer.Sanitize(req.Message))
	if text == "" {
		return dto.NotifyResult{}, badRequest("notice message empty after sanitization")
	}

	recipients := make([]uint, 0, len(resolved.Members))
	for _, member := range resolved.Members {
		recipients = append(recipients, member.ProfileID)
	}

	return s.fanout(ctx, dto.NotifyRequest{
		SourceProfileID: profileID,
		Scope:           scope,
		Kind:            models.NotificationKindNotice,
	}, text, uniqueRecipients(recipients, 0))
}

// fanout writes one notification per recipient and pushes each to the
// recipient's personal room. Recipients are independent: a failed insert or
// push for one does not undo the others. An error is only returned when no
// recipient could be persisted.
func (s *notificationService) fanout(ctx context.Context, req dto.NotifyRequest, text string, recipients []uint) (dto.NotifyResult, error) {
	result := dto.NotifyResult{}
	if len(recipients) == 0 {
		return result, nil
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.notify", trace.WithAttributes(
		attribute.String("notification.scope_type", req.Scope.Type),
		attribute.Int64("notification.scope_id", int64(req.Scope.ID)),
		attribute.String("notification.kind", req.Kind),
		attribute.Int("notification.recipients", len(recipients)),
	))
	defer span.End()

	for _, recipient := range recipients {
		model := models.Notification{
			ProfileID: recipient,
			ScopeType: req.Scope.Type,
			ScopeID:   req.Scope.ID,
			Kind:      req.Kind,
			Message:   text,
			Metadata: datatypes.JSONMap{
				"source_profile_id": req.SourceProfileID,
			},
		}
		if req.MessageID != 0 {
			model.Metadata["message_id"] = req.MessageID
		}

		if err := s.repo.Create(spanCtx, &model); err != nil {
			span.RecordError(err)
			observability.ChatNotificationsFailed().Inc()
			s.logger.Warn().Err(err).Uint("profile_id", recipient).Msg("failed to persist notification")
			result.Failed = append(result.Failed, recipient)
			continue
		}
		result.Created++
		observability.ChatNotificationsCreated().WithLabelValues(req.Kind).Inc()

		s.unread.Touch(spanCtx, recipient, req.Scope)
		s.push(spanCtx, model, req.MessageID)
	}

	if result.Created == 0 {
		return result, fmt.Errorf("notification fanout failed for all %d recipients", len(result.Failed))
	}

	return result, nil
}

func (s *notificationService) push(ctx context.Context, model models.Notification, messageID uint) {
	event := dto.NotificationEvent{
		ID:        model.ID,
		ScopeType: model.ScopeType,
		ScopeID:   model.ScopeID,
		Kind:      model.Kind,
		Message:   model.Message,
		CreatedAt: model.CreatedAt,
	}
	if model.ScopeType == models.ScopeChannel {
		channelID := model.ScopeID
		event.ChannelID = &channelID
	}
	if messageID != 0 {
		event.MessageID = &messageID
	}

	if err := s.publisher.Publish(ctx, realtime.UserRoom(model.ProfileID), realtime.EventNotificationNew, event); err != nil {
		s.logger.Warn().Err(err).Uint("profile_id", model.ProfileID).Msg("failed to push notification")
	}
}

// MarkRead flips every unread notification of the profile in scope to read.
func (s *notificationService) MarkRead(ctx context.Context, profileID uint, scope dto.Scope) (dto.MarkReadResponse, error) {
	if profileID == 0 {
		return dto.MarkReadResponse{}, ErrUnauthorized
	}
	if err := s.validator.Struct(scope); err != nil {
		return dto.MarkReadResponse{}, invalid(err)
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.Int64("notification.profile_id", int64(profileID)),
		attribute.String("notification.scope_type", scope.Type),
		attribute.Int64("notification.scope_id", int64(scope.ID)),
	))
	defer span.End()

	updated, err := s.repo.MarkScopeRead(spanCtx, profileID, scope.Type, scope.ID)
	if err != nil {
		span.RecordError(err)
		return dto.MarkReadResponse{}, err
	}
	s.unread.Touch(spanCtx, profileID, scope)

	return dto.MarkReadResponse{ScopeType: scope.Type, ScopeID: scope.ID, Updated: updated}, nil
}

// UnreadCount returns the number of unread notifications the profile has in scope.
func (s *notificationService) UnreadCount(ctx context.Context, profileID uint, scope dto.Scope) (dto.UnreadCountResponse, error) {
	if profileID == 0 {
		return dto.UnreadCountResponse{}, ErrUnauthorized
	}
	if err := s.validator.Struct(scope); err != nil {
		return dto.UnreadCountResponse{}, invalid(err)
	}

	count, err := s.unread.Count(ctx, profileID, scope)
	if err != nil {
		return dto.UnreadCountResponse{}, err
	}
	if count < 0 {
		count = 0
	}

	return dto.UnreadCountResponse{ScopeType: scope.Type, ScopeID: scope.ID, UnreadCount: count}, nil
}

func (s *notificationService) List(ctx context.Context, profileID uint, limit, offset int) ([]dto.NotificationResponse, error) {
	if profileID == 0 {
		return nil, ErrUnauthorized
	}

	notifications, err := s.repo.ListByProfile(ctx, profileID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkOne(ctx context.Context, id uint, profileID uint) (dto.NotificationResponse, error) {
	if profileID == 0 {
		return dto.NotificationResponse{}, ErrUnauthorized
	}

	notification, err := s.repo.MarkRead(ctx, id, profileID)
	if err != nil {
		return dto.NotificationResponse{}, lookup(err, "notification")
	}
	s.unread.Touch(ctx, profileID, dto.Scope{Type: notification.ScopeType, ID: notification.ScopeID})

	return dto.NewNotificationResponse(notification), nil
}

func uniqueRecipients(ids []uint, source uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id == 0 || id == source {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
