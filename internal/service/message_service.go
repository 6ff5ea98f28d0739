package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
	"github.com/noah-isme/gema-chat/internal/realtime"
	"github.com/noah-isme/gema-chat/internal/repository"
)

const (
	deletedMessageContent   = "This message has been deleted."
	defaultMessageMaxLength = 4000
	notificationPreviewLen  = 120
)

// MessageService validates, persists and distributes chat messages.
type MessageService interface {
	Post(ctx context.Context, profileID uint, scope dto.Scope, req dto.MessageCreateRequest) (dto.MessageResponse, error)
	Edit(ctx context.Context, profileID uint, messageID uint, req dto.MessageUpdateRequest) (dto.MessageResponse, error)
	Delete(ctx context.Context, profileID uint, messageID uint) (dto.MessageResponse, error)
	History(ctx context.Context, profileID uint, scope dto.Scope, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error)
}

// MessageOptions tunes message validation.
type MessageOptions struct {
	MaxLength int
}

type messageService struct {
	messages      repository.MessageRepository
	reactions     repository.ReactionRepository
	scopes        scopeResolver
	notifications NotificationService
	publisher     realtime.Publisher
	validator     *validator.Validate
	sanitizer     *bluemonday.Policy
	maxLength     int
	logger        zerolog.Logger
	tracer        trace.Tracer
}

// NewMessageService constructs the message pipeline.
func NewMessageService(
	messages repository.MessageRepository,
	reactions repository.ReactionRepository,
	scopes repository.ScopeRepository,
	notifications NotificationService,
	publisher realtime.Publisher,
	validate *validator.Validate,
	opts MessageOptions,
	logger zerolog.Logger,
) MessageService {
	maxLength := opts.MaxLength
	if maxLength <= 0 {
		maxLength = defaultMessageMaxLength
	}

	return &messageService{
		messages:      messages,
		reactions:     reactions,
		scopes:        scopeResolver{repo: scopes},
		notifications: notifications,
		publisher:     publisher,
		validator:     validate,
		sanitizer:     bluemonday.UGCPolicy(),
		maxLength:     maxLength,
		logger:        logger.With().Str("component", "message_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/gema-chat/internal/service/message"),
	}
}

// Post persists a message or reply, publishes message:new to the scope room
// and fans notifications out to the other members of the scope.
func (s *messageService) Post(ctx context.Context, profileID uint, scope dto.Scope, req dto.MessageCreateRequest) (dto.MessageResponse, error) {
	if profileID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}
	if err := s.validator.Struct(scope); err != nil {
		return dto.MessageResponse{}, invalid(err)
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, invalid(err)
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.post", trace.WithAttributes(
		attribute.String("message.scope_type", scope.Type),
		attribute.Int64("message.scope_id", int64(scope.ID)),
		attribute.Int64("message.profile_id", int64(profileID)),
	))
	defer span.End()

	resolved, author, err := s.scopes.resolveForMember(spanCtx, scope, profileID)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	model := models.Message{
		MemberID: author.ID,
		Content:  content,
		FileURL:  strings.TrimSpace(req.FileURL),
	}
	switch scope.Type {
	case models.ScopeConversation:
		model.ConversationID = &scope.ID
	default:
		model.ChannelID = &scope.ID
	}

	var parent *models.Message
	if req.ReplyToID != nil {
		found, err := s.messages.FindByID(spanCtx, *req.ReplyToID)
		if err != nil {
			return dto.MessageResponse{}, lookup(err, "reply target")
		}
		if scopeOfMessage(found) != scope {
			return dto.MessageResponse{}, notFound("reply target %d not found in %s %d", found.ID, scope.Type, scope.ID)
		}
		parent = &found
		model.ReplyToID = &found.ID
	}

	if err := s.messages.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, fmt.Errorf("persist message: %w", err)
	}
	observability.ChatMessagesPosted().WithLabelValues(scope.Type).Inc()

	response := dto.NewMessageResponse(model)
	if err := s.publisher.Publish(spanCtx, resolved.room(), realtime.EventMessageNew, response); err != nil {
		s.logger.Warn().Err(err).Uint("message_id", model.ID).Msg("failed to publish message")
	}

	s.fanout(spanCtx, resolved, author, model, parent)

	return response, nil
}

// fanout notifies every other scope member. Tagged members get a mention
// notification instead of the plain one. Failures are logged only; the
// message is already committed.
func (s *messageService) fanout(ctx context.Context, scope resolvedScope, author models.Member, message models.Message, parent *models.Message) {
	if s.notifications == nil {
		return
	}

	authorName := author.Profile.Name
	if authorName == "" {
		authorName = "Someone"
	}
	preview := truncate(message.Content, notificationPreviewLen)

	// stored content is entity-escaped; names like O'Brien only match the raw text
	mentioned := resolveMentions(html.UnescapeString(message.Content), scope.Members, author.ProfileID)
	mentionedIDs := make(map[uint]struct{}, len(mentioned))
	for _, member := range mentioned {
		mentionedIDs[member.ProfileID] = struct{}{}
	}

	plain := make([]uint, 0, len(scope.Members))
	for _, profileID := range scope.otherProfiles(author.ProfileID) {
		if _, tagged := mentionedIDs[profileID]; !tagged {
			plain = append(plain, profileID)
		}
	}

	kind := models.NotificationKindMessage
	text := fmt.Sprintf("New message in %s from %s: %s", scope.label(), authorName, preview)
	if parent != nil {
		kind = models.NotificationKindReply
		text = fmt.Sprintf("New reply in %s from %s: %s", scope.label(), authorName, preview)
	}

	if len(plain) > 0 {
		s.notify(ctx, dto.NotifyRequest{
			SourceProfileID: author.ProfileID,
			Scope:           scope.Scope,
			Kind:            kind,
			Message:         text,
			MessageID:       message.ID,
			RecipientIDs:    plain,
		})
	}

	if len(mentioned) > 0 {
		recipients := make([]uint, 0, len(mentioned))
		for _, member := range mentioned {
			recipients = append(recipients, member.ProfileID)
		}
		s.notify(ctx, dto.NotifyRequest{
			SourceProfileID: author.ProfileID,
			Scope:           scope.Scope,
			Kind:            models.NotificationKindMention,
			Message:         fmt.Sprintf("%s mentioned you in %s: %s", authorName, scope.label(), preview),
			MessageID:       message.ID,
			RecipientIDs:    recipients,
		})
	}
}

func (s *messageService) notify(ctx context.Context, req dto.NotifyRequest) {
	result, err := s.notifications.Notify(ctx, req)
	if err != nil {
		s.logger.Warn().Err(err).Uint("message_id", req.MessageID).Str("kind", req.Kind).Msg("notification fanout failed")
		return
	}
	if len(result.Failed) > 0 {
		s.logger.Warn().Uint("message_id", req.MessageID).Int("failed", len(result.Failed)).Msg("notification fanout partially failed")
	}
}

// Edit replaces the content of a message. Only the author may edit, and only
// while the message carries no attachment.
func (s *messageService) Edit(ctx context.Context, profileID uint, messageID uint, req dto.MessageUpdateRequest) (dto.MessageResponse, error) {
	if profileID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.MessageResponse{}, invalid(err)
	}

	content, err := s.cleanContent(req.Content)
	if err != nil {
		return dto.MessageResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.edit", trace.WithAttributes(
		attribute.Int64("message.id", int64(messageID)),
		attribute.Int64("message.profile_id", int64(profileID)),
	))
	defer span.End()

	message, resolved, actor, err := s.loadForActor(spanCtx, messageID, profileID)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if message.Deleted {
		return dto.MessageResponse{}, notFound("message %d not found", messageID)
	}
	if message.MemberID != actor.ID {
		return dto.MessageResponse{}, forbidden("only the author can edit message %d", messageID)
	}
	if message.FileURL != "" {
		return dto.MessageResponse{}, forbidden("messages with attachments cannot be edited")
	}

	message.Content = content
	if err := s.messages.Update(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, fmt.Errorf("update message: %w", err)
	}

	return s.republish(spanCtx, resolved, message.ID)
}

// Delete soft-deletes a message: the content is redacted and the attachment
// cleared. The author and the server's moderators and admins may delete.
func (s *messageService) Delete(ctx context.Context, profileID uint, messageID uint) (dto.MessageResponse, error) {
	if profileID == 0 {
		return dto.MessageResponse{}, ErrUnauthorized
	}

	spanCtx, span := s.tracer.Start(ctx, "messages.delete", trace.WithAttributes(
		attribute.Int64("message.id", int64(messageID)),
		attribute.Int64("message.profile_id", int64(profileID)),
	))
	defer span.End()

	message, resolved, actor, err := s.loadForActor(spanCtx, messageID, profileID)
	if err != nil {
		return dto.MessageResponse{}, err
	}
	if message.Deleted {
		return dto.MessageResponse{}, notFound("message %d not found", messageID)
	}
	if message.MemberID != actor.ID && !actor.CanModerate() {
		return dto.MessageResponse{}, forbidden("member %d cannot delete message %d", actor.ID, messageID)
	}

	message.Content = deletedMessageContent
	message.FileURL = ""
	message.Deleted = true
	if err := s.messages.Update(spanCtx, &message); err != nil {
		span.RecordError(err)
		return dto.MessageResponse{}, fmt.Errorf("delete message: %w", err)
	}

	return s.republish(spanCtx, resolved, message.ID)
}

// History pages backwards through a scope, oldest first within the page.
func (s *messageService) History(ctx context.Context, profileID uint, scope dto.Scope, query dto.MessageHistoryQuery) ([]dto.MessageResponse, error) {
	if err := s.validator.Struct(scope); err != nil {
		return nil, invalid(err)
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, invalid(err)
	}

	if _, _, err := s.scopes.resolveForMember(ctx, scope, profileID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListByScope(ctx, scope.Type, scope.ID, query.Before, query.Limit)
	if err != nil {
		return nil, err
	}

	ids := make([]uint, 0, len(messages))
	for _, message := range messages {
		ids = append(ids, message.ID)
	}
	reactions, err := s.reactions.ListByMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	byMessage := make(map[uint][]models.Reaction, len(messages))
	for _, reaction := range reactions {
		byMessage[reaction.MessageID] = append(byMessage[reaction.MessageID], reaction)
	}

	out := make([]dto.MessageResponse, 0, len(messages))
	for _, message := range messages {
		response := dto.NewMessageResponse(message)
		if rows := byMessage[message.ID]; len(rows) > 0 {
			response.Reactions = aggregateReactions(rows)
		}
		out = append(out, response)
	}
	return out, nil
}

func (s *messageService) loadForActor(ctx context.Context, messageID, profileID uint) (models.Message, resolvedScope, models.Member, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return models.Message{}, resolvedScope{}, models.Member{}, lookup(err, "message")
	}

	resolved, actor, err := s.scopes.resolveForMember(ctx, scopeOfMessage(message), profileID)
	if err != nil {
		if isNotFound(err) {
			return models.Message{}, resolvedScope{}, models.Member{}, notFound("message %d not found", messageID)
		}
		return models.Message{}, resolvedScope{}, models.Member{}, err
	}
	return message, resolved, actor, nil
}

func (s *messageService) republish(ctx context.Context, scope resolvedScope, messageID uint) (dto.MessageResponse, error) {
	updated, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		return dto.MessageResponse{}, lookup(err, "message")
	}

	response := dto.NewMessageResponse(updated)
	if err := s.publisher.Publish(ctx, scope.room(), realtime.EventMessageUpdate, response); err != nil {
		s.logger.Warn().Err(err).Uint("message_id", messageID).Msg("failed to publish message update")
	}
	return response, nil
}

func (s *messageService) cleanContent(raw string) (string, error) {
	content := strings.TrimSpace(s.sanitizer.Sanitize(raw))
	if content == "" {
		return "", badRequest("message content is required")
	}
	if utf8.RuneCountInString(html.UnescapeString(content)) > s.maxLength {
		return "", badRequest("message content exceeds %d characters", s.maxLength)
	}
	return content, nil
}

func truncate(value string, limit int) string {
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + "…"
}
