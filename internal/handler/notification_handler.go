package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// NotificationHandler manages notification listing, read markers and unread badges.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the per-profile notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Patch("/:id/read", h.markOne)
}

// RegisterScope binds read markers, unread badges and notices for one scope
// kind. The group path must carry the scope id as ":scopeId".
func (h *NotificationHandler) RegisterScope(router fiber.Router, kind string) {
	router.Post("/notifications/read", h.markRead(kind))
	router.Get("/unread-count", h.unreadCount(kind))
	if kind == models.ScopeChannel {
		router.Post("/notices", h.broadcast(kind))
	}
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	limit, err := parseQueryInt(c, "limit")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid limit")
	}
	offset, err := parseQueryInt(c, "offset")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid offset")
	}

	notifications, err := h.service.List(requestContext(c), middleware.IdentityFromContext(c), limit, offset)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendPage(c, "notifications", notifications, utils.PageMeta{Count: len(notifications)})
}

func (h *NotificationHandler) markOne(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid notification id")
	}

	notification, err := h.service.MarkOne(requestContext(c), id, middleware.IdentityFromContext(c))
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "notification updated", notification)
}

func (h *NotificationHandler) markRead(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromParams(c, kind, "scopeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		result, err := h.service.MarkRead(requestContext(c), middleware.IdentityFromContext(c), scope)
		if err != nil {
			return writeServiceError(c, h.logger, err)
		}

		return utils.SendSuccess(c, "notifications marked as read", result)
	}
}

func (h *NotificationHandler) unreadCount(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromParams(c, kind, "scopeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		result, err := h.service.UnreadCount(requestContext(c), middleware.IdentityFromContext(c), scope)
		if err != nil {
			return writeServiceError(c, h.logger, err)
		}

		return utils.SendSuccess(c, "unread count", result)
	}
}

func (h *NotificationHandler) broadcast(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromParams(c, kind, "scopeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		var payload dto.NoticeRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}

		result, err := h.service.Broadcast(requestContext(c), middleware.IdentityFromContext(c), scope, payload)
		if err != nil {
			return writeServiceError(c, h.logger, err)
		}

		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "notice sent", result)
	}
}
