package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// MessageHandler exposes posting, editing, deleting and paging messages.
type MessageHandler struct {
	service service.MessageService
	logger  zerolog.Logger
}

// NewMessageHandler constructs a message handler.
func NewMessageHandler(service service.MessageService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{
		service: service,
		logger:  logger.With().Str("component", "message_handler").Logger(),
	}
}

// RegisterScope binds history and posting routes for one scope kind. The
// group path must carry the scope id as ":scopeId".
func (h *MessageHandler) RegisterScope(router fiber.Router, kind string, postLimiter fiber.Handler) {
	router.Get("/messages", h.history(kind))
	if postLimiter != nil {
		router.Post("/messages", postLimiter, h.post(kind))
		return
	}
	router.Post("/messages", h.post(kind))
}

// Register binds the per-message routes.
func (h *MessageHandler) Register(router fiber.Router) {
	router.Patch("/:messageId", h.edit)
	router.Delete("/:messageId", h.delete)
}

func (h *MessageHandler) post(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromParams(c, kind, "scopeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		var payload dto.MessageCreateRequest
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}

		message, err := h.service.Post(requestContext(c), middleware.IdentityFromContext(c), scope, payload)
		if err != nil {
			return writeServiceError(c, h.logger, err)
		}

		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "message posted", message)
	}
}

func (h *MessageHandler) history(kind string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope, err := scopeFromParams(c, kind, "scopeId")
		if err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, err.Error())
		}

		var query dto.MessageHistoryQuery
		if err := c.QueryParser(&query); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
		}

		messages, err := h.service.History(requestContext(c), middleware.IdentityFromContext(c), scope, query)
		if err != nil {
			return writeServiceError(c, h.logger, err)
		}

		meta := utils.PageMeta{Count: len(messages)}
		if len(messages) > 0 {
			meta.NextBefore = messages[0].ID
		}
		return utils.SendPage(c, "messages", messages, meta)
	}
}

func (h *MessageHandler) edit(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.MessageUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	message, err := h.service.Edit(requestContext(c), middleware.IdentityFromContext(c), messageID, payload)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message updated", message)
}

func (h *MessageHandler) delete(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	message, err := h.service.Delete(requestContext(c), middleware.IdentityFromContext(c), messageID)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "message deleted", message)
}
