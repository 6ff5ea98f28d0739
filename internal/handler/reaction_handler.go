package handler

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// ReactionHandler exposes the reaction aggregator.
type ReactionHandler struct {
	service service.ReactionService
	logger  zerolog.Logger
}

// NewReactionHandler constructs a reaction handler.
func NewReactionHandler(service service.ReactionService, logger zerolog.Logger) *ReactionHandler {
	return &ReactionHandler{
		service: service,
		logger:  logger.With().Str("component", "reaction_handler").Logger(),
	}
}

// Register binds reaction routes under /messages.
func (h *ReactionHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Get("/:messageId/reactions", h.list)
	router.Post("/:messageId/reactions", limiter, h.add)
	router.Delete("/:messageId/reactions/:emoji", limiter, h.remove)
	router.Get("/:messageId/reactions/:emoji/reactors", h.reactors)
}

func (h *ReactionHandler) list(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	snapshot, err := h.service.Aggregates(requestContext(c), middleware.IdentityFromContext(c), messageID)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "reactions", snapshot)
}

func (h *ReactionHandler) add(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReactionRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	snapshot, err := h.service.Add(requestContext(c), middleware.IdentityFromContext(c), messageID, payload)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "reaction added", snapshot)
}

func (h *ReactionHandler) remove(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	emoji, err := emojiParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid emoji")
	}

	snapshot, err := h.service.Remove(requestContext(c), middleware.IdentityFromContext(c), messageID, emoji)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "reaction removed", snapshot)
}

func (h *ReactionHandler) reactors(c *fiber.Ctx) error {
	messageID, err := parseIDParam(c, "messageId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	emoji, err := emojiParam(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid emoji")
	}

	profiles, err := h.service.ListReactors(requestContext(c), middleware.IdentityFromContext(c), messageID, emoji)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}
	return utils.SendSuccess(c, "reactors", profiles)
}

// emojiParam decodes the percent-encoded emoji path segment.
func emojiParam(c *fiber.Ctx) (string, error) {
	return url.PathUnescape(c.Params("emoji"))
}
