package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/dto"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// MemberHandler serves scope-limited member lookups and direct conversations.
type MemberHandler struct {
	members       service.MemberService
	conversations service.ConversationService
	logger        zerolog.Logger
}

// NewMemberHandler constructs a member handler.
func NewMemberHandler(members service.MemberService, conversations service.ConversationService, logger zerolog.Logger) *MemberHandler {
	return &MemberHandler{
		members:       members,
		conversations: conversations,
		logger:        logger.With().Str("component", "member_handler").Logger(),
	}
}

// Register binds the lookup route under /scopes and the conversation route under /conversations.
func (h *MemberHandler) Register(scopes fiber.Router, conversations fiber.Router) {
	scopes.Get("/:kind/:scopeId/members", h.search)
	conversations.Post("/", h.openConversation)
}

func (h *MemberHandler) search(c *fiber.Ctx) error {
	scope, err := scopeFromParams(c, c.Params("kind"), "scopeId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var query dto.MemberSearchQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	members, err := h.members.Search(requestContext(c), middleware.IdentityFromContext(c), scope, query)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "members", members)
}

func (h *MemberHandler) openConversation(c *fiber.Ctx) error {
	var payload dto.ConversationCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	conversation, err := h.conversations.GetOrCreate(requestContext(c), middleware.IdentityFromContext(c), payload)
	if err != nil {
		return writeServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "conversation", conversation)
}
