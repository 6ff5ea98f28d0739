package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/service"
	"github.com/noah-isme/gema-chat/internal/utils"
)

// RealtimeHandler upgrades authenticated requests to realtime sockets.
type RealtimeHandler struct {
	service service.SessionService
	logger  zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(service service.SessionService, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		service: service,
		logger:  logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket endpoint. The router must already run JWT
// authentication so the identity is known before the upgrade.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		profileID := middleware.IdentityFromContext(c)
		if profileID == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		c.Locals("profile_id", profileID)
		c.Locals("request_ctx", requestContext(c))
		return c.Next()
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

// RegisterStats binds the registry statistics endpoint behind guard.
func (h *RealtimeHandler) RegisterStats(router fiber.Router, guard fiber.Handler) {
	router.Get("/stats", guard, h.stats)
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	profileID, _ := conn.Locals("profile_id").(uint)
	correlation, _ := conn.Locals("correlation_id").(string)
	baseCtx, _ := conn.Locals("request_ctx").(context.Context)

	logger := h.logger.With().Uint("profile_id", profileID).Str("correlation_id", correlation).Logger()
	logger.Info().Msg("realtime socket connected")

	err := h.service.Serve(conn, service.SessionOptions{
		ProfileID:     profileID,
		CorrelationID: correlation,
		Context:       baseCtx,
	})
	if errors.Is(err, service.ErrUnauthorized) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
	} else if err != nil {
		logger.Warn().Err(err).Msg("realtime session failed")
		_ = conn.Close()
	}

	logger.Info().Msg("realtime socket disconnected")
}

func (h *RealtimeHandler) stats(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "realtime stats", h.service.Stats())
}
