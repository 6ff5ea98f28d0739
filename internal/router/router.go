package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/config"
	"github.com/noah-isme/gema-chat/internal/handler"
	"github.com/noah-isme/gema-chat/internal/middleware"
	"github.com/noah-isme/gema-chat/internal/models"
	"github.com/noah-isme/gema-chat/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MessageHandler      *handler.MessageHandler
	ReactionHandler     *handler.ReactionHandler
	NotificationHandler *handler.NotificationHandler
	MemberHandler       *handler.MemberHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
	PostLimiter         fiber.Handler
	HealthProbes        []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	guard := []fiber.Handler{jwtMiddleware, middleware.RequireIdentity()}

	if deps.RealtimeHandler != nil {
		realtime := api.Group("/realtime", guard...)
		deps.RealtimeHandler.Register(realtime)
		deps.RealtimeHandler.RegisterStats(realtime, middleware.RequireRole("operator", "admin"))
	}

	channels := api.Group("/channels/:scopeId", guard...)
	conversations := api.Group("/conversations", guard...)
	conversationScope := conversations.Group("/:scopeId")
	messages := api.Group("/messages", guard...)

	if deps.MessageHandler != nil {
		deps.MessageHandler.RegisterScope(channels, models.ScopeChannel, deps.PostLimiter)
		deps.MessageHandler.RegisterScope(conversationScope, models.ScopeConversation, deps.PostLimiter)
		deps.MessageHandler.Register(messages)
	}

	if deps.ReactionHandler != nil {
		deps.ReactionHandler.Register(messages, deps.PostLimiter)
	}

	if deps.NotificationHandler != nil {
		deps.NotificationHandler.Register(api.Group("/notifications", guard...))
		deps.NotificationHandler.RegisterScope(channels, models.ScopeChannel)
		deps.NotificationHandler.RegisterScope(conversationScope, models.ScopeConversation)
	}

	if deps.MemberHandler != nil {
		deps.MemberHandler.Register(api.Group("/scopes", guard...), conversations)
	}
}
