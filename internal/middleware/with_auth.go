package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/utils"
)

// RequireIdentity rejects requests that reached the handler without a
// verified profile id.
func RequireIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if IdentityFromContext(c) == 0 {
			return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
		}
		return c.Next()
	}
}

// IdentityFromContext returns the profile id set by JWTProtected, or 0.
func IdentityFromContext(c *fiber.Ctx) uint {
	switch id := c.Locals(localProfileID).(type) {
	case uint:
		return id
	case int:
		if id < 0 {
			return 0
		}
		return uint(id)
	default:
		return 0
	}
}
