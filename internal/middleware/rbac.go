package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-chat/internal/utils"
)

// RequireRole admits requests whose token carries one of the platform roles.
// Server-level roles (admin, moderator) live on the member record and are
// checked by the services instead.
func RequireRole(roles ...string) fiber.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		if normalized := normalizeRole(role); normalized != "" {
			allowed[normalized] = struct{}{}
		}
	}

	return func(c *fiber.Ctx) error {
		role, _ := c.Locals(localRole).(string)
		if _, ok := allowed[normalizeRole(role)]; !ok {
			return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
		}
		return c.Next()
	}
}
