package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/gema-chat/internal/utils"
)

const (
	localProfileID = "user_id"
	localRole      = "user_role"
)

var errNoSubject = errors.New("token subject missing")

// JWTProtected verifies HMAC-signed bearer tokens and binds the profile id
// (and platform role, when present) to the request. Browsers cannot set
// headers on a websocket upgrade, so the token may also arrive in the
// "token" query parameter.
func JWTProtected(secret string) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	keyFunc := func(*jwt.Token) (interface{}, error) { return []byte(secret), nil }

	return func(c *fiber.Ctx) error {
		raw, problem := bearerToken(c)
		if raw == "" {
			return utils.SendError(c, fiber.StatusUnauthorized, problem)
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(raw, claims, keyFunc)
		if err != nil || !token.Valid {
			return utils.SendError(c, fiber.StatusUnauthorized, "invalid token")
		}

		profileID, err := profileFromClaims(claims)
		if err != nil {
			return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
		}

		c.Locals(localProfileID, profileID)
		if role := roleFromClaims(claims); role != "" {
			c.Locals(localRole, role)
		}
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) (string, string) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if header == "" {
		if token := strings.TrimSpace(c.Query("token")); token != "" {
			return token, ""
		}
		return "", "authorization header missing"
	}

	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", "invalid authorization header"
	}
	if token = strings.TrimSpace(token); token == "" {
		return "", "invalid token"
	}
	return token, ""
}

// profileFromClaims reads the profile id from sub, falling back to the
// profile_id and user_id claims some issuers use.
func profileFromClaims(claims jwt.MapClaims) (uint, error) {
	for _, key := range []string{"sub", "profile_id", "user_id"} {
		value, ok := claims[key]
		if !ok {
			continue
		}
		if id, ok := asProfileID(value); ok && id != 0 {
			return id, nil
		}
	}
	return 0, errNoSubject
}

func asProfileID(value interface{}) (uint, bool) {
	switch v := value.(type) {
	case float64:
		if v <= 0 || v != float64(uint64(v)) {
			return 0, false
		}
		return uint(v), true
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return uint(parsed), true
	default:
		return 0, false
	}
}

func roleFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"role", "roles"} {
		switch v := claims[key].(type) {
		case string:
			if role := normalizeRole(v); role != "" {
				return role
			}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					if role := normalizeRole(s); role != "" {
						return role
					}
				}
			}
		}
	}
	return ""
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
