package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/session"
)

const sessionLocal = "session"

// SessionMiddleware resolves the request's bearer token to a session snapshot
// and injects it into Fiber locals. Tokens are checked statelessly per
// request; the manager verifies each session with the auth backend only once.
func SessionMiddleware(mgr *session.Manager) fiber.Handler {
	return func(c fiber.Ctx) error {
		var token string

		// Try Authorization header first
		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = parts[1]
			}
		}

		// Fallback: ?token= query param (for SSE/EventSource which can't set headers)
		if token == "" {
			token = c.Query("token")
		}

		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing authorization",
			})
		}

		snap, err := mgr.Resolve(c.Context(), token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired session",
			})
		}

		c.Locals(sessionLocal, snap)
		return c.Next()
	}
}

// GetSnapshot extracts the session snapshot from Fiber locals.
func GetSnapshot(c fiber.Ctx) *session.Snapshot {
	s, ok := c.Locals(sessionLocal).(*session.Snapshot)
	if !ok {
		return nil
	}
	return s
}

// RequireRole lets the request through only when the resolved role set holds
// one of the given roles. A missing, loading, or empty set is denied.
func RequireRole(roles ...domain.Role) fiber.Handler {
	return func(c fiber.Ctx) error {
		snap := GetSnapshot(c)
		for _, role := range roles {
			if snap.HasRole(role) {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}
