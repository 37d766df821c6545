package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/engine"
	"ticketing-backend/internal/metadata"
)

// adminResource names the access-admin surface in recorded denials.
const adminResource = "_admin"

// AuthMiddleware returns a Fiber middleware that validates JWT tokens
// and stores the resulting Session on the request.
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return engine.UnauthorizedError("Missing auth token")
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return engine.UnauthorizedError("Invalid auth header format")
		}

		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return engine.UnauthorizedError("Invalid or expired token")
		}

		c.Locals(engine.SessionKey, &metadata.Session{
			UserID:   claims.Subject,
			Role:     claims.Role,
			AgencyID: claims.AgencyID,
		})

		return c.Next()
	}
}

// RequireAccess lets the request through when resource is configured for the
// caller's role, whatever its action list.
func RequireAccess(guard *engine.Guard, resource string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := guard.CheckAccess(c, engine.GetSession(c), resource); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequirePermission lets the request through when the caller holds action on resource.
func RequirePermission(guard *engine.Guard, resource, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := guard.CheckPermission(c, engine.GetSession(c), resource, action); err != nil {
			return err
		}
		return c.Next()
	}
}

// RequireSuperAdmin restricts a route group to the top-level administrator.
func RequireSuperAdmin(guard *engine.Guard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session := engine.GetSession(c)
		if session == nil {
			return engine.UnauthorizedError("Missing auth token")
		}
		if !guard.Control().IsSuperAdmin(session.Role) {
			guard.Deny(c, session, adminResource, "access")
			return engine.ForbiddenError("Super admin access required")
		}
		return c.Next()
	}
}
