package navigation

import (
	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/engine"
)

// RoleInfo describes a role the way the dashboard displays it.
type RoleInfo struct {
	ID    int         `json:"id"`
	Name  string      `json:"name"`
	Tier  access.Tier `json:"tier"`
	Level int         `json:"level"`
}

// Describe resolves role against ac. Unknown roles come back as UNKNOWN,
// tier none, unranked.
func Describe(ac *access.Control, role access.Role) RoleInfo {
	return RoleInfo{
		ID:    int(role),
		Name:  role.String(),
		Tier:  role.Tier(),
		Level: ac.AccessLevel(role),
	}
}

type Handler struct {
	ac *access.Control
}

func NewHandler(ac *access.Control) *Handler {
	return &Handler{ac: ac}
}

// RegisterRoutes mounts /navigation and /me on an authenticated router.
func RegisterRoutes(r fiber.Router, h *Handler) {
	r.Get("/navigation", h.Navigation)
	r.Get("/me", h.Me)
}

// Navigation handles GET /api/navigation.
func (h *Handler) Navigation(c *fiber.Ctx) error {
	session := engine.GetSession(c)
	if session == nil {
		return engine.UnauthorizedError("Authentication required")
	}
	return c.JSON(fiber.Map{"data": Build(h.ac, session.Role)})
}

// Me handles GET /api/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	session := engine.GetSession(c)
	if session == nil {
		return engine.UnauthorizedError("Authentication required")
	}
	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user_id":   session.UserID,
			"agency_id": session.AgencyID,
			"role":      Describe(h.ac, session.Role),
			"resources": h.ac.AccessibleResources(session.Role),
		},
	})
}
