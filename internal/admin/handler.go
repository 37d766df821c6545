package admin

import (
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/auth"
	"ticketing-backend/internal/engine"
	"ticketing-backend/internal/instrument"
	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/navigation"
)

const auditLogsResource = "auditLogs"

// Handler serves the read-only access administration API.
type Handler struct {
	ac       *access.Control
	registry *metadata.Registry
	events   *instrument.EventHandler
}

func NewHandler(ac *access.Control, reg *metadata.Registry, events *instrument.EventHandler) *Handler {
	return &Handler{ac: ac, registry: reg, events: events}
}

// RoleView is one role with its full grant list.
type RoleView struct {
	navigation.RoleInfo
	Permissions []access.Grant `json:"permissions"`
}

// RegisterAdminRoutes mounts /_admin under r, restricted to the super admin,
// and /auditLogs for every role granted auditLogs read.
func RegisterAdminRoutes(r fiber.Router, h *Handler, guard *engine.Guard) {
	r.Get("/auditLogs", auth.RequirePermission(guard, auditLogsResource, "read"), h.events.List)

	admin := r.Group("/_admin", auth.RequireSuperAdmin(guard))

	admin.Get("/roles", h.ListRoles)
	admin.Get("/roles/:role", h.GetRole)
	admin.Get("/check", h.Check)
	admin.Get("/resources", h.ListResources)
	admin.Get("/resources/:name", h.GetResource)
	admin.Get("/access-events", h.events.List)
}

// ListRoles handles GET /api/_admin/roles, ordered by access level then id.
func (h *Handler) ListRoles(c *fiber.Ctx) error {
	roles := access.AllRoles()
	sort.SliceStable(roles, func(i, j int) bool {
		li, lj := h.ac.AccessLevel(roles[i]), h.ac.AccessLevel(roles[j])
		if li != lj {
			return li < lj
		}
		return roles[i] < roles[j]
	})

	views := make([]RoleView, 0, len(roles))
	for _, role := range roles {
		views = append(views, h.view(role))
	}
	return c.JSON(fiber.Map{"data": views})
}

// GetRole handles GET /api/_admin/roles/:role; the role is a name or a number.
func (h *Handler) GetRole(c *fiber.Ctx) error {
	raw := c.Params("role")
	role, ok := parseRole(raw)
	if !ok || !role.Valid() {
		return engine.NewAppError("NOT_FOUND", 404, "Unknown role: "+raw)
	}
	return c.JSON(fiber.Map{"data": h.view(role)})
}

// Check handles GET /api/_admin/check?role=&resource=&action=. Unknown roles,
// resources and actions answer false like any other missing entry.
func (h *Handler) Check(c *fiber.Ctx) error {
	rawRole := c.Query("role")
	resource := c.Query("resource")
	action := c.Query("action")
	if rawRole == "" || resource == "" {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "role and resource are required")
	}
	role, ok := parseRole(rawRole)
	if !ok {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "role must be a role name or number")
	}

	result := fiber.Map{
		"role":       navigation.Describe(h.ac, role),
		"resource":   resource,
		"can_access": h.ac.CanAccess(role, resource),
		"actions":    nonNil(h.ac.Actions(role, resource)),
	}
	if action != "" {
		result["action"] = action
		result["allowed"] = h.ac.HasPermission(role, resource, action)
	}
	return c.JSON(fiber.Map{"data": result})
}

// ListResources handles GET /api/_admin/resources.
func (h *Handler) ListResources(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.All()})
}

// GetResource handles GET /api/_admin/resources/:name.
func (h *Handler) GetResource(c *fiber.Ctx) error {
	name := c.Params("name")
	res := h.registry.Get(name)
	if res == nil {
		return engine.UnknownResourceError(name)
	}
	return c.JSON(fiber.Map{"data": res})
}

func (h *Handler) view(role access.Role) RoleView {
	grants := h.ac.Table().Grants(role)
	for i := range grants {
		grants[i].Actions = nonNil(grants[i].Actions)
	}
	if grants == nil {
		grants = []access.Grant{}
	}
	return RoleView{RoleInfo: navigation.Describe(h.ac, role), Permissions: grants}
}

func parseRole(raw string) (access.Role, bool) {
	if role, ok := access.ParseRole(raw); ok {
		return role, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return access.Role(n), true
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
