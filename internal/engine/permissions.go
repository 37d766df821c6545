package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/instrument"
	"ticketing-backend/internal/metadata"
)

// SessionKey is the fiber.Locals key holding the *metadata.Session.
const SessionKey = "session"

// GetSession extracts the Session set by the auth middleware.
func GetSession(c *fiber.Ctx) *metadata.Session {
	s, _ := c.Locals(SessionKey).(*metadata.Session)
	return s
}

// Guard checks sessions against the permission table and records denials.
type Guard struct {
	ac       *access.Control
	recorder instrument.Recorder
}

func NewGuard(ac *access.Control, recorder instrument.Recorder) *Guard {
	if recorder == nil {
		recorder = instrument.NoopRecorder{}
	}
	return &Guard{ac: ac, recorder: recorder}
}

// Control returns the access control the guard evaluates.
func (g *Guard) Control() *access.Control {
	return g.ac
}

// CheckPermission verifies that the session may perform action on resource.
// Returns nil if allowed, UNAUTHORIZED without a session, FORBIDDEN otherwise.
func (g *Guard) CheckPermission(c *fiber.Ctx, session *metadata.Session, resource, action string) error {
	if session == nil {
		return UnauthorizedError("Authentication required")
	}
	if g.ac.HasPermission(session.Role, resource, action) {
		return nil
	}
	g.Deny(c, session, resource, action)
	return ForbiddenError(fmt.Sprintf("Permission denied for %s on %s", action, resource))
}

// CheckAccess verifies that resource is visible to the session at all,
// even with an empty action list.
func (g *Guard) CheckAccess(c *fiber.Ctx, session *metadata.Session, resource string) error {
	if session == nil {
		return UnauthorizedError("Authentication required")
	}
	if g.ac.CanAccess(session.Role, resource) {
		return nil
	}
	g.Deny(c, session, resource, "access")
	return ForbiddenError(fmt.Sprintf("No access to %s", resource))
}

// Deny records a refused check.
func (g *Guard) Deny(c *fiber.Ctx, session *metadata.Session, resource, action string) {
	d := instrument.Denial{Resource: resource, Action: action}
	if session != nil {
		d.UserID = session.UserID
		d.Role = session.Role
	}
	if c != nil {
		// fasthttp reuses the request buffer once the handler returns
		d.Method = utils.CopyString(c.Method())
		d.Path = utils.CopyString(c.Path())
	}
	g.recorder.RecordDenial(d)
}

// ScopeFilters returns the row filters that confine agency users to their
// own agency on agency-scoped resources. Other tiers get no filters.
func ScopeFilters(session *metadata.Session, res *metadata.Resource) []WhereClause {
	if !res.AgencyScoped || !session.AgencyScoped() {
		return nil
	}
	return []WhereClause{{Field: metadata.AgencyField, Operator: "eq", Value: session.AgencyID}}
}

// InScope reports whether record is visible to the session.
func InScope(session *metadata.Session, res *metadata.Resource, record map[string]any) bool {
	if !res.AgencyScoped || !session.AgencyScoped() {
		return true
	}
	agency, _ := record[metadata.AgencyField].(string)
	return agency != "" && agency == session.AgencyID
}
