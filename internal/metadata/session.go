package metadata

import "ticketing-backend/internal/access"

// Session represents the authenticated user, set by auth middleware.
type Session struct {
	UserID   string      `json:"user_id"`
	Role     access.Role `json:"role"`
	AgencyID string      `json:"agency_id,omitempty"`
}

// AgencyScoped reports whether the session is limited to one agency's rows.
func (s *Session) AgencyScoped() bool {
	return s != nil && access.IsAgencyUser(s.Role)
}
