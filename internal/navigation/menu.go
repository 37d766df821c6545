package navigation

import "ticketing-backend/internal/access"

// Section is one entry of the dashboard sidebar.
type Section struct {
	Label    string `json:"label"`
	Path     string `json:"path"`
	Resource string `json:"resource"`
	Icon     string `json:"icon"`
}

// Entry is a section the caller may open, with the actions it holds there.
type Entry struct {
	Section
	Actions []string `json:"actions"`
}

var menu = []Section{
	{Label: "Dashboard", Path: "/dashboard", Resource: "dashboard", Icon: "home"},
	{Label: "Agencies", Path: "/agencies", Resource: "agencies", Icon: "building"},
	{Label: "My agency", Path: "/agency-profile", Resource: "agencyProfile", Icon: "id-card"},
	{Label: "Users", Path: "/users", Resource: "users", Icon: "users"},
	{Label: "Voyages", Path: "/voyages", Resource: "voyages", Icon: "bus"},
	{Label: "Reservations", Path: "/reservations", Resource: "reservations", Icon: "ticket"},
	{Label: "Finance", Path: "/finance", Resource: "transactions", Icon: "wallet"},
	{Label: "Support", Path: "/support", Resource: "complaints", Icon: "life-buoy"},
	{Label: "Settings", Path: "/settings", Resource: "settings", Icon: "sliders"},
	{Label: "Audit logs", Path: "/audit-logs", Resource: "auditLogs", Icon: "scroll"},
}

// Menu returns a copy of the full sidebar in display order.
func Menu() []Section {
	return append([]Section(nil), menu...)
}

// Build keeps the sections role can access. Sections whose resource has an
// empty action list are still shown.
func Build(ac *access.Control, role access.Role) []Entry {
	entries := []Entry{}
	for _, s := range menu {
		if !ac.CanAccess(role, s.Resource) {
			continue
		}
		actions := ac.Actions(role, s.Resource)
		if actions == nil {
			actions = []string{}
		}
		entries = append(entries, Entry{Section: s, Actions: actions})
	}
	return entries
}
