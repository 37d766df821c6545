package engine

import (
	"ticketing-backend/internal/access"
	"ticketing-backend/internal/metadata"
)

// checkResourceWrite applies resource-specific invariants that field
// metadata cannot express. current is nil on create.
func checkResourceWrite(plan *WritePlan, current map[string]any) []ErrorDetail {
	switch plan.Resource.Name {
	case "users":
		return checkUserWrite(plan, current)
	}
	return nil
}

// checkUserWrite keeps role and agency consistent: agency roles belong to an
// agency, other roles do not, and agency users only hand out agency roles.
func checkUserWrite(plan *WritePlan, current map[string]any) []ErrorDetail {
	role := access.Role(int(toInt64(effective(plan.Fields, current, "role"))))
	agencyID, _ := effective(plan.Fields, current, metadata.AgencyField).(string)

	if plan.Session.AgencyScoped() && !role.IsAgencyUser() {
		return []ErrorDetail{{
			Field:   "role",
			Rule:    "scope",
			Message: "Agency users can only assign ADMIN_AGENCE or AGENT_AGENCE",
		}}
	}
	if role.IsAgencyUser() && agencyID == "" {
		return []ErrorDetail{{
			Field:   metadata.AgencyField,
			Rule:    "required",
			Message: "agency_id is required for agency roles",
		}}
	}
	if !role.IsAgencyUser() && agencyID != "" {
		return []ErrorDetail{{
			Field:   metadata.AgencyField,
			Rule:    "scope",
			Message: role.String() + " users cannot belong to an agency",
		}}
	}
	return nil
}

// effective returns the value a field will hold after the write.
func effective(fields, current map[string]any, name string) any {
	if v, ok := fields[name]; ok {
		return v
	}
	return current[name]
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
