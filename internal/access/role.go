package access

import "strings"

// Role identifies a position in the platform hierarchy. The numeric values are
// the ones stored in the users table and carried in access tokens.
type Role int

const (
	RoleSuperAdmin          Role = 1
	RoleSousAdminAgences    Role = 2
	RoleSousAdminFinance    Role = 3
	RoleSousAdminOperations Role = 4
	RoleSousAdminSupport    Role = 5
	RoleAdminAgence         Role = 6
	RoleAgentAgence         Role = 7
)

var roleNames = map[Role]string{
	RoleSuperAdmin:          "SUPER_ADMIN",
	RoleSousAdminAgences:    "SOUS_ADMIN_AGENCES",
	RoleSousAdminFinance:    "SOUS_ADMIN_FINANCE",
	RoleSousAdminOperations: "SOUS_ADMIN_OPERATIONS",
	RoleSousAdminSupport:    "SOUS_ADMIN_SUPPORT",
	RoleAdminAgence:         "ADMIN_AGENCE",
	RoleAgentAgence:         "AGENT_AGENCE",
}

// AllRoles returns every known role in ascending numeric order.
func AllRoles() []Role {
	return []Role{
		RoleSuperAdmin,
		RoleSousAdminAgences,
		RoleSousAdminFinance,
		RoleSousAdminOperations,
		RoleSousAdminSupport,
		RoleAdminAgence,
		RoleAgentAgence,
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseRole resolves a role name (case-insensitive) to its Role.
func ParseRole(name string) (Role, bool) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	for r, n := range roleNames {
		if n == upper {
			return r, true
		}
	}
	return 0, false
}

// Tier is the coarse grouping a role belongs to.
type Tier string

const (
	TierSuperAdmin Tier = "super_admin"
	TierSousAdmin  Tier = "sous_admin"
	TierAgency     Tier = "agency"
	TierNone       Tier = "none"
)

// IsSuperAdmin reports whether role is the top-level administrator.
func IsSuperAdmin(role Role) bool {
	return role == RoleSuperAdmin
}

// IsSousAdmin reports whether role is one of the four delegated administrators.
func IsSousAdmin(role Role) bool {
	switch role {
	case RoleSousAdminAgences, RoleSousAdminFinance, RoleSousAdminOperations, RoleSousAdminSupport:
		return true
	}
	return false
}

// IsAgencyUser reports whether role is scoped to a single agency.
func IsAgencyUser(role Role) bool {
	return role == RoleAdminAgence || role == RoleAgentAgence
}

func (r Role) IsSuperAdmin() bool { return IsSuperAdmin(r) }
func (r Role) IsSousAdmin() bool  { return IsSousAdmin(r) }
func (r Role) IsAgencyUser() bool { return IsAgencyUser(r) }

// Tier returns the tier for r, or TierNone for unknown roles.
func (r Role) Tier() Tier {
	switch {
	case IsSuperAdmin(r):
		return TierSuperAdmin
	case IsSousAdmin(r):
		return TierSousAdmin
	case IsAgencyUser(r):
		return TierAgency
	default:
		return TierNone
	}
}
