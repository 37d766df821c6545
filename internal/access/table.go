package access

import (
	"errors"
	"fmt"
	"strings"
)

// UnrankedLevel is the access level reported for roles missing from the level table.
const UnrankedLevel = 99

// Grant is the ordered list of actions a role holds on one resource.
type Grant struct {
	Resource string   `json:"resource"`
	Actions  []string `json:"actions"`
}

type rolePermissions struct {
	order   []string
	actions map[string]map[string]struct{}
	listed  map[string][]string
}

// Table is the immutable permission and level configuration. Build it with
// NewTable; nothing mutates it afterwards.
type Table struct {
	roles  map[Role]*rolePermissions
	levels map[Role]int
}

// RoleConfig is the raw configuration for one role, used to build a Table.
type RoleConfig struct {
	Role   Role
	Level  int
	Grants []Grant
}

// NewTable builds a Table from role configurations and validates it.
func NewTable(configs []RoleConfig) (*Table, error) {
	t := &Table{
		roles:  make(map[Role]*rolePermissions, len(configs)),
		levels: make(map[Role]int, len(configs)),
	}
	for _, rc := range configs {
		if _, dup := t.roles[rc.Role]; dup {
			return nil, fmt.Errorf("role %s configured twice", rc.Role)
		}
		rp := &rolePermissions{
			actions: make(map[string]map[string]struct{}, len(rc.Grants)),
			listed:  make(map[string][]string, len(rc.Grants)),
		}
		for _, g := range rc.Grants {
			if _, dup := rp.actions[g.Resource]; dup {
				return nil, fmt.Errorf("role %s: resource %q listed twice", rc.Role, g.Resource)
			}
			set := make(map[string]struct{}, len(g.Actions))
			for _, a := range g.Actions {
				if _, dup := set[a]; dup {
					return nil, fmt.Errorf("role %s: action %q listed twice on %s", rc.Role, a, g.Resource)
				}
				set[a] = struct{}{}
			}
			rp.order = append(rp.order, g.Resource)
			rp.actions[g.Resource] = set
			rp.listed[g.Resource] = append([]string(nil), g.Actions...)
		}
		t.roles[rc.Role] = rp
		t.levels[rc.Role] = rc.Level
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks the table once at load time so queries never have to.
func (t *Table) Validate() error {
	var errs []error
	for _, r := range AllRoles() {
		if _, ok := t.roles[r]; !ok {
			errs = append(errs, fmt.Errorf("role %s has no entry", r))
		}
	}
	for r, rp := range t.roles {
		if !r.Valid() {
			errs = append(errs, fmt.Errorf("unknown role %d", int(r)))
			continue
		}
		if t.levels[r] < 1 || t.levels[r] >= UnrankedLevel {
			errs = append(errs, fmt.Errorf("role %s: level %d out of range 1..%d", r, t.levels[r], UnrankedLevel-1))
		}
		for _, res := range rp.order {
			if strings.TrimSpace(res) == "" {
				errs = append(errs, fmt.Errorf("role %s: empty resource name", r))
			}
			for _, a := range rp.listed[res] {
				if strings.TrimSpace(a) == "" {
					errs = append(errs, fmt.Errorf("role %s: empty action on %s", r, res))
				}
			}
		}
	}
	if top, ok := t.levels[RoleSuperAdmin]; ok {
		for r, lvl := range t.levels {
			if r != RoleSuperAdmin && lvl <= top {
				errs = append(errs, fmt.Errorf("role %s: level %d must be greater than %s level %d", r, lvl, RoleSuperAdmin, top))
			}
		}
	}
	return errors.Join(errs...)
}

// Grants returns a copy of the role's configuration in insertion order.
func (t *Table) Grants(role Role) []Grant {
	rp, ok := t.roles[role]
	if !ok {
		return nil
	}
	grants := make([]Grant, 0, len(rp.order))
	for _, res := range rp.order {
		grants = append(grants, Grant{Resource: res, Actions: append([]string{}, rp.listed[res]...)})
	}
	return grants
}

// lookup returns the action set for role/resource. The second result is false
// whenever the role or the resource is not configured.
func (t *Table) lookup(role Role, resource string) (map[string]struct{}, bool) {
	rp, ok := t.roles[role]
	if !ok {
		return nil, false
	}
	set, ok := rp.actions[resource]
	return set, ok
}

// DefaultTable returns the built-in permission table.
func DefaultTable() *Table {
	t, err := NewTable(defaultRoleConfigs())
	if err != nil {
		panic(fmt.Sprintf("access: invalid default table: %v", err))
	}
	return t
}

func defaultRoleConfigs() []RoleConfig {
	return []RoleConfig{
		{
			Role:  RoleSuperAdmin,
			Level: 1,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"agencies", []string{"create", "read", "update", "delete", "validate", "create_admin_agence"}},
				{"users", []string{"create", "read", "update", "delete"}},
				{"voyages", []string{"create", "read", "update", "delete"}},
				{"reservations", []string{"read", "update", "cancel", "export"}},
				{"transactions", []string{"read", "validate", "refund", "export"}},
				{"complaints", []string{"read", "update", "assign", "close"}},
				{"settings", []string{"read", "update"}},
				{"auditLogs", []string{"read"}},
			},
		},
		{
			Role:  RoleSousAdminAgences,
			Level: 2,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"agencies", []string{"create", "read", "update", "validate", "create_admin_agence"}},
				{"users", []string{"read"}},
				{"voyages", []string{"read"}},
			},
		},
		{
			Role:  RoleSousAdminFinance,
			Level: 2,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"transactions", []string{"read", "validate", "refund", "export"}},
				{"reservations", []string{"read", "export"}},
				{"agencies", []string{"read"}},
			},
		},
		{
			Role:  RoleSousAdminOperations,
			Level: 2,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"voyages", []string{"create", "read", "update", "delete"}},
				{"reservations", []string{"read", "update", "cancel"}},
				{"agencies", []string{"read"}},
			},
		},
		{
			Role:  RoleSousAdminSupport,
			Level: 2,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"complaints", []string{"read", "update", "assign", "close"}},
				{"reservations", []string{"read"}},
				{"users", []string{"read"}},
			},
		},
		{
			Role:  RoleAdminAgence,
			Level: 3,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"agencyProfile", []string{"read_own_agency", "update"}},
				{"users", []string{"create", "read", "update"}},
				{"voyages", []string{"create", "read", "update", "delete"}},
				{"reservations", []string{"create", "read", "update", "cancel"}},
				{"transactions", []string{"read"}},
				{"complaints", []string{"read"}},
			},
		},
		{
			Role:  RoleAgentAgence,
			Level: 4,
			Grants: []Grant{
				{"dashboard", []string{"read"}},
				{"agencyProfile", []string{}},
				{"voyages", []string{"read"}},
				{"reservations", []string{"create", "read", "update"}},
				{"complaints", []string{"create", "read"}},
			},
		},
	}
}
