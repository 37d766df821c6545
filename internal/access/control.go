package access

// Control answers authorization and visibility queries against a Table.
// It holds no mutable state and is safe for concurrent use.
//
// Every query is total: unknown roles, resources, or actions resolve to the
// most restrictive answer instead of an error.
type Control struct {
	table *Table
}

// New returns a Control over t. A nil table denies everything.
func New(t *Table) *Control {
	if t == nil {
		t = &Table{}
	}
	return &Control{table: t}
}

// Table returns the underlying configuration.
func (c *Control) Table() *Table {
	return c.table
}

// HasPermission reports whether role may perform action on resource.
func (c *Control) HasPermission(role Role, resource, action string) bool {
	set, ok := c.table.lookup(role, resource)
	if !ok {
		return false
	}
	_, ok = set[action]
	return ok
}

// CanAccess reports whether resource is configured for role at all, including
// resources whose action list is empty (visible but read-only sections).
func (c *Control) CanAccess(role Role, resource string) bool {
	_, ok := c.table.lookup(role, resource)
	return ok
}

// AccessibleResources returns the role's resources in configuration order.
// The result is empty, never nil, for unknown roles.
func (c *Control) AccessibleResources(role Role) []string {
	rp, ok := c.table.roles[role]
	if !ok {
		return []string{}
	}
	return append([]string{}, rp.order...)
}

// Actions returns the actions role holds on resource, or nil.
func (c *Control) Actions(role Role, resource string) []string {
	rp, ok := c.table.roles[role]
	if !ok {
		return nil
	}
	listed, ok := rp.listed[resource]
	if !ok {
		return nil
	}
	return append([]string{}, listed...)
}

// AccessLevel returns the role's precedence (1 is highest), or UnrankedLevel.
func (c *Control) AccessLevel(role Role) int {
	if lvl, ok := c.table.levels[role]; ok {
		return lvl
	}
	return UnrankedLevel
}

func (c *Control) IsSuperAdmin(role Role) bool { return IsSuperAdmin(role) }
func (c *Control) IsSousAdmin(role Role) bool  { return IsSousAdmin(role) }
func (c *Control) IsAgencyUser(role Role) bool { return IsAgencyUser(role) }
