package metadata

// Resource describes a table-backed section of the dashboard. Its Name is the
// key used in the permission table.
type Resource struct {
	Name         string        `json:"name"`
	Label        string        `json:"label"`
	Table        string        `json:"table"`
	PrimaryKey   PrimaryKey    `json:"primary_key"`
	AgencyScoped bool          `json:"agency_scoped"` // rows carry agency_id; agency users only see their own
	Fields       []Field       `json:"fields"`
	Rules        []*Rule       `json:"rules,omitempty"`
	StateMachine *StateMachine `json:"state_machine,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Generated bool   `json:"generated"`
}

// AgencyField is the column agency-scoped resources are filtered on.
const AgencyField = "agency_id"

// GetField returns a pointer to the field with the given name, or nil.
func (r *Resource) GetField(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the resource has a field with the given name.
func (r *Resource) HasField(name string) bool {
	return r.GetField(name) != nil
}

// ReadableColumns returns the columns selected for API responses.
// Write-only fields never leave the database.
func (r *Resource) ReadableColumns() []string {
	cols := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		if f.WriteOnly {
			continue
		}
		cols = append(cols, f.ColumnName())
	}
	return cols
}

// WritableFields returns fields that can be set by the client on create.
// Excludes generated PKs and auto-timestamp fields.
func (r *Resource) WritableFields() []Field {
	var fields []Field
	for _, f := range r.Fields {
		if f.Name == r.PrimaryKey.Field && r.PrimaryKey.Generated {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// UpdatableFields returns fields that can be set on UPDATE.
// Excludes the PK and auto fields.
func (r *Resource) UpdatableFields() []Field {
	var fields []Field
	for _, f := range r.Fields {
		if f.Name == r.PrimaryKey.Field {
			continue
		}
		if f.IsAuto() {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// BoolColumns lists boolean columns, used to normalize SQLite integers.
func (r *Resource) BoolColumns() []string {
	var cols []string
	for _, f := range r.Fields {
		if f.Type == "boolean" {
			cols = append(cols, f.ColumnName())
		}
	}
	return cols
}
