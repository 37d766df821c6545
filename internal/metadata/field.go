package metadata

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"` // string, text, int, decimal, boolean, timestamp, role, password
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Auto      string   `json:"auto,omitempty"`       // "create" or "update"
	Column    string   `json:"column,omitempty"`     // storage column when it differs from Name
	WriteOnly bool     `json:"write_only,omitempty"` // accepted on writes, never selected
}

// ColumnName returns the database column backing the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// IsAuto returns true if the field is auto-managed by the engine.
func (f Field) IsAuto() bool {
	return f.Auto == "create" || f.Auto == "update"
}
