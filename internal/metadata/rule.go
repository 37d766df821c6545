package metadata

// RuleDefinition is the configuration of a single validation rule.
type RuleDefinition struct {
	// Field rules
	Field    string `json:"field,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`

	// Expression rules: the rule is violated when the expression is true.
	Expression string `json:"expression,omitempty"`

	// Shared
	Message    string `json:"message,omitempty"`
	StopOnFail bool   `json:"stop_on_fail,omitempty"`
}

// Rule is a form validation rule attached to a resource.
type Rule struct {
	Type       string         `json:"type"` // "field" or "expression"
	Definition RuleDefinition `json:"definition"`

	// Compiled holds the compiled expression program (set before serving, not serialized).
	Compiled any `json:"-"`
}
