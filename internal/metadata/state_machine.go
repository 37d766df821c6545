package metadata

import "encoding/json"

// TransitionAction is a side effect applied to the record during a transition.
type TransitionAction struct {
	Type  string `json:"type"`            // "set_field"
	Field string `json:"field,omitempty"` // for set_field
	Value any    `json:"value,omitempty"` // "now" = current timestamp, "$user" = acting user id
}

// TransitionFrom handles both string and []string for the "from" field.
type TransitionFrom []string

func (t *TransitionFrom) UnmarshalJSON(data []byte) error {
	// Try string first
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = []string{single}
		return nil
	}
	// Try array
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*t = arr
	return nil
}

func (t TransitionFrom) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]string(t))
}

// Transition represents a single allowed state change. Permission names the
// action the caller must hold on the resource to perform it.
type Transition struct {
	From       TransitionFrom     `json:"from"`
	To         string             `json:"to"`
	Permission string             `json:"permission"`
	Guard      string             `json:"guard,omitempty"`
	Actions    []TransitionAction `json:"actions,omitempty"`

	// CompiledGuard holds the compiled guard expression (not serialized).
	CompiledGuard any `json:"-"`
}

// StateMachine governs a status field of a resource.
type StateMachine struct {
	Field       string       `json:"field"` // the state field (e.g., "status")
	Initial     string       `json:"initial"`
	Transitions []Transition `json:"transitions"`
}

// States returns every state mentioned by the machine, initial first.
func (sm *StateMachine) States() []string {
	seen := map[string]bool{}
	var states []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			states = append(states, s)
		}
	}
	add(sm.Initial)
	for _, t := range sm.Transitions {
		for _, f := range t.From {
			add(f)
		}
		add(t.To)
	}
	return states
}
