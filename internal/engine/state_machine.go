package engine

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"ticketing-backend/internal/metadata"
)

// checkInitialState fills in the initial state on create, or rejects any
// other state supplied by the client.
func checkInitialState(sm *metadata.StateMachine, fields map[string]any) []ErrorDetail {
	v, ok := fields[sm.Field]
	if !ok || v == nil || v == "" {
		fields[sm.Field] = sm.Initial
		return nil
	}
	if s := fmt.Sprintf("%v", v); s != sm.Initial {
		return []ErrorDetail{{
			Field:   sm.Field,
			Rule:    "state_machine",
			Message: fmt.Sprintf("Initial state must be '%s', got '%s'", sm.Initial, s),
		}}
	}
	return nil
}

// rejectDirectStateChange refuses updates that move the state field outside
// the transition endpoint.
func rejectDirectStateChange(res *metadata.Resource, fields, old map[string]any) []ErrorDetail {
	sm := res.StateMachine
	v, ok := fields[sm.Field]
	if !ok {
		return nil
	}
	if fmt.Sprintf("%v", v) == fmt.Sprintf("%v", old[sm.Field]) {
		delete(fields, sm.Field)
		return nil
	}
	return []ErrorDetail{{
		Field:   sm.Field,
		Rule:    "state_machine",
		Message: fmt.Sprintf("%s changes go through POST /api/%s/:id/transition", sm.Field, res.Name),
	}}
}

// FindTransition finds a matching transition for the given old and new state.
func FindTransition(sm *metadata.StateMachine, oldState, newState string) *metadata.Transition {
	for i := range sm.Transitions {
		t := &sm.Transitions[i]
		if t.To != newState {
			continue
		}
		for _, from := range t.From {
			if from == oldState {
				return t
			}
		}
	}
	return nil
}

// AvailableTransitions lists the transitions leaving state.
func AvailableTransitions(sm *metadata.StateMachine, state string) []metadata.Transition {
	var out []metadata.Transition
	for _, t := range sm.Transitions {
		for _, from := range t.From {
			if from == state {
				out = append(out, t)
				break
			}
		}
	}
	return out
}

// EvaluateGuard runs a guard expression.
// Returns true if the guard BLOCKS the transition (expression evaluates to false).
func EvaluateGuard(transition *metadata.Transition, env map[string]any) (bool, error) {
	if transition.Guard == "" {
		return false, nil
	}
	prog, ok := transition.CompiledGuard.(*vm.Program)
	if !ok || prog == nil {
		compiled, err := expr.Compile(transition.Guard, expr.AsBool())
		if err != nil {
			return false, fmt.Errorf("compile guard: %w", err)
		}
		prog = compiled
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false, fmt.Errorf("evaluate guard: %w", err)
	}

	allowed, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("guard did not return bool")
	}

	return !allowed, nil
}

// ExecuteActions runs transition actions, mutating fields for set_field actions.
// "now" resolves to now and "$user" to the acting user's id.
func ExecuteActions(transition *metadata.Transition, fields map[string]any, userID string, now time.Time) {
	for _, action := range transition.Actions {
		if action.Type != "set_field" {
			continue
		}
		val := action.Value
		switch val {
		case "now":
			val = now.UTC()
		case "$user":
			val = userID
		}
		fields[action.Field] = val
	}
}
