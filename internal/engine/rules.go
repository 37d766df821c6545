package engine

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"ticketing-backend/internal/metadata"
)

// EvaluateRules runs the resource's rules against the record being written.
// fields holds the incoming values; old is the stored record (empty on create).
// Field rules run first, then expression rules see the merged record.
func EvaluateRules(res *metadata.Resource, fields map[string]any, old map[string]any, isCreate bool) []ErrorDetail {
	if len(res.Rules) == 0 {
		return nil
	}

	action := "update"
	if isCreate {
		action = "create"
	}

	var errs []ErrorDetail

	// 1. Field rules
	for _, r := range res.Rules {
		if r.Type != "field" {
			continue
		}
		if detail := EvaluateFieldRule(r, fields); detail != nil {
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				return errs
			}
		}
	}

	// 2. Expression rules
	env := ExpressionEnv(fields, old, action)
	for _, r := range res.Rules {
		if r.Type != "expression" {
			continue
		}
		if detail := EvaluateExpressionRule(r, env); detail != nil {
			errs = append(errs, *detail)
			if r.Definition.StopOnFail {
				return errs
			}
		}
	}

	return errs
}

// ExpressionEnv builds the expr environment: record is old overlaid with
// fields. Timestamps become RFC 3339 strings so they compare in order.
func ExpressionEnv(fields, old map[string]any, action string) map[string]any {
	record := make(map[string]any, len(old)+len(fields))
	for k, v := range old {
		record[k] = exprValue(v)
	}
	for k, v := range fields {
		record[k] = exprValue(v)
	}
	oldCopy := make(map[string]any, len(old))
	for k, v := range old {
		oldCopy[k] = exprValue(v)
	}
	return map[string]any{
		"record": record,
		"old":    oldCopy,
		"action": action,
	}
}

func exprValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return v
	}
}

// EvaluateFieldRule evaluates a single field rule against a record.
// Returns nil if the rule passes, or an ErrorDetail if it fails.
func EvaluateFieldRule(rule *metadata.Rule, record map[string]any) *ErrorDetail {
	fieldName := rule.Definition.Field
	op := rule.Definition.Operator
	msg := rule.Definition.Message
	if msg == "" {
		msg = fmt.Sprintf("field %s failed %s validation", fieldName, op)
	}

	val, exists := record[fieldName]
	if op == "required" {
		if !exists || val == nil || val == "" {
			return &ErrorDetail{Field: fieldName, Rule: "required", Message: msg}
		}
		return nil
	}
	if !exists || val == nil {
		return nil // absent fields are not checked by field rules (use "required" for that)
	}

	switch op {
	case "min":
		num, ok := toFloat64(val)
		if !ok {
			return nil
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		if num < threshold {
			return &ErrorDetail{Field: fieldName, Rule: "min", Message: msg}
		}

	case "max":
		num, ok := toFloat64(val)
		if !ok {
			return nil
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		if num > threshold {
			return &ErrorDetail{Field: fieldName, Rule: "max", Message: msg}
		}

	case "min_length":
		s, ok := val.(string)
		if !ok {
			return nil
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(s) < int(threshold) {
			return &ErrorDetail{Field: fieldName, Rule: "min_length", Message: msg}
		}

	case "max_length":
		s, ok := val.(string)
		if !ok {
			return nil
		}
		threshold, ok := toFloat64(rule.Definition.Value)
		if !ok {
			return nil
		}
		if utf8.RuneCountInString(s) > int(threshold) {
			return &ErrorDetail{Field: fieldName, Rule: "max_length", Message: msg}
		}

	case "pattern":
		s, ok := val.(string)
		if !ok {
			return nil
		}
		pattern, ok := rule.Definition.Value.(string)
		if !ok {
			return nil
		}
		matched, err := regexp.MatchString(pattern, s)
		if err != nil || !matched {
			return &ErrorDetail{Field: fieldName, Rule: "pattern", Message: msg}
		}

	case "enum":
		s := fmt.Sprintf("%v", val)
		if !inList(s, rule.Definition.Value) {
			return &ErrorDetail{Field: fieldName, Rule: "enum", Message: msg}
		}
	}

	return nil
}

func inList(s string, list any) bool {
	switch l := list.(type) {
	case []string:
		for _, item := range l {
			if item == s {
				return true
			}
		}
	case []any:
		for _, item := range l {
			if fmt.Sprintf("%v", item) == s {
				return true
			}
		}
	}
	return false
}

// CompileExpression compiles an expression string into an expr-lang program.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

// EvaluateExpressionRule evaluates a compiled expression rule against an environment.
// The env should contain: record, old, action.
// Returns nil if the rule passes (expression is false), or an ErrorDetail if violated (expression is true).
func EvaluateExpressionRule(rule *metadata.Rule, env map[string]any) *ErrorDetail {
	prog, ok := rule.Compiled.(*vm.Program)
	if !ok || prog == nil {
		compiled, err := CompileExpression(rule.Definition.Expression)
		if err != nil {
			return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
		}
		prog = compiled
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}

	violated, ok := result.(bool)
	if !ok {
		return nil
	}

	if violated {
		msg := rule.Definition.Message
		if msg == "" {
			msg = "Expression rule violated"
		}
		return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: msg}
	}

	return nil
}

// CompileResource compiles every expression rule and transition guard of res.
// Run once at startup so requests never write to the shared metadata.
func CompileResource(res *metadata.Resource) error {
	for _, r := range res.Rules {
		if r.Type != "expression" {
			continue
		}
		prog, err := CompileExpression(r.Definition.Expression)
		if err != nil {
			return fmt.Errorf("%s rule %q: %w", res.Name, r.Definition.Expression, err)
		}
		r.Compiled = prog
	}
	if res.StateMachine != nil {
		for i := range res.StateMachine.Transitions {
			t := &res.StateMachine.Transitions[i]
			if t.Guard == "" {
				continue
			}
			prog, err := CompileExpression(t.Guard)
			if err != nil {
				return fmt.Errorf("%s guard %s->%s: %w", res.Name, t.From, t.To, err)
			}
			t.CompiledGuard = prog
		}
	}
	return nil
}

// CompileRegistry compiles every resource in reg.
func CompileRegistry(reg *metadata.Registry) error {
	for _, res := range reg.All() {
		if err := CompileResource(res); err != nil {
			return err
		}
	}
	return nil
}

// toFloat64 converts numeric types to float64.
func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
