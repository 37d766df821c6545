package engine

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

// WritePlan describes a single create or update.
type WritePlan struct {
	IsCreate bool
	Resource *metadata.Resource
	Fields   map[string]any // keyed by field name, values already coerced
	ID       any            // nil for create, set for update
	Session  *metadata.Session
}

// PlanWrite builds a WritePlan from the request body without executing any SQL.
func PlanWrite(res *metadata.Resource, body map[string]any, existingID any, session *metadata.Session) (*WritePlan, []ErrorDetail) {
	isCreate := existingID == nil

	fields, errs := ValidateFields(res, body, isCreate)
	if len(errs) > 0 {
		return nil, errs
	}

	return &WritePlan{
		IsCreate: isCreate,
		Resource: res,
		Fields:   fields,
		ID:       existingID,
		Session:  session,
	}, nil
}

// ValidateFields checks the payload against the resource's field metadata:
// unknown keys, types, enums, and required fields on create. Missing fields
// with a default get it on create.
func ValidateFields(res *metadata.Resource, body map[string]any, isCreate bool) (map[string]any, []ErrorDetail) {
	fields := make(map[string]any, len(body))
	var errs []ErrorDetail

	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		f := res.GetField(key)
		if f == nil || f.IsAuto() || (key == res.PrimaryKey.Field && (res.PrimaryKey.Generated || !isCreate)) {
			errs = append(errs, ErrorDetail{
				Field:   key,
				Rule:    "unknown",
				Message: fmt.Sprintf("Unknown or read-only field: %s", key),
			})
			continue
		}

		raw := body[key]
		if raw == nil {
			if f.Required && !f.Nullable {
				errs = append(errs, ErrorDetail{Field: key, Rule: "required", Message: fmt.Sprintf("%s is required", key)})
				continue
			}
			fields[key] = nil
			continue
		}

		val, err := coerceField(f, raw)
		if err != nil {
			errs = append(errs, ErrorDetail{Field: key, Rule: "type", Message: err.Error()})
			continue
		}
		if len(f.Enum) > 0 {
			if s, _ := val.(string); !inList(s, f.Enum) {
				errs = append(errs, ErrorDetail{
					Field:   key,
					Rule:    "enum",
					Message: fmt.Sprintf("%s must be one of: %s", key, strings.Join(f.Enum, ", ")),
				})
				continue
			}
		}
		fields[key] = val
	}

	if isCreate {
		for _, f := range res.WritableFields() {
			if _, ok := fields[f.Name]; ok {
				continue
			}
			if f.Default != nil {
				fields[f.Name] = f.Default
				continue
			}
			if f.Required && !f.Nullable {
				errs = append(errs, ErrorDetail{Field: f.Name, Rule: "required", Message: fmt.Sprintf("%s is required", f.Name)})
			}
		}
	}

	return fields, errs
}

func coerceField(f *metadata.Field, raw any) (any, error) {
	switch f.Type {
	case "string", "text", "password":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be a string", f.Name)
		}
		return s, nil
	case "int":
		n, ok := raw.(float64)
		if !ok || n != math.Trunc(n) {
			return nil, fmt.Errorf("%s must be an integer", f.Name)
		}
		return int64(n), nil
	case "decimal":
		n, ok := raw.(float64)
		if !ok {
			return nil, fmt.Errorf("%s must be a number", f.Name)
		}
		return n, nil
	case "boolean":
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("%s must be a boolean", f.Name)
		}
		return b, nil
	case "timestamp":
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", f.Name)
		}
		t, err := parseTimestamp(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", f.Name, err)
		}
		return t, nil
	case "role":
		var role access.Role
		switch v := raw.(type) {
		case float64:
			role = access.Role(int(v))
			if float64(role) != v {
				role = 0
			}
		case string:
			role, _ = access.ParseRole(v)
		}
		if !role.Valid() {
			return nil, fmt.Errorf("%s must be a known role", f.Name)
		}
		return int64(role), nil
	default:
		return raw, nil
	}
}

// ExecuteWritePlan runs rules and state checks, then writes the row inside a
// single transaction. Returns the created/updated record.
func ExecuteWritePlan(ctx context.Context, s *store.Store, plan *WritePlan) (map[string]any, error) {
	res := plan.Resource

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	old := map[string]any{}
	if !plan.IsCreate {
		old, err = fetchRecord(ctx, tx, res, plan.ID, s.Dialect)
		if err != nil {
			return nil, err
		}
	}

	if errs := EvaluateRules(res, plan.Fields, old, plan.IsCreate); len(errs) > 0 {
		return nil, ValidationError(errs)
	}

	if sm := res.StateMachine; sm != nil {
		var smErrs []ErrorDetail
		if plan.IsCreate {
			smErrs = checkInitialState(sm, plan.Fields)
		} else {
			smErrs = rejectDirectStateChange(res, plan.Fields, old)
		}
		if len(smErrs) > 0 {
			return nil, ValidationError(smErrs)
		}
	}

	if err := hashPasswords(res, plan.Fields); err != nil {
		return nil, err
	}

	now := time.Now().UTC().Truncate(time.Second)
	columns := make(map[string]any, len(plan.Fields)+3)
	for name, v := range plan.Fields {
		columns[res.GetField(name).ColumnName()] = v
	}
	for _, f := range res.Fields {
		switch {
		case f.Auto == "create" && plan.IsCreate, f.Auto == "update":
			columns[f.ColumnName()] = now
		}
	}

	var id any
	if plan.IsCreate {
		if res.PrimaryKey.Generated {
			columns[res.PrimaryKey.Field] = uuid.NewString()
		}
		id = columns[res.PrimaryKey.Field]
		if err := s.InsertRow(ctx, tx, res.Table, columns); err != nil {
			return nil, fmt.Errorf("insert %s: %w", res.Table, err)
		}
	} else {
		id = plan.ID
		sql, params := BuildUpdateSQL(res, plan.ID, columns, s)
		if _, err := store.Exec(ctx, tx, sql, params...); err != nil {
			return nil, fmt.Errorf("update %s: %w", res.Table, s.Dialect.MapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return fetchRecord(ctx, s.DB, res, id, s.Dialect)
}

// hashPasswords replaces plaintext password fields with their bcrypt hash.
func hashPasswords(res *metadata.Resource, fields map[string]any) error {
	for _, f := range res.Fields {
		if f.Type != "password" {
			continue
		}
		plain, ok := fields[f.Name].(string)
		if !ok {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		fields[f.Name] = string(hash)
	}
	return nil
}

// BuildUpdateSQL builds an UPDATE for the given column values.
func BuildUpdateSQL(res *metadata.Resource, id any, columns map[string]any, s *store.Store) (string, []any) {
	cols := make([]string, 0, len(columns))
	for col := range columns {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	pb := s.Dialect.NewParamBuilder()
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = fmt.Sprintf("%s = %s", col, pb.Add(s.Param(columns[col])))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		res.Table, strings.Join(sets, ", "), res.PrimaryKey.Field, pb.Add(id))
	return sql, pb.Params()
}

// BuildDeleteSQL builds a DELETE by primary key.
func BuildDeleteSQL(res *metadata.Resource, id any, dialect store.Dialect) (string, []any) {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", res.Table, res.PrimaryKey.Field, dialect.Placeholder(1)), []any{id}
}

func fetchRecord(ctx context.Context, q store.Querier, res *metadata.Resource, id any, dialect store.Dialect) (map[string]any, error) {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(res.ReadableColumns(), ", "), res.Table, res.PrimaryKey.Field, dialect.Placeholder(1))

	row, err := store.QueryRow(ctx, q, sql, id)
	if err != nil {
		return nil, err
	}
	if dialect.NeedsBoolFix() {
		store.NormalizeBooleans([]map[string]any{row}, res.BoolColumns())
	}
	return row, nil
}
