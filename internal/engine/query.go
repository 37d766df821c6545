package engine

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

type QueryPlan struct {
	Resource *metadata.Resource
	Filters  []WhereClause
	Sorts    []OrderClause
	Page     int
	PerPage  int
	Unpaged  bool // exports read every matching row
}

type WhereClause struct {
	Field    string
	Operator string
	Value    any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

type QueryResult struct {
	SQL    string
	Params []any
}

// ParseQueryParams parses Fiber query parameters into a QueryPlan.
func ParseQueryParams(c *fiber.Ctx, res *metadata.Resource, dialect store.Dialect) (*QueryPlan, error) {
	plan := &QueryPlan{
		Resource: res,
		Page:     1,
		PerPage:  defaultPerPage,
	}

	// Parse filters: filter[field]=val or filter[field.op]=val
	queries := c.Queries()
	keys := make([]string, 0, len(queries))
	for key := range queries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		inner := key[7 : len(key)-1] // extract between [ and ]
		field, op := parseFilterKey(inner)

		f := res.GetField(field)
		if f == nil || f.WriteOnly {
			return nil, &AppError{
				Code:    "UNKNOWN_FIELD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter field: %s", field),
			}
		}
		if !validOperator(op) {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Unknown filter operator: %s", op),
			}
		}

		coerced, err := coerceValue(f, queries[key], op, dialect)
		if err != nil {
			return nil, &AppError{
				Code:    "INVALID_PAYLOAD",
				Status:  400,
				Message: fmt.Sprintf("Invalid filter value for %s: %v", field, err),
			}
		}

		plan.Filters = append(plan.Filters, WhereClause{
			Field:    f.ColumnName(),
			Operator: op,
			Value:    coerced,
		})
	}

	// Parse sort: sort=-created_at,name
	if sortParam := c.Query("sort"); sortParam != "" {
		for _, part := range strings.Split(sortParam, ",") {
			part = strings.TrimSpace(part)
			dir := "ASC"
			field := part
			if strings.HasPrefix(part, "-") {
				dir = "DESC"
				field = part[1:]
			}
			f := res.GetField(field)
			if f == nil || f.WriteOnly {
				return nil, &AppError{
					Code:    "UNKNOWN_FIELD",
					Status:  400,
					Message: fmt.Sprintf("Unknown sort field: %s", field),
				}
			}
			plan.Sorts = append(plan.Sorts, OrderClause{Field: f.ColumnName(), Dir: dir})
		}
	}

	// Parse pagination
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			plan.Page = v
		}
	}
	if pp := c.Query("per_page"); pp != "" {
		if v, err := strconv.Atoi(pp); err == nil && v > 0 {
			plan.PerPage = min(v, maxPerPage)
		}
	}

	return plan, nil
}

// BuildSelectSQL builds a parameterized SELECT statement from the query plan.
func BuildSelectSQL(plan *QueryPlan, dialect store.Dialect) QueryResult {
	pb := dialect.NewParamBuilder()
	res := plan.Resource

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(res.ReadableColumns(), ", "), res.Table)
	if where := buildWhere(plan.Filters, pb, dialect); where != "" {
		sql += " WHERE " + where
	}

	sorts := plan.Sorts
	if len(sorts) == 0 {
		sorts = []OrderClause{{Field: res.PrimaryKey.Field, Dir: "ASC"}}
		if res.HasField("created_at") {
			sorts = append([]OrderClause{{Field: "created_at", Dir: "DESC"}}, sorts...)
		}
	}
	orderParts := make([]string, len(sorts))
	for i, s := range sorts {
		orderParts[i] = fmt.Sprintf("%s %s", s.Field, s.Dir)
	}
	sql += " ORDER BY " + strings.Join(orderParts, ", ")

	if !plan.Unpaged {
		limit := pb.Add(plan.PerPage)
		offset := pb.Add((plan.Page - 1) * plan.PerPage)
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds a COUNT query with the same filters as the select.
func BuildCountSQL(plan *QueryPlan, dialect store.Dialect) QueryResult {
	pb := dialect.NewParamBuilder()

	sql := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s", plan.Resource.Table)
	if where := buildWhere(plan.Filters, pb, dialect); where != "" {
		sql += " WHERE " + where
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

func buildWhere(filters []WhereClause, pb store.ParamBuilder, dialect store.Dialect) string {
	if len(filters) == 0 {
		return ""
	}
	clauses := make([]string, len(filters))
	for i, f := range filters {
		clauses[i] = buildWhereClause(f, pb, dialect)
	}
	return strings.Join(clauses, " AND ")
}

func buildWhereClause(f WhereClause, pb store.ParamBuilder, dialect store.Dialect) string {
	switch f.Operator {
	case "neq":
		return fmt.Sprintf("%s != %s", f.Field, pb.Add(f.Value))
	case "gt":
		return fmt.Sprintf("%s > %s", f.Field, pb.Add(f.Value))
	case "gte":
		return fmt.Sprintf("%s >= %s", f.Field, pb.Add(f.Value))
	case "lt":
		return fmt.Sprintf("%s < %s", f.Field, pb.Add(f.Value))
	case "lte":
		return fmt.Sprintf("%s <= %s", f.Field, pb.Add(f.Value))
	case "in":
		values, _ := f.Value.([]any)
		return dialect.InExpr(f.Field, pb, values)
	case "not_in":
		values, _ := f.Value.([]any)
		return dialect.NotInExpr(f.Field, pb, values)
	case "like":
		return fmt.Sprintf("%s LIKE %s", f.Field, pb.Add(f.Value))
	case "null":
		if b, _ := f.Value.(bool); b {
			return f.Field + " IS NULL"
		}
		return f.Field + " IS NOT NULL"
	default:
		return fmt.Sprintf("%s = %s", f.Field, pb.Add(f.Value))
	}
}

func validOperator(op string) bool {
	switch op {
	case "eq", "neq", "gt", "gte", "lt", "lte", "in", "not_in", "like", "null":
		return true
	}
	return false
}

// parseFilterKey splits "amount.gte" into ("amount", "gte") or "status" into ("status", "eq").
func parseFilterKey(key string) (string, string) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return key, "eq"
}

// coerceValue converts string query param values to appropriate Go types based on field metadata.
func coerceValue(field *metadata.Field, val string, op string, dialect store.Dialect) (any, error) {
	switch op {
	case "in", "not_in":
		parts := strings.Split(val, ",")
		coerced := make([]any, len(parts))
		for i, p := range parts {
			v, err := coerceSingleValue(field, strings.TrimSpace(p), dialect)
			if err != nil {
				return nil, err
			}
			coerced[i] = v
		}
		return coerced, nil
	case "null":
		return strconv.ParseBool(val)
	case "like":
		return val, nil
	}

	return coerceSingleValue(field, val, dialect)
}

func coerceSingleValue(field *metadata.Field, val string, dialect store.Dialect) (any, error) {
	switch field.Type {
	case "int":
		return strconv.Atoi(val)
	case "decimal":
		return strconv.ParseFloat(val, 64)
	case "boolean":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return nil, err
		}
		if dialect.NeedsBoolFix() {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return b, nil
	case "role":
		if role, ok := access.ParseRole(val); ok {
			return int(role), nil
		}
		return strconv.Atoi(val)
	case "timestamp":
		t, err := parseTimestamp(val)
		if err != nil {
			return nil, err
		}
		return dialect.TimeParam(t), nil
	default:
		return val, nil
	}
}

// parseTimestamp accepts RFC 3339 timestamps and plain dates.
func parseTimestamp(val string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, val); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", val)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 timestamp or date, got %q", val)
	}
	return t, nil
}
