package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"ticketing-backend/internal/metadata"
)

// Bootstrap creates the system tables and one table per catalog resource.
func (s *Store) Bootstrap(ctx context.Context, resources []*metadata.Resource) error {
	for _, stmt := range splitStatements(s.Dialect.SystemTablesSQL()) {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap system tables: %w", err)
		}
	}
	if err := NewMigrator(s).MigrateAll(ctx, resources); err != nil {
		return fmt.Errorf("bootstrap resource tables: %w", err)
	}
	return nil
}

func splitStatements(sql string) []string {
	var stmts []string
	for _, part := range strings.Split(sql, ";") {
		if p := strings.TrimSpace(part); p != "" {
			stmts = append(stmts, p)
		}
	}
	return stmts
}

// InsertRow inserts data into table. Keys are column names; time.Time values
// are encoded with the dialect's TimeParam.
func (s *Store) InsertRow(ctx context.Context, q Querier, table string, data map[string]any) error {
	cols := make([]string, 0, len(data))
	for col := range data {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	pb := s.Dialect.NewParamBuilder()
	phs := make([]string, len(cols))
	for i, col := range cols {
		phs[i] = pb.Add(s.Param(data[col]))
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := q.ExecContext(ctx, sql, pb.Params()...); err != nil {
		return s.Dialect.MapError(err)
	}
	return nil
}

// Param converts a Go value into the form the driver stores.
func (s *Store) Param(v any) any {
	switch val := v.(type) {
	case time.Time:
		return s.Dialect.TimeParam(val)
	case *time.Time:
		if val == nil {
			return nil
		}
		return s.Dialect.TimeParam(*val)
	case bool:
		if s.Dialect.NeedsBoolFix() {
			if val {
				return 1
			}
			return 0
		}
		return val
	default:
		return v
	}
}

// Count returns the number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
