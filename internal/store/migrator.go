package store

import (
	"context"
	"fmt"
	"strings"

	"ticketing-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// Migrate ensures the table matches the resource metadata.
// Creates the table if it doesn't exist, or adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, res *metadata.Resource) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, res.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}

	if !exists {
		return m.createTable(ctx, res)
	}

	return m.alterTable(ctx, res)
}

// MigrateAll migrates every resource in order.
func (m *Migrator) MigrateAll(ctx context.Context, resources []*metadata.Resource) error {
	for _, res := range resources {
		if err := m.Migrate(ctx, res); err != nil {
			return fmt.Errorf("migrate %s: %w", res.Name, err)
		}
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, res *metadata.Resource) error {
	cols := make([]string, 0, len(res.Fields))
	for i := range res.Fields {
		cols = append(cols, m.buildColumnDef(res, &res.Fields[i]))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", res.Table, strings.Join(cols, ",\n  "))

	if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", res.Table, err)
	}

	if err := m.createIndexes(ctx, res); err != nil {
		return fmt.Errorf("create indexes for %s: %w", res.Table, err)
	}

	return nil
}

func (m *Migrator) alterTable(ctx context.Context, res *metadata.Resource) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, res.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", res.Table, err)
	}

	for _, f := range res.Fields {
		col := f.ColumnName()
		if _, ok := existing[col]; ok {
			continue
		}
		// New columns are always added nullable so existing rows stay valid.
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", res.Table, col, m.store.Dialect.ColumnType(f.Type))
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", res.Table, col, err)
		}
	}

	if err := m.createIndexes(ctx, res); err != nil {
		return fmt.Errorf("create indexes for %s: %w", res.Table, err)
	}

	return nil
}

func (m *Migrator) buildColumnDef(res *metadata.Resource, f *metadata.Field) string {
	col := f.ColumnName() + " " + m.store.Dialect.ColumnType(f.Type)

	if f.Name == res.PrimaryKey.Field {
		return col + " PRIMARY KEY"
	}

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	if f.Default != nil {
		col += " DEFAULT " + m.defaultLiteral(f.Default)
	}

	return col
}

func (m *Migrator) defaultLiteral(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	case bool:
		if m.store.Dialect.Name() == "sqlite" {
			if val {
				return "1"
			}
			return "0"
		}
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (m *Migrator) createIndexes(ctx context.Context, res *metadata.Resource) error {
	for _, f := range res.Fields {
		if !f.Unique {
			continue
		}
		sql := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			res.Table, f.ColumnName(), res.Table, f.ColumnName())
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", res.Table, f.Name, err)
		}
	}

	if res.AgencyScoped && res.HasField(metadata.AgencyField) {
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			res.Table, metadata.AgencyField, res.Table, metadata.AgencyField)
		if _, err := m.store.DB.ExecContext(ctx, sql); err != nil {
			return fmt.Errorf("create agency index on %s: %w", res.Table, err)
		}
	}

	return nil
}
