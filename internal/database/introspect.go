package database

import (
	"context"
	"fmt"
	"slices"
)

// Column describes one column of a table.
type Column struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// ListTables returns the base tables of the connected database, sorted.
func (db *DB) ListTables(ctx context.Context) ([]string, error) {
	var query string
	switch db.Dialect() {
	case MySQL:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`
	case Postgres:
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableColumns describes the columns of a table in declaration order.
func (db *DB) TableColumns(ctx context.Context, table string) ([]Column, error) {
	if err := db.requireTable(ctx, table); err != nil {
		return nil, err
	}

	var query string
	switch db.Dialect() {
	case MySQL:
		query = `SELECT column_name, column_type,
				CASE WHEN is_nullable = 'YES' THEN 1 ELSE 0 END,
				CASE WHEN column_key = 'PRI' THEN 1 ELSE 0 END
			FROM information_schema.columns
			WHERE table_schema = DATABASE() AND table_name = ?
			ORDER BY ordinal_position`
	case Postgres:
		query = `SELECT c.column_name, c.data_type,
				CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END,
				CASE WHEN EXISTS (
					SELECT 1 FROM information_schema.table_constraints tc
					JOIN information_schema.key_column_usage k
						ON tc.constraint_name = k.constraint_name AND tc.table_schema = k.table_schema
					WHERE tc.constraint_type = 'PRIMARY KEY'
						AND tc.table_schema = c.table_schema
						AND tc.table_name = c.table_name
						AND k.column_name = c.column_name
				) THEN 1 ELSE 0 END
			FROM information_schema.columns c
			WHERE c.table_schema = current_schema() AND c.table_name = ?
			ORDER BY c.ordinal_position`
	default:
		query = `SELECT name, type,
				CASE WHEN "notnull" = 0 THEN 1 ELSE 0 END,
				CASE WHEN pk > 0 THEN 1 ELSE 0 END
			FROM pragma_table_info(?)
			ORDER BY cid`
	}

	rows, err := db.QueryContext(ctx, db.Dialect().Rebind(query), table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var nullable, pk int
		if err := rows.Scan(&c.Name, &c.Type, &nullable, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		c.Nullable = nullable == 1
		c.PrimaryKey = pk == 1
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// SampleRows returns up to limit rows of a table.
func (db *DB) SampleRows(ctx context.Context, table string, limit int) (*ResultSet, error) {
	if err := db.requireTable(ctx, table); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	return db.Fetch(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", db.Dialect().QuoteIdent(table), limit))
}

// requireTable guards identifier interpolation: only existing tables pass.
func (db *DB) requireTable(ctx context.Context, table string) error {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(tables, table) {
		return fmt.Errorf("%w: unknown table %q", ErrNotFound, table)
	}
	return nil
}
