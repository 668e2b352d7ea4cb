package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
)

// ResultSet is a fully materialized tabular result.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Strings renders every cell as text, NULL becoming "".
func (rs *ResultSet) Strings() [][]string {
	if rs == nil {
		return [][]string{}
	}
	out := make([][]string, 0, len(rs.Rows))
	for _, row := range rs.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		out = append(out, cells)
	}
	return out
}

// Result is the outcome of Run: either a row set or an affected-row count.
type Result struct {
	Set          *ResultSet
	RowsAffected int64
	Elapsed      time.Duration
}

// Fetch executes a statement and materializes all rows with column names.
func (db *DB) Fetch(ctx context.Context, query string, args ...any) (*ResultSet, error) {
	rows, err := db.QueryxContext(ctx, db.bind(query, args), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	set := &ResultSet{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			values[i] = normalizeValue(v, types[i])
		}
		set.Rows = append(set.Rows, values)
	}

	return set, rows.Err()
}

// Execute runs a statement and returns the number of affected rows.
func (db *DB) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := db.ExecContext(ctx, db.bind(query, args), args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Some drivers cannot report a count for DDL
		return 0, nil
	}
	return n, nil
}

// FetchNamed is Fetch with :name placeholders.
func (db *DB) FetchNamed(ctx context.Context, query string, params map[string]any) (*ResultSet, error) {
	q, args, err := BindNamed(query, params)
	if err != nil {
		return nil, err
	}
	return db.Fetch(ctx, q, args...)
}

// ExecuteNamed is Execute with :name placeholders.
func (db *DB) ExecuteNamed(ctx context.Context, query string, params map[string]any) (int64, error) {
	q, args, err := BindNamed(query, params)
	if err != nil {
		return 0, err
	}
	return db.Execute(ctx, q, args...)
}

// Run executes a statement, returning rows when wantRows is set and the
// affected-row count otherwise.
func (db *DB) Run(ctx context.Context, query string, args []any, wantRows bool) (*Result, error) {
	start := time.Now()
	if wantRows {
		set, err := db.Fetch(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &Result{Set: set, Elapsed: time.Since(start)}, nil
	}

	n, err := db.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &Result{RowsAffected: n, Elapsed: time.Since(start)}, nil
}

// bind rebinds placeholders only for parameterized statements so raw
// console SQL reaches the engine untouched.
func (db *DB) bind(query string, args []any) string {
	if len(args) == 0 {
		return query
	}
	return db.Rebind(query)
}

// normalizeValue turns driver values into display-friendly Go values.
// The MySQL text protocol returns numbers as []byte; the declared column
// type is used to turn them back into numbers.
func normalizeValue(v any, ct *sql.ColumnType) any {
	switch val := v.(type) {
	case []byte:
		s := string(val)
		if ct != nil && isNumericType(ct.DatabaseTypeName()) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f
			}
		}
		return s
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return v
	}
}

func isNumericType(name string) bool {
	switch strings.ToUpper(name) {
	case "INT", "INTEGER", "TINYINT", "SMALLINT", "MEDIUMINT", "BIGINT",
		"UNSIGNED INT", "UNSIGNED BIGINT", "UNSIGNED TINYINT", "UNSIGNED SMALLINT", "UNSIGNED MEDIUMINT",
		"DECIMAL", "NUMERIC", "FLOAT", "DOUBLE", "REAL", "INT2", "INT4", "INT8", "FLOAT4", "FLOAT8":
		return true
	}
	return false
}

// readKeywords start statements that return rows.
var readKeywords = []string{"SELECT", "WITH", "SHOW", "PRAGMA", "EXPLAIN", "DESCRIBE", "DESC", "VALUES"}

// IsReadStatement reports whether a raw statement returns rows, judged by
// its leading keyword.
func IsReadStatement(query string) bool {
	first := strings.ToUpper(leadingKeyword(query))
	for _, kw := range readKeywords {
		if first == kw {
			return true
		}
	}
	return false
}

func leadingKeyword(query string) string {
	q := strings.TrimSpace(query)
	for strings.HasPrefix(q, "--") || strings.HasPrefix(q, "/*") {
		if strings.HasPrefix(q, "--") {
			if i := strings.IndexByte(q, '\n'); i >= 0 {
				q = strings.TrimSpace(q[i+1:])
				continue
			}
			return ""
		}
		if i := strings.Index(q, "*/"); i >= 0 {
			q = strings.TrimSpace(q[i+2:])
			continue
		}
		return ""
	}
	q = strings.TrimLeft(q, "(")
	end := strings.IndexFunc(q, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if end < 0 {
		return q
	}
	return q[:end]
}

// BindNamed rewrites :name placeholders to positional ? placeholders and
// returns the matching argument list. A literal colon is written as "::".
func BindNamed(query string, params map[string]any) (string, []any, error) {
	q, args, err := sqlx.Named(query, params)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return q, args, nil
}
