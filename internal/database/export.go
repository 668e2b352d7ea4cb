package database

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// BackupFileName returns the download name of a backup taken at t.
func BackupFileName(t time.Time) string {
	return "backup_cartridges_" + t.Format("20060102_150405") + ".sql"
}

// WriteBackup writes every table as a script of literal INSERT statements.
// Inventory tables come first in dependency order so the script can be
// replayed against an empty schema.
func (db *DB) WriteBackup(ctx context.Context, w io.Writer, now time.Time) error {
	tables, err := db.ListTables(ctx)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "-- Backup of the cartridge inventory\n")
	fmt.Fprintf(bw, "-- Date: %s\n", now.Format("02/01/2006 15:04:05"))
	fmt.Fprintf(bw, "-- Dialect: %s\n\n", db.Dialect())

	for _, table := range backupOrder(tables) {
		set, err := db.Fetch(ctx, "SELECT * FROM "+db.Dialect().QuoteIdent(table))
		if err != nil {
			return fmt.Errorf("failed to read table %s: %w", table, err)
		}

		if set.Len() == 0 {
			continue
		}

		fmt.Fprintf(bw, "-- Data for table: %s\n", table)
		cols := strings.Join(set.Columns, ", ")
		for _, row := range set.Rows {
			vals := make([]string, len(row))
			for i, v := range row {
				vals[i] = SQLLiteral(v)
			}
			fmt.Fprintf(bw, "INSERT INTO %s (%s) VALUES (%s);\n", table, cols, strings.Join(vals, ", "))
		}
		bw.WriteString("\n")
	}

	return bw.Flush()
}

// backupOrder puts inventory tables first, parents before children, then
// every other table alphabetically.
func backupOrder(tables []string) []string {
	ordered := make([]string, 0, len(tables))
	for _, t := range InventoryTables {
		if slices.Contains(tables, t) {
			ordered = append(ordered, t)
		}
	}
	for _, t := range tables {
		if !slices.Contains(InventoryTables, t) {
			ordered = append(ordered, t)
		}
	}
	return ordered
}

// SQLLiteral renders a value as a SQL literal: NULL for nil, bare numbers,
// and single-quoted strings with embedded quotes doubled.
func SQLLiteral(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case []byte:
		return quoteString(string(val))
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(val)
	case float32:
		return formatFloat(float64(val))
	case float64:
		return formatFloat(val)
	case time.Time:
		return quoteString(val.Format("2006-01-02 15:04:05"))
	default:
		return quoteString(fmt.Sprint(val))
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "NULL"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// RenderSQL substitutes ? placeholders with literal values, for display.
// Question marks inside quoted literals are kept.
func RenderSQL(query string, args []any) string {
	var (
		b     strings.Builder
		quote rune
		n     int
	)
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?' && n < len(args):
			b.WriteString(SQLLiteral(args[n]))
			n++
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
