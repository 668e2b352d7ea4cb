package database

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultHexCode is used when a color is created without a hex code.
const DefaultHexCode = "#000000"

var hexCodePattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ReferenceColor is a named ink color.
type ReferenceColor struct {
	ID      int64
	Name    string
	HexCode string
}

// ListColors returns all reference colors ordered by name
func (db *DB) ListColors(ctx context.Context) ([]ReferenceColor, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name, hex_code FROM reference_colors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list colors: %w", err)
	}
	defer rows.Close()

	var list []ReferenceColor
	for rows.Next() {
		var c ReferenceColor
		var hex sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &hex); err != nil {
			return nil, fmt.Errorf("failed to scan color: %w", err)
		}
		c.HexCode = nullStringValue(hex)
		list = append(list, c)
	}
	return list, rows.Err()
}

// NormalizeHexCode validates a #RRGGBB code and upper-cases it.
func NormalizeHexCode(hex string) (string, error) {
	hex = strings.TrimSpace(hex)
	if hex == "" {
		return DefaultHexCode, nil
	}
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if !hexCodePattern.MatchString(hex) {
		return "", fmt.Errorf("%w: %q is not a #RRGGBB color", ErrInvalidInput, hex)
	}
	return strings.ToUpper(hex), nil
}

// CreateColor inserts a reference color and returns its id
func (db *DB) CreateColor(ctx context.Context, name, hex string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: color name is required", ErrInvalidInput)
	}
	hex, err := NormalizeHexCode(hex)
	if err != nil {
		return 0, err
	}

	id, err := db.insert(ctx, db, "INSERT INTO reference_colors (name, hex_code) VALUES (?, ?)", name, hex)
	if err != nil {
		return 0, fmt.Errorf("failed to create color: %w", err)
	}

	log.Info().Int64("id", id).Str("name", name).Str("hex", hex).Msg("Color created")
	return id, nil
}

// DeleteColor removes a reference color. Colors still used by cartridges
// are rejected by the foreign key.
func (db *DB) DeleteColor(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, TableReferenceColors, id)
}

// deleteByID deletes one row of an inventory table by surrogate key.
func (db *DB) deleteByID(ctx context.Context, table string, id int64) error {
	n, err := db.ExecuteNamed(ctx,
		"DELETE FROM "+db.Dialect().QuoteIdent(table)+" WHERE id = :id", map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	log.Info().Str("table", table).Int64("id", id).Msg("Row deleted")
	return nil
}
