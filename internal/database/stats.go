package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats holds row counts of the inventory tables.
type Stats struct {
	Manufacturers int
	PrinterModels int
	Colors        int
	Capacities    int
	Cartridges    int
	Associations  int
}

// GetStats counts the rows of every inventory table in one statement
func (db *DB) GetStats(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM manufacturers),
			(SELECT COUNT(*) FROM printer_models),
			(SELECT COUNT(*) FROM reference_colors),
			(SELECT COUNT(*) FROM capacities),
			(SELECT COUNT(*) FROM cartridges),
			(SELECT COUNT(*) FROM cartridge_capacities)
	`).Scan(&s.Manufacturers, &s.PrinterModels, &s.Colors, &s.Capacities, &s.Cartridges, &s.Associations)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return s, nil
}

// ColorCount is the number of cartridges of one color.
type ColorCount struct {
	Color   string
	HexCode string
	Count   int
}

// CartridgesByColor returns cartridge counts per color, largest first
func (db *DB) CartridgesByColor(ctx context.Context) ([]ColorCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT rc.name, rc.hex_code, COUNT(c.id) AS qty
		FROM cartridges c
		JOIN reference_colors rc ON c.color_id = rc.id
		GROUP BY rc.name, rc.hex_code
		ORDER BY qty DESC, rc.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cartridges by color: %w", err)
	}
	defer rows.Close()

	var list []ColorCount
	for rows.Next() {
		var cc ColorCount
		var hex sql.NullString
		if err := rows.Scan(&cc.Color, &hex, &cc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan color count: %w", err)
		}
		cc.HexCode = nullStringValue(hex)
		list = append(list, cc)
	}
	return list, rows.Err()
}
