package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Reference rows inserted by SeedReferenceData.
var (
	SeedManufacturers = []string{"Epson", "HP", "Canon", "Brother"}
	SeedColors        = []ReferenceColor{
		{Name: "Black", HexCode: "#000000"},
		{Name: "Cyan", HexCode: "#00FFFF"},
		{Name: "Magenta", HexCode: "#FF00FF"},
		{Name: "Yellow", HexCode: "#FFFF00"},
	}
	SeedCapacities = []int{100, 250, 500, 1000}
)

// SeedResult summarizes a SeedReferenceData run.
type SeedResult struct {
	Inserted int
	Skipped  int
	Errors   []error
}

func (r SeedResult) String() string {
	return fmt.Sprintf("%d inserted, %d already present, %d failed", r.Inserted, r.Skipped, len(r.Errors))
}

// SeedReferenceData inserts the default manufacturers, colors and
// capacities. A row is skipped when its natural value already exists, so
// repeated runs leave the tables unchanged. Failures are logged and
// collected; the run always continues with the next row.
func (db *DB) SeedReferenceData(ctx context.Context) SeedResult {
	var res SeedResult

	record := func(table string, value any, inserted bool, err error) {
		switch {
		case err != nil:
			log.Error().Err(err).Str("table", table).Interface("value", value).Msg("Failed to seed reference row")
			res.Errors = append(res.Errors, fmt.Errorf("seed %s %v: %w", table, value, err))
		case inserted:
			res.Inserted++
		default:
			res.Skipped++
		}
	}

	for _, name := range SeedManufacturers {
		ok, err := db.insertIfMissing(ctx,
			"SELECT COUNT(*) FROM manufacturers WHERE name = ?", []any{name},
			"INSERT INTO manufacturers (name) VALUES (?)", []any{name})
		record(TableManufacturers, name, ok, err)
	}

	for _, c := range SeedColors {
		ok, err := db.insertIfMissing(ctx,
			"SELECT COUNT(*) FROM reference_colors WHERE name = ?", []any{c.Name},
			"INSERT INTO reference_colors (name, hex_code) VALUES (?, ?)", []any{c.Name, c.HexCode})
		record(TableReferenceColors, c.Name, ok, err)
	}

	for _, ml := range SeedCapacities {
		ok, err := db.insertIfMissing(ctx,
			"SELECT COUNT(*) FROM capacities WHERE capacity_ml = ?", []any{ml},
			"INSERT INTO capacities (capacity_ml) VALUES (?)", []any{ml})
		record(TableCapacities, ml, ok, err)
	}

	log.Info().
		Int("inserted", res.Inserted).
		Int("skipped", res.Skipped).
		Int("failed", len(res.Errors)).
		Msg("Reference data seeded")

	return res
}

// insertIfMissing runs insertSQL only when checkSQL counts zero rows.
func (db *DB) insertIfMissing(ctx context.Context, checkSQL string, checkArgs []any, insertSQL string, insertArgs []any) (bool, error) {
	n, err := db.count(ctx, db, checkSQL, checkArgs...)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	if _, err := db.ExecContext(ctx, db.Dialect().Rebind(insertSQL), insertArgs...); err != nil {
		return false, err
	}
	return true, nil
}
