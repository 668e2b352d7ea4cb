package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Manufacturer is a printer brand.
type Manufacturer struct {
	ID   int64
	Name string
}

// ListManufacturers returns all manufacturers ordered by name
func (db *DB) ListManufacturers(ctx context.Context) ([]Manufacturer, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, name FROM manufacturers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list manufacturers: %w", err)
	}
	defer rows.Close()

	var list []Manufacturer
	for rows.Next() {
		var m Manufacturer
		if err := rows.Scan(&m.ID, &m.Name); err != nil {
			return nil, fmt.Errorf("failed to scan manufacturer: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetManufacturer returns a manufacturer by id
func (db *DB) GetManufacturer(ctx context.Context, id int64) (*Manufacturer, error) {
	m := &Manufacturer{}
	err := db.QueryRowContext(ctx, db.Dialect().Rebind("SELECT id, name FROM manufacturers WHERE id = ?"), id).
		Scan(&m.ID, &m.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manufacturer: %w", err)
	}
	return m, nil
}

// CreateManufacturer inserts a manufacturer and returns its id
func (db *DB) CreateManufacturer(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: manufacturer name is required", ErrInvalidInput)
	}

	id, err := db.insert(ctx, db, "INSERT INTO manufacturers (name) VALUES (?)", name)
	if err != nil {
		return 0, fmt.Errorf("failed to create manufacturer: %w", err)
	}

	log.Info().Int64("id", id).Str("name", name).Msg("Manufacturer created")
	return id, nil
}

// DeleteManufacturer removes a manufacturer. The delete is refused with an
// *InUseError when any printer model still references it.
func (db *DB) DeleteManufacturer(ctx context.Context, id int64) error {
	m, err := db.GetManufacturer(ctx, id)
	if err != nil {
		return err
	}

	models, err := db.count(ctx, db, "SELECT COUNT(*) FROM printer_models WHERE manufacturer_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to check printer models: %w", err)
	}
	if models > 0 {
		return &InUseError{Manufacturer: m.Name, Models: models}
	}

	if _, err := db.ExecContext(ctx, db.Dialect().Rebind("DELETE FROM manufacturers WHERE id = ?"), id); err != nil {
		return fmt.Errorf("failed to delete manufacturer: %w", err)
	}

	log.Info().Int64("id", id).Str("name", m.Name).Msg("Manufacturer deleted")
	return nil
}
