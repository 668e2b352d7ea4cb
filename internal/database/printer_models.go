package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// PrinterModel is a printer belonging to a manufacturer.
type PrinterModel struct {
	ID               int64
	Name             string
	ManufacturerID   int64
	ManufacturerName string
}

// ListPrinterModels returns all printer models with their manufacturer,
// ordered by model name
func (db *DB) ListPrinterModels(ctx context.Context) ([]PrinterModel, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT pm.id, pm.name, m.id, m.name
		FROM printer_models pm
		JOIN manufacturers m ON pm.manufacturer_id = m.id
		ORDER BY pm.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list printer models: %w", err)
	}
	defer rows.Close()

	var list []PrinterModel
	for rows.Next() {
		var pm PrinterModel
		if err := rows.Scan(&pm.ID, &pm.Name, &pm.ManufacturerID, &pm.ManufacturerName); err != nil {
			return nil, fmt.Errorf("failed to scan printer model: %w", err)
		}
		list = append(list, pm)
	}
	return list, rows.Err()
}

// CreatePrinterModel inserts a printer model for a manufacturer
func (db *DB) CreatePrinterModel(ctx context.Context, name string, manufacturerID int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("%w: printer model name is required", ErrInvalidInput)
	}
	if manufacturerID <= 0 {
		return 0, fmt.Errorf("%w: manufacturer is required", ErrInvalidInput)
	}

	id, err := db.insert(ctx, db, "INSERT INTO printer_models (name, manufacturer_id) VALUES (?, ?)", name, manufacturerID)
	if err != nil {
		return 0, fmt.Errorf("failed to create printer model: %w", err)
	}

	log.Info().Int64("id", id).Str("name", name).Int64("manufacturer_id", manufacturerID).Msg("Printer model created")
	return id, nil
}

// DeletePrinterModel removes a printer model
func (db *DB) DeletePrinterModel(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, TablePrinterModels, id)
}
