package database

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// NewCartridge is the input of CreateCartridge.
type NewCartridge struct {
	ModelName      string
	ReferenceCode  string
	ColorID        int64
	PrinterModelID int64
	CapacityIDs    []int64
}

// UniqueCapacityIDs returns the capacity ids sorted with duplicates removed,
// which is the set of links CreateCartridge stores.
func (n NewCartridge) UniqueCapacityIDs() []int64 {
	ids := slices.Clone(n.CapacityIDs)
	slices.Sort(ids)
	return slices.Compact(ids)
}

func (n *NewCartridge) validate() error {
	n.ModelName = strings.TrimSpace(n.ModelName)
	n.ReferenceCode = strings.TrimSpace(n.ReferenceCode)
	switch {
	case n.ModelName == "":
		return fmt.Errorf("%w: cartridge model is required", ErrInvalidInput)
	case n.ColorID <= 0:
		return fmt.Errorf("%w: color is required", ErrInvalidInput)
	case n.PrinterModelID <= 0:
		return fmt.Errorf("%w: printer model is required", ErrInvalidInput)
	}
	return nil
}

// CreateCartridge inserts a cartridge and its capacity associations in one
// transaction; either all rows are written or none.
func (db *DB) CreateCartridge(ctx context.Context, n NewCartridge) (int64, error) {
	if err := n.validate(); err != nil {
		return 0, err
	}

	capacityIDs := n.UniqueCapacityIDs()

	var refCode sql.NullString
	if n.ReferenceCode != "" {
		refCode = sql.NullString{String: n.ReferenceCode, Valid: true}
	}

	var id int64
	err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var err error
		id, err = db.insert(ctx, tx,
			"INSERT INTO cartridges (model_name, color_id, printer_model_id, reference_code) VALUES (?, ?, ?, ?)",
			n.ModelName, n.ColorID, n.PrinterModelID, refCode)
		if err != nil {
			return fmt.Errorf("failed to create cartridge: %w", err)
		}

		link := db.Dialect().Rebind("INSERT INTO cartridge_capacities (cartridge_id, capacity_id) VALUES (?, ?)")
		for _, capID := range capacityIDs {
			if _, err := tx.ExecContext(ctx, link, id, capID); err != nil {
				return fmt.Errorf("failed to link capacity %d: %w", capID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	log.Info().
		Int64("id", id).
		Str("model", n.ModelName).
		Int("capacities", len(capacityIDs)).
		Msg("Cartridge created")
	return id, nil
}

// DeleteCartridge removes a cartridge; its capacity associations are
// removed by the ON DELETE CASCADE rule.
func (db *DB) DeleteCartridge(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, TableCartridges, id)
}
