package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Capacity is an ink volume in millilitres.
type Capacity struct {
	ID         int64
	CapacityML int
}

// ListCapacities returns all capacities ordered by volume
func (db *DB) ListCapacities(ctx context.Context) ([]Capacity, error) {
	rows, err := db.QueryContext(ctx, "SELECT id, capacity_ml FROM capacities ORDER BY capacity_ml")
	if err != nil {
		return nil, fmt.Errorf("failed to list capacities: %w", err)
	}
	defer rows.Close()

	var list []Capacity
	for rows.Next() {
		var c Capacity
		if err := rows.Scan(&c.ID, &c.CapacityML); err != nil {
			return nil, fmt.Errorf("failed to scan capacity: %w", err)
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// CreateCapacity inserts a capacity of at least 1 ml
func (db *DB) CreateCapacity(ctx context.Context, ml int) (int64, error) {
	if ml < 1 {
		return 0, fmt.Errorf("%w: capacity must be at least 1 ml", ErrInvalidInput)
	}

	id, err := db.insert(ctx, db, "INSERT INTO capacities (capacity_ml) VALUES (?)", ml)
	if err != nil {
		return 0, fmt.Errorf("failed to create capacity: %w", err)
	}

	log.Info().Int64("id", id).Int("ml", ml).Msg("Capacity created")
	return id, nil
}

// DeleteCapacity removes a capacity
func (db *DB) DeleteCapacity(ctx context.Context, id int64) error {
	return db.deleteByID(ctx, TableCapacities, id)
}
