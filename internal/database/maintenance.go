package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// Optimize refreshes the query planner statistics.
func (db *DB) Optimize(ctx context.Context) error {
	var stmt string
	switch db.Dialect() {
	case MySQL:
		stmt = "ANALYZE TABLE " + strings.Join(InventoryTables, ", ")
	case Postgres:
		stmt = "ANALYZE"
	default:
		stmt = "PRAGMA optimize"
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.execDiscard(ctx, stmt); err != nil {
		return fmt.Errorf("failed to optimize database: %w", err)
	}
	log.Info().Str("dialect", string(db.Dialect())).Msg("Database optimized")
	return nil
}

// Vacuum rebuilds storage to reclaim unused space.
func (db *DB) Vacuum(ctx context.Context) error {
	var stmt string
	switch db.Dialect() {
	case MySQL:
		stmt = "OPTIMIZE TABLE " + strings.Join(InventoryTables, ", ")
	default:
		stmt = "VACUUM"
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.execDiscard(ctx, stmt); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	log.Info().Str("dialect", string(db.Dialect())).Msg("Database vacuumed")
	return nil
}

// execDiscard runs a maintenance statement, draining any rows it returns.
func (db *DB) execDiscard(ctx context.Context, stmt string) error {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}
