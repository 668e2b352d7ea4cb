package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Inventory table names in foreign-key dependency order.
const (
	TableManufacturers       = "manufacturers"
	TableReferenceColors     = "reference_colors"
	TableCapacities          = "capacities"
	TablePrinterModels       = "printer_models"
	TableCartridges          = "cartridges"
	TableCartridgeCapacities = "cartridge_capacities"
)

// InventoryTables lists the six inventory tables, parents first.
var InventoryTables = []string{
	TableManufacturers,
	TableReferenceColors,
	TableCapacities,
	TablePrinterModels,
	TableCartridges,
	TableCartridgeCapacities,
}

// TableResult reports the outcome of one CREATE TABLE statement.
type TableResult struct {
	Table string
	Err   error
}

func (r TableResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("table %s: %v", r.Table, r.Err)
	}
	return fmt.Sprintf("table %s ready", r.Table)
}

// inventoryDDL returns the CREATE TABLE statements for the dialect.
func inventoryDDL(d Dialect) []struct{ table, sql string } {
	pk := d.AutoIncrementPK()
	opts := d.TableOptions()

	return []struct{ table, sql string }{
		{TableManufacturers, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS manufacturers (
	id %s,
	name VARCHAR(100) NOT NULL
)%s`, pk, opts)},
		{TableReferenceColors, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS reference_colors (
	id %s,
	name VARCHAR(50) NOT NULL,
	hex_code VARCHAR(7)
)%s`, pk, opts)},
		{TableCapacities, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS capacities (
	id %s,
	capacity_ml INTEGER NOT NULL
)%s`, pk, opts)},
		{TablePrinterModels, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS printer_models (
	id %s,
	name VARCHAR(150) NOT NULL,
	manufacturer_id INTEGER,
	FOREIGN KEY (manufacturer_id) REFERENCES manufacturers(id)
)%s`, pk, opts)},
		{TableCartridges, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cartridges (
	id %s,
	model_name VARCHAR(100) NOT NULL,
	color_id INTEGER,
	printer_model_id INTEGER,
	reference_code VARCHAR(50),
	FOREIGN KEY (color_id) REFERENCES reference_colors(id),
	FOREIGN KEY (printer_model_id) REFERENCES printer_models(id)
)%s`, pk, opts)},
		{TableCartridgeCapacities, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cartridge_capacities (
	cartridge_id INTEGER NOT NULL,
	capacity_id INTEGER NOT NULL,
	PRIMARY KEY (cartridge_id, capacity_id),
	FOREIGN KEY (cartridge_id) REFERENCES cartridges(id) ON DELETE CASCADE,
	FOREIGN KEY (capacity_id) REFERENCES capacities(id)
)%s`, opts)},
	}
}

// EnsureSchema creates the inventory tables that do not exist yet.
// Every statement runs on its own; a failure is logged and reported in
// the returned results without stopping the remaining statements.
func (db *DB) EnsureSchema(ctx context.Context) []TableResult {
	log.Info().Str("dialect", string(db.Dialect())).Msg("Ensuring inventory schema")

	var results []TableResult
	for _, stmt := range inventoryDDL(db.Dialect()) {
		_, err := db.ExecContext(ctx, stmt.sql)
		if err != nil {
			log.Error().Err(err).Str("table", stmt.table).Msg("Failed to create table")
			err = fmt.Errorf("failed to create table %s: %w", stmt.table, err)
		} else {
			log.Debug().Str("table", stmt.table).Msg("Table ready")
		}
		results = append(results, TableResult{Table: stmt.table, Err: err})
	}
	return results
}

// SchemaErrors returns the failed entries of an EnsureSchema run.
func SchemaErrors(results []TableResult) []error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}
