package database

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLLiteral(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, "NULL"},
		{"plain string", "Epson", "'Epson'"},
		{"embedded quote", "O'Brien's", "'O''Brien''s'"},
		{"bytes", []byte("x'y"), "'x''y'"},
		{"int", 42, "42"},
		{"int64", int64(-7), "-7"},
		{"float", 2.5, "2.5"},
		{"bool", true, "TRUE"},
		{"time", time.Date(2026, 10, 18, 9, 5, 0, 0, time.UTC), "'2026-10-18 09:05:00'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLLiteral(tt.in))
		})
	}
}

func TestRenderSQL(t *testing.T) {
	got := RenderSQL("SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?", []any{"it's", 3})
	assert.Equal(t, "SELECT * FROM t WHERE a = 'it''s' AND b = '?' AND c = 3", got)
}

func TestBackupFileName(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, "backup_cartridges_20260102_030405.sql", BackupFileName(ts))
}

func TestWriteBackup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateManufacturer(ctx, "O'Neil Printing")
	require.NoError(t, err)
	colorID, err := db.CreateColor(ctx, "Black", "")
	require.NoError(t, err)
	makerID, err := db.CreateManufacturer(ctx, "Epson")
	require.NoError(t, err)
	printerID, err := db.CreatePrinterModel(ctx, "L3250", makerID)
	require.NoError(t, err)
	capID, err := db.CreateCapacity(ctx, 250)
	require.NoError(t, err)
	_, err = db.CreateCartridge(ctx, NewCartridge{ModelName: "T544", ColorID: colorID, PrinterModelID: printerID})
	require.NoError(t, err)
	_, err = db.CreateCartridge(ctx, NewCartridge{ModelName: "T544 XL", ColorID: colorID, PrinterModelID: printerID, CapacityIDs: []int64{capID}})
	require.NoError(t, err)
	require.NoError(t, db.SetSetting("console.max_rows", "50"))

	var buf bytes.Buffer
	now := time.Date(2026, 10, 18, 14, 30, 0, 0, time.UTC)
	require.NoError(t, db.WriteBackup(ctx, &buf, now))
	out := buf.String()

	assert.Contains(t, out, "-- Date: 18/10/2026 14:30:00")
	assert.Contains(t, out, "INSERT INTO manufacturers (id, name) VALUES (1, 'O''Neil Printing');")
	assert.Contains(t, out, "INSERT INTO reference_colors (id, name, hex_code) VALUES (1, 'Black', '#000000');")
	assert.Contains(t, out, "INSERT INTO cartridges (id, model_name, color_id, printer_model_id, reference_code) VALUES (1, 'T544', 1, 1, NULL);")

	// Parents are dumped before children.
	assert.Less(t, strings.Index(out, "-- Data for table: manufacturers"), strings.Index(out, "-- Data for table: printer_models"))
	assert.Less(t, strings.Index(out, "-- Data for table: cartridges"), strings.Index(out, "-- Data for table: cartridge_capacities"))
	assert.Contains(t, out, "-- Data for table: settings")

	// Tables without rows get no section.
	assert.NotContains(t, out, "-- Data for table: backup_runs")
}

func TestWriteBackup_SkipsEmptyTables(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	_, err := db.CreateManufacturer(ctx, "Epson")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, db.WriteBackup(ctx, &buf, time.Now()))
	out := buf.String()

	assert.Contains(t, out, "-- Data for table: manufacturers\nINSERT INTO manufacturers (id, name) VALUES (1, 'Epson');\n")
	for _, table := range []string{TableCartridges, TableCartridgeCapacities, TableCapacities, "settings", "backup_runs"} {
		assert.NotContains(t, out, "-- Data for table: "+table+"\n", table)
	}
}

func TestWriteBackup_Replays(t *testing.T) {
	ctx := context.Background()
	src := newFixture(t)
	src.cartridge(t, "T544", "Black", src.printer, 100, 250)

	var buf bytes.Buffer
	require.NoError(t, src.db.WriteBackup(ctx, &buf, time.Now()))

	dst := newTestDB(t)
	for _, stmt := range splitSQLStatements(buf.String()) {
		if strings.Contains(stmt, "schema_migrations") {
			continue // already recorded by Migrate
		}
		_, err := dst.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	want, err := src.db.ListCartridges(ctx)
	require.NoError(t, err)
	got, err := dst.ListCartridges(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBackupOrder(t *testing.T) {
	got := backupOrder([]string{"backup_runs", "capacities", "cartridge_capacities", "cartridges", "manufacturers", "settings"})
	assert.Equal(t, []string{"manufacturers", "capacities", "cartridges", "cartridge_capacities", "backup_runs", "settings"}, got)
}
