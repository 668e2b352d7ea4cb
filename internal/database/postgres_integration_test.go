//go:build integration

package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresInventory(t *testing.T) {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("inventory"),
		postgres.WithUsername("cartridges"),
		postgres.WithPassword("cartridges"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := New(connStr)
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, Postgres, db.Dialect())

	for run := 0; run < 2; run++ {
		require.Empty(t, SchemaErrors(db.EnsureSchema(ctx)))
	}
	require.NoError(t, db.Migrate(ctx))

	first := db.SeedReferenceData(ctx)
	require.Empty(t, first.Errors)
	second := db.SeedReferenceData(ctx)
	assert.Equal(t, 0, second.Inserted)

	caps, err := db.ListCapacities(ctx)
	require.NoError(t, err)
	capID := map[int]int64{}
	for _, c := range caps {
		capID[c.CapacityML] = c.ID
	}
	colors, err := db.ListColors(ctx)
	require.NoError(t, err)
	makers, err := db.ListManufacturers(ctx)
	require.NoError(t, err)

	printer, err := db.CreatePrinterModel(ctx, "EcoTank L3250", makers[0].ID)
	require.NoError(t, err)
	_, err = db.CreateCartridge(ctx, NewCartridge{
		ModelName:      "T544",
		ColorID:        colors[0].ID,
		PrinterModelID: printer,
		CapacityIDs:    []int64{capID[100], capID[250]},
	})
	require.NoError(t, err)

	ml := 500
	got, err := db.SearchCartridges(ctx, CartridgeFilter{CapacityML: &ml})
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := db.ListCartridges(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "100, 250", all[0].Capacities)

	err = db.DeleteManufacturer(ctx, makers[0].ID)
	assert.ErrorIs(t, err, ErrManufacturerInUse)

	tables, err := db.ListTables(ctx)
	require.NoError(t, err)
	assert.Subset(t, tables, InventoryTables)
}
