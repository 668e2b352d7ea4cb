package database

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestBuildCartridgeSearch_Clauses(t *testing.T) {
	tests := []struct {
		name        string
		filter      CartridgeFilter
		wantClauses []string
		wantArgs    []any
	}{
		{
			name:   "no filters",
			filter: CartridgeFilter{},
		},
		{
			name:        "color only",
			filter:      CartridgeFilter{Color: "Black"},
			wantClauses: []string{"AND rc.name = :param1"},
			wantArgs:    []any{"Black"},
		},
		{
			name:        "manufacturer and capacity",
			filter:      CartridgeFilter{Manufacturer: "HP", CapacityML: intPtr(250)},
			wantClauses: []string{"AND m.name = :param1", "AND cap.capacity_ml = :param2"},
			wantArgs:    []any{"HP", 250},
		},
		{
			name:   "all three in fixed order",
			filter: CartridgeFilter{CapacityML: intPtr(100), Manufacturer: "Epson", Color: "Cyan"},
			wantClauses: []string{
				"AND rc.name = :param1",
				"AND m.name = :param2",
				"AND cap.capacity_ml = :param3",
			},
			wantArgs: []any{"Cyan", "Epson", 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := BuildCartridgeSearch(SQLite, tt.filter)

			var clauses []string
			for line := range strings.SplitSeq(q.SQL, "\n") {
				if l := strings.TrimSpace(line); strings.HasPrefix(l, "AND ") {
					clauses = append(clauses, l)
				}
			}
			if diff := cmp.Diff(tt.wantClauses, clauses); diff != "" {
				t.Errorf("clauses mismatch (-want +got):\n%s", diff)
			}
			_, args, err := BindNamed(q.SQL, q.Params)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.wantArgs, args, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}

			assert.True(t, strings.HasSuffix(q.SQL, "ORDER BY c.model_name"))
			assert.Contains(t, q.SQL, "WHERE 1=1")
			assert.Equal(t, tt.filter.Active(), len(q.Names) > 0)
		})
	}
}

func TestBuildCartridgeSearch_Dialects(t *testing.T) {
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{SQLite, "group_concat(cap.capacity_ml, ', ' ORDER BY cap.capacity_ml)"},
		{MySQL, "GROUP_CONCAT(cap.capacity_ml ORDER BY cap.capacity_ml SEPARATOR ', ')"},
		{Postgres, "string_agg(CAST(cap.capacity_ml AS TEXT), ', ' ORDER BY cap.capacity_ml)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.dialect), func(t *testing.T) {
			q := BuildCartridgeSearch(tt.dialect, CartridgeFilter{Color: "Black"})
			assert.Contains(t, q.SQL, tt.want)

			stmt, args, err := BindNamed(q.SQL, q.Params)
			require.NoError(t, err)
			assert.Equal(t, []any{"Black"}, args)
			if tt.dialect == Postgres {
				assert.Contains(t, tt.dialect.Rebind(stmt), "rc.name = $1")
			}
		})
	}
}

func TestSearchCartridges_CapacityExample(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cartridge(t, "T544", "Black", f.printer, 100, 250)

	got, err := f.db.SearchCartridges(ctx, CartridgeFilter{CapacityML: intPtr(500)})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.db.SearchCartridges(ctx, CartridgeFilter{CapacityML: intPtr(100)})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "T544", got[0].ModelName)
	assert.Equal(t, "100", got[0].Capacities, "capacity filter narrows the aggregate to the matching row")
}

func TestSearchCartridges_Narrowing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	hpPrinter, err := f.db.CreatePrinterModel(ctx, "DeskJet 2700", f.makers["HP"])
	require.NoError(t, err)

	f.cartridge(t, "T673", "Cyan", f.printer, 100)
	f.cartridge(t, "T544", "Black", f.printer, 250, 100)
	f.cartridge(t, "HP 305", "Black", hpPrinter, 500)
	f.cartridge(t, "HP 305 XL", "Cyan", hpPrinter)

	all, err := f.db.ListCartridges(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)

	var names []string
	for _, c := range all {
		names = append(names, c.ModelName)
	}
	assert.Equal(t, []string{"HP 305", "HP 305 XL", "T544", "T673"}, names, "sorted by model name")
	assert.Equal(t, "100, 250", all[2].Capacities, "capacities aggregated in ascending order")
	assert.Empty(t, all[1].Capacities, "cartridge without capacities still listed")
	assert.Equal(t, "Epson", all[2].Manufacturer)
	assert.Equal(t, "EcoTank L3250", all[2].PrinterModel)

	filters := []CartridgeFilter{
		{Color: "Black"},
		{Color: "Black", Manufacturer: "Epson"},
		{Color: "Black", Manufacturer: "Epson", CapacityML: intPtr(250)},
	}
	prev := len(all)
	for _, flt := range filters {
		got, err := f.db.SearchCartridges(ctx, flt)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(got), prev, "adding a filter never widens the result: %+v", flt)
		prev = len(got)
	}
	assert.Equal(t, 1, prev)

	none, err := f.db.SearchCartridges(ctx, CartridgeFilter{Color: "Magenta"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBindNamed(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		params   map[string]any
		want     string
		wantArgs []any
		wantErr  bool
	}{
		{
			name:     "reused and ordered",
			query:    "SELECT * FROM t WHERE a = :a AND b = :b OR a = :a",
			params:   map[string]any{"a": 1, "b": "x"},
			want:     "SELECT * FROM t WHERE a = ? AND b = ? OR a = ?",
			wantArgs: []any{1, "x", 1},
		},
		{
			name:     "escaped colon",
			query:    "SELECT '10::30' AS t FROM t WHERE a = :a",
			params:   map[string]any{"a": 2},
			want:     "SELECT '10:30' AS t FROM t WHERE a = ?",
			wantArgs: []any{2},
		},
		{
			name:    "missing parameter",
			query:   "SELECT * FROM t WHERE a = :missing",
			params:  map[string]any{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := BindNamed(tt.query, tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
