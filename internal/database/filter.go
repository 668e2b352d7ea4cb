package database

import (
	"context"
	"fmt"
	"strings"
)

// CartridgeFilter holds the optional equality filters of a cartridge
// search. Zero values mean "all".
type CartridgeFilter struct {
	Color        string
	Manufacturer string
	CapacityML   *int
}

// Active reports whether any filter is set
func (f CartridgeFilter) Active() bool {
	return f.Color != "" || f.Manufacturer != "" || f.CapacityML != nil
}

// CartridgeQuery is a generated search statement with its named parameters.
type CartridgeQuery struct {
	SQL    string
	Params map[string]any
	// Names lists parameter names in the order they were appended.
	Names []string
}

// Cartridge is one row of the aggregated cartridge listing.
type Cartridge struct {
	ID            int64  `json:"id"`
	ModelName     string `json:"model_name"`
	ReferenceCode string `json:"reference_code,omitempty"`
	Color         string `json:"color"`
	PrinterModel  string `json:"printer_model"`
	Manufacturer  string `json:"manufacturer"`
	Capacities    string `json:"capacities"`
}

// CapacitySeparator joins the aggregated capacities of a cartridge.
const CapacitySeparator = ", "

// BuildCartridgeSearch generates the search statement for a filter. Filters
// are appended in a fixed order (color, manufacturer, capacity) and only
// when set; each one narrows the result.
func BuildCartridgeSearch(d Dialect, f CartridgeFilter) CartridgeQuery {
	var b strings.Builder
	fmt.Fprintf(&b, `SELECT
	c.id,
	c.model_name,
	c.reference_code,
	rc.name AS color,
	pm.name AS printer_model,
	m.name AS manufacturer,
	%s AS capacities
FROM cartridges c
JOIN reference_colors rc ON c.color_id = rc.id
JOIN printer_models pm ON c.printer_model_id = pm.id
JOIN manufacturers m ON pm.manufacturer_id = m.id
LEFT JOIN cartridge_capacities cc ON c.id = cc.cartridge_id
LEFT JOIN capacities cap ON cc.capacity_id = cap.id
WHERE 1=1`, d.GroupConcat("cap.capacity_ml", CapacitySeparator))

	q := CartridgeQuery{Params: map[string]any{}}
	add := func(column string, value any) {
		name := fmt.Sprintf("param%d", len(q.Names)+1)
		fmt.Fprintf(&b, "\n  AND %s = :%s", column, name)
		q.Params[name] = value
		q.Names = append(q.Names, name)
	}

	if f.Color != "" {
		add("rc.name", f.Color)
	}
	if f.Manufacturer != "" {
		add("m.name", f.Manufacturer)
	}
	if f.CapacityML != nil {
		add("cap.capacity_ml", *f.CapacityML)
	}

	b.WriteString("\nGROUP BY c.id, c.model_name, c.reference_code, rc.name, pm.name, m.name")
	b.WriteString("\nORDER BY c.model_name")

	q.SQL = b.String()
	return q
}

// SearchCartridges runs the generated search for a filter.
func (db *DB) SearchCartridges(ctx context.Context, f CartridgeFilter) ([]Cartridge, error) {
	q := BuildCartridgeSearch(db.Dialect(), f)
	return db.queryCartridges(ctx, q)
}

// ListCartridges returns every cartridge with its aggregated capacities.
func (db *DB) ListCartridges(ctx context.Context) ([]Cartridge, error) {
	return db.SearchCartridges(ctx, CartridgeFilter{})
}

func (db *DB) queryCartridges(ctx context.Context, q CartridgeQuery) ([]Cartridge, error) {
	set, err := db.FetchNamed(ctx, q.SQL, q.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to search cartridges: %w", err)
	}

	list := make([]Cartridge, 0, set.Len())
	for _, row := range set.Rows {
		list = append(list, Cartridge{
			ID:            toInt64(row[0]),
			ModelName:     toString(row[1]),
			ReferenceCode: toString(row[2]),
			Color:         toString(row[3]),
			PrinterModel:  toString(row[4]),
			Manufacturer:  toString(row[5]),
			Capacities:    toString(row[6]),
		})
	}
	return list, nil
}
