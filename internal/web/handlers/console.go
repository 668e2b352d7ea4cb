package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/database"
)

const (
	defaultConsoleMaxRows = 1000
	sampleRowLimit        = 5
	defaultConsoleSQL     = "SELECT * FROM manufacturers LIMIT 5"
)

// ExampleGroup is a titled set of statements offered on the console page
type ExampleGroup struct {
	Title      string
	Statements []string
}

var consoleExamples = []ExampleGroup{
	{
		Title: "Basic queries",
		Statements: []string{
			"SELECT * FROM manufacturers",
			"SELECT name FROM reference_colors ORDER BY name",
			"SELECT COUNT(*) AS total FROM cartridges",
		},
	},
	{
		Title: "Joins",
		Statements: []string{
			`SELECT c.model_name, rc.name AS color, m.name AS manufacturer
FROM cartridges c
JOIN reference_colors rc ON c.color_id = rc.id
JOIN printer_models pm ON c.printer_model_id = pm.id
JOIN manufacturers m ON pm.manufacturer_id = m.id
LIMIT 10`,
		},
	},
	{
		Title: "Writes",
		Statements: []string{
			"INSERT INTO manufacturers (name) VALUES ('Lexmark')",
			"INSERT INTO reference_colors (name, hex_code) VALUES ('Orange', '#FFA500')",
			"UPDATE reference_colors SET hex_code = '#1A1A1A' WHERE name = 'Black'",
		},
	},
}

// TableStructure describes one table for the structure browser
type TableStructure struct {
	Name    string
	Columns []database.Column
	Sample  *database.ResultSet
	Err     string
}

// ConsoleResult is the outcome of one console statement
type ConsoleResult struct {
	IsRead       bool
	Columns      []string
	Rows         [][]string
	TotalRows    int
	Truncated    bool
	RowsAffected int64
	Elapsed      time.Duration
}

// ConsoleData contains data for the console page
type ConsoleData struct {
	SQL       string
	Result    *ConsoleResult
	Error     string
	Examples  []ExampleGroup
	Tables    []string
	Table     string
	Structure *TableStructure
	StructErr string
	MaxRows   int
}

// ConsolePage renders the console with an empty editor
func (h *Handlers) ConsolePage(w http.ResponseWriter, r *http.Request) {
	data := h.newConsoleData(r)
	data.SQL = defaultConsoleSQL
	h.renderConsole(w, r, data)
}

// ConsoleRun executes the submitted statement. Statements whose leading
// keyword reads data return rows; anything else reports affected rows.
func (h *Handlers) ConsoleRun(w http.ResponseWriter, r *http.Request) {
	data := h.newConsoleData(r)
	data.SQL = strings.TrimSpace(r.FormValue("sql"))

	if data.SQL == "" {
		data.Error = database.Describe(FieldError{Field: "sql", Message: "enter a statement to run"})
		h.renderConsole(w, r, data)
		return
	}

	isRead := database.IsReadStatement(data.SQL)
	res, err := h.db.Run(r.Context(), data.SQL, nil, isRead)
	if err != nil {
		log.Warn().Err(err).Str("kind", database.Classify(err).String()).Msg("Console statement failed")
		data.Error = database.Describe(err)
		h.renderConsole(w, r, data)
		return
	}

	result := &ConsoleResult{IsRead: isRead, RowsAffected: res.RowsAffected, Elapsed: res.Elapsed}
	if res.Set != nil {
		rows := res.Set.Strings()
		result.Columns = res.Set.Columns
		result.TotalRows = len(rows)
		if data.MaxRows > 0 && len(rows) > data.MaxRows {
			rows = rows[:data.MaxRows]
			result.Truncated = true
		}
		result.Rows = rows
	}
	data.Result = result

	event := log.Info().Bool("read", isRead).Dur("elapsed", res.Elapsed)
	if isRead {
		event = event.Int("rows", result.TotalRows)
	} else {
		event = event.Int64("rows_affected", res.RowsAffected)
		// Writes may touch inventory tables the dashboard shows
		h.notify("console", "executed", 0)
	}
	event.Msg("Console statement executed")

	h.renderConsole(w, r, data)
}

// renderConsole loads the structure browser after the statement ran, so
// created or dropped tables show up immediately
func (h *Handlers) renderConsole(w http.ResponseWriter, r *http.Request, data ConsoleData) {
	h.loadStructure(r.Context(), &data)
	h.render(w, r, "console.html", "console", data)
}

func (h *Handlers) newConsoleData(r *http.Request) ConsoleData {
	loader := config.NewLoader(h.db)
	data := ConsoleData{
		Examples: consoleExamples,
		Table:    r.URL.Query().Get("table"),
		MaxRows:  loader.Int("console.max_rows", defaultConsoleMaxRows),
	}
	if t := r.FormValue("table"); t != "" {
		data.Table = t
	}
	return data
}

// loadStructure fills the table list and the selected table's columns and
// sample rows
func (h *Handlers) loadStructure(ctx context.Context, data *ConsoleData) {
	tables, err := h.db.ListTables(ctx)
	if err != nil {
		data.StructErr = database.Describe(err)
		return
	}
	data.Tables = tables
	if len(tables) == 0 {
		data.Structure = nil
		return
	}

	name := data.Table
	if !slices.Contains(tables, name) {
		name = tables[0]
	}
	data.Table = name

	st := &TableStructure{Name: name}
	if st.Columns, err = h.db.TableColumns(ctx, name); err != nil {
		st.Err = database.Describe(err)
	} else if st.Sample, err = h.db.SampleRows(ctx, name, sampleRowLimit); err != nil {
		st.Err = database.Describe(err)
	}
	data.Structure = st
}
