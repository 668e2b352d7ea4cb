package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/database"
)

// ExportFileName is the download name of the search CSV export
const ExportFileName = "cartridges_filtered.csv"

// filterAll is the option value that disables a filter
const filterAll = "all"

// SearchParam is one bound parameter shown under the generated SQL
type SearchParam struct {
	Name  string
	Value string
}

// SearchData contains data for the search page
type SearchData struct {
	Color        string
	Manufacturer string
	Capacity     string
	Colors       []string
	Makers       []string
	Capacities   []int
	SQL          string
	Params       []SearchParam
	RenderedSQL  string
	Results      []database.Cartridge
	Error        string
	ExportURL    string
}

// parseFilter reads the color, manufacturer and capacity query parameters.
// Empty values and "all" leave a filter unset.
func parseFilter(r *http.Request) (database.CartridgeFilter, error) {
	q := r.URL.Query()
	var f database.CartridgeFilter

	if v := strings.TrimSpace(q.Get("color")); v != "" && v != filterAll {
		f.Color = v
	}
	if v := strings.TrimSpace(q.Get("manufacturer")); v != "" && v != filterAll {
		f.Manufacturer = v
	}
	if v := strings.TrimSpace(q.Get("capacity")); v != "" && v != filterAll {
		ml, err := strconv.Atoi(strings.TrimSuffix(strings.ToLower(v), "ml"))
		if err != nil {
			return f, FieldError{Field: "capacity", Message: fmt.Sprintf("%q is not a capacity in ml", v)}
		}
		f.CapacityML = &ml
	}
	return f, nil
}

// SearchPage renders the filter form, the generated SQL and the results
func (h *Handlers) SearchPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	data := SearchData{
		Color:        q.Get("color"),
		Manufacturer: q.Get("manufacturer"),
		Capacity:     q.Get("capacity"),
		ExportURL:    "/search/export.csv",
	}
	if enc := q.Encode(); enc != "" {
		data.ExportURL += "?" + enc
	}

	if err := h.loadFilterOptions(r, &data); err != nil {
		log.Error().Err(err).Msg("Failed to load search options")
		data.Error = database.Describe(err)
		h.render(w, r, "search.html", "search", data)
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		data.Error = database.Describe(err)
		h.render(w, r, "search.html", "search", data)
		return
	}

	query := database.BuildCartridgeSearch(h.db.Dialect(), f)
	data.SQL = query.SQL
	for _, name := range query.Names {
		data.Params = append(data.Params, SearchParam{Name: name, Value: fmt.Sprint(query.Params[name])})
	}
	if bound, args, err := database.BindNamed(query.SQL, query.Params); err == nil {
		data.RenderedSQL = database.RenderSQL(bound, args)
	}

	data.Results, err = h.db.SearchCartridges(ctx, f)
	if err != nil {
		log.Error().Err(err).Msg("Cartridge search failed")
		data.Error = database.Describe(err)
	}

	h.render(w, r, "search.html", "search", data)
}

func (h *Handlers) loadFilterOptions(r *http.Request, data *SearchData) error {
	ctx := r.Context()

	colors, err := h.db.ListColors(ctx)
	if err != nil {
		return err
	}
	for _, c := range colors {
		data.Colors = append(data.Colors, c.Name)
	}

	makers, err := h.db.ListManufacturers(ctx)
	if err != nil {
		return err
	}
	for _, m := range makers {
		data.Makers = append(data.Makers, m.Name)
	}

	caps, err := h.db.ListCapacities(ctx)
	if err != nil {
		return err
	}
	for _, c := range caps {
		data.Capacities = append(data.Capacities, c.CapacityML)
	}
	return nil
}

// SearchExportCSV downloads the filtered results as CSV
func (h *Handlers) SearchExportCSV(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, database.Describe(err), http.StatusBadRequest)
		return
	}

	results, err := h.db.SearchCartridges(r.Context(), f)
	if err != nil {
		log.Error().Err(err).Msg("CSV export failed")
		http.Error(w, database.Describe(err), statusForError(err))
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ExportFileName))

	if err := writeCartridgeCSV(w, results); err != nil {
		log.Error().Err(err).Msg("Failed to write CSV export")
		return
	}
	log.Debug().Int("rows", len(results)).Msg("Exported cartridges CSV")
}

func writeCartridgeCSV(w io.Writer, results []database.Cartridge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "model_name", "reference_code", "color", "printer_model", "manufacturer", "capacities"}); err != nil {
		return err
	}
	for _, c := range results {
		record := []string{
			strconv.FormatInt(c.ID, 10),
			c.ModelName,
			c.ReferenceCode,
			c.Color,
			c.PrinterModel,
			c.Manufacturer,
			c.Capacities,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// APICartridges returns the filtered cartridges as JSON
func (h *Handlers) APICartridges(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		h.jsonError(w, err)
		return
	}

	results, err := h.db.SearchCartridges(r.Context(), f)
	if err != nil {
		log.Error().Err(err).Msg("Cartridge API search failed")
		h.jsonError(w, err)
		return
	}
	if results == nil {
		results = []database.Cartridge{}
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"count":      len(results),
		"cartridges": results,
	})
}
