package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/database"
)

// Registry tabs, in display order
const (
	TabManufacturers = "manufacturers"
	TabPrinterModels = "printer-models"
	TabColors        = "colors"
	TabCapacities    = "capacities"
	TabCartridges    = "cartridges"
)

// RegistryTab is one tab of the registration page
type RegistryTab struct {
	Key   string
	Label string
}

var registryTabs = []RegistryTab{
	{TabManufacturers, "Manufacturers"},
	{TabPrinterModels, "Printer models"},
	{TabColors, "Colors"},
	{TabCapacities, "Capacities"},
	{TabCartridges, "Cartridges"},
}

// RegistryData contains data for the registration page. Every list is
// loaded because the cartridge and printer model forms need the others
// as selections.
type RegistryData struct {
	Tab           string
	Tabs          []RegistryTab
	Manufacturers []database.Manufacturer
	PrinterModels []database.PrinterModel
	Colors        []database.ReferenceColor
	Capacities    []database.Capacity
	Cartridges    []database.Cartridge
	LoadErr       string
	DefaultHex    string
}

// CanRegisterCartridge reports whether every selection a cartridge needs exists
func (d RegistryData) CanRegisterCartridge() bool {
	return len(d.Colors) > 0 && len(d.PrinterModels) > 0 && len(d.Capacities) > 0
}

// RegistryPage renders the tabbed registration forms and listings
func (h *Handlers) RegistryPage(w http.ResponseWriter, r *http.Request) {
	tab := r.URL.Query().Get("tab")
	if !slices.ContainsFunc(registryTabs, func(t RegistryTab) bool { return t.Key == tab }) {
		tab = TabManufacturers
	}

	data := RegistryData{Tab: tab, Tabs: registryTabs, DefaultHex: database.DefaultHexCode}
	if err := h.loadRegistry(r.Context(), &data); err != nil {
		log.Error().Err(err).Msg("Failed to load registry")
		data.LoadErr = database.Describe(err)
	}

	h.render(w, r, "registry.html", "registry", data)
}

func (h *Handlers) loadRegistry(ctx context.Context, data *RegistryData) error {
	var err error
	if data.Manufacturers, err = h.db.ListManufacturers(ctx); err != nil {
		return err
	}
	if data.PrinterModels, err = h.db.ListPrinterModels(ctx); err != nil {
		return err
	}
	if data.Colors, err = h.db.ListColors(ctx); err != nil {
		return err
	}
	if data.Capacities, err = h.db.ListCapacities(ctx); err != nil {
		return err
	}
	if data.Cartridges, err = h.db.ListCartridges(ctx); err != nil {
		return err
	}
	return nil
}

func registryURL(tab string) string {
	return "/registry?tab=" + tab
}

// ManufacturerCreate registers a manufacturer
func (h *Handlers) ManufacturerCreate(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabManufacturers)
	name := r.FormValue("name")

	id, err := h.db.CreateManufacturer(r.Context(), name)
	if err != nil {
		h.fail(w, r, to, "create manufacturer", err)
		return
	}

	h.notify(TabManufacturers, "created", id)
	h.flash(w, fmt.Sprintf("Manufacturer '%s' registered", name))
	h.redirect(w, r, to)
}

// ManufacturerDelete removes a manufacturer unless printer models use it
func (h *Handlers) ManufacturerDelete(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabManufacturers)
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, to, "delete manufacturer", err)
		return
	}

	if err := h.db.DeleteManufacturer(r.Context(), id); err != nil {
		h.fail(w, r, to, "delete manufacturer", err)
		return
	}

	h.notify(TabManufacturers, "deleted", id)
	h.flash(w, "Manufacturer deleted")
	h.redirect(w, r, to)
}

// PrinterModelCreate registers a printer model
func (h *Handlers) PrinterModelCreate(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabPrinterModels)
	manufacturerID, err := formID(r, "manufacturer_id")
	if err != nil {
		h.fail(w, r, to, "create printer model", err)
		return
	}

	name := r.FormValue("name")
	id, err := h.db.CreatePrinterModel(r.Context(), name, manufacturerID)
	if err != nil {
		h.fail(w, r, to, "create printer model", err)
		return
	}

	h.notify(TabPrinterModels, "created", id)
	h.flash(w, fmt.Sprintf("Printer model '%s' registered", name))
	h.redirect(w, r, to)
}

// PrinterModelDelete removes a printer model
func (h *Handlers) PrinterModelDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, TabPrinterModels, "printer model", h.db.DeletePrinterModel)
}

// ColorCreate registers a reference color
func (h *Handlers) ColorCreate(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabColors)
	name := r.FormValue("name")

	id, err := h.db.CreateColor(r.Context(), name, r.FormValue("hex_code"))
	if err != nil {
		h.fail(w, r, to, "create color", err)
		return
	}

	h.notify(TabColors, "created", id)
	h.flash(w, fmt.Sprintf("Color '%s' registered", name))
	h.redirect(w, r, to)
}

// ColorDelete removes a reference color
func (h *Handlers) ColorDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, TabColors, "color", h.db.DeleteColor)
}

// CapacityCreate registers a capacity
func (h *Handlers) CapacityCreate(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabCapacities)
	ml, err := formInt(r, "capacity_ml", 0)
	if err != nil {
		h.fail(w, r, to, "create capacity", err)
		return
	}

	id, err := h.db.CreateCapacity(r.Context(), ml)
	if err != nil {
		h.fail(w, r, to, "create capacity", err)
		return
	}

	h.notify(TabCapacities, "created", id)
	h.flash(w, fmt.Sprintf("Capacity of %dml registered", ml))
	h.redirect(w, r, to)
}

// CapacityDelete removes a capacity
func (h *Handlers) CapacityDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, TabCapacities, "capacity", h.db.DeleteCapacity)
}

// CartridgeCreate registers a cartridge with its capacities
func (h *Handlers) CartridgeCreate(w http.ResponseWriter, r *http.Request) {
	to := registryURL(TabCartridges)
	if err := r.ParseForm(); err != nil {
		h.fail(w, r, to, "create cartridge", FieldError{Field: "form", Message: "could not be read"})
		return
	}

	n := database.NewCartridge{
		ModelName:     r.FormValue("model_name"),
		ReferenceCode: r.FormValue("reference_code"),
	}
	var err error
	if n.ColorID, err = formID(r, "color_id"); err != nil {
		h.fail(w, r, to, "create cartridge", err)
		return
	}
	if n.PrinterModelID, err = formID(r, "printer_model_id"); err != nil {
		h.fail(w, r, to, "create cartridge", err)
		return
	}
	if n.CapacityIDs, err = formIDs(r, "capacity_id"); err != nil {
		h.fail(w, r, to, "create cartridge", err)
		return
	}

	id, err := h.db.CreateCartridge(r.Context(), n)
	if err != nil {
		h.fail(w, r, to, "create cartridge", err)
		return
	}

	links := len(n.UniqueCapacityIDs())
	h.notify(TabCartridges, "created", id)
	h.flash(w, fmt.Sprintf("Cartridge '%s' registered with %d capacit%s", n.ModelName, links, plural(links, "y", "ies")))
	h.redirect(w, r, to)
}

// CartridgeDelete removes a cartridge; its capacity links cascade
func (h *Handlers) CartridgeDelete(w http.ResponseWriter, r *http.Request) {
	h.deleteEntity(w, r, TabCartridges, "cartridge", h.db.DeleteCartridge)
}

func (h *Handlers) deleteEntity(w http.ResponseWriter, r *http.Request, tab, label string, del func(context.Context, int64) error) {
	to := registryURL(tab)
	action := "delete " + label

	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, to, action, err)
		return
	}
	if err := del(r.Context(), id); err != nil {
		h.fail(w, r, to, action, err)
		return
	}

	h.notify(tab, "deleted", id)
	h.flash(w, fmt.Sprintf("Deleted %s #%d", label, id))
	h.redirect(w, r, to)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
