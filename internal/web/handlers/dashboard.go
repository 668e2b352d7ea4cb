package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/database"
)

// DashboardData contains data for the dashboard page
type DashboardData struct {
	Connected bool
	ConnErr   string
	Stats     *database.Stats
	StatsErr  string
	ByColor   []ColorBar
}

// ColorBar is one bar of the cartridges-per-color chart
type ColorBar struct {
	database.ColorCount
	Percent int // relative to the largest color
}

// Dashboard renders the main dashboard
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "dashboard.html", "dashboard", h.loadDashboard(r.Context()))
}

// DashboardStatsPartial renders the metrics and chart block, refreshed by
// the page when inventory events arrive
func (h *Handlers) DashboardStatsPartial(w http.ResponseWriter, r *http.Request) {
	h.renderPartial(w, "dashboard.html", "dashboard-stats", h.loadDashboard(r.Context()))
}

func (h *Handlers) loadDashboard(ctx context.Context) DashboardData {
	var data DashboardData

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := h.db.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("Dashboard: database unreachable")
		data.ConnErr = database.Describe(err)
		return data
	}
	data.Connected = true

	stats, err := h.db.GetStats(ctx)
	if err != nil {
		// Typically the schema has not been initialized yet
		log.Debug().Err(err).Msg("Dashboard: failed to load stats")
		data.StatsErr = database.Describe(err)
		return data
	}
	data.Stats = stats

	counts, err := h.db.CartridgesByColor(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Dashboard: failed to load color counts")
		data.StatsErr = database.Describe(err)
		return data
	}
	data.ByColor = colorBars(counts)

	return data
}

func colorBars(counts []database.ColorCount) []ColorBar {
	peak := 0
	for _, c := range counts {
		peak = max(peak, c.Count)
	}

	bars := make([]ColorBar, len(counts))
	for i, c := range counts {
		bars[i] = ColorBar{ColorCount: c}
		if peak > 0 {
			bars[i].Percent = c.Count * 100 / peak
		}
	}
	return bars
}
