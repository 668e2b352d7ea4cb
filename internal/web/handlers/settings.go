package handlers

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/backup"
	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/database"
	"github.com/saltyorg/cartridges/internal/logging"
	"github.com/saltyorg/cartridges/internal/web/sse"
)

// ConnectionInfo describes the configured store, password masked
type ConnectionInfo struct {
	Dialect   database.Dialect
	Networked bool
	Target    string
	Host      string
	Port      string
	Database  string
	User      string
}

// SettingsData contains data for the settings page
type SettingsData struct {
	Connection   ConnectionInfo
	Stats        *database.Stats
	StatsErr     string
	Backup       *backup.Status
	BackupRuns   []database.BackupRun
	Logging      LoggingSettings
	LogLevels    []string
	ConsoleLimit int
	Server       ServerSettings
	Stored       []StoredSetting
	StoredErr    string
}

// ServerSettings are the stored HTTP timeouts, applied on the next start
type ServerSettings struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// StoredSetting is one row of the settings table
type StoredSetting struct {
	Key   string
	Value string
}

// SettingsPage renders connection info, statistics, backup and logging settings
func (h *Handlers) SettingsPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := h.db.Target()
	loader := config.NewLoader(h.db)

	data := SettingsData{
		Connection: ConnectionInfo{
			Dialect:   target.Dialect,
			Networked: target.Dialect.Networked(),
			Target:    target.Redacted(),
			Host:      target.Host,
			Port:      target.Port,
			Database:  target.Database,
			User:      target.User,
		},
		Logging:      loadLoggingSettings(loader),
		LogLevels:    logging.Levels,
		ConsoleLimit: loader.Int("console.max_rows", defaultConsoleMaxRows),
	}

	timeouts := *config.GetTimeouts()
	timeouts.ApplySettings(loader)
	data.Server = ServerSettings{RequestTimeout: timeouts.Request, ShutdownTimeout: timeouts.Shutdown}

	if all, err := h.db.GetAllSettings(); err != nil {
		data.StoredErr = database.Describe(err)
	} else {
		for _, key := range slices.Sorted(maps.Keys(all)) {
			data.Stored = append(data.Stored, StoredSetting{Key: key, Value: all[key]})
		}
	}

	if stats, err := h.db.GetStats(ctx); err != nil {
		data.StatsErr = database.Describe(err)
	} else {
		data.Stats = stats
	}

	if h.backupMgr != nil {
		st := h.backupMgr.Status()
		data.Backup = &st
	}
	if runs, err := h.db.ListBackupRuns(ctx, 10); err != nil {
		log.Debug().Err(err).Msg("Failed to list backup runs")
	} else {
		data.BackupRuns = runs
	}

	h.render(w, r, "settings.html", "settings", data)
}

// SettingsTestConnection pings the store and flashes the outcome
func (h *Handlers) SettingsTestConnection(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	start := time.Now()
	if err := h.db.Ping(ctx); err != nil {
		h.fail(w, r, "/settings", "test connection", err)
		return
	}

	h.flash(w, fmt.Sprintf("Connected to %s in %s", h.db.Target().Redacted(), time.Since(start).Round(time.Millisecond)))
	h.redirect(w, r, "/settings")
}

// ConsoleLimitUpdate stores the console row limit
func (h *Handlers) ConsoleLimitUpdate(w http.ResponseWriter, r *http.Request) {
	limit, err := formInt(r, "console_max_rows", defaultConsoleMaxRows)
	if err == nil && limit < 1 {
		err = FieldError{Field: "console_max_rows", Message: "must be at least 1"}
	}
	if err != nil {
		h.fail(w, r, "/settings", "update console limit", err)
		return
	}

	if err := h.db.SetSetting("console.max_rows", fmt.Sprint(limit)); err != nil {
		h.fail(w, r, "/settings", "update console limit", err)
		return
	}

	h.flash(w, "Console settings saved")
	h.redirect(w, r, "/settings")
}

// ServerSettingsUpdate stores the HTTP timeouts used from the next start
func (h *Handlers) ServerSettingsUpdate(w http.ResponseWriter, r *http.Request) {
	request, err := formDuration(r, "request_timeout")
	if err != nil {
		h.fail(w, r, "/settings", "update server settings", err)
		return
	}
	shutdown, err := formDuration(r, "shutdown_timeout")
	if err != nil {
		h.fail(w, r, "/settings", "update server settings", err)
		return
	}

	if err := h.db.SetSetting(config.SettingRequestTimeout, request.String()); err != nil {
		h.fail(w, r, "/settings", "update server settings", err)
		return
	}
	if err := h.db.SetSetting(config.SettingShutdownTimeout, shutdown.String()); err != nil {
		h.fail(w, r, "/settings", "update server settings", err)
		return
	}

	h.flash(w, "Server settings saved; they apply after a restart")
	h.redirect(w, r, "/settings")
}

// BackupDownload streams a SQL backup of every table
func (h *Handlers) BackupDownload(w http.ResponseWriter, r *http.Request) {
	now := h.now()

	// Buffer so a failure mid-way still yields an error status
	var buf bytes.Buffer
	if err := h.db.WriteBackup(r.Context(), &buf, now); err != nil {
		log.Error().Err(err).Msg("Backup download failed")
		http.Error(w, database.Describe(err), statusForError(err))
		return
	}

	name := database.BackupFileName(now)
	w.Header().Set("Content-Type", "application/sql; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	if _, err := buf.WriteTo(w); err != nil {
		log.Debug().Err(err).Msg("Backup download interrupted")
		return
	}

	log.Info().Str("file", name).Int("bytes", buf.Len()).Msg("Backup downloaded")
}

// BackupConfigUpdate saves the scheduled backup policy
func (h *Handlers) BackupConfigUpdate(w http.ResponseWriter, r *http.Request) {
	if h.backupMgr == nil {
		h.flashErr(w, "Scheduled backups are not available")
		h.redirect(w, r, "/settings")
		return
	}

	retain, err := formInt(r, "retain", 0)
	if err != nil {
		h.fail(w, r, "/settings", "update backup settings", err)
		return
	}
	dir := strings.TrimSpace(r.FormValue("dir"))
	if err := ValidateBackupDir(dir); err != nil {
		h.fail(w, r, "/settings", "update backup settings", err)
		return
	}

	cfg := backup.Config{
		Schedule: r.FormValue("schedule"),
		Dir:      dir,
		Retain:   retain,
	}
	if err := h.backupMgr.UpdateConfig(cfg); err != nil {
		h.fail(w, r, "/settings", "update backup settings", err)
		return
	}

	if strings.TrimSpace(cfg.Schedule) == "" {
		h.flash(w, "Backup settings saved; scheduled backups disabled")
	} else {
		h.flash(w, "Backup settings saved")
	}
	h.redirect(w, r, "/settings")
}

// BackupRunNow writes a backup file into the configured directory
func (h *Handlers) BackupRunNow(w http.ResponseWriter, r *http.Request) {
	if h.backupMgr == nil {
		h.flashErr(w, "Scheduled backups are not available")
		h.redirect(w, r, "/settings")
		return
	}

	run, err := h.backupMgr.RunNow(r.Context(), database.BackupTriggerManual)
	if err != nil {
		h.fail(w, r, "/settings", "run backup", err)
		return
	}

	h.flash(w, fmt.Sprintf("Backup %s written (%s)", run.FileName, FormatBytes(run.SizeBytes)))
	h.redirect(w, r, "/settings")
}

// MaintenanceOptimize refreshes planner statistics
func (h *Handlers) MaintenanceOptimize(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Optimize(r.Context()); err != nil {
		h.fail(w, r, "/settings", "optimize", err)
		return
	}
	h.flash(w, "Database optimized")
	h.redirect(w, r, "/settings")
}

// MaintenanceVacuum reclaims unused space
func (h *Handlers) MaintenanceVacuum(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Vacuum(r.Context()); err != nil {
		h.fail(w, r, "/settings", "vacuum", err)
		return
	}
	h.flash(w, "Database compacted")
	h.redirect(w, r, "/settings")
}

// InitDatabase creates any missing inventory tables and inserts the
// reference data. Per-table and per-row failures are reported, not fatal.
func (h *Handlers) InitDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	to := safeReturn(r, "/")

	tables := h.db.EnsureSchema(ctx)
	seed := h.db.SeedReferenceData(ctx)

	var problems []string
	for _, err := range database.SchemaErrors(tables) {
		problems = append(problems, err.Error())
	}
	for _, err := range seed.Errors {
		problems = append(problems, err.Error())
	}

	if h.events != nil {
		h.events.Broadcast(sse.Event{Type: sse.EventSchemaInitialized, Data: map[string]any{
			"tables":   len(tables),
			"inserted": seed.Inserted,
			"failed":   len(problems),
		}})
	}

	summary := fmt.Sprintf("Database initialized: %d tables checked; reference data %s", len(tables), seed)
	if len(problems) > 0 {
		log.Warn().Strs("problems", problems).Msg("Database initialization finished with errors")
		h.flashErr(w, summary+". Errors: "+strings.Join(problems, "; "))
	} else {
		h.flash(w, summary)
	}
	h.redirect(w, r, to)
}

// Healthz reports liveness of the process and the store
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  database.Describe(err),
		})
		return
	}

	h.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"dialect": string(h.db.Dialect()),
	})
}

// FormatBytes formats a byte count as a human readable string
func FormatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
