package handlers

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/logging"
)

// LoggingSettings holds the logging configuration for display
type LoggingSettings struct {
	LogLevel      string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

func loadLoggingSettings(loader *config.Loader) LoggingSettings {
	return LoggingSettings{
		LogLevel:      loader.String("log.level", "info"),
		LogMaxSizeMB:  loader.Int("log.max_size_mb", logging.DefaultMaxSizeMB),
		LogMaxBackups: loader.Int("log.max_backups", logging.DefaultMaxBackups),
		LogMaxAgeDays: loader.Int("log.max_age_days", logging.DefaultMaxAgeDays),
		LogCompress:   loader.Bool("log.compress", logging.DefaultCompress),
	}
}

// SettingsLoggingUpdate handles logging settings updates
func (h *Handlers) SettingsLoggingUpdate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.flashErr(w, "Invalid form data")
		h.redirect(w, r, "/settings")
		return
	}

	logLevel := r.FormValue("log_level")
	logMaxSizeMB, _ := strconv.Atoi(r.FormValue("log_max_size_mb"))
	logMaxBackups, _ := strconv.Atoi(r.FormValue("log_max_backups"))
	logMaxAgeDays, _ := strconv.Atoi(r.FormValue("log_max_age_days"))
	logCompress := r.FormValue("log_compress") == "on"

	if !slices.Contains(logging.Levels, logLevel) {
		logLevel = "info"
	}
	if logMaxSizeMB < 1 {
		logMaxSizeMB = logging.DefaultMaxSizeMB
	}
	if logMaxBackups < 0 {
		logMaxBackups = logging.DefaultMaxBackups
	}
	if logMaxAgeDays < 0 {
		logMaxAgeDays = logging.DefaultMaxAgeDays
	}

	values := []struct{ key, value string }{
		{"log.level", logLevel},
		{"log.max_size_mb", strconv.Itoa(logMaxSizeMB)},
		{"log.max_backups", strconv.Itoa(logMaxBackups)},
		{"log.max_age_days", strconv.Itoa(logMaxAgeDays)},
		{"log.compress", strconv.FormatBool(logCompress)},
	}
	for _, v := range values {
		if err := h.db.SetSetting(v.key, v.value); err != nil {
			h.fail(w, r, "/settings", "save logging settings", err)
			return
		}
	}

	// Apply logging changes immediately
	path := h.logFilePath
	if path == "" {
		path = logging.FilePathForDB(h.db.Path())
	}
	logging.Apply(logLevel, config.NewLoader(h.db), path)

	h.flash(w, "Logging settings saved")
	h.redirect(w, r, "/settings")
}
