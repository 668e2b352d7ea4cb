package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/cartridges/internal/backup"
	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/database"
	"github.com/saltyorg/cartridges/internal/web/handlers"
	"github.com/saltyorg/cartridges/internal/web/middleware"
	"github.com/saltyorg/cartridges/internal/web/sse"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options configures the listener and request handling
type Options struct {
	Port          int
	Bind          string
	AllowedNet    *net.IPNet
	SecureCookies bool
	LogFilePath   string
}

// Server represents the web server
type Server struct {
	db        *database.DB
	opts      Options
	router    *chi.Mux
	templates map[string]*template.Template
	events    *sse.Broker
	backupMgr *backup.Manager
	handlers  *handlers.Handlers
}

// NewServer creates the web server. backupMgr may be nil, which disables
// the scheduled backup controls.
func NewServer(db *database.DB, backupMgr *backup.Manager, opts Options) (*Server, error) {
	s := &Server{
		db:        db,
		opts:      opts,
		router:    chi.NewRouter(),
		events:    sse.NewBroker(),
		backupMgr: backupMgr,
	}

	if err := s.loadTemplates(); err != nil {
		s.events.Stop()
		return nil, err
	}

	s.handlers = handlers.New(db, s.templates, backupMgr, s.events)
	s.handlers.SetSecureCookies(opts.SecureCookies)
	s.handlers.SetLogFilePath(opts.LogFilePath)

	if backupMgr != nil {
		backupMgr.SetOnRun(s.publishBackupRun)
	}

	if err := s.setupRoutes(); err != nil {
		s.events.Stop()
		return nil, err
	}
	return s, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetVersionInfo forwards build information to the page footer
func (s *Server) SetVersionInfo(version, commit, date string) {
	s.handlers.SetVersionInfo(version, commit, date)
}

func (s *Server) publishBackupRun(run *database.BackupRun) {
	eventType := sse.EventBackupCompleted
	if run.Failed() {
		eventType = sse.EventBackupFailed
	}
	s.events.Broadcast(sse.Event{Type: eventType, Data: map[string]any{
		"file":    run.FileName,
		"bytes":   run.SizeBytes,
		"trigger": run.TriggerSource,
		"error":   run.Error,
	}})
}

// templateFuncMap returns the common template functions
func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
		"formatTimePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04:05")
		},
		"formatBytes": handlers.FormatBytes,
		"formatDuration": func(d time.Duration) string {
			if d < time.Second {
				return d.Round(time.Microsecond).String()
			}
			return d.Round(time.Millisecond).String()
		},
		"cell": func(v any) string {
			if v == nil {
				return "NULL"
			}
			return fmt.Sprint(v)
		},
	}
}

// pageTemplates lists the page templates; each is parsed together with
// the base layout and the partials
var pageTemplates = []string{
	"dashboard.html",
	"registry.html",
	"search.html",
	"console.html",
	"settings.html",
}

func (s *Server) loadTemplates() error {
	s.templates = make(map[string]*template.Template)
	funcMap := templateFuncMap()

	for _, page := range pageTemplates {
		tmpl, err := template.New("").Funcs(funcMap).ParseFS(templatesFS,
			"templates/base.html",
			"templates/partials/*.html",
			"templates/"+page,
		)
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		s.templates[page] = tmpl
	}
	return nil
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() error {
	r := s.router
	h := s.handlers
	timeouts := config.GetTimeouts()

	r.Use(chimiddleware.RequestID)
	// AllowSubnet must come BEFORE RealIP so we check the actual connection source
	r.Use(middleware.AllowSubnet(s.opts.AllowedNet))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Event stream: long-lived, no timeout
	r.Get("/api/events", s.events.ServeHTTP)

	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		return fmt.Errorf("failed to setup static files: %w", err)
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticContent))))

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(timeouts.Request))

		r.Get("/healthz", h.Healthz)

		r.Get("/", h.Dashboard)
		r.Get("/dashboard/stats", h.DashboardStatsPartial)

		r.Get("/registry", h.RegistryPage)
		r.Route("/manufacturers", func(r chi.Router) {
			r.Post("/", h.ManufacturerCreate)
			r.Post("/{id}/delete", h.ManufacturerDelete)
		})
		r.Route("/printer-models", func(r chi.Router) {
			r.Post("/", h.PrinterModelCreate)
			r.Post("/{id}/delete", h.PrinterModelDelete)
		})
		r.Route("/colors", func(r chi.Router) {
			r.Post("/", h.ColorCreate)
			r.Post("/{id}/delete", h.ColorDelete)
		})
		r.Route("/capacities", func(r chi.Router) {
			r.Post("/", h.CapacityCreate)
			r.Post("/{id}/delete", h.CapacityDelete)
		})
		r.Route("/cartridges", func(r chi.Router) {
			r.Post("/", h.CartridgeCreate)
			r.Post("/{id}/delete", h.CartridgeDelete)
		})

		r.Get("/search", h.SearchPage)
		r.With(middleware.NoStore).Get("/search/export.csv", h.SearchExportCSV)
		r.Get("/api/cartridges", h.APICartridges)

		r.Route("/console", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Get("/", h.ConsolePage)
			r.Post("/", h.ConsoleRun)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", h.SettingsPage)
			r.Post("/test-connection", h.SettingsTestConnection)
			r.Post("/logging", h.SettingsLoggingUpdate)
			r.Post("/console", h.ConsoleLimitUpdate)
			r.Post("/server", h.ServerSettingsUpdate)
			r.With(middleware.NoStore).Get("/backup.sql", h.BackupDownload)
			r.Post("/backup", h.BackupConfigUpdate)
			r.Post("/backup/run", h.BackupRunNow)
			r.Post("/optimize", h.MaintenanceOptimize)
			r.Post("/vacuum", h.MaintenanceVacuum)
		})

		r.Post("/init", h.InitDatabase)
	})

	return nil
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	var addr string
	if s.opts.Bind != "" {
		addr = net.JoinHostPort(s.opts.Bind, fmt.Sprint(s.opts.Port))
	} else {
		addr = fmt.Sprintf(":%d", s.opts.Port)
	}

	timeouts := config.GetTimeouts()
	server := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: timeouts.Read,
		// WriteTimeout disabled (0) to allow the event stream; chi's
		// Timeout middleware bounds regular requests
		WriteTimeout: 0,
		IdleTimeout:  timeouts.Idle,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down HTTP server")
		// Close event streams first so Shutdown is not held by them
		s.events.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		s.events.Stop()
		return err
	}
}
