package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/saltyorg/cartridges/internal/backup"
	"github.com/saltyorg/cartridges/internal/config"
	"github.com/saltyorg/cartridges/internal/database"
	"github.com/saltyorg/cartridges/internal/logging"
	"github.com/saltyorg/cartridges/internal/web"
	"github.com/saltyorg/cartridges/internal/web/middleware"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultDatabase = "./cartridges.db"

// CLI flags
var (
	port          int
	bind          string
	allowSubnet   string
	databaseURL   string
	logFile       string
	verbosity     int
	secureCookies bool
	initOnStart   bool

	// Timeout flags (advanced)
	requestTimeout  time.Duration
	shutdownTimeout time.Duration

	backupOut string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cartridges",
		Short: "Cartridges - printer cartridge inventory",
		Long: `Cartridges keeps an inventory of printer cartridges, the printer models they fit,
their colors and the capacities they are sold in. It serves a web interface for
registration, filtered search, CSV export, an SQL console and SQL backups.`,
		PersistentPreRunE: setup,
		RunE:              run,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVarP(&databaseURL, "db", "d", defaultDatabase,
		"SQLite file or mysql:// / postgres:// URL (or set DATABASE_URL env var)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file path (default: next to the SQLite file, or LOG_FILE env var)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v debug, -vv trace)")

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "HTTP server port (required, or set PORT env var)")
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "IP address to bind to (e.g., 127.0.0.1, 0.0.0.0)")
	rootCmd.Flags().StringVarP(&allowSubnet, "allow-subnet", "a", "", "CIDR subnet allowed to connect (e.g., 192.168.1.0/24)")
	rootCmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark cookies Secure (when served behind TLS)")
	rootCmd.Flags().BoolVar(&initOnStart, "init", false, "Create missing tables and insert reference data before serving")

	rootCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 60*time.Second, "Timeout for a single page or API request")
	rootCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "Grace period for in-flight requests on shutdown")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create missing tables and insert the reference data",
		RunE:  runInit,
	})

	backupCmd := &cobra.Command{
		Use:   "backup",
		Short: "Write an SQL backup of every table",
		RunE:  runBackup,
	}
	backupCmd.Flags().StringVarP(&backupOut, "out", "o", "", "Output file; the script goes to stdout when empty")
	rootCmd.AddCommand(backupCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:               "version",
		Short:             "Show version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cartridges %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup resolves environment fallbacks and configures console logging
func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if !cmd.Flags().Changed("db") {
		databaseURL = config.EnvString(config.EnvDatabaseURL, defaultDatabase)
	}
	if logFile == "" {
		logFile = config.EnvString(config.EnvLogFile, "")
	}

	logging.ApplyConsole(logging.LevelForVerbosity(verbosity))
	return nil
}

// openDatabase connects and brings the bookkeeping tables up to date.
// Networked stores that are down only produce warnings so the UI can
// report the failure.
func openDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		if !db.Dialect().Networked() {
			_ = db.Close()
			return nil, fmt.Errorf("failed to run database migrations: %w", err)
		}
		log.Warn().Err(err).Msg("Database migrations skipped; server unreachable")
		return db, nil
	}

	if err := db.InitializeDefaults(); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize default settings")
	}
	return db, nil
}

func resolveLogFile(db *database.DB) string {
	if logFile != "" {
		return logFile
	}
	return logging.FilePathForDB(db.Path())
}

func run(cmd *cobra.Command, args []string) error {
	if port == 0 {
		envPort, err := config.EnvInt(config.EnvPort, 0)
		if err != nil {
			return err
		}
		port = envPort
	}
	if port == 0 {
		return fmt.Errorf("--port flag or PORT environment variable is required")
	}

	if bind == "" {
		bind = config.EnvString(config.EnvBind, "")
	}
	if bind != "" {
		if ip := net.ParseIP(bind); ip == nil {
			return fmt.Errorf("invalid bind address: %s", bind)
		}
	}

	if allowSubnet == "" {
		allowSubnet = config.EnvString(config.EnvAllowSubnet, "")
	}
	allowedNet, err := middleware.ParseSubnet(allowSubnet)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	// Stored settings take effect once the database is open; flags given on
	// the command line win over them
	loader := config.NewLoader(db)

	timeouts := config.DefaultTimeoutConfig()
	timeouts.Request = requestTimeout
	timeouts.Shutdown = shutdownTimeout
	timeouts.ApplySettings(loader)
	if cmd.Flags().Changed("request-timeout") {
		timeouts.Request = requestTimeout
	}
	if cmd.Flags().Changed("shutdown-timeout") {
		timeouts.Shutdown = shutdownTimeout
	}
	config.SetGlobalTimeouts(timeouts)

	level := loader.String("log.level", "info")
	if verbosity > 0 {
		level = logging.LevelForVerbosity(verbosity)
	}
	logPath := resolveLogFile(db)
	logging.Apply(level, loader, logPath)

	if (bind == "" || bind == "0.0.0.0" || bind == "::") && allowSubnet == "" {
		log.Warn().Msg("Server is accessible from all interfaces without subnet restrictions. Consider using --bind or --allow-subnet for security.")
	}

	log.Info().
		Str("version", version).
		Int("port", port).
		Str("bind", bind).
		Str("allow_subnet", allowSubnet).
		Str("database", db.Target().Redacted()).
		Msg("Starting Cartridges")

	if initOnStart {
		initialize(ctx, db)
	} else if tables, err := db.ListTables(ctx); err == nil && len(tables) > 0 {
		log.Debug().Strs("tables", tables).Msg("Existing tables")
	}

	backupMgr := backup.NewManager(db)
	if err := backupMgr.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start backup scheduler")
	}
	defer backupMgr.Stop()

	server, err := web.NewServer(db, backupMgr, web.Options{
		Port:          port,
		Bind:          bind,
		AllowedNet:    allowedNet,
		SecureCookies: secureCookies,
		LogFilePath:   logPath,
	})
	if err != nil {
		return err
	}
	server.SetVersionInfo(version, commit, date)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info().Msg("Cartridges stopped")
	return nil
}

// initialize creates the inventory tables and seeds the reference data,
// logging each problem; it reports whether everything succeeded
func initialize(ctx context.Context, db *database.DB) bool {
	tables := db.EnsureSchema(ctx)
	for _, t := range tables {
		log.Debug().Str("table", t.Table).Msg(t.String())
	}
	failures := database.SchemaErrors(tables)
	for _, err := range failures {
		log.Error().Err(err).Msg("Failed to create table")
	}

	seed := db.SeedReferenceData(ctx)
	log.Info().Int("tables", len(tables)).Str("reference_data", seed.String()).Msg("Database initialized")

	return len(failures) == 0 && len(seed.Errors) == 0
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return err
	}
	if !initialize(ctx, db) {
		return fmt.Errorf("initialization finished with errors")
	}
	return nil
}

func runBackup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	now := time.Now()
	var w io.Writer = os.Stdout
	if backupOut != "" {
		f, err := os.Create(backupOut)
		if err != nil {
			return fmt.Errorf("failed to create backup file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := db.WriteBackup(ctx, w, now); err != nil {
		return fmt.Errorf("backup failed: %s", database.Describe(err))
	}

	if backupOut != "" {
		log.Info().Str("file", backupOut).Msg("Backup written")
	}
	return nil
}
