package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

// Migrate runs the versioned migrations for the application's own tables
// (settings and backup history). Inventory tables are managed by EnsureSchema.
func (db *DB) Migrate(ctx context.Context) error {
	log.Info().Msg("Running database migrations")

	d := db.Dialect()
	_, err := db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at %s DEFAULT CURRENT_TIMESTAMP
		)%s
	`, d.TimestampType(), d.TableOptions()))
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	log.Debug().Int("current_version", currentVersion).Msg("Current schema version")

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}
		log.Info().Int("version", m.Version).Str("name", m.Name).Msg("Applying migration")

		if err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			for i, stmt := range splitSQLStatements(m.SQL(d)) {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("migration %d statement %d failed: %w", m.Version, i+1, err)
				}
			}
			if _, err := tx.ExecContext(ctx, d.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.Version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
			}
			return nil
		}); err != nil {
			return err
		}
	}

	return nil
}

type migration struct {
	Version int
	Name    string
	SQL     func(d Dialect) string
}

// splitSQLStatements splits on lines ending with a semicolon, dropping
// blank lines and -- comments.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(trimmed, ";") {
			stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
			if stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}

	return statements
}

var migrations = []migration{
	{
		Version: 1,
		Name:    "settings",
		SQL: func(d Dialect) string {
			return fmt.Sprintf(`
				-- Runtime settings edited from the settings page
				CREATE TABLE IF NOT EXISTS settings (
					setting_key VARCHAR(100) PRIMARY KEY,
					setting_value TEXT NOT NULL,
					updated_at %s
				)%s;
			`, d.TimestampType(), d.TableOptions())
		},
	},
	{
		Version: 2,
		Name:    "backup_runs",
		SQL: func(d Dialect) string {
			return fmt.Sprintf(`
				-- One row per scheduled or manual backup file
				CREATE TABLE IF NOT EXISTS backup_runs (
					id %s,
					file_name VARCHAR(255) NOT NULL,
					size_bytes INTEGER NOT NULL DEFAULT 0,
					trigger_source VARCHAR(20) NOT NULL,
					error_message TEXT,
					created_at %s NOT NULL
				)%s;
				CREATE INDEX idx_backup_runs_created ON backup_runs(created_at);
			`, d.AutoIncrementPK(), d.TimestampType(), d.TableOptions())
		},
	},
}
