package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/saltyorg/cartridges/internal/logging"
)

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRowContext(context.Background(),
		db.Dialect().Rebind("SELECT setting_value FROM settings WHERE setting_key = ?"), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting stores a setting value
func (db *DB) SetSetting(key, value string) error {
	_, err := db.ExecContext(context.Background(),
		db.Dialect().Rebind(db.Dialect().upsertSettingSQL()), key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetAllSettings retrieves all settings
func (db *DB) GetAllSettings() (map[string]string, error) {
	rows, err := db.QueryContext(context.Background(), "SELECT setting_key, setting_value FROM settings")
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[key] = value
	}

	return settings, rows.Err()
}

// Default settings
var DefaultSettings = map[string]any{
	"log.level":               "info",
	"log.max_size_mb":         logging.DefaultMaxSizeMB,
	"log.max_backups":         logging.DefaultMaxBackups,
	"log.max_age_days":        logging.DefaultMaxAgeDays,
	"log.compress":            logging.DefaultCompress,
	"backup.schedule":         "", // cron expression, empty = disabled
	"backup.dir":              "backups",
	"backup.retain":           7,
	"console.max_rows":        1000,
	"server.request_timeout":  "60s",
	"server.shutdown_timeout": "30s",
}

// InitializeDefaults sets default values for settings that don't exist
func (db *DB) InitializeDefaults() error {
	for key, value := range maps.All(DefaultSettings) {
		existing, err := db.GetSetting(key)
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}
		if err := db.SetSetting(key, fmt.Sprint(value)); err != nil {
			return err
		}
	}
	return nil
}
