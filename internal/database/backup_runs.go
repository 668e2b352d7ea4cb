package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Backup trigger sources
const (
	BackupTriggerSchedule = "schedule"
	BackupTriggerManual   = "manual"
)

// BackupRun records one backup file written to disk.
type BackupRun struct {
	ID            int64
	FileName      string
	SizeBytes     int64
	TriggerSource string
	Error         string
	CreatedAt     time.Time
}

// Failed reports whether the run produced an error
func (r BackupRun) Failed() bool {
	return r.Error != ""
}

// CreateBackupRun stores a backup outcome
func (db *DB) CreateBackupRun(ctx context.Context, run *BackupRun) error {
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	id, err := db.insert(ctx, db, `
		INSERT INTO backup_runs (file_name, size_bytes, trigger_source, error_message, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		run.FileName, run.SizeBytes, run.TriggerSource, errMsg, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record backup run: %w", err)
	}
	run.ID = id
	return nil
}

// ListBackupRuns returns the most recent backup runs, newest first
func (db *DB) ListBackupRuns(ctx context.Context, limit int) ([]BackupRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, db.Dialect().Rebind(`
		SELECT id, file_name, size_bytes, trigger_source, error_message, created_at
		FROM backup_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backup runs: %w", err)
	}
	defer rows.Close()

	var runs []BackupRun
	for rows.Next() {
		var r BackupRun
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &r.FileName, &r.SizeBytes, &r.TriggerSource, &errMsg, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan backup run: %w", err)
		}
		r.Error = nullStringValue(errMsg)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
