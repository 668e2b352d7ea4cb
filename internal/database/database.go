package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the shared connection pool of the inventory store
type DB struct {
	*sqlx.DB
	target Target
	mu     sync.RWMutex
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens a connection pool for the given database URL.
// Networked stores that cannot be reached yet are still returned so the
// UI can report the connectivity failure; embedded stores must open.
func New(rawURL string) (*DB, error) {
	target, err := ParseTarget(rawURL)
	if err != nil {
		return nil, err
	}

	sqlDB, err := sqlx.Open(target.Dialect.DriverName(), target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if target.Dialect == SQLite {
		// SQLite with WAL mode supports concurrent reads but serializes writes
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	db := &DB{DB: sqlDB, target: target}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		if !target.Dialect.Networked() {
			_ = sqlDB.Close()
			return nil, err
		}
		log.Warn().Err(err).Str("target", target.Redacted()).Msg("Database server not reachable yet")
	}

	log.Debug().
		Str("dialect", string(target.Dialect)).
		Str("target", target.Redacted()).
		Msg("Database connection established")

	return db, nil
}

// Dialect returns the SQL dialect of the connection
func (db *DB) Dialect() Dialect {
	return db.target.Dialect
}

// Target returns the parsed connection details
func (db *DB) Target() Target {
	return db.target
}

// Path returns the database file path for embedded stores and "" otherwise
func (db *DB) Path() string {
	if db.target.Dialect != SQLite {
		return ""
	}
	return db.target.Database
}

// Ping runs a trivial statement to verify the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Transaction wraps a function in a database transaction
func (db *DB) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// insert runs an INSERT and returns the generated id.
// PostgreSQL has no LastInsertId so the id is read back with RETURNING.
func (db *DB) insert(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	query = db.Dialect().Rebind(query)

	if db.Dialect() == Postgres {
		var id int64
		if err := q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// count runs a single-value COUNT query
func (db *DB) count(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, db.Dialect().Rebind(query), args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
