// Package db is the SQLite store of the scheduler.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the SQLite connection pool. Times are stored as unix seconds and
// returned in the business location.
type DB struct {
	*sql.DB
	path   string
	loc    *time.Location
	logger *zerolog.Logger
}

// NewDB opens (creating if needed) the database at path and migrates the schema.
// Write transactions start with BEGIN IMMEDIATE so check-then-insert sequences
// are serialized across connections.
func NewDB(path string, loc *time.Location, logger *zerolog.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if loc == nil {
		loc = time.Local
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	instance := &DB{DB: sqlDB, path: path, loc: loc, logger: logger}
	if err := instance.createTables(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return instance, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

func (db *DB) createTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS professionals (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS availability_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			professional_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL CHECK (day_of_week BETWEEN 1 AND 7),
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			CHECK (start_minute < end_minute),
			FOREIGN KEY (professional_id) REFERENCES professionals(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rules_professional_day ON availability_rules(professional_id, day_of_week)`,
		`CREATE TABLE IF NOT EXISTS appointments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			professional_id INTEGER NOT NULL,
			customer_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			CHECK (start_time < end_time),
			CHECK (status IN ('pending', 'confirmed', 'completed', 'canceled'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointments_professional_start ON appointments(professional_id, start_time)`,
		// Last line of defense: two open appointments of one professional never share a start.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_appointments_open_start
			ON appointments(professional_id, start_time)
			WHERE status IN ('pending', 'confirmed')`,
		`CREATE TABLE IF NOT EXISTS appointment_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			appointment_id INTEGER NOT NULL,
			action TEXT NOT NULL,
			from_status TEXT NOT NULL DEFAULT '',
			to_status TEXT NOT NULL DEFAULT '',
			actor_id TEXT NOT NULL DEFAULT '',
			at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_appointment_events_appointment ON appointment_events(appointment_id)`,
	}

	for _, q := range queries {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", trimSQL(q), err)
		}
	}
	return nil
}

func (db *DB) fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).In(db.loc)
}

func trimSQL(q string) string {
	q = strings.Join(strings.Fields(q), " ")
	if len(q) > 60 {
		return q[:60] + "..."
	}
	return q
}
