// Package pgstore is the PostgreSQL store of the scheduler. Overlap between
// open appointments of one professional is enforced by an exclusion
// constraint, so concurrent schedulers sharing a database stay consistent.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const (
	codeExclusionViolation = "23P01"
	codeUniqueViolation    = "23505"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool   *pgxpool.Pool
	loc    *time.Location
	logger *zerolog.Logger
}

// Open connects to databaseURL and migrates the schema.
func Open(ctx context.Context, databaseURL string, maxConns int32, loc *time.Location, logger *zerolog.Logger) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if loc == nil {
		loc = time.Local
	}
	s := &Store{pool: pool, loc: loc, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info().Int32("max_conns", cfg.MaxConns).Msg("PostgreSQL store initialized")
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS btree_gist`,
	`CREATE TABLE IF NOT EXISTS professionals (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS services (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS availability_rules (
		id BIGSERIAL PRIMARY KEY,
		professional_id BIGINT NOT NULL REFERENCES professionals(id) ON DELETE CASCADE,
		day_of_week SMALLINT NOT NULL CHECK (day_of_week BETWEEN 1 AND 7),
		start_minute INTEGER NOT NULL,
		end_minute INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (start_minute < end_minute)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_professional_day ON availability_rules(professional_id, day_of_week)`,
	`CREATE TABLE IF NOT EXISTS appointments (
		id BIGSERIAL PRIMARY KEY,
		professional_id BIGINT NOT NULL,
		customer_id BIGINT NOT NULL,
		service_id BIGINT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CHECK (start_time < end_time),
		CHECK (status IN ('pending', 'confirmed', 'completed', 'canceled')),
		CONSTRAINT appointments_no_overlap EXCLUDE USING gist (
			professional_id WITH =,
			tstzrange(start_time, end_time, '[)') WITH &&
		) WHERE (status IN ('pending', 'confirmed'))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointments_professional_start ON appointments(professional_id, start_time)`,
	`CREATE TABLE IF NOT EXISTS appointment_events (
		id BIGSERIAL PRIMARY KEY,
		appointment_id BIGINT NOT NULL,
		action TEXT NOT NULL,
		from_status TEXT NOT NULL DEFAULT '',
		to_status TEXT NOT NULL DEFAULT '',
		actor_id TEXT NOT NULL DEFAULT '',
		at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_appointment_events_appointment ON appointment_events(appointment_id)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for i, q := range schema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

// IsConflict reports whether err is the overlap constraint firing.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == codeExclusionViolation || pgErr.Code == codeUniqueViolation)
}

// IsNotFound reports whether err means no row matched.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (s *Store) local(t time.Time) time.Time {
	return t.In(s.loc)
}
