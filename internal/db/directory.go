package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// GetProfessional returns a professional by id.
func (db *DB) GetProfessional(ctx context.Context, id int64) (*model.Professional, error) {
	var p model.Professional
	err := db.QueryRowContext(ctx, `SELECT id, name, is_active FROM professionals WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get professional %d: %w", id, err)
	}
	return &p, nil
}

// GetService returns a service by id.
func (db *DB) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var (
		s       model.Service
		minutes int
	)
	err := db.QueryRowContext(ctx, `SELECT id, name, duration_minutes, is_active FROM services WHERE id = ?`, id).
		Scan(&s.ID, &s.Name, &minutes, &s.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	s.Duration = time.Duration(minutes) * time.Minute
	return &s, nil
}

// ListProfessionals returns all professionals, active first.
func (db *DB) ListProfessionals(ctx context.Context) ([]model.Professional, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, is_active FROM professionals ORDER BY is_active DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list professionals: %w", err)
	}
	defer rows.Close()

	var out []model.Professional
	for rows.Next() {
		var p model.Professional
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListServices returns all services ordered by id.
func (db *DB) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, name, duration_minutes, is_active FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var (
			s       model.Service
			minutes int
		)
		if err := rows.Scan(&s.ID, &s.Name, &minutes, &s.Active); err != nil {
			return nil, err
		}
		s.Duration = time.Duration(minutes) * time.Minute
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertProfessional inserts or updates a professional, preserving created_at.
func (db *DB) UpsertProfessional(ctx context.Context, p model.Professional) error {
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		INSERT INTO professionals (id, name, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, p.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert professional %d: %w", p.ID, err)
	}
	return nil
}

// UpsertService inserts or updates a service, preserving created_at.
func (db *DB) UpsertService(ctx context.Context, s model.Service) error {
	minutes := int(s.Duration / time.Minute)
	if minutes <= 0 {
		return fmt.Errorf("service %d: duration must be positive", s.ID)
	}
	now := time.Now().Unix()
	_, err := db.ExecContext(ctx, `
		INSERT INTO services (id, name, duration_minutes, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			duration_minutes = excluded.duration_minutes,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		s.ID, s.Name, minutes, s.Active, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert service %d: %w", s.ID, err)
	}
	return nil
}
