package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// GetProfessional returns a professional by id.
func (s *Store) GetProfessional(ctx context.Context, id int64) (*model.Professional, error) {
	var p model.Professional
	err := s.pool.QueryRow(ctx, `SELECT id, name, is_active FROM professionals WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.Active)
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get professional %d: %w", id, err)
	}
	return &p, nil
}

// GetService returns a service by id.
func (s *Store) GetService(ctx context.Context, id int64) (*model.Service, error) {
	var (
		svc     model.Service
		minutes int
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, duration_minutes, is_active FROM services WHERE id = $1`, id).
		Scan(&svc.ID, &svc.Name, &minutes, &svc.Active)
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get service %d: %w", id, err)
	}
	svc.Duration = time.Duration(minutes) * time.Minute
	return &svc, nil
}

// RulesFor returns the availability rules of a professional for one weekday.
func (s *Store) RulesFor(ctx context.Context, professionalID int64, day time.Weekday) ([]model.AvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, professional_id, day_of_week, start_minute, end_minute
		FROM availability_rules
		WHERE professional_id = $1 AND day_of_week = $2
		ORDER BY start_minute, end_minute`,
		professionalID, model.ISOWeekday(day),
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var (
			r                model.AvailabilityRule
			dow              int16
			startMin, endMin int32
		)
		if err := rows.Scan(&r.ID, &r.ProfessionalID, &dow, &startMin, &endMin); err != nil {
			return nil, err
		}
		wd, err := model.WeekdayFromISO(int(dow))
		if err != nil {
			return nil, err
		}
		r.DayOfWeek = wd
		r.StartTime = model.Clock(startMin)
		r.EndTime = model.Clock(endMin)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SyncCatalog applies the configured catalog in a single transaction:
// upserts professionals and services, replaces listed professionals' weekly
// rules, and deactivates entries missing from the catalog.
func (s *Store) SyncCatalog(ctx context.Context, catalog model.Catalog) error {
	for _, p := range catalog.Professionals {
		for i, r := range catalog.Rules[p.ID] {
			if err := r.Validate(); err != nil {
				return fmt.Errorf("professional %d rule[%d]: %w", p.ID, i, err)
			}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	profIDs := make([]int64, 0, len(catalog.Professionals))
	for _, p := range catalog.Professionals {
		if _, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, is_active) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, is_active = EXCLUDED.is_active, updated_at = now()`,
			p.ID, p.Name, p.Active,
		); err != nil {
			return fmt.Errorf("upsert professional %d: %w", p.ID, err)
		}
		if err := replaceRules(ctx, tx, p.ID, catalog.Rules[p.ID]); err != nil {
			return err
		}
		profIDs = append(profIDs, p.ID)
	}

	serviceIDs := make([]int64, 0, len(catalog.Services))
	for _, svc := range catalog.Services {
		if _, err := tx.Exec(ctx, `
			INSERT INTO services (id, name, duration_minutes, is_active) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, duration_minutes = EXCLUDED.duration_minutes,
				is_active = EXCLUDED.is_active, updated_at = now()`,
			svc.ID, svc.Name, int(svc.Duration/time.Minute), svc.Active,
		); err != nil {
			return fmt.Errorf("upsert service %d: %w", svc.ID, err)
		}
		serviceIDs = append(serviceIDs, svc.ID)
	}

	if _, err := tx.Exec(ctx, `UPDATE professionals SET is_active = FALSE, updated_at = now() WHERE is_active AND NOT (id = ANY($1))`, profIDs); err != nil {
		return fmt.Errorf("deactivate professionals: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE services SET is_active = FALSE, updated_at = now() WHERE is_active AND NOT (id = ANY($1))`, serviceIDs); err != nil {
		return fmt.Errorf("deactivate services: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info().
		Int("professionals", len(catalog.Professionals)).
		Int("services", len(catalog.Services)).
		Msg("Catalog synced")
	return nil
}

func replaceRules(ctx context.Context, tx pgx.Tx, professionalID int64, rules []model.AvailabilityRule) error {
	if _, err := tx.Exec(ctx, `DELETE FROM availability_rules WHERE professional_id = $1`, professionalID); err != nil {
		return fmt.Errorf("clear rules of professional %d: %w", professionalID, err)
	}

	batch := &pgx.Batch{}
	for _, r := range rules {
		batch.Queue(`
			INSERT INTO availability_rules (professional_id, day_of_week, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)`,
			professionalID, model.ISOWeekday(r.DayOfWeek), int(r.StartTime), int(r.EndTime),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert rules of professional %d: %w", professionalID, err)
	}
	return nil
}
