package db

import (
	"context"
	"fmt"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// RulesFor returns the availability rules of a professional for one weekday,
// ordered by start time.
func (db *DB) RulesFor(ctx context.Context, professionalID int64, day time.Weekday) ([]model.AvailabilityRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, professional_id, day_of_week, start_minute, end_minute
		FROM availability_rules
		WHERE professional_id = ? AND day_of_week = ?
		ORDER BY start_minute, end_minute`,
		professionalID, model.ISOWeekday(day),
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

// ListRules returns every rule of a professional ordered by day and start time.
func (db *DB) ListRules(ctx context.Context, professionalID int64) ([]model.AvailabilityRule, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, professional_id, day_of_week, start_minute, end_minute
		FROM availability_rules
		WHERE professional_id = ?
		ORDER BY day_of_week, start_minute`,
		professionalID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	return scanRules(rows)
}

type ruleRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRules(rows ruleRows) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for rows.Next() {
		var (
			r          model.AvailabilityRule
			day        int
			start, end int
		)
		if err := rows.Scan(&r.ID, &r.ProfessionalID, &day, &start, &end); err != nil {
			return nil, err
		}
		wd, err := model.WeekdayFromISO(day)
		if err != nil {
			return nil, err
		}
		r.DayOfWeek = wd
		r.StartTime = model.Clock(start)
		r.EndTime = model.Clock(end)
		out = append(out, r)
	}
	return out, rows.Err()
}

// AddRule validates and stores a single rule.
func (db *DB) AddRule(ctx context.Context, r *model.AvailabilityRule) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid rule: %w", err)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO availability_rules (professional_id, day_of_week, start_minute, end_minute, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ProfessionalID, model.ISOWeekday(r.DayOfWeek), int(r.StartTime), int(r.EndTime), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert rule: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = id
	return nil
}

// DeleteRule removes a rule. Existing appointments are not touched.
func (db *DB) DeleteRule(ctx context.Context, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM availability_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// ReplaceRules swaps the whole weekly schedule of a professional atomically.
func (db *DB) ReplaceRules(ctx context.Context, professionalID int64, rules []model.AvailabilityRule) error {
	for i, r := range rules {
		r.ProfessionalID = professionalID
		if err := r.Validate(); err != nil {
			return fmt.Errorf("rule[%d]: %w", i, err)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM availability_rules WHERE professional_id = ?`, professionalID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	now := time.Now().Unix()
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO availability_rules (professional_id, day_of_week, start_minute, end_minute, created_at)
			VALUES (?, ?, ?, ?, ?)`,
			professionalID, model.ISOWeekday(r.DayOfWeek), int(r.StartTime), int(r.EndTime), now,
		); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return tx.Commit()
}
