package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

const appointmentColumns = `id, professional_id, customer_id, service_id, start_time, end_time, status, notes, created_at, updated_at`

func (s *Store) scanAppointment(row pgx.Row) (*model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	if err := row.Scan(&a.ID, &a.ProfessionalID, &a.CustomerID, &a.ServiceID,
		&a.StartTime, &a.EndTime, &status, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = model.Status(status)
	a.StartTime = s.local(a.StartTime)
	a.EndTime = s.local(a.EndTime)
	a.CreatedAt = s.local(a.CreatedAt)
	a.UpdatedAt = s.local(a.UpdatedAt)
	return &a, nil
}

func (s *Store) collect(rows pgx.Rows) ([]model.Appointment, error) {
	defer rows.Close()
	var out []model.Appointment
	for rows.Next() {
		a, err := s.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// FindOverlapping returns pending and confirmed appointments of a professional
// intersecting [start, end), ordered by start time.
func (s *Store) FindOverlapping(ctx context.Context, professionalID int64, start, end time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1
		  AND status IN ('pending', 'confirmed')
		  AND start_time < $3 AND end_time > $2
		ORDER BY start_time`,
		professionalID, start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("query overlapping: %w", err)
	}
	return s.collect(rows)
}

// Insert stores appt and its creation event. The exclusion constraint rejects
// an overlapping open appointment with model.ErrOverlap.
func (s *Store) Insert(ctx context.Context, appt *model.Appointment, actorID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (professional_id, customer_id, service_id, start_time, end_time, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		appt.ProfessionalID, appt.CustomerID, appt.ServiceID,
		appt.StartTime, appt.EndTime, string(appt.Status), appt.Notes,
		appt.CreatedAt, appt.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if IsConflict(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := appendEvent(ctx, tx, model.AppointmentEvent{
		AppointmentID: id,
		Action:        model.ActionCreated,
		ToStatus:      appt.Status,
		ActorID:       actorID,
		At:            appt.CreatedAt,
	}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("commit: %w", err)
	}
	appt.ID = id
	return nil
}

// Get returns an appointment by id.
func (s *Store) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := s.scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

// UpdateStatus changes the status only if it still equals from.
func (s *Store) UpdateStatus(ctx context.Context, id int64, from, to model.Status, actorID string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(to), at, id, string(from),
	)
	if err != nil {
		if IsConflict(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return missingOrStale(ctx, tx, id)
	}

	if err := appendEvent(ctx, tx, model.AppointmentEvent{
		AppointmentID: id,
		Action:        model.ActionStatus,
		FromStatus:    from,
		ToStatus:      to,
		ActorID:       actorID,
		At:            at,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Reschedule moves an open appointment to [start, end).
func (s *Store) Reschedule(ctx context.Context, id int64, start, end time.Time, actorID string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	if err := tx.QueryRow(ctx, `SELECT status FROM appointments WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
		if IsNotFound(err) {
			return model.ErrNotFound
		}
		return fmt.Errorf("load appointment %d: %w", id, err)
	}
	if !model.Status(status).Blocking() {
		return model.ErrStaleStatus
	}

	if _, err := tx.Exec(ctx, `
		UPDATE appointments SET start_time = $1, end_time = $2, updated_at = $3
		WHERE id = $4`,
		start, end, at, id,
	); err != nil {
		if IsConflict(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("reschedule appointment: %w", err)
	}

	if err := appendEvent(ctx, tx, model.AppointmentEvent{
		AppointmentID: id,
		Action:        model.ActionRescheduled,
		FromStatus:    model.Status(status),
		ToStatus:      model.Status(status),
		ActorID:       actorID,
		At:            at,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Delete removes an appointment row. The audit trail is kept.
func (s *Store) Delete(ctx context.Context, id int64, actorID string, at time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	if err := tx.QueryRow(ctx, `DELETE FROM appointments WHERE id = $1 RETURNING status`, id).Scan(&status); err != nil {
		if IsNotFound(err) {
			return model.ErrNotFound
		}
		return fmt.Errorf("delete appointment %d: %w", id, err)
	}

	if err := appendEvent(ctx, tx, model.AppointmentEvent{
		AppointmentID: id,
		Action:        model.ActionDeleted,
		FromStatus:    model.Status(status),
		ActorID:       actorID,
		At:            at,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListByProfessional returns appointments of any status starting in [from, to).
func (s *Store) ListByProfessional(ctx context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time`,
		professionalID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return s.collect(rows)
}

// History returns the audit trail of an appointment, oldest first.
func (s *Store) History(ctx context.Context, id int64) ([]model.AppointmentEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, action, from_status, to_status, actor_id, at
		FROM appointment_events
		WHERE appointment_id = $1
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.AppointmentEvent
	for rows.Next() {
		var (
			e                    model.AppointmentEvent
			action, fromSt, toSt string
		)
		if err := rows.Scan(&e.ID, &e.AppointmentID, &action, &fromSt, &toSt, &e.ActorID, &e.At); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		e.FromStatus = model.Status(fromSt)
		e.ToStatus = model.Status(toSt)
		e.At = s.local(e.At)
		out = append(out, e)
	}
	return out, rows.Err()
}

func missingOrStale(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment %d: %w", id, err)
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrStaleStatus
}

func appendEvent(ctx context.Context, tx pgx.Tx, e model.AppointmentEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointment_events (appointment_id, action, from_status, to_status, actor_id, at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.AppointmentID, string(e.Action), string(e.FromStatus), string(e.ToStatus), e.ActorID, e.At,
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}
