package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

const appointmentColumns = `id, professional_id, customer_id, service_id, start_time, end_time, status, notes, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanAppointment(row rowScanner) (*model.Appointment, error) {
	var (
		a                            model.Appointment
		start, end, created, updated int64
		status                       string
	)
	if err := row.Scan(&a.ID, &a.ProfessionalID, &a.CustomerID, &a.ServiceID, &start, &end, &status, &a.Notes, &created, &updated); err != nil {
		return nil, err
	}
	a.StartTime = db.fromUnix(start)
	a.EndTime = db.fromUnix(end)
	a.Status = model.Status(status)
	a.CreatedAt = db.fromUnix(created)
	a.UpdatedAt = db.fromUnix(updated)
	return &a, nil
}

// FindOverlapping returns pending and confirmed appointments of a professional
// intersecting [start, end), ordered by start time.
func (db *DB) FindOverlapping(ctx context.Context, professionalID int64, start, end time.Time) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = ?
		  AND status IN ('pending', 'confirmed')
		  AND start_time < ? AND end_time > ?
		ORDER BY start_time`,
		professionalID, end.Unix(), start.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query overlapping: %w", err)
	}
	defer rows.Close()

	return db.collectAppointments(rows)
}

func (db *DB) collectAppointments(rows *sql.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		a, err := db.scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Insert commits appt as a new row after re-checking overlap in the same
// immediate transaction. It sets appt.ID.
func (db *DB) Insert(ctx context.Context, appt *model.Appointment, actorID string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := overlapInTx(ctx, tx, appt.ProfessionalID, 0, appt.StartTime, appt.EndTime); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO appointments (professional_id, customer_id, service_id, start_time, end_time, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		appt.ProfessionalID, appt.CustomerID, appt.ServiceID,
		appt.StartTime.Unix(), appt.EndTime.Unix(), string(appt.Status), appt.Notes,
		appt.CreatedAt.Unix(), appt.UpdatedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("insert appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
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

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return model.ErrOverlap
		}
		return fmt.Errorf("commit: %w", err)
	}
	appt.ID = id
	return nil
}

// Get returns an appointment by id.
func (db *DB) Get(ctx context.Context, id int64) (*model.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := db.scanAppointment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("get appointment %d: %w", id, err)
	}
	return a, nil
}

// UpdateStatus changes the status only if it still equals from.
func (db *DB) UpdateStatus(ctx context.Context, id int64, from, to model.Status, actorID string, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), at.Unix(), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := expectOneRow(ctx, tx, res, id); err != nil {
		return err
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
	return tx.Commit()
}

// Reschedule moves an open appointment to [start, end) if that interval is free
// of other open appointments.
func (db *DB) Reschedule(ctx context.Context, id int64, start, end time.Time, actorID string, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var professionalID int64
	var status string
	err = tx.QueryRowContext(ctx, `SELECT professional_id, status FROM appointments WHERE id = ?`, id).Scan(&professionalID, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("load appointment %d: %w", id, err)
	}
	if !model.Status(status).Blocking() {
		return model.ErrStaleStatus
	}

	if err := overlapInTx(ctx, tx, professionalID, id, start, end); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE appointments SET start_time = ?, end_time = ?, updated_at = ?
		WHERE id = ?`,
		start.Unix(), end.Unix(), at.Unix(), id,
	); err != nil {
		if isUniqueViolation(err) {
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
	return tx.Commit()
}

// Delete removes an appointment row. The audit trail is kept.
func (db *DB) Delete(ctx context.Context, id int64, actorID string, at time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	if err := tx.QueryRowContext(ctx, `SELECT status FROM appointments WHERE id = ?`, id).Scan(&status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ErrNotFound
		}
		return fmt.Errorf("load appointment %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM appointments WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete appointment: %w", err)
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
	return tx.Commit()
}

// ListByProfessional returns appointments of any status starting in [from, to).
func (db *DB) ListByProfessional(ctx context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = ? AND start_time >= ? AND start_time < ?
		ORDER BY start_time`,
		professionalID, from.Unix(), to.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	return db.collectAppointments(rows)
}

// History returns the audit trail of an appointment, oldest first.
func (db *DB) History(ctx context.Context, id int64) ([]model.AppointmentEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, appointment_id, action, from_status, to_status, actor_id, at
		FROM appointment_events
		WHERE appointment_id = ?
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []model.AppointmentEvent
	for rows.Next() {
		var (
			e            model.AppointmentEvent
			action       string
			fromSt, toSt string
			at           int64
		)
		if err := rows.Scan(&e.ID, &e.AppointmentID, &action, &fromSt, &toSt, &e.ActorID, &at); err != nil {
			return nil, err
		}
		e.Action = model.Action(action)
		e.FromStatus = model.Status(fromSt)
		e.ToStatus = model.Status(toSt)
		e.At = db.fromUnix(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

func overlapInTx(ctx context.Context, tx *sql.Tx, professionalID, exceptID int64, start, end time.Time) error {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM appointments
		WHERE professional_id = ? AND id != ?
		  AND status IN ('pending', 'confirmed')
		  AND start_time < ? AND end_time > ?`,
		professionalID, exceptID, end.Unix(), start.Unix(),
	).Scan(&n)
	if err != nil {
		return fmt.Errorf("check overlap: %w", err)
	}
	if n > 0 {
		return model.ErrOverlap
	}
	return nil
}

// expectOneRow turns a zero-row conditional update into ErrNotFound or ErrStaleStatus.
func expectOneRow(ctx context.Context, tx *sql.Tx, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM appointments WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check appointment %d: %w", id, err)
	}
	if exists == 0 {
		return model.ErrNotFound
	}
	return model.ErrStaleStatus
}

func appendEvent(ctx context.Context, tx *sql.Tx, e model.AppointmentEvent) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO appointment_events (appointment_id, action, from_status, to_status, actor_id, at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.AppointmentID, string(e.Action), string(e.FromStatus), string(e.ToStatus), e.ActorID, e.At.Unix(),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
