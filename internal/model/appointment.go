package model

import "time"

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
)

// ParseStatus validates a textual status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled:
		return st, true
	}
	return "", false
}

// Blocking reports whether an appointment in this status occupies its interval.
func (s Status) Blocking() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is a committed booking of a service with a professional.
// EndTime is fixed at creation from the service duration.
type Appointment struct {
	ID             int64     `json:"id"`
	ProfessionalID int64     `json:"professional_id"`
	CustomerID     int64     `json:"customer_id"`
	ServiceID      int64     `json:"service_id"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         Status    `json:"status"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Overlaps reports whether the appointment intersects [start, end).
func (a Appointment) Overlaps(start, end time.Time) bool {
	return Overlaps(a.StartTime, a.EndTime, start, end)
}

// Overlaps is the half-open interval test: touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Action names an audited change to an appointment.
type Action string

const (
	ActionCreated     Action = "created"
	ActionStatus      Action = "status_changed"
	ActionRescheduled Action = "rescheduled"
	ActionDeleted     Action = "deleted"
)

// AppointmentEvent is one audit record of an appointment change.
type AppointmentEvent struct {
	ID            int64     `json:"id"`
	AppointmentID int64     `json:"appointment_id"`
	Action        Action    `json:"action"`
	FromStatus    Status    `json:"from_status,omitempty"`
	ToStatus      Status    `json:"to_status,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	At            time.Time `json:"at"`
}
