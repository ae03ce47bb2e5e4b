package booking

import (
	"context"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/conflict"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// Directory resolves professionals and services. Missing ids yield model.ErrNotFound.
type Directory interface {
	GetProfessional(ctx context.Context, id int64) (*model.Professional, error)
	GetService(ctx context.Context, id int64) (*model.Service, error)
}

// RuleSource returns a professional's availability rules for one weekday.
type RuleSource interface {
	RulesFor(ctx context.Context, professionalID int64, day time.Weekday) ([]model.AvailabilityRule, error)
}

// Store persists appointments. Insert and Reschedule re-check overlap atomically
// and fail with model.ErrOverlap; UpdateStatus only applies when the stored
// status still equals from and fails with model.ErrStaleStatus otherwise.
type Store interface {
	conflict.Reader
	Insert(ctx context.Context, appt *model.Appointment, actorID string) error
	Get(ctx context.Context, id int64) (*model.Appointment, error)
	UpdateStatus(ctx context.Context, id int64, from, to model.Status, actorID string, at time.Time) error
	Reschedule(ctx context.Context, id int64, start, end time.Time, actorID string, at time.Time) error
	Delete(ctx context.Context, id int64, actorID string, at time.Time) error
	ListByProfessional(ctx context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error)
	History(ctx context.Context, id int64) ([]model.AppointmentEvent, error)
}

// Locker serializes booking commits per key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// SlotCache caches a day's free slots per professional. Every day carries a
// generation that Invalidate advances. Get reports the current generation even
// on a miss, and Set stores only if the generation it is given is still current.
type SlotCache interface {
	Get(ctx context.Context, professionalID int64, date time.Time) (free []model.Clock, gen int64, ok bool)
	Set(ctx context.Context, professionalID int64, date time.Time, gen int64, free []model.Clock)
	Invalidate(ctx context.Context, professionalID int64, date time.Time)
}

// Notifier mirrors appointment changes to external systems. Implementations
// must not block and must swallow their own failures.
type Notifier interface {
	NotifyCreated(ctx context.Context, appt model.Appointment)
	NotifyUpdated(ctx context.Context, appt model.Appointment)
	NotifyCanceled(ctx context.Context, appt model.Appointment)
	NotifyDeleted(ctx context.Context, appt model.Appointment)
}

type noopCache struct{}

func (noopCache) Get(context.Context, int64, time.Time) ([]model.Clock, int64, bool) {
	return nil, 0, false
}
func (noopCache) Set(context.Context, int64, time.Time, int64, []model.Clock) {}
func (noopCache) Invalidate(context.Context, int64, time.Time)                {}

type noopNotifier struct{}

func (noopNotifier) NotifyCreated(context.Context, model.Appointment)  {}
func (noopNotifier) NotifyUpdated(context.Context, model.Appointment)  {}
func (noopNotifier) NotifyCanceled(context.Context, model.Appointment) {}
func (noopNotifier) NotifyDeleted(context.Context, model.Appointment)  {}
