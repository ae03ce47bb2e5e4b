package booking

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

type fakeDirectory struct {
	professionals map[int64]model.Professional
	services      map[int64]model.Service
}

func (d *fakeDirectory) GetProfessional(_ context.Context, id int64) (*model.Professional, error) {
	p, ok := d.professionals[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &p, nil
}

func (d *fakeDirectory) GetService(_ context.Context, id int64) (*model.Service, error) {
	s, ok := d.services[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &s, nil
}

type fakeRules map[int64][]model.AvailabilityRule

func (f fakeRules) RulesFor(_ context.Context, professionalID int64, day time.Weekday) ([]model.AvailabilityRule, error) {
	var out []model.AvailabilityRule
	for _, r := range f[professionalID] {
		if r.DayOfWeek == day {
			out = append(out, r)
		}
	}
	return out, nil
}

// memStore mimics the storage contract: atomic overlap check on insert and
// conditional status updates.
type memStore struct {
	mu     sync.Mutex
	nextID int64
	appts  map[int64]*model.Appointment
	events []model.AppointmentEvent

	// hook runs inside Insert before the overlap check, outside the lock.
	hook func()
	// findHook runs once, after FindOverlapping has taken its snapshot.
	findHook func()
}

func newMemStore() *memStore {
	return &memStore{appts: make(map[int64]*model.Appointment)}
}

func (m *memStore) FindOverlapping(_ context.Context, professionalID int64, start, end time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.ProfessionalID == professionalID && a.Status.Blocking() && a.Overlaps(start, end) {
			out = append(out, *a)
		}
	}
	hook := m.findHook
	m.findHook = nil
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) overlapsLocked(professionalID, exceptID int64, start, end time.Time) bool {
	for _, a := range m.appts {
		if a.ID != exceptID && a.ProfessionalID == professionalID && a.Status.Blocking() && a.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (m *memStore) Insert(_ context.Context, appt *model.Appointment, actorID string) error {
	if m.hook != nil {
		m.hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.overlapsLocked(appt.ProfessionalID, 0, appt.StartTime, appt.EndTime) {
		return model.ErrOverlap
	}
	m.nextID++
	appt.ID = m.nextID
	cp := *appt
	m.appts[appt.ID] = &cp
	m.events = append(m.events, model.AppointmentEvent{AppointmentID: appt.ID, Action: model.ActionCreated, ToStatus: appt.Status, ActorID: actorID})
	return nil
}

func (m *memStore) Get(_ context.Context, id int64) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id int64, from, to model.Status, actorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.ErrNotFound
	}
	if a.Status != from {
		return model.ErrStaleStatus
	}
	a.Status = to
	a.UpdatedAt = at
	m.events = append(m.events, model.AppointmentEvent{AppointmentID: id, Action: model.ActionStatus, FromStatus: from, ToStatus: to, ActorID: actorID, At: at})
	return nil
}

func (m *memStore) Reschedule(_ context.Context, id int64, start, end time.Time, actorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return model.ErrNotFound
	}
	if !a.Status.Blocking() {
		return model.ErrStaleStatus
	}
	if m.overlapsLocked(a.ProfessionalID, id, start, end) {
		return model.ErrOverlap
	}
	a.StartTime, a.EndTime, a.UpdatedAt = start, end, at
	m.events = append(m.events, model.AppointmentEvent{AppointmentID: id, Action: model.ActionRescheduled, ActorID: actorID, At: at})
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64, actorID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return model.ErrNotFound
	}
	delete(m.appts, id)
	m.events = append(m.events, model.AppointmentEvent{AppointmentID: id, Action: model.ActionDeleted, ActorID: actorID, At: at})
	return nil
}

func (m *memStore) ListByProfessional(_ context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Appointment
	for _, a := range m.appts {
		if a.ProfessionalID == professionalID && !a.StartTime.Before(from) && a.StartTime.Before(to) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) History(_ context.Context, id int64) ([]model.AppointmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AppointmentEvent
	for _, e := range m.events {
		if e.AppointmentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyCreated(ctx context.Context, appt model.Appointment) {
	m.Called(ctx, appt)
}

func (m *MockNotifier) NotifyUpdated(ctx context.Context, appt model.Appointment) {
	m.Called(ctx, appt)
}

func (m *MockNotifier) NotifyCanceled(ctx context.Context, appt model.Appointment) {
	m.Called(ctx, appt)
}

func (m *MockNotifier) NotifyDeleted(ctx context.Context, appt model.Appointment) {
	m.Called(ctx, appt)
}

type countingCache struct {
	mu          sync.Mutex
	data        map[string][]model.Clock
	gens        map[string]int64
	invalidated int
}

func newCountingCache() *countingCache {
	return &countingCache{data: make(map[string][]model.Clock), gens: make(map[string]int64)}
}

func cacheKey(id int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", id, date.Format("2006-01-02"))
}

func (c *countingCache) Get(_ context.Context, id int64, date time.Time) ([]model.Clock, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(id, date)
	v, ok := c.data[key]
	return v, c.gens[key], ok
}

func (c *countingCache) Set(_ context.Context, id int64, date time.Time, gen int64, free []model.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(id, date)
	if c.gens[key] != gen {
		return
	}
	c.data[key] = free
}

func (c *countingCache) Invalidate(_ context.Context, id int64, date time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey(id, date)
	delete(c.data, key)
	c.gens[key]++
	c.invalidated++
}
