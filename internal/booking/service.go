package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/reboucasericka/Sistema-sub001/internal/conflict"
	"github.com/reboucasericka/Sistema-sub001/internal/lock"
	"github.com/reboucasericka/Sistema-sub001/internal/metrics"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
	"github.com/reboucasericka/Sistema-sub001/internal/slots"
)

// Config holds engine-wide settings.
type Config struct {
	Granularity time.Duration
	Location    *time.Location
	Now         func() time.Time
}

// Deps are the collaborators of the engine. Locker, Cache and Notifier are optional.
type Deps struct {
	Directory Directory
	Rules     RuleSource
	Store     Store
	Locker    Locker
	Cache     SlotCache
	Notifier  Notifier
}

// CreateRequest is the input of CreateBooking.
type CreateRequest struct {
	ProfessionalID int64
	CustomerID     int64
	ServiceID      int64
	Date           time.Time
	TimeOfDay      model.Clock
	Notes          string
	ActorID        string
}

// Service implements the booking workflow.
type Service struct {
	directory Directory
	rules     RuleSource
	store     Store
	detector  *conflict.Detector
	locker    Locker
	cache     SlotCache
	notifier  Notifier
	fsm       *StateMachine

	granularity time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *zerolog.Logger
}

// NewService creates the booking engine.
func NewService(deps Deps, cfg Config, logger *zerolog.Logger) *Service {
	if cfg.Granularity <= 0 {
		cfg.Granularity = slots.DefaultGranularity
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewLocalLocker()
	}
	if deps.Cache == nil {
		deps.Cache = noopCache{}
	}
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Service{
		directory:   deps.Directory,
		rules:       deps.Rules,
		store:       deps.Store,
		detector:    conflict.NewDetector(deps.Store),
		locker:      deps.Locker,
		cache:       deps.Cache,
		notifier:    deps.Notifier,
		fsm:         NewStateMachine(),
		granularity: cfg.Granularity,
		loc:         cfg.Location,
		now:         cfg.Now,
		logger:      logger,
	}
}

// Granularity returns the slot spacing.
func (s *Service) Granularity() time.Duration {
	return s.granularity
}

// SlotSpan is the length of each listed slot: the duration of serviceID, or
// the granularity when serviceID is zero.
func (s *Service) SlotSpan(ctx context.Context, serviceID int64) (time.Duration, error) {
	if serviceID == 0 {
		return s.granularity, nil
	}
	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	return svc.Duration, nil
}

// NextStatuses returns the statuses an appointment in status st may move to.
func (s *Service) NextStatuses(st model.Status) []model.Status {
	return s.fsm.Next(st)
}

// Location returns the business timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// ListAvailableSlots returns the bookable start times of professionalID on date:
// the availability template minus every slot overlapping a pending or confirmed
// appointment, minus slots that have already started. The result is advisory.
func (s *Service) ListAvailableSlots(ctx context.Context, professionalID int64, date time.Time) ([]model.Clock, error) {
	started := time.Now()
	if _, err := s.activeProfessional(ctx, professionalID); err != nil {
		return nil, err
	}

	day := model.StartOfDay(date, s.loc)
	free, gen, ok := s.cache.Get(ctx, professionalID, day)
	if ok {
		metrics.ObserveSlotQuery("hit", time.Since(started))
		return slots.NotBefore(free, day, s.now()), nil
	}

	template, _, err := s.template(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}

	free, err = s.detector.FilterAvailable(ctx, professionalID, day, template, s.granularity)
	if err != nil {
		return nil, fmt.Errorf("filter slots: %w", err)
	}
	// A write that committed after Get advanced gen, so this Set is dropped.
	s.cache.Set(ctx, professionalID, day, gen, free)
	metrics.ObserveSlotQuery("miss", time.Since(started))

	return slots.NotBefore(free, day, s.now()), nil
}

// ListAvailableSlotsForService is ListAvailableSlots for a concrete service:
// a start time is offered only if the whole service duration fits inside the
// day's availability and overlaps no blocking appointment.
func (s *Service) ListAvailableSlotsForService(ctx context.Context, professionalID, serviceID int64, date time.Time) ([]model.Clock, error) {
	if _, err := s.activeProfessional(ctx, professionalID); err != nil {
		return nil, err
	}
	svc, err := s.activeService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	day := model.StartOfDay(date, s.loc)
	template, rules, err := s.template(ctx, professionalID, day)
	if err != nil {
		return nil, err
	}

	free, err := s.detector.FilterAvailable(ctx, professionalID, day, slots.Fitting(template, rules, svc.Duration), svc.Duration)
	if err != nil {
		return nil, fmt.Errorf("filter slots: %w", err)
	}
	return slots.NotBefore(free, day, s.now()), nil
}

// CreateBooking validates the request and commits a pending appointment.
// The conflict check and the insert run under a per-professional lock and the
// store re-checks overlap inside its own transaction, so of two concurrent
// requests for the same interval exactly one succeeds.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	appt, err := s.createBooking(ctx, req)
	metrics.IncBookingAttempt(resultLabel(err))
	if err != nil {
		s.logger.Debug().Err(err).
			Int64("professional_id", req.ProfessionalID).
			Int64("service_id", req.ServiceID).
			Msg("Booking rejected")
		return nil, err
	}

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Int64("professional_id", appt.ProfessionalID).
		Time("start", appt.StartTime).
		Msg("Appointment created")
	s.notifier.NotifyCreated(ctx, *appt)
	return appt, nil
}

func (s *Service) createBooking(ctx context.Context, req CreateRequest) (*model.Appointment, error) {
	if req.CustomerID <= 0 {
		return nil, validationf("customer id must be positive")
	}
	if !req.TimeOfDay.Valid() {
		return nil, validationf("time of day out of range")
	}
	if _, err := s.activeProfessional(ctx, req.ProfessionalID); err != nil {
		return nil, err
	}
	svc, err := s.activeService(ctx, req.ServiceID)
	if err != nil {
		return nil, err
	}

	start, err := s.placeOnGrid(ctx, req.ProfessionalID, req.Date, req.TimeOfDay, svc.Duration)
	if err != nil {
		return nil, err
	}

	now := s.now()
	appt := &model.Appointment{
		ProfessionalID: req.ProfessionalID,
		CustomerID:     req.CustomerID,
		ServiceID:      req.ServiceID,
		StartTime:      start,
		EndTime:        start.Add(svc.Duration),
		Status:         model.StatusPending,
		Notes:          req.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.withProfessionalLock(ctx, req.ProfessionalID, func() error {
		busy, err := s.detector.HasConflict(ctx, appt.ProfessionalID, appt.StartTime, appt.EndTime)
		if err != nil {
			return err
		}
		if busy {
			return ErrSlotConflict
		}
		if err := s.store.Insert(ctx, appt, req.ActorID); err != nil {
			if errors.Is(err, model.ErrOverlap) {
				return ErrSlotConflict
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, appt.ProfessionalID, model.StartOfDay(appt.StartTime, s.loc))
	return appt, nil
}

// Transition moves an appointment to target if the lifecycle allows it.
// The update is conditional on the status read, so a concurrent change makes
// this call fail with InvalidStateTransition instead of overwriting it.
func (s *Service) Transition(ctx context.Context, appointmentID int64, target model.Status, actorID string) (*model.Appointment, error) {
	appt, err := s.transition(ctx, appointmentID, target, actorID)
	if err != nil {
		metrics.IncTransition(string(target), resultLabel(err))
		return nil, err
	}
	metrics.IncTransition(string(target), "ok")

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Str("status", string(appt.Status)).
		Str("actor_id", actorID).
		Msg("Appointment status changed")

	if target == model.StatusCanceled {
		s.notifier.NotifyCanceled(ctx, *appt)
	} else {
		s.notifier.NotifyUpdated(ctx, *appt)
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, appointmentID int64, target model.Status, actorID string) (*model.Appointment, error) {
	if _, ok := model.ParseStatus(string(target)); !ok {
		return nil, validationf("unknown status %q", target)
	}

	appt, err := s.get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !s.fsm.CanTransition(appt.Status, target) {
		return nil, &TransitionError{From: appt.Status, To: target}
	}

	now := s.now()
	if err := s.store.UpdateStatus(ctx, appointmentID, appt.Status, target, actorID, now); err != nil {
		if errors.Is(err, model.ErrStaleStatus) {
			current, getErr := s.get(ctx, appointmentID)
			if getErr != nil {
				return nil, getErr
			}
			return nil, &TransitionError{From: current.Status, To: target}
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	appt.Status = target
	appt.UpdatedAt = now
	s.cache.Invalidate(ctx, appt.ProfessionalID, model.StartOfDay(appt.StartTime, s.loc))
	return appt, nil
}

// Confirm moves a pending appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, appointmentID int64, actorID string) (*model.Appointment, error) {
	return s.Transition(ctx, appointmentID, model.StatusConfirmed, actorID)
}

// Complete moves a confirmed appointment to completed.
func (s *Service) Complete(ctx context.Context, appointmentID int64, actorID string) (*model.Appointment, error) {
	return s.Transition(ctx, appointmentID, model.StatusCompleted, actorID)
}

// Cancel cancels a pending or confirmed appointment and frees its interval.
func (s *Service) Cancel(ctx context.Context, appointmentID int64, actorID string) (*model.Appointment, error) {
	return s.Transition(ctx, appointmentID, model.StatusCanceled, actorID)
}

// Reschedule moves an open appointment to another start time, keeping its
// length. It follows the same grid, conflict and atomicity rules as creation.
func (s *Service) Reschedule(ctx context.Context, appointmentID int64, date time.Time, timeOfDay model.Clock, actorID string) (*model.Appointment, error) {
	appt, err := s.get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.Blocking() {
		return nil, validationf("appointment %d is %s and cannot be rescheduled", appointmentID, appt.Status)
	}
	if !timeOfDay.Valid() {
		return nil, validationf("time of day out of range")
	}
	if _, err := s.activeProfessional(ctx, appt.ProfessionalID); err != nil {
		return nil, err
	}

	length := appt.EndTime.Sub(appt.StartTime)
	start, err := s.placeOnGrid(ctx, appt.ProfessionalID, date, timeOfDay, length)
	if err != nil {
		return nil, err
	}
	end := start.Add(length)
	oldDay := model.StartOfDay(appt.StartTime, s.loc)
	now := s.now()

	err = s.withProfessionalLock(ctx, appt.ProfessionalID, func() error {
		busy, err := s.store.FindOverlapping(ctx, appt.ProfessionalID, start, end)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		for _, b := range busy {
			if b.ID != appt.ID && b.Status.Blocking() {
				return ErrSlotConflict
			}
		}
		switch err := s.store.Reschedule(ctx, appointmentID, start, end, actorID, now); {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrOverlap):
			return ErrSlotConflict
		case errors.Is(err, model.ErrStaleStatus):
			return validationf("appointment %d is no longer open", appointmentID)
		case errors.Is(err, model.ErrNotFound):
			return fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		default:
			return fmt.Errorf("reschedule appointment: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}

	appt.StartTime = start
	appt.EndTime = end
	appt.UpdatedAt = now
	s.cache.Invalidate(ctx, appt.ProfessionalID, oldDay)
	s.cache.Invalidate(ctx, appt.ProfessionalID, model.StartOfDay(start, s.loc))

	s.logger.Info().
		Int64("appointment_id", appt.ID).
		Time("start", start).
		Str("actor_id", actorID).
		Msg("Appointment rescheduled")
	s.notifier.NotifyUpdated(ctx, *appt)
	return appt, nil
}

// Delete removes an appointment permanently. It bypasses the lifecycle and
// still notifies so mirrored external entries are removed.
func (s *Service) Delete(ctx context.Context, appointmentID int64, actorID string) error {
	appt, err := s.get(ctx, appointmentID)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, appointmentID, actorID, s.now()); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		}
		return fmt.Errorf("delete appointment: %w", err)
	}
	metrics.IncDeleted()
	s.cache.Invalidate(ctx, appt.ProfessionalID, model.StartOfDay(appt.StartTime, s.loc))

	s.logger.Info().
		Int64("appointment_id", appointmentID).
		Str("actor_id", actorID).
		Msg("Appointment deleted")
	s.notifier.NotifyDeleted(ctx, *appt)
	return nil
}

// Get returns an appointment by id.
func (s *Service) Get(ctx context.Context, appointmentID int64) (*model.Appointment, error) {
	return s.get(ctx, appointmentID)
}

// ListAppointments returns a professional's appointments starting in [from, to).
func (s *Service) ListAppointments(ctx context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error) {
	if !from.Before(to) {
		return nil, validationf("empty range")
	}
	list, err := s.store.ListByProfessional(ctx, professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

// History returns the audit trail of an appointment, oldest first.
func (s *Service) History(ctx context.Context, appointmentID int64) ([]model.AppointmentEvent, error) {
	events, err := s.store.History(ctx, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return events, nil
}

func (s *Service) get(ctx context.Context, appointmentID int64) (*model.Appointment, error) {
	appt, err := s.store.Get(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("appointment %d: %w", appointmentID, ErrNotFound)
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return appt, nil
}

// placeOnGrid checks the date, the time of day and the length against the
// professional's availability and returns the absolute start time.
func (s *Service) placeOnGrid(ctx context.Context, professionalID int64, date time.Time, timeOfDay model.Clock, length time.Duration) (time.Time, error) {
	now := s.now()
	day := model.StartOfDay(date, s.loc)
	if day.Before(model.StartOfDay(now, s.loc)) {
		return time.Time{}, validationf("date %s is in the past", day.Format("2006-01-02"))
	}

	start := timeOfDay.On(day)
	if start.Before(now) {
		return time.Time{}, validationf("start time %s has already passed", start.Format("2006-01-02 15:04"))
	}

	template, rules, err := s.template(ctx, professionalID, day)
	if err != nil {
		return time.Time{}, err
	}
	if !slots.Contains(template, timeOfDay) {
		return time.Time{}, fmt.Errorf("%w: %s on %s", ErrSlotNotAvailable, timeOfDay, day.Format("2006-01-02"))
	}
	if !model.Covers(rules, timeOfDay, timeOfDay.Add(length)) {
		return time.Time{}, fmt.Errorf("%w: %s does not fit before the end of availability", ErrSlotNotAvailable, timeOfDay)
	}
	return start, nil
}

func (s *Service) template(ctx context.Context, professionalID int64, day time.Time) ([]model.Clock, []model.AvailabilityRule, error) {
	rules, err := s.rules.RulesFor(ctx, professionalID, day.Weekday())
	if err != nil {
		return nil, nil, fmt.Errorf("load availability: %w", err)
	}
	template, err := slots.Generate(rules, s.granularity)
	if err != nil {
		return nil, nil, err
	}
	return template, rules, nil
}

func (s *Service) withProfessionalLock(ctx context.Context, professionalID int64, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, fmt.Sprintf("professional:%d", professionalID))
	if err != nil {
		return fmt.Errorf("lock professional %d: %w", professionalID, err)
	}
	defer unlock()
	return fn()
}

func (s *Service) activeProfessional(ctx context.Context, id int64) (*model.Professional, error) {
	if id <= 0 {
		return nil, validationf("professional id must be positive")
	}
	p, err := s.directory.GetProfessional(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: professional %d: %w", ErrValidation, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get professional: %w", err)
	}
	if !p.Active {
		return nil, validationf("professional %d is inactive", id)
	}
	return p, nil
}

func (s *Service) activeService(ctx context.Context, id int64) (*model.Service, error) {
	if id <= 0 {
		return nil, validationf("service id must be positive")
	}
	svc, err := s.directory.GetService(ctx, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("%w: service %d: %w", ErrValidation, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	if !svc.Active {
		return nil, validationf("service %d is inactive", id)
	}
	if svc.Duration <= 0 {
		return nil, validationf("service %d has no duration", id)
	}
	return svc, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrSlotNotAvailable):
		return "not_available"
	case errors.Is(err, ErrSlotConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidStateTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
