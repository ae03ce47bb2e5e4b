// Package gcal mirrors appointments into Google Calendar, one calendar per
// professional.
package gcal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
	"github.com/reboucasericka/Sistema-sub001/internal/notify"
)

// EventsAPI is the subset of the Calendar events resource the sink uses.
type EventsAPI interface {
	Insert(ctx context.Context, calendarID string, ev *calendar.Event) error
	Update(ctx context.Context, calendarID, eventID string, ev *calendar.Event) error
	Delete(ctx context.Context, calendarID, eventID string) error
}

// Config selects the calendar for each professional.
type Config struct {
	CredentialsFile   string
	DefaultCalendarID string
	Calendars         map[int64]string
	Location          *time.Location
}

// Sink is a notify.Sink writing to Google Calendar.
type Sink struct {
	api       EventsAPI
	calendars map[int64]string
	fallback  string
	loc       *time.Location
}

// New builds a sink authenticated with a service account key file.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, calendar.CalendarEventsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	svc, err := calendar.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return NewWithAPI(&serviceAPI{svc: svc}, cfg), nil
}

// NewWithAPI builds a sink over an existing events client.
func NewWithAPI(api EventsAPI, cfg Config) *Sink {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Sink{api: api, calendars: cfg.Calendars, fallback: cfg.DefaultCalendarID, loc: loc}
}

func (s *Sink) Name() string { return "google_calendar" }

// Deliver upserts or removes the calendar event for the appointment.
// Professionals without a calendar are skipped.
func (s *Sink) Deliver(ctx context.Context, ev notify.Event) error {
	calID := s.calendarFor(ev.Appointment.ProfessionalID)
	if calID == "" {
		return nil
	}
	eventID := EventID(ev.Appointment.ID)

	var err error
	switch ev.Kind {
	case notify.KindCreated:
		err = s.api.Insert(ctx, calID, s.toEvent(ev.Appointment))
		if statusCode(err) == http.StatusConflict {
			err = s.api.Update(ctx, calID, eventID, s.toEvent(ev.Appointment))
		}
	case notify.KindUpdated:
		err = s.api.Update(ctx, calID, eventID, s.toEvent(ev.Appointment))
		if statusCode(err) == http.StatusNotFound {
			err = s.api.Insert(ctx, calID, s.toEvent(ev.Appointment))
		}
	case notify.KindCanceled, notify.KindDeleted:
		err = s.api.Delete(ctx, calID, eventID)
		if code := statusCode(err); code == http.StatusNotFound || code == http.StatusGone {
			err = nil
		}
	default:
		return notify.Permanent(fmt.Errorf("unknown event kind %q", ev.Kind))
	}
	if err == nil {
		return nil
	}

	err = fmt.Errorf("calendar %s event %s: %w", calID, eventID, err)
	switch statusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return notify.Permanent(err)
	}
	return err
}

func (s *Sink) calendarFor(professionalID int64) string {
	if id, ok := s.calendars[professionalID]; ok && id != "" {
		return id
	}
	return s.fallback
}

// EventID derives a stable calendar event ID. Calendar IDs allow only
// base32hex characters, which covers lowercase a-v and digits.
func EventID(appointmentID int64) string {
	return fmt.Sprintf("appt%08d", appointmentID)
}

func (s *Sink) toEvent(a model.Appointment) *calendar.Event {
	status := "confirmed"
	if a.Status == model.StatusPending {
		status = "tentative"
	}
	desc := fmt.Sprintf("Cliente #%d\nServiço #%d", a.CustomerID, a.ServiceID)
	if a.Notes != "" {
		desc += "\n" + a.Notes
	}
	return &calendar.Event{
		Id:          EventID(a.ID),
		Summary:     fmt.Sprintf("Agendamento #%d", a.ID),
		Description: desc,
		Status:      status,
		Start: &calendar.EventDateTime{
			DateTime: a.StartTime.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
		End: &calendar.EventDateTime{
			DateTime: a.EndTime.In(s.loc).Format(time.RFC3339),
			TimeZone: s.loc.String(),
		},
	}
}

func statusCode(err error) int {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code
	}
	return 0
}

type serviceAPI struct {
	svc *calendar.Service
}

func (a *serviceAPI) Insert(ctx context.Context, calendarID string, ev *calendar.Event) error {
	_, err := a.svc.Events.Insert(calendarID, ev).Context(ctx).Do()
	return err
}

func (a *serviceAPI) Update(ctx context.Context, calendarID, eventID string, ev *calendar.Event) error {
	_, err := a.svc.Events.Update(calendarID, eventID, ev).Context(ctx).Do()
	return err
}

func (a *serviceAPI) Delete(ctx context.Context, calendarID, eventID string) error {
	return a.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
}
