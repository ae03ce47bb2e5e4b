// Package api exposes the booking engine over JSON/HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/reboucasericka/Sistema-sub001/internal/booking"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

const (
	dateLayout = "2006-01-02"

	// MaxListDaysRange bounds the appointment listing window.
	MaxListDaysRange = 90

	maxBodyBytes = 1 << 20
	actorHeader  = "X-Actor-ID"
)

// Scheduler is the booking engine as seen by the HTTP layer.
type Scheduler interface {
	ListAvailableSlots(ctx context.Context, professionalID int64, date time.Time) ([]model.Clock, error)
	ListAvailableSlotsForService(ctx context.Context, professionalID, serviceID int64, date time.Time) ([]model.Clock, error)
	CreateBooking(ctx context.Context, req booking.CreateRequest) (*model.Appointment, error)
	Get(ctx context.Context, appointmentID int64) (*model.Appointment, error)
	ListAppointments(ctx context.Context, professionalID int64, from, to time.Time) ([]model.Appointment, error)
	Transition(ctx context.Context, appointmentID int64, target model.Status, actorID string) (*model.Appointment, error)
	Reschedule(ctx context.Context, appointmentID int64, date time.Time, timeOfDay model.Clock, actorID string) (*model.Appointment, error)
	Delete(ctx context.Context, appointmentID int64, actorID string) error
	History(ctx context.Context, appointmentID int64) ([]model.AppointmentEvent, error)
	SlotSpan(ctx context.Context, serviceID int64) (time.Duration, error)
	NextStatuses(st model.Status) []model.Status
	Location() *time.Location
}

// HTTPServer routes API requests to the scheduler.
type HTTPServer struct {
	scheduler Scheduler
	handler   http.Handler
}

func NewHTTPServer(scheduler Scheduler, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{scheduler: scheduler}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/professionals/{id}/slots", s.handleSlots)
	mux.HandleFunc("GET /api/v1/professionals/{id}/appointments", s.handleListAppointments)
	mux.HandleFunc("POST /api/v1/appointments", s.handleCreate)
	mux.HandleFunc("GET /api/v1/appointments/{id}", s.handleGet)
	mux.HandleFunc("DELETE /api/v1/appointments/{id}", s.handleDelete)
	mux.HandleFunc("POST /api/v1/appointments/{id}/transition", s.handleTransition)
	mux.HandleFunc("POST /api/v1/appointments/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("GET /api/v1/appointments/{id}/history", s.handleHistory)

	s.handler = withRequestID(logger, withAccessLog(mux))
	return s
}

// Handler returns the routed handler with middleware applied.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps engine errors to status codes. Validation is checked
// first because an unknown reference matches both it and ErrNotFound.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, booking.ErrSlotNotAvailable):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, booking.ErrSlotConflict), errors.Is(err, booking.ErrInvalidStateTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		w.WriteHeader(499)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
