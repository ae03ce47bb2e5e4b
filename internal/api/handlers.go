package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/reboucasericka/Sistema-sub001/internal/booking"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
	"github.com/reboucasericka/Sistema-sub001/internal/slots"
)

// SlotsResponse is the response for GET /api/v1/professionals/{id}/slots.
type SlotsResponse struct {
	ProfessionalID int64            `json:"professional_id"`
	ServiceID      int64            `json:"service_id,omitempty"`
	Date           string           `json:"date"`
	Slots          []slots.SlotInfo `json:"slots"`
}

// AppointmentResponse is an appointment together with the statuses it may
// move to next.
type AppointmentResponse struct {
	*model.Appointment
	AllowedTransitions []model.Status `json:"allowed_transitions"`
}

// CreateAppointmentRequest is the request body for POST /api/v1/appointments.
type CreateAppointmentRequest struct {
	ProfessionalID int64  `json:"professional_id"`
	CustomerID     int64  `json:"customer_id"`
	ServiceID      int64  `json:"service_id"`
	Date           string `json:"date"` // Format: YYYY-MM-DD
	Time           string `json:"time"` // Format: HH:MM
	Notes          string `json:"notes,omitempty"`
}

// TransitionRequest is the request body for POST /api/v1/appointments/{id}/transition.
type TransitionRequest struct {
	Status string `json:"status"`
}

// RescheduleRequest is the request body for POST /api/v1/appointments/{id}/reschedule.
type RescheduleRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// handleSlots lists free start times for a day, optionally for one service.
// GET /api/v1/professionals/{id}/slots?date=YYYY-MM-DD[&service_id=N]
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	professionalID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	date, err := s.parseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := SlotsResponse{ProfessionalID: professionalID, Date: date.Format(dateLayout)}
	var free []model.Clock
	if raw := q.Get("service_id"); raw != "" {
		serviceID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || serviceID <= 0 {
			writeError(w, http.StatusBadRequest, "invalid service_id")
			return
		}
		resp.ServiceID = serviceID
		free, err = s.scheduler.ListAvailableSlotsForService(r.Context(), professionalID, serviceID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	} else {
		free, err = s.scheduler.ListAvailableSlots(r.Context(), professionalID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	span, err := s.scheduler.SlotSpan(r.Context(), resp.ServiceID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp.Slots = slots.ToSlotInfo(free, span)
	writeJSON(w, http.StatusOK, resp)
}

// handleCreate books an appointment.
// POST /api/v1/appointments
func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	date, err := s.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	timeOfDay, err := parseTime(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := s.scheduler.CreateBooking(r.Context(), booking.CreateRequest{
		ProfessionalID: req.ProfessionalID,
		CustomerID:     req.CustomerID,
		ServiceID:      req.ServiceID,
		Date:           date,
		TimeOfDay:      timeOfDay,
		Notes:          req.Notes,
		ActorID:        actor(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/appointments/%d", appt.ID))
	writeJSON(w, http.StatusCreated, appt)
}

// GET /api/v1/appointments/{id}
func (s *HTTPServer) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	appt, err := s.scheduler.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AppointmentResponse{
		Appointment:        appt,
		AllowedTransitions: s.scheduler.NextStatuses(appt.Status),
	})
}

// handleListAppointments lists appointments starting within [from, to], both inclusive dates.
// GET /api/v1/professionals/{id}/appointments?from=YYYY-MM-DD[&to=YYYY-MM-DD]
func (s *HTTPServer) handleListAppointments(w http.ResponseWriter, r *http.Request) {
	professionalID, ok := pathID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	from, err := s.parseDate(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to := from
	if raw := q.Get("to"); raw != "" {
		if to, err = s.parseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "to: "+err.Error())
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return
	}
	if to.Sub(from) > MaxListDaysRange*24*time.Hour {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("date range exceeds maximum of %d days", MaxListDaysRange))
		return
	}

	appts, err := s.scheduler.ListAppointments(r.Context(), professionalID, from, to.AddDate(0, 0, 1))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if appts == nil {
		appts = []model.Appointment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": appts})
}

// POST /api/v1/appointments/{id}/transition
func (s *HTTPServer) handleTransition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req TransitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	target, valid := model.ParseStatus(req.Status)
	if !valid {
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(req.Status))
		return
	}

	appt, err := s.scheduler.Transition(r.Context(), id, target, actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// POST /api/v1/appointments/{id}/reschedule
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	date, err := s.parseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	timeOfDay, err := parseTime(req.Time)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := s.scheduler.Reschedule(r.Context(), id, date, timeOfDay, actor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// DELETE /api/v1/appointments/{id}
func (s *HTTPServer) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.Delete(r.Context(), id, actor(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/appointments/{id}/history
func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	events, err := s.scheduler.History(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if events == nil {
		events = []model.AppointmentEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (s *HTTPServer) parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	d, err := time.ParseInLocation(dateLayout, raw, s.scheduler.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return d, nil
}

func parseTime(raw string) (model.Clock, error) {
	if raw == "" {
		return 0, fmt.Errorf("time is required")
	}
	c, err := model.ParseClock(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid time format; expected HH:MM")
	}
	return c, nil
}

func actor(r *http.Request) string {
	return r.Header.Get(actorHeader)
}
