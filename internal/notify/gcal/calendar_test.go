package gcal

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
	"github.com/reboucasericka/Sistema-sub001/internal/notify"
)

type MockEventsAPI struct {
	mock.Mock
}

func (m *MockEventsAPI) Insert(ctx context.Context, calendarID string, ev *calendar.Event) error {
	return m.Called(ctx, calendarID, ev).Error(0)
}

func (m *MockEventsAPI) Update(ctx context.Context, calendarID, eventID string, ev *calendar.Event) error {
	return m.Called(ctx, calendarID, eventID, ev).Error(0)
}

func (m *MockEventsAPI) Delete(ctx context.Context, calendarID, eventID string) error {
	return m.Called(ctx, calendarID, eventID).Error(0)
}

var brt = time.FixedZone("BRT", -3*60*60)

func event(kind notify.Kind, professionalID int64) notify.Event {
	start := time.Date(2025, 3, 17, 9, 0, 0, 0, brt)
	return notify.Event{
		Kind: kind,
		Appointment: model.Appointment{
			ID:             5,
			ProfessionalID: professionalID,
			CustomerID:     100,
			ServiceID:      10,
			StartTime:      start,
			EndTime:        start.Add(30 * time.Minute),
			Status:         model.StatusConfirmed,
		},
	}
}

func newSink(api EventsAPI) *Sink {
	return NewWithAPI(api, Config{
		DefaultCalendarID: "clinic@group.calendar.google.com",
		Calendars:         map[int64]string{1: "ana@group.calendar.google.com"},
		Location:          brt,
	})
}

func TestEventID(t *testing.T) {
	assert.Equal(t, "appt00000005", EventID(5))
	assert.Equal(t, "appt123456789", EventID(123456789))
}

func TestDeliver_CreatedInsertsIntoProfessionalCalendar(t *testing.T) {
	api := new(MockEventsAPI)
	api.On("Insert", mock.Anything, "ana@group.calendar.google.com", mock.MatchedBy(func(ev *calendar.Event) bool {
		return ev.Id == "appt00000005" &&
			ev.Status == "confirmed" &&
			ev.Start.DateTime == "2025-03-17T09:00:00-03:00" &&
			ev.End.DateTime == "2025-03-17T09:30:00-03:00"
	})).Return(nil)

	require.NoError(t, newSink(api).Deliver(context.Background(), event(notify.KindCreated, 1)))
	api.AssertExpectations(t)
}

func TestDeliver_FallsBackToDefaultCalendar(t *testing.T) {
	api := new(MockEventsAPI)
	api.On("Insert", mock.Anything, "clinic@group.calendar.google.com", mock.Anything).Return(nil)

	require.NoError(t, newSink(api).Deliver(context.Background(), event(notify.KindCreated, 9)))
	api.AssertExpectations(t)
}

func TestDeliver_SkipsWithoutCalendar(t *testing.T) {
	api := new(MockEventsAPI)
	sink := NewWithAPI(api, Config{Location: brt})

	require.NoError(t, sink.Deliver(context.Background(), event(notify.KindCreated, 1)))
	api.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeliver_CreatedExistingEventIsUpdated(t *testing.T) {
	api := new(MockEventsAPI)
	api.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(&googleapi.Error{Code: http.StatusConflict})
	api.On("Update", mock.Anything, "ana@group.calendar.google.com", "appt00000005", mock.Anything).Return(nil)

	require.NoError(t, newSink(api).Deliver(context.Background(), event(notify.KindCreated, 1)))
	api.AssertExpectations(t)
}

func TestDeliver_UpdateMissingEventIsInserted(t *testing.T) {
	api := new(MockEventsAPI)
	api.On("Update", mock.Anything, mock.Anything, "appt00000005", mock.Anything).Return(&googleapi.Error{Code: http.StatusNotFound})
	api.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, newSink(api).Deliver(context.Background(), event(notify.KindUpdated, 1)))
	api.AssertExpectations(t)
}

func TestDeliver_CancelDeletesAndIgnoresGone(t *testing.T) {
	for _, kind := range []notify.Kind{notify.KindCanceled, notify.KindDeleted} {
		api := new(MockEventsAPI)
		api.On("Delete", mock.Anything, "ana@group.calendar.google.com", "appt00000005").Return(&googleapi.Error{Code: http.StatusGone})

		assert.NoError(t, newSink(api).Deliver(context.Background(), event(kind, 1)), kind)
		api.AssertExpectations(t)
	}
}

func TestDeliver_ErrorClassification(t *testing.T) {
	api := new(MockEventsAPI)
	api.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(&googleapi.Error{Code: http.StatusForbidden})
	err := newSink(api).Deliver(context.Background(), event(notify.KindCreated, 1))
	require.Error(t, err)
	assert.True(t, notify.IsPermanent(err))

	api = new(MockEventsAPI)
	api.On("Insert", mock.Anything, mock.Anything, mock.Anything).Return(&googleapi.Error{Code: http.StatusServiceUnavailable})
	err = newSink(api).Deliver(context.Background(), event(notify.KindCreated, 1))
	require.Error(t, err)
	assert.False(t, notify.IsPermanent(err))
}
