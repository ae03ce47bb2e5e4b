package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

type recordingSink struct {
	name string

	mu       sync.Mutex
	failures int // remaining failures before success
	failWith error
	calls    int
	events   []Event
	closed   bool
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return s.failWith
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) snapshot() (int, []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, append([]Event(nil), s.events...)
}

func testConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:       16,
		Workers:         1,
		RetryDelays:     []time.Duration{time.Millisecond, time.Millisecond},
		DeliveryTimeout: time.Second,
	}
}

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestDispatcher_DeliversToAllSinks(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	d := NewDispatcher(testConfig(), testLogger(), a, b)
	d.Start(context.Background())

	appt := model.Appointment{ID: 7, Status: model.StatusPending}
	d.NotifyCreated(context.Background(), appt)
	appt.Status = model.StatusCanceled
	d.NotifyCanceled(context.Background(), appt)
	d.Stop()

	for _, s := range []*recordingSink{a, b} {
		_, events := s.snapshot()
		require.Len(t, events, 2, s.name)
		assert.Equal(t, KindCreated, events[0].Kind)
		assert.Equal(t, KindCanceled, events[1].Kind)
		assert.Equal(t, int64(7), events[1].Appointment.ID)
		assert.True(t, s.closed)
	}
}

func TestDispatcher_RetriesTransientFailures(t *testing.T) {
	s := &recordingSink{name: "flaky", failures: 2, failWith: errors.New("timeout")}
	d := NewDispatcher(testConfig(), testLogger(), s)
	d.Start(context.Background())

	d.NotifyUpdated(context.Background(), model.Appointment{ID: 1})
	d.Stop()

	calls, events := s.snapshot()
	assert.Equal(t, 3, calls)
	assert.Len(t, events, 1)
}

func TestDispatcher_GivesUpAfterRetries(t *testing.T) {
	s := &recordingSink{name: "down", failures: 10, failWith: errors.New("connection refused")}
	d := NewDispatcher(testConfig(), testLogger(), s)
	d.Start(context.Background())

	d.NotifyUpdated(context.Background(), model.Appointment{ID: 1})
	d.Stop()

	calls, events := s.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, events)
}

func TestDispatcher_PermanentErrorNotRetried(t *testing.T) {
	s := &recordingSink{name: "bad", failures: 10, failWith: Permanent(errors.New("forbidden"))}
	d := NewDispatcher(testConfig(), testLogger(), s)
	d.Start(context.Background())

	d.NotifyDeleted(context.Background(), model.Appointment{ID: 1})
	d.Stop()

	calls, _ := s.snapshot()
	assert.Equal(t, 1, calls)
}

func TestDispatcher_RetryAfterExtendsDelay(t *testing.T) {
	s := &recordingSink{name: "limited", failures: 1, failWith: &RetryAfterError{Delay: 30 * time.Millisecond, Err: errors.New("429")}}
	d := NewDispatcher(testConfig(), testLogger(), s)
	d.Start(context.Background())

	begin := time.Now()
	d.NotifyCreated(context.Background(), model.Appointment{ID: 1})
	d.Stop()

	_, events := s.snapshot()
	assert.Len(t, events, 1)
	assert.GreaterOrEqual(t, time.Since(begin), 30*time.Millisecond)
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	s := &recordingSink{name: "s"}
	cfg := testConfig()
	cfg.QueueSize = 1
	d := NewDispatcher(cfg, testLogger(), s)

	// Not started yet, so nothing drains the queue.
	d.NotifyCreated(context.Background(), model.Appointment{ID: 1})
	d.NotifyCreated(context.Background(), model.Appointment{ID: 2})

	d.Start(context.Background())
	d.Stop()

	_, events := s.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Appointment.ID)
}

func TestDispatcher_KeepsPerAppointmentOrderAcrossWorkers(t *testing.T) {
	s := &recordingSink{name: "s", failures: 1, failWith: errors.New("flaky")}
	cfg := testConfig()
	cfg.Workers = 2
	cfg.RetryDelays = []time.Duration{40 * time.Millisecond}
	d := NewDispatcher(cfg, testLogger(), s)
	d.Start(context.Background())

	appt := model.Appointment{ID: 7, Status: model.StatusPending}
	d.NotifyCreated(context.Background(), appt)
	appt.Status = model.StatusCanceled
	d.NotifyCanceled(context.Background(), appt)
	d.Stop()

	_, events := s.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, KindCreated, events[0].Kind)
	assert.Equal(t, KindCanceled, events[1].Kind)
}

func TestDispatcher_NotifyAfterStopIsIgnored(t *testing.T) {
	s := &recordingSink{name: "s"}
	d := NewDispatcher(testConfig(), testLogger(), s)
	d.Start(context.Background())
	d.Stop()

	assert.NotPanics(t, func() {
		d.NotifyCreated(context.Background(), model.Appointment{ID: 1})
	})
	d.Stop()

	calls, _ := s.snapshot()
	assert.Zero(t, calls)
}

func TestDispatcher_NotifyDoesNotBlockOnSlowSink(t *testing.T) {
	release := make(chan struct{})
	slow := &blockingSink{release: release}
	d := NewDispatcher(testConfig(), testLogger(), slow)
	d.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.NotifyCreated(context.Background(), model.Appointment{ID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a slow sink")
	}
	close(release)
	d.Stop()
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Deliver(ctx context.Context, _ Event) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("boom")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
