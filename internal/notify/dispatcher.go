package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/reboucasericka/Sistema-sub001/internal/metrics"
	"github.com/reboucasericka/Sistema-sub001/internal/model"
)

// Sink delivers one event to an external system.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// DispatcherConfig holds configuration for the dispatcher.
type DispatcherConfig struct {
	QueueSize       int
	Workers         int
	Rate            float64 // deliveries per second across all sinks, 0 = unlimited
	Burst           int
	RetryDelays     []time.Duration
	DeliveryTimeout time.Duration
}

// DefaultDispatcherConfig returns the default configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:       256,
		Workers:         2,
		Rate:            20,
		Burst:           30,
		RetryDelays:     []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second},
		DeliveryTimeout: 10 * time.Second,
	}
}

// Dispatcher is the notification gateway: Notify* calls only enqueue, and
// background workers fan each event out to every sink with rate limiting
// and retries. Failures are logged and counted, never returned.
//
// Each worker owns a queue and an appointment always maps to the same worker,
// so sinks see one appointment's events in the order they happened.
type Dispatcher struct {
	sinks   []Sink
	cfg     DispatcherConfig
	limiter *rate.Limiter
	logger  *zerolog.Logger
	now     func() time.Time

	mu      sync.RWMutex
	queues  []chan Event
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher over sinks. Call Start before use.
func NewDispatcher(cfg DispatcherConfig, logger *zerolog.Logger, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	perWorker := (cfg.QueueSize + cfg.Workers - 1) / cfg.Workers
	queues := make([]chan Event, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan Event, perWorker)
	}

	return &Dispatcher{
		sinks:   sinks,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
		now:     time.Now,
		queues:  queues,
	}
}

// Start launches the workers. They exit when ctx is done or after Stop drains the queue.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return
	}
	d.started = true

	for _, q := range d.queues {
		d.wg.Add(1)
		go d.worker(ctx, q)
	}
	d.logger.Info().Int("workers", d.cfg.Workers).Int("sinks", len(d.sinks)).Msg("Notification dispatcher started")
}

// Stop stops accepting events, waits for queued ones, and closes sinks that hold resources.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		close(q)
	}
	d.mu.Unlock()

	d.wg.Wait()

	for _, s := range d.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				d.logger.Warn().Err(err).Str("sink", s.Name()).Msg("Failed to close sink")
			}
		}
	}
	d.logger.Info().Msg("Notification dispatcher stopped")
}

func (d *Dispatcher) NotifyCreated(_ context.Context, appt model.Appointment) {
	d.enqueue(KindCreated, appt)
}

func (d *Dispatcher) NotifyUpdated(_ context.Context, appt model.Appointment) {
	d.enqueue(KindUpdated, appt)
}

func (d *Dispatcher) NotifyCanceled(_ context.Context, appt model.Appointment) {
	d.enqueue(KindCanceled, appt)
}

func (d *Dispatcher) NotifyDeleted(_ context.Context, appt model.Appointment) {
	d.enqueue(KindDeleted, appt)
}

// enqueue never blocks: a full queue drops the event.
func (d *Dispatcher) enqueue(kind Kind, appt model.Appointment) {
	if len(d.sinks) == 0 {
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn().Int64("appointment_id", appt.ID).Str("kind", string(kind)).Msg("Notification dropped: dispatcher stopped")
		metrics.IncNotification("queue", string(kind), "dropped")
		return
	}

	select {
	case d.queueFor(appt.ID) <- Event{Kind: kind, Appointment: appt, At: d.now()}:
		metrics.SetNotificationQueue(d.pending())
	default:
		d.logger.Error().Int64("appointment_id", appt.ID).Str("kind", string(kind)).Msg("Notification dropped: queue full")
		metrics.IncNotification("queue", string(kind), "dropped")
	}
}

func (d *Dispatcher) queueFor(appointmentID int64) chan Event {
	return d.queues[uint64(appointmentID)%uint64(len(d.queues))]
}

func (d *Dispatcher) pending() int {
	n := 0
	for _, q := range d.queues {
		n += len(q)
	}
	return n
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan Event) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-queue:
			if !ok {
				return
			}
			metrics.SetNotificationQueue(d.pending())
			for _, s := range d.sinks {
				d.deliver(ctx, s, ev)
			}
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sink Sink, ev Event) {
	log := d.logger.With().
		Str("sink", sink.Name()).
		Str("kind", string(ev.Kind)).
		Int64("appointment_id", ev.Appointment.ID).
		Logger()

	if err := d.limiter.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("Notification abandoned while rate limited")
		metrics.IncNotification(sink.Name(), string(ev.Kind), "abandoned")
		return
	}

	delays := d.cfg.RetryDelays
	var lastErr error
	for attempt := 0; attempt <= len(delays); attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
		err := sink.Deliver(attemptCtx, ev)
		cancel()
		if err == nil {
			metrics.IncNotification(sink.Name(), string(ev.Kind), "ok")
			log.Debug().Int("attempt", attempt+1).Msg("Notification delivered")
			return
		}
		lastErr = err

		if IsPermanent(err) {
			break
		}
		if attempt == len(delays) {
			break
		}

		wait := delays[attempt]
		var ra *RetryAfterError
		if errors.As(err, &ra) && ra.Delay > wait {
			wait = ra.Delay
		}
		metrics.IncNotificationRetry()
		log.Info().Err(err).Int("attempt", attempt+1).Dur("delay", wait).Msg("Retrying notification")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			log.Warn().Err(lastErr).Msg("Notification abandoned on shutdown")
			metrics.IncNotification(sink.Name(), string(ev.Kind), "abandoned")
			return
		}
	}

	log.Error().Err(lastErr).Msg("Notification failed")
	metrics.IncNotification(sink.Name(), string(ev.Kind), "failed")
}
