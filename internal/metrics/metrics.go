package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scheduler"

var (
	once sync.Once

	bookingAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Count of booking attempts by result.",
		},
		[]string{"result"},
	)

	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Count of appointment status transitions by target status and result.",
		},
		[]string{"to", "result"},
	)

	appointmentsDeleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_deleted_total",
			Help:      "Count of appointments removed by administrators.",
		},
	)

	slotQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "slot_query_duration_seconds",
			Help:      "Time to compute available slots.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
		},
		[]string{"cache"},
	)

	notificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Count of notification deliveries by sink, kind and status.",
		},
		[]string{"sink", "kind", "status"},
	)

	notificationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_retries_total",
			Help:      "Count of notification delivery retries.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	notificationQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_size",
			Help:      "Current number of queued notifications.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingAttempts,
			statusTransitions,
			appointmentsDeleted,
			slotQueryDuration,
			notificationsSent,
			notificationRetries,
			notificationQueue,
			httpRequests,
			httpDuration,
		)
	})
}

func IncBookingAttempt(result string) {
	bookingAttempts.WithLabelValues(result).Inc()
}

func IncTransition(to, result string) {
	statusTransitions.WithLabelValues(to, result).Inc()
}

func IncDeleted() {
	appointmentsDeleted.Inc()
}

// ObserveSlotQuery records how long a slot listing took; cache is "hit" or "miss".
func ObserveSlotQuery(cache string, d time.Duration) {
	slotQueryDuration.WithLabelValues(cache).Observe(d.Seconds())
}

func IncNotification(sink, kind, status string) {
	notificationsSent.WithLabelValues(sink, kind, status).Inc()
}

func IncNotificationRetry() {
	notificationRetries.Inc()
}

func SetNotificationQueue(n int) {
	notificationQueue.Set(float64(n))
}

// ObserveHTTP records one API request; route is the matched pattern, not the raw path.
func ObserveHTTP(route string, code int, d time.Duration) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
