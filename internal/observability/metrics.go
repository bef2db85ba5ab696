package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the scheduler core and admin
// façade report through. All fields are registered against the supplied
// registry at construction time so a single GET /metrics (see
// internal/api/routes.go) exposes everything.
type Metrics struct {
	AttemptsTotal          *prometheus.CounterVec
	SuccessTotal           prometheus.Counter
	FailedTotal            prometheus.Counter
	PersistenceErrorsTotal *prometheus.CounterVec
	InProgress             prometheus.Gauge
	RetryHeapDepth         prometheus.Gauge
	TickDuration           prometheus.Histogram

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimitedTotal    prometheus.Counter
}

// NewMetrics builds and registers a fresh Metrics set against reg. Pass
// prometheus.DefaultRegisterer in production; tests should pass a private
// prometheus.NewRegistry() to avoid collisions across parallel subtests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_send_attempts_total",
			Help: "Total number of send attempts made by the scheduler core, labeled by outcome.",
		}, []string{"outcome"}),
		SuccessTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_messages_succeeded_total",
			Help: "Total number of messages that reached the SUCCESS terminal state.",
		}),
		FailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_messages_failed_total",
			Help: "Total number of messages that reached the FAILED_MAX_RETRIES terminal state.",
		}),
		PersistenceErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_persistence_errors_total",
			Help: "Total number of persistence port calls that returned an error, labeled by operation.",
		}, []string{"operation"}),
		InProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_in_progress",
			Help: "Current number of messages tracked in the scheduler's in-memory index.",
		}),
		RetryHeapDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scheduler_retry_heap_depth",
			Help: "Current number of entries (including stale ones) in the retry heap.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_tick_duration_seconds",
			Help:    "Wall-clock duration of a single Wakeup() tick.",
			Buckets: prometheus.DefBuckets,
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_http_requests_total",
			Help: "Total HTTP requests served by the admin façade.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scheduler_http_request_duration_seconds",
			Help:    "HTTP request duration, admin façade.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_rate_limited_total",
			Help: "Total intake requests rejected by the rate limiter.",
		}),
	}

	reg.MustRegister(
		m.AttemptsTotal,
		m.SuccessTotal,
		m.FailedTotal,
		m.PersistenceErrorsTotal,
		m.InProgress,
		m.RetryHeapDepth,
		m.TickDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RateLimitedTotal,
	)

	return m
}

// The methods below give *Metrics the shape of scheduler.MetricsSink without
// importing the scheduler package, so observability stays a leaf dependency.

func (m *Metrics) ObserveAttempt(outcome string)          { m.AttemptsTotal.WithLabelValues(outcome).Inc() }
func (m *Metrics) ObserveSuccess()                        { m.SuccessTotal.Inc() }
func (m *Metrics) ObserveFailure()                        { m.FailedTotal.Inc() }
func (m *Metrics) ObservePersistenceError(operation string) {
	m.PersistenceErrorsTotal.WithLabelValues(operation).Inc()
}
func (m *Metrics) SetInProgress(n int)               { m.InProgress.Set(float64(n)) }
func (m *Metrics) SetHeapDepth(n int)                { m.RetryHeapDepth.Set(float64(n)) }
func (m *Metrics) ObserveTick(d time.Duration)       { m.TickDuration.Observe(d.Seconds()) }
