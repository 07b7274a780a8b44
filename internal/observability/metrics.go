package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contribution outcomes recorded by ContributionsTotal.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftpool_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "giftpool_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnectionsTotal is the gauge of open notification sockets.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "giftpool_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped because a client was too slow.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftpool_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// ContributionsTotal counts ledger writes by operation and outcome.
	ContributionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftpool_contributions_total",
		Help: "Contribution writes by operation and outcome",
	}, []string{"operation", "outcome"})

	// LedgerLockWait records how long writers waited for a gift lock.
	LedgerLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "giftpool_ledger_lock_wait_seconds",
		Help:    "Time spent waiting for a per-gift ledger lock",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})

	// EmailJobsTotal counts contribution email jobs by outcome.
	EmailJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "giftpool_email_jobs_total",
		Help: "Contribution email jobs by stage and outcome",
	}, []string{"stage", "outcome"})
)

// TrackQuery returns a function that records query latency when called (e.g. defer).
func TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	}
}

// RecordContribution increments ContributionsTotal.
func RecordContribution(operation, outcome string) {
	ContributionsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveLockWait records a lock wait that started at start.
func ObserveLockWait(start time.Time) {
	LedgerLockWait.Observe(time.Since(start).Seconds())
}
