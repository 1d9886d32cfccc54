// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Tick metrics
	TicksProcessed prometheus.Counter
	TickDuration   prometheus.Histogram
	TickErrors     *prometheus.CounterVec
	Evaluations    prometheus.Counter

	// Signal metrics
	SignalsTotal    *prometheus.CounterVec
	BlockedTotal    *prometheus.CounterVec
	KillSwitchTotal prometheus.Counter
	ScoreTotal      prometheus.Histogram

	// Order metrics
	OrdersPlaced  *prometheus.CounterVec
	CloseAttempts prometheus.Counter
	CloseFailures prometheus.Counter
	Settlements   *prometheus.CounterVec
	OpenPositions prometheus.Gauge

	// Feed metrics
	PriceFetchLatency *prometheus.HistogramVec
	PriceFetchErrors  *prometheus.CounterVec
	StreamReconnects  prometheus.Counter

	// Market metrics
	WindowsResolved    prometheus.Counter
	WindowLookupErrors prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulTick prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "updown_trader"
	}

	return &Metrics{
		// Tick metrics
		TicksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "ticks_processed_total",
			Help:      "Total number of scheduler ticks processed",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_duration_seconds",
			Help:      "Tick processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		TickErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tick_errors_total",
			Help:      "Total number of tick errors by stage",
		}, []string{"stage"}),
		Evaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "evaluations_total",
			Help:      "Total number of completed scoring evaluations",
		}),

		// Signal metrics
		SignalsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "signals_total",
			Help:      "Total number of entry signals by direction",
		}, []string{"direction"}),
		BlockedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "blocked_total",
			Help:      "Total number of signals blocked by constraint",
		}, []string{"constraint"}),
		KillSwitchTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "kill_switch_total",
			Help:      "Total number of evaluations zeroed by the kill switch",
		}),
		ScoreTotal: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "score_total",
			Help:      "Distribution of final evaluation scores",
			Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 75, 80, 90, 100},
		}),

		// Order metrics
		OrdersPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "orders_placed_total",
			Help:      "Total number of orders placed by side and status",
		}, []string{"side", "status"}),
		CloseAttempts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "close_attempts_total",
			Help:      "Total number of position close attempts",
		}),
		CloseFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "close_failures_total",
			Help:      "Total number of failed position close attempts",
		}),
		Settlements: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "settlements_total",
			Help:      "Total number of window settlements by outcome",
		}, []string{"outcome"}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "open_positions",
			Help:      "Number of currently open positions",
		}),

		// Feed metrics
		PriceFetchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "price_fetch_latency_seconds",
			Help:      "Price fetch latency in seconds by source",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		PriceFetchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "price_fetch_errors_total",
			Help:      "Total number of price fetch errors by source",
		}, []string{"source"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "stream_reconnects_total",
			Help:      "Total number of websocket stream reconnects",
		}),

		// Market metrics
		WindowsResolved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "windows_resolved_total",
			Help:      "Total number of market windows resolved",
		}),
		WindowLookupErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "window_lookup_errors_total",
			Help:      "Total number of failed market window lookups",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last successful tick",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a completed tick and its duration.
func RecordTick(seconds float64) {
	DefaultMetrics.TicksProcessed.Inc()
	DefaultMetrics.TickDuration.Observe(seconds)
}

// RecordTickError records a tick error at the given stage.
func RecordTickError(stage string) {
	DefaultMetrics.TickErrors.WithLabelValues(stage).Inc()
}

// RecordEvaluation records a completed scoring evaluation.
func RecordEvaluation(total int, killed bool) {
	DefaultMetrics.Evaluations.Inc()
	DefaultMetrics.ScoreTotal.Observe(float64(total))
	if killed {
		DefaultMetrics.KillSwitchTotal.Inc()
	}
}

// RecordSignal records an entry signal.
func RecordSignal(direction string) {
	DefaultMetrics.SignalsTotal.WithLabelValues(direction).Inc()
}

// RecordBlocked records a signal blocked by the named constraint.
func RecordBlocked(constraint string) {
	DefaultMetrics.BlockedTotal.WithLabelValues(constraint).Inc()
}

// RecordOrder records a placed order.
func RecordOrder(side, status string) {
	DefaultMetrics.OrdersPlaced.WithLabelValues(side, status).Inc()
}

// RecordCloseAttempt records a close attempt and whether it succeeded.
func RecordCloseAttempt(ok bool) {
	DefaultMetrics.CloseAttempts.Inc()
	if !ok {
		DefaultMetrics.CloseFailures.Inc()
	}
}

// RecordSettlement records a window settlement outcome.
func RecordSettlement(outcome string) {
	DefaultMetrics.Settlements.WithLabelValues(outcome).Inc()
}

// RecordPriceFetch records a price fetch and its outcome.
func RecordPriceFetch(source string, seconds float64, err error) {
	DefaultMetrics.PriceFetchLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		DefaultMetrics.PriceFetchErrors.WithLabelValues(source).Inc()
	}
}

// RecordWindowResolved records a resolved market window.
func RecordWindowResolved() {
	DefaultMetrics.WindowsResolved.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
