// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Scheduler metrics.
	TicksTotal         *prometheus.CounterVec
	TicksSkipped       prometheus.Counter
	TickDuration       prometheus.Histogram
	RateLimitPauses    prometheus.Counter
	SchedulerPhase     prometheus.Gauge
	LastSuccessfulTick prometheus.Gauge

	// Market data resolution metrics.
	Resolutions      *prometheus.CounterVec
	ResolutionErrors *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec

	// Signal metrics.
	SignalsPublished *prometheus.GaugeVec
	BuySignalsTotal  prometheus.Counter
	PublishedSetSize prometheus.Gauge

	// Storage metrics.
	StoreOperationErrors *prometheus.CounterVec
	ArchiveBatchesTotal  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dexwatch"
	}

	return &Metrics{
		TicksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_total",
			Help:      "Total number of completed scheduler ticks by outcome",
		}, []string{"outcome"}),
		TicksSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_ticks_skipped_total",
			Help:      "Ticks skipped because the previous cycle was still running",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of a full evaluation cycle in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		RateLimitPauses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_rate_limit_pauses_total",
			Help:      "Times the scheduler paused after an upstream rate limit",
		}),
		SchedulerPhase: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_phase",
			Help:      "Current scheduler phase (0=idle, 1=running, 2=paused)",
		}),
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last completed tick",
		}),
		Resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketdata_resolutions_total",
			Help:      "Successful market data resolutions by source",
		}, []string{"source"}),
		ResolutionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "marketdata_resolution_errors_total",
			Help:      "Failed market data resolutions by error kind",
		}, []string{"kind"}),
		UpstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "marketdata_upstream_latency_seconds",
			Help:      "Latency of upstream market data calls by source",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"source"}),
		SignalsPublished: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signals_published",
			Help:      "Signals in the most recently published set by type",
		}, []string{"signal"}),
		BuySignalsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_buy_total",
			Help:      "Cumulative count of Buy signals published",
		}),
		PublishedSetSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signals_published_set_size",
			Help:      "Number of results in the most recently published set",
		}),
		StoreOperationErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Storage operation failures by operation",
		}, []string{"operation"}),
		ArchiveBatchesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_batches_total",
			Help:      "Signal result batches written to the archive",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordTick records a completed scheduler tick.
func RecordTick(outcome string, seconds float64) {
	DefaultMetrics.TicksTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.TickDuration.Observe(seconds)
}

// RecordTickSkipped records a tick skipped due to overlap.
func RecordTickSkipped() {
	DefaultMetrics.TicksSkipped.Inc()
}

// RecordRateLimitPause records a rate-limit pause.
func RecordRateLimitPause() {
	DefaultMetrics.RateLimitPauses.Inc()
}

// SetSchedulerPhase records the current scheduler phase.
func SetSchedulerPhase(phase int) {
	DefaultMetrics.SchedulerPhase.Set(float64(phase))
}

// RecordResolution records a successful market data resolution.
func RecordResolution(source string) {
	DefaultMetrics.Resolutions.WithLabelValues(source).Inc()
}

// RecordResolutionError records a failed market data resolution.
func RecordResolutionError(kind string) {
	DefaultMetrics.ResolutionErrors.WithLabelValues(kind).Inc()
}

// RecordPublishedSignals records the composition of a published result set.
func RecordPublishedSignals(buy, hold, errored int) {
	DefaultMetrics.SignalsPublished.WithLabelValues("buy").Set(float64(buy))
	DefaultMetrics.SignalsPublished.WithLabelValues("hold").Set(float64(hold))
	DefaultMetrics.SignalsPublished.WithLabelValues("error").Set(float64(errored))
	DefaultMetrics.PublishedSetSize.Set(float64(buy + hold + errored))
	if buy > 0 {
		DefaultMetrics.BuySignalsTotal.Add(float64(buy))
	}
}

// RecordStoreError records a storage operation failure.
func RecordStoreError(operation string) {
	DefaultMetrics.StoreOperationErrors.WithLabelValues(operation).Inc()
}

// RecordArchiveBatch records a batch written to the signal archive.
func RecordArchiveBatch() {
	DefaultMetrics.ArchiveBatchesTotal.Inc()
}
