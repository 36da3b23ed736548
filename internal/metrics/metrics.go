package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Generation metrics
	generationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medibill_generation_duration_seconds",
			Help:    "Model generation duration in seconds by model and kind",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~100s
		},
		[]string{"model", "kind", "status"},
	)

	extractionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medibill_extraction_total",
			Help: "Response extraction outcomes; outcome is ok or the failure kind",
		},
		[]string{"outcome"},
	)

	memoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medibill_memo_lookups_total",
			Help: "Memoization lookups by kind and result",
		},
		[]string{"kind", "result"}, // result: "hit"/"miss"
	)

	// Batch metrics
	itemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medibill_items_processed_total",
			Help: "Bill items processed by batch runs",
		},
		[]string{"status"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "medibill_active_workers",
			Help: "Number of active batch workers",
		},
	)

	// HTTP metrics
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medibill_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)
)

// Collector provides convenience methods for recording metrics
type Collector struct {
	logger *slog.Logger
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// RecordGeneration records one model call
func (c *Collector) RecordGeneration(model, kind string, duration time.Duration, success bool) {
	generationDuration.WithLabelValues(model, kind, statusLabel(success)).Observe(duration.Seconds())
}

// RecordExtraction records an extraction outcome ("ok" or a failure kind)
func (c *Collector) RecordExtraction(outcome string) {
	extractionOutcomes.WithLabelValues(outcome).Inc()
}

// RecordMemoLookup records a memo hit or miss
func (c *Collector) RecordMemoLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	memoLookups.WithLabelValues(kind, result).Inc()
}

// RecordItem records a batch item outcome
func (c *Collector) RecordItem(success bool) {
	itemsProcessed.WithLabelValues(statusLabel(success)).Inc()
}

// SetActiveWorkers sets the number of active workers
func (c *Collector) SetActiveWorkers(count int) {
	activeWorkers.Set(float64(count))
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(duration.Seconds())
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
