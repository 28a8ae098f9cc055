// Package metrics exposes Prometheus collectors for the scanner.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded by the scheduler.
const (
	OutcomeSuccess     = "success"
	OutcomeHTTPError   = "http_error"
	OutcomeNetworkErr  = "network_error"
	OutcomeRateLimited = "rate_limited"
)

var (
	requestsTotal              *prometheus.CounterVec
	rateLimitHitsTotal         prometheus.Counter
	inflightRequests           prometheus.Gauge
	adaptiveDelaySeconds       prometheus.Gauge
	variantsRecordedTotal      *prometheus.CounterVec
	freeItemsTotal             prometheus.Counter
	scansTotal                 *prometheus.CounterVec
	activeScans                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		requestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storescan_requests_total",
				Help: "Outbound storefront requests, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storescan_rate_limit_hits_total",
				Help: "HTTP 429 responses that caused a requeue.",
			},
		)

		inflightRequests = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storescan_inflight_requests",
				Help: "Outbound requests currently in flight across all scans.",
			},
		)

		adaptiveDelaySeconds = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storescan_adaptive_delay_seconds",
				Help: "Most recent inter-request delay chosen by the adaptive limiter.",
			},
		)

		variantsRecordedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storescan_variants_recorded_total",
				Help: "Unique variants recorded, labeled by discovery strategy.",
			},
			[]string{"strategy"},
		)

		freeItemsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "storescan_free_items_total",
				Help: "Variants classified as free.",
			},
		)

		scansTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storescan_scans_total",
				Help: "Finished scans, labeled by status.",
			},
			[]string{"status"},
		)

		activeScans = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "storescan_active_scans",
				Help: "Scans currently running.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storescan_http_requests_total",
				Help: "API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storescan_http_request_duration_seconds",
				Help:    "API request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest counts one outbound request outcome.
func ObserveRequest(outcome string) {
	Init()
	requestsTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeRateLimited {
		rateLimitHitsTotal.Inc()
	}
}

// AddInflight adjusts the in-flight gauge by delta.
func AddInflight(delta int) {
	Init()
	inflightRequests.Add(float64(delta))
}

// SetAdaptiveDelay records the current pacing delay.
func SetAdaptiveDelay(d time.Duration) {
	Init()
	adaptiveDelaySeconds.Set(d.Seconds())
}

// ObserveVariant counts a newly recorded variant.
func ObserveVariant(strategy string, free bool) {
	Init()
	variantsRecordedTotal.WithLabelValues(strategy).Inc()
	if free {
		freeItemsTotal.Inc()
	}
}

// ObserveScan counts a finished scan.
func ObserveScan(status string) {
	Init()
	scansTotal.WithLabelValues(status).Inc()
}

// IncActiveScans increments the active scans gauge.
func IncActiveScans() {
	Init()
	activeScans.Inc()
}

// DecActiveScans decrements the active scans gauge.
func DecActiveScans() {
	Init()
	activeScans.Dec()
}

// ObserveHTTPRequest records one API request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
