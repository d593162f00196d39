package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Batch metrics
	BatchRunsTotal      prometheus.Counter
	BatchDuration       prometheus.Histogram
	TenantsProcessed    prometheus.Counter
	InsightsCreated     *prometheus.CounterVec
	DetectorErrorsTotal *prometheus.CounterVec

	// Authentication metrics
	AuthErrorsTotal prometheus.Counter
)

// InitMetrics registers all metrics under the configured prefix.
func InitMetrics(prefix string) {
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	BatchRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_batch_runs_total",
			Help: "Total number of insight batch runs",
		},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_batch_duration_seconds",
			Help:    "Duration of insight batch runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	TenantsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_tenants_processed_total",
			Help: "Total number of tenants processed by batch runs",
		},
	)

	InsightsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_insights_created_total",
			Help: "Total number of insights created, by category",
		},
		[]string{"category"},
	)

	DetectorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_detector_errors_total",
			Help: "Total number of detector invocations that failed",
		},
		[]string{"category"},
	)

	AuthErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_auth_errors_total",
			Help: "Total number of authentication errors",
		},
	)
}

// ObserveBatch records one completed batch run.
func ObserveBatch(start time.Time, tenants int) {
	if BatchRunsTotal == nil {
		return
	}
	BatchRunsTotal.Inc()
	BatchDuration.Observe(time.Since(start).Seconds())
	TenantsProcessed.Add(float64(tenants))
}

// RecordInsights adds to the per-category created counter.
func RecordInsights(category string, n int) {
	if InsightsCreated == nil || n == 0 {
		return
	}
	InsightsCreated.WithLabelValues(category).Add(float64(n))
}

// RecordDetectorError counts a failed detector invocation.
func RecordDetectorError(category string) {
	if DetectorErrorsTotal == nil {
		return
	}
	DetectorErrorsTotal.WithLabelValues(category).Inc()
}

// RecordAuthError counts a rejected authentication attempt.
func RecordAuthError() {
	if AuthErrorsTotal == nil {
		return
	}
	AuthErrorsTotal.Inc()
}
