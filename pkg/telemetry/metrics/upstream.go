package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"glotta-hq/hermes/pkg/config"
)

// UpstreamMetrics tracks fetches against the translation backend.
//
// Metrics:
//   - glotta_hermes_upstream_requests_total: Fetch outcomes
//   - glotta_hermes_upstream_attempts: Attempts per fetch, retries included
//   - glotta_hermes_upstream_duration_seconds: Fetch duration with retries
type UpstreamMetrics struct {
	requestsTotal *prometheus.CounterVec
	attempts      prometheus.Histogram
	duration      *prometheus.HistogramVec
}

// NewUpstreamMetrics creates and registers upstream metrics.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_requests_total",
				Help:      "Total upstream fetches by outcome",
			},
			[]string{"status"},
		),

		attempts: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_attempts",
				Help:      "Attempts per upstream fetch including retries",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "upstream_duration_seconds",
				Help:      "Upstream fetch duration including retries",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0},
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		um.requestsTotal,
		um.attempts,
		um.duration,
	)

	return um
}

// RecordRequest records one upstream fetch outcome.
func (um *UpstreamMetrics) RecordRequest(status string, attempts int, duration time.Duration) {
	um.requestsTotal.WithLabelValues(status).Inc()
	um.attempts.Observe(float64(attempts))
	um.duration.WithLabelValues(status).Observe(duration.Seconds())
}
