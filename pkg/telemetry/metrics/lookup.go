package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"glotta-hq/hermes/pkg/config"
)

// LookupMetrics tracks batch lookup requests.
//
// Metrics:
//   - glotta_hermes_batches_total: Completed batches by language and status
//   - glotta_hermes_batch_duration_seconds: End-to-end batch latency
//   - glotta_hermes_batch_words: Distinct words per batch
type LookupMetrics struct {
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchWords    prometheus.Histogram
}

// NewLookupMetrics creates and registers lookup metrics.
func NewLookupMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LookupMetrics {
	lm := &LookupMetrics{
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batches_total",
				Help:      "Total number of completed batch lookups",
			},
			[]string{"language", "status"},
		),

		batchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_duration_seconds",
				Help:      "End-to-end batch lookup duration",
				Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1.0, 2.5, 10.0, 30.0},
			},
			[]string{"status"},
		),

		batchWords: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "batch_words",
				Help:      "Distinct words per batch lookup",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250},
			},
		),
	}

	registry.MustRegister(
		lm.batchesTotal,
		lm.batchDuration,
		lm.batchWords,
	)

	return lm
}

// RecordBatch records a completed batch.
func (lm *LookupMetrics) RecordBatch(language, status string, duration time.Duration, words int) {
	lm.batchesTotal.WithLabelValues(language, status).Inc()
	lm.batchDuration.WithLabelValues(status).Observe(duration.Seconds())
	lm.batchWords.Observe(float64(words))
}
