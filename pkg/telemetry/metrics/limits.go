package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"glotta-hq/hermes/pkg/config"
)

// LimitMetrics tracks admission rejections and spend.
//
// Metrics:
//   - glotta_hermes_ratelimit_rejections_total: Rate limit rejections
//   - glotta_hermes_cost_rejections_total: Cost guard rejections
//   - glotta_hermes_cost_usage: Accumulated spend per accounting window
type LimitMetrics struct {
	rateLimitRejections *prometheus.CounterVec
	costRejections      *prometheus.CounterVec
	costUsage           *prometheus.GaugeVec
}

// NewLimitMetrics creates and registers admission metrics.
func NewLimitMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *LimitMetrics {
	lm := &LimitMetrics{
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "ratelimit_rejections_total",
				Help:      "Total rate limit rejections by resource and window",
			},
			[]string{"resource", "period"},
		),

		costRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_rejections_total",
				Help:      "Total cost guard rejections by reason",
			},
			[]string{"reason"},
		),

		costUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cost_usage",
				Help:      "Accumulated spend per accounting window",
			},
			[]string{"period"},
		),
	}

	registry.MustRegister(
		lm.rateLimitRejections,
		lm.costRejections,
		lm.costUsage,
	)

	return lm
}

// RecordRateLimitRejection records a rate limit rejection.
func (lm *LimitMetrics) RecordRateLimitRejection(resource, period string) {
	lm.rateLimitRejections.WithLabelValues(resource, period).Inc()
}

// RecordCostRejection records a cost guard rejection.
func (lm *LimitMetrics) RecordCostRejection(reason string) {
	lm.costRejections.WithLabelValues(reason).Inc()
}

// UpdateCostUsage updates the spend gauge for a window.
func (lm *LimitMetrics) UpdateCostUsage(period string, cost float64) {
	lm.costUsage.WithLabelValues(period).Set(cost)
}
