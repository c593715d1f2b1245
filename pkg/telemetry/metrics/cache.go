package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"glotta-hq/hermes/pkg/config"
)

// CacheMetrics tracks cache tier performance.
//
// Metrics:
//   - glotta_hermes_cache_hits_total: Hits by tier (bloom/l1/l2)
//   - glotta_hermes_cache_misses_total: Lookups that missed every tier
//   - glotta_hermes_cache_entries: Current entries by tier
type CacheMetrics struct {
	hitsTotal   *prometheus.CounterVec
	missesTotal prometheus.Counter
	entries     *prometheus.GaugeVec
}

// NewCacheMetrics creates and registers cache metrics.
func NewCacheMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CacheMetrics {
	cm := &CacheMetrics{
		hitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_hits_total",
				Help:      "Total cache hits by serving tier",
			},
			[]string{"tier"},
		),

		missesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_misses_total",
				Help:      "Total lookups that missed every cache tier",
			},
		),

		entries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "cache_entries",
				Help:      "Current number of entries per cache tier",
			},
			[]string{"tier"},
		),
	}

	registry.MustRegister(
		cm.hitsTotal,
		cm.missesTotal,
		cm.entries,
	)

	return cm
}

// RecordHit records a hit on the named tier.
func (cm *CacheMetrics) RecordHit(tier string) {
	cm.hitsTotal.WithLabelValues(tier).Inc()
}

// RecordMiss records a full miss.
func (cm *CacheMetrics) RecordMiss() {
	cm.missesTotal.Inc()
}

// UpdateSize updates the entry gauge for a tier.
func (cm *CacheMetrics) UpdateSize(tier string, entries int) {
	cm.entries.WithLabelValues(tier).Set(float64(entries))
}
