package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"glotta-hq/hermes/pkg/config"
)

// Collector owns the Prometheus registry and all metric groups.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	lookup   *LookupMetrics
	cache    *CacheMetrics
	limits   *LimitMetrics
	upstream *UpstreamMetrics
}

// NewCollector creates a metrics collector. If registry is nil a private
// registry is created.
//
// Example:
//
//	cfg := &config.MetricsConfig{
//		Enabled:   true,
//		Namespace: "glotta",
//		Subsystem: "hermes",
//	}
//	collector := metrics.NewCollector(cfg, nil)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "glotta"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "hermes"
	}

	return &Collector{
		config:   cfg,
		registry: registry,
		lookup:   NewLookupMetrics(cfg, registry),
		cache:    NewCacheMetrics(cfg, registry),
		limits:   NewLimitMetrics(cfg, registry),
		upstream: NewUpstreamMetrics(cfg, registry),
	}
}

// RecordBatch records a completed batch lookup.
//
// Parameters:
//   - language: Target language of the batch
//   - status: "success", "partial", or "rejected"
//   - duration: End-to-end batch duration
//   - words: Number of distinct words requested
func (c *Collector) RecordBatch(language, status string, duration time.Duration, words int) {
	if !c.config.Enabled {
		return
	}
	c.lookup.RecordBatch(language, status, duration, words)
}

// RecordCacheHit records a cache hit on the named tier ("bloom" counts
// filtered definite misses, "l1" and "l2" count serving tiers).
func (c *Collector) RecordCacheHit(tier string) {
	if !c.config.Enabled {
		return
	}
	c.cache.RecordHit(tier)
}

// RecordCacheMiss records a lookup that missed every tier.
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}
	c.cache.RecordMiss()
}

// UpdateCacheSize updates the entry gauge for a tier.
func (c *Collector) UpdateCacheSize(tier string, entries int) {
	if !c.config.Enabled {
		return
	}
	c.cache.UpdateSize(tier, entries)
}

// RecordRateLimitRejection records an admission rejection by the rate
// limiter for the given resource and window.
func (c *Collector) RecordRateLimitRejection(resource, period string) {
	if !c.config.Enabled {
		return
	}
	c.limits.RecordRateLimitRejection(resource, period)
}

// RecordCostRejection records an admission rejection by the cost guard.
// Reason is "limit" or "breaker".
func (c *Collector) RecordCostRejection(reason string) {
	if !c.config.Enabled {
		return
	}
	c.limits.RecordCostRejection(reason)
}

// UpdateCostUsage updates the spend gauge for an accounting window.
func (c *Collector) UpdateCostUsage(period string, cost float64) {
	if !c.config.Enabled {
		return
	}
	c.limits.UpdateCostUsage(period, cost)
}

// RecordUpstreamRequest records one upstream fetch outcome.
//
// Parameters:
//   - status: "success" or "error"
//   - attempts: Attempts made including the final one
//   - duration: Total duration including retries
func (c *Collector) RecordUpstreamRequest(status string, attempts int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.upstream.RecordRequest(status, attempts, duration)
}

// Handler returns the HTTP handler for the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// Registry exposes the underlying registry for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
