package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"glotta-hq/hermes/pkg/config"
)

func testCollector(enabled bool) *Collector {
	return NewCollector(&config.MetricsConfig{
		Enabled:   enabled,
		Namespace: "glotta",
		Subsystem: "hermes",
	}, nil)
}

func TestRecordCacheHit(t *testing.T) {
	c := testCollector(true)

	c.RecordCacheHit("l1")
	c.RecordCacheHit("l1")
	c.RecordCacheHit("l2")

	if got := testutil.ToFloat64(c.cache.hitsTotal.WithLabelValues("l1")); got != 2 {
		t.Errorf("Expected 2 l1 hits, got %g", got)
	}
	if got := testutil.ToFloat64(c.cache.hitsTotal.WithLabelValues("l2")); got != 1 {
		t.Errorf("Expected 1 l2 hit, got %g", got)
	}
}

func TestRecordRejections(t *testing.T) {
	c := testCollector(true)

	c.RecordRateLimitRejection("translate", "minute")
	c.RecordCostRejection("breaker")

	if got := testutil.ToFloat64(c.limits.rateLimitRejections.WithLabelValues("translate", "minute")); got != 1 {
		t.Errorf("Expected 1 rate limit rejection, got %g", got)
	}
	if got := testutil.ToFloat64(c.limits.costRejections.WithLabelValues("breaker")); got != 1 {
		t.Errorf("Expected 1 cost rejection, got %g", got)
	}
}

func TestDisabledCollectorIsNoop(t *testing.T) {
	c := testCollector(false)

	c.RecordBatch("es", "success", time.Second, 10)
	c.RecordCacheHit("l1")
	c.RecordCacheMiss()
	c.RecordRateLimitRejection("translate", "second")
	c.RecordCostRejection("limit")
	c.RecordUpstreamRequest("success", 1, time.Second)

	if got := testutil.ToFloat64(c.cache.missesTotal); got != 0 {
		t.Errorf("Disabled collector should record nothing, got %g misses", got)
	}
}

func TestDefaultNaming(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	c.RecordCacheMiss()
	names, err := c.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := false
	for _, mf := range names {
		if mf.GetName() == "glotta_hermes_cache_misses_total" {
			found = true
		}
	}
	if !found {
		t.Error("Expected default namespace and subsystem in metric names")
	}
}

func TestHandler(t *testing.T) {
	c := testCollector(true)
	if c.Handler() == nil {
		t.Error("Expected a metrics handler")
	}
}
