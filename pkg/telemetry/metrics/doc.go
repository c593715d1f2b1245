// Package metrics provides Prometheus instrumentation for the lookup
// pipeline.
//
// The Collector owns a private registry and groups metrics by concern:
// lookup requests, cache tiers, admission (rate limits and cost guard),
// and upstream fetches. All metric names carry the configured namespace
// and subsystem, glotta_hermes_* by default. When metrics are disabled
// every recording method is a no-op, so callers never need to guard
// their call sites.
package metrics
