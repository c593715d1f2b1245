package config

import "time"

// Config is the root configuration structure for Hermes.
// It contains all configuration sections for the lookup server, the upstream
// translation API, caching, rate limiting, cost accounting, retries,
// persistence, telemetry, and background maintenance.
type Config struct {
	// Server contains the HTTP lookup endpoint configuration.
	Server ServerConfig `yaml:"server"`

	// Upstream contains the translation API endpoint and credentials.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Cache contains capacities and TTLs for the cache hierarchy.
	Cache CacheConfig `yaml:"cache"`

	// RateLimit contains per-resource call-rate ceilings.
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// CostGuard contains unit costs, per-window spend ceilings, and the
	// circuit breaker timeout.
	CostGuard CostGuardConfig `yaml:"cost_guard"`

	// Retry contains the retry policy for upstream calls.
	Retry RetryConfig `yaml:"retry"`

	// Storage contains the persisted key-value store configuration backing
	// the L2 cache tier and cost snapshots.
	Storage StorageConfig `yaml:"storage"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Maintenance contains schedules for background sweeps.
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// ServerConfig contains configuration for the HTTP lookup server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8090"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 15s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// UpstreamConfig contains configuration for the upstream translation API.
type UpstreamConfig struct {
	// BaseURL is the base URL of the translation API.
	// Example: "https://api.translate.example.com"
	BaseURL string `yaml:"base_url"`

	// AuthToken is the bearer token used for Authorization and as the
	// HMAC signing key. Prefer supplying it via HERMES_UPSTREAM_AUTH_TOKEN.
	AuthToken string `yaml:"auth_token"`

	// InstallationID identifies this installation to the upstream API.
	InstallationID string `yaml:"installation_id"`

	// RequestTimeout is the overall HTTP client timeout. Per-attempt
	// deadlines are governed by Retry.PerAttemptTimeout.
	// Default: 30s
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// CacheConfig contains configuration for the cache hierarchy.
type CacheConfig struct {
	// L1Capacity is the maximum number of entries in the in-memory LRU tier.
	// Default: 1000
	L1Capacity int `yaml:"l1_capacity"`

	// L2Capacity is the maximum number of entries in the persisted tier.
	// The tier is pruned to its newest L2Capacity entries by write order.
	// Default: 10000
	L2Capacity int `yaml:"l2_capacity"`

	// DefaultTTL is the time-to-live applied when Store is called without
	// an explicit TTL.
	// Default: 720h (30 days)
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// BloomExpectedItems sizes the bloom pre-filter.
	// Default: 100000
	BloomExpectedItems uint `yaml:"bloom_expected_items"`

	// BloomFalsePositiveRate is the target false positive rate for the
	// bloom pre-filter. False negatives never occur.
	// Default: 0.01
	BloomFalsePositiveRate float64 `yaml:"bloom_false_positive_rate"`

	// Namespace prefixes L2 keys so multiple hierarchies can share a store.
	// Default: "translations"
	Namespace string `yaml:"namespace"`
}

// RateCeilings contains the simultaneous call-rate ceilings for one resource
// type. A zero value disables that window.
type RateCeilings struct {
	// PerSecond is the maximum number of calls in any trailing second.
	PerSecond int `yaml:"per_second"`

	// PerMinute is the maximum number of calls in any trailing minute.
	PerMinute int `yaml:"per_minute"`

	// PerHour is the maximum number of calls in any trailing hour.
	PerHour int `yaml:"per_hour"`

	// PerDay is the maximum number of calls in any trailing 24 hours.
	PerDay int `yaml:"per_day"`
}

// RateLimitConfig contains per-resource-type rate ceilings.
type RateLimitConfig struct {
	// Resources maps a resource type (e.g. "translate") to its ceilings.
	Resources map[string]RateCeilings `yaml:"resources"`
}

// CostWindowLimit contains the spend and call ceilings for one usage window.
// A zero value disables that ceiling.
type CostWindowLimit struct {
	// Cost is the maximum accumulated cost (USD) within the window.
	Cost float64 `yaml:"cost"`

	// Calls is the maximum number of calls within the window.
	Calls int64 `yaml:"calls"`
}

// CostGuardConfig contains configuration for usage accounting and the cost
// circuit breaker.
type CostGuardConfig struct {
	// UnitCosts maps an API type (e.g. "translate") to its per-unit cost
	// estimate in USD.
	UnitCosts map[string]float64 `yaml:"unit_costs"`

	// PerSecond through PerMonth are the nested usage windows. All active
	// windows are checked together.
	PerSecond CostWindowLimit `yaml:"per_second"`
	PerMinute CostWindowLimit `yaml:"per_minute"`
	PerHour   CostWindowLimit `yaml:"per_hour"`
	PerDay    CostWindowLimit `yaml:"per_day"`
	PerMonth  CostWindowLimit `yaml:"per_month"`

	// BreakerTimeout is how long the circuit breaker stays open after any
	// window violation.
	// Default: 5m
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`

	// WarnThreshold is the fraction (0.0-1.0) of any ceiling at which a
	// warning is logged during Record.
	// Default: 0.8
	WarnThreshold float64 `yaml:"warn_threshold"`

	// SnapshotMaxAge is the maximum age of a persisted snapshot that will
	// be trusted on load. Older snapshots are discarded as stale.
	// Default: 1h
	SnapshotMaxAge time.Duration `yaml:"snapshot_max_age"`
}

// RetryConfig contains the retry policy for upstream calls.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry.
	// Default: 500ms
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the computed backoff delay.
	// Default: 10s
	MaxDelay time.Duration `yaml:"max_delay"`

	// BackoffFactor is the multiplier applied per attempt.
	// Default: 2.0
	BackoffFactor float64 `yaml:"backoff_factor"`

	// PerAttemptTimeout bounds each individual attempt. A timed-out attempt
	// is treated as retryable.
	// Default: 10s
	PerAttemptTimeout time.Duration `yaml:"per_attempt_timeout"`

	// RetryableStatuses is the allow-list of HTTP status codes considered
	// transient. Default: [408, 429, 500, 502, 503, 504]
	RetryableStatuses []int `yaml:"retryable_statuses"`
}

// StorageConfig contains configuration for the persisted key-value store.
type StorageConfig struct {
	// Backend selects the store implementation: "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file path (sqlite backend only).
	// Default: "hermes.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits for locks before failing.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// MaxBytes is a soft quota for the store. Zero means unlimited.
	MaxBytes int64 `yaml:"max_bytes"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	// Logging contains structured logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format ("json", "text", "console").
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log records.
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exposed.
	Enabled bool `yaml:"enabled"`

	// Namespace is the Prometheus metric namespace.
	// Default: "glotta"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: "hermes"
	Subsystem string `yaml:"subsystem"`
}

// MaintenanceConfig contains schedules for background sweeps. Schedules use
// standard cron syntax. An empty schedule disables that sweep.
type MaintenanceConfig struct {
	// SweepSchedule controls rate-history pruning and expired L2 rows.
	// Default: "*/5 * * * *" (every 5 minutes)
	SweepSchedule string `yaml:"sweep_schedule"`

	// SnapshotSchedule controls cost-guard snapshot flushes.
	// Default: "* * * * *" (every minute)
	SnapshotSchedule string `yaml:"snapshot_schedule"`
}
