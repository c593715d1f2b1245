package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8090"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 15 * time.Second

	// Upstream defaults
	DefaultRequestTimeout = 30 * time.Second

	// Cache defaults
	DefaultL1Capacity             = 1000
	DefaultL2Capacity             = 10000
	DefaultCacheTTL               = 720 * time.Hour
	DefaultBloomExpectedItems     = uint(100000)
	DefaultBloomFalsePositiveRate = 0.01
	DefaultCacheNamespace         = "translations"

	// Cost guard defaults
	DefaultBreakerTimeout = 5 * time.Minute
	DefaultWarnThreshold  = 0.8
	DefaultSnapshotMaxAge = time.Hour

	// Retry defaults
	DefaultMaxRetries        = 3
	DefaultInitialDelay      = 500 * time.Millisecond
	DefaultMaxDelay          = 10 * time.Second
	DefaultBackoffFactor     = 2.0
	DefaultPerAttemptTimeout = 10 * time.Second

	// Storage defaults
	DefaultStorageBackend = "memory"
	DefaultStoragePath    = "hermes.db"
	DefaultBusyTimeout    = 5 * time.Second

	// Telemetry defaults
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMetricsNamespace = "glotta"
	DefaultMetricsSubsystem = "hermes"

	// Maintenance defaults
	DefaultSweepSchedule    = "*/5 * * * *"
	DefaultSnapshotSchedule = "* * * * *"
)

// DefaultRetryableStatuses is the default allow-list of transient HTTP
// status codes.
var DefaultRetryableStatuses = []int{408, 429, 500, 502, 503, 504}

// ApplyDefaults fills zero-valued configuration fields with their defaults.
// It never overrides a value that was explicitly set.
func ApplyDefaults(cfg *Config) {
	// Server
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Upstream
	if cfg.Upstream.RequestTimeout == 0 {
		cfg.Upstream.RequestTimeout = DefaultRequestTimeout
	}

	// Cache
	if cfg.Cache.L1Capacity == 0 {
		cfg.Cache.L1Capacity = DefaultL1Capacity
	}
	if cfg.Cache.L2Capacity == 0 {
		cfg.Cache.L2Capacity = DefaultL2Capacity
	}
	if cfg.Cache.DefaultTTL == 0 {
		cfg.Cache.DefaultTTL = DefaultCacheTTL
	}
	if cfg.Cache.BloomExpectedItems == 0 {
		cfg.Cache.BloomExpectedItems = DefaultBloomExpectedItems
	}
	if cfg.Cache.BloomFalsePositiveRate == 0 {
		cfg.Cache.BloomFalsePositiveRate = DefaultBloomFalsePositiveRate
	}
	if cfg.Cache.Namespace == "" {
		cfg.Cache.Namespace = DefaultCacheNamespace
	}

	// Cost guard
	if cfg.CostGuard.BreakerTimeout == 0 {
		cfg.CostGuard.BreakerTimeout = DefaultBreakerTimeout
	}
	if cfg.CostGuard.WarnThreshold == 0 {
		cfg.CostGuard.WarnThreshold = DefaultWarnThreshold
	}
	if cfg.CostGuard.SnapshotMaxAge == 0 {
		cfg.CostGuard.SnapshotMaxAge = DefaultSnapshotMaxAge
	}

	// Retry
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = DefaultMaxRetries
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = DefaultInitialDelay
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = DefaultMaxDelay
	}
	if cfg.Retry.BackoffFactor == 0 {
		cfg.Retry.BackoffFactor = DefaultBackoffFactor
	}
	if cfg.Retry.PerAttemptTimeout == 0 {
		cfg.Retry.PerAttemptTimeout = DefaultPerAttemptTimeout
	}
	if cfg.Retry.RetryableStatuses == nil {
		cfg.Retry.RetryableStatuses = append([]int(nil), DefaultRetryableStatuses...)
	}

	// Storage
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultBusyTimeout
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}

	// Maintenance
	if cfg.Maintenance.SweepSchedule == "" {
		cfg.Maintenance.SweepSchedule = DefaultSweepSchedule
	}
	if cfg.Maintenance.SnapshotSchedule == "" {
		cfg.Maintenance.SnapshotSchedule = DefaultSnapshotSchedule
	}
}
