package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field
	// (e.g., "cache.l1_capacity").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateRateLimit(&cfg.RateLimit)...)
	errs = append(errs, validateCostGuard(&cfg.CostGuard)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateMaintenance(&cfg.Maintenance)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	if cfg.BaseURL == "" {
		errs = append(errs, FieldError{"upstream.base_url", "is required"})
	} else if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, FieldError{"upstream.base_url", fmt.Sprintf("invalid URL %q", cfg.BaseURL)})
	}
	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{"upstream.request_timeout", "must not be negative"})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	if cfg.L1Capacity <= 0 {
		errs = append(errs, FieldError{"cache.l1_capacity", "must be positive"})
	}
	if cfg.L2Capacity <= 0 {
		errs = append(errs, FieldError{"cache.l2_capacity", "must be positive"})
	}
	if cfg.L2Capacity < cfg.L1Capacity {
		errs = append(errs, FieldError{"cache.l2_capacity", "must be at least cache.l1_capacity"})
	}
	if cfg.DefaultTTL <= 0 {
		errs = append(errs, FieldError{"cache.default_ttl", "must be positive"})
	}
	if cfg.BloomFalsePositiveRate <= 0 || cfg.BloomFalsePositiveRate >= 1 {
		errs = append(errs, FieldError{"cache.bloom_false_positive_rate", "must be in (0, 1)"})
	}

	return errs
}

func validateRateLimit(cfg *RateLimitConfig) []FieldError {
	var errs []FieldError

	for resource, ceilings := range cfg.Resources {
		field := fmt.Sprintf("rate_limit.resources.%s", resource)
		if ceilings.PerSecond < 0 || ceilings.PerMinute < 0 || ceilings.PerHour < 0 || ceilings.PerDay < 0 {
			errs = append(errs, FieldError{field, "ceilings must not be negative"})
		}
		if ceilings.PerSecond == 0 && ceilings.PerMinute == 0 && ceilings.PerHour == 0 && ceilings.PerDay == 0 {
			errs = append(errs, FieldError{field, "at least one window ceiling must be set"})
		}
	}

	return errs
}

func validateCostGuard(cfg *CostGuardConfig) []FieldError {
	var errs []FieldError

	for api, cost := range cfg.UnitCosts {
		if cost < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("cost_guard.unit_costs.%s", api),
				Message: "must not be negative",
			})
		}
	}

	windows := map[string]CostWindowLimit{
		"per_second": cfg.PerSecond,
		"per_minute": cfg.PerMinute,
		"per_hour":   cfg.PerHour,
		"per_day":    cfg.PerDay,
		"per_month":  cfg.PerMonth,
	}
	for name, limit := range windows {
		if limit.Cost < 0 || limit.Calls < 0 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("cost_guard.%s", name),
				Message: "ceilings must not be negative",
			})
		}
	}

	if cfg.BreakerTimeout <= 0 {
		errs = append(errs, FieldError{"cost_guard.breaker_timeout", "must be positive"})
	}
	if cfg.WarnThreshold < 0 || cfg.WarnThreshold > 1 {
		errs = append(errs, FieldError{"cost_guard.warn_threshold", "must be in [0, 1]"})
	}

	return errs
}

func validateRetry(cfg *RetryConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{"retry.max_retries", "must not be negative"})
	}
	if cfg.InitialDelay <= 0 {
		errs = append(errs, FieldError{"retry.initial_delay", "must be positive"})
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		errs = append(errs, FieldError{"retry.max_delay", "must be at least retry.initial_delay"})
	}
	if cfg.BackoffFactor < 1 {
		errs = append(errs, FieldError{"retry.backoff_factor", "must be at least 1.0"})
	}
	if cfg.PerAttemptTimeout <= 0 {
		errs = append(errs, FieldError{"retry.per_attempt_timeout", "must be positive"})
	}
	for _, status := range cfg.RetryableStatuses {
		if status < 100 || status > 599 {
			errs = append(errs, FieldError{
				Field:   "retry.retryable_statuses",
				Message: fmt.Sprintf("invalid HTTP status %d", status),
			})
		}
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "sqlite":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q (expected \"memory\" or \"sqlite\")", cfg.Backend),
		})
	}
	if cfg.Backend == "sqlite" && cfg.Path == "" {
		errs = append(errs, FieldError{"storage.path", "is required for the sqlite backend"})
	}
	if cfg.MaxBytes < 0 {
		errs = append(errs, FieldError{"storage.max_bytes", "must not be negative"})
	}

	return errs
}

func validateMaintenance(cfg *MaintenanceConfig) []FieldError {
	var errs []FieldError

	for field, schedule := range map[string]string{
		"maintenance.sweep_schedule":    cfg.SweepSchedule,
		"maintenance.snapshot_schedule": cfg.SnapshotSchedule,
	} {
		if schedule == "" {
			continue
		}
		if _, err := cron.ParseStandard(schedule); err != nil {
			errs = append(errs, FieldError{field, fmt.Sprintf("invalid cron schedule %q", schedule)})
		}
	}

	return errs
}
