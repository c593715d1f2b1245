package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ============================================================================
// Defaults
// ============================================================================

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ListenAddress != DefaultListenAddress {
		t.Errorf("Expected listen address %q, got %q", DefaultListenAddress, cfg.Server.ListenAddress)
	}
	if cfg.Cache.L1Capacity != DefaultL1Capacity {
		t.Errorf("Expected L1 capacity %d, got %d", DefaultL1Capacity, cfg.Cache.L1Capacity)
	}
	if cfg.Cache.DefaultTTL != DefaultCacheTTL {
		t.Errorf("Expected default TTL %v, got %v", DefaultCacheTTL, cfg.Cache.DefaultTTL)
	}
	if cfg.CostGuard.BreakerTimeout != DefaultBreakerTimeout {
		t.Errorf("Expected breaker timeout %v, got %v", DefaultBreakerTimeout, cfg.CostGuard.BreakerTimeout)
	}
	if cfg.Retry.BackoffFactor != DefaultBackoffFactor {
		t.Errorf("Expected backoff factor %v, got %v", DefaultBackoffFactor, cfg.Retry.BackoffFactor)
	}
	if len(cfg.Retry.RetryableStatuses) == 0 {
		t.Error("Expected default retryable statuses")
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("Expected storage backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
	}
}

func TestApplyDefaults_DoesNotOverrideExplicit(t *testing.T) {
	cfg := &Config{}
	cfg.Cache.L1Capacity = 42
	cfg.Retry.MaxRetries = 7

	ApplyDefaults(cfg)

	if cfg.Cache.L1Capacity != 42 {
		t.Errorf("Explicit L1 capacity was overridden: %d", cfg.Cache.L1Capacity)
	}
	if cfg.Retry.MaxRetries != 7 {
		t.Errorf("Explicit max retries was overridden: %d", cfg.Retry.MaxRetries)
	}
}

// ============================================================================
// Validation
// ============================================================================

func validConfig() *Config {
	cfg := &Config{}
	cfg.Upstream.BaseURL = "https://api.translate.example.com"
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}
}

func TestValidate_MissingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation error for missing base URL")
	}
	if !strings.Contains(err.Error(), "upstream.base_url") {
		t.Errorf("Expected upstream.base_url in error, got %v", err)
	}
}

func TestValidate_BadCacheCapacities(t *testing.T) {
	cfg := validConfig()
	cfg.Cache.L1Capacity = 100
	cfg.Cache.L2Capacity = 10

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "cache.l2_capacity") {
		t.Errorf("Expected cache.l2_capacity error, got %v", err)
	}
}

func TestValidate_RateLimitAllZero(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Resources = map[string]RateCeilings{"translate": {}}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "rate_limit.resources.translate") {
		t.Errorf("Expected rate limit error, got %v", err)
	}
}

func TestValidate_BadRetryableStatus(t *testing.T) {
	cfg := validConfig()
	cfg.Retry.RetryableStatuses = []int{700}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "retry.retryable_statuses") {
		t.Errorf("Expected retryable statuses error, got %v", err)
	}
}

func TestValidate_BadCronSchedule(t *testing.T) {
	cfg := validConfig()
	cfg.Maintenance.SweepSchedule = "not a schedule"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "maintenance.sweep_schedule") {
		t.Errorf("Expected schedule error, got %v", err)
	}
}

func TestValidate_CollectsMultipleErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""
	cfg.Cache.L1Capacity = -1
	cfg.Storage.Backend = "redis"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("Expected validation errors")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("Expected ValidationError, got %T", err)
	}
	if len(verr.Errors) < 3 {
		t.Errorf("Expected at least 3 errors, got %d: %v", len(verr.Errors), verr)
	}
}

// ============================================================================
// Loading
// ============================================================================

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hermes.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  base_url: https://api.translate.example.com
cache:
  l1_capacity: 50
  l2_capacity: 500
rate_limit:
  resources:
    translate:
      per_minute: 50
      per_day: 2000
cost_guard:
  unit_costs:
    translate: 0.002
  per_day:
    cost: 10.0
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Cache.L1Capacity != 50 {
		t.Errorf("Expected L1 capacity 50, got %d", cfg.Cache.L1Capacity)
	}
	if cfg.RateLimit.Resources["translate"].PerMinute != 50 {
		t.Errorf("Expected 50/min ceiling, got %d", cfg.RateLimit.Resources["translate"].PerMinute)
	}
	if cfg.CostGuard.UnitCosts["translate"] != 0.002 {
		t.Errorf("Expected unit cost 0.002, got %v", cfg.CostGuard.UnitCosts["translate"])
	}
	if cfg.CostGuard.PerDay.Cost != 10.0 {
		t.Errorf("Expected daily cost ceiling 10.0, got %v", cfg.CostGuard.PerDay.Cost)
	}
	// Defaults still applied
	if cfg.Retry.MaxRetries != DefaultMaxRetries {
		t.Errorf("Expected default max retries, got %d", cfg.Retry.MaxRetries)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/hermes.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "upstream: [not: a: mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Error("Expected error for malformed YAML")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  base_url: https://api.translate.example.com
`)

	t.Setenv("HERMES_CACHE_L1_CAPACITY", "123")
	t.Setenv("HERMES_UPSTREAM_AUTH_TOKEN", "secret-token")
	t.Setenv("HERMES_RETRY_PER_ATTEMPT_TIMEOUT", "2s")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides failed: %v", err)
	}

	if cfg.Cache.L1Capacity != 123 {
		t.Errorf("Expected env-overridden L1 capacity 123, got %d", cfg.Cache.L1Capacity)
	}
	if cfg.Upstream.AuthToken != "secret-token" {
		t.Errorf("Expected env-overridden auth token, got %q", cfg.Upstream.AuthToken)
	}
	if cfg.Retry.PerAttemptTimeout != 2*time.Second {
		t.Errorf("Expected env-overridden per-attempt timeout, got %v", cfg.Retry.PerAttemptTimeout)
	}
}
