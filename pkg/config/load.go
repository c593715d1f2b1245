package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention HERMES_SECTION_FIELD (e.g., HERMES_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format HERMES_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	overrideString("HERMES_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	overrideDuration("HERMES_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	overrideDuration("HERMES_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	overrideDuration("HERMES_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Upstream overrides (credentials are typically supplied this way)
	overrideString("HERMES_UPSTREAM_BASE_URL", &cfg.Upstream.BaseURL)
	overrideString("HERMES_UPSTREAM_AUTH_TOKEN", &cfg.Upstream.AuthToken)
	overrideString("HERMES_UPSTREAM_INSTALLATION_ID", &cfg.Upstream.InstallationID)
	overrideDuration("HERMES_UPSTREAM_REQUEST_TIMEOUT", &cfg.Upstream.RequestTimeout)

	// Cache overrides
	overrideInt("HERMES_CACHE_L1_CAPACITY", &cfg.Cache.L1Capacity)
	overrideInt("HERMES_CACHE_L2_CAPACITY", &cfg.Cache.L2Capacity)
	overrideDuration("HERMES_CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)

	// Cost guard overrides
	overrideDuration("HERMES_COST_GUARD_BREAKER_TIMEOUT", &cfg.CostGuard.BreakerTimeout)

	// Retry overrides
	overrideInt("HERMES_RETRY_MAX_RETRIES", &cfg.Retry.MaxRetries)
	overrideDuration("HERMES_RETRY_PER_ATTEMPT_TIMEOUT", &cfg.Retry.PerAttemptTimeout)

	// Storage overrides
	overrideString("HERMES_STORAGE_BACKEND", &cfg.Storage.Backend)
	overrideString("HERMES_STORAGE_PATH", &cfg.Storage.Path)

	// Telemetry overrides
	overrideString("HERMES_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	overrideString("HERMES_LOG_FORMAT", &cfg.Telemetry.Logging.Format)
}

func overrideString(name string, target *string) {
	if val := os.Getenv(name); val != "" {
		*target = val
	}
}

func overrideInt(name string, target *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*target = n
		}
	}
}

func overrideDuration(name string, target *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*target = d
		}
	}
}
