// Package config provides configuration management for Hermes.
//
// Configuration is loaded from a YAML file, merged with defaults, optionally
// overridden by environment variables, and validated before use. All limit
// ceilings, cache capacities, unit costs, and retry parameters are supplied
// here; nothing is hardcoded in the engine packages.
//
// # Loading
//
//	cfg, err := config.LoadConfig("hermes.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("hermes.yaml")
//
// Environment overrides follow the HERMES_SECTION_FIELD convention, e.g.
// HERMES_SERVER_LISTEN_ADDRESS or HERMES_STORAGE_PATH. Environment variables
// always take precedence over file values.
//
// # Hot Reload
//
// A Watcher can observe the configuration file and deliver re-validated
// configurations on change. Only rate and cost ceilings are safe to swap at
// runtime; structural settings (storage backend, listen address) require a
// restart and are ignored by consumers of reload events.
package config
