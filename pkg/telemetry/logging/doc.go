// Package logging provides structured logging for Hermes components.
//
// The package configures a log/slog logger from the telemetry configuration
// and hands out component-scoped child loggers. All Hermes components accept
// an injected *slog.Logger and fall back to slog.Default() when none is
// provided, so libraries embedding the engine keep full control of log
// routing.
//
// # Formats
//
// Three output formats are supported:
//
//   - json: machine-readable JSON, one object per line
//   - text: logfmt-style key=value pairs
//   - console: text with source locations, intended for development
//
// # Usage
//
//	logger, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	if err != nil {
//	    return err
//	}
//	cacheLog := logging.Component(logger, "cache")
//	cacheLog.Warn("l2 write failed", "key", key, "error", err)
package logging
