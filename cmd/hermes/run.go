package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"glotta-hq/hermes/pkg/cache"
	"glotta-hq/hermes/pkg/config"
	"glotta-hq/hermes/pkg/coordinator"
	"glotta-hq/hermes/pkg/fetch"
	"glotta-hq/hermes/pkg/limits/costguard"
	"glotta-hq/hermes/pkg/limits/ratelimit"
	"glotta-hq/hermes/pkg/maintenance"
	"glotta-hq/hermes/pkg/server"
	"glotta-hq/hermes/pkg/storage"
	"glotta-hq/hermes/pkg/telemetry/logging"
	"glotta-hq/hermes/pkg/telemetry/metrics"
	"glotta-hq/hermes/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Hermes lookup server",
	Long: `Start the Hermes lookup server with the specified configuration.

The server answers batch lookups from the cache hierarchy and fetches
misses from the upstream translation API under rate limiting and cost
accounting.

Examples:
  # Start with default config
  hermes run

  # Start with custom config
  hermes run --config /etc/hermes/config.yaml

  # Override listen address
  hermes run --listen 0.0.0.0:8090

  # Validate config without starting the server
  hermes run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

// reloadableCredentials feeds config reloads into the upstream client
// without rebuilding it, so tokens rotate on the fly.
type reloadableCredentials struct {
	mu    sync.RWMutex
	creds upstream.Credentials
}

func (r *reloadableCredentials) Credentials() upstream.Credentials {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.creds
}

func (r *reloadableCredentials) update(cfg *config.UpstreamConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creds = upstream.Credentials{
		AuthToken:      cfg.AuthToken,
		InstallationID: cfg.InstallationID,
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Hermes v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persisted store backing L2 and cost snapshots
	store, err := newStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	fmt.Printf("✓ Storage initialized (%s)\n", cfg.Storage.Backend)

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	cacheOpts := []cache.Option{cache.WithLogger(logger)}
	if collector != nil {
		cacheOpts = append(cacheOpts, cache.WithMetrics(collector))
	}
	hierarchy, err := cache.New(ctx, cache.Config{
		L1Capacity:             cfg.Cache.L1Capacity,
		L2Capacity:             cfg.Cache.L2Capacity,
		DefaultTTL:             cfg.Cache.DefaultTTL,
		BloomExpectedItems:     cfg.Cache.BloomExpectedItems,
		BloomFalsePositiveRate: cfg.Cache.BloomFalsePositiveRate,
		Namespace:              cfg.Cache.Namespace,
	}, store, cacheOpts...)
	if err != nil {
		return fmt.Errorf("failed to create cache: %w", err)
	}
	fmt.Printf("✓ Cache hierarchy ready (%d persisted entries)\n", hierarchy.PersistedLen())

	limiter := ratelimit.NewLimiter(rateCeilings(&cfg.RateLimit))
	if err := limiter.LoadSnapshot(ctx, store); err != nil {
		slog.Warn("failed to load rate limit snapshot", "error", err)
	}

	guard := costguard.New(costguard.Config{
		UnitCosts:      cfg.CostGuard.UnitCosts,
		Limits:         costLimits(&cfg.CostGuard),
		BreakerTimeout: cfg.CostGuard.BreakerTimeout,
		WarnThreshold:  cfg.CostGuard.WarnThreshold,
		SnapshotMaxAge: cfg.CostGuard.SnapshotMaxAge,
	}, costguard.WithLogger(logger))
	if err := guard.LoadSnapshot(ctx, store); err != nil {
		slog.Warn("failed to load usage snapshot", "error", err)
	}
	guard.BindStore(store)

	creds := &reloadableCredentials{}
	creds.update(&cfg.Upstream)
	client, err := upstream.NewClient(upstream.Config{
		BaseURL:        cfg.Upstream.BaseURL,
		RequestTimeout: cfg.Upstream.RequestTimeout,
	}, creds)
	if err != nil {
		return fmt.Errorf("failed to create upstream client: %w", err)
	}

	coord, err := coordinator.New(coordinator.Services{
		Cache:       hierarchy,
		RateLimiter: limiter,
		CostGuard:   guard,
		Upstream:    client,
		Metrics:     collector,
		Logger:      logger,
	}, fetch.Policy{
		MaxRetries:        cfg.Retry.MaxRetries,
		InitialDelay:      cfg.Retry.InitialDelay,
		MaxDelay:          cfg.Retry.MaxDelay,
		BackoffFactor:     cfg.Retry.BackoffFactor,
		PerAttemptTimeout: cfg.Retry.PerAttemptTimeout,
		RetryableStatuses: cfg.Retry.RetryableStatuses,
	})
	if err != nil {
		return fmt.Errorf("failed to create coordinator: %w", err)
	}

	// Background upkeep
	scheduler := maintenance.NewScheduler(maintenance.Config{
		SweepSchedule:    cfg.Maintenance.SweepSchedule,
		SnapshotSchedule: cfg.Maintenance.SnapshotSchedule,
	}, hierarchy, limiter, guard, store, logger)
	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start maintenance scheduler: %w", err)
	}
	defer scheduler.Stop()

	// Config watcher for credential rotation
	watcher, err := config.NewWatcher(cfgFile, config.WithWatchLogger(logger))
	if err != nil {
		slog.Warn("config watching disabled", "error", err)
	} else {
		if err := watcher.Start(ctx); err != nil {
			slog.Warn("config watching disabled", "error", err)
		} else {
			defer watcher.Close()
			go func() {
				for updated := range watcher.Updates() {
					creds.update(&updated.Upstream)
					slog.Info("applied config reload", "path", cfgFile)
				}
			}()
		}
	}

	srv := server.NewServer(&cfg.Server, coord, collector, logger)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- err
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Server listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/healthz\n", cfg.Server.ListenAddress)
	if collector != nil {
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", cfg.Server.ListenAddress)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", "error", err)
			return err
		}

		// Final snapshots so a restart resumes with current usage.
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		if err := guard.FlushSnapshot(flushCtx, store); err != nil {
			slog.Warn("final usage snapshot failed", "error", err)
		}
		if err := limiter.FlushSnapshot(flushCtx, store); err != nil {
			slog.Warn("final rate limit snapshot failed", "error", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

// newStore opens the configured key-value backend.
func newStore(cfg *config.StorageConfig) (storage.KeyValue, error) {
	switch cfg.Backend {
	case "", "memory":
		return storage.NewMemoryStoreWithConfig(storage.MemoryStoreConfig{
			MaxBytes: cfg.MaxBytes,
		}), nil
	case "sqlite":
		return storage.NewSQLiteStoreWithConfig(storage.SQLiteStoreConfig{
			DBPath:      cfg.Path,
			BusyTimeout: cfg.BusyTimeout,
			MaxBytes:    cfg.MaxBytes,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// rateCeilings converts the config section to the limiter's form.
func rateCeilings(cfg *config.RateLimitConfig) map[string]ratelimit.Ceilings {
	out := make(map[string]ratelimit.Ceilings, len(cfg.Resources))
	for name, c := range cfg.Resources {
		out[name] = ratelimit.Ceilings{
			PerSecond: c.PerSecond,
			PerMinute: c.PerMinute,
			PerHour:   c.PerHour,
			PerDay:    c.PerDay,
		}
	}
	return out
}

// costLimits converts the config section to the guard's form, skipping
// windows with no ceilings at all.
func costLimits(cfg *config.CostGuardConfig) map[costguard.Period]costguard.Limit {
	out := make(map[costguard.Period]costguard.Limit)
	add := func(period costguard.Period, limit config.CostWindowLimit) {
		if limit.Cost <= 0 && limit.Calls <= 0 {
			return
		}
		out[period] = costguard.Limit{Cost: limit.Cost, Calls: int(limit.Calls)}
	}
	add(costguard.PeriodSecond, cfg.PerSecond)
	add(costguard.PeriodMinute, cfg.PerMinute)
	add(costguard.PeriodHour, cfg.PerHour)
	add(costguard.PeriodDay, cfg.PerDay)
	add(costguard.PeriodMonth, cfg.PerMonth)
	return out
}
