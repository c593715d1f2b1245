package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"glotta-hq/hermes/pkg/cache"
	"glotta-hq/hermes/pkg/limits/costguard"
	"glotta-hq/hermes/pkg/limits/ratelimit"
	"glotta-hq/hermes/pkg/storage"
)

// Config contains the cron schedules for background upkeep.
type Config struct {
	// SweepSchedule drives cache expiry sweeps and rate limit history
	// pruning. Empty disables the sweeps.
	SweepSchedule string

	// SnapshotSchedule drives cost usage snapshot flushes. Empty
	// disables snapshotting.
	SnapshotSchedule string
}

// Scheduler runs the background tasks on their schedules.
type Scheduler struct {
	cfg     Config
	cache   *cache.Hierarchy
	limiter *ratelimit.Limiter
	guard   *costguard.Guard
	store   storage.KeyValue
	logger  *slog.Logger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a maintenance scheduler. Any nil collaborator
// simply has no tasks scheduled for it.
func NewScheduler(cfg Config, hierarchy *cache.Hierarchy, limiter *ratelimit.Limiter, guard *costguard.Guard, store storage.KeyValue, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:     cfg,
		cache:   hierarchy,
		limiter: limiter,
		guard:   guard,
		store:   store,
		logger:  logger.With("component", "maintenance"),
	}
}

// Start validates the schedules, registers the tasks, and starts the
// cron loop. The scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.cron = cron.New()

	if s.cfg.SweepSchedule != "" {
		if _, err := cron.ParseStandard(s.cfg.SweepSchedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.SweepSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, func() { s.runSweep(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule sweep: %w", err)
		}
	} else {
		s.logger.Info("sweep schedule not configured, skipping")
	}

	if s.cfg.SnapshotSchedule != "" && s.store != nil && (s.guard != nil || s.limiter != nil) {
		if _, err := cron.ParseStandard(s.cfg.SnapshotSchedule); err != nil {
			return fmt.Errorf("invalid snapshot schedule %q: %w", s.cfg.SnapshotSchedule, err)
		}
		if _, err := s.cron.AddFunc(s.cfg.SnapshotSchedule, func() { s.runSnapshot(ctx) }); err != nil {
			return fmt.Errorf("failed to schedule snapshot: %w", err)
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("maintenance scheduler started",
		"sweep_schedule", s.cfg.SweepSchedule,
		"snapshot_schedule", s.cfg.SnapshotSchedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// Stop halts the scheduler and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("maintenance scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextSweep returns the next scheduled task time, if any.
func (s *Scheduler) NextSweep() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return nil
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}

// runSweep prunes rate limit histories and expired cache entries.
func (s *Scheduler) runSweep(ctx context.Context) {
	if s.limiter != nil {
		if removed := s.limiter.Sweep(); removed > 0 {
			s.logger.Debug("pruned rate limit histories", "timestamps", removed)
		}
	}

	if s.cache != nil {
		removed, err := s.cache.SweepExpired(ctx)
		if err != nil {
			s.logger.Error("cache sweep failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Info("swept expired cache entries", "removed", removed)
		}
	}
}

// runSnapshot flushes the cost guard's usage snapshot and the rate
// limiter's call histories.
func (s *Scheduler) runSnapshot(ctx context.Context) {
	if s.guard != nil {
		if err := s.guard.FlushSnapshot(ctx, s.store); err != nil {
			s.logger.Error("usage snapshot flush failed", "error", err)
		}
	}
	if s.limiter != nil {
		if err := s.limiter.FlushSnapshot(ctx, s.store); err != nil {
			s.logger.Error("rate limit snapshot flush failed", "error", err)
		}
	}
}
