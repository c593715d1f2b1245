package costguard

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"glotta-hq/hermes/pkg/storage"
)

// snapshotKey is where the guard persists its state in the key-value store.
const snapshotKey = "costguard:snapshot"

// snapshot is the persisted form of the guard's mutable state.
type snapshot struct {
	SavedAt time.Time               `json:"saved_at"`
	Windows map[Period]*usageWindow `json:"windows"`
	Breaker breakerState            `json:"breaker"`
}

// LoadSnapshot restores windows and breaker state from the store.
//
// A missing snapshot is not an error; the guard simply starts empty. A
// snapshot older than the configured maximum age is discarded, since spend
// that old says nothing about the current windows.
func (g *Guard) LoadSnapshot(ctx context.Context, kv storage.KeyValue) error {
	raw, found, err := kv.Get(ctx, snapshotKey)
	if err != nil {
		return fmt.Errorf("failed to load usage snapshot: %w", err)
	}
	if !found {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("failed to decode usage snapshot: %w", err)
	}

	now := g.clock()
	if age := now.Sub(snap.SavedAt); age > g.cfg.SnapshotMaxAge {
		g.logger.Warn("discarding stale usage snapshot",
			"saved_at", snap.SavedAt,
			"age", age.Round(time.Second))
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for period, w := range snap.Windows {
		if period.Window() == 0 || w == nil {
			continue
		}
		g.windows[period] = w
	}
	g.breaker = snap.Breaker
	g.rolloverLocked(now)

	g.logger.Info("restored usage snapshot", "saved_at", snap.SavedAt)
	return nil
}

// FlushSnapshot persists the current windows and breaker state. Driven by
// the maintenance scheduler and called once more on shutdown.
func (g *Guard) FlushSnapshot(ctx context.Context, kv storage.KeyValue) error {
	now := g.clock()

	g.mu.Lock()
	g.rolloverLocked(now)
	snap := g.snapshotLocked(now)
	g.mu.Unlock()

	return writeSnapshot(ctx, kv, snap)
}

// BindStore enables best-effort persistence after mutations, on top of
// the scheduled flushes. Flushes are coalesced to at most one per
// persistInterval; failures are logged, never surfaced to callers.
func (g *Guard) BindStore(kv storage.KeyValue) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.snapshotKV = kv
}

// persistInterval coalesces mutation-driven snapshot writes.
const persistInterval = 10 * time.Second

// persistLocked fires an async snapshot write if a store is bound and the
// last write is old enough. Caller must hold the lock.
func (g *Guard) persistLocked(now time.Time) {
	if g.snapshotKV == nil || now.Sub(g.lastPersist) < persistInterval {
		return
	}
	g.lastPersist = now

	kv := g.snapshotKV
	snap := g.snapshotLocked(now)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := writeSnapshot(ctx, kv, snap); err != nil {
			g.logger.Warn("usage snapshot flush failed", "error", err)
		}
	}()
}

// snapshotLocked copies the mutable state into a persistable snapshot.
// Caller must hold the lock.
func (g *Guard) snapshotLocked(now time.Time) snapshot {
	snap := snapshot{
		SavedAt: now,
		Windows: make(map[Period]*usageWindow, len(g.windows)),
		Breaker: g.breaker,
	}
	for period, w := range g.windows {
		copied := *w
		snap.Windows[period] = &copied
	}
	return snap
}

func writeSnapshot(ctx context.Context, kv storage.KeyValue, snap snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode usage snapshot: %w", err)
	}
	if err := kv.Set(ctx, snapshotKey, raw); err != nil {
		return fmt.Errorf("failed to persist usage snapshot: %w", err)
	}
	return nil
}
