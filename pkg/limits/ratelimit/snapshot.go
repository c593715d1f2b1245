package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"glotta-hq/hermes/pkg/storage"
)

// snapshotKey is where the limiter persists its histories in the store.
const snapshotKey = "ratelimit:snapshot"

// snapshot is the persisted form of the limiter's call histories.
type snapshot struct {
	SavedAt   time.Time              `json:"saved_at"`
	Histories map[string][]time.Time `json:"histories"`
}

// LoadSnapshot restores call histories from the store so a restart does
// not forget recent charges.
//
// A missing snapshot is not an error. Restored timestamps outside the
// longest window are dropped, so an old snapshot simply restores less.
func (l *Limiter) LoadSnapshot(ctx context.Context, kv storage.KeyValue) error {
	raw, found, err := kv.Get(ctx, snapshotKey)
	if err != nil {
		return fmt.Errorf("failed to load rate limit snapshot: %w", err)
	}
	if !found {
		return nil
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return fmt.Errorf("failed to decode rate limit snapshot: %w", err)
	}

	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, history := range snap.Histories {
		kept := l.pruneHistory(history, now)
		if len(kept) > 0 {
			l.histories[key] = kept
		}
	}
	return nil
}

// FlushSnapshot persists the current call histories. Driven by the
// maintenance scheduler and called once more on shutdown.
func (l *Limiter) FlushSnapshot(ctx context.Context, kv storage.KeyValue) error {
	now := l.clock()

	l.mu.Lock()
	snap := snapshot{
		SavedAt:   now,
		Histories: make(map[string][]time.Time, len(l.histories)),
	}
	for key, history := range l.histories {
		kept := l.pruneHistory(history, now)
		if len(kept) > 0 {
			snap.Histories[key] = append([]time.Time(nil), kept...)
		}
	}
	l.mu.Unlock()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode rate limit snapshot: %w", err)
	}
	if err := kv.Set(ctx, snapshotKey, raw); err != nil {
		return fmt.Errorf("failed to persist rate limit snapshot: %w", err)
	}
	return nil
}
