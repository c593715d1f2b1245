package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"glotta-hq/hermes/pkg/storage"
)

// persistedTier is the L2 cache tier on top of a storage.KeyValue
// collaborator.
//
// Capacity is enforced by last-write order: when the tier exceeds its
// capacity it is pruned to the newest N entries by write time. Reads do not
// refresh an entry's position, so this is deliberately weaker than L1's LRU.
// Write order is tracked in memory and seeded from the store's key listing
// at construction.
type persistedTier struct {
	kv        storage.KeyValue
	namespace string
	capacity  int
	logger    *slog.Logger
	clock     func() time.Time

	mu sync.Mutex
	// order holds storage keys in last-write order, oldest first.
	order []string
}

func newPersistedTier(ctx context.Context, kv storage.KeyValue, namespace string, capacity int, logger *slog.Logger, clock func() time.Time) *persistedTier {
	tier := &persistedTier{
		kv:        kv,
		namespace: namespace,
		capacity:  capacity,
		logger:    logger,
		clock:     clock,
	}

	// Seed write order from whatever the store already holds. Backends list
	// keys oldest-write first where they can (SQLite); for backends that
	// cannot, pre-existing entries are pruned in listing order.
	keys, err := kv.Keys(ctx, tier.prefix())
	if err != nil {
		logger.Warn("failed to list persisted cache keys, starting empty", "error", err)
		return tier
	}
	tier.order = keys

	return tier
}

func (p *persistedTier) prefix() string {
	return p.namespace + ":"
}

// seededKeys returns the cache keys present at construction, for bloom
// filter warm-up.
func (p *persistedTier) seededKeys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]string, 0, len(p.order))
	for _, storageKey := range p.order {
		keys = append(keys, strings.TrimPrefix(storageKey, p.prefix()))
	}
	return keys
}

// get loads an entry. Expired entries are removed and reported as misses.
func (p *persistedTier) get(ctx context.Context, key string) (*Entry, bool) {
	storageKey := p.prefix() + key

	data, ok, err := p.kv.Get(ctx, storageKey)
	if err != nil {
		p.logger.Warn("l2 read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	entry, err := decodeEntry(data)
	if err != nil {
		p.logger.Warn("l2 entry corrupt, dropping", "key", key, "error", err)
		p.remove(ctx, storageKey)
		return nil, false
	}

	if entry.Expired(p.clock()) {
		p.remove(ctx, storageKey)
		return nil, false
	}

	return entry, true
}

// put stores an entry and prunes the tier to its newest N entries by write
// order. Returns false if the underlying store rejected the write.
func (p *persistedTier) put(ctx context.Context, key string, entry *Entry) bool {
	data, err := encodeEntry(entry)
	if err != nil {
		p.logger.Warn("l2 encode failed", "key", key, "error", err)
		return false
	}

	storageKey := p.prefix() + key
	if err := p.kv.Set(ctx, storageKey, data); err != nil {
		p.logger.Warn("l2 write failed, continuing in-memory only", "key", key, "error", err)
		return false
	}

	p.mu.Lock()
	p.touchLocked(storageKey)
	victims := p.pruneLocked()
	p.mu.Unlock()

	for _, victim := range victims {
		p.remove(ctx, victim)
	}

	return true
}

// touchLocked moves a storage key to the newest position in write order.
// Caller must hold mu.
func (p *persistedTier) touchLocked(storageKey string) {
	for i, existing := range p.order {
		if existing == storageKey {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.order = append(p.order, storageKey)
}

// pruneLocked trims order to capacity, returning the storage keys to delete.
// Caller must hold mu.
func (p *persistedTier) pruneLocked() []string {
	if p.capacity <= 0 || len(p.order) <= p.capacity {
		return nil
	}

	excess := len(p.order) - p.capacity
	victims := append([]string(nil), p.order[:excess]...)
	p.order = append(p.order[:0], p.order[excess:]...)
	return victims
}

func (p *persistedTier) remove(ctx context.Context, storageKey string) {
	if err := p.kv.Remove(ctx, storageKey); err != nil {
		p.logger.Warn("l2 remove failed", "key", storageKey, "error", err)
		return
	}

	p.mu.Lock()
	for i, existing := range p.order {
		if existing == storageKey {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
}

// clear removes every entry in the tier's namespace.
func (p *persistedTier) clear(ctx context.Context) {
	keys, err := p.kv.Keys(ctx, p.prefix())
	if err != nil {
		p.logger.Warn("l2 clear listing failed", "error", err)
		return
	}

	for _, storageKey := range keys {
		if err := p.kv.Remove(ctx, storageKey); err != nil {
			p.logger.Warn("l2 clear remove failed", "key", storageKey, "error", err)
		}
	}

	p.mu.Lock()
	p.order = nil
	p.mu.Unlock()
}

// sweepExpired removes entries past their expiry, returning how many rows
// were deleted.
func (p *persistedTier) sweepExpired(ctx context.Context) (int, error) {
	keys, err := p.kv.Keys(ctx, p.prefix())
	if err != nil {
		return 0, err
	}

	now := p.clock()
	deleted := 0
	for _, storageKey := range keys {
		data, ok, err := p.kv.Get(ctx, storageKey)
		if err != nil || !ok {
			continue
		}
		entry, err := decodeEntry(data)
		if err != nil || entry.Expired(now) {
			p.remove(ctx, storageKey)
			deleted++
		}
	}

	return deleted, nil
}

// len returns the number of entries the tier believes it holds.
func (p *persistedTier) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
