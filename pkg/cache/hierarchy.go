package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"glotta-hq/hermes/pkg/storage"
)

// Config contains configuration for the cache hierarchy.
type Config struct {
	// L1Capacity is the maximum number of entries in the in-memory tier.
	L1Capacity int

	// L2Capacity is the maximum number of entries in the persisted tier.
	L2Capacity int

	// DefaultTTL is applied when Store is called with a non-positive TTL.
	DefaultTTL time.Duration

	// BloomExpectedItems sizes the bloom pre-filter.
	BloomExpectedItems uint

	// BloomFalsePositiveRate is the target false positive rate.
	BloomFalsePositiveRate float64

	// Namespace prefixes persisted keys so hierarchies can share a store.
	Namespace string
}

// Stats contains cumulative counters for the hierarchy.
type Stats struct {
	// Hits is the total number of lookups answered from any tier.
	Hits int64

	// Misses is the total number of lookups answered with a miss.
	Misses int64

	// BloomFiltered is the subset of Misses short-circuited by the bloom
	// pre-check without probing L1/L2.
	BloomFiltered int64

	// L1Hits and L2Hits break Hits down by serving tier.
	L1Hits int64
	L2Hits int64

	// Evictions counts L1 capacity evictions and lazy expiry evictions.
	Evictions int64
}

// MetricsRecorder receives per-lookup outcomes for export. The tier passed
// to RecordCacheHit is "l1" or "l2" for served lookups and "bloom" for
// lookups the pre-filter short-circuited (those also count as misses).
type MetricsRecorder interface {
	RecordCacheHit(tier string)
	RecordCacheMiss()
}

// Hierarchy is the layered translation cache. See the package documentation
// for the lookup path and eviction semantics.
//
// Hierarchy is safe for concurrent use.
type Hierarchy struct {
	cfg     Config
	filter  *bloom.BloomFilter
	l1      *lru.Cache[string, *Entry]
	l2      *persistedTier
	logger  *slog.Logger
	clock   func() time.Time
	metrics MetricsRecorder

	// mu guards filter and stats; the bloom filter is not thread-safe.
	mu    sync.Mutex
	stats Stats
}

// Option customizes a Hierarchy.
type Option func(*Hierarchy)

// WithLogger sets the logger used for degraded-mode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hierarchy) {
		if logger != nil {
			h.logger = logger.With("component", "cache")
		}
	}
}

// WithMetrics attaches a recorder for per-lookup hit and miss outcomes.
func WithMetrics(recorder MetricsRecorder) Option {
	return func(h *Hierarchy) {
		h.metrics = recorder
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(h *Hierarchy) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// New creates a cache hierarchy on top of the given persisted store.
//
// Keys already present in the store's namespace are folded into the bloom
// filter so the pre-check keeps its no-false-negative guarantee across
// restarts.
func New(ctx context.Context, cfg Config, kv storage.KeyValue, opts ...Option) (*Hierarchy, error) {
	if cfg.L1Capacity <= 0 {
		return nil, fmt.Errorf("l1 capacity must be positive, got %d", cfg.L1Capacity)
	}
	if cfg.L2Capacity < cfg.L1Capacity {
		return nil, fmt.Errorf("l2 capacity %d must be at least l1 capacity %d", cfg.L2Capacity, cfg.L1Capacity)
	}
	if cfg.BloomExpectedItems == 0 {
		cfg.BloomExpectedItems = 100000
	}
	if cfg.BloomFalsePositiveRate <= 0 || cfg.BloomFalsePositiveRate >= 1 {
		cfg.BloomFalsePositiveRate = 0.01
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "translations"
	}

	h := &Hierarchy{
		cfg:    cfg,
		filter: bloom.NewWithEstimates(cfg.BloomExpectedItems, cfg.BloomFalsePositiveRate),
		logger: slog.Default().With("component", "cache"),
		clock:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}

	l1, err := lru.NewWithEvict[string, *Entry](cfg.L1Capacity, func(string, *Entry) {
		h.mu.Lock()
		h.stats.Evictions++
		h.mu.Unlock()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create l1 cache: %w", err)
	}
	h.l1 = l1

	h.l2 = newPersistedTier(ctx, kv, cfg.Namespace, cfg.L2Capacity, h.logger, h.clock)

	// Warm the bloom filter with pre-existing persisted keys
	for _, key := range h.l2.seededKeys() {
		h.filter.AddString(key)
	}

	return h, nil
}

// Lookup returns the cached value for a key, if present and unexpired.
func (h *Hierarchy) Lookup(ctx context.Context, key string) (string, bool) {
	now := h.clock()

	h.mu.Lock()
	if !h.filter.TestString(key) {
		// Definitely never stored; skip both tiers.
		h.stats.Misses++
		h.stats.BloomFiltered++
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.RecordCacheHit("bloom")
			h.metrics.RecordCacheMiss()
		}
		return "", false
	}
	h.mu.Unlock()

	// L1: Get refreshes recency
	if entry, ok := h.l1.Get(key); ok {
		if entry.Expired(now) {
			h.l1.Remove(key)
		} else {
			// Entry mutation shares h.mu with the stats update so
			// concurrent lookups of the same key do not race.
			h.mu.Lock()
			entry.AccessCount++
			entry.LastAccessedAt = now
			h.stats.Hits++
			h.stats.L1Hits++
			h.mu.Unlock()
			if h.metrics != nil {
				h.metrics.RecordCacheHit("l1")
			}
			return entry.Value, true
		}
	}

	// L2: hit promotes a copy into L1
	if entry, ok := h.l2.get(ctx, key); ok {
		entry.AccessCount++
		entry.LastAccessedAt = now
		h.l1.Add(key, entry.clone())
		h.mu.Lock()
		h.stats.Hits++
		h.stats.L2Hits++
		h.mu.Unlock()
		if h.metrics != nil {
			h.metrics.RecordCacheHit("l2")
		}
		return entry.Value, true
	}

	h.mu.Lock()
	h.stats.Misses++
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.RecordCacheMiss()
	}
	return "", false
}

// Store writes a value into every tier. A non-positive ttl uses the
// configured default.
//
// The bloom bit and the L1 entry are always set; a persisted-tier write
// failure is logged and does not surface, leaving the hierarchy in a
// degraded but correct in-memory mode. L2 is pruned to its newest
// L2Capacity entries by write order (not read order; see package docs).
func (h *Hierarchy) Store(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = h.cfg.DefaultTTL
	}

	now := h.clock()
	entry := &Entry{
		Value:          value,
		InsertedAt:     now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
	}

	h.mu.Lock()
	h.filter.AddString(key)
	h.mu.Unlock()

	h.l1.Add(key, entry)
	h.l2.put(ctx, key, entry.clone())
}

// InvalidateAll resets the bloom filter and purges both tiers.
func (h *Hierarchy) InvalidateAll(ctx context.Context) {
	h.mu.Lock()
	h.filter.ClearAll()
	h.mu.Unlock()

	h.l1.Purge()
	h.l2.clear(ctx)
}

// SweepExpired removes expired persisted entries. Intended to be driven by
// the maintenance scheduler.
func (h *Hierarchy) SweepExpired(ctx context.Context) (int, error) {
	return h.l2.sweepExpired(ctx)
}

// Stats returns a snapshot of the cumulative counters.
func (h *Hierarchy) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Len returns the current number of L1 entries.
func (h *Hierarchy) Len() int {
	return h.l1.Len()
}

// PersistedLen returns the number of entries tracked in the persisted tier.
func (h *Hierarchy) PersistedLen() int {
	return h.l2.len()
}
