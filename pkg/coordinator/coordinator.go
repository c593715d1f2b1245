package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"glotta-hq/hermes/pkg/cache"
	"glotta-hq/hermes/pkg/fetch"
	"glotta-hq/hermes/pkg/limits/costguard"
	"glotta-hq/hermes/pkg/limits/ratelimit"
	"glotta-hq/hermes/pkg/telemetry/metrics"
)

// ResourceTranslate is the resource name batches are governed under.
const ResourceTranslate = "translate"

// Translator fetches translations from the backend. Implemented by
// upstream.Client.
type Translator interface {
	Translate(ctx context.Context, words []string, targetLanguage string) (map[string]string, error)
}

// Services contains the injected collaborators of a Coordinator.
type Services struct {
	Cache       *cache.Hierarchy
	RateLimiter *ratelimit.Limiter
	CostGuard   *costguard.Guard
	Upstream    Translator
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// BatchRequest is one batch of words to resolve.
type BatchRequest struct {
	// Words to translate. Duplicates and surrounding whitespace are
	// normalized away.
	Words []string

	// Language is the target language code.
	Language string

	// Caller identifies the requester for rate limiting.
	Caller string
}

// BatchResult is the outcome of a batch lookup.
//
// Results always holds whatever the cache could answer, even when the
// miss subset was rejected or the upstream failed; Err then explains why
// the rest is absent.
type BatchResult struct {
	// ID identifies the batch in logs.
	ID string

	// Language echoes the requested target language.
	Language string

	// Results maps each resolved word to its translation.
	Results map[string]string

	// Missing lists words neither the cache nor the upstream resolved.
	Missing []string

	// CacheHits and Fetched count how each resolved word was answered.
	CacheHits int
	Fetched   int

	// Err is the admission or upstream error for the miss subset, nil
	// when every miss was fetched.
	Err error
}

// Coordinator runs the lookup pipeline.
type Coordinator struct {
	svc    Services
	retry  fetch.Policy
	logger *slog.Logger

	// flights collapses concurrent fetches of identical miss subsets.
	flights singleflight.Group
}

// New creates a coordinator. Cache, RateLimiter, CostGuard, and Upstream
// are required.
func New(svc Services, retry fetch.Policy) (*Coordinator, error) {
	if svc.Cache == nil || svc.RateLimiter == nil || svc.CostGuard == nil || svc.Upstream == nil {
		return nil, fmt.Errorf("cache, rate limiter, cost guard, and upstream are all required")
	}
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coordinator")
	retry.Logger = logger

	return &Coordinator{
		svc:    svc,
		retry:  retry,
		logger: logger,
	}, nil
}

// LookupBatch resolves a batch of words, serving from the cache and
// fetching the rest from the upstream under admission control.
//
// The returned result is never nil. When the miss subset is rejected or
// the fetch fails, the result still carries the cached portion and the
// same error is returned alongside it.
func (c *Coordinator) LookupBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	started := time.Now()

	result := &BatchResult{
		ID:       uuid.NewString(),
		Language: req.Language,
		Results:  make(map[string]string),
	}

	words := normalizeWords(req.Words)
	if len(words) == 0 {
		return result, nil
	}

	// Cache split
	var misses []string
	for _, word := range words {
		if value, ok := c.svc.Cache.Lookup(ctx, cache.Key(req.Language, word)); ok {
			result.Results[word] = value
			result.CacheHits++
		} else {
			misses = append(misses, word)
		}
	}

	if len(misses) == 0 {
		c.recordBatch(req.Language, "success", started, len(words))
		c.logger.Debug("batch served from cache",
			"batch_id", result.ID,
			"words", len(words))
		return result, nil
	}

	// Cost admission covers the whole miss subset or none of it.
	if err := c.svc.CostGuard.Check(ResourceTranslate, len(misses)); err != nil {
		c.recordCostRejection(err)
		c.recordBatch(req.Language, "rejected", started, len(words))
		result.Missing = misses
		result.Err = err
		c.logger.Warn("batch rejected by cost guard",
			"batch_id", result.ID,
			"misses", len(misses),
			"error", err)
		return result, err
	}

	// Rate admission charges one upstream call for this caller.
	if err := c.svc.RateLimiter.Allow(ResourceTranslate, req.Caller); err != nil {
		var limitErr *ratelimit.LimitExceededError
		if errors.As(err, &limitErr) && c.svc.Metrics != nil {
			c.svc.Metrics.RecordRateLimitRejection(limitErr.Resource, string(limitErr.Period))
		}
		c.recordBatch(req.Language, "rejected", started, len(words))
		result.Missing = misses
		result.Err = err
		c.logger.Warn("batch rejected by rate limiter",
			"batch_id", result.ID,
			"caller", req.Caller,
			"error", err)
		return result, err
	}

	translations, err := c.fetchShared(ctx, req.Language, misses)
	if err != nil {
		// The caller was charged for a fetch that produced nothing.
		c.svc.RateLimiter.Rollback(ResourceTranslate, req.Caller)
		c.recordBatch(req.Language, "error", started, len(words))
		result.Missing = misses
		result.Err = err
		c.logger.Error("upstream fetch failed",
			"batch_id", result.ID,
			"misses", len(misses),
			"error", err)
		return result, err
	}

	for _, word := range misses {
		value, ok := translations[word]
		if !ok {
			result.Missing = append(result.Missing, word)
			continue
		}
		result.Results[word] = value
		result.Fetched++
	}

	status := "success"
	if len(result.Missing) > 0 {
		status = "partial"
	}
	c.recordBatch(req.Language, status, started, len(words))
	c.logger.Info("batch resolved",
		"batch_id", result.ID,
		"words", len(words),
		"cache_hits", result.CacheHits,
		"fetched", result.Fetched,
		"missing", len(result.Missing))
	return result, nil
}

// fetchShared fetches a miss subset through singleflight, so identical
// subsets in flight share one upstream call and one usage charge.
func (c *Coordinator) fetchShared(ctx context.Context, language string, misses []string) (map[string]string, error) {
	key := flightKey(language, misses)

	v, err, _ := c.flights.Do(key, func() (interface{}, error) {
		// A completed flight may have populated the cache since this
		// batch computed its misses.
		remaining := misses[:0:0]
		found := make(map[string]string)
		for _, word := range misses {
			if value, ok := c.svc.Cache.Lookup(ctx, cache.Key(language, word)); ok {
				found[word] = value
			} else {
				remaining = append(remaining, word)
			}
		}
		if len(remaining) == 0 {
			return found, nil
		}

		started := time.Now()
		translations, err := fetch.Do(ctx, c.retry, func(ctx context.Context) (map[string]string, error) {
			return c.svc.Upstream.Translate(ctx, remaining, language)
		})
		if err != nil {
			c.recordUpstream("error", err, started)
			return nil, err
		}
		c.recordUpstream("success", nil, started)

		for word, value := range translations {
			c.svc.Cache.Store(ctx, cache.Key(language, word), value, 0)
			found[word] = value
		}
		c.svc.CostGuard.Record(ResourceTranslate, len(remaining))
		c.updateUsageGauges()
		return found, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

func (c *Coordinator) recordBatch(language, status string, started time.Time, words int) {
	if c.svc.Metrics == nil {
		return
	}
	c.svc.Metrics.RecordBatch(language, status, time.Since(started), words)
	c.svc.Metrics.UpdateCacheSize("l1", c.svc.Cache.Len())
	c.svc.Metrics.UpdateCacheSize("l2", c.svc.Cache.PersistedLen())
}

func (c *Coordinator) recordCostRejection(err error) {
	if c.svc.Metrics == nil {
		return
	}
	var breakerErr *costguard.BreakerOpenError
	if errors.As(err, &breakerErr) {
		c.svc.Metrics.RecordCostRejection("breaker")
		return
	}
	c.svc.Metrics.RecordCostRejection("limit")
}

func (c *Coordinator) recordUpstream(status string, err error, started time.Time) {
	if c.svc.Metrics == nil {
		return
	}
	attempts := 1
	var netErr *fetch.NetworkError
	if errors.As(err, &netErr) {
		attempts = netErr.Attempts
	}
	c.svc.Metrics.RecordUpstreamRequest(status, attempts, time.Since(started))
}

func (c *Coordinator) updateUsageGauges() {
	if c.svc.Metrics == nil {
		return
	}
	for _, usage := range c.svc.CostGuard.UsageAll() {
		c.svc.Metrics.UpdateCostUsage(string(usage.Period), usage.Cost)
	}
}

// normalizeWords lowercases, trims, and dedupes while preserving order.
func normalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, word := range words {
		w := strings.ToLower(strings.TrimSpace(word))
		if w == "" {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// flightKey is the batch signature: language plus the sorted miss subset.
func flightKey(language string, misses []string) string {
	sorted := append(misses[:0:0], misses...)
	sort.Strings(sorted)
	return language + "|" + strings.Join(sorted, "\x00")
}
