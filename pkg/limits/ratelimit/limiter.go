package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces per-resource, per-identifier call ceilings across
// multiple sliding windows.
//
// Every admitted call appends a timestamp to the (resource, identifier)
// history. A check counts in-window timestamps against each configured
// ceiling; all windows must have room or the call is rejected. Resources
// without configured ceilings are unlimited.
//
// # Thread Safety
//
// Limiter is safe for concurrent use. Check-and-record is atomic, so two
// concurrent callers cannot both be admitted into the last slot of a
// window.
type Limiter struct {
	resources map[string]Ceilings

	mu        sync.Mutex
	histories map[string][]time.Time

	clock func() time.Time
}

// LimiterOption customizes a Limiter.
type LimiterOption func(*Limiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) LimiterOption {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// NewLimiter creates a rate limiter for the given resource ceilings.
//
// Example:
//
//	limiter := NewLimiter(map[string]Ceilings{
//	    "translate": {PerSecond: 5, PerMinute: 50, PerHour: 500, PerDay: 2000},
//	})
func NewLimiter(resources map[string]Ceilings, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		resources: resources,
		histories: make(map[string][]time.Time),
		clock:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check admits and records one call for the (resource, identifier) pair,
// or rejects it if any configured window is at its ceiling.
//
// Windows are checked shortest first, so the returned Decision names the
// tightest violated window. On rejection nothing is recorded. On admission
// the Decision reports the most constrained window, the one with the
// smallest remaining share of its ceiling after this call is counted.
func (l *Limiter) Check(resource, identifier string) *Decision {
	ceilings, ok := l.resources[resource]
	if !ok {
		return &Decision{Allowed: true}
	}

	now := l.clock()
	key := historyKey(resource, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.pruneLocked(key, now)

	decision := &Decision{Allowed: true}
	for _, period := range checkOrder {
		limit := ceilings.limit(period)
		if limit <= 0 {
			continue
		}

		window := period.Window()
		count, oldest := countInWindow(history, now, window)
		if count >= limit {
			return &Decision{
				Allowed:    false,
				Period:     period,
				Limit:      limit,
				Remaining:  0,
				RetryAfter: retryAfter(oldest, now, window),
			}
		}

		remaining := limit - count - 1
		if decision.Limit == 0 || remaining*decision.Limit < decision.Remaining*limit {
			decision.Period = period
			decision.Limit = limit
			decision.Remaining = remaining
		}
	}

	l.histories[key] = append(history, now)
	return decision
}

// Allow is like Check but folds a rejection into a *LimitExceededError.
func (l *Limiter) Allow(resource, identifier string) error {
	decision := l.Check(resource, identifier)
	if decision.Allowed {
		return nil
	}
	return &LimitExceededError{
		Resource:   resource,
		Identifier: identifier,
		Period:     decision.Period,
		Limit:      decision.Limit,
		RetryAfter: decision.RetryAfter,
	}
}

// Rollback removes the newest recorded call for the (resource, identifier)
// pair. Called when an admitted call fails upstream so the caller is not
// charged for work that produced nothing.
func (l *Limiter) Rollback(resource, identifier string) {
	key := historyKey(resource, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.histories[key]
	if len(history) == 0 {
		return
	}
	l.histories[key] = history[:len(history)-1]
}

// Usage returns the number of in-window calls and the ceiling for the
// given period. A zero limit means the window is unconfigured.
func (l *Limiter) Usage(resource, identifier string, period Period) (used, limit int) {
	ceilings, ok := l.resources[resource]
	if !ok {
		return 0, 0
	}

	now := l.clock()
	key := historyKey(resource, identifier)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.pruneLocked(key, now)
	count, _ := countInWindow(history, now, period.Window())
	return count, ceilings.limit(period)
}

// Sweep drops timestamps older than the longest window and deletes empty
// histories. Returns the number of timestamps removed.
func (l *Limiter) Sweep() int {
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, history := range l.histories {
		kept := l.pruneHistory(history, now)
		removed += len(history) - len(kept)
		if len(kept) == 0 {
			delete(l.histories, key)
		} else {
			l.histories[key] = kept
		}
	}
	return removed
}

// pruneLocked trims the history for key in place and returns the kept
// slice. Caller must hold the lock.
func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	kept := l.pruneHistory(l.histories[key], now)
	l.histories[key] = kept
	return kept
}

// pruneHistory returns the suffix of timestamps still inside the longest
// window. Histories are append-only, so a binary scan is unnecessary.
func (l *Limiter) pruneHistory(history []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-PeriodDay.Window())
	i := 0
	for i < len(history) && !history[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return history
	}
	return append(history[:0:0], history[i:]...)
}

// countInWindow counts timestamps newer than now-window and returns the
// oldest of them.
func countInWindow(history []time.Time, now time.Time, window time.Duration) (int, time.Time) {
	cutoff := now.Add(-window)
	for i, ts := range history {
		if ts.After(cutoff) {
			return len(history) - i, ts
		}
	}
	return 0, time.Time{}
}

// retryAfter computes how long until the oldest in-window timestamp ages
// out of the window.
func retryAfter(oldest, now time.Time, window time.Duration) time.Duration {
	if oldest.IsZero() {
		return 0
	}
	wait := oldest.Add(window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func historyKey(resource, identifier string) string {
	return resource + "\x00" + identifier
}
