package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"glotta-hq/hermes/pkg/cache"
	"glotta-hq/hermes/pkg/fetch"
	"glotta-hq/hermes/pkg/limits/costguard"
	"glotta-hq/hermes/pkg/limits/ratelimit"
	"glotta-hq/hermes/pkg/storage"
)

// fakeTranslator is a scriptable upstream for tests.
type fakeTranslator struct {
	mu      sync.Mutex
	calls   int32
	fail    error
	answers map[string]string
	block   chan struct{}
	gotReqs [][]string
}

func (f *fakeTranslator) Translate(ctx context.Context, words []string, language string) (map[string]string, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.gotReqs = append(f.gotReqs, append([]string(nil), words...))
	f.mu.Unlock()

	if f.block != nil {
		<-f.block
	}
	if f.fail != nil {
		return nil, f.fail
	}

	out := make(map[string]string)
	for _, w := range words {
		if v, ok := f.answers[w]; ok {
			out[w] = v
		}
	}
	return out, nil
}

func (f *fakeTranslator) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

type testDeps struct {
	coord    *Coordinator
	upstream *fakeTranslator
	limiter  *ratelimit.Limiter
	guard    *costguard.Guard
}

func newTestCoordinator(t *testing.T, ceilings ratelimit.Ceilings, limits map[costguard.Period]costguard.Limit) *testDeps {
	t.Helper()

	hierarchy, err := cache.New(context.Background(), cache.Config{
		L1Capacity: 100,
		L2Capacity: 200,
		DefaultTTL: time.Hour,
	}, storage.NewMemoryStore())
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}

	upstream := &fakeTranslator{
		answers: map[string]string{
			"hello": "hola",
			"cat":   "gato",
			"dog":   "perro",
		},
	}
	limiter := ratelimit.NewLimiter(map[string]ratelimit.Ceilings{
		ResourceTranslate: ceilings,
	})
	guard := costguard.New(costguard.Config{
		UnitCosts:      map[string]float64{ResourceTranslate: 0.01},
		Limits:         limits,
		BreakerTimeout: time.Minute,
	})

	coord, err := New(Services{
		Cache:       hierarchy,
		RateLimiter: limiter,
		CostGuard:   guard,
		Upstream:    upstream,
	}, fetch.Policy{
		MaxRetries:        1,
		InitialDelay:      time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		BackoffFactor:     2.0,
		RetryableStatuses: []int{500, 502, 503},
	})
	if err != nil {
		t.Fatalf("Failed to create coordinator: %v", err)
	}
	return &testDeps{coord: coord, upstream: upstream, limiter: limiter, guard: guard}
}

func openCeilings() ratelimit.Ceilings {
	return ratelimit.Ceilings{PerSecond: 100, PerMinute: 1000}
}

// ============================================================================
// Pipeline Tests
// ============================================================================

func TestBatchFetchesMissesAndCaches(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)
	ctx := context.Background()

	result, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words:    []string{"hello", "cat"},
		Language: "es",
		Caller:   "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if result.Results["hello"] != "hola" || result.Results["cat"] != "gato" {
		t.Errorf("Unexpected results: %v", result.Results)
	}
	if result.Fetched != 2 || result.CacheHits != 0 {
		t.Errorf("Expected 2 fetched, got %+v", result)
	}

	// Second batch is answered without touching the upstream.
	result, err = deps.coord.LookupBatch(ctx, BatchRequest{
		Words:    []string{"hello", "cat"},
		Language: "es",
		Caller:   "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if result.CacheHits != 2 || result.Fetched != 0 {
		t.Errorf("Expected full cache hit, got %+v", result)
	}
	if deps.upstream.callCount() != 1 {
		t.Errorf("Expected 1 upstream call, got %d", deps.upstream.callCount())
	}
}

func TestBatchMixedHitAndMiss(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)
	ctx := context.Background()

	if _, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	}); err != nil {
		t.Fatalf("Warm-up batch failed: %v", err)
	}

	result, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello", "dog"}, Language: "es", Caller: "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if result.CacheHits != 1 || result.Fetched != 1 {
		t.Errorf("Expected 1 hit and 1 fetch, got %+v", result)
	}

	// Only the miss subset reaches the upstream.
	last := deps.upstream.gotReqs[len(deps.upstream.gotReqs)-1]
	if len(last) != 1 || last[0] != "dog" {
		t.Errorf("Expected upstream to receive only the miss, got %v", last)
	}
}

func TestBatchNormalizesAndDedupes(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)

	result, err := deps.coord.LookupBatch(context.Background(), BatchRequest{
		Words:    []string{" Hello ", "hello", "HELLO", "", "cat"},
		Language: "es",
		Caller:   "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if len(result.Results) != 2 {
		t.Errorf("Expected 2 distinct words, got %v", result.Results)
	}
}

func TestBatchEmptyAfterNormalization(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)

	result, err := deps.coord.LookupBatch(context.Background(), BatchRequest{
		Words: []string{"", "   "}, Language: "es", Caller: "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if len(result.Results) != 0 || deps.upstream.callCount() != 0 {
		t.Error("Empty batch should resolve without upstream contact")
	}
}

func TestBatchPartialWhenUpstreamOmitsWords(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)

	result, err := deps.coord.LookupBatch(context.Background(), BatchRequest{
		Words: []string{"hello", "xyzzy"}, Language: "es", Caller: "caller-1",
	})
	if err != nil {
		t.Fatalf("LookupBatch failed: %v", err)
	}
	if result.Results["hello"] != "hola" {
		t.Errorf("Expected resolved word, got %v", result.Results)
	}
	if len(result.Missing) != 1 || result.Missing[0] != "xyzzy" {
		t.Errorf("Expected 'xyzzy' missing, got %v", result.Missing)
	}
	if result.Err != nil {
		t.Errorf("Partial resolution is not an error: %v", result.Err)
	}
}

// ============================================================================
// Admission Tests
// ============================================================================

func TestRateRejectionKeepsCachedPortion(t *testing.T) {
	deps := newTestCoordinator(t, ratelimit.Ceilings{PerSecond: 1}, nil)
	ctx := context.Background()

	if _, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	}); err != nil {
		t.Fatalf("Warm-up batch failed: %v", err)
	}

	// Cached word plus a new miss; the rate slot is spent, so the miss
	// subset is rejected but the cached word still comes back.
	result, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello", "dog"}, Language: "es", Caller: "caller-1",
	})
	var limitErr *ratelimit.LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Expected LimitExceededError, got %v", err)
	}
	if result.Results["hello"] != "hola" {
		t.Error("Cached portion should survive a rate rejection")
	}
	if len(result.Missing) != 1 || result.Missing[0] != "dog" {
		t.Errorf("Expected 'dog' in the rejected miss subset, got %v", result.Missing)
	}
	if deps.upstream.callCount() != 1 {
		t.Errorf("Rejected subset must not reach the upstream, got %d calls", deps.upstream.callCount())
	}
}

func TestCostRejectionChecksBeforeRateCharge(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), map[costguard.Period]costguard.Limit{
		costguard.PeriodMinute: {Cost: 0.01},
	})
	ctx := context.Background()

	result, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello", "cat"}, Language: "es", Caller: "caller-1",
	})
	var costErr *costguard.CostLimitError
	if !errors.As(err, &costErr) {
		t.Fatalf("Expected CostLimitError, got %v", err)
	}
	if len(result.Missing) != 2 {
		t.Errorf("Whole miss subset should be rejected, got %v", result.Missing)
	}

	// The rejection must not have consumed a rate slot.
	used, _ := deps.limiter.Usage(ResourceTranslate, "caller-1", ratelimit.PeriodMinute)
	if used != 0 {
		t.Errorf("Cost rejection should not charge the rate limiter, got %d", used)
	}
}

func TestBreakerRejectsBatches(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)
	deps.guard.EmergencyStop("test")

	_, err := deps.coord.LookupBatch(context.Background(), BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	})
	var breakerErr *costguard.BreakerOpenError
	if !errors.As(err, &breakerErr) {
		t.Fatalf("Expected BreakerOpenError, got %v", err)
	}
	if deps.upstream.callCount() != 0 {
		t.Error("Breaker-rejected batch must not reach the upstream")
	}
}

// ============================================================================
// Failure and Rollback Tests
// ============================================================================

func TestUpstreamFailureRollsBackRateCharge(t *testing.T) {
	deps := newTestCoordinator(t, ratelimit.Ceilings{PerSecond: 1}, nil)
	deps.upstream.fail = errors.New("connection refused")
	ctx := context.Background()

	result, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	})
	var netErr *fetch.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	if len(result.Missing) != 1 {
		t.Errorf("Failed miss subset should be reported missing, got %v", result.Missing)
	}

	// The rollback freed the only per-second slot, so recovery succeeds
	// immediately instead of waiting out the window.
	deps.upstream.fail = nil
	if _, err := deps.coord.LookupBatch(ctx, BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	}); err != nil {
		t.Errorf("Expected retry to be admitted after rollback: %v", err)
	}
}

func TestUpstreamFailureRecordsNoUsage(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)
	deps.upstream.fail = errors.New("connection refused")

	deps.coord.LookupBatch(context.Background(), BatchRequest{
		Words: []string{"hello"}, Language: "es", Caller: "caller-1",
	})

	if usage := deps.guard.UsageFor(costguard.PeriodMinute); usage.Calls != 0 {
		t.Errorf("Failed fetch must not charge cost usage, got %d calls", usage.Calls)
	}
}

// ============================================================================
// Deduplication Tests
// ============================================================================

func TestConcurrentIdenticalBatchesShareOneFetch(t *testing.T) {
	deps := newTestCoordinator(t, openCeilings(), nil)
	deps.upstream.block = make(chan struct{})
	ctx := context.Background()

	const waiters = 5
	var wg sync.WaitGroup
	results := make([]*BatchResult, waiters)
	errs := make([]error, waiters)

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = deps.coord.LookupBatch(ctx, BatchRequest{
				Words: []string{"hello", "cat"}, Language: "es", Caller: "caller-1",
			})
		}(i)
	}

	// Let all goroutines reach the flight before releasing the upstream.
	time.Sleep(50 * time.Millisecond)
	close(deps.upstream.block)
	wg.Wait()

	for i := 0; i < waiters; i++ {
		if errs[i] != nil {
			t.Fatalf("Batch %d failed: %v", i, errs[i])
		}
		if results[i].Results["hello"] != "hola" {
			t.Errorf("Batch %d got wrong results: %v", i, results[i].Results)
		}
	}
	if deps.upstream.callCount() != 1 {
		t.Errorf("Expected concurrent identical batches to share 1 upstream call, got %d",
			deps.upstream.callCount())
	}
	if usage := deps.guard.UsageFor(costguard.PeriodHour); usage.Calls != 1 {
		t.Errorf("Shared fetch should charge one upstream call, got %d", usage.Calls)
	}
}
