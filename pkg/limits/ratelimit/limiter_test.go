package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"glotta-hq/hermes/pkg/storage"
)

func fixedClock(start time.Time) (func() time.Time, *time.Time) {
	now := start
	return func() time.Time { return now }, &now
}

func testCeilings() map[string]Ceilings {
	return map[string]Ceilings{
		"translate": {PerSecond: 5, PerMinute: 50, PerHour: 500, PerDay: 2000},
	}
}

// ============================================================================
// Check Tests
// ============================================================================

func TestCheckAllowsUnderCeiling(t *testing.T) {
	limiter := NewLimiter(testCeilings())

	for i := 0; i < 5; i++ {
		decision := limiter.Check("translate", "caller-1")
		if !decision.Allowed {
			t.Fatalf("Call %d should be allowed", i+1)
		}
	}
}

func TestCheckRejectsAtCeiling(t *testing.T) {
	clock, _ := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		if d := limiter.Check("translate", "caller-1"); !d.Allowed {
			t.Fatalf("Call %d should be allowed", i+1)
		}
	}

	decision := limiter.Check("translate", "caller-1")
	if decision.Allowed {
		t.Fatal("Sixth call in the same second should be rejected")
	}
	if decision.Period != PeriodSecond {
		t.Errorf("Expected second window to reject, got %s", decision.Period)
	}
	if decision.Limit != 5 {
		t.Errorf("Expected limit 5, got %d", decision.Limit)
	}
	if decision.RetryAfter <= 0 || decision.RetryAfter > time.Second {
		t.Errorf("Expected retry-after within one second, got %s", decision.RetryAfter)
	}
}

func TestAllowedDecisionReportsMostConstrainedWindow(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(map[string]Ceilings{
		"translate": {PerSecond: 10, PerMinute: 20},
	}, WithClock(clock))

	// With an empty history the second window is the tighter ratio
	// (9 of 10 left vs 19 of 20).
	decision := limiter.Check("translate", "caller-1")
	if !decision.Allowed {
		t.Fatal("First call should be allowed")
	}
	if decision.Period != PeriodSecond {
		t.Errorf("Expected second window to be most constrained, got %s", decision.Period)
	}
	if decision.Remaining != 9 {
		t.Errorf("Expected 9 remaining, got %d", decision.Remaining)
	}

	// Spacing calls two seconds apart keeps the second window nearly empty
	// while the minute window fills up.
	for i := 0; i < 15; i++ {
		*now = now.Add(2 * time.Second)
		if d := limiter.Check("translate", "caller-1"); !d.Allowed {
			t.Fatalf("Call %d should be allowed", i+2)
		}
	}

	*now = now.Add(2 * time.Second)
	decision = limiter.Check("translate", "caller-1")
	if !decision.Allowed {
		t.Fatal("17th call should still be under the minute ceiling")
	}
	if decision.Period != PeriodMinute {
		t.Errorf("Expected minute window to be most constrained, got %s", decision.Period)
	}
	if decision.Remaining != 3 {
		t.Errorf("Expected 3 remaining in the minute window, got %d", decision.Remaining)
	}
}

func TestCheckReportsTightestWindow(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	// Fill the minute ceiling while staying under the second ceiling.
	for i := 0; i < 50; i++ {
		if d := limiter.Check("translate", "caller-1"); !d.Allowed {
			t.Fatalf("Call %d should be allowed", i+1)
		}
		*now = now.Add(time.Second)
	}

	decision := limiter.Check("translate", "caller-1")
	if decision.Allowed {
		t.Fatal("51st call within the minute should be rejected")
	}
	if decision.Period != PeriodMinute {
		t.Errorf("Expected minute window to reject, got %s", decision.Period)
	}
	if decision.Limit != 50 {
		t.Errorf("Expected limit 50, got %d", decision.Limit)
	}
}

func TestRejectionRecordsNothing(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		limiter.Check("translate", "caller-1")
	}
	for i := 0; i < 10; i++ {
		if d := limiter.Check("translate", "caller-1"); d.Allowed {
			t.Fatal("Expected rejection")
		}
	}

	// Rejected attempts must not consume capacity once the window rolls.
	*now = now.Add(2 * time.Second)
	if d := limiter.Check("translate", "caller-1"); !d.Allowed {
		t.Error("Expected admission after window rolled")
	}
}

func TestWindowSlides(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		limiter.Check("translate", "caller-1")
	}
	if d := limiter.Check("translate", "caller-1"); d.Allowed {
		t.Fatal("Expected rejection at ceiling")
	}

	*now = now.Add(1100 * time.Millisecond)
	if d := limiter.Check("translate", "caller-1"); !d.Allowed {
		t.Error("Expected admission after the second window slid")
	}
}

func TestIdentifiersIsolated(t *testing.T) {
	clock, _ := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		limiter.Check("translate", "caller-1")
	}
	if d := limiter.Check("translate", "caller-1"); d.Allowed {
		t.Fatal("Expected caller-1 to be rejected")
	}
	if d := limiter.Check("translate", "caller-2"); !d.Allowed {
		t.Error("Expected caller-2 to be unaffected by caller-1's usage")
	}
}

func TestUnconfiguredResourceUnlimited(t *testing.T) {
	limiter := NewLimiter(testCeilings())

	for i := 0; i < 100; i++ {
		if d := limiter.Check("unknown", "caller-1"); !d.Allowed {
			t.Fatal("Unconfigured resources should never be limited")
		}
	}
}

// ============================================================================
// Allow and Rollback Tests
// ============================================================================

func TestAllowReturnsTypedError(t *testing.T) {
	clock, _ := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		if err := limiter.Allow("translate", "caller-1"); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	err := limiter.Allow("translate", "caller-1")
	var limitErr *LimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Expected LimitExceededError, got %v", err)
	}
	if limitErr.Resource != "translate" || limitErr.Identifier != "caller-1" {
		t.Errorf("Error should name resource and identifier: %v", limitErr)
	}
	if limitErr.Period != PeriodSecond {
		t.Errorf("Expected second window in error, got %s", limitErr.Period)
	}
}

func TestRollbackFreesSlot(t *testing.T) {
	clock, _ := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 5; i++ {
		limiter.Check("translate", "caller-1")
	}
	if d := limiter.Check("translate", "caller-1"); d.Allowed {
		t.Fatal("Expected rejection at ceiling")
	}

	limiter.Rollback("translate", "caller-1")
	if d := limiter.Check("translate", "caller-1"); !d.Allowed {
		t.Error("Expected admission after rollback freed a slot")
	}
}

func TestRollbackOnEmptyHistory(t *testing.T) {
	limiter := NewLimiter(testCeilings())

	// Must not panic or create state.
	limiter.Rollback("translate", "caller-1")
	limiter.Rollback("unknown", "caller-1")

	used, _ := limiter.Usage("translate", "caller-1", PeriodMinute)
	if used != 0 {
		t.Errorf("Expected no usage after rollback on empty history, got %d", used)
	}
}

// ============================================================================
// Usage and Sweep Tests
// ============================================================================

func TestUsage(t *testing.T) {
	clock, _ := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 3; i++ {
		limiter.Check("translate", "caller-1")
	}

	used, limit := limiter.Usage("translate", "caller-1", PeriodMinute)
	if used != 3 {
		t.Errorf("Expected 3 used, got %d", used)
	}
	if limit != 50 {
		t.Errorf("Expected limit 50, got %d", limit)
	}
}

func TestSweepDropsAgedTimestamps(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	for i := 0; i < 4; i++ {
		limiter.Check("translate", "caller-1")
	}

	*now = now.Add(25 * time.Hour)
	removed := limiter.Sweep()
	if removed != 4 {
		t.Errorf("Expected 4 timestamps swept, got %d", removed)
	}

	// History deleted entirely, fresh calls admitted.
	if d := limiter.Check("translate", "caller-1"); !d.Allowed {
		t.Error("Expected admission after sweep")
	}
}

func TestSweepKeepsRecentTimestamps(t *testing.T) {
	clock, now := fixedClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewLimiter(testCeilings(), WithClock(clock))

	limiter.Check("translate", "caller-1")
	*now = now.Add(25 * time.Hour)
	limiter.Check("translate", "caller-1")

	removed := limiter.Sweep()
	if removed != 1 {
		t.Errorf("Expected only the aged timestamp swept, got %d", removed)
	}
	used, _ := limiter.Usage("translate", "caller-1", PeriodDay)
	if used != 1 {
		t.Errorf("Expected 1 in-window call after sweep, got %d", used)
	}
}

// ============================================================================
// Snapshot Tests
// ============================================================================

func TestSnapshotRoundTripKeepsCharges(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	clock, _ := fixedClock(start)
	l1 := NewLimiter(map[string]Ceilings{
		"translate": {PerMinute: 3},
	}, WithClock(clock))

	for i := 0; i < 3; i++ {
		if d := l1.Check("translate", "caller-1"); !d.Allowed {
			t.Fatalf("Call %d should be allowed", i+1)
		}
	}
	if err := l1.FlushSnapshot(ctx, kv); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	clock2, _ := fixedClock(start.Add(10 * time.Second))
	l2 := NewLimiter(map[string]Ceilings{
		"translate": {PerMinute: 3},
	}, WithClock(clock2))
	if err := l2.LoadSnapshot(ctx, kv); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if d := l2.Check("translate", "caller-1"); d.Allowed {
		t.Error("Restored charges should still fill the minute window")
	}
}

func TestLoadSnapshotDropsAgedHistories(t *testing.T) {
	kv := storage.NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	clock, _ := fixedClock(start)
	l1 := NewLimiter(testCeilings(), WithClock(clock))
	l1.Check("translate", "caller-1")
	if err := l1.FlushSnapshot(ctx, kv); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	clock2, _ := fixedClock(start.Add(25 * time.Hour))
	l2 := NewLimiter(testCeilings(), WithClock(clock2))
	if err := l2.LoadSnapshot(ctx, kv); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if used, _ := l2.Usage("translate", "caller-1", PeriodDay); used != 0 {
		t.Errorf("Expected aged-out history to be dropped, got %d calls", used)
	}
}

func TestLoadSnapshotMissingIsNoop(t *testing.T) {
	l := NewLimiter(testCeilings())
	if err := l.LoadSnapshot(context.Background(), storage.NewMemoryStore()); err != nil {
		t.Errorf("Missing snapshot should not be an error: %v", err)
	}
}
