package costguard

import (
	"log/slog"
	"sync"
	"time"

	"glotta-hq/hermes/pkg/storage"
)

// Config contains configuration for a Guard.
type Config struct {
	// UnitCosts maps a resource name to the cost of one unit of work.
	// Resources absent from the map cost nothing.
	UnitCosts map[string]float64

	// Limits maps each accounting window to its ceilings. Windows absent
	// from the map are unlimited.
	Limits map[Period]Limit

	// BreakerTimeout is how long the circuit breaker stays open after a
	// ceiling violation trips it.
	BreakerTimeout time.Duration

	// WarnThreshold is the fraction of a ceiling at which recorded usage
	// logs a warning. Typically 0.8.
	WarnThreshold float64

	// SnapshotMaxAge bounds how old a persisted snapshot may be before
	// it is discarded on load.
	SnapshotMaxAge time.Duration
}

// usageWindow accumulates usage for one fixed window. When the window
// expires the whole struct is replaced rather than decayed.
type usageWindow struct {
	Cost    float64   `json:"cost"`
	Calls   int       `json:"calls"`
	ResetAt time.Time `json:"reset_at"`
}

// breakerState tracks the circuit breaker. Manual trips come from
// EmergencyStop and do not clear on daily rollover.
type breakerState struct {
	Open   bool      `json:"open"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
	Manual bool      `json:"manual"`
}

// Usage is a read-only snapshot of one window's accumulated usage.
type Usage struct {
	Period  Period
	Cost    float64
	Calls   int
	ResetAt time.Time
}

// Guard enforces cost ceilings and hosts the circuit breaker.
//
// # Thread Safety
//
// Guard is safe for concurrent use. Check and Record take the same lock,
// but they are separate calls: Check admits, Record charges after the
// work succeeded. Usage is only ever charged for work that happened.
type Guard struct {
	cfg    Config
	logger *slog.Logger
	clock  func() time.Time

	mu          sync.Mutex
	windows     map[Period]*usageWindow
	breaker     breakerState
	snapshotKV  storage.KeyValue
	lastPersist time.Time
}

// Option customizes a Guard.
type Option func(*Guard)

// WithLogger sets the logger used for threshold warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger.With("component", "costguard")
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(g *Guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// New creates a cost guard with empty windows.
func New(cfg Config, opts ...Option) *Guard {
	if cfg.WarnThreshold <= 0 || cfg.WarnThreshold > 1 {
		cfg.WarnThreshold = 0.8
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 5 * time.Minute
	}
	if cfg.SnapshotMaxAge <= 0 {
		cfg.SnapshotMaxAge = time.Hour
	}

	g := &Guard{
		cfg:     cfg,
		logger:  slog.Default().With("component", "costguard"),
		clock:   func() time.Time { return time.Now().UTC() },
		windows: make(map[Period]*usageWindow),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check reports whether one more call of units units fits under every
// configured ceiling. Units drive the projected cost; the call itself
// counts as one against the call ceilings regardless of batch size.
//
// While the breaker is open everything is rejected with a
// BreakerOpenError. A ceiling violation reports all violated windows in
// one CostLimitError and trips the breaker for the configured timeout.
// Check does not charge usage; call Record once the work succeeded.
func (g *Guard) Check(resource string, units int) error {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	if g.breaker.Open {
		return &BreakerOpenError{Reason: g.breaker.Reason, Until: g.breaker.Until}
	}

	cost := g.cfg.UnitCosts[resource] * float64(units)

	var violations []Violation
	for _, period := range Periods {
		limit, ok := g.cfg.Limits[period]
		if !ok {
			continue
		}
		w := g.windowLocked(period, now)

		if limit.Cost > 0 && w.Cost+cost > limit.Cost {
			violations = append(violations, Violation{
				Period:    period,
				Dimension: "cost",
				Current:   w.Cost,
				Projected: w.Cost + cost,
				Limit:     limit.Cost,
			})
		}
		if limit.Calls > 0 && w.Calls+1 > limit.Calls {
			violations = append(violations, Violation{
				Period:    period,
				Dimension: "calls",
				Current:   float64(w.Calls),
				Projected: float64(w.Calls + 1),
				Limit:     float64(limit.Calls),
			})
		}
	}

	if len(violations) > 0 {
		err := &CostLimitError{Resource: resource, Violations: violations}
		g.tripLocked(now, err.Error(), false)
		g.persistLocked(now)
		return err
	}
	return nil
}

// Record charges one completed call of units units across every window
// and logs a warning for any window past the warn threshold on either
// dimension. Units drive the cost; the call count goes up by one.
//
// Record never rejects. Work that already happened must be accounted for
// even if it pushes a window over its ceiling; the next Check will reject.
func (g *Guard) Record(resource string, units int) {
	now := g.clock()
	cost := g.cfg.UnitCosts[resource] * float64(units)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)

	for _, period := range Periods {
		w := g.windowLocked(period, now)
		w.Cost += cost
		w.Calls++

		limit, ok := g.cfg.Limits[period]
		if !ok {
			continue
		}
		if limit.Cost > 0 && w.Cost >= limit.Cost*g.cfg.WarnThreshold {
			g.logger.Warn("cost window approaching ceiling",
				"period", string(period),
				"cost", w.Cost,
				"limit", limit.Cost)
		}
		if limit.Calls > 0 && float64(w.Calls) >= float64(limit.Calls)*g.cfg.WarnThreshold {
			g.logger.Warn("call window approaching ceiling",
				"period", string(period),
				"calls", w.Calls,
				"limit", limit.Calls)
		}
	}

	g.persistLocked(now)
}

// EmergencyStop opens the breaker for 24 hours. Manual stops survive the
// daily rollover and can only end by timeout or Resume.
func (g *Guard) EmergencyStop(reason string) {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.breaker = breakerState{
		Open:   true,
		Until:  now.Add(24 * time.Hour),
		Reason: reason,
		Manual: true,
	}
	g.logger.Warn("emergency stop engaged", "reason", reason, "until", g.breaker.Until)
	g.persistLocked(now)
}

// Resume closes the breaker regardless of how it was opened.
func (g *Guard) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.breaker.Open {
		g.logger.Info("circuit breaker closed", "reason", g.breaker.Reason)
	}
	g.breaker = breakerState{}
}

// BreakerOpen reports whether the breaker currently rejects requests.
func (g *Guard) BreakerOpen() bool {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	return g.breaker.Open
}

// UsageFor returns the accumulated usage of one window.
func (g *Guard) UsageFor(period Period) Usage {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	w := g.windowLocked(period, now)
	return Usage{Period: period, Cost: w.Cost, Calls: w.Calls, ResetAt: w.ResetAt}
}

// UsageAll returns the accumulated usage of every window, shortest first.
func (g *Guard) UsageAll() []Usage {
	now := g.clock()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.rolloverLocked(now)
	usages := make([]Usage, 0, len(Periods))
	for _, period := range Periods {
		w := g.windowLocked(period, now)
		usages = append(usages, Usage{Period: period, Cost: w.Cost, Calls: w.Calls, ResetAt: w.ResetAt})
	}
	return usages
}

// tripLocked opens the breaker. Caller must hold the lock.
func (g *Guard) tripLocked(now time.Time, reason string, manual bool) {
	g.breaker = breakerState{
		Open:   true,
		Until:  now.Add(g.cfg.BreakerTimeout),
		Reason: reason,
		Manual: manual,
	}
	g.logger.Warn("circuit breaker tripped", "reason", reason, "until", g.breaker.Until)
}

// rolloverLocked replaces expired windows and ages out the breaker.
// A non-manual breaker also clears when the daily window rolls over, so
// a tripped guard recovers with the new day's fresh budget.
// Caller must hold the lock.
func (g *Guard) rolloverLocked(now time.Time) {
	for _, period := range Periods {
		w, ok := g.windows[period]
		if !ok {
			continue
		}
		if now.Before(w.ResetAt) {
			continue
		}
		g.windows[period] = newWindow(period, now)
		if period == PeriodDay && g.breaker.Open && !g.breaker.Manual {
			g.breaker = breakerState{}
		}
	}

	if g.breaker.Open && !now.Before(g.breaker.Until) {
		g.breaker = breakerState{}
	}
}

// windowLocked returns the live window for a period, creating it on first
// use. Caller must hold the lock and have run rolloverLocked.
func (g *Guard) windowLocked(period Period, now time.Time) *usageWindow {
	if w, ok := g.windows[period]; ok {
		return w
	}
	w := newWindow(period, now)
	g.windows[period] = w
	return w
}

// newWindow creates an empty window aligned to the period boundary.
func newWindow(period Period, now time.Time) *usageWindow {
	d := period.Window()
	return &usageWindow{ResetAt: now.Truncate(d).Add(d)}
}
