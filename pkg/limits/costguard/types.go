package costguard

import (
	"fmt"
	"strings"
	"time"
)

// Period identifies a usage accounting window.
type Period string

const (
	PeriodSecond Period = "second"
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
	PeriodMonth  Period = "month"
)

// Window returns the duration of the period. Months are accounted as
// 30 days.
func (p Period) Window() time.Duration {
	switch p {
	case PeriodSecond:
		return time.Second
	case PeriodMinute:
		return time.Minute
	case PeriodHour:
		return time.Hour
	case PeriodDay:
		return 24 * time.Hour
	case PeriodMonth:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Periods lists all accounting windows, shortest first.
var Periods = []Period{PeriodSecond, PeriodMinute, PeriodHour, PeriodDay, PeriodMonth}

// Limit contains the ceilings for one window. Zero values mean no limit.
type Limit struct {
	// Cost is the maximum accumulated cost in the window.
	Cost float64

	// Calls is the maximum number of calls in the window.
	Calls int
}

// Violation describes one window whose ceiling a request would cross.
type Violation struct {
	Period Period

	// Dimension is "cost" or "calls".
	Dimension string

	// Current is the usage already accumulated in the window.
	Current float64

	// Projected is the usage the request would bring the window to.
	Projected float64

	// Limit is the configured ceiling.
	Limit float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s %s %.4g/%.4g (projected %.4g)",
		v.Period, v.Dimension, v.Current, v.Limit, v.Projected)
}

// CostLimitError is returned when a request would cross one or more
// ceilings. All violated windows are reported, not just the first.
type CostLimitError struct {
	Resource   string
	Violations []Violation
}

func (e *CostLimitError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("cost limit exceeded for %s: %s", e.Resource, strings.Join(parts, "; "))
}

// BreakerOpenError is returned while the circuit breaker is open. Every
// request is rejected until Until, regardless of window headroom.
type BreakerOpenError struct {
	Reason string
	Until  time.Time
}

func (e *BreakerOpenError) Error() string {
	return fmt.Sprintf("circuit breaker open until %s: %s",
		e.Until.Format(time.RFC3339), e.Reason)
}
