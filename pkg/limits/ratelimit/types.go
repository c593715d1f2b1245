package ratelimit

import (
	"fmt"
	"time"
)

// Period identifies a rate limiting window.
type Period string

const (
	PeriodSecond Period = "second"
	PeriodMinute Period = "minute"
	PeriodHour   Period = "hour"
	PeriodDay    Period = "day"
)

// Window returns the duration of the period.
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
	default:
		return 0
	}
}

// checkOrder lists periods shortest first, the order limits are evaluated in.
var checkOrder = []Period{PeriodSecond, PeriodMinute, PeriodHour, PeriodDay}

// Ceilings contains the per-window call ceilings for a single resource.
// Zero values mean no limit for that window.
type Ceilings struct {
	PerSecond int
	PerMinute int
	PerHour   int
	PerDay    int
}

// limit returns the ceiling for the given period, or 0 if unlimited.
func (c Ceilings) limit(p Period) int {
	switch p {
	case PeriodSecond:
		return c.PerSecond
	case PeriodMinute:
		return c.PerMinute
	case PeriodHour:
		return c.PerHour
	case PeriodDay:
		return c.PerDay
	default:
		return 0
	}
}

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates if the call was admitted and recorded.
	Allowed bool

	// Period is the window that rejected the call, or the most constrained
	// window when the call was admitted. Empty when the resource has no
	// configured ceilings.
	Period Period

	// Limit is the ceiling of that window.
	Limit int

	// Remaining is how many calls remain in that window.
	Remaining int

	// RetryAfter is how long until a slot opens in the rejecting window.
	RetryAfter time.Duration
}

// LimitExceededError is returned when a check is rejected. It carries the
// tightest violated window so callers can surface a retry hint.
type LimitExceededError struct {
	Resource   string
	Identifier string
	Period     Period
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (%s): %d per %s, retry after %s",
		e.Resource, e.Identifier, e.Limit, e.Period, e.RetryAfter.Round(time.Millisecond))
}
