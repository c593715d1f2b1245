package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy controls retry behavior for one class of upstream operation.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialDelay is the backoff before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration

	// BackoffFactor multiplies the delay after each retry.
	BackoffFactor float64

	// PerAttemptTimeout bounds each individual attempt. The caller's
	// context still bounds the operation as a whole.
	PerAttemptTimeout time.Duration

	// RetryableStatuses is the allow-list of HTTP statuses worth
	// retrying. Statuses outside the list fail immediately.
	RetryableStatuses []int

	// Logger, if set, logs each retry at debug level.
	Logger *slog.Logger
}

// StatusCoder is implemented by errors that carry an upstream HTTP
// status, letting the retry loop classify them against the allow-list.
type StatusCoder interface {
	HTTPStatus() int
}

// NetworkError is returned when every attempt at an operation failed.
type NetworkError struct {
	// Status is the HTTP status of the last attempt, or 0 if the last
	// failure never produced a response.
	Status int

	// Attempts is the total number of attempts made.
	Attempts int

	// Cause is the error from the last attempt.
	Cause error
}

func (e *NetworkError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream request failed after %d attempts (status %d): %v",
			e.Attempts, e.Status, e.Cause)
	}
	return fmt.Sprintf("upstream request failed after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the last attempt's status so a NetworkError can
// itself be classified by callers.
func (e *NetworkError) HTTPStatus() int {
	return e.Status
}

// Do runs the operation under the policy until it succeeds, exhausts its
// attempts, or hits a non-retryable failure.
//
// Each attempt gets its own timeout derived from ctx. Backoff between
// attempts is exponential with a 10% jitter so synchronized clients do
// not retry in lockstep.
//
// Both failure shapes return a *NetworkError wrapping the last attempt's
// error. A non-retryable status fails fast with Attempts set to however
// many attempts had run; exhaustion reports Attempts == MaxRetries+1.
// Cancellation of ctx returns ctx.Err() as-is.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	delays := newDelaySchedule(policy)
	attempts := policy.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			delay := delays.NextBackOff()
			if policy.Logger != nil {
				policy.Logger.Debug("retrying upstream request",
					"attempt", attempt,
					"max_attempts", attempts,
					"delay", delay)
			}
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := runAttempt(ctx, policy.PerAttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The caller gave up; their error, not the upstream's.
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if !retryable(err, policy.RetryableStatuses) {
			return zero, &NetworkError{
				Status:   statusOf(err),
				Attempts: attempt,
				Cause:    err,
			}
		}
	}

	return zero, &NetworkError{
		Status:   statusOf(lastErr),
		Attempts: attempts,
		Cause:    lastErr,
	}
}

// runAttempt executes one attempt under its own timeout.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

// retryable classifies an attempt failure. Errors carrying an HTTP status
// are retried only when the status is allow-listed; everything else (a
// transport error or a per-attempt timeout) is considered transient.
func retryable(err error, statuses []int) bool {
	var coder StatusCoder
	if errors.As(err, &coder) {
		status := coder.HTTPStatus()
		for _, s := range statuses {
			if s == status {
				return true
			}
		}
		return false
	}
	return true
}

// statusOf extracts the HTTP status from an error, or 0.
func statusOf(err error) int {
	var coder StatusCoder
	if errors.As(err, &coder) {
		return coder.HTTPStatus()
	}
	return 0
}

// newDelaySchedule builds the jittered exponential backoff generator.
func newDelaySchedule(policy Policy) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if policy.InitialDelay > 0 {
		b.InitialInterval = policy.InitialDelay
	}
	if policy.MaxDelay > 0 {
		b.MaxInterval = policy.MaxDelay
	}
	if policy.BackoffFactor > 0 {
		b.Multiplier = policy.BackoffFactor
	}
	b.RandomizationFactor = 0.1
	b.Reset()
	return b
}
