// Package retry provides the retry policy shared by every network-calling
// component of the pipeline.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backoff returns the delay to wait after the given attempt (1-based).
type Backoff func(attempt int) time.Duration

// FixedSteps returns a backoff that walks through the given delays,
// clamping to the last one when attempts exceed the list.
func FixedSteps(steps ...time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if len(steps) == 0 {
			return 0
		}
		if attempt > len(steps) {
			return steps[len(steps)-1]
		}
		if attempt < 1 {
			return steps[0]
		}
		return steps[attempt-1]
	}
}

// Linear returns a backoff of step multiplied by the attempt number.
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		return step * time.Duration(attempt)
	}
}

// None returns a zero backoff, useful in tests.
func None() Backoff {
	return func(int) time.Duration { return 0 }
}

// Policy describes how an operation is retried.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff computes the delay after a failed attempt.
	Backoff Backoff
	// Retryable reports whether an error is worth retrying.
	// A nil predicate retries every error.
	Retryable func(error) bool
	// OnRetry, if set, is called before each sleep with the upcoming
	// attempt number and the delay. Used for progress reporting.
	OnRetry func(nextAttempt int, delay time.Duration)
}

// Do runs op until it succeeds, a non-retryable error occurs, the attempt
// budget is exhausted, or ctx is cancelled.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}

		if attempt == attempts {
			break
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		slog.Warn("Attempt failed, retrying", "attempt", attempt, "of", attempts, "delay", delay, "error", lastErr)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
