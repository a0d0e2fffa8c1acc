package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 4, Backoff: None()}

	err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	p := Policy{Attempts: 3, Backoff: None()}

	err := p.Do(context.Background(), func() error {
		calls++
		return errors.New("still broken")
	})
	if err == nil {
		t.Fatal("Expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	if err.Error() != "failed after 3 attempts: still broken" {
		t.Errorf("Unexpected error message: %v", err)
	}
}

func TestDoNonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	p := Policy{
		Attempts:  5,
		Backoff:   None(),
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}

	err := p.Do(context.Background(), func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestDoWrapsLastError(t *testing.T) {
	sentinel := errors.New("sentinel")
	p := Policy{Attempts: 2, Backoff: None()}

	err := p.Do(context.Background(), func() error { return sentinel })
	if !errors.Is(err, sentinel) {
		t.Errorf("Expected wrapped sentinel, got %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 10, Backoff: FixedSteps(time.Hour)}

	calls := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Do(ctx, func() error {
			calls++
			return errors.New("transient")
		})
	}()

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after cancellation")
	}
}

func TestFixedStepsClampsToLast(t *testing.T) {
	b := FixedSteps(2*time.Second, 4*time.Second, 8*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("FixedSteps(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLinearGrowsWithAttempt(t *testing.T) {
	b := Linear(30 * time.Second)

	for attempt := 1; attempt <= 3; attempt++ {
		want := time.Duration(attempt) * 30 * time.Second
		if got := b(attempt); got != want {
			t.Errorf("Linear(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestOnRetryReportsIncreasingDelays(t *testing.T) {
	var delays []time.Duration
	p := Policy{
		Attempts: 4,
		Backoff:  Linear(time.Millisecond),
		OnRetry: func(_ int, d time.Duration) {
			delays = append(delays, d)
		},
	}

	_ = p.Do(context.Background(), func() error { return errors.New("overloaded") })

	if len(delays) != 3 {
		t.Fatalf("Expected 3 retry notifications, got %d", len(delays))
	}
	for i := 1; i < len(delays); i++ {
		if delays[i] <= delays[i-1] {
			t.Errorf("Delays not increasing: %v", delays)
		}
	}
}
