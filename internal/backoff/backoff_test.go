package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCalculateDelayNoJitterDoubles(t *testing.T) {
	cfg := Config{BaseDelayMs: 100, MaxDelayMs: 10_000, Jitter: 0}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
	}
	for _, c := range cases {
		if got := cfg.CalculateDelay(c.attempt); got != c.want {
			t.Errorf("attempt %d: got %v, want %v", c.attempt, got, c.want)
		}
	}
}

func TestCalculateDelayCapsAtMax(t *testing.T) {
	cfg := Config{BaseDelayMs: 100, MaxDelayMs: 500, Jitter: 0}
	if got := cfg.CalculateDelay(10); got != 500*time.Millisecond {
		t.Errorf("got %v, want capped 500ms", got)
	}
}

func TestIteratorExhausts(t *testing.T) {
	cfg := Config{BaseDelayMs: 10, MaxDelayMs: 100, MaxAttempts: 2}
	it := NewIterator(cfg)
	if _, err := it.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := it.Next(); err != nil {
		t.Fatalf("second Next: %v", err)
	}
	if _, err := it.Next(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestIteratorReset(t *testing.T) {
	cfg := Config{BaseDelayMs: 10, MaxDelayMs: 100, MaxAttempts: 1}
	it := NewIterator(cfg)
	_, _ = it.Next()
	it.Reset()
	if it.Attempt() != 0 {
		t.Fatalf("expected attempt reset to 0, got %d", it.Attempt())
	}
	if _, err := it.Next(); err != nil {
		t.Fatalf("Next after reset: %v", err)
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	cfg := Config{BaseDelayMs: 1, MaxDelayMs: 5}
	calls := 0
	got, err := Retry(context.Background(), cfg, nil, func(ctx context.Context, attempt int) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("not yet")
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryNonRetriableStopsImmediately(t *testing.T) {
	cfg := Config{BaseDelayMs: 1, MaxDelayMs: 5}
	calls := 0
	sentinel := errors.New("fatal")
	_, err := Retry(context.Background(), cfg, nil, func(ctx context.Context, attempt int) (int, error) {
		calls++
		return 0, NonRetriable(sentinel)
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 call, got %d", calls)
	}
}

func TestRetryExhaustionReraisesLastError(t *testing.T) {
	cfg := Config{BaseDelayMs: 1, MaxDelayMs: 5, MaxAttempts: 2}
	attempts := 0
	var lastErr error
	_, err := Retry(context.Background(), cfg, nil, func(ctx context.Context, attempt int) (int, error) {
		attempts++
		lastErr = errors.New("fail " + time.Now().String())
		return 0, lastErr
	})
	if err != lastErr {
		t.Fatalf("expected the last error %v on exhaustion, got %v", lastErr, err)
	}
	if attempts != 3 {
		// MaxAttempts=2 allows 2 retries after the first attempt: 3 calls total.
		t.Fatalf("expected 3 calls, got %d", attempts)
	}
}

func TestRetryRespectsContextCancellation(t *testing.T) {
	cfg := Config{BaseDelayMs: 1000, MaxDelayMs: 1000}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, cfg, nil, func(ctx context.Context, attempt int) (int, error) {
		return 0, errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
