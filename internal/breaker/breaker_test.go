package breaker

import (
	"testing"
	"time"
)

func newTestBreaker(cfg Config) (*Breaker, *fakeClock) {
	b := New(cfg)
	clock := &fakeClock{t: time.Unix(0, 0)}
	b.nowFn = clock.Now
	return b, clock
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreakerOpensOnFailureRate(t *testing.T) {
	cfg := Config{FailureThreshold: 0.5, MinimumRequests: 4, WindowMs: 60_000, CooldownMs: 1000, SuccessThreshold: 1}
	b, _ := newTestBreaker(cfg)

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure()
	if b.State() != Closed {
		t.Fatalf("expected still closed before minimum requests met")
	}
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected open once failure rate crosses threshold with minimum requests met, got %s", b.State())
	}
}

func TestBreakerStaysClosedBelowMinimumRequests(t *testing.T) {
	cfg := Config{FailureThreshold: 0.1, MinimumRequests: 10, WindowMs: 60_000, CooldownMs: 1000, SuccessThreshold: 1}
	b, _ := newTestBreaker(cfg)
	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	if b.State() != Closed {
		t.Fatalf("expected closed below minimum requests, got %s", b.State())
	}
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cfg := Config{FailureThreshold: 0.5, MinimumRequests: 1, WindowMs: 60_000, CooldownMs: 1000, SuccessThreshold: 1}
	b, clock := newTestBreaker(cfg)
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}
	if b.CanExecute() {
		t.Fatalf("expected CanExecute false during cooldown")
	}
	clock.Advance(1100 * time.Millisecond)
	if !b.CanExecute() {
		t.Fatalf("expected CanExecute true after cooldown elapses")
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected half_open after cooldown, got %s", b.State())
	}
}

func TestBreakerHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cfg := Config{FailureThreshold: 0.5, MinimumRequests: 1, WindowMs: 60_000, CooldownMs: 1000, SuccessThreshold: 2}
	b, clock := newTestBreaker(cfg)
	b.RecordFailure()
	clock.Advance(1100 * time.Millisecond)
	b.CanExecute()
	b.RecordSuccess()
	if b.State() != HalfOpen {
		t.Fatalf("expected still half_open after one success, got %s", b.State())
	}
	b.RecordSuccess()
	if b.State() != Closed {
		t.Fatalf("expected closed after success threshold met, got %s", b.State())
	}
}

func TestBreakerHalfOpenReopensOnFailure(t *testing.T) {
	cfg := Config{FailureThreshold: 0.5, MinimumRequests: 1, WindowMs: 60_000, CooldownMs: 1000, SuccessThreshold: 2}
	b, clock := newTestBreaker(cfg)
	b.RecordFailure()
	clock.Advance(1100 * time.Millisecond)
	b.CanExecute()
	b.RecordFailure()
	if b.State() != Open {
		t.Fatalf("expected immediate reopen on half-open failure, got %s", b.State())
	}
}

func TestBreakerPrunesOldSamples(t *testing.T) {
	cfg := Config{FailureThreshold: 0.5, MinimumRequests: 2, WindowMs: 1000, CooldownMs: 1000, SuccessThreshold: 1}
	b, clock := newTestBreaker(cfg)
	b.RecordFailure()
	b.RecordFailure()
	clock.Advance(2 * time.Second)
	stats := b.Stats()
	if stats.Total != 0 {
		t.Fatalf("expected stale samples pruned, got total=%d", stats.Total)
	}
}

func TestRegistryIsAvailable(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	if !reg.IsAvailable("w1") {
		t.Fatalf("expected fresh breaker to allow execution")
	}
	for i := 0; i < 20; i++ {
		reg.RecordFailure("w1")
	}
	if reg.IsAvailable("w1") {
		t.Fatalf("expected w1 breaker open after many failures")
	}
	if !reg.IsAvailable("w2") {
		t.Fatalf("expected w2 breaker unaffected by w1 failures")
	}
}
