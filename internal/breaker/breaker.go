// Package breaker implements a per-identity, three-state circuit breaker
// with a sliding failure-rate window.
//
// Grounded on the teacher's resilience.CircuitBreaker (rolling window,
// closed/open/half-open FSM, Allow/RecordResult), narrowed to the exact
// contract spec'd here: failure rate evaluated over a time window of
// timestamped samples (pruned on every evaluation, not fixed buckets),
// a fixed (non-adaptive) threshold, and half-open closing on a success
// *count* rather than "all probes in flight succeeded".
package breaker

import (
	"sync"
	"time"
)

// State is the breaker's current FSM state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config parameterizes a single breaker.
type Config struct {
	FailureThreshold  float64       // fraction in (0,1]
	MinimumRequests   int
	WindowMs          int64
	CooldownMs        int64
	SuccessThreshold  int
}

// DefaultConfig mirrors common production defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 0.5,
		MinimumRequests:  10,
		WindowMs:         30_000,
		CooldownMs:       15_000,
		SuccessThreshold: 2,
	}
}

type sample struct {
	at      time.Time
	success bool
}

// Breaker isolates failures for a single identity (typically one Worker).
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	samples          []sample
	lastFailure      time.Time
	halfOpenSuccess  int
	nowFn            func() time.Time
}

// New constructs a closed Breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed, nowFn: time.Now}
}

// CanExecute reports whether a call is currently permitted, advancing the
// FSM from Open to HalfOpen when the cooldown has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		if b.nowFn().Sub(b.lastFailure) >= time.Duration(b.cfg.CooldownMs)*time.Millisecond {
			b.state = HalfOpen
			b.halfOpenSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	switch b.state {
	case HalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.cfg.SuccessThreshold {
			b.toClosed()
		}
	case Closed:
		b.samples = append(b.samples, sample{at: now, success: true})
		b.prune(now)
	case Open:
		// stray success after the window flipped us open; ignored until CanExecute admits a probe.
	}
}

// RecordFailure records a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.nowFn()
	b.lastFailure = now
	switch b.state {
	case HalfOpen:
		b.toOpen(now)
	case Closed:
		b.samples = append(b.samples, sample{at: now, success: false})
		b.prune(now)
		total, failures := len(b.samples), 0
		for _, s := range b.samples {
			if !s.success {
				failures++
			}
		}
		if total >= b.cfg.MinimumRequests && float64(failures)/float64(total) >= b.cfg.FailureThreshold {
			b.toOpen(now)
		}
	case Open:
		// already open; lastFailure already stamped above.
	}
}

// State returns the current FSM state without mutating it.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats is a snapshot of a breaker's window and state, for observability.
type Stats struct {
	State    State
	Total    int
	Failures int
}

// Stats returns a snapshot, pruning stale samples first.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(b.nowFn())
	failures := 0
	for _, s := range b.samples {
		if !s.success {
			failures++
		}
	}
	return Stats{State: b.state, Total: len(b.samples), Failures: failures}
}

// Reset forces the breaker back to Closed with an empty window.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toClosed()
}

func (b *Breaker) toOpen(now time.Time) {
	b.state = Open
	b.lastFailure = now
}

func (b *Breaker) toClosed() {
	b.state = Closed
	b.samples = nil
	b.halfOpenSuccess = 0
}

// prune drops samples older than the configured window. Must be called with mu held.
func (b *Breaker) prune(now time.Time) {
	if len(b.samples) == 0 {
		return
	}
	cutoff := now.Add(-time.Duration(b.cfg.WindowMs) * time.Millisecond)
	kept := b.samples[:0]
	for _, s := range b.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	b.samples = kept
}
