// Package ratelimit implements a combined token-bucket and sliding-window
// limiter, used to throttle task submission bursts.
//
// Grounded on the teacher's resilience.RateLimiter (libs/go/core/resilience/ratelimiter.go):
// same lazy-refill token bucket plus hard per-window cap, generalized only
// by taking an injected metric.Meter instead of reaching for the global
// MeterProvider on every call.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Limiter is a token bucket with a secondary sliding-window hard cap.
type Limiter struct {
	mu           sync.Mutex
	capacity     int64
	fillRate     float64
	available    float64
	lastRefill   time.Time
	windowStart  time.Time
	windowDur    time.Duration
	windowCount  int64
	maxPerWindow int64

	windowDrops metric.Int64Counter
	tokenDrops  metric.Int64Counter
}

// New creates a Limiter with capacity tokens, refilling at fillRate
// tokens/second, additionally capped at maxPerWindow requests per windowDur.
// maxPerWindow <= 0 disables the window cap.
func New(capacity int64, fillRate float64, windowDur time.Duration, maxPerWindow int64, meter metric.Meter) *Limiter {
	windowDrops, _ := meter.Int64Counter("supervisor_ratelimiter_window_drops_total")
	tokenDrops, _ := meter.Int64Counter("supervisor_ratelimiter_token_drops_total")
	now := time.Now()
	return &Limiter{
		capacity:     capacity,
		fillRate:     fillRate,
		available:    float64(capacity),
		lastRefill:   now,
		windowStart:  now,
		windowDur:    windowDur,
		maxPerWindow: maxPerWindow,
		windowDrops:  windowDrops,
		tokenDrops:   tokenDrops,
	}
}

// Allow is shorthand for AllowN(1).
func (l *Limiter) Allow() bool { return l.AllowN(1) }

// AllowN reports whether n tokens can be consumed now, consuming them if so.
func (l *Limiter) AllowN(n int64) bool {
	if n <= 0 {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed > 0 {
		refill := elapsed * l.fillRate
		if refill > 0 {
			l.available = minFloat(float64(l.capacity), l.available+refill)
			l.lastRefill = now
		}
	}

	if now.Sub(l.windowStart) >= l.windowDur {
		l.windowStart = now
		l.windowCount = 0
	}

	if l.maxPerWindow > 0 && l.windowCount+n > l.maxPerWindow {
		l.windowDrops.Add(context.Background(), 1)
		return false
	}

	if float64(n) <= l.available {
		l.available -= float64(n)
		l.windowCount += n
		return true
	}
	l.tokenDrops.Add(context.Background(), 1)
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
