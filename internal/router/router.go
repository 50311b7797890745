// Package router implements the pluggable Worker-selection strategies.
//
// The Router is a pure decision function over a Task and the Registry's
// current view, domain logic not grounded on any single teacher file —
// the strategy-plus-eligibility-filter shape is this spec's own, built in
// the teacher's general style (small constructor, exported Route method,
// internal mutex-guarded cursor state for round-robin).
package router

import (
	"math/rand"
	"sync"

	"github.com/swarmguard/supervisor/internal/registry"
	"github.com/swarmguard/supervisor/internal/task"
)

// Strategy selects which Worker-picking algorithm Route uses.
type Strategy string

const (
	RoundRobin      Strategy = "round-robin"
	LeastLoaded     Strategy = "least-loaded"
	CapabilityMatch Strategy = "capability-match"
	Random          Strategy = "random"
)

// BreakerCheck reports whether a Worker id is currently allowed to receive
// work. The Router itself never talks to the breaker package directly —
// per the spec's open question, wiring this in is the caller's choice; the
// Orchestrator passes breaker.Registry.IsAvailable here.
type BreakerCheck func(workerID string) bool

// Router selects a Worker for a Task given the current Registry state.
type Router struct {
	mu      sync.Mutex
	rrIndex int
	rng     *rand.Rand
}

// New creates a Router with its own random source.
func New() *Router {
	return &Router{rng: rand.New(rand.NewSource(1))}
}

// Route returns the selected Worker id, or false if no eligible Worker exists.
func (rt *Router) Route(t task.Task, reg *registry.Registry, strategy Strategy, breakerCheck BreakerCheck) (string, bool) {
	avail := reg.GetAvailable()
	if breakerCheck != nil {
		avail = filter(avail, func(w task.Worker) bool { return breakerCheck(w.ID) })
	}
	if len(avail) == 0 {
		return "", false
	}

	eligible := filter(avail, func(w task.Worker) bool { return w.HasCapability(t.Type) })
	if len(eligible) == 0 {
		// No capability match at all: spec falls back to the pre-filter pool
		// (tasks with no capability match are accepted by any available Worker).
		eligible = avail
	}

	switch strategy {
	case RoundRobin:
		idx := rt.nextRoundRobin(len(eligible))
		return eligible[idx].ID, true
	case CapabilityMatch:
		explicit := filter(eligible, func(w task.Worker) bool { return w.ExplicitlySupports(t.Type) })
		pool := explicit
		if len(pool) == 0 {
			pool = eligible
		}
		return leastLoaded(pool), true
	case Random:
		return eligible[rt.rng.Intn(len(eligible))].ID, true
	case LeastLoaded:
		fallthrough
	default:
		return leastLoaded(eligible), true
	}
}

func (rt *Router) nextRoundRobin(n int) int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	idx := rt.rrIndex % n
	rt.rrIndex++
	return idx
}

// leastLoaded returns the id with the smallest currentLoad/maxLoad ratio,
// ties broken by first-seen order (the slice's order, preserved by Registry).
func leastLoaded(workers []task.Worker) string {
	best := workers[0]
	bestRatio := loadRatio(best)
	for _, w := range workers[1:] {
		r := loadRatio(w)
		if r < bestRatio {
			bestRatio = r
			best = w
		}
	}
	return best.ID
}

func loadRatio(w task.Worker) float64 {
	if w.MaxLoad == 0 {
		return 0
	}
	return float64(w.CurrentLoad) / float64(w.MaxLoad)
}

func filter(in []task.Worker, keep func(task.Worker) bool) []task.Worker {
	out := make([]task.Worker, 0, len(in))
	for _, w := range in {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}
