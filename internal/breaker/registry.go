package breaker

import "sync"

// Registry lazily creates and owns one Breaker per identity (Worker id).
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*Breaker
}

// NewRegistry creates a Registry that constructs new breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

func (r *Registry) get(id string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	if !ok {
		b = New(r.cfg)
		r.breakers[id] = b
	}
	return b
}

// IsAvailable is shorthand for CanExecute on id's breaker.
func (r *Registry) IsAvailable(id string) bool {
	return r.get(id).CanExecute()
}

// RecordSuccess records a success for id.
func (r *Registry) RecordSuccess(id string) {
	r.get(id).RecordSuccess()
}

// RecordFailure records a failure for id.
func (r *Registry) RecordFailure(id string) {
	r.get(id).RecordFailure()
}

// GetAllStats returns a snapshot of every known breaker, keyed by id.
func (r *Registry) GetAllStats() map[string]Stats {
	r.mu.Lock()
	ids := make([]string, 0, len(r.breakers))
	breakers := make([]*Breaker, 0, len(r.breakers))
	for id, b := range r.breakers {
		ids = append(ids, id)
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make(map[string]Stats, len(ids))
	for i, id := range ids {
		out[id] = breakers[i].Stats()
	}
	return out
}

// GetOpenCircuits returns the ids of every breaker currently in Open state.
func (r *Registry) GetOpenCircuits() []string {
	all := r.GetAllStats()
	open := make([]string, 0)
	for id, s := range all {
		if s.State == Open {
			open = append(open, id)
		}
	}
	return open
}

// Reset forces id's breaker back to Closed, if it exists.
func (r *Registry) Reset(id string) {
	r.mu.Lock()
	b, ok := r.breakers[id]
	r.mu.Unlock()
	if ok {
		b.Reset()
	}
}

// ResetAll forces every known breaker back to Closed.
func (r *Registry) ResetAll() {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()
	for _, b := range breakers {
		b.Reset()
	}
}

// Remove deletes id's breaker entirely (called on Worker unregister).
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.breakers, id)
}
