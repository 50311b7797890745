// Package registry is the Worker Registry: the authoritative table of
// Worker membership, liveness, and capability state.
//
// Grounded on the teacher's workflowStore/WorkflowStore pattern (a
// mutex-guarded map with a query surface), narrowed to the Worker record
// and liveness rules this spec defines.
package registry

import (
	"sync"
	"time"

	"github.com/swarmguard/supervisor/internal/task"
)

// Registry is the single source of truth for Worker membership.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]task.Worker
	// order preserves first-registration order; Go maps don't, and the
	// router's tie-breaking rules (round-robin, least-loaded) need a stable
	// iteration order to be well-defined.
	order []string
	nowFn func() time.Time
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{workers: make(map[string]task.Worker), nowFn: time.Now}
}

// Register inserts a new Worker, or — if id already exists — replaces its
// dynamic fields (status -> online, lastHeartbeat -> now) and merges the
// descriptor's static fields. Returns the stored record and whether it was
// newly created.
func (r *Registry) Register(d task.Descriptor) (task.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := make(map[string]struct{}, len(d.Capabilities))
	for _, c := range d.Capabilities {
		caps[c] = struct{}{}
	}

	existing, isUpdate := r.workers[d.ID]
	w := task.Worker{
		ID:            d.ID,
		Name:          d.Name,
		Endpoint:      d.Endpoint,
		Capabilities:  caps,
		MaxLoad:       d.MaxLoad,
		Metadata:      d.Metadata,
		Status:        task.WorkerOnline,
		CurrentLoad:   d.CurrentLoad,
		LastHeartbeat: r.nowFn(),
	}
	if isUpdate {
		// Replace dynamic fields per spec; merge descriptor fields over the
		// existing record rather than discarding unspecified ones.
		if d.Name == "" {
			w.Name = existing.Name
		}
		if d.Endpoint == "" {
			w.Endpoint = existing.Endpoint
		}
		if len(caps) == 0 {
			w.Capabilities = existing.Capabilities
		}
		if d.MaxLoad == 0 {
			w.MaxLoad = existing.MaxLoad
		}
		if d.Metadata == nil {
			w.Metadata = existing.Metadata
		}
	}

	if !isUpdate {
		r.order = append(r.order, d.ID)
	}
	r.workers[d.ID] = w
	return w.Clone(), !isUpdate
}

// Unregister removes id, reporting whether it existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.workers[id]
	delete(r.workers, id)
	if ok {
		for i, existing := range r.order {
			if existing == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	return ok
}

// Heartbeat applies a Worker-reported heartbeat payload. If id is unknown it
// is ignored, reporting found=false.
func (r *Registry) Heartbeat(hb task.Heartbeat) (task.Worker, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[hb.ID]
	if !ok {
		return task.Worker{}, false
	}

	if hb.Status != "" {
		w.Status = hb.Status
	}
	w.CurrentLoad = hb.CurrentLoad
	if hb.MaxLoad > 0 {
		w.MaxLoad = hb.MaxLoad
	}
	if hb.Capabilities != nil {
		caps := make(map[string]struct{}, len(hb.Capabilities))
		for _, c := range hb.Capabilities {
			caps[c] = struct{}{}
		}
		w.Capabilities = caps
	}
	w.LastHeartbeat = r.nowFn()

	r.workers[hb.ID] = w
	return w.Clone(), true
}

// CheckHealth flips any non-offline Worker whose last heartbeat is older than
// heartbeatInterval*missedThreshold to offline, returning the ones that just
// transitioned so callers can emit onWorkerOffline events.
func (r *Registry) CheckHealth(heartbeatInterval time.Duration, missedThreshold int) []task.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	threshold := heartbeatInterval * time.Duration(missedThreshold)
	now := r.nowFn()
	var justOffline []task.Worker
	for id, w := range r.workers {
		if w.Status == task.WorkerOffline {
			continue
		}
		if now.Sub(w.LastHeartbeat) > threshold {
			w.Status = task.WorkerOffline
			r.workers[id] = w
			justOffline = append(justOffline, w.Clone())
		}
	}
	return justOffline
}

// Get returns id's current record.
func (r *Registry) Get(id string) (task.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	if !ok {
		return task.Worker{}, false
	}
	return w.Clone(), true
}

// GetAll returns every registered Worker in first-registration order.
func (r *Registry) GetAll() []task.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Worker, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.workers[id].Clone())
	}
	return out
}

// GetByStatus returns every Worker currently in the given status, in
// first-registration order.
func (r *Registry) GetByStatus(status task.WorkerStatus) []task.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Worker, 0)
	for _, id := range r.order {
		w := r.workers[id]
		if w.Status == status {
			out = append(out, w.Clone())
		}
	}
	return out
}

// GetByCapability returns online Workers (busy is excluded) advertising cap
// explicitly or via the empty wildcard set, in first-registration order. The
// router does not use it; routing starts from GetAvailable.
func (r *Registry) GetByCapability(cap string) []task.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Worker, 0)
	for _, id := range r.order {
		w := r.workers[id]
		if w.Status != task.WorkerOnline {
			continue
		}
		if w.HasCapability(cap) {
			out = append(out, w.Clone())
		}
	}
	return out
}

// GetAvailable returns online-or-busy Workers with spare load headroom, in
// first-registration order (the order the router's round-robin and
// least-loaded tie-breaking rely on).
func (r *Registry) GetAvailable() []task.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]task.Worker, 0)
	for _, id := range r.order {
		w := r.workers[id]
		if (w.Status == task.WorkerOnline || w.Status == task.WorkerBusy) && w.HasHeadroom() {
			out = append(out, w.Clone())
		}
	}
	return out
}

// Stats summarizes Registry membership.
type Stats struct {
	ByStatus       map[task.WorkerStatus]int
	TotalMaxLoad   int
	TotalCurLoad   int
	Count          int
}

// Stats computes counts by status and load totals across all Workers.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Stats{ByStatus: make(map[task.WorkerStatus]int)}
	for _, w := range r.workers {
		s.ByStatus[w.Status]++
		s.TotalMaxLoad += w.MaxLoad
		s.TotalCurLoad += w.CurrentLoad
		s.Count++
	}
	return s
}

// SetLoad updates a Worker's currentLoad directly; used by the Orchestrator
// when assigning/completing tasks to keep the Registry's load view current
// between heartbeats.
func (r *Registry) SetLoad(id string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return
	}
	w.CurrentLoad += delta
	if w.CurrentLoad < 0 {
		w.CurrentLoad = 0
	}
	r.workers[id] = w
}
