// Package task defines the Worker and Task data model shared by the
// registry, router, and orchestrator packages.
package task

import (
	"encoding/json"
	"sort"
	"time"
)

// WorkerStatus is the dynamic lifecycle state of a registered Worker.
type WorkerStatus string

const (
	WorkerOnline   WorkerStatus = "online"
	WorkerBusy     WorkerStatus = "busy"
	WorkerDegraded WorkerStatus = "degraded"
	WorkerOffline  WorkerStatus = "offline"
)

// Worker is the Registry's record for a single fleet member.
type Worker struct {
	ID           string              `json:"id"`
	Name         string              `json:"name,omitempty"`
	Endpoint     string              `json:"endpoint,omitempty"`
	Capabilities map[string]struct{} `json:"-"`
	MaxLoad      int                 `json:"max_load"`
	Metadata     map[string]string   `json:"metadata,omitempty"`

	Status        WorkerStatus `json:"status"`
	CurrentLoad   int          `json:"current_load"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// MarshalJSON renders Capabilities as a sorted string slice for wire
// compatibility with Descriptor/Heartbeat, instead of exposing the internal
// set representation.
func (w Worker) MarshalJSON() ([]byte, error) {
	type alias struct {
		ID            string            `json:"id"`
		Name          string            `json:"name,omitempty"`
		Endpoint      string            `json:"endpoint,omitempty"`
		Capabilities  []string          `json:"capabilities"`
		MaxLoad       int               `json:"max_load"`
		Metadata      map[string]string `json:"metadata,omitempty"`
		Status        WorkerStatus      `json:"status"`
		CurrentLoad   int               `json:"current_load"`
		LastHeartbeat time.Time         `json:"last_heartbeat"`
	}
	caps := make([]string, 0, len(w.Capabilities))
	for c := range w.Capabilities {
		caps = append(caps, c)
	}
	sort.Strings(caps)
	return json.Marshal(alias{
		ID:            w.ID,
		Name:          w.Name,
		Endpoint:      w.Endpoint,
		Capabilities:  caps,
		MaxLoad:       w.MaxLoad,
		Metadata:      w.Metadata,
		Status:        w.Status,
		CurrentLoad:   w.CurrentLoad,
		LastHeartbeat: w.LastHeartbeat,
	})
}

// Clone returns a deep-enough copy safe to hand to callers outside the Registry's lock.
func (w Worker) Clone() Worker {
	caps := make(map[string]struct{}, len(w.Capabilities))
	for c := range w.Capabilities {
		caps[c] = struct{}{}
	}
	var meta map[string]string
	if w.Metadata != nil {
		meta = make(map[string]string, len(w.Metadata))
		for k, v := range w.Metadata {
			meta[k] = v
		}
	}
	w.Capabilities = caps
	w.Metadata = meta
	return w
}

// HasCapability reports whether the Worker explicitly advertises cap, or
// advertises the wildcard (empty) capability set.
func (w Worker) HasCapability(cap string) bool {
	if len(w.Capabilities) == 0 {
		return true
	}
	_, ok := w.Capabilities[cap]
	return ok
}

// ExplicitlySupports reports whether the Worker lists cap by name — the
// wildcard set does not count. Used by the capability-match strategy.
func (w Worker) ExplicitlySupports(cap string) bool {
	_, ok := w.Capabilities[cap]
	return ok
}

// HasHeadroom reports whether the Worker can accept one more task.
func (w Worker) HasHeadroom() bool {
	return w.CurrentLoad < w.MaxLoad
}

// Priority orders pending tasks; lower rank runs first.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank returns the numeric ordering used by the pending queue (I4): lower
// sorts first. Unknown priorities sort as Normal.
func Rank(p Priority) int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Status is the dynamic lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAssigned  Status = "assigned"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Task is a unit of work submitted to the Supervisor.
type Task struct {
	ID string `json:"id"`

	Type       string   `json:"type"`
	Payload    any      `json:"payload,omitempty"`
	Priority   Priority `json:"priority"`
	TimeoutMs  int64    `json:"timeout_ms"`
	MaxRetries int      `json:"max_retries"`

	Status      Status    `json:"status"`
	Retries     int       `json:"retries"`
	AssignedTo  string    `json:"assigned_to,omitempty"`
	AssignedAt  time.Time `json:"assigned_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Result      any       `json:"result,omitempty"`
	Error       string    `json:"error,omitempty"`

	// seq records the order in which the task was submitted. The pending
	// queue keeps FIFO order within a priority level by insertion position
	// and does not read seq.
	seq uint64
}

// Seq returns the task's submission sequence number.
func (t Task) Seq() uint64 { return t.seq }

// WithSeq returns a copy of t stamped with the given insertion sequence.
func (t Task) WithSeq(seq uint64) Task {
	t.seq = seq
	return t
}

// Result is an immutable record of a Worker's outcome for a Task.
type Result struct {
	TaskID     string `json:"task_id"`
	WorkerID   string `json:"worker_id"`
	Success    bool   `json:"success"`
	Result     any    `json:"result,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Submission is the client-supplied portion of a new Task.
type Submission struct {
	Type       string   `json:"type"`
	Payload    any      `json:"payload,omitempty"`
	Priority   Priority `json:"priority,omitempty"`
	TimeoutMs  int64    `json:"timeout_ms,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty"`
}

// Descriptor is the client-supplied portion of a Worker registration.
type Descriptor struct {
	ID           string            `json:"id"`
	Name         string            `json:"name,omitempty"`
	Endpoint     string            `json:"endpoint,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	CurrentLoad  int               `json:"current_load,omitempty"`
	MaxLoad      int               `json:"max_load"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Heartbeat is the payload a Worker posts periodically.
type Heartbeat struct {
	ID           string       `json:"id,omitempty"`
	Status       WorkerStatus `json:"status,omitempty"`
	CurrentLoad  int          `json:"current_load"`
	MaxLoad      int          `json:"max_load,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
}
