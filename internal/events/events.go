// Package events defines the Orchestrator's lifecycle event surface.
//
// Grounded on spec §9's re-architecture note: the teacher's loose callback
// graph (ad hoc closures sprinkled through dag_engine.go/cancellation.go)
// is replaced here with a typed aggregate interface, default-no-op so a
// caller only overrides what it cares about, matching the teacher's own
// preference for small interfaces over mandatory boilerplate (e.g.
// TaskExecutor, PluginExecutor).
package events

import (
	"log/slog"

	"github.com/swarmguard/supervisor/internal/task"
)

// Observer receives fire-and-forget lifecycle notifications from the
// Orchestrator. All methods must return promptly — per spec §5, slow
// observers degrade assignment latency unless the observer itself hands the
// work off the tick goroutine; this package dispatches synchronously.
type Observer interface {
	OnTaskAssigned(t task.Task, workerID string)
	OnTaskCompleted(r task.Result)
	OnTaskFailed(t task.Task, errMsg string)
	OnWorkerOnline(w task.Worker)
	OnWorkerOffline(w task.Worker)
}

// NopObserver implements Observer with no-op methods, so embedding it lets a
// caller override only the events it cares about.
type NopObserver struct{}

func (NopObserver) OnTaskAssigned(task.Task, string) {}
func (NopObserver) OnTaskCompleted(task.Result)      {}
func (NopObserver) OnTaskFailed(task.Task, string)   {}
func (NopObserver) OnWorkerOnline(task.Worker)       {}
func (NopObserver) OnWorkerOffline(task.Worker)      {}

// Multi fans a single event out to every observer in order. A panic from one
// observer is recovered and logged so it can never corrupt Orchestrator
// state (the ObserverException kind in the error taxonomy) or stop the rest
// of the fan-out.
type Multi struct {
	Observers []Observer
}

func (m Multi) OnTaskAssigned(t task.Task, workerID string) {
	for _, o := range m.Observers {
		safeCall(func() { o.OnTaskAssigned(t, workerID) })
	}
}

func (m Multi) OnTaskCompleted(r task.Result) {
	for _, o := range m.Observers {
		safeCall(func() { o.OnTaskCompleted(r) })
	}
}

func (m Multi) OnTaskFailed(t task.Task, errMsg string) {
	for _, o := range m.Observers {
		safeCall(func() { o.OnTaskFailed(t, errMsg) })
	}
}

func (m Multi) OnWorkerOnline(w task.Worker) {
	for _, o := range m.Observers {
		safeCall(func() { o.OnWorkerOnline(w) })
	}
}

func (m Multi) OnWorkerOffline(w task.Worker) {
	for _, o := range m.Observers {
		safeCall(func() { o.OnWorkerOffline(w) })
	}
}

func safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("observer panicked", "recovered", r)
		}
	}()
	fn()
}
