// Package queue implements the pending-task queue ordered by
// (priority, insertion order) per invariant I4.
//
// Not concurrency-safe by itself — by design. The cross-collection
// atomicity requirements in spec §5 (pending -> assigned -> results all
// transition under one critical section) are the Orchestrator's job; this
// type is a plain data structure it manipulates under its own lock, the
// same shape as the teacher's in-memory maps guarded by a single mutex
// (e.g. workflowStore, CancellationManager.activeExecutions).
package queue

import "github.com/swarmguard/supervisor/internal/task"

// Queue is a priority-ordered list of pending Tasks.
type Queue struct {
	items []task.Task
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Insert walks from the head until it finds the first entry whose priority
// rank is strictly greater than t's, and inserts before it — stable within
// a priority level (I4).
func (q *Queue) Insert(t task.Task) {
	rank := task.Rank(t.Priority)
	idx := 0
	for idx < len(q.items) && task.Rank(q.items[idx].Priority) <= rank {
		idx++
	}
	q.items = append(q.items, task.Task{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = t
}

// Remove deletes and returns the task with the given id, if present.
func (q *Queue) Remove(id string) (task.Task, bool) {
	for i, t := range q.items {
		if t.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return t, true
		}
	}
	return task.Task{}, false
}

// Get returns the task with the given id without removing it.
func (q *Queue) Get(id string) (task.Task, bool) {
	for _, t := range q.items {
		if t.ID == id {
			return t, true
		}
	}
	return task.Task{}, false
}

// Snapshot returns a copy of the queue in current order.
func (q *Queue) Snapshot() []task.Task {
	out := make([]task.Task, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.items)
}
