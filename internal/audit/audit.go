// Package audit is a write-only, append-only lifecycle event log backed by
// BoltDB.
//
// Grounded on the teacher's WorkflowStore (persistence.go): same
// bbolt.Open/bucket-per-kind shape, plus a write-latency histogram. The
// Supervisor's core queue/active/results tables stay purely in-memory per
// spec's non-goal on durable state; this store exists beside that core, not
// inside it, and is never consulted to reconstruct Orchestrator state — only
// appended to and, separately, read back by operators via Recent for
// post-hoc inspection.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/swarmguard/supervisor/internal/task"
)

var bucketEvents = []byte("events")

// Kind identifies the lifecycle event type recorded.
type Kind string

const (
	KindTaskAssigned  Kind = "task_assigned"
	KindTaskCompleted Kind = "task_completed"
	KindTaskFailed    Kind = "task_failed"
	KindWorkerOnline  Kind = "worker_online"
	KindWorkerOffline Kind = "worker_offline"
)

// Entry is one append-only record.
type Entry struct {
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
	TaskID    string    `json:"task_id,omitempty"`
	WorkerID  string    `json:"worker_id,omitempty"`
	TaskType  string    `json:"task_type,omitempty"`
	Success   bool      `json:"success,omitempty"`
	ErrMsg    string    `json:"error,omitempty"`
}

// Log is a bbolt-backed append-only sink. It implements events.Observer.
type Log struct {
	db *bbolt.DB

	writeLatency metric.Float64Histogram
	writeErrors  metric.Int64Counter

	nowFn func() time.Time
}

// Open creates or opens the audit database at path.
func Open(path string, meter metric.Meter) (*Log, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit bucket: %w", err)
	}

	writeLatency, _ := meter.Float64Histogram("supervisor_audit_write_ms")
	writeErrors, _ := meter.Int64Counter("supervisor_audit_write_errors_total")

	return &Log{db: db, writeLatency: writeLatency, writeErrors: writeErrors, nowFn: time.Now}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}

// append writes e under a monotonic key so bucket order equals write order.
func (l *Log) append(e Entry) {
	ctx := context.Background()
	start := l.nowFn()
	defer func() {
		l.writeLatency.Record(ctx, float64(l.nowFn().Sub(start).Milliseconds()),
			metric.WithAttributes(attribute.String("kind", string(e.Kind))))
	}()

	data, err := json.Marshal(e)
	if err != nil {
		l.writeErrors.Add(ctx, 1)
		return
	}

	err = l.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%020d", seq))
		return b.Put(key, data)
	})
	if err != nil {
		l.writeErrors.Add(ctx, 1)
	}
}

// Recent returns up to n most recently appended entries, newest first. This
// is the only read path, and it is operator-facing only — never consulted by
// the Orchestrator to resume state.
func (l *Log) Recent(n int) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketEvents)
		c := b.Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var e Entry
			if json.Unmarshal(v, &e) == nil {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// OnTaskAssigned implements events.Observer.
func (l *Log) OnTaskAssigned(t task.Task, workerID string) {
	l.append(Entry{Kind: KindTaskAssigned, At: l.nowFn(), TaskID: t.ID, TaskType: t.Type, WorkerID: workerID})
}

// OnTaskCompleted implements events.Observer.
func (l *Log) OnTaskCompleted(r task.Result) {
	l.append(Entry{Kind: KindTaskCompleted, At: l.nowFn(), TaskID: r.TaskID, WorkerID: r.WorkerID, Success: r.Success})
}

// OnTaskFailed implements events.Observer.
func (l *Log) OnTaskFailed(t task.Task, errMsg string) {
	l.append(Entry{Kind: KindTaskFailed, At: l.nowFn(), TaskID: t.ID, TaskType: t.Type, WorkerID: t.AssignedTo, ErrMsg: errMsg})
}

// OnWorkerOnline implements events.Observer.
func (l *Log) OnWorkerOnline(w task.Worker) {
	l.append(Entry{Kind: KindWorkerOnline, At: l.nowFn(), WorkerID: w.ID})
}

// OnWorkerOffline implements events.Observer.
func (l *Log) OnWorkerOffline(w task.Worker) {
	l.append(Entry{Kind: KindWorkerOffline, At: l.nowFn(), WorkerID: w.ID})
}
