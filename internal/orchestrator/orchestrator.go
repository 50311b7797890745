// Package orchestrator owns the pending queue, active-task table, and
// results table, and drives the assignment loop and timeout sweep.
//
// Grounded on the teacher's DAGEngine.executeDAG coordinator pattern (a
// worker-pool-fed ready queue with a single coordinator goroutine owning
// all state transitions) and Scheduler's ticker lifecycle
// (Start/Stop with a cron.Cron-equivalent background loop), narrowed to
// this spec's single-tick assignment-plus-timeout-sweep model instead of
// a DAG coordinator.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/supervisor/internal/breaker"
	"github.com/swarmguard/supervisor/internal/events"
	"github.com/swarmguard/supervisor/internal/health"
	"github.com/swarmguard/supervisor/internal/queue"
	"github.com/swarmguard/supervisor/internal/ratelimit"
	"github.com/swarmguard/supervisor/internal/registry"
	"github.com/swarmguard/supervisor/internal/router"
	"github.com/swarmguard/supervisor/internal/task"
)

// Config is the Orchestrator's configuration surface (spec §6).
type Config struct {
	RoutingStrategy           router.Strategy
	HeartbeatIntervalMs       int64
	MissedHeartbeatsThreshold int
	DefaultTaskTimeoutMs      int64
	DefaultMaxRetries         int
	MaxQueueSize              int

	// AssignTickInterval overrides the ~1s default assignment cadence; zero
	// means the spec default.
	AssignTickInterval time.Duration
}

// DefaultConfig matches spec §6's stated defaults.
func DefaultConfig() Config {
	return Config{
		RoutingStrategy:           router.LeastLoaded,
		HeartbeatIntervalMs:       30_000,
		MissedHeartbeatsThreshold: 3,
		DefaultTaskTimeoutMs:      60_000,
		DefaultMaxRetries:         2,
		MaxQueueSize:              1000,
		AssignTickInterval:        time.Second,
	}
}

// TaskStats summarizes task counts for the /status endpoint.
type TaskStats struct {
	Queued    int
	Active    int
	Completed int
	Failed    int
}

// Stats bundles Registry and task-lifecycle statistics.
type Stats struct {
	Workers registry.Stats
	Tasks   TaskStats
}

// Orchestrator drives task submission, assignment, retry, and failure.
type Orchestrator struct {
	cfg Config

	reg      *registry.Registry
	rt       *router.Router
	breakers *breaker.Registry
	health   *health.Registry
	observer events.Observer
	limiter  *ratelimit.Limiter

	// mu guards queue+active+results together: the cross-collection
	// atomicity requirements in I1-I3 mean a transition spanning two of
	// these tables must never be observable half-done.
	mu      sync.Mutex
	q       *queue.Queue
	active  map[string]task.Task
	done    map[string]task.Task
	results map[string]task.Result
	seq     uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	tracer trace.Tracer

	assignedCounter  metric.Int64Counter
	completedCounter metric.Int64Counter
	failedCounter    metric.Int64Counter
	retryCounter     metric.Int64Counter
	timeoutCounter   metric.Int64Counter
	queueFullCounter metric.Int64Counter
	queueDepthGauge  metric.Int64Gauge
}

// New constructs an Orchestrator. meter may be a no-op meter in tests.
func New(cfg Config, reg *registry.Registry, rt *router.Router, breakers *breaker.Registry, healthReg *health.Registry, observer events.Observer, meter metric.Meter) *Orchestrator {
	if observer == nil {
		observer = events.NopObserver{}
	}
	assigned, _ := meter.Int64Counter("supervisor_tasks_assigned_total")
	completed, _ := meter.Int64Counter("supervisor_tasks_completed_total")
	failed, _ := meter.Int64Counter("supervisor_tasks_failed_total")
	retried, _ := meter.Int64Counter("supervisor_tasks_retried_total")
	timedOut, _ := meter.Int64Counter("supervisor_tasks_timeout_total")
	queueFull, _ := meter.Int64Counter("supervisor_queue_full_total")
	queueDepth, _ := meter.Int64Gauge("supervisor_queue_depth")

	return &Orchestrator{
		cfg:              cfg,
		reg:              reg,
		rt:               rt,
		breakers:         breakers,
		health:           healthReg,
		observer:         observer,
		q:                queue.New(),
		active:           make(map[string]task.Task),
		done:             make(map[string]task.Task),
		results:          make(map[string]task.Result),
		stopCh:           make(chan struct{}),
		tracer:           otel.Tracer("supervisor-orchestrator"),
		assignedCounter:  assigned,
		completedCounter: completed,
		failedCounter:    failed,
		retryCounter:     retried,
		timeoutCounter:   timedOut,
		queueFullCounter: queueFull,
		queueDepthGauge:  queueDepth,
	}
}

// Start begins the periodic assignment tick (~1s) and the Registry's
// liveness sweep (at heartbeatInterval). Safe to call once.
func (o *Orchestrator) Start(ctx context.Context) {
	interval := o.cfg.AssignTickInterval
	if interval <= 0 {
		interval = time.Second
	}
	heartbeat := time.Duration(o.cfg.HeartbeatIntervalMs) * time.Millisecond
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}

	o.wg.Add(2)
	go o.runTicker(ctx, interval, o.assignmentTick)
	go o.runTicker(ctx, heartbeat, o.livenessTick)
}

// Stop halts the tickers. It does not drain the queue.
func (o *Orchestrator) Stop() {
	o.once.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

func (o *Orchestrator) runTicker(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer o.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

// SetRateLimiter installs an optional submission-rate limiter; nil disables
// rate limiting entirely (the default).
func (o *Orchestrator) SetRateLimiter(l *ratelimit.Limiter) {
	o.limiter = l
}

// SubmitTask validates and enqueues a new Task, returning ErrQueueFull if
// the pending queue is at capacity or ErrRateLimited if a configured rate
// limiter rejects the call. An empty Priority becomes normal, and a zero or
// negative TimeoutMs or MaxRetries takes the configured default.
func (o *Orchestrator) SubmitTask(s task.Submission) (task.Task, error) {
	if s.Type == "" {
		return task.Task{}, fmt.Errorf("%w: type is required", ErrValidation)
	}
	if o.limiter != nil && !o.limiter.Allow() {
		return task.Task{}, ErrRateLimited
	}
	priority := s.Priority
	if priority == "" {
		priority = task.PriorityNormal
	}
	timeoutMs := s.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = o.cfg.DefaultTaskTimeoutMs
	}
	maxRetries := s.MaxRetries
	if maxRetries <= 0 {
		maxRetries = o.cfg.DefaultMaxRetries
	}

	t := task.Task{
		ID:         uuid.NewString(),
		Type:       s.Type,
		Payload:    s.Payload,
		Priority:   priority,
		TimeoutMs:  timeoutMs,
		MaxRetries: maxRetries,
		Status:     task.StatusPending,
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.q.Len() >= o.cfg.MaxQueueSize {
		o.queueFullCounter.Add(context.Background(), 1)
		return task.Task{}, ErrQueueFull
	}
	o.seq++
	t = t.WithSeq(o.seq)
	o.q.Insert(t)
	o.queueDepthGauge.Record(context.Background(), int64(o.q.Len()))
	return t, nil
}

// ReportTaskResult applies a Worker's outcome for a task currently in the
// active table. If the task isn't active (already handled by a racing
// timeout, or unknown), the result is logged and dropped.
func (o *Orchestrator) ReportTaskResult(r task.Result) {
	ctx, span := o.tracer.Start(context.Background(), "orchestrator.report_result",
		trace.WithAttributes(attribute.String("task_id", r.TaskID), attribute.Bool("success", r.Success)))
	defer span.End()

	o.mu.Lock()
	t, ok := o.active[r.TaskID]
	if !ok {
		o.mu.Unlock()
		slog.Info("result for unknown/inactive task dropped", "task_id", r.TaskID)
		return
	}
	delete(o.active, r.TaskID)

	if o.breakers != nil {
		if r.Success {
			o.breakers.RecordSuccess(r.WorkerID)
		} else {
			o.breakers.RecordFailure(r.WorkerID)
		}
	}
	if o.health != nil {
		if r.Success {
			o.health.RecordSuccess(r.WorkerID, float64(r.DurationMs))
		} else {
			o.health.RecordFailure(r.WorkerID)
		}
	}
	o.reg.SetLoad(r.WorkerID, -1)

	if r.Success {
		t.Status = task.StatusCompleted
		t.CompletedAt = time.Now()
		t.Result = r.Result
		o.done[t.ID] = t
		o.results[t.ID] = r
		o.mu.Unlock()

		o.completedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", t.Type)))
		o.observer.OnTaskCompleted(r)
		return
	}

	// Failure path: retry or terminal fail, per I3.
	if t.Retries < t.MaxRetries {
		t.Retries++
		t.AssignedTo = ""
		t.AssignedAt = time.Time{}
		t.Status = task.StatusPending
		o.q.Insert(t)
		o.queueDepthGauge.Record(ctx, int64(o.q.Len()))
		o.mu.Unlock()

		o.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", t.Type)))
		return
	}

	t.Status = task.StatusFailed
	t.CompletedAt = time.Now()
	t.Error = r.Error
	o.done[t.ID] = t
	o.results[t.ID] = r
	o.mu.Unlock()

	o.failedCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", t.Type)))
	o.observer.OnTaskFailed(t, r.Error)
}

// assignmentTick runs the timeout sweep, then assigns eligible pending
// tasks to Workers. Both steps run under the same tick so I1-I3 hold
// across the whole pass.
func (o *Orchestrator) assignmentTick(ctx context.Context) {
	o.sweepTimeouts(ctx)
	o.assignPending(ctx)
}

// sweepTimeouts fails any active task whose deadline has passed, funnelling
// it through ReportTaskResult so retry policy applies uniformly (spec §4.6).
func (o *Orchestrator) sweepTimeouts(ctx context.Context) {
	now := time.Now()

	o.mu.Lock()
	var expired []task.Task
	for _, t := range o.active {
		deadline := time.Duration(t.TimeoutMs) * time.Millisecond
		if now.Sub(t.AssignedAt) > deadline {
			expired = append(expired, t)
		}
	}
	o.mu.Unlock()

	for _, t := range expired {
		o.timeoutCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", t.Type)))
		o.ReportTaskResult(task.Result{
			TaskID:     t.ID,
			WorkerID:   t.AssignedTo,
			Success:    false,
			Error:      "Task timed out",
			DurationMs: now.Sub(t.AssignedAt).Milliseconds(),
		})
	}
}

// assignPending snapshots pending tasks in queue order and asks the Router
// to pair each with an eligible Worker.
func (o *Orchestrator) assignPending(ctx context.Context) {
	o.mu.Lock()
	pending := o.q.Snapshot()
	o.mu.Unlock()

	breakerCheck := router.BreakerCheck(nil)
	if o.breakers != nil {
		breakerCheck = o.breakers.IsAvailable
	}

	for _, t := range pending {
		workerID, ok := o.rt.Route(t, o.reg, o.cfg.RoutingStrategy, breakerCheck)
		if !ok {
			continue
		}

		o.mu.Lock()
		// The task may have been removed (raced by a concurrent report) since
		// the snapshot; re-check before mutating.
		current, stillPending := o.q.Get(t.ID)
		if !stillPending {
			o.mu.Unlock()
			continue
		}
		o.q.Remove(t.ID)
		current.Status = task.StatusAssigned
		current.AssignedTo = workerID
		current.AssignedAt = time.Now()
		o.active[current.ID] = current
		o.queueDepthGauge.Record(ctx, int64(o.q.Len()))
		o.mu.Unlock()

		o.reg.SetLoad(workerID, 1)
		o.assignedCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("task_type", current.Type),
			attribute.String("worker_id", workerID),
		))
		o.observer.OnTaskAssigned(current, workerID)
	}
}

// livenessTick ages out Workers that have stopped heartbeating, emitting
// OnWorkerOffline for each one. Runs strictly before the assignment step
// within any given heartbeat interval isn't required here since it's driven
// by its own ticker; spec only requires the liveness check itself run
// before assignment logic observes its results, which holds because both
// mutate/read through the same Registry.
func (o *Orchestrator) livenessTick(ctx context.Context) {
	heartbeat := time.Duration(o.cfg.HeartbeatIntervalMs) * time.Millisecond
	justOffline := o.reg.CheckHealth(heartbeat, o.cfg.MissedHeartbeatsThreshold)
	for _, w := range justOffline {
		if o.health != nil {
			o.health.RecordDown(w.ID)
		}
		o.observer.OnWorkerOffline(w)
	}
	_ = ctx
}

// GetTask searches the active table, then the pending queue, then the table
// of completed and failed tasks.
func (o *Orchestrator) GetTask(id string) (task.Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if t, ok := o.active[id]; ok {
		return t, true
	}
	if t, ok := o.q.Get(id); ok {
		return t, true
	}
	if t, ok := o.done[id]; ok {
		return t, true
	}
	return task.Task{}, false
}

// GetTaskResult reads the results table.
func (o *Orchestrator) GetTaskResult(id string) (task.Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.results[id]
	return r, ok
}

// Stats returns a snapshot of Registry and task-lifecycle counts.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := TaskStats{Queued: o.q.Len(), Active: len(o.active)}
	for _, t := range o.done {
		switch t.Status {
		case task.StatusCompleted:
			s.Completed++
		case task.StatusFailed:
			s.Failed++
		}
	}
	return Stats{Workers: o.reg.Stats(), Tasks: s}
}
