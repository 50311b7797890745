package orchestrator

import (
	"context"
	"testing"
	"time"

	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/supervisor/internal/breaker"
	"github.com/swarmguard/supervisor/internal/events"
	"github.com/swarmguard/supervisor/internal/health"
	"github.com/swarmguard/supervisor/internal/ratelimit"
	"github.com/swarmguard/supervisor/internal/registry"
	"github.com/swarmguard/supervisor/internal/router"
	"github.com/swarmguard/supervisor/internal/task"
)

func testMeter() noopmetric.MeterProvider {
	return noopmetric.MeterProvider{}
}

func newTestOrchestrator(t *testing.T, cfg Config, observer events.Observer) (*Orchestrator, *registry.Registry, *breaker.Registry) {
	t.Helper()
	reg := registry.New()
	rt := router.New()
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	healthReg := health.NewRegistry(health.DefaultConfig())
	o := New(cfg, reg, rt, breakers, healthReg, observer, testMeter().Meter("test"))
	return o, reg, breakers
}

func TestSubmitTaskThenAssignHappyPath(t *testing.T) {
	cfg := DefaultConfig()
	o, reg, _ := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})

	tk, err := o.SubmitTask(task.Submission{Type: "render"})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if tk.Status != task.StatusPending {
		t.Fatalf("expected pending status, got %s", tk.Status)
	}

	o.assignmentTick(context.Background())

	active, ok := o.GetTask(tk.ID)
	if !ok || active.Status != task.StatusAssigned || active.AssignedTo != "w1" {
		t.Fatalf("expected task assigned to w1, got %+v ok=%v", active, ok)
	}

	o.ReportTaskResult(task.Result{TaskID: tk.ID, WorkerID: "w1", Success: true, Result: "done"})
	res, ok := o.GetTaskResult(tk.ID)
	if !ok || !res.Success {
		t.Fatalf("expected successful result recorded, got %+v ok=%v", res, ok)
	}
	done, _ := o.GetTask(tk.ID)
	if done.Status != task.StatusCompleted {
		t.Fatalf("expected completed status, got %s", done.Status)
	}
}

func TestReportTaskResultRetriesThenFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMaxRetries = 1
	o, reg, _ := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})

	tk, _ := o.SubmitTask(task.Submission{Type: "job", MaxRetries: 1})
	o.assignmentTick(context.Background())

	o.ReportTaskResult(task.Result{TaskID: tk.ID, WorkerID: "w1", Success: false, Error: "boom"})
	requeued, ok := o.GetTask(tk.ID)
	if !ok || requeued.Status != task.StatusPending || requeued.Retries != 1 {
		t.Fatalf("expected task requeued with retries=1, got %+v ok=%v", requeued, ok)
	}

	o.assignmentTick(context.Background())
	o.ReportTaskResult(task.Result{TaskID: tk.ID, WorkerID: "w1", Success: false, Error: "boom again"})

	final, ok := o.GetTask(tk.ID)
	if !ok || final.Status != task.StatusFailed {
		t.Fatalf("expected terminal failure after retries exhausted, got %+v ok=%v", final, ok)
	}
}

func TestSubmitTaskEnforcesQueueBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxQueueSize = 1
	o, _, _ := newTestOrchestrator(t, cfg, nil)

	if _, err := o.SubmitTask(task.Submission{Type: "a"}); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if _, err := o.SubmitTask(task.Submission{Type: "b"}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestSubmitTaskRejectsEmptyType(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig(), nil)
	if _, err := o.SubmitTask(task.Submission{}); err == nil {
		t.Fatalf("expected validation error for empty type")
	}
}

func TestAssignmentRespectsPriorityOrder(t *testing.T) {
	cfg := DefaultConfig()
	o, reg, _ := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})

	low, _ := o.SubmitTask(task.Submission{Type: "x", Priority: task.PriorityLow})
	crit, _ := o.SubmitTask(task.Submission{Type: "x", Priority: task.PriorityCritical})
	_ = low

	o.assignmentTick(context.Background())

	assignedCrit, _ := o.GetTask(crit.ID)
	if assignedCrit.Status != task.StatusAssigned {
		t.Fatalf("expected critical task assigned first, got %+v", assignedCrit)
	}
	stillPendingLow, _ := o.GetTask(low.ID)
	if stillPendingLow.Status != task.StatusPending {
		t.Fatalf("expected low priority task to remain pending behind critical, got %+v", stillPendingLow)
	}
}

func TestAssignmentFallsBackWithoutCapabilityMatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RoutingStrategy = router.CapabilityMatch
	o, reg, _ := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1, Capabilities: []string{"cpu"}})

	tk, _ := o.SubmitTask(task.Submission{Type: "gpu-job"})
	o.assignmentTick(context.Background())

	assigned, _ := o.GetTask(tk.ID)
	if assigned.Status != task.StatusAssigned || assigned.AssignedTo != "w1" {
		t.Fatalf("expected fallback assignment to w1, got %+v", assigned)
	}
}

func TestSweepTimeoutsFailsExpiredActiveTasks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMaxRetries = 0
	o, reg, _ := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})

	tk, _ := o.SubmitTask(task.Submission{Type: "slow", TimeoutMs: 1, MaxRetries: 0})
	o.assignmentTick(context.Background())

	time.Sleep(5 * time.Millisecond)
	o.sweepTimeouts(context.Background())

	final, ok := o.GetTask(tk.ID)
	if !ok || final.Status != task.StatusFailed {
		t.Fatalf("expected task timed out to terminal failure, got %+v ok=%v", final, ok)
	}
}

func TestReportResultForUnknownTaskIsDropped(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig(), nil)
	// Should not panic, and should not create a phantom result.
	o.ReportTaskResult(task.Result{TaskID: "ghost", WorkerID: "w1", Success: true})
	if _, ok := o.GetTaskResult("ghost"); ok {
		t.Fatalf("expected no result recorded for unknown task")
	}
}

func TestBreakerOpenExcludesWorkerFromRouting(t *testing.T) {
	cfg := DefaultConfig()
	o, reg, breakers := newTestOrchestrator(t, cfg, nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})
	reg.Register(task.Descriptor{ID: "w2", MaxLoad: 1})

	for i := 0; i < 20; i++ {
		breakers.RecordFailure("w1")
	}

	tk, _ := o.SubmitTask(task.Submission{Type: "x"})
	o.assignmentTick(context.Background())

	assigned, _ := o.GetTask(tk.ID)
	if assigned.AssignedTo != "w2" {
		t.Fatalf("expected task routed away from open-circuit w1, got %+v", assigned)
	}
}

func TestSubmitTaskRejectsOverRateLimit(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, DefaultConfig(), nil)
	o.SetRateLimiter(ratelimit.New(1, 0, time.Minute, 0, testMeter().Meter("test")))

	if _, err := o.SubmitTask(task.Submission{Type: "a"}); err != nil {
		t.Fatalf("first submit should pass rate limiter: %v", err)
	}
	if _, err := o.SubmitTask(task.Submission{Type: "b"}); err != ErrRateLimited {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestStatsReflectsQueueAndWorkerCounts(t *testing.T) {
	o, reg, _ := newTestOrchestrator(t, DefaultConfig(), nil)
	reg.Register(task.Descriptor{ID: "w1", MaxLoad: 1})
	o.SubmitTask(task.Submission{Type: "a"})
	o.SubmitTask(task.Submission{Type: "b"})

	stats := o.Stats()
	if stats.Tasks.Queued != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", stats.Tasks.Queued)
	}
	if stats.Workers.Count != 1 {
		t.Fatalf("expected 1 registered worker, got %d", stats.Workers.Count)
	}
}
