// Package schedule runs recurring task submissions on cron expressions,
// feeding the same SubmitTask path a client request would use.
//
// Grounded on the teacher's Scheduler (scheduler.go): cron.New with
// cron.WithSeconds(), AddFunc per schedule, run-count/failure metrics. The
// teacher's event-trigger half (TriggerEvent, EventHandler, Kafka/webhook
// filters) is dropped — SPEC_FULL.md's scheduler is cron-only, a template
// submission scheduler rather than a DAG-workflow trigger engine.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/supervisor/internal/task"
)

// Submitter is the subset of the Orchestrator's API the scheduler needs;
// kept as a narrow interface so this package never imports orchestrator.
type Submitter interface {
	SubmitTask(s task.Submission) (task.Task, error)
}

// Template is a recurring task submission: CronExpr is evaluated with
// seconds precision (matching the teacher's cron.WithSeconds()).
type Template struct {
	Name       string        `json:"name"`
	CronExpr   string        `json:"cron_expr"`
	Type       string        `json:"type"`
	Payload    any           `json:"payload,omitempty"`
	Priority   task.Priority `json:"priority,omitempty"`
	TimeoutMs  int64         `json:"timeout_ms,omitempty"`
	MaxRetries int           `json:"max_retries,omitempty"`
}

// Scheduler drives cron-triggered task submissions.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter

	mu      sync.RWMutex
	entries map[string]cron.EntryID
	specs   map[string]Template

	runs   metric.Int64Counter
	fails  metric.Int64Counter
	tracer trace.Tracer
}

// New constructs a Scheduler. It does not start running until Start is called.
func New(submitter Submitter, meter metric.Meter) *Scheduler {
	runs, _ := meter.Int64Counter("supervisor_schedule_runs_total")
	fails, _ := meter.Int64Counter("supervisor_schedule_failures_total")
	return &Scheduler{
		cron:      cron.New(cron.WithSeconds()),
		submitter: submitter,
		entries:   make(map[string]cron.EntryID),
		specs:     make(map[string]Template),
		runs:      runs,
		fails:     fails,
		tracer:    otel.Tracer("supervisor-scheduler"),
	}
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to finish, up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add registers tpl, replacing any existing schedule of the same name.
func (s *Scheduler) Add(tpl Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[tpl.Name]; ok {
		s.cron.Remove(existing)
		delete(s.entries, tpl.Name)
	}

	entryID, err := s.cron.AddFunc(tpl.CronExpr, func() { s.fire(tpl) })
	if err != nil {
		return fmt.Errorf("add schedule %q: %w", tpl.Name, err)
	}
	s.entries[tpl.Name] = entryID
	s.specs[tpl.Name] = tpl
	slog.Info("schedule added", "name", tpl.Name, "cron", tpl.CronExpr, "type", tpl.Type)
	return nil
}

// Remove unregisters a schedule by name, reporting whether it existed.
func (s *Scheduler) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(entryID)
	delete(s.entries, name)
	delete(s.specs, name)
	return true
}

// List returns every registered Template.
func (s *Scheduler) List() []Template {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.specs))
	for _, tpl := range s.specs {
		out = append(out, tpl)
	}
	return out
}

func (s *Scheduler) fire(tpl Template) {
	ctx, span := s.tracer.Start(context.Background(), "schedule.fire",
		trace.WithAttributes(attribute.String("schedule", tpl.Name), attribute.String("type", tpl.Type)))
	defer span.End()

	start := time.Now()
	_, err := s.submitter.SubmitTask(task.Submission{
		Type:       tpl.Type,
		Payload:    tpl.Payload,
		Priority:   tpl.Priority,
		TimeoutMs:  tpl.TimeoutMs,
		MaxRetries: tpl.MaxRetries,
	})
	if err != nil {
		s.fails.Add(ctx, 1, metric.WithAttributes(attribute.String("schedule", tpl.Name)))
		slog.Error("scheduled submission failed", "schedule", tpl.Name, "error", err)
		return
	}
	s.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("schedule", tpl.Name)))
	slog.Info("scheduled task submitted", "schedule", tpl.Name, "duration_ms", time.Since(start).Milliseconds())
}
