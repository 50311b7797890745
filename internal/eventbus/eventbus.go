// Package eventbus publishes lifecycle events onto NATS for external
// consumers, propagating OTel trace context in message headers the same way
// the teacher's natsctx.Publish does.
//
// Grounded on corelibs/natsctx/natsctx.go (header injection via
// propagation.TraceContext) and control-plane/main.go's getenv-configured
// nats.Connect usage.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	nats "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/swarmguard/supervisor/internal/task"
)

const (
	SubjectTaskAssigned  = "supervisor.task.assigned"
	SubjectTaskCompleted = "supervisor.task.completed"
	SubjectTaskFailed    = "supervisor.task.failed"
	SubjectWorkerOnline  = "supervisor.worker.online"
	SubjectWorkerOffline = "supervisor.worker.offline"
)

var propagator = propagation.TraceContext{}

// Publisher implements events.Observer by publishing each notification to a
// NATS subject. Publish failures are logged, never surfaced to the caller —
// the event bus is a best-effort sink, not part of the Orchestrator's
// correctness surface.
type Publisher struct {
	nc     *nats.Conn
	tracer trace.Tracer
}

// New wraps an already-connected NATS client.
func New(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc, tracer: otel.Tracer("supervisor-eventbus")}
}

// Connect dials url with unlimited reconnect attempts spaced 2s apart,
// matching the teacher's nats.Connect(getenv("NATS_URL", ...)) usage.
func Connect(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url, nats.MaxReconnects(-1), nats.ReconnectWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (p *Publisher) publish(ctx context.Context, subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("eventbus marshal failed", "subject", subject, "error", err)
		return
	}

	ctx, span := p.tracer.Start(ctx, "eventbus.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	hdr := nats.Header{}
	propagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: subject, Data: data, Header: hdr}
	if err := p.nc.PublishMsg(msg); err != nil {
		slog.Error("eventbus publish failed", "subject", subject, "error", err)
	}
}

type taskEvent struct {
	TaskID   string `json:"task_id"`
	TaskType string `json:"task_type,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
	Success  bool   `json:"success,omitempty"`
	Error    string `json:"error,omitempty"`
}

type workerEvent struct {
	WorkerID string `json:"worker_id"`
}

// OnTaskAssigned implements events.Observer.
func (p *Publisher) OnTaskAssigned(t task.Task, workerID string) {
	p.publish(context.Background(), SubjectTaskAssigned, taskEvent{TaskID: t.ID, TaskType: t.Type, WorkerID: workerID})
}

// OnTaskCompleted implements events.Observer.
func (p *Publisher) OnTaskCompleted(r task.Result) {
	p.publish(context.Background(), SubjectTaskCompleted, taskEvent{TaskID: r.TaskID, WorkerID: r.WorkerID, Success: r.Success})
}

// OnTaskFailed implements events.Observer.
func (p *Publisher) OnTaskFailed(t task.Task, errMsg string) {
	p.publish(context.Background(), SubjectTaskFailed, taskEvent{TaskID: t.ID, TaskType: t.Type, WorkerID: t.AssignedTo, Error: errMsg})
}

// OnWorkerOnline implements events.Observer.
func (p *Publisher) OnWorkerOnline(w task.Worker) {
	p.publish(context.Background(), SubjectWorkerOnline, workerEvent{WorkerID: w.ID})
}

// OnWorkerOffline implements events.Observer.
func (p *Publisher) OnWorkerOffline(w task.Worker) {
	p.publish(context.Background(), SubjectWorkerOffline, workerEvent{WorkerID: w.ID})
}
