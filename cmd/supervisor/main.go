// Command supervisor runs the task orchestration service: HTTP API,
// assignment loop, recurring schedule, audit log, and event bus publisher.
//
// Grounded on the teacher's cmd-equivalent entrypoint (services/orchestrator/main.go):
// logging.Init, signal.NotifyContext for SIGINT/SIGTERM, otelinit tracer and
// metrics setup, a bounded-timeout graceful shutdown sequence.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/swarmguard/supervisor/internal/audit"
	"github.com/swarmguard/supervisor/internal/breaker"
	"github.com/swarmguard/supervisor/internal/eventbus"
	"github.com/swarmguard/supervisor/internal/events"
	"github.com/swarmguard/supervisor/internal/health"
	"github.com/swarmguard/supervisor/internal/httpapi"
	"github.com/swarmguard/supervisor/internal/logging"
	"github.com/swarmguard/supervisor/internal/orchestrator"
	"github.com/swarmguard/supervisor/internal/otelinit"
	"github.com/swarmguard/supervisor/internal/prober"
	"github.com/swarmguard/supervisor/internal/ratelimit"
	"github.com/swarmguard/supervisor/internal/registry"
	"github.com/swarmguard/supervisor/internal/router"
	"github.com/swarmguard/supervisor/internal/schedule"
)

const serviceName = "supervisor"

func main() {
	os.Exit(run())
}

// run carries out the full startup/shutdown sequence and returns the
// process exit code: 0 on a graceful shutdown, 1 if the HTTP listener
// failed to bind. It is split out from main so os.Exit runs after every
// deferred cleanup here has already executed, rather than skipping it.
func run() int {
	logging.Init(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTrace := otelinit.InitTracer(ctx, serviceName)
	shutdownMetrics, _, _ := otelinit.InitMetrics(ctx, serviceName)
	meter := otel.GetMeterProvider().Meter(serviceName)

	reg := registry.New()
	rt := router.New()
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	healthReg := health.NewRegistry(health.DefaultConfig())

	var observers []events.Observer

	var auditLog *audit.Log
	if dbPath := os.Getenv("SUPERVISOR_AUDIT_DB"); dbPath != "" {
		var err error
		auditLog, err = audit.Open(dbPath, meter)
		if err != nil {
			slog.Error("audit log init failed, continuing without it", "error", err)
		} else {
			defer auditLog.Close()
			observers = append(observers, auditLog)
		}
	}

	var bus *eventbus.Publisher
	if natsURL := os.Getenv("SUPERVISOR_NATS_URL"); natsURL != "" {
		nc, err := eventbus.Connect(natsURL)
		if err != nil {
			slog.Warn("nats connect failed, continuing without event bus", "error", err)
		} else {
			defer nc.Close()
			bus = eventbus.New(nc)
			observers = append(observers, bus)
		}
	}

	observer := events.Multi{Observers: observers}

	cfg := orchestrator.DefaultConfig()
	orc := orchestrator.New(cfg, reg, rt, breakers, healthReg, observer, meter)
	orc.SetRateLimiter(ratelimit.New(200, 50, time.Second, 500, meter))
	orc.Start(ctx)
	defer orc.Stop()

	sched := schedule.New(orc, meter)
	sched.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = sched.Stop(stopCtx)
	}()

	reachProber := prober.New(prober.DefaultConfig())

	srv := &http.Server{
		Addr:    addr(),
		Handler: httpapi.New(orc, reg, breakers, healthReg, auditLog, sched, reachProber).Mux(),
	}

	var bindFailed atomic.Bool
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			bindFailed.Store(true)
			stop()
		}
	}()

	slog.Info("supervisor started", "addr", srv.Addr)
	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	otelinit.Flush(shutdownCtx, shutdownTrace)
	_ = shutdownMetrics(shutdownCtx)
	slog.Info("shutdown complete")

	if bindFailed.Load() {
		return 1
	}
	return 0
}

func addr() string {
	if a := os.Getenv("SUPERVISOR_ADDR"); a != "" {
		return a
	}
	return ":8080"
}

