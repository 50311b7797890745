// Package httpapi is the JSON HTTP surface over the Orchestrator,
// Registry, breaker.Registry, health.Registry, audit.Log, and
// schedule.Scheduler.
//
// Grounded on the teacher's main.go mux: stdlib http.ServeMux (Go 1.22+
// method+pattern routing), json.NewDecoder/Encoder request/response bodies,
// http.Error for failures, same health-endpoint-always-200 convention.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/swarmguard/supervisor/internal/audit"
	"github.com/swarmguard/supervisor/internal/breaker"
	"github.com/swarmguard/supervisor/internal/health"
	"github.com/swarmguard/supervisor/internal/orchestrator"
	"github.com/swarmguard/supervisor/internal/prober"
	"github.com/swarmguard/supervisor/internal/registry"
	"github.com/swarmguard/supervisor/internal/schedule"
	"github.com/swarmguard/supervisor/internal/task"
)

// Server bundles the components the HTTP surface adapts.
type Server struct {
	orc       *orchestrator.Orchestrator
	reg       *registry.Registry
	breakers  *breaker.Registry
	healthReg *health.Registry
	auditLog  *audit.Log
	sched     *schedule.Scheduler
	prober    *prober.Prober
}

// New builds a Server. auditLog, sched, and reachProber may be nil if those
// components aren't configured; the corresponding endpoints report 503, and
// registration simply skips reachability probing.
func New(orc *orchestrator.Orchestrator, reg *registry.Registry, breakers *breaker.Registry, healthReg *health.Registry, auditLog *audit.Log, sched *schedule.Scheduler, reachProber *prober.Prober) *Server {
	return &Server{orc: orc, reg: reg, breakers: breakers, healthReg: healthReg, auditLog: auditLog, sched: sched, prober: reachProber}
}

// Mux builds the full route table: spec.md §6's literal interface
// (register/heartbeat/unregister/submit/get/report-result/status) plus the
// SPEC_FULL.md §4.7-§4.11/§6 supplements (circuits, audit, schedules).
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("POST /tasks", s.handleSubmitTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/{id}/result", s.handleReportTaskResult)
	mux.HandleFunc("GET /tasks/{id}/result", s.handleGetTaskResult)

	mux.HandleFunc("POST /workers/register", s.handleRegisterWorker)
	mux.HandleFunc("POST /workers/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("DELETE /workers/{id}", s.handleUnregisterWorker)
	mux.HandleFunc("GET /workers", s.handleListWorkers)
	mux.HandleFunc("GET /workers/{id}", s.handleGetWorker)

	mux.HandleFunc("GET /circuits", s.handleListCircuits)
	mux.HandleFunc("POST /circuits/{id}/reset", s.handleResetCircuit)

	mux.HandleFunc("GET /audit/recent", s.handleAuditRecent)

	mux.HandleFunc("GET /schedules", s.handleListSchedules)
	mux.HandleFunc("POST /schedules", s.handleAddSchedule)
	mux.HandleFunc("DELETE /schedules/{name}", s.handleRemoveSchedule)

	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.orc.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"workers": stats.Workers,
		"tasks":   stats.Tasks,
		"circuits": func() any {
			if s.breakers == nil {
				return nil
			}
			return s.breakers.GetAllStats()
		}(),
		"health": func() any {
			if s.healthReg == nil {
				return nil
			}
			scores := make(map[string]float64)
			for _, wk := range s.reg.GetAll() {
				scores[wk.ID] = s.healthReg.Score(wk.ID, wk.CurrentLoad, wk.MaxLoad)
			}
			return scores
		}(),
	})
}

// submitTaskRequest mirrors spec.md §6's POST /tasks body verbatim
// (camelCase wire names), independent of task.Submission's internal tags.
type submitTaskRequest struct {
	Type       string        `json:"type"`
	Payload    any           `json:"payload"`
	Priority   task.Priority `json:"priority"`
	TimeoutMs  int64         `json:"timeoutMs"`
	MaxRetries int           `json:"maxRetries"`
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	t, err := s.orc.SubmitTask(task.Submission{
		Type:       req.Type,
		Payload:    req.Payload,
		Priority:   req.Priority,
		TimeoutMs:  req.TimeoutMs,
		MaxRetries: req.MaxRetries,
	})
	if err != nil {
		// spec.md §6 specifies 400 for every SubmitTask failure, including
		// ErrQueueFull. ErrRateLimited is a SPEC_FULL.md §4.11 supplement
		// the literal table doesn't name; disclosed there as 429.
		status := http.StatusBadRequest
		if err == orchestrator.ErrRateLimited {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": t})
}

// handleGetTask serves GET /tasks/:id, searching active/queue/done via
// GetTask and the results table via GetTaskResult, per spec.md §6's
// `{task?, result?}` response shape; 404 only if neither is found.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, taskOk := s.orc.GetTask(id)
	res, resOk := s.orc.GetTaskResult(id)
	if !taskOk && !resOk {
		http.NotFound(w, r)
		return
	}
	resp := map[string]any{}
	if taskOk {
		resp["task"] = t
	}
	if resOk {
		resp["result"] = res
	}
	writeJSON(w, http.StatusOK, resp)
}

// reportTaskResultRequest mirrors spec.md §6's POST /tasks/:id/result body.
type reportTaskResultRequest struct {
	WorkerID   string `json:"workerId"`
	Success    bool   `json:"success"`
	Result     any    `json:"result"`
	Error      string `json:"error"`
	DurationMs int64  `json:"durationMs"`
}

// handleReportTaskResult is the endpoint a Worker posts its outcome to; it
// is the only path into Orchestrator.ReportTaskResult besides the internal
// timeout sweep. Unknown task ids are dropped silently (logged inside
// ReportTaskResult), matching spec.md §4.6's "if absent: log and drop".
func (s *Server) handleReportTaskResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req reportTaskResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		http.Error(w, "workerId required", http.StatusBadRequest)
		return
	}
	s.orc.ReportTaskResult(task.Result{
		TaskID:     id,
		WorkerID:   req.WorkerID,
		Success:    req.Success,
		Result:     req.Result,
		Error:      req.Error,
		DurationMs: req.DurationMs,
	})
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// registerWorkerRequest mirrors spec.md §6's POST /workers/register body.
type registerWorkerRequest struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Endpoint     string            `json:"endpoint"`
	Capabilities []string          `json:"capabilities"`
	CurrentLoad  int               `json:"currentLoad"`
	MaxLoad      int               `json:"maxLoad"`
	Metadata     map[string]string `json:"metadata"`
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id required", http.StatusBadRequest)
		return
	}
	worker, created := s.reg.Register(task.Descriptor{
		ID:           req.ID,
		Name:         req.Name,
		Endpoint:     req.Endpoint,
		Capabilities: req.Capabilities,
		CurrentLoad:  req.CurrentLoad,
		MaxLoad:      req.MaxLoad,
		Metadata:     req.Metadata,
	})
	if created && s.prober != nil {
		s.prober.Probe(context.Background(), worker.ID, worker.Endpoint, func(workerID string, reachable bool) {
			if s.healthReg == nil {
				return
			}
			if reachable {
				s.healthReg.RecordUp(workerID)
			} else {
				s.healthReg.RecordDown(workerID)
			}
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "worker": worker})
}

func (s *Server) handleUnregisterWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existed := s.reg.Unregister(id)
	if existed {
		if s.breakers != nil {
			s.breakers.Remove(id)
		}
		if s.healthReg != nil {
			s.healthReg.Remove(id)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": existed})
}

// heartbeatRequest mirrors spec.md §6's POST /workers/heartbeat body — the
// worker id travels in the body as workerId, not in the URL path.
type heartbeatRequest struct {
	WorkerID     string            `json:"workerId"`
	Status       task.WorkerStatus `json:"status"`
	CurrentLoad  int               `json:"currentLoad"`
	MaxLoad      int               `json:"maxLoad"`
	Capabilities []string          `json:"capabilities"`
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.WorkerID == "" {
		http.Error(w, "workerId required", http.StatusBadRequest)
		return
	}
	worker, ok := s.reg.Heartbeat(task.Heartbeat{
		ID:           req.WorkerID,
		Status:       req.Status,
		CurrentLoad:  req.CurrentLoad,
		MaxLoad:      req.MaxLoad,
		Capabilities: req.Capabilities,
	})
	if !ok {
		http.Error(w, orchestrator.ErrUnknownWorker.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "worker": worker})
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var workers []task.Worker
	if status != "" {
		workers = s.reg.GetByStatus(task.WorkerStatus(status))
	} else {
		workers = s.reg.GetAll()
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": workers})
}

func (s *Server) handleGetWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	worker, ok := s.reg.Get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, worker)
}

func (s *Server) handleListCircuits(w http.ResponseWriter, _ *http.Request) {
	if s.breakers == nil {
		http.Error(w, "circuit breaker not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.breakers.GetAllStats())
}

func (s *Server) handleResetCircuit(w http.ResponseWriter, r *http.Request) {
	if s.breakers == nil {
		http.Error(w, "circuit breaker not configured", http.StatusServiceUnavailable)
		return
	}
	id := r.PathValue("id")
	s.breakers.Reset(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	if s.auditLog == nil {
		http.Error(w, "audit log not configured", http.StatusServiceUnavailable)
		return
	}
	n := 50
	entries, err := s.auditLog.Recent(n)
	if err != nil {
		slog.Error("audit recent failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.sched == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.sched.List())
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	var tpl schedule.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if tpl.Name == "" || tpl.CronExpr == "" || tpl.Type == "" {
		http.Error(w, "name, cron_expr, and type are required", http.StatusBadRequest)
		return
	}
	if err := s.sched.Add(tpl); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, "scheduler not configured", http.StatusServiceUnavailable)
		return
	}
	name := r.PathValue("name")
	if !s.sched.Remove(name) {
		http.NotFound(w, r)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", "error", err)
	}
}
