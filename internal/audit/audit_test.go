package audit

import (
	"path/filepath"
	"testing"

	noopmetric "go.opentelemetry.io/otel/metric/noop"

	"github.com/swarmguard/supervisor/internal/task"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(filepath.Join(dir, "audit.db"), noopmetric.MeterProvider{}.Meter("test"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAuditLogRecordsLifecycleEvents(t *testing.T) {
	l := openTestLog(t)

	l.OnTaskAssigned(task.Task{ID: "t1", Type: "render"}, "w1")
	l.OnTaskCompleted(task.Result{TaskID: "t1", WorkerID: "w1", Success: true})

	entries, err := l.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Recent returns newest first.
	if entries[0].Kind != KindTaskCompleted || entries[1].Kind != KindTaskAssigned {
		t.Fatalf("unexpected entry order: %+v", entries)
	}
}

func TestAuditLogRecentRespectsLimit(t *testing.T) {
	l := openTestLog(t)
	for i := 0; i < 5; i++ {
		l.OnWorkerOnline(task.Worker{ID: "w1"})
	}
	entries, err := l.Recent(2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit of 2 entries, got %d", len(entries))
	}
}
