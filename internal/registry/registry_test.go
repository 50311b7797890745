package registry

import (
	"testing"
	"time"

	"github.com/swarmguard/supervisor/internal/task"
)

func TestRegisterNewAndUpdate(t *testing.T) {
	r := New()
	w, created := r.Register(task.Descriptor{ID: "w1", MaxLoad: 5, Capabilities: []string{"gpu"}})
	if !created {
		t.Fatalf("expected newly created")
	}
	if w.Status != task.WorkerOnline {
		t.Fatalf("expected online status, got %s", w.Status)
	}

	_, created = r.Register(task.Descriptor{ID: "w1", MaxLoad: 0})
	if created {
		t.Fatalf("expected re-registration to report created=false")
	}
	updated, _ := r.Get("w1")
	if updated.MaxLoad != 5 {
		t.Fatalf("expected MaxLoad preserved on merge, got %d", updated.MaxLoad)
	}
}

func TestUnregisterRemovesFromOrder(t *testing.T) {
	r := New()
	r.Register(task.Descriptor{ID: "w1", MaxLoad: 1})
	r.Register(task.Descriptor{ID: "w2", MaxLoad: 1})
	if !r.Unregister("w1") {
		t.Fatalf("expected w1 to exist")
	}
	all := r.GetAll()
	if len(all) != 1 || all[0].ID != "w2" {
		t.Fatalf("expected only w2 remaining, got %v", all)
	}
}

func TestGetAllPreservesRegistrationOrder(t *testing.T) {
	r := New()
	ids := []string{"c", "a", "b"}
	for _, id := range ids {
		r.Register(task.Descriptor{ID: id, MaxLoad: 1})
	}
	all := r.GetAll()
	for i, w := range all {
		if w.ID != ids[i] {
			t.Fatalf("expected registration order %v, got position %d = %s", ids, i, w.ID)
		}
	}
}

func TestHeartbeatUnknownWorkerIsNoop(t *testing.T) {
	r := New()
	if _, ok := r.Heartbeat(task.Heartbeat{ID: "ghost"}); ok {
		t.Fatalf("expected heartbeat for unknown worker to report not found")
	}
}

func TestCheckHealthFlipsStaleWorkersOffline(t *testing.T) {
	r := New()
	fixed := time.Now()
	r.nowFn = func() time.Time { return fixed }
	r.Register(task.Descriptor{ID: "w1", MaxLoad: 1})

	r.nowFn = func() time.Time { return fixed.Add(10 * time.Minute) }
	offline := r.CheckHealth(30*time.Second, 3)
	if len(offline) != 1 || offline[0].ID != "w1" {
		t.Fatalf("expected w1 flipped offline, got %v", offline)
	}
	w, _ := r.Get("w1")
	if w.Status != task.WorkerOffline {
		t.Fatalf("expected w1 status offline, got %s", w.Status)
	}

	// Second call shouldn't re-report an already-offline worker.
	offline = r.CheckHealth(30*time.Second, 3)
	if len(offline) != 0 {
		t.Fatalf("expected no further offline transitions, got %v", offline)
	}
}

func TestGetAvailableExcludesFullyLoaded(t *testing.T) {
	r := New()
	r.Register(task.Descriptor{ID: "w1", MaxLoad: 1, CurrentLoad: 1})
	r.Register(task.Descriptor{ID: "w2", MaxLoad: 1, CurrentLoad: 0})
	avail := r.GetAvailable()
	if len(avail) != 1 || avail[0].ID != "w2" {
		t.Fatalf("expected only w2 available, got %v", avail)
	}
}

func TestGetByCapabilityWildcardMatchesAnyType(t *testing.T) {
	r := New()
	r.Register(task.Descriptor{ID: "w1", MaxLoad: 1})
	matches := r.GetByCapability("anything")
	if len(matches) != 1 {
		t.Fatalf("expected wildcard worker to match any capability, got %v", matches)
	}
}

func TestSetLoadClampsAtZero(t *testing.T) {
	r := New()
	r.Register(task.Descriptor{ID: "w1", MaxLoad: 3})
	r.SetLoad("w1", -5)
	w, _ := r.Get("w1")
	if w.CurrentLoad != 0 {
		t.Fatalf("expected load clamped to 0, got %d", w.CurrentLoad)
	}
}
