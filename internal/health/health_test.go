package health

import (
	"math"
	"testing"
	"time"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestLoadScore(t *testing.T) {
	if s := LoadScore(0, 0); !almostEqual(s, 1) {
		t.Fatalf("expected 1 for maxLoad=0, got %f", s)
	}
	if s := LoadScore(5, 10); !almostEqual(s, 0.5) {
		t.Fatalf("expected 0.5, got %f", s)
	}
}

func TestSuccessScore(t *testing.T) {
	if s := SuccessScore(0, 0); !almostEqual(s, 1) {
		t.Fatalf("expected 1 with no samples, got %f", s)
	}
	if s := SuccessScore(3, 1); !almostEqual(s, 0.75) {
		t.Fatalf("expected 0.75, got %f", s)
	}
}

func TestLatencyScoreRequiresMinimumSamples(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	samples := []LatencySample{{At: now, Ms: 100}}
	if s := LatencyScore(samples, now, cfg); !almostEqual(s, 1) {
		t.Fatalf("expected 1 below MinLatencySamples, got %f", s)
	}
}

func TestLatencyScoreExcludesStaleSamples(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	samples := make([]LatencySample, 0)
	for i := 0; i < cfg.MinLatencySamples; i++ {
		samples = append(samples, LatencySample{At: old, Ms: 9999})
	}
	if s := LatencyScore(samples, now, cfg); !almostEqual(s, 1) {
		t.Fatalf("expected 1 when all samples are outside the window, got %f", s)
	}
}

func TestAvailabilityScore(t *testing.T) {
	if s := AvailabilityScore(0, 0); !almostEqual(s, 1) {
		t.Fatalf("expected 1 for totalMs=0, got %f", s)
	}
	if s := AvailabilityScore(50, 100); !almostEqual(s, 0.5) {
		t.Fatalf("expected 0.5, got %f", s)
	}
}

func TestTrackerScoreReflectsSuccessAndLoad(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	for i := 0; i < 10; i++ {
		tr.RecordSuccess(10)
	}
	good := tr.Score(0, 10)

	bad := NewTracker(DefaultConfig())
	for i := 0; i < 10; i++ {
		bad.RecordFailure()
	}
	badScore := bad.Score(9, 10)

	if good <= badScore {
		t.Fatalf("expected healthy tracker to score higher: good=%f bad=%f", good, badScore)
	}
}

func TestRegistryHealthiestPicksHighestScore(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	for i := 0; i < 10; i++ {
		reg.RecordSuccess("good", 5)
		reg.RecordFailure("bad")
	}
	best, ok := reg.Healthiest([]LoadHint{
		{ID: "good", Current: 0, Max: 10},
		{ID: "bad", Current: 0, Max: 10},
	})
	if !ok || best != "good" {
		t.Fatalf("expected good to be healthiest, got %s", best)
	}
}

func TestRegistryHealthiestEmptyCandidates(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	if _, ok := reg.Healthiest(nil); ok {
		t.Fatalf("expected false for empty candidates")
	}
}
