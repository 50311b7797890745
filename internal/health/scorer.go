// Package health computes a deterministic, advisory composite health score
// for each Worker from load, success rate, latency, and uptime.
//
// Grounded on the teacher's metrics-recording idiom (otel histograms and
// counters per component, e.g. DAGEngine.taskDuration / taskFailures) but
// implemented as a pure scoring function plus a small in-process Tracker,
// since nothing in the corpus offers an off-the-shelf composite health
// scorer — this is domain logic the spec owns outright.
package health

import "time"

// Weights controls the contribution of each subscore to the final score.
// Must not be assumed to sum to 1; callers who override them are responsible
// for that.
type Weights struct {
	Load         float64
	Success      float64
	Latency      float64
	Availability float64
}

// DefaultWeights matches the spec's defaults.
func DefaultWeights() Weights {
	return Weights{Load: 0.30, Success: 0.35, Latency: 0.20, Availability: 0.15}
}

// Config parameterizes latency-subscore behavior.
type Config struct {
	Weights          Weights
	MaxLatencyMs     float64
	LatencyWindowMs  int64
	MinLatencySamples int
}

// DefaultConfig mirrors common production defaults.
func DefaultConfig() Config {
	return Config{
		Weights:           DefaultWeights(),
		MaxLatencyMs:      5_000,
		LatencyWindowMs:   60_000,
		MinLatencySamples: 5,
	}
}

// LoadScore returns 1 - currentLoad/maxLoad, or 1 when maxLoad is 0.
func LoadScore(currentLoad, maxLoad int) float64 {
	if maxLoad == 0 {
		return 1
	}
	s := 1 - float64(currentLoad)/float64(maxLoad)
	return clamp01(s)
}

// SuccessScore returns successes/(successes+failures), or 1 with no samples.
func SuccessScore(successes, failures int64) float64 {
	total := successes + failures
	if total == 0 {
		return 1
	}
	return float64(successes) / float64(total)
}

// LatencyScore returns 1 - avgLatencyMs/maxLatencyMs clamped to [0,1], or 1
// if fewer than minSamples latency samples are available within the window.
func LatencyScore(samples []LatencySample, now time.Time, cfg Config) float64 {
	cutoff := now.Add(-time.Duration(cfg.LatencyWindowMs) * time.Millisecond)
	var sum float64
	n := 0
	for _, s := range samples {
		if s.At.After(cutoff) {
			sum += s.Ms
			n++
		}
	}
	if n < cfg.MinLatencySamples {
		return 1
	}
	avg := sum / float64(n)
	if cfg.MaxLatencyMs <= 0 {
		return 1
	}
	return clamp01(1 - avg/cfg.MaxLatencyMs)
}

// AvailabilityScore returns uptimeMs/totalMs, or 1 when totalMs is 0.
func AvailabilityScore(uptimeMs, totalMs int64) float64 {
	if totalMs == 0 {
		return 1
	}
	return clamp01(float64(uptimeMs) / float64(totalMs))
}

// Composite combines the four subscores into the weighted final score.
func Composite(load, success, latency, availability float64, w Weights) float64 {
	return load*w.Load + success*w.Success + latency*w.Latency + availability*w.Availability
}

// LatencySample is a single observed call latency, timestamped for windowing.
type LatencySample struct {
	At time.Time
	Ms float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
