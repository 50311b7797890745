// Package prober performs an advisory, non-blocking reachability check
// against a newly registered Worker's endpoint.
//
// Grounded on control-plane/main.go's dialWithRetry (retry a connection
// attempt with backoff before giving up), generalized from its hand-rolled
// doubling-delay loop to github.com/cenkalti/backoff/v4 — a teacher
// dependency that was present in go.mod but only ever used indirectly via
// NATS; this is the first place it's wired directly, per SPEC_FULL.md §4.7.
package prober

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config controls probe retry behavior.
type Config struct {
	MaxElapsed time.Duration
	Timeout    time.Duration
}

// DefaultConfig gives up probing after 10s total, 2s per attempt.
func DefaultConfig() Config {
	return Config{MaxElapsed: 10 * time.Second, Timeout: 2 * time.Second}
}

// Prober checks Worker endpoint reachability in the background. A failed
// probe never blocks or fails Worker registration — it only logs, since the
// spec treats reachability purely as an operational signal.
type Prober struct {
	cfg    Config
	client *http.Client
}

// New creates a Prober using cfg.
func New(cfg Config) *Prober {
	return &Prober{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Probe launches an asynchronous reachability check against endpoint,
// calling onResult with the outcome once the retry budget is exhausted or
// a probe succeeds. onResult may be nil.
func (p *Prober) Probe(ctx context.Context, workerID, endpoint string, onResult func(workerID string, reachable bool)) {
	if endpoint == "" {
		return
	}
	go func() {
		reachable := p.probeWithRetry(ctx, endpoint)
		if !reachable {
			slog.Warn("worker endpoint unreachable after retries", "worker_id", workerID, "endpoint", endpoint)
		}
		if onResult != nil {
			onResult(workerID, reachable)
		}
	}()
}

func (p *Prober) probeWithRetry(ctx context.Context, endpoint string) bool {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.cfg.MaxElapsed
	bctx := backoff.WithContext(b, ctx)

	attempt := 0
	op := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			return &httpStatusError{code: resp.StatusCode}
		}
		return nil
	}

	err := backoff.Retry(op, bctx)
	return err == nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return http.StatusText(e.code)
}
