package orchestrator

import "errors"

// ErrQueueFull is returned by SubmitTask when the pending queue is at
// maxQueueSize capacity.
var ErrQueueFull = errors.New("orchestrator: queue full")

// ErrValidation is returned for malformed submissions; it never affects
// core state.
var ErrValidation = errors.New("orchestrator: validation failed")

// ErrUnknownWorker is surfaced by httpapi's heartbeat handler when
// registry.Registry.Heartbeat reports the id as unknown (spec.md §6: 404).
var ErrUnknownWorker = errors.New("orchestrator: unknown worker")

// ErrRateLimited is returned by SubmitTask when the submission rate limiter
// rejects the call.
var ErrRateLimited = errors.New("orchestrator: submission rate limited")
