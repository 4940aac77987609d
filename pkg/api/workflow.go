package api

import "time"

// StepSpec declares one unit of work inside a workflow: what runs, what it
// depends on, and how failures are handled.
type StepSpec struct {
	// ID uniquely identifies the step within its workflow.
	ID string

	// Uses names a runner factory in the step Registry. It is ignored when
	// Runner is set directly.
	Uses string

	// Runner executes the step. When nil, the compiler resolves Uses
	// against the registry instead.
	Runner Runner

	// Config is passed to the registry factory when Uses is resolved.
	Config map[string]any

	// Needs lists the IDs of steps whose outputs must be recorded before
	// this step may start.
	Needs []string

	// Timeout bounds a single attempt of this step. Zero means no limit
	// beyond the job context.
	Timeout time.Duration

	// Retry controls re-execution after a failed attempt. Nil means a
	// single attempt.
	Retry *RetryPolicy

	// ContinueOnError keeps the job alive when this step exhausts its
	// retries: only the step's own dependents are skipped.
	ContinueOnError bool

	// Exclusive is a mutual-exclusion tag. Steps in the same level sharing
	// a non-empty tag never run concurrently with each other.
	Exclusive string
}

// WorkflowDefinition describes a workflow as a set of steps with
// dependencies. Definitions are treated as immutable once compiled.
type WorkflowDefinition struct {
	ID      string
	Version string
	Steps   []StepSpec
}

// RetryPolicy controls how a step is retried when it returns an error.
// MaxAttempts includes the first attempt. For example:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
type RetryPolicy struct {
	MaxAttempts int

	// InitialBackoff is the delay before the first retry. If zero, retries
	// happen immediately.
	InitialBackoff time.Duration

	// MaxBackoff caps the per-retry delay. Zero means no cap.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the delay each attempt. Values <= 0 default
	// to 2.0 (standard exponential backoff).
	BackoffMultiplier float64
}
