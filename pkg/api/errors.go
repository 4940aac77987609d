package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")

	// ErrCheckpointNotFound is returned when a checkpoint is not found.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrInvalidTransition is returned when an operation would violate the
	// job state machine, for example resuming a completed job.
	ErrInvalidTransition = errors.New("invalid job state transition")

	// ErrVersionMismatch is returned when a checkpoint snapshot is
	// structurally incompatible with the currently compiled graph.
	ErrVersionMismatch = errors.New("checkpoint version mismatch")
)

// CompileError reports a workflow definition that cannot be turned into an
// execution graph: duplicate step IDs, unknown dependencies, or unresolvable
// runner references. Compilation never yields a partial graph.
type CompileError struct {
	WorkflowID string
	Reason     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile workflow %q: %s", e.WorkflowID, e.Reason)
}

// CycleError reports a dependency cycle. Steps holds the IDs along the cycle,
// ending where it started.
type CycleError struct {
	WorkflowID string
	Steps      []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("compile workflow %q: dependency cycle: %s",
		e.WorkflowID, strings.Join(e.Steps, " -> "))
}

// AsCycleError returns the CycleError in err's chain, if any.
func AsCycleError(err error) (*CycleError, bool) {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
