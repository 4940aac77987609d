package api

import "time"

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether the job state machine permits moving from
// one status to another.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning
	case StatusRunning:
		switch to {
		case StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
			return true
		}
	case StatusPaused:
		return to == StatusRunning || to == StatusCancelled
	}
	return false
}

// Job is one running instance of a compiled workflow. Its mutable state is
// exclusively owned by the engine executing it; no other component writes a
// job's status or output map.
type Job struct {
	ID              string
	WorkflowID      string
	WorkflowVersion string
	Status          Status

	// CurrentLevel is the index of the next level to dispatch.
	CurrentLevel int

	// Inputs are the job inputs supplied at creation, immutable afterwards.
	Inputs map[string]any

	// Outputs maps step IDs to their recorded outputs.
	Outputs map[string]any

	// Completed, Skipped and Failed track per-step terminal outcomes.
	// Failed maps a step ID to the text of its final error.
	Completed map[string]bool
	Skipped   map[string]bool
	Failed    map[string]string

	// Err is the error that moved the job to StatusFailed, if any.
	Err error

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStatus is the compact progress summary returned by Engine.GetStatus.
type JobStatus struct {
	Status         Status
	CompletedSteps int
	TotalSteps     int
	CurrentLevel   int
}

// JobListOptions controls how jobs are listed.
// Zero values mean "no filter" for that field.
type JobListOptions struct {
	WorkflowID string
	Status     Status
}

// StepStatus is the terminal outcome of one step execution within a level.
type StepStatus string

const (
	StepSucceeded StepStatus = "SUCCEEDED"
	StepFailed    StepStatus = "FAILED"
	StepTimedOut  StepStatus = "TIMED_OUT"
	StepSkipped   StepStatus = "SKIPPED"
)

// StepResult is the per-step outcome returned by the parallel executor.
// Results are collected independently per step and merged by the engine
// after the level call returns.
type StepResult struct {
	StepID   string
	Status   StepStatus
	Output   any
	Err      error
	Attempts int
	Duration time.Duration
}
