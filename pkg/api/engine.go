package api

import "context"

// Engine owns the job lifecycle: it compiles workflows, drives compiled
// graphs level by level, checkpoints progress, and announces it on the event
// bus. One engine instance is constructed explicitly and passed to all
// callers; there is no package-level singleton.
type Engine interface {
	// RegisterWorkflow registers a definition under its ID and version.
	// Registering the same ID+version twice is an error.
	RegisterWorkflow(def WorkflowDefinition) error

	// CreateJob compiles the workflow (or reuses a cached compilation) and
	// allocates a job in StatusPending. An empty version selects the only
	// registered version and errors when the choice is ambiguous.
	CreateJob(ctx context.Context, workflowID, version string, inputs map[string]any) (*Job, error)

	// ExecuteJob runs a pending job to a terminal status, a pause point,
	// or a cancellation, level by level. It blocks until one of those is
	// reached. The returned job reflects the state at return; the error is
	// the step error that failed the job, if any.
	ExecuteJob(ctx context.Context, jobID string) (*Job, error)

	// PauseJob requests a cooperative suspension. The flag is observed
	// only at level boundaries: the currently dispatched level always
	// finishes before the job transitions to StatusPaused.
	PauseJob(ctx context.Context, jobID string) error

	// ResumeJob clears the pause flag and re-enters execution at the next
	// unexecuted level. When checkpointID is non-empty, job state is first
	// restored from that checkpoint; otherwise the job's last known state
	// is used.
	ResumeJob(ctx context.Context, jobID, checkpointID string) (*Job, error)

	// CancelJob abandons remaining levels. On a running job the flag is
	// observed at the next level boundary; a paused job is cancelled
	// immediately. A final checkpoint is flushed before the job reaches
	// StatusCancelled.
	CancelJob(ctx context.Context, jobID string) error

	// GetJob looks up a job by ID.
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// GetStatus returns a compact progress summary for a job.
	GetStatus(ctx context.Context, jobID string) (JobStatus, error)

	// ListJobs returns jobs matching the given options. If options are
	// zero-valued, all jobs are returned.
	ListJobs(ctx context.Context, opts JobListOptions) ([]*Job, error)

	// ListCheckpoints returns a job's checkpoints, most recent first.
	ListCheckpoints(ctx context.Context, jobID string) ([]Checkpoint, error)

	// CleanupCheckpoints deletes all but the keepLast most recent
	// checkpoints of a job, oldest first.
	CleanupCheckpoints(ctx context.Context, jobID string, keepLast int) (CleanupResult, error)

	// Subscribe registers an event feed. A late subscriber sees only
	// events emitted after subscription.
	Subscribe(filter EventFilter) Subscription

	// JobEvents replays a job's event history from the durable event log,
	// oldest first.
	JobEvents(ctx context.Context, jobID string) ([]Event, error)

	// RecoverStuckJobs scans for jobs still marked StatusRunning (for
	// example after a process crash) and moves them to StatusPaused so
	// they can be resumed from their last checkpoint.
	//
	// It returns the number of jobs it updated.
	//
	// This method is intended to be called on process startup *before*
	// accepting new work, so that no job is legitimately running when it
	// is executed.
	RecoverStuckJobs(ctx context.Context) (int, error)
}
