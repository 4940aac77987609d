// Package persistence holds the storage interfaces and backends for workflow
// definitions and jobs: an in-memory store for tests and ephemeral use, and a
// SQLite store for embedded durability.
package persistence

import "github.com/ankala/maestro/pkg/api"

// WorkflowStore handles storage of workflow definitions, keyed by ID and
// version.
type WorkflowStore interface {
	SaveWorkflow(def api.WorkflowDefinition) error
	// GetWorkflow returns the workflow definition for an ID+version.
	GetWorkflow(id, version string) (api.WorkflowDefinition, error)
	// GetLatestWorkflow returns the workflow if exactly one version exists.
	// Errors if zero or multiple versions are present.
	GetLatestWorkflow(id string) (api.WorkflowDefinition, error)
	ListWorkflowVersions(id string) ([]string, error)
}

// JobStore handles storage of jobs. Implementations return jobs as copies:
// mutating a returned job never changes stored state until it is written back.
type JobStore interface {
	SaveJob(job *api.Job) error
	UpdateJob(job *api.Job) error
	// TransitionJob atomically moves a job from one status to another.
	// It returns an error wrapping api.ErrInvalidTransition when the stored
	// status is not `from`, so concurrent claimants cannot both win.
	TransitionJob(id string, from, to api.Status) error
	GetJob(id string) (*api.Job, error)
	ListJobs(opts api.JobListOptions) ([]*api.Job, error)
}

// Persistence bundles the stores an engine needs.
type Persistence struct {
	Workflows WorkflowStore
	Jobs      JobStore
}
