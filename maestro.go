package maestro

import (
	"context"
	"database/sql"

	"github.com/ankala/maestro/internal/engine"
	"github.com/ankala/maestro/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Engine               = api.Engine
	WorkflowDefinition   = api.WorkflowDefinition
	StepSpec             = api.StepSpec
	Job                  = api.Job
	JobStatus            = api.JobStatus
	JobListOptions       = api.JobListOptions
	Status               = api.Status
	Runner               = api.Runner
	RunnerFunc           = api.RunnerFunc
	StepContext          = api.StepContext
	StepResult           = api.StepResult
	RetryPolicy          = api.RetryPolicy
	CompiledGraph        = api.CompiledGraph
	Checkpoint           = api.Checkpoint
	Snapshot             = api.Snapshot
	CleanupResult        = api.CleanupResult
	Event                = api.Event
	EventType            = api.EventType
	EventFilter          = api.EventFilter
	Subscription         = api.Subscription
	Registry             = api.Registry
	Factory              = api.Factory
	Observer             = api.Observer
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
	CompositeObserver    = api.CompositeObserver
	NoopObserver         = api.NoopObserver
)

// Re-export common helpers.

var (
	NewRegistry          = api.NewRegistry
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusPaused    = api.StatusPaused
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
)

// Re-export sentinel errors.

var (
	ErrWorkflowNotFound   = api.ErrWorkflowNotFound
	ErrJobNotFound        = api.ErrJobNotFound
	ErrCheckpointNotFound = api.ErrCheckpointNotFound
	ErrInvalidTransition  = api.ErrInvalidTransition
	ErrVersionMismatch    = api.ErrVersionMismatch
)

// Engine constructors
// These wrap the internal/engine package so external callers
// never need to import internal packages.

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() Engine {
	return engine.NewInMemoryEngine()
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given Observer.
func NewInMemoryEngineWithObserver(obs Observer) Engine {
	return engine.NewInMemoryEngineWithObserver(obs)
}

// NewSQLiteEngine returns an Engine that persists jobs, checkpoints and event
// history in a SQLite database. Workflow definitions are kept in-memory.
func NewSQLiteEngine(db *sql.DB) (Engine, error) {
	return engine.NewSQLiteEngine(db)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs Observer) (Engine, error) {
	return engine.NewSQLiteEngineWithObserver(db, obs)
}

// Options customize an engine built with NewEngine.
type Options struct {
	// Observer receives lifecycle callbacks. Nil means no observer.
	Observer Observer

	// Registry resolves `uses` identifiers in workflow definitions.
	// Nil means definitions must carry Runner values directly.
	Registry *Registry

	// MaxConcurrency bounds in-flight steps across the engine.
	// Values <= 0 select the default of 4.
	MaxConcurrency int

	// DB, when non-nil, selects SQLite persistence for jobs, checkpoints
	// and event history. Nil selects in-memory stores.
	DB *sql.DB
}

// NewEngine builds an Engine from Options. It is the general-purpose
// constructor; the NewXxxEngine helpers cover the common cases.
func NewEngine(opts Options) (Engine, error) {
	return engine.New(engine.Options{
		Observer:       opts.Observer,
		Registry:       opts.Registry,
		MaxConcurrency: opts.MaxConcurrency,
		DB:             opts.DB,
	})
}

// Convenience helpers that just forward to the underlying Engine.

// CreateJob creates a job for a registered workflow. An empty version selects
// the only registered version and errors when the workflow has several.
func CreateJob(ctx context.Context, eng Engine, workflowID, version string, inputs map[string]any) (*Job, error) {
	return eng.CreateJob(ctx, workflowID, version, inputs)
}

// Run creates a job for a registered workflow and executes it synchronously.
func Run(ctx context.Context, eng Engine, workflowID string, inputs map[string]any) (*Job, error) {
	job, err := eng.CreateJob(ctx, workflowID, "", inputs)
	if err != nil {
		return nil, err
	}
	return eng.ExecuteJob(ctx, job.ID)
}

// GetJob fetches a job by ID.
func GetJob(ctx context.Context, eng Engine, jobID string) (*Job, error) {
	return eng.GetJob(ctx, jobID)
}

// ListJobs lists jobs according to the given options.
func ListJobs(ctx context.Context, eng Engine, opts JobListOptions) ([]*Job, error) {
	return eng.ListJobs(ctx, opts)
}

// Resume resumes a paused job from its in-store state.
func Resume(ctx context.Context, eng Engine, jobID string) (*Job, error) {
	return eng.ResumeJob(ctx, jobID, "")
}

// ResumeFromCheckpoint resumes a paused job from a specific checkpoint.
func ResumeFromCheckpoint(ctx context.Context, eng Engine, jobID, checkpointID string) (*Job, error) {
	return eng.ResumeJob(ctx, jobID, checkpointID)
}

// RecoverStuckJobs delegates to eng.RecoverStuckJobs.
//
// It is typically called on process startup before executing any jobs:
//
//	count, err := maestro.RecoverStuckJobs(ctx, engine)
func RecoverStuckJobs(ctx context.Context, eng Engine) (int, error) {
	return eng.RecoverStuckJobs(ctx)
}
