// Package engine implements the job execution engine: it owns job lifecycle,
// drives compiled graphs level by level through the parallel executor, asks
// the checkpoint manager to persist progress, and announces it on the event
// bus.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ankala/maestro/internal/checkpoint"
	"github.com/ankala/maestro/internal/compiler"
	"github.com/ankala/maestro/internal/eventbus"
	"github.com/ankala/maestro/internal/persistence"
	"github.com/ankala/maestro/pkg/api"
)

// engineImpl is a synchronous, in-process engine implementation. Each job's
// mutable state is owned exclusively by the engine instance executing it.
type engineImpl struct {
	workflows   persistence.WorkflowStore
	jobs        persistence.JobStore
	checkpoints *checkpoint.Manager
	bus         *eventbus.Bus
	observer    api.Observer
	registry    *api.Registry
	executor    *Executor

	mu       sync.Mutex
	graphs   map[string]*api.CompiledGraph // workflowID@version
	controls map[string]*jobControl
}

// jobControl carries the cooperative pause/cancel flags for one job. They are
// observed only at level boundaries.
type jobControl struct {
	pause  atomic.Bool
	cancel atomic.Bool
}

// Config describes how to construct an engine.
// Only used inside this package; external callers use the helper functions.
type Config struct {
	Persistence    persistence.Persistence
	Checkpoints    *checkpoint.Manager
	Bus            *eventbus.Bus
	Observer       api.Observer
	Registry       *api.Registry
	MaxConcurrency int
}

// NewEngineWithConfig creates a new Engine using the given configuration.
func NewEngineWithConfig(cfg Config) api.Engine {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	cpm := cfg.Checkpoints
	if cpm == nil {
		cpm = checkpoint.NewManager(checkpoint.NewInMemoryStore(), checkpoint.Config{})
	}
	bus := cfg.Bus
	if bus == nil {
		bus = eventbus.NewBus(nil)
	}
	return &engineImpl{
		workflows:   cfg.Persistence.Workflows,
		jobs:        cfg.Persistence.Jobs,
		checkpoints: cpm,
		bus:         bus,
		observer:    obs,
		registry:    cfg.Registry,
		executor:    NewExecutor(cfg.MaxConcurrency),
		graphs:      make(map[string]*api.CompiledGraph),
		controls:    make(map[string]*jobControl),
	}
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
func NewInMemoryEngine() api.Engine {
	return NewInMemoryEngineWithObserver(nil)
}

// NewInMemoryEngineWithObserver returns an in-memory Engine with the given
// Observer.
func NewInMemoryEngineWithObserver(obs api.Observer) api.Engine {
	mem := persistence.NewInMemoryStore()
	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows: mem,
			Jobs:      mem,
		},
		Observer: obs,
	})
}

// Options is the general-purpose construction surface exposed through the
// root package.
type Options struct {
	Observer       api.Observer
	Registry       *api.Registry
	MaxConcurrency int
	DB             *sql.DB
}

// New builds an Engine from Options, selecting SQLite persistence when a DB
// is provided and in-memory stores otherwise.
func New(opts Options) (api.Engine, error) {
	if opts.DB == nil {
		mem := persistence.NewInMemoryStore()
		return NewEngineWithConfig(Config{
			Persistence: persistence.Persistence{
				Workflows: mem,
				Jobs:      mem,
			},
			Observer:       opts.Observer,
			Registry:       opts.Registry,
			MaxConcurrency: opts.MaxConcurrency,
		}), nil
	}

	jobs, err := persistence.NewSQLiteJobStore(opts.DB)
	if err != nil {
		return nil, err
	}
	cps, err := checkpoint.NewSQLiteStore(opts.DB)
	if err != nil {
		return nil, err
	}
	log, err := eventbus.NewSQLiteLog(opts.DB)
	if err != nil {
		return nil, err
	}

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Jobs:      jobs,
		},
		Checkpoints:    checkpoint.NewManager(cps, checkpoint.Config{}),
		Bus:            eventbus.NewBus(log),
		Observer:       opts.Observer,
		Registry:       opts.Registry,
		MaxConcurrency: opts.MaxConcurrency,
	}), nil
}

// NewSQLiteEngine returns an Engine that persists jobs, checkpoints and the
// event history in a SQLite database. Workflow definitions are kept
// in-memory.
func NewSQLiteEngine(db *sql.DB) (api.Engine, error) {
	return NewSQLiteEngineWithObserver(db, nil)
}

// NewSQLiteEngineWithObserver returns a SQLite-backed Engine with the given
// Observer.
func NewSQLiteEngineWithObserver(db *sql.DB, obs api.Observer) (api.Engine, error) {
	jobs, err := persistence.NewSQLiteJobStore(db)
	if err != nil {
		return nil, err
	}
	cps, err := checkpoint.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	log, err := eventbus.NewSQLiteLog(db)
	if err != nil {
		return nil, err
	}

	return NewEngineWithConfig(Config{
		Persistence: persistence.Persistence{
			Workflows: persistence.NewInMemoryStore(),
			Jobs:      jobs,
		},
		Checkpoints: checkpoint.NewManager(cps, checkpoint.Config{}),
		Bus:         eventbus.NewBus(log),
		Observer:    obs,
	}), nil
}

func (e *engineImpl) RegisterWorkflow(def api.WorkflowDefinition) error {
	if def.ID == "" {
		return errors.New("workflow ID is required")
	}
	if len(def.Steps) == 0 {
		return errors.New("workflow must have at least one step")
	}
	if def.Version == "" {
		def.Version = "v1"
	}

	// Compile before touching the store: a definition that does not
	// compile leaves the workflow store unmodified.
	graph, err := compiler.Compile(def, e.registry)
	if err != nil {
		return err
	}

	if err := e.workflows.SaveWorkflow(def); err != nil {
		return err
	}

	e.mu.Lock()
	e.graphs[graphKey(def.ID, def.Version)] = graph
	e.mu.Unlock()
	return nil
}

func (e *engineImpl) CreateJob(ctx context.Context, workflowID, version string, inputs map[string]any) (*api.Job, error) {
	def, err := e.lookupWorkflow(workflowID, version)
	if err != nil {
		return nil, err
	}
	if _, err := e.compiled(def); err != nil {
		return nil, err
	}

	now := time.Now()
	job := &api.Job{
		ID:              uuid.NewString(),
		WorkflowID:      def.ID,
		WorkflowVersion: def.Version,
		Status:          api.StatusPending,
		Inputs:          copyAnyMap(inputs),
		Outputs:         make(map[string]any),
		Completed:       make(map[string]bool),
		Skipped:         make(map[string]bool),
		Failed:          make(map[string]string),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := e.jobs.SaveJob(job); err != nil {
		return nil, err
	}

	e.bus.Publish(api.Event{Type: api.EventJobCreated, JobID: job.ID, Level: -1})
	return job, nil
}

func (e *engineImpl) ExecuteJob(ctx context.Context, jobID string) (*api.Job, error) {
	job, err := e.getJob(jobID)
	if err != nil {
		return nil, err
	}

	graph, err := e.graphFor(job)
	if err != nil {
		return nil, err
	}

	// Claim the job with a store-level compare-and-set: of two concurrent
	// ExecuteJob calls, exactly one observes StatusPending.
	if err := e.jobs.TransitionJob(jobID, api.StatusPending, api.StatusRunning); err != nil {
		return nil, err
	}

	e.mu.Lock()
	job.Status = api.StatusRunning
	job.UpdatedAt = time.Now()
	ctl := e.controlLocked(jobID)
	e.mu.Unlock()

	e.observer.OnJobStart(ctx, job)
	e.bus.Publish(api.Event{Type: api.EventJobStarted, JobID: job.ID, Level: -1})

	return e.runLevels(ctx, graph, job, ctl)
}

func (e *engineImpl) PauseJob(ctx context.Context, jobID string) error {
	job, err := e.getJob(jobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if job.Status != api.StatusRunning {
		return fmt.Errorf("%w: cannot pause job %s in status %s",
			api.ErrInvalidTransition, jobID, job.Status)
	}
	e.controlLocked(jobID).pause.Store(true)
	return nil
}

func (e *engineImpl) ResumeJob(ctx context.Context, jobID, checkpointID string) (*api.Job, error) {
	job, err := e.getJob(jobID)
	if err != nil {
		return nil, err
	}

	graph, err := e.graphFor(job)
	if err != nil {
		return nil, err
	}

	if checkpointID != "" {
		snap, err := e.checkpoints.Restore(ctx, checkpointID, graph)
		if err != nil {
			return nil, err
		}
		if snap.JobID != jobID {
			return nil, fmt.Errorf("checkpoint %s belongs to job %s, not %s",
				checkpointID, snap.JobID, jobID)
		}
		applySnapshot(job, snap)
	}

	// Same store-level claim as ExecuteJob: only one resumer wins.
	if err := e.jobs.TransitionJob(jobID, api.StatusPaused, api.StatusRunning); err != nil {
		return nil, err
	}

	e.mu.Lock()
	ctl := e.controlLocked(jobID)
	ctl.pause.Store(false)
	job.Status = api.StatusRunning
	job.UpdatedAt = time.Now()
	e.mu.Unlock()

	// Persist the (possibly rewound) snapshot state under the new status.
	if err := e.jobs.UpdateJob(job); err != nil {
		return nil, err
	}

	e.bus.Publish(api.Event{
		Type:   api.EventJobResumed,
		JobID:  job.ID,
		Level:  job.CurrentLevel,
		Detail: checkpointID,
	})

	return e.runLevels(ctx, graph, job, ctl)
}

func (e *engineImpl) CancelJob(ctx context.Context, jobID string) error {
	job, err := e.getJob(jobID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	switch job.Status {
	case api.StatusRunning:
		// Cooperative: observed at the next level boundary.
		e.controlLocked(jobID).cancel.Store(true)
		e.mu.Unlock()
		return nil
	case api.StatusPaused:
		e.mu.Unlock()
		// Nothing is in flight; cancel immediately.
		e.finishCancelled(ctx, job)
		return nil
	default:
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot cancel job %s in status %s",
			api.ErrInvalidTransition, jobID, job.Status)
	}
}

func (e *engineImpl) GetJob(ctx context.Context, jobID string) (*api.Job, error) {
	return e.getJob(jobID)
}

func (e *engineImpl) GetStatus(ctx context.Context, jobID string) (api.JobStatus, error) {
	job, err := e.getJob(jobID)
	if err != nil {
		return api.JobStatus{}, err
	}
	graph, err := e.graphFor(job)
	if err != nil {
		return api.JobStatus{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return api.JobStatus{
		Status:         job.Status,
		CompletedSteps: len(job.Completed),
		TotalSteps:     graph.TotalSteps(),
		CurrentLevel:   job.CurrentLevel,
	}, nil
}

func (e *engineImpl) ListJobs(ctx context.Context, opts api.JobListOptions) ([]*api.Job, error) {
	return e.jobs.ListJobs(opts)
}

func (e *engineImpl) ListCheckpoints(ctx context.Context, jobID string) ([]api.Checkpoint, error) {
	if _, err := e.getJob(jobID); err != nil {
		return nil, err
	}
	return e.checkpoints.List(ctx, jobID)
}

func (e *engineImpl) CleanupCheckpoints(ctx context.Context, jobID string, keepLast int) (api.CleanupResult, error) {
	if _, err := e.getJob(jobID); err != nil {
		return api.CleanupResult{}, err
	}
	return e.checkpoints.Cleanup(ctx, jobID, keepLast)
}

func (e *engineImpl) Subscribe(filter api.EventFilter) api.Subscription {
	return e.bus.Subscribe(filter)
}

func (e *engineImpl) JobEvents(ctx context.Context, jobID string) ([]api.Event, error) {
	return e.bus.History(ctx, jobID)
}

func (e *engineImpl) RecoverStuckJobs(ctx context.Context) (int, error) {
	stuck, err := e.jobs.ListJobs(api.JobListOptions{Status: api.StatusRunning})
	if err != nil {
		return 0, err
	}

	count := 0
	for _, job := range stuck {
		e.mu.Lock()
		job.Status = api.StatusPaused
		job.UpdatedAt = time.Now()
		delete(e.controls, job.ID)
		e.mu.Unlock()

		if err := e.jobs.UpdateJob(job); err != nil {
			return count, err
		}
		e.bus.Publish(api.Event{
			Type:   api.EventJobPaused,
			JobID:  job.ID,
			Level:  job.CurrentLevel,
			Detail: "recovered after restart",
		})
		count++
	}
	return count, nil
}

// runLevels drives the compiled graph from the job's current level to a
// terminal status, a pause point, or a cancellation. It is the only writer
// of the job's status and output map.
func (e *engineImpl) runLevels(ctx context.Context, graph *api.CompiledGraph, job *api.Job, ctl *jobControl) (*api.Job, error) {
	for lvl := job.CurrentLevel; lvl < len(graph.Levels); lvl++ {
		if err := ctx.Err(); err != nil {
			return e.finishFailed(ctx, job, err), err
		}
		if ctl.cancel.Load() {
			e.finishCancelled(ctx, job)
			return job, nil
		}
		if ctl.pause.Load() {
			e.setStatus(job, api.StatusPaused)
			e.bus.Publish(api.Event{Type: api.EventJobPaused, JobID: job.ID, Level: lvl})
			return job, nil
		}

		e.bus.Publish(api.Event{Type: api.EventLevelStarted, JobID: job.ID, Level: lvl})

		var dispatch []*api.CompiledStep
		for _, id := range graph.Levels[lvl] {
			if job.Completed[id] || job.Skipped[id] {
				continue
			}
			if _, failed := job.Failed[id]; failed {
				continue
			}
			dispatch = append(dispatch, graph.Steps[id])
		}

		view := api.NewStepContext(job.ID, job.WorkflowID, job.Inputs, job.Outputs)
		results := e.executor.ExecuteLevel(ctx, dispatch, view, Hooks{
			OnStepStart: func(stepID string, attempt int) {
				e.observer.OnStepStart(ctx, job, stepID, attempt)
				if attempt == 1 {
					e.bus.Publish(api.Event{
						Type:   api.EventStepStarted,
						JobID:  job.ID,
						StepID: stepID,
						Level:  lvl,
					})
				}
			},
			OnStepDone: func(res api.StepResult) {
				e.observer.OnStepCompleted(ctx, job, res)
				ev := api.Event{
					Type:   api.EventStepCompleted,
					JobID:  job.ID,
					StepID: res.StepID,
					Level:  lvl,
				}
				if res.Err != nil {
					ev.Type = api.EventStepFailed
					ev.Detail = res.Err.Error()
				}
				e.bus.Publish(ev)
			},
		})

		// Merge results in deterministic level order; the executor's map
		// is ours alone, so there are no write races to resolve.
		var fatal error
		for _, id := range graph.Levels[lvl] {
			res, ok := results[id]
			if !ok {
				continue
			}
			if res.Status == api.StepSucceeded {
				job.Outputs[id] = res.Output
				job.Completed[id] = true
				continue
			}

			job.Failed[id] = res.Err.Error()
			step := graph.Steps[id]
			if step.ContinueOnError {
				e.skipDependents(graph, job, id, lvl)
			} else if fatal == nil {
				fatal = fmt.Errorf("step %s: %w", id, res.Err)
			}
		}

		e.mu.Lock()
		job.CurrentLevel = lvl + 1
		job.UpdatedAt = time.Now()
		e.mu.Unlock()
		if err := e.jobs.UpdateJob(job); err != nil {
			return e.finishFailed(ctx, job, err), err
		}

		e.saveCheckpoint(ctx, job, lvl)
		e.observer.OnLevelCompleted(ctx, job, lvl)
		e.bus.Publish(api.Event{Type: api.EventLevelCompleted, JobID: job.ID, Level: lvl})

		if fatal != nil {
			return e.finishFailed(ctx, job, fatal), fatal
		}
	}

	e.setStatus(job, api.StatusCompleted)
	e.observer.OnJobCompleted(ctx, job)
	e.bus.Publish(api.Event{Type: api.EventJobCompleted, JobID: job.ID, Level: len(graph.Levels)})
	return job, nil
}

// skipDependents marks every transitive dependent of a failed
// continue-on-error step as skipped. Dependents always live in later levels,
// so they are filtered out before dispatch.
func (e *engineImpl) skipDependents(graph *api.CompiledGraph, job *api.Job, failedID string, lvl int) {
	for _, dep := range graph.TransitiveDependents(failedID) {
		if job.Skipped[dep] {
			continue
		}
		job.Skipped[dep] = true
		e.bus.Publish(api.Event{
			Type:   api.EventStepSkipped,
			JobID:  job.ID,
			StepID: dep,
			Level:  lvl,
			Detail: "dependency " + failedID + " failed",
		})
	}
}

// saveCheckpoint persists the job's current state. A persistent write
// failure escalates to a warning event; it never fails the step or level
// that triggered it, so a completed step's output is not lost silently.
func (e *engineImpl) saveCheckpoint(ctx context.Context, job *api.Job, level int) {
	cp, err := e.checkpoints.Save(ctx, snapshotOf(job), level)
	if err != nil {
		e.bus.Publish(api.Event{
			Type:   api.EventCheckpointWarning,
			JobID:  job.ID,
			Level:  level,
			Detail: err.Error(),
		})
		return
	}
	e.bus.Publish(api.Event{
		Type:   api.EventCheckpointSaved,
		JobID:  job.ID,
		Level:  level,
		Detail: cp.ID,
	})
}

func (e *engineImpl) finishFailed(ctx context.Context, job *api.Job, err error) *api.Job {
	e.mu.Lock()
	job.Err = err
	e.mu.Unlock()

	e.setStatus(job, api.StatusFailed)
	e.observer.OnJobFailed(ctx, job, err)
	e.bus.Publish(api.Event{
		Type:   api.EventJobFailed,
		JobID:  job.ID,
		Level:  job.CurrentLevel,
		Detail: err.Error(),
	})
	return job
}

func (e *engineImpl) finishCancelled(ctx context.Context, job *api.Job) {
	// Flush a final checkpoint so completed work survives the abandon.
	// A job cancelled before its first level finished has nothing to flush.
	if job.CurrentLevel > 0 {
		e.saveCheckpoint(ctx, job, job.CurrentLevel-1)
	}
	e.setStatus(job, api.StatusCancelled)
	e.bus.Publish(api.Event{
		Type:  api.EventJobCancelled,
		JobID: job.ID,
		Level: job.CurrentLevel,
	})
}

// setStatus transitions the job and persists it. Terminal transitions also
// drop the job's control flags.
func (e *engineImpl) setStatus(job *api.Job, status api.Status) {
	e.mu.Lock()
	job.Status = status
	job.UpdatedAt = time.Now()
	if status.Terminal() {
		delete(e.controls, job.ID)
	}
	e.mu.Unlock()

	_ = e.jobs.UpdateJob(job)
}

func (e *engineImpl) getJob(jobID string) (*api.Job, error) {
	job, err := e.jobs.GetJob(jobID)
	if err != nil {
		if errors.Is(err, api.ErrJobNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrJobNotFound, jobID)
		}
		return nil, err
	}
	return job, nil
}

func (e *engineImpl) lookupWorkflow(workflowID, version string) (api.WorkflowDefinition, error) {
	var def api.WorkflowDefinition
	var err error
	if version == "" {
		def, err = e.workflows.GetLatestWorkflow(workflowID)
	} else {
		def, err = e.workflows.GetWorkflow(workflowID, version)
	}
	if err != nil {
		if errors.Is(err, api.ErrWorkflowNotFound) {
			return api.WorkflowDefinition{}, fmt.Errorf("%w: %s", api.ErrWorkflowNotFound, workflowID)
		}
		return api.WorkflowDefinition{}, err
	}
	return def, nil
}

// compiled returns the cached graph for a definition, compiling on first use.
func (e *engineImpl) compiled(def api.WorkflowDefinition) (*api.CompiledGraph, error) {
	key := graphKey(def.ID, def.Version)

	e.mu.Lock()
	graph, ok := e.graphs[key]
	e.mu.Unlock()
	if ok {
		return graph, nil
	}

	graph, err := compiler.Compile(def, e.registry)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.graphs[key] = graph
	e.mu.Unlock()
	return graph, nil
}

func (e *engineImpl) graphFor(job *api.Job) (*api.CompiledGraph, error) {
	def, err := e.lookupWorkflow(job.WorkflowID, job.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	return e.compiled(def)
}

// controlLocked returns the job's control flags, creating them if needed.
// Caller must hold e.mu.
func (e *engineImpl) controlLocked(jobID string) *jobControl {
	ctl, ok := e.controls[jobID]
	if !ok {
		ctl = &jobControl{}
		e.controls[jobID] = ctl
	}
	return ctl
}

func graphKey(id, version string) string {
	return id + "@" + version
}

func snapshotOf(job *api.Job) api.Snapshot {
	return api.Snapshot{
		JobID:           job.ID,
		WorkflowID:      job.WorkflowID,
		WorkflowVersion: job.WorkflowVersion,
		NextLevel:       job.CurrentLevel,
		Completed:       copyBoolMap(job.Completed),
		Skipped:         copyBoolMap(job.Skipped),
		Failed:          copyStringMap(job.Failed),
		Outputs:         copyAnyMap(job.Outputs),
	}
}

func applySnapshot(job *api.Job, snap api.Snapshot) {
	job.CurrentLevel = snap.NextLevel
	job.Completed = copyBoolMap(snap.Completed)
	job.Skipped = copyBoolMap(snap.Skipped)
	job.Failed = copyStringMap(snap.Failed)
	job.Outputs = copyAnyMap(snap.Outputs)
}

func copyAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
