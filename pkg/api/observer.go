package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the job engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay job execution.
type Observer interface {
	// OnJobStart is called once when a job begins executing, before the
	// first level is dispatched.
	OnJobStart(ctx context.Context, job *Job)

	// OnJobCompleted is called when a job successfully reaches
	// StatusCompleted.
	OnJobCompleted(ctx context.Context, job *Job)

	// OnJobFailed is called when a job transitions to StatusFailed.
	OnJobFailed(ctx context.Context, job *Job, err error)

	// OnLevelCompleted is called after the executor returns a level's
	// results and they have been merged into the job.
	OnLevelCompleted(ctx context.Context, job *Job, level int)

	// OnStepStart is called before each attempt of a step function.
	OnStepStart(ctx context.Context, job *Job, stepID string, attempt int)

	// OnStepCompleted is called once per step with its final result, for
	// both successes and failures.
	OnStepCompleted(ctx context.Context, job *Job, res StepResult)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnJobStart(ctx context.Context, job *Job)                          {}
func (NoopObserver) OnJobCompleted(ctx context.Context, job *Job)                      {}
func (NoopObserver) OnJobFailed(ctx context.Context, job *Job, err error)              {}
func (NoopObserver) OnLevelCompleted(ctx context.Context, job *Job, level int)         {}
func (NoopObserver) OnStepStart(ctx context.Context, job *Job, stepID string, att int) {}
func (NoopObserver) OnStepCompleted(ctx context.Context, job *Job, res StepResult)     {}

// CompositeObserver fans out callbacks to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards callbacks to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnJobStart(ctx context.Context, job *Job) {
	for _, o := range c.observers {
		o.OnJobStart(ctx, job)
	}
}

func (c *CompositeObserver) OnJobCompleted(ctx context.Context, job *Job) {
	for _, o := range c.observers {
		o.OnJobCompleted(ctx, job)
	}
}

func (c *CompositeObserver) OnJobFailed(ctx context.Context, job *Job, err error) {
	for _, o := range c.observers {
		o.OnJobFailed(ctx, job, err)
	}
}

func (c *CompositeObserver) OnLevelCompleted(ctx context.Context, job *Job, level int) {
	for _, o := range c.observers {
		o.OnLevelCompleted(ctx, job, level)
	}
}

func (c *CompositeObserver) OnStepStart(ctx context.Context, job *Job, stepID string, attempt int) {
	for _, o := range c.observers {
		o.OnStepStart(ctx, job, stepID, attempt)
	}
}

func (c *CompositeObserver) OnStepCompleted(ctx context.Context, job *Job, res StepResult) {
	for _, o := range c.observers {
		o.OnStepCompleted(ctx, job, res)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs job / step lifecycle
// events using the provided slog.Logger. If logger is nil, slog.Default()
// is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnJobStart(ctx context.Context, job *Job) {
	o.Logger.InfoContext(ctx, "job_start",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
	)
}

func (o *LoggingObserver) OnJobCompleted(ctx context.Context, job *Job) {
	o.Logger.InfoContext(ctx, "job_completed",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
	)
}

func (o *LoggingObserver) OnJobFailed(ctx context.Context, job *Job, err error) {
	o.Logger.ErrorContext(ctx, "job_failed",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnLevelCompleted(ctx context.Context, job *Job, level int) {
	o.Logger.DebugContext(ctx, "level_completed",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
		slog.Int("level", level),
	)
}

func (o *LoggingObserver) OnStepStart(ctx context.Context, job *Job, stepID string, attempt int) {
	o.Logger.DebugContext(ctx, "step_start",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
		slog.String("step", stepID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingObserver) OnStepCompleted(ctx context.Context, job *Job, res StepResult) {
	level := slog.LevelDebug
	if res.Err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "step_completed",
		slog.String("workflow", job.WorkflowID),
		slog.String("job_id", job.ID),
		slog.String("step", res.StepID),
		slog.String("status", string(res.Status)),
		slog.Int("attempts", res.Attempts),
		slog.Duration("duration", res.Duration),
		slog.Any("error", res.Err),
	)
}

// BasicMetrics collects simple counters and aggregate step durations.
// It implements Observer, and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	jobsStarted       atomic.Int64
	jobsCompleted     atomic.Int64
	jobsFailed        atomic.Int64
	stepsCompleted    atomic.Int64
	totalStepDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	JobsStarted   int64
	JobsCompleted int64
	JobsFailed    int64
	ActiveJobs    int64

	StepsCompleted  int64
	AvgStepDuration time.Duration
}

func (m *BasicMetrics) OnJobStart(ctx context.Context, job *Job) {
	m.jobsStarted.Add(1)
}

func (m *BasicMetrics) OnJobCompleted(ctx context.Context, job *Job) {
	m.jobsCompleted.Add(1)
}

func (m *BasicMetrics) OnJobFailed(ctx context.Context, job *Job, err error) {
	m.jobsFailed.Add(1)
}

func (m *BasicMetrics) OnStepCompleted(ctx context.Context, job *Job, res StepResult) {
	// Only count successful steps for average duration.
	if res.Err == nil {
		m.stepsCompleted.Add(1)
		m.totalStepDuration.Add(res.Duration.Nanoseconds())
	}
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.jobsStarted.Load()
	completed := m.jobsCompleted.Load()
	failed := m.jobsFailed.Load()
	steps := m.stepsCompleted.Load()
	totalNs := m.totalStepDuration.Load()

	var avg time.Duration
	if steps > 0 {
		avg = time.Duration(totalNs / steps)
	}

	return BasicMetricsSnapshot{
		JobsStarted:     started,
		JobsCompleted:   completed,
		JobsFailed:      failed,
		ActiveJobs:      started - completed - failed,
		StepsCompleted:  steps,
		AvgStepDuration: avg,
	}
}
