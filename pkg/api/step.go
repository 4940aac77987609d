package api

import "context"

// Runner is the uniform interface through which the engine invokes a unit of
// work: an agent call, a validation pass, a rendering step. Implementations
// must honor ctx cancellation for timeouts to take effect.
type Runner interface {
	Run(ctx context.Context, sc StepContext) (any, error)
}

// RunnerFunc adapts a plain function to the Runner interface.
type RunnerFunc func(ctx context.Context, sc StepContext) (any, error)

func (f RunnerFunc) Run(ctx context.Context, sc StepContext) (any, error) {
	return f(ctx, sc)
}

// StepContext is the read-only view of job state handed to a step. Each level
// receives its own snapshot; nothing a step does to the returned maps can be
// observed by a sibling step or by the engine.
type StepContext struct {
	JobID      string
	WorkflowID string

	// StepID is the identifier of the step being invoked.
	StepID string

	inputs  map[string]any
	outputs map[string]any
}

// NewStepContext builds a snapshot view over the given job inputs and the
// accumulated step outputs. Both maps are copied.
func NewStepContext(jobID, workflowID string, inputs, outputs map[string]any) StepContext {
	return StepContext{
		JobID:      jobID,
		WorkflowID: workflowID,
		inputs:     copyMap(inputs),
		outputs:    copyMap(outputs),
	}
}

// WithStep returns a copy of the context scoped to the given step ID.
// The underlying snapshot is shared; it is never written after creation.
func (sc StepContext) WithStep(stepID string) StepContext {
	sc.StepID = stepID
	return sc
}

// Input returns a job input value by key.
func (sc StepContext) Input(key string) (any, bool) {
	v, ok := sc.inputs[key]
	return v, ok
}

// Inputs returns a copy of all job inputs.
func (sc StepContext) Inputs() map[string]any {
	return copyMap(sc.inputs)
}

// Output returns the recorded output of a previously completed step.
// It is only guaranteed to be present for declared dependencies.
func (sc StepContext) Output(stepID string) (any, bool) {
	v, ok := sc.outputs[stepID]
	return v, ok
}

// Outputs returns a copy of all step outputs recorded so far.
func (sc StepContext) Outputs() map[string]any {
	return copyMap(sc.outputs)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
