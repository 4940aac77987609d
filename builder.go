package maestro

import (
	"context"
	"fmt"
	"time"

	"github.com/ankala/maestro/pkg/api"
)

// WorkflowBuilder provides a fluent API for defining workflows:
//
//	def := maestro.NewWorkflow("content-pipeline").
//	    Step("fetch", fetchRunner).
//	    Step("summarize", summarizeRunner, maestro.Needs("fetch")).
//	    Step("publish", publishRunner, maestro.Needs("summarize")).
//	    Build()
//
//	if err := engine.RegisterWorkflow(def); err != nil {
//	    log.Fatal(err)
//	}
type WorkflowBuilder struct {
	def api.WorkflowDefinition
}

// StepOption customizes a single step added through the builder.
type StepOption func(*api.StepSpec)

// NewWorkflow creates a new workflow builder with the given ID.
func NewWorkflow(id string) *WorkflowBuilder {
	return &WorkflowBuilder{
		def: api.WorkflowDefinition{
			ID:    id,
			Steps: make([]api.StepSpec, 0),
		},
	}
}

// ID returns the workflow ID.
func (b *WorkflowBuilder) ID() string {
	return b.def.ID
}

// Version sets the workflow version. Unset versions default to "v1" at
// registration.
func (b *WorkflowBuilder) Version(v string) *WorkflowBuilder {
	b.def.Version = v
	return b
}

// Step appends a step backed by a concrete Runner.
func (b *WorkflowBuilder) Step(id string, r Runner, opts ...StepOption) *WorkflowBuilder {
	if id == "" {
		panic("maestro: step ID must not be empty")
	}
	if r == nil {
		panic(fmt.Sprintf("maestro: step %q has nil runner", id))
	}

	spec := api.StepSpec{ID: id, Runner: r}
	for _, opt := range opts {
		opt(&spec)
	}
	b.def.Steps = append(b.def.Steps, spec)
	return b
}

// StepFunc appends a step backed by a plain function.
func (b *WorkflowBuilder) StepFunc(id string, fn func(ctx context.Context, sc StepContext) (any, error), opts ...StepOption) *WorkflowBuilder {
	if fn == nil {
		panic(fmt.Sprintf("maestro: step %q has nil function", id))
	}
	return b.Step(id, api.RunnerFunc(fn), opts...)
}

// Uses appends a step resolved from the engine's registry by identifier.
func (b *WorkflowBuilder) Uses(id, uses string, config map[string]any, opts ...StepOption) *WorkflowBuilder {
	if id == "" {
		panic("maestro: step ID must not be empty")
	}
	if uses == "" {
		panic(fmt.Sprintf("maestro: step %q has empty uses identifier", id))
	}

	spec := api.StepSpec{ID: id, Uses: uses, Config: config}
	for _, opt := range opts {
		opt(&spec)
	}
	b.def.Steps = append(b.def.Steps, spec)
	return b
}

// Build returns the assembled WorkflowDefinition.
func (b *WorkflowBuilder) Build() WorkflowDefinition {
	return b.def
}

// Register registers the built workflow with the given engine.
func (b *WorkflowBuilder) Register(eng Engine) error {
	return eng.RegisterWorkflow(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *WorkflowBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}

// Needs declares the step's dependencies.
func Needs(ids ...string) StepOption {
	return func(s *api.StepSpec) {
		s.Needs = append(s.Needs, ids...)
	}
}

// WithTimeout bounds each attempt of the step.
func WithTimeout(d time.Duration) StepOption {
	return func(s *api.StepSpec) {
		s.Timeout = d
	}
}

// WithRetry attaches a retry policy to the step.
func WithRetry(policy RetryPolicy) StepOption {
	return func(s *api.StepSpec) {
		// Copy so callers can mutate their policy after the call without
		// affecting the stored definition.
		p := policy
		s.Retry = &p
	}
}

// ContinueOnError lets the step's failure skip its dependents instead of
// failing the whole job.
func ContinueOnError() StepOption {
	return func(s *api.StepSpec) {
		s.ContinueOnError = true
	}
}

// Exclusive serializes the step against same-tag siblings in its level.
func Exclusive(tag string) StepOption {
	return func(s *api.StepSpec) {
		s.Exclusive = tag
	}
}
