package maestro

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, sc StepContext) (any, error) { return nil, nil }

func TestWorkflowBuilder_BuildsDefinition(t *testing.T) {
	t.Parallel()

	def := NewWorkflow("content-pipeline").
		Version("v2").
		Step("fetch", RunnerFunc(noop)).
		StepFunc("outline", noop, Needs("fetch"), WithTimeout(30*time.Second)).
		Uses("draft", "llm.draft", map[string]any{"model": "large"},
			Needs("outline"),
			WithRetry(Retry(3).WithConstantBackoff(time.Second).Policy()),
			ContinueOnError(),
			Exclusive("llm"),
		).
		Build()

	require.Equal(t, "content-pipeline", def.ID)
	require.Equal(t, "v2", def.Version)
	require.Len(t, def.Steps, 3)

	require.Equal(t, "fetch", def.Steps[0].ID)
	require.NotNil(t, def.Steps[0].Runner)
	require.Empty(t, def.Steps[0].Needs)

	outline := def.Steps[1]
	require.Equal(t, []string{"fetch"}, outline.Needs)
	require.Equal(t, 30*time.Second, outline.Timeout)

	draft := def.Steps[2]
	require.Equal(t, "llm.draft", draft.Uses)
	require.Nil(t, draft.Runner)
	require.Equal(t, "large", draft.Config["model"])
	require.Equal(t, []string{"outline"}, draft.Needs)
	require.NotNil(t, draft.Retry)
	require.Equal(t, 3, draft.Retry.MaxAttempts)
	require.True(t, draft.ContinueOnError)
	require.Equal(t, "llm", draft.Exclusive)
}

// WithRetry stores its own copy of the policy.
func TestWorkflowBuilder_RetryPolicyIsCopied(t *testing.T) {
	t.Parallel()

	policy := Retry(2).Policy()
	def := NewWorkflow("wf").
		Step("a", RunnerFunc(noop), WithRetry(policy)).
		Build()

	policy.MaxAttempts = 99
	require.Equal(t, 2, def.Steps[0].Retry.MaxAttempts)
}

func TestWorkflowBuilder_PanicsOnInvalidSteps(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewWorkflow("wf").Step("", RunnerFunc(noop)) })
	require.Panics(t, func() { NewWorkflow("wf").Step("a", nil) })
	require.Panics(t, func() { NewWorkflow("wf").StepFunc("a", nil) })
	require.Panics(t, func() { NewWorkflow("wf").Uses("a", "", nil) })
}

func TestWorkflowBuilder_RegisterAndRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	eng := NewInMemoryEngine()
	NewWorkflow("greet").
		StepFunc("hello", func(ctx context.Context, sc StepContext) (any, error) {
			name, _ := sc.Input("name")
			return "hello " + name.(string), nil
		}).
		StepFunc("shout", func(ctx context.Context, sc StepContext) (any, error) {
			greeting, _ := sc.Output("hello")
			return greeting.(string) + "!", nil
		}, Needs("hello")).
		MustRegister(eng)

	job, err := Run(ctx, eng, "greet", map[string]any{"name": "world"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, job.Status)
	require.Equal(t, "hello world!", job.Outputs["shout"])
}
