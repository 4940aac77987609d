package compiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ankala/maestro/pkg/api"
)

func noopRunner() api.Runner {
	return api.RunnerFunc(func(ctx context.Context, sc api.StepContext) (any, error) {
		return nil, nil
	})
}

func step(id string, needs ...string) api.StepSpec {
	return api.StepSpec{ID: id, Runner: noopRunner(), Needs: needs}
}

func def(id string, steps ...api.StepSpec) api.WorkflowDefinition {
	return api.WorkflowDefinition{ID: id, Version: "v1", Steps: steps}
}

// The diamond A -> {B, C} -> D must compile into three levels with B and C
// side by side.
func TestCompile_DiamondLevels(t *testing.T) {
	t.Parallel()

	g, err := Compile(def("diamond",
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b", "c"),
	), nil)
	require.NoError(t, err)

	require.Equal(t, [][]string{{"a"}, {"b", "c"}, {"d"}}, g.Levels)
	require.Equal(t, 4, g.TotalSteps())

	lvl, ok := g.LevelOf("c")
	require.True(t, ok)
	require.Equal(t, 1, lvl)
}

// Every step must land in a level strictly after all levels containing its
// dependencies.
func TestCompile_LevelsRespectDependencies(t *testing.T) {
	t.Parallel()

	g, err := Compile(def("wide",
		step("fetch"),
		step("outline", "fetch"),
		step("images", "fetch"),
		step("draft", "outline"),
		step("review", "draft", "images"),
	), nil)
	require.NoError(t, err)

	for id, st := range g.Steps {
		for _, need := range st.Needs {
			needLvl, ok := g.LevelOf(need)
			require.True(t, ok)
			require.Less(t, needLvl, st.Level, "step %s must run after %s", id, need)
		}
	}
}

// A step with no Needs whose siblings all depend on it still forms its own
// first level; independent roots share level 0.
func TestCompile_IndependentRootsShareLevelZero(t *testing.T) {
	t.Parallel()

	g, err := Compile(def("roots",
		step("a"),
		step("b"),
		step("c", "a", "b"),
	), nil)
	require.NoError(t, err)

	require.Equal(t, [][]string{{"a", "b"}, {"c"}}, g.Levels)
}

// Compilation is deterministic: the same definition always yields the same
// leveling and ordering.
func TestCompile_Deterministic(t *testing.T) {
	t.Parallel()

	d := def("det",
		step("z"),
		step("m", "z"),
		step("a", "z"),
		step("k", "m", "a"),
	)

	first, err := Compile(d, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		g, err := Compile(d, nil)
		require.NoError(t, err)
		require.Equal(t, first.Levels, g.Levels)
	}
	// IDs within a level are sorted.
	require.Equal(t, []string{"a", "m"}, first.Levels[1])
}

func TestCompile_DependentsAreWired(t *testing.T) {
	t.Parallel()

	g, err := Compile(def("deps",
		step("a"),
		step("b", "a"),
		step("c", "a"),
		step("d", "b"),
	), nil)
	require.NoError(t, err)

	a, ok := g.Step("a")
	require.True(t, ok)
	require.Equal(t, []string{"b", "c"}, a.Dependents)

	require.Equal(t, []string{"b", "c", "d"}, g.TransitiveDependents("a"))
	require.Equal(t, []string{"d"}, g.TransitiveDependents("b"))
	require.Empty(t, g.TransitiveDependents("d"))
}

func TestCompile_CycleRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(def("cyclic",
		step("a", "c"),
		step("b", "a"),
		step("c", "b"),
	), nil)
	require.Error(t, err)

	ce, ok := api.AsCycleError(err)
	require.True(t, ok, "expected CycleError, got %v", err)
	require.Equal(t, "cyclic", ce.WorkflowID)
	// The reported path ends where it started.
	require.GreaterOrEqual(t, len(ce.Steps), 2)
	require.Equal(t, ce.Steps[0], ce.Steps[len(ce.Steps)-1])
}

func TestCompile_SelfDependencyRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(def("selfie", step("a", "a")), nil)
	_, ok := api.AsCycleError(err)
	require.True(t, ok, "expected CycleError, got %v", err)
}

func TestCompile_DuplicateStepIDRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(def("dup", step("a"), step("a")), nil)
	require.Error(t, err)

	var ce *api.CompileError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Reason, "duplicate")
}

func TestCompile_UnknownDependencyRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(def("dangling", step("a", "ghost")), nil)
	require.Error(t, err)

	var ce *api.CompileError
	require.ErrorAs(t, err, &ce)
	require.Contains(t, ce.Reason, "ghost")
}

func TestCompile_EmptyWorkflowRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(api.WorkflowDefinition{ID: "empty", Version: "v1"}, nil)
	require.Error(t, err)

	_, err = Compile(def("", step("a")), nil)
	require.Error(t, err)
}

// Steps referencing a registry identifier are resolved at compile time, never
// at run time.
func TestCompile_ResolvesUsesFromRegistry(t *testing.T) {
	t.Parallel()

	reg := api.NewRegistry()
	reg.MustRegister("echo", func(cfg map[string]any) (api.Runner, error) {
		msg := cfg["message"]
		return api.RunnerFunc(func(ctx context.Context, sc api.StepContext) (any, error) {
			return msg, nil
		}), nil
	})

	g, err := Compile(api.WorkflowDefinition{
		ID:      "uses",
		Version: "v1",
		Steps: []api.StepSpec{
			{ID: "hello", Uses: "echo", Config: map[string]any{"message": "hi"}},
		},
	}, reg)
	require.NoError(t, err)

	st, ok := g.Step("hello")
	require.True(t, ok)
	out, err := st.Runner.Run(context.Background(), api.StepContext{})
	require.NoError(t, err)
	require.Equal(t, "hi", out)
}

func TestCompile_UnknownUsesRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(api.WorkflowDefinition{
		ID:      "uses",
		Version: "v1",
		Steps:   []api.StepSpec{{ID: "hello", Uses: "nope"}},
	}, api.NewRegistry())
	require.Error(t, err)

	var ce *api.CompileError
	require.ErrorAs(t, err, &ce)
}

func TestCompile_StepWithoutRunnerOrUsesRejected(t *testing.T) {
	t.Parallel()

	_, err := Compile(api.WorkflowDefinition{
		ID:      "bare",
		Version: "v1",
		Steps:   []api.StepSpec{{ID: "hollow"}},
	}, nil)
	require.Error(t, err)
}

// The compiled graph carries its own copy of each retry policy so callers can
// mutate their definitions afterwards.
func TestCompile_CopiesRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := &api.RetryPolicy{MaxAttempts: 3}
	d := def("retry")
	d.Steps = []api.StepSpec{{ID: "a", Runner: noopRunner(), Retry: policy}}

	g, err := Compile(d, nil)
	require.NoError(t, err)

	policy.MaxAttempts = 99
	st, _ := g.Step("a")
	require.Equal(t, 3, st.Retry.MaxAttempts)
}
