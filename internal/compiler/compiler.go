// Package compiler turns workflow definitions into validated, leveled
// execution graphs. Compilation is pure: the same definition always compiles
// to the same graph, and a failed compile never yields a partial one.
package compiler

import (
	"fmt"
	"sort"

	"github.com/ankala/maestro/pkg/api"
)

// Compile validates the definition and produces its execution graph. Runner
// references (StepSpec.Uses) are resolved against reg once, here, not at run
// time; reg may be nil when every step carries a Runner directly.
func Compile(def api.WorkflowDefinition, reg *api.Registry) (*api.CompiledGraph, error) {
	if def.ID == "" {
		return nil, &api.CompileError{WorkflowID: def.ID, Reason: "workflow ID is required"}
	}
	if len(def.Steps) == 0 {
		return nil, &api.CompileError{WorkflowID: def.ID, Reason: "workflow must have at least one step"}
	}

	specs := make(map[string]api.StepSpec, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			return nil, &api.CompileError{WorkflowID: def.ID, Reason: "step ID is required"}
		}
		if _, dup := specs[s.ID]; dup {
			return nil, &api.CompileError{
				WorkflowID: def.ID,
				Reason:     fmt.Sprintf("duplicate step ID %q", s.ID),
			}
		}
		specs[s.ID] = s
	}

	for _, s := range def.Steps {
		for _, need := range s.Needs {
			if _, ok := specs[need]; !ok {
				return nil, &api.CompileError{
					WorkflowID: def.ID,
					Reason:     fmt.Sprintf("step %q depends on unknown step %q", s.ID, need),
				}
			}
		}
	}

	if cycle := findCycle(specs); cycle != nil {
		return nil, &api.CycleError{WorkflowID: def.ID, Steps: cycle}
	}

	levels := computeLevels(specs)

	steps := make(map[string]*api.CompiledStep, len(specs))
	for level, ids := range levels {
		for _, id := range ids {
			spec := specs[id]
			runner := spec.Runner
			if runner == nil {
				if spec.Uses == "" {
					return nil, &api.CompileError{
						WorkflowID: def.ID,
						Reason:     fmt.Sprintf("step %q has neither a runner nor a registry reference", id),
					}
				}
				if reg == nil {
					return nil, &api.CompileError{
						WorkflowID: def.ID,
						Reason:     fmt.Sprintf("step %q references runner %q but no registry is configured", id, spec.Uses),
					}
				}
				r, err := reg.Resolve(spec.Uses, spec.Config)
				if err != nil {
					return nil, &api.CompileError{
						WorkflowID: def.ID,
						Reason:     fmt.Sprintf("step %q: %v", id, err),
					}
				}
				runner = r
			}

			needs := append([]string(nil), spec.Needs...)
			sort.Strings(needs)

			steps[id] = &api.CompiledStep{
				ID:              id,
				Runner:          runner,
				Needs:           needs,
				Level:           level,
				Timeout:         spec.Timeout,
				Retry:           copyRetry(spec.Retry),
				ContinueOnError: spec.ContinueOnError,
				Exclusive:       spec.Exclusive,
			}
		}
	}

	for _, s := range steps {
		for _, need := range s.Needs {
			steps[need].Dependents = append(steps[need].Dependents, s.ID)
		}
	}
	for _, s := range steps {
		sort.Strings(s.Dependents)
	}

	return &api.CompiledGraph{
		WorkflowID: def.ID,
		Version:    def.Version,
		Steps:      steps,
		Levels:     levels,
	}, nil
}

// findCycle runs a depth-first traversal over the dependency edges and
// returns the step IDs along the first cycle found, ending where it started.
// Returns nil for acyclic graphs. Traversal order is sorted by step ID so the
// reported cycle is stable across runs.
func findCycle(specs map[string]api.StepSpec) []string {
	const (
		white = iota // unvisited
		grey         // on the current DFS stack
		black        // fully explored
	)

	color := make(map[string]int, len(specs))
	var stack []string

	ids := make([]string, 0, len(specs))
	for id := range specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = grey
		stack = append(stack, id)

		needs := append([]string(nil), specs[id].Needs...)
		sort.Strings(needs)
		for _, need := range needs {
			switch color[need] {
			case grey:
				// Slice the stack from the first occurrence of the
				// back-edge target to close the cycle.
				for i, s := range stack {
					if s == need {
						cycle := append([]string(nil), stack[i:]...)
						return append(cycle, need)
					}
				}
			case white:
				if cycle := visit(need); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// computeLevels performs a layered topological sort: each pass extracts every
// step whose dependencies are all assigned to an earlier level. Ties within a
// level are ordered by step ID. Must be called on an acyclic spec set.
func computeLevels(specs map[string]api.StepSpec) [][]string {
	assigned := make(map[string]bool, len(specs))
	var levels [][]string

	for len(assigned) < len(specs) {
		var level []string
		for id, spec := range specs {
			if assigned[id] {
				continue
			}
			ready := true
			for _, need := range spec.Needs {
				if !assigned[need] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			}
		}
		sort.Strings(level)
		for _, id := range level {
			assigned[id] = true
		}
		levels = append(levels, level)
	}

	return levels
}

func copyRetry(r *api.RetryPolicy) *api.RetryPolicy {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}
