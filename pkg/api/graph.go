package api

import (
	"sort"
	"time"
)

// CompiledStep is a StepSpec with its runner resolved and its position in the
// execution graph fixed.
type CompiledStep struct {
	ID     string
	Runner Runner

	// Needs and Dependents are sorted by step ID.
	Needs      []string
	Dependents []string

	// Level is the index of the execution level this step belongs to.
	Level int

	Timeout         time.Duration
	Retry           *RetryPolicy
	ContinueOnError bool
	Exclusive       string
}

// CompiledGraph is the validated, leveled execution plan derived from a
// WorkflowDefinition. It is immutable after compilation; the same definition
// always compiles to the same graph.
type CompiledGraph struct {
	WorkflowID string
	Version    string

	Steps map[string]*CompiledStep

	// Levels holds step IDs grouped by execution level. Every step appears
	// in exactly one level, strictly after all levels containing its
	// dependencies. IDs within a level are sorted.
	Levels [][]string
}

// TotalSteps returns the number of steps in the graph.
func (g *CompiledGraph) TotalSteps() int {
	return len(g.Steps)
}

// Step returns the compiled step with the given ID.
func (g *CompiledGraph) Step(id string) (*CompiledStep, bool) {
	s, ok := g.Steps[id]
	return s, ok
}

// LevelOf returns the execution level of a step.
func (g *CompiledGraph) LevelOf(id string) (int, bool) {
	s, ok := g.Steps[id]
	if !ok {
		return 0, false
	}
	return s.Level, true
}

// TransitiveDependents returns every step that directly or indirectly depends
// on the given step, sorted by ID. Used to propagate skips when a
// ContinueOnError step fails.
func (g *CompiledGraph) TransitiveDependents(id string) []string {
	seen := make(map[string]bool)
	var walk func(string)
	walk = func(cur string) {
		s, ok := g.Steps[cur]
		if !ok {
			return
		}
		for _, dep := range s.Dependents {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(id)

	out := make([]string, 0, len(seen))
	for dep := range seen {
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}
