package api

import (
	"fmt"
	"time"
)

// Snapshot is the full, restorable state of a job at a level boundary.
type Snapshot struct {
	JobID           string
	WorkflowID      string
	WorkflowVersion string

	// NextLevel is the index of the first level not yet executed.
	NextLevel int

	Completed map[string]bool
	Skipped   map[string]bool
	Failed    map[string]string
	Outputs   map[string]any

	TakenAt time.Time
}

// CompatibleWith verifies that the snapshot can be replayed against the given
// compiled graph. It returns an error wrapping ErrVersionMismatch when the
// snapshot references steps or levels the graph no longer has.
func (s Snapshot) CompatibleWith(g *CompiledGraph) error {
	if s.NextLevel > len(g.Levels) {
		return fmt.Errorf("%w: snapshot level %d exceeds graph levels %d",
			ErrVersionMismatch, s.NextLevel, len(g.Levels))
	}
	for id := range s.Completed {
		if _, ok := g.Steps[id]; !ok {
			return fmt.Errorf("%w: completed step %q not in graph", ErrVersionMismatch, id)
		}
	}
	for id := range s.Skipped {
		if _, ok := g.Steps[id]; !ok {
			return fmt.Errorf("%w: skipped step %q not in graph", ErrVersionMismatch, id)
		}
	}
	for id := range s.Failed {
		if _, ok := g.Steps[id]; !ok {
			return fmt.Errorf("%w: failed step %q not in graph", ErrVersionMismatch, id)
		}
	}
	return nil
}

// Checkpoint is an immutable, durably stored snapshot. Checkpoints for a job
// are ordered by creation time and only ever superseded or pruned, never
// mutated.
type Checkpoint struct {
	ID    string
	JobID string

	// Level is the index of the level after which the checkpoint was taken.
	Level int

	CreatedAt time.Time
	Snapshot  Snapshot
}

// CleanupResult reports how many checkpoints a cleanup pass kept and deleted.
type CleanupResult struct {
	Kept    int
	Deleted int
}
