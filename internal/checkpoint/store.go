// Package checkpoint persists and restores job state snapshots. Each job has
// its own append-only, timestamp-ordered sequence of checkpoints; a snapshot
// is either fully present and restorable or not observable at all.
package checkpoint

import (
	"context"
	"encoding/gob"

	"github.com/ankala/maestro/pkg/api"
)

func init() {
	// Snapshots travel through the interface-valued gob codec.
	gob.Register(api.Snapshot{})
}

// Store is the storage contract beneath the Manager. ListCheckpoints returns
// checkpoints most recent first; implementations must make SaveCheckpoint
// all-or-nothing so a partially written snapshot is never listable.
type Store interface {
	SaveCheckpoint(ctx context.Context, cp api.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (api.Checkpoint, error)
	ListCheckpoints(ctx context.Context, jobID string) ([]api.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, id string) error
}
