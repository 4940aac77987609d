package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ankala/maestro/pkg/api"
)

const (
	// DefaultMaxRetries is the number of additional save attempts after a
	// failed write before the failure escalates to the caller.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the delay before the first retry; it doubles
	// per attempt.
	DefaultRetryBackoff = 50 * time.Millisecond
)

// Config describes how to construct a Manager. Zero values select the
// defaults above.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
}

// Manager owns a job's checkpoint sequence: it writes snapshots with retry,
// lists them most recent first, restores them against a compiled graph, and
// prunes old ones. Save failures are retried with backoff; a persistent
// failure is returned to the caller to escalate as a warning, never as a
// step or level failure.
type Manager struct {
	store   Store
	retries int
	backoff time.Duration
}

// NewManager creates a Manager over the given store.
func NewManager(store Store, cfg Config) *Manager {
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Manager{store: store, retries: retries, backoff: backoff}
}

// Save writes an all-or-nothing checkpoint of the given snapshot, taken at
// the given level, and returns it. The write is retried with doubling
// backoff; the last error is returned if every attempt fails.
func (m *Manager) Save(ctx context.Context, snap api.Snapshot, level int) (api.Checkpoint, error) {
	now := time.Now()
	if snap.TakenAt.IsZero() {
		snap.TakenAt = now
	}

	cp := api.Checkpoint{
		ID:        uuid.NewString(),
		JobID:     snap.JobID,
		Level:     level,
		CreatedAt: now,
		Snapshot:  snap,
	}

	var lastErr error
	delay := m.backoff
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return api.Checkpoint{}, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if lastErr = m.store.SaveCheckpoint(ctx, cp); lastErr == nil {
			return cp, nil
		}
	}

	return api.Checkpoint{}, fmt.Errorf("save checkpoint for job %s: %w", snap.JobID, lastErr)
}

// List returns a job's checkpoints, most recent first.
func (m *Manager) List(ctx context.Context, jobID string) ([]api.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx, jobID)
}

// Restore loads a snapshot by checkpoint ID. When graph is non-nil, the
// snapshot is verified against it and an error wrapping ErrVersionMismatch
// is returned if the snapshot is structurally incompatible.
func (m *Manager) Restore(ctx context.Context, checkpointID string, graph *api.CompiledGraph) (api.Snapshot, error) {
	cp, err := m.store.GetCheckpoint(ctx, checkpointID)
	if err != nil {
		return api.Snapshot{}, err
	}
	if graph != nil {
		if err := cp.Snapshot.CompatibleWith(graph); err != nil {
			return api.Snapshot{}, err
		}
	}
	return cp.Snapshot, nil
}

// Cleanup deletes all but the keepLast most recent checkpoints of a job,
// oldest first, and reports how many were kept and deleted.
func (m *Manager) Cleanup(ctx context.Context, jobID string, keepLast int) (api.CleanupResult, error) {
	if keepLast < 0 {
		keepLast = 0
	}

	cps, err := m.store.ListCheckpoints(ctx, jobID)
	if err != nil {
		return api.CleanupResult{}, err
	}
	if len(cps) <= keepLast {
		return api.CleanupResult{Kept: len(cps)}, nil
	}

	victims := cps[keepLast:]
	deleted := 0
	// cps is most-recent-first, so walk victims back to front to delete
	// oldest first.
	for i := len(victims) - 1; i >= 0; i-- {
		if err := m.store.DeleteCheckpoint(ctx, victims[i].ID); err != nil {
			return api.CleanupResult{Kept: len(cps) - deleted, Deleted: deleted}, err
		}
		deleted++
	}

	return api.CleanupResult{Kept: keepLast, Deleted: deleted}, nil
}
