package checkpoint

import (
	"context"
	"sort"
	"sync"

	"github.com/ankala/maestro/pkg/api"
)

// InMemoryStore is a goroutine-safe Store backed by maps. Snapshots are
// stored whole under the lock, so a reader never observes a partial write.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]api.Checkpoint
	seq    map[string]int64 // insertion order tiebreak for equal timestamps
	nextSq int64
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID: make(map[string]api.Checkpoint),
		seq:  make(map[string]int64),
	}
}

// Ensure InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveCheckpoint(ctx context.Context, cp api.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSq++
	s.byID[cp.ID] = cp
	s.seq[cp.ID] = s.nextSq
	return nil
}

func (s *InMemoryStore) GetCheckpoint(ctx context.Context, id string) (api.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.byID[id]
	if !ok {
		return api.Checkpoint{}, api.ErrCheckpointNotFound
	}
	return cp, nil
}

func (s *InMemoryStore) ListCheckpoints(ctx context.Context, jobID string) ([]api.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Checkpoint
	for _, cp := range s.byID {
		if cp.JobID == jobID {
			out = append(out, cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	return out, nil
}

func (s *InMemoryStore) DeleteCheckpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return api.ErrCheckpointNotFound
	}
	delete(s.byID, id)
	delete(s.seq, id)
	return nil
}
