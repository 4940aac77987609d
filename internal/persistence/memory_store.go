package persistence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ankala/maestro/pkg/api"
)

// InMemoryStore is a goroutine-safe implementation of WorkflowStore and
// JobStore backed by maps. It is the default for tests and non-durable use.
type InMemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]map[string]api.WorkflowDefinition // id -> version -> def
	jobs      map[string]*api.Job
}

// NewInMemoryStore creates a new InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		workflows: make(map[string]map[string]api.WorkflowDefinition),
		jobs:      make(map[string]*api.Job),
	}
}

// Ensure InMemoryStore implements the interfaces.
var _ WorkflowStore = (*InMemoryStore)(nil)

var _ JobStore = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveWorkflow(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.workflows[def.ID]
	if versions == nil {
		versions = make(map[string]api.WorkflowDefinition)
		s.workflows[def.ID] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return fmt.Errorf("workflow %q version %q already registered", def.ID, def.Version)
	}
	versions[def.Version] = def
	return nil
}

func (s *InMemoryStore) GetWorkflow(id, version string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.workflows[id]
	if versions == nil {
		return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
	}
	def, ok := versions[version]
	if !ok {
		return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
	}
	return def, nil
}

func (s *InMemoryStore) GetLatestWorkflow(id string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.workflows[id]
	if len(versions) == 0 {
		return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
	}
	if len(versions) > 1 {
		return api.WorkflowDefinition{}, fmt.Errorf("workflow %q has %d versions, specify one", id, len(versions))
	}
	for _, def := range versions {
		return def, nil
	}
	return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
}

func (s *InMemoryStore) ListWorkflowVersions(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.workflows[id]
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Jobs are stored and returned as deep copies so callers can never share
// mutable map state with the engine, matching the SQLite store's semantics.

func (s *InMemoryStore) SaveJob(job *api.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) UpdateJob(job *api.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; !ok {
		return api.ErrJobNotFound
	}

	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *InMemoryStore) TransitionJob(id string, from, to api.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return api.ErrJobNotFound
	}
	if job.Status != from {
		return fmt.Errorf("%w: job %s is %s, not %s", api.ErrInvalidTransition, id, job.Status, from)
	}
	job.Status = to
	job.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) GetJob(id string) (*api.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, api.ErrJobNotFound
	}

	return cloneJob(job), nil
}

func (s *InMemoryStore) ListJobs(opts api.JobListOptions) ([]*api.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*api.Job

	for _, job := range s.jobs {
		if opts.WorkflowID != "" && job.WorkflowID != opts.WorkflowID {
			continue
		}
		if opts.Status != "" && job.Status != opts.Status {
			continue
		}
		result = append(result, cloneJob(job))
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func cloneJob(job *api.Job) *api.Job {
	cp := *job
	cp.Inputs = cloneMap(job.Inputs)
	cp.Outputs = cloneMap(job.Outputs)
	cp.Completed = cloneMap(job.Completed)
	cp.Skipped = cloneMap(job.Skipped)
	cp.Failed = cloneMap(job.Failed)
	return &cp
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
