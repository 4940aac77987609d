package api

import (
	"fmt"
	"sort"
	"sync"
)

// Factory constructs a runner from step configuration.
type Factory func(cfg map[string]any) (Runner, error)

// Registry is the explicit identifier -> factory table through which step
// implementations are discovered. It is built once at startup and queried by
// the compiler when a StepSpec references a runner by name.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{}}
}

// Register installs a runner factory. Returns an error if the ID already
// exists.
func (r *Registry) Register(id string, factory Factory) error {
	if id == "" {
		return fmt.Errorf("registry: id is required")
	}
	if factory == nil {
		return fmt.Errorf("registry: factory is required for %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("registry: %s already registered", id)
	}
	r.factories[id] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(err)
	}
}

// RegisterFunc installs a fixed RunnerFunc under the given ID, ignoring step
// configuration.
func (r *Registry) RegisterFunc(id string, fn RunnerFunc) error {
	return r.Register(id, func(map[string]any) (Runner, error) {
		return fn, nil
	})
}

// Resolve constructs a runner by ID.
func (r *Registry) Resolve(id string, cfg map[string]any) (Runner, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("registry: unknown runner %s", id)
	}
	return factory(cfg)
}

// IDs returns a sorted list of registered runner identifiers.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
