package resourceadapter

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrNotRegistered is returned when no adapter is registered under a name
var ErrNotRegistered = errors.New("resource adapter not registered")

// Factory creates an adapter instance
type Factory func() (Adapter, error)

// Registry maps adapter names to factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// New instantiates the adapter registered under name
func (r *Registry) New(name string) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: [%s], registered adapters: [%s]", ErrNotRegistered, name, strings.Join(r.Names(), ", "))
	}

	adapter, err := factory()
	if err != nil {
		return nil, fmt.Errorf("unable to create resource adapter [%s]: %w", name, err)
	}
	return adapter, nil
}

// Names lists registered adapter names in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
