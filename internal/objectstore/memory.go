package objectstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps objects in process memory. Values are stored serialized
// so callers never share mutable state with the store.
type MemoryStore struct {
	namespace string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(namespace string) *MemoryStore {
	return &MemoryStore{
		namespace: namespace,
		objects:   make(map[string][]byte),
	}
}

// Get returns a copy of the object stored under key
func (s *MemoryStore) Get(ctx context.Context, key string) (Object, error) {
	s.mu.RLock()
	b, ok := s.objects[KeyName(s.namespace, key)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}

	var obj Object
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return obj, nil
}

// Set replaces the object stored under key
func (s *MemoryStore) Set(ctx context.Context, key string, value Object) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[KeyName(s.namespace, key)] = b
	return nil
}

// Delete removes key. Missing keys are ignored.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, KeyName(s.namespace, key))
	return nil
}

// Exists reports whether key is stored
func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[KeyName(s.namespace, key)]
	return ok, nil
}
