package store

import (
	"context"
	"sync"
)

// MemoryStore keeps the whole document tree in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]any
}

// NewMemoryStore builds an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{root: make(map[string]any)}
}

// Get returns a deep copy of the value at path.
func (s *MemoryStore) Get(_ context.Context, path string) (any, bool, error) {
	segs, err := SplitPath(path)
	if err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := lookup(s.root, segs)
	if !ok {
		return nil, false, nil
	}
	return cloneValue(v), true, nil
}

// Set replaces the value at path.
func (s *MemoryStore) Set(_ context.Context, path string, value any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	v, err := canonical(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	setIn(s.root, segs, v)
	s.mu.Unlock()
	return nil
}

// Update merges fields into the object at path.
func (s *MemoryStore) Update(_ context.Context, path string, fields map[string]any) error {
	segs, err := SplitPath(path)
	if err != nil {
		return err
	}
	writes, err := fieldWrites(segs, fields)
	if err != nil {
		return err
	}
	s.mu.Lock()
	for _, w := range writes {
		setIn(s.root, w.segs, w.value)
	}
	s.mu.Unlock()
	return nil
}

// Delete removes the value at path.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.Set(ctx, path, nil)
}
