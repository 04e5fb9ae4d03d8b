// Package memory provides an in-memory key-value store for development
// and testing.
package memory

import (
	"context"
	"sync"
)

// Store implements agent.KVStore with a mutex-guarded map.
type Store struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// New constructs a Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Get returns the value for key, or (nil, nil) when absent.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.values[key] = stored
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
