package manifest

import (
	"context"
	"sync"
)

// MemoryStore is a Store that keeps the manifest in memory. Set LoadErr or
// SaveErr to simulate storage failures.
type MemoryStore struct {
	mu      sync.Mutex
	parents map[string]string
	saves   int

	LoadErr error
	SaveErr error
}

// NewMemoryStore returns a MemoryStore seeded with parents.
func NewMemoryStore(parents map[string]string) *MemoryStore {
	return &MemoryStore{parents: copyMap(parents)}
}

// Load returns a copy of the stored map.
func (s *MemoryStore) Load(ctx context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.LoadErr != nil {
		return nil, s.LoadErr
	}
	return copyMap(s.parents), nil
}

// Save replaces the stored map.
func (s *MemoryStore) Save(ctx context.Context, parents map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	s.parents = copyMap(parents)
	s.saves++
	return nil
}

// Snapshot returns a copy of the stored map.
func (s *MemoryStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyMap(s.parents)
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
