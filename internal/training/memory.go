package training

import (
	"context"
	"sync"
)

// MemoryStore keeps units in process memory. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	units map[string]Unit
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{units: map[string]Unit{}}
}

func (s *MemoryStore) Put(_ context.Context, unit Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Unit, error) {
	s.mu.RLock()
	out := make([]Unit, 0, len(s.units))
	for _, unit := range s.units {
		out = append(out, unit)
	}
	s.mu.RUnlock()
	SortUnits(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.units[id]; !ok {
		return false, nil
	}
	delete(s.units, id)
	return true, nil
}
