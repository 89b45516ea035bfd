package repository

import (
	"context"
	"slices"
	"sync"
)

// MemoryKV is a process-local KV. State is lost on restart.
type MemoryKV struct {
	mu      sync.RWMutex
	entries map[int64]map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{entries: make(map[int64]map[string][]byte)}
}

func (s *MemoryKV) Get(_ context.Context, owner int64, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.entries[owner][key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(value), true, nil
}

func (s *MemoryKV) Put(_ context.Context, owner int64, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries[owner] == nil {
		s.entries[owner] = make(map[string][]byte)
	}
	s.entries[owner][key] = slices.Clone(value)
	return nil
}

func (s *MemoryKV) Delete(_ context.Context, owner int64, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.entries[owner], key)
	}
	return nil
}

func (s *MemoryKV) Close() error {
	return nil
}
