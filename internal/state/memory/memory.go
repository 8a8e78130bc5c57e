package memory

import (
	"context"
	"sync"
)

// Store is a mutex-guarded in-memory state store. It backs tests and the
// default backend when no database path is configured.
type Store struct {
	mu     sync.Mutex
	values map[string]string

	// FailSet and FailDelete, when non-nil, are returned by the matching
	// method. Lets tests exercise persistence failure paths.
	FailSet    error
	FailDelete error
}

func New() *Store {
	return &Store{values: make(map[string]string)}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSet != nil {
		return s.FailSet
	}
	s.values[key] = value
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailDelete != nil {
		return s.FailDelete
	}
	delete(s.values, key)
	return nil
}
