package directory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a Store backed by a map.
type MemoryStore struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
	now       func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints: make(map[string]Endpoint),
		now:       time.Now,
	}
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Endpoint, 0, len(s.endpoints))
	for _, e := range s.endpoints {
		if f.Match(e) {
			out = append(out, clone(e))
		}
	}
	sortEndpoints(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.endpoints[id]
	if !ok {
		return Endpoint{}, ErrNotFound
	}
	return clone(e), nil
}

func (s *MemoryStore) Put(_ context.Context, e Endpoint) (Endpoint, error) {
	if err := e.Validate(); err != nil {
		return Endpoint{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	if prev, ok := s.endpoints[e.ID]; ok {
		e.CreatedAt = prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e = clone(e)
	s.endpoints[e.ID] = e
	return clone(e), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.endpoints[id]; !ok {
		return ErrNotFound
	}
	delete(s.endpoints, id)
	return nil
}

// Len returns the number of stored endpoints.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.endpoints)
}

func clone(e Endpoint) Endpoint {
	e.Tags = slices.Clone(e.Tags)
	return e
}
