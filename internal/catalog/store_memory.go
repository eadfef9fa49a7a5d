package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps models in process memory.
// Data survives across requests but not process restarts.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]*Model
}

// NewMemoryStore creates an empty in-memory model store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*Model)}
}

// Create stores a new model.
func (s *MemoryStore) Create(_ context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	stampCreate(m, time.Now())

	c, err := cloneModel(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, c.ID)
	}
	s.items[c.ID] = c
	return nil
}

// Get retrieves one model by id.
func (s *MemoryStore) Get(_ context.Context, id string) (*Model, error) {
	s.mu.RLock()
	m, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return cloneModel(m)
}

// List returns models ordered by created_at desc, id desc.
func (s *MemoryStore) List(_ context.Context, limit int, after string) ([]*Model, error) {
	limit = normalizeLimit(limit)

	s.mu.RLock()
	all := make([]*Model, 0, len(s.items))
	for _, m := range s.items {
		all = append(all, m)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt == all[j].CreatedAt {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt > all[j].CreatedAt
	})

	start := 0
	if after != "" {
		idx := -1
		for i := range all {
			if all[i].ID == after {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, ErrNotFound
		}
		start = idx + 1
	}

	end := min(start+limit, len(all))
	items := make([]*Model, 0, max(end-start, 0))
	for _, m := range all[min(start, end):end] {
		c, err := cloneModel(m)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, nil
}

// Update replaces an existing model and refreshes its updated_at.
func (s *MemoryStore) Update(_ context.Context, m *Model) error {
	if err := m.Validate(); err != nil {
		return err
	}
	m.UpdatedAt = time.Now().Unix()

	c, err := cloneModel(m)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[c.ID]; !exists {
		return ErrNotFound
	}
	s.items[c.ID] = c
	return nil
}

// Close releases resources (no-op for memory store).
func (s *MemoryStore) Close() error {
	return nil
}
