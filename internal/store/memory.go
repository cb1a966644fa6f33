package store

import (
	"slices"
	"sync"
	"time"

	"github.com/felixgeelhaar/stepwise/internal/errors"
	"github.com/felixgeelhaar/stepwise/internal/task"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string][]byte
	ids   []string
	now   func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[string][]byte), now: time.Now}
}

// Save implements PlanStore.
func (s *MemoryStore) Save(plan *task.Plan) (string, error) {
	data, _, err := encode(plan)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewID(s.now())
	s.plans[id] = data
	s.ids = append(s.ids, id)
	return id, nil
}

// Update implements PlanStore.
func (s *MemoryStore) Update(id string, plan *task.Plan) error {
	data, _, err := encode(plan)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[id]; !ok {
		return errors.NewPlanNotFoundError(id)
	}
	s.plans[id] = data
	return nil
}

// Get implements PlanStore. Each call decodes a fresh copy.
func (s *MemoryStore) Get(id string) (*task.Plan, error) {
	s.mu.RLock()
	data, ok := s.plans[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NewPlanNotFoundError(id)
	}
	return decode(id, data)
}

// List implements PlanStore. Ids are returned in reverse insertion order.
func (s *MemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Clone(s.ids)
	slices.Reverse(ids)
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Close implements PlanStore.
func (s *MemoryStore) Close() error {
	return nil
}
