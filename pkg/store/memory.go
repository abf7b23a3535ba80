package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements an in-memory scenario store. It is safe for
// concurrent use by multiple goroutines.
//
// Each model owns an independent slot with its own lock, so a write for one
// model never blocks reads of another. Within a slot, entries are kept most
// recent first and bounded by the retention count. For deployments that must
// survive restarts, use RedisStore instead.
type MemoryStore struct {
	mu        sync.RWMutex
	slots     map[string]*modelSlot
	retention int
}

type modelSlot struct {
	mu      sync.RWMutex
	entries []Entry // most recent first
}

// NewMemoryStore creates an in-memory store retaining the last `retention`
// issue times per model. Retention must be positive.
func NewMemoryStore(retention int) *MemoryStore {
	if retention <= 0 {
		panic("retention must be positive")
	}
	return &MemoryStore{
		slots:     make(map[string]*modelSlot),
		retention: retention,
	}
}

func (s *MemoryStore) slot(model string, create bool) *modelSlot {
	s.mu.RLock()
	slot, ok := s.slots[model]
	s.mu.RUnlock()
	if ok || !create {
		return slot
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if slot, ok = s.slots[model]; ok {
		return slot
	}
	slot = &modelSlot{}
	s.slots[model] = slot
	return slot
}

// Put stores an entry for the entry's model, replacing any entry with the
// same issue time and evicting the oldest entry when retention is exceeded.
func (s *MemoryStore) Put(ctx context.Context, e Entry) error {
	if e.Model == "" {
		return fmt.Errorf("entry model cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	slot := s.slot(e.Model, true)
	slot.mu.Lock()
	defer slot.mu.Unlock()

	for i := range slot.entries {
		if slot.entries[i].Issue.Equal(e.Issue) {
			slot.entries[i] = e
			return nil
		}
	}

	slot.entries = append(slot.entries, e)
	sort.Slice(slot.entries, func(i, j int) bool {
		return slot.entries[i].Issue.After(slot.entries[j].Issue)
	})
	if len(slot.entries) > s.retention {
		slot.entries = slot.entries[:s.retention]
	}
	return nil
}

// Get retrieves the entry for an exact (model, issue) pair.
func (s *MemoryStore) Get(ctx context.Context, model string, issue time.Time) (Entry, bool, error) {
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	default:
	}

	slot := s.slot(model, false)
	if slot == nil {
		return Entry{}, false, nil
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()
	for _, e := range slot.entries {
		if e.Issue.Equal(issue) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// GetLatest retrieves the most recent entry for a model.
func (s *MemoryStore) GetLatest(ctx context.Context, model string) (Entry, bool, error) {
	select {
	case <-ctx.Done():
		return Entry{}, false, ctx.Err()
	default:
	}

	slot := s.slot(model, false)
	if slot == nil {
		return Entry{}, false, nil
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()
	if len(slot.entries) == 0 {
		return Entry{}, false, nil
	}
	return slot.entries[0], true, nil
}

// IssueTimes lists retained issue times for a model, most recent first.
func (s *MemoryStore) IssueTimes(ctx context.Context, model string) ([]time.Time, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	slot := s.slot(model, false)
	if slot == nil {
		return nil, nil
	}

	slot.mu.RLock()
	defer slot.mu.RUnlock()
	issues := make([]time.Time, len(slot.entries))
	for i, e := range slot.entries {
		issues[i] = e.Issue
	}
	return issues, nil
}

// Len returns the number of entries stored across all models.
// This method is primarily useful for testing and metrics.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, slot := range s.slots {
		slot.mu.RLock()
		n += len(slot.entries)
		slot.mu.RUnlock()
	}
	return n
}
