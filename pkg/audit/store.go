package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists activity entries
type Store interface {
	// Append stores an entry; appending the same id twice is a no-op
	Append(ctx context.Context, entry Entry) error

	// Search returns the tenant's entries newest first
	Search(ctx context.Context, tenantID uuid.UUID, filter SearchFilter) ([]Entry, error)

	// Purge removes entries that occurred before cutoff, across tenants
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryStore keeps entries in process memory, partitioned by tenant
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID][]Entry
	seen    map[string]struct{}
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[uuid.UUID][]Entry),
		seen:    make(map[string]struct{}),
	}
}

func (s *MemoryStore) Append(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[entry.ID]; dup {
		return nil
	}
	s.seen[entry.ID] = struct{}{}
	s.tenants[entry.TenantID] = append(s.tenants[entry.TenantID], entry)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, tenantID uuid.UUID, filter SearchFilter) ([]Entry, error) {
	filter = filter.normalize()

	s.mu.RLock()
	var matched []Entry
	for _, e := range s.tenants[tenantID] {
		if filter.matches(e) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].OccurredAt.Equal(matched[j].OccurredAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	if filter.Offset >= len(matched) {
		return []Entry{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for tenantID, entries := range s.tenants {
		kept := entries[:0]
		for _, e := range entries {
			if e.OccurredAt.Before(cutoff) {
				delete(s.seen, e.ID)
				removed++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.tenants, tenantID)
		} else {
			s.tenants[tenantID] = kept
		}
	}
	return removed, nil
}
