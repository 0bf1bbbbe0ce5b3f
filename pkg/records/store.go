package records

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists records. Every method takes the owning tenant id and
// must never return or touch a record belonging to another tenant.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	Get(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) (Record, error)
	// Update replaces attributes when the stored version equals
	// rec.Version and returns the stored record with its new version
	Update(ctx context.Context, rec Record) (Record, error)
	Delete(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) error
	List(ctx context.Context, tenantID uuid.UUID, kind Kind, opts ListOptions) ([]Record, error)
}

type recordKey struct {
	tenantID uuid.UUID
	kind     Kind
	id       uuid.UUID
}

// MemoryStore keeps records in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]Record
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[recordKey]Record)}
}

func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.TenantID, rec.Kind, rec.ID}
	if _, exists := s.records[key]; exists {
		return ErrConflict
	}
	s.records[key] = rec.clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[recordKey{tenantID, kind, id}]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec.clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{rec.TenantID, rec.Kind, rec.ID}
	current, ok := s.records[key]
	if !ok {
		return Record{}, ErrNotFound
	}
	if current.Version != rec.Version {
		return Record{}, ErrConflict
	}

	current.Attributes = rec.clone().Attributes
	current.Version++
	current.UpdatedAt = rec.UpdatedAt
	s.records[key] = current
	return current.clone(), nil
}

func (s *MemoryStore) Delete(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{tenantID, kind, id}
	if _, ok := s.records[key]; !ok {
		return ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, tenantID uuid.UUID, kind Kind, opts ListOptions) ([]Record, error) {
	opts = opts.normalize()

	s.mu.RLock()
	var matched []Record
	for key, rec := range s.records {
		if key.tenantID == tenantID && key.kind == kind {
			matched = append(matched, rec.clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	if opts.Offset >= len(matched) {
		return []Record{}, nil
	}
	matched = matched[opts.Offset:]
	if len(matched) > opts.Limit {
		matched = matched[:opts.Limit]
	}
	return matched, nil
}
