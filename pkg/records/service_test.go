package records

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, evt events.Event) error {
	return p.PublishAsync(ctx, evt)
}

func (p *recordingPublisher) PublishAsync(ctx context.Context, evt events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

func newScope(t *testing.T) tenant.Scope {
	t.Helper()
	scope, err := tenant.FromID(uuid.New())
	require.NoError(t, err)
	return scope
}

func newTestService(t *testing.T, store Store, scope tenant.Scope) (*Service, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc, err := NewService(store, scope, pub, "user-1")
	require.NoError(t, err)
	return svc, pub
}

func TestNewService_RequiresScope(t *testing.T) {
	_, err := NewService(NewMemoryStore(), tenant.Scope{}, nil, "u")
	assert.ErrorIs(t, err, tenant.ErrNoTenant)

	_, err = NewService(nil, newScope(t), nil, "u")
	assert.Error(t, err)
}

func TestService_CreateAndGet(t *testing.T) {
	scope := newScope(t)
	svc, pub := newTestService(t, NewMemoryStore(), scope)
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Fix boiler"})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, rec.ID)
	assert.Equal(t, scope.ID(), rec.TenantID)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, StatusOpen, rec.Attr("status"))
	assert.Equal(t, "user-1", rec.CreatedBy)

	got, err := svc.Get(ctx, KindTask, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Fix boiler", got.Attr("title"))

	require.Equal(t, []events.Type{events.TaskCreated}, pub.types())
	evt := pub.last()
	assert.Equal(t, scope.ID(), evt.TenantID)
	assert.Equal(t, rec.ID.String(), evt.ResourceID)
	assert.Equal(t, "user-1", evt.Actor)
}

func TestService_CreateValidation(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		kind  Kind
		attrs map[string]interface{}
		field string
	}{
		{"missing required", KindContact, map[string]interface{}{"email": "a@b.c"}, "name"},
		{"client tenant id", KindContact, map[string]interface{}{"name": "A", "tenant_id": uuid.NewString()}, "tenant_id"},
		{"client id", KindProperty, map[string]interface{}{"address": "1 Main St", "id": "x"}, "id"},
		{"bad status", KindTask, map[string]interface{}{"title": "t", "status": "whenever"}, "status"},
		{"unknown kind", Kind("invoice"), map[string]interface{}{}, "kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.kind, tt.attrs)
			require.ErrorIs(t, err, ErrValidation)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
	assert.Empty(t, pub.types())
}

// Records of one tenant are invisible to a service bound to another.
func TestService_TenantIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	alpha, _ := newTestService(t, store, newScope(t))
	beta, betaPub := newTestService(t, store, newScope(t))

	rec, err := alpha.Create(ctx, KindContact, map[string]interface{}{"name": "Alice"})
	require.NoError(t, err)

	_, err = beta.Get(ctx, KindContact, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = beta.Update(ctx, KindContact, rec.ID, rec.Version, map[string]interface{}{"name": "Mallory"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, beta.Delete(ctx, KindContact, rec.ID), ErrNotFound)

	list, err := beta.List(ctx, KindContact, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, betaPub.types())

	still, err := alpha.Get(ctx, KindContact, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", still.Attr("name"))
}

// leakyStore ignores the tenant filter to prove the service re-checks it.
type leakyStore struct {
	*MemoryStore
	rec Record
}

func (s *leakyStore) Get(ctx context.Context, tenantID uuid.UUID, kind Kind, id uuid.UUID) (Record, error) {
	return s.rec, nil
}

func (s *leakyStore) List(ctx context.Context, tenantID uuid.UUID, kind Kind, opts ListOptions) ([]Record, error) {
	return []Record{s.rec}, nil
}

func TestService_RejectsForeignRowsFromStore(t *testing.T) {
	foreign := Record{ID: uuid.New(), TenantID: uuid.New(), Kind: KindContact, Version: 1}
	svc, _ := newTestService(t, &leakyStore{MemoryStore: NewMemoryStore(), rec: foreign}, newScope(t))

	_, err := svc.Get(context.Background(), KindContact, foreign.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(context.Background(), KindContact, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestService_Update(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindProperty, map[string]interface{}{"address": "1 Main St", "beds": 3})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, KindProperty, rec.ID, 1, map[string]interface{}{"beds": nil, "price": 250000})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.NotContains(t, updated.Attributes, "beds")
	assert.Equal(t, 250000, updated.Attributes["price"])
	assert.Equal(t, "1 Main St", updated.Attr("address"))

	_, err = svc.Update(ctx, KindProperty, rec.ID, 1, map[string]interface{}{"price": 1})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.Update(ctx, KindProperty, rec.ID, 2, map[string]interface{}{"address": ""})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, []events.Type{events.PropertyCreated, events.PropertyUpdated}, pub.types())
}

func TestService_UpdateRejectsTaskTransitions(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Fix gutter"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		attrs map[string]interface{}
		field string
	}{
		{"status", map[string]interface{}{"status": StatusDone}, "status"},
		{"assignee", map[string]interface{}{"assignee": "bob"}, "assignee"},
		{"status with title", map[string]interface{}{"title": "Fix roof", "status": StatusDone}, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Update(ctx, KindTask, rec.ID, rec.Version, tt.attrs)
			require.ErrorIs(t, err, ErrValidation)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}

	got, err := svc.Get(ctx, KindTask, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, got.Attr("status"))
	assert.Empty(t, got.Attr("assignee"))
	assert.Equal(t, int64(1), got.Version)

	updated, err := svc.Update(ctx, KindTask, rec.ID, rec.Version, map[string]interface{}{"title": "Fix roof"})
	require.NoError(t, err)
	assert.Equal(t, "Fix roof", updated.Attr("title"))
	assert.Equal(t, []events.Type{events.TaskCreated}, pub.types())
}

func TestService_Delete(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	rec, err := svc.Create(ctx, KindAppointment, map[string]interface{}{"starts_at": "2026-11-01T10:00:00Z"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, KindAppointment, rec.ID))
	_, err = svc.Get(ctx, KindAppointment, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, KindAppointment, rec.ID), ErrNotFound)

	assert.Equal(t, []events.Type{events.AppointmentCreated, events.AppointmentDeleted}, pub.types())
}

func TestService_KindsWithoutEvents(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))

	_, err := svc.Create(context.Background(), KindPayrollRun, map[string]interface{}{"period": "2026-10"})
	require.NoError(t, err)
	assert.Empty(t, pub.types())
}

func TestService_SetStatus(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	task, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Inspect"})
	require.NoError(t, err)

	rec, err := svc.SetStatus(ctx, task.ID, StatusDone)
	require.NoError(t, err)
	assert.Equal(t, StatusDone, rec.Attr("status"))

	evt := pub.last()
	assert.Equal(t, events.TaskStatusChanged, evt.Type)
	assert.Equal(t, StatusDone, evt.Field("status"))
	assert.Equal(t, StatusOpen, evt.Field("previous_status"))

	// unchanged status writes nothing and emits nothing
	_, err = svc.SetStatus(ctx, task.ID, StatusDone)
	require.NoError(t, err)
	assert.Len(t, pub.types(), 2)

	_, err = svc.SetStatus(ctx, task.ID, "paused")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestService_Assign(t *testing.T) {
	svc, pub := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	task, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Inspect"})
	require.NoError(t, err)

	rec, err := svc.Assign(ctx, task.ID, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", rec.Attr("assignee"))
	assert.Equal(t, int64(2), rec.Version)

	evt := pub.last()
	assert.Equal(t, events.TaskAssigned, evt.Type)
	assert.Equal(t, "agent-7", evt.Field("assignee"))

	_, err = svc.Assign(ctx, task.ID, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Assign(ctx, uuid.New(), "agent-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

// conflictOnceStore loses the first version race.
type conflictOnceStore struct {
	*MemoryStore
	mu      sync.Mutex
	tripped bool
}

func (s *conflictOnceStore) Update(ctx context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	trip := !s.tripped
	s.tripped = true
	s.mu.Unlock()
	if trip {
		return Record{}, ErrConflict
	}
	return s.MemoryStore.Update(ctx, rec)
}

func TestService_AssignRetriesConflict(t *testing.T) {
	store := &conflictOnceStore{MemoryStore: NewMemoryStore()}
	svc, _ := newTestService(t, store, newScope(t))
	ctx := context.Background()

	task, err := svc.Create(ctx, KindTask, map[string]interface{}{"title": "Inspect"})
	require.NoError(t, err)

	rec, err := svc.Assign(ctx, task.ID, "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", rec.Attr("assignee"))
}

func TestService_PublishFailureDoesNotFailWrite(t *testing.T) {
	store := NewMemoryStore()
	pub := &recordingPublisher{err: errors.New("bus closed")}
	svc, err := NewService(store, newScope(t), pub, "user-1")
	require.NoError(t, err)

	rec, err := svc.Create(context.Background(), KindTask, map[string]interface{}{"title": "x"})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), KindTask, rec.ID)
	assert.NoError(t, err)
}

func TestMemoryStore_ListPaging(t *testing.T) {
	svc, _ := newTestService(t, NewMemoryStore(), newScope(t))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := svc.Create(ctx, KindDocument, map[string]interface{}{"name": "lease.pdf"})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, KindDocument, ListOptions{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := svc.List(ctx, KindDocument, ListOptions{Limit: 10, Offset: 2})
	require.NoError(t, err)
	assert.Len(t, rest, 3)
	assert.NotEqual(t, page[0].ID, rest[0].ID)

	none, err := svc.List(ctx, KindDocument, ListOptions{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, none)

	other, err := svc.List(ctx, KindContact, ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("payroll_run")
	require.NoError(t, err)
	assert.Equal(t, KindPayrollRun, k)

	_, err = ParseKind("tenant")
	assert.ErrorIs(t, err, ErrValidation)
}
