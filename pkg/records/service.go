package records

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// attempts for read-modify-write helpers that lose a version race
const maxUpdateAttempts = 3

// Service is a Store bound to one tenant scope and one actor
type Service struct {
	store     Store
	scope     tenant.Scope
	publisher events.Publisher
	actor     string
	now       func() time.Time
}

// NewService binds store to scope. publisher may be nil, in which case no
// events are emitted.
func NewService(store Store, scope tenant.Scope, publisher events.Publisher, actor string) (*Service, error) {
	if store == nil {
		return nil, errors.New("records store is required")
	}
	if scope.IsZero() {
		return nil, tenant.ErrNoTenant
	}
	return &Service{
		store:     store,
		scope:     scope,
		publisher: publisher,
		actor:     actor,
		now:       storeNow,
	}, nil
}

// Scope returns the tenant the service is bound to
func (s *Service) Scope() tenant.Scope { return s.scope }

// Create stores a new record of kind with server-generated id
func (s *Service) Create(ctx context.Context, kind Kind, attrs map[string]interface{}) (Record, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return Record{}, err
	}
	if err := validateAttributes(kind, attrs, false); err != nil {
		return Record{}, err
	}

	now := s.now()
	rec := Record{
		ID:         uuid.New(),
		TenantID:   s.scope.ID(),
		Kind:       kind,
		Attributes: maps.Clone(attrs),
		Version:    1,
		CreatedBy:  s.actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if rec.Attributes == nil {
		rec.Attributes = map[string]interface{}{}
	}
	if kind == KindTask && rec.Attr("status") == "" {
		rec.Attributes["status"] = StatusOpen
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		return Record{}, err
	}

	s.publish(ctx, kind, "created", rec.ID, rec.Attributes)
	return rec, nil
}

// Get returns a record owned by the bound tenant
func (s *Service) Get(ctx context.Context, kind Kind, id uuid.UUID) (Record, error) {
	rec, err := s.store.Get(ctx, s.scope.ID(), kind, id)
	if err != nil {
		return Record{}, err
	}
	if err := s.scope.Check(rec.TenantID); err != nil {
		// a store that ignored the tenant filter; treat as absent
		observability.FromContext(ctx).WithFields(logrus.Fields{
			"record_id": id.String(),
			"kind":      kind,
		}).Error("Store returned a record owned by another tenant")
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// Update merges attrs into the record at version. A nil value removes
// the attribute.
func (s *Service) Update(ctx context.Context, kind Kind, id uuid.UUID, version int64, attrs map[string]interface{}) (Record, error) {
	if err := validateAttributes(kind, attrs, true); err != nil {
		return Record{}, err
	}

	current, err := s.Get(ctx, kind, id)
	if err != nil {
		return Record{}, err
	}
	if current.Version != version {
		return Record{}, ErrConflict
	}

	updated, err := s.apply(ctx, current, attrs)
	if err != nil {
		return Record{}, err
	}

	s.publish(ctx, kind, "updated", id, attrs)
	return updated, nil
}

// Delete removes a record owned by the bound tenant
func (s *Service) Delete(ctx context.Context, kind Kind, id uuid.UUID) error {
	if err := s.store.Delete(ctx, s.scope.ID(), kind, id); err != nil {
		return err
	}
	s.publish(ctx, kind, "deleted", id, nil)
	return nil
}

// List returns one page of the bound tenant's records of kind
func (s *Service) List(ctx context.Context, kind Kind, opts ListOptions) ([]Record, error) {
	recs, err := s.store.List(ctx, s.scope.ID(), kind, opts)
	if err != nil {
		return nil, err
	}
	out := recs[:0]
	for _, rec := range recs {
		if s.scope.Owns(rec.TenantID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SetStatus moves a task to status and publishes task.status_changed
func (s *Service) SetStatus(ctx context.Context, taskID uuid.UUID, status string) (Record, error) {
	if !ValidTaskStatus(status) {
		return Record{}, &FieldError{Field: "status", Reason: "is not a task status"}
	}

	var previous string
	rec, err := s.retryUpdate(ctx, taskID, func(current Record) (map[string]interface{}, bool) {
		previous = current.Attr("status")
		return map[string]interface{}{"status": status}, previous != status
	})
	if err != nil {
		return Record{}, err
	}
	if previous != status {
		s.emit(ctx, events.TaskStatusChanged, taskID, map[string]interface{}{
			"status":          status,
			"previous_status": previous,
			"title":           rec.Attr("title"),
		})
	}
	return rec, nil
}

// Assign sets the task's assignee and publishes task.assigned
func (s *Service) Assign(ctx context.Context, taskID uuid.UUID, assignee string) (Record, error) {
	if assignee == "" {
		return Record{}, &FieldError{Field: "assignee", Reason: "is required"}
	}

	var previous string
	rec, err := s.retryUpdate(ctx, taskID, func(current Record) (map[string]interface{}, bool) {
		previous = current.Attr("assignee")
		return map[string]interface{}{"assignee": assignee}, previous != assignee
	})
	if err != nil {
		return Record{}, err
	}
	if previous != assignee {
		s.emit(ctx, events.TaskAssigned, taskID, map[string]interface{}{
			"assignee":          assignee,
			"previous_assignee": previous,
			"status":            rec.Attr("status"),
			"title":             rec.Attr("title"),
		})
	}
	return rec, nil
}

// retryUpdate re-reads and reapplies change when a concurrent writer wins
// the version race. change reports false when there is nothing to write.
func (s *Service) retryUpdate(ctx context.Context, id uuid.UUID, change func(Record) (map[string]interface{}, bool)) (Record, error) {
	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		current, err := s.Get(ctx, KindTask, id)
		if err != nil {
			return Record{}, err
		}
		patch, dirty := change(current)
		if !dirty {
			return current, nil
		}
		updated, err := s.apply(ctx, current, patch)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			continue
		}
		return updated, err
	}
	return Record{}, fmt.Errorf("task %s: %w", id, lastErr)
}

func (s *Service) apply(ctx context.Context, current Record, patch map[string]interface{}) (Record, error) {
	next := current.clone()
	for k, v := range patch {
		if v == nil {
			delete(next.Attributes, k)
			continue
		}
		next.Attributes[k] = v
	}
	next.UpdatedAt = s.now()
	return s.store.Update(ctx, next)
}

// eventTypes maps a kind and action onto the catalogue; kinds without
// events are absent
var eventTypes = map[Kind]map[string]events.Type{
	KindTask:        {"created": events.TaskCreated, "deleted": events.TaskDeleted},
	KindContact:     {"created": events.ContactCreated, "updated": events.ContactUpdated, "deleted": events.ContactDeleted},
	KindProperty:    {"created": events.PropertyCreated, "updated": events.PropertyUpdated, "deleted": events.PropertyDeleted},
	KindAppointment: {"created": events.AppointmentCreated, "updated": events.AppointmentUpdated, "deleted": events.AppointmentDeleted},
}

func (s *Service) publish(ctx context.Context, kind Kind, action string, id uuid.UUID, payload map[string]interface{}) {
	t, ok := eventTypes[kind][action]
	if !ok {
		return
	}
	s.emit(ctx, t, id, payload)
}

// emit hands the event to the bus after the write has committed. A
// failure to enqueue is logged; the write itself already succeeded.
func (s *Service) emit(ctx context.Context, t events.Type, id uuid.UUID, payload map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	evt := events.New(t, s.scope, id.String(), s.actor, payload)
	if err := s.publisher.PublishAsync(ctx, evt); err != nil {
		observability.FromContext(ctx).WithError(err).WithFields(logrus.Fields{
			"event_type": t,
			"record_id":  id.String(),
		}).Error("Failed to publish event")
	}
}
