// Package events is the in-process publish/subscribe bus that decouples
// secondary effects (activity log, automation rules) from request
// handling.
//
// A Bus is constructed by the composition root and injected where needed;
// there is no package-level instance. Subscribers are registered by name
// during startup. Publish fans an event out to every subscriber of its
// type, each in its own goroutine; a subscriber that errors or panics is
// logged and never affects the publisher or its siblings.
package events

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/platinummonkey/estateops/pkg/tenant"
)

// Type names an event
type Type string

const (
	TaskCreated       Type = "task.created"
	TaskStatusChanged Type = "task.status_changed"
	TaskAssigned      Type = "task.assigned"
	TaskDeleted       Type = "task.deleted"

	ContactCreated Type = "contact.created"
	ContactUpdated Type = "contact.updated"
	ContactDeleted Type = "contact.deleted"

	PropertyCreated Type = "property.created"
	PropertyUpdated Type = "property.updated"
	PropertyDeleted Type = "property.deleted"

	AppointmentCreated Type = "appointment.created"
	AppointmentUpdated Type = "appointment.updated"
	AppointmentDeleted Type = "appointment.deleted"

	AccessDenied Type = "authz.access_denied"
)

// Catalogue lists every event type the platform publishes
var Catalogue = []Type{
	TaskCreated, TaskStatusChanged, TaskAssigned, TaskDeleted,
	ContactCreated, ContactUpdated, ContactDeleted,
	PropertyCreated, PropertyUpdated, PropertyDeleted,
	AppointmentCreated, AppointmentUpdated, AppointmentDeleted,
	AccessDenied,
}

// Resource returns the part of the type before the dot ("task")
func (t Type) Resource() string {
	resource, _, _ := strings.Cut(string(t), ".")
	return resource
}

var ErrInvalidEvent = errors.New("invalid event")

// Event is an ephemeral notification. Its payload is a hint: subscribers
// use TenantID and ResourceID to re-read authoritative state.
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	ResourceID string                 `json:"resource_id"`
	Actor      string                 `json:"actor,omitempty"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New builds an event for the given tenant scope. The payload is copied.
func New(t Type, scope tenant.Scope, resourceID, actor string, payload map[string]interface{}) Event {
	return Event{
		ID:         ulid.Make().String(),
		Type:       t,
		TenantID:   scope.ID(),
		ResourceID: resourceID,
		Actor:      actor,
		Payload:    maps.Clone(payload),
		OccurredAt: time.Now().UTC(),
	}
}

// Validate enforces the payload contract: a type, a tenant and a resource
func (e Event) Validate() error {
	switch {
	case e.Type == "":
		return fmt.Errorf("%w: type is required", ErrInvalidEvent)
	case e.TenantID == uuid.Nil:
		return fmt.Errorf("%w: tenant_id is required", ErrInvalidEvent)
	case e.ResourceID == "":
		return fmt.Errorf("%w: resource_id is required", ErrInvalidEvent)
	}
	return nil
}

// Scope returns the tenant scope the event belongs to
func (e Event) Scope() (tenant.Scope, error) {
	return tenant.FromID(e.TenantID)
}

// Field returns the payload value for key as a string, or ""
func (e Event) Field(key string) string {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
