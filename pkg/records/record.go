// Package records is the tenant-bound facade over per-tenant business
// records (contacts, properties, appointments, tasks, documents, payroll
// runs).
//
// A Service is built per request from the resolved tenant.Scope. Callers
// never pass a tenant id to its methods; every Store call it makes carries
// the scope's id, and Store implementations filter every statement by it.
// Record ids are generated by the server.
package records

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an update races another writer
	ErrConflict   = errors.New("record version conflict")
	ErrValidation = errors.New("record validation failed")
)

// FieldError describes a rejected attribute
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Message())
}

// Is makes errors.Is(err, ErrValidation) succeed
func (e *FieldError) Is(target error) bool { return target == ErrValidation }

// Message is safe to show to the client
func (e *FieldError) Message() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Kind names a record type
type Kind string

const (
	KindContact     Kind = "contact"
	KindProperty    Kind = "property"
	KindAppointment Kind = "appointment"
	KindTask        Kind = "task"
	KindDocument    Kind = "document"
	KindPayrollRun  Kind = "payroll_run"
)

// AllKinds lists every record kind
var AllKinds = []Kind{KindContact, KindProperty, KindAppointment, KindTask, KindDocument, KindPayrollRun}

// ParseKind validates a kind name
func ParseKind(s string) (Kind, error) {
	for _, k := range AllKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", &FieldError{Field: "kind", Reason: fmt.Sprintf("%q is not a record kind", s)}
}

// required attributes per kind
var requiredAttributes = map[Kind][]string{
	KindContact:     {"name"},
	KindProperty:    {"address"},
	KindAppointment: {"starts_at"},
	KindTask:        {"title"},
	KindDocument:    {"name"},
	KindPayrollRun:  {"period"},
}

// reserved keys are record columns, never attributes
var reservedAttributes = []string{"id", "tenant_id", "kind", "version", "created_by", "created_at", "updated_at"}

// Task statuses
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

var taskStatuses = []string{StatusOpen, StatusInProgress, StatusDone, StatusCancelled}

// ValidTaskStatus reports whether s is a task status
func ValidTaskStatus(s string) bool {
	for _, v := range taskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Record is one tenant-owned business object
type Record struct {
	ID         uuid.UUID              `json:"id"`
	TenantID   uuid.UUID              `json:"tenant_id"`
	Kind       Kind                   `json:"kind"`
	Attributes map[string]interface{} `json:"attributes"`
	Version    int64                  `json:"version"`
	CreatedBy  string                 `json:"created_by,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Attr returns a string attribute, or ""
func (r Record) Attr(key string) string {
	v, ok := r.Attributes[key].(string)
	if !ok {
		return ""
	}
	return v
}

func (r Record) clone() Record {
	r.Attributes = maps.Clone(r.Attributes)
	if r.Attributes == nil {
		r.Attributes = map[string]interface{}{}
	}
	return r
}

// ListOptions pages a List call
type ListOptions struct {
	Limit  int
	Offset int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

func (o ListOptions) normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// taskTransitions are task attributes owned by the operations that publish
// their events
var taskTransitions = map[string]string{
	"status":   "/tasks/{id}/status",
	"assignee": "/tasks/{id}/assign",
}

func validateAttributes(kind Kind, attrs map[string]interface{}, partial bool) error {
	for _, key := range reservedAttributes {
		if _, ok := attrs[key]; ok {
			return &FieldError{Field: key, Reason: "cannot be set"}
		}
	}
	if partial {
		for _, key := range requiredAttributes[kind] {
			if v, ok := attrs[key]; ok && isBlank(v) {
				return &FieldError{Field: key, Reason: "cannot be empty"}
			}
		}
	} else {
		for _, key := range requiredAttributes[kind] {
			if isBlank(attrs[key]) {
				return &FieldError{Field: key, Reason: "is required"}
			}
		}
	}
	if kind == KindTask && partial {
		for field, route := range taskTransitions {
			if _, ok := attrs[field]; ok {
				return &FieldError{Field: field, Reason: "must be changed through " + route}
			}
		}
	}
	if kind == KindTask {
		if v, ok := attrs["status"]; ok {
			s, _ := v.(string)
			if !ValidTaskStatus(s) {
				return &FieldError{Field: "status", Reason: "is not a task status"}
			}
		}
	}
	return nil
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
