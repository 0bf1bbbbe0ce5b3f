package audit

import (
	"time"

	"github.com/google/uuid"
)

// Status is the outcome recorded for an entry
type Status string

const (
	StatusSuccess Status = "success"
	StatusDenied  Status = "denied"
)

// Entry is one line of a tenant's activity log
type Entry struct {
	// ID is the id of the event that produced the entry
	ID           string                 `json:"id"`
	TenantID     uuid.UUID              `json:"tenant_id"`
	EventType    string                 `json:"event_type"`
	ResourceKind string                 `json:"resource_kind"`
	ResourceID   string                 `json:"resource_id"`
	Actor        string                 `json:"actor,omitempty"`
	Status       Status                 `json:"status"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// SearchFilter narrows a tenant's activity log
type SearchFilter struct {
	EventTypes   []string
	ResourceKind string
	ResourceID   string
	Actor        string
	Since        time.Time
	Until        time.Time
	Limit        int
	Offset       int
}

const (
	DefaultSearchLimit = 100
	MaxSearchLimit     = 1000
)

func (f SearchFilter) normalize() SearchFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultSearchLimit
	}
	if f.Limit > MaxSearchLimit {
		f.Limit = MaxSearchLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func (f SearchFilter) matches(e Entry) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if t == e.EventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	switch {
	case f.ResourceKind != "" && f.ResourceKind != e.ResourceKind:
		return false
	case f.ResourceID != "" && f.ResourceID != e.ResourceID:
		return false
	case f.Actor != "" && f.Actor != e.Actor:
		return false
	case !f.Since.IsZero() && e.OccurredAt.Before(f.Since):
		return false
	case !f.Until.IsZero() && e.OccurredAt.After(f.Until):
		return false
	}
	return true
}

// RetentionPolicy bounds how long entries are kept
type RetentionPolicy struct {
	MaxAge time.Duration
}

// DefaultRetentionPolicy keeps 90 days of activity
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{MaxAge: 90 * 24 * time.Hour}
}
