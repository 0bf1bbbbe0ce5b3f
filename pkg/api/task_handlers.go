package api

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/records"
)

// TaskHandlers serves the task-specific operations
type TaskHandlers struct {
	store     records.Store
	publisher events.Publisher
}

// NewTaskHandlers creates new task handlers
func NewTaskHandlers(store records.Store, publisher events.Publisher) *TaskHandlers {
	return &TaskHandlers{store: store, publisher: publisher}
}

// SetStatus handles POST /v1/tasks/{id}/status
func (h *TaskHandlers) SetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	h.handle(w, r, &req, func(svc *records.Service, r *http.Request) (records.Record, error) {
		if !records.ValidTaskStatus(req.Status) {
			return records.Record{}, apperrors.Validation("status must be one of open, in_progress, done, cancelled")
		}
		id, err := httputil.PathUUID(r, "id")
		if err != nil {
			return records.Record{}, err
		}
		return svc.SetStatus(r.Context(), id, req.Status)
	})
}

// Assign handles POST /v1/tasks/{id}/assign
func (h *TaskHandlers) Assign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignee string `json:"assignee"`
	}
	h.handle(w, r, &req, func(svc *records.Service, r *http.Request) (records.Record, error) {
		assignee := strings.TrimSpace(req.Assignee)
		if assignee == "" {
			return records.Record{}, apperrors.Validation("assignee is required")
		}
		id, err := httputil.PathUUID(r, "id")
		if err != nil {
			return records.Record{}, err
		}
		return svc.Assign(r.Context(), id, assignee)
	})
}

func (h *TaskHandlers) handle(w http.ResponseWriter, r *http.Request, body interface{},
	fn func(svc *records.Service, r *http.Request) (records.Record, error)) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := httputil.ParseJSON(r, body); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	rec, err := fn(svc, r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, rec)
}
