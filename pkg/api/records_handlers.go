package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/rbac"
	"github.com/platinummonkey/estateops/pkg/records"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// Protector wraps a handler in the authorization pipeline with the given
// gate requirements
type Protector func(h http.Handler, reqs ...rbac.Requirement) http.Handler

// RecordHandlers serves CRUD for one record kind
type RecordHandlers struct {
	policy    KindPolicy
	store     records.Store
	publisher events.Publisher
}

// NewRecordHandlers creates handlers for the kind named by policy
func NewRecordHandlers(policy KindPolicy, store records.Store, publisher events.Publisher) *RecordHandlers {
	return &RecordHandlers{
		policy:    policy,
		store:     store,
		publisher: publisher,
	}
}

// RegisterRoutes registers the collection and item routes
func (h *RecordHandlers) RegisterRoutes(router *mux.Router, protect Protector) {
	collection := "/" + h.policy.Collection
	item := collection + "/{id}"

	router.Handle(collection, protect(http.HandlerFunc(h.list), h.policy.readRequirement())).Methods(http.MethodGet)
	router.Handle(collection, protect(http.HandlerFunc(h.create), h.policy.writeRequirement())).Methods(http.MethodPost)
	router.Handle(item, protect(http.HandlerFunc(h.get), h.policy.readRequirement())).Methods(http.MethodGet)
	router.Handle(item, protect(http.HandlerFunc(h.update), h.policy.writeRequirement())).Methods(http.MethodPatch)
	router.Handle(item, protect(http.HandlerFunc(h.delete), h.policy.deleteRequirement())).Methods(http.MethodDelete)
}

// createRequest is the body of POST /v1/{collection}
type createRequest struct {
	Attributes map[string]interface{} `json:"attributes"`
}

// updateRequest is the body of PATCH /v1/{collection}/{id}
type updateRequest struct {
	Version    int64                  `json:"version"`
	Attributes map[string]interface{} `json:"attributes"`
}

// listResponse is the body of GET /v1/{collection}
type listResponse struct {
	Items  []records.Record `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// list handles GET /v1/{collection}
func (h *RecordHandlers) list(w http.ResponseWriter, r *http.Request) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	limit, err := httputil.QueryInt(r, "limit", records.DefaultListLimit, records.MaxListLimit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	offset, err := httputil.QueryInt(r, "offset", 0, 0)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	items, err := svc.List(r.Context(), h.policy.Kind, records.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if items == nil {
		items = []records.Record{}
	}

	_ = httputil.WriteSuccess(w, listResponse{Items: items, Limit: limit, Offset: offset})
}

// create handles POST /v1/{collection}
func (h *RecordHandlers) create(w http.ResponseWriter, r *http.Request) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req createRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	rec, err := svc.Create(r.Context(), h.policy.Kind, req.Attributes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteCreated(w, rec)
}

// get handles GET /v1/{collection}/{id}
func (h *RecordHandlers) get(w http.ResponseWriter, r *http.Request) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	rec, err := svc.Get(r.Context(), h.policy.Kind, id)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, rec)
}

// update handles PATCH /v1/{collection}/{id}
func (h *RecordHandlers) update(w http.ResponseWriter, r *http.Request) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	var req updateRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if req.Version <= 0 {
		httputil.WriteError(w, r, apperrors.Validation("version is required"))
		return
	}

	rec, err := svc.Update(r.Context(), h.policy.Kind, id, req.Version, req.Attributes)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, rec)
}

// delete handles DELETE /v1/{collection}/{id}
func (h *RecordHandlers) delete(w http.ResponseWriter, r *http.Request) {
	svc, err := serviceFor(r, h.store, h.publisher)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	id, err := httputil.PathUUID(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := svc.Delete(r.Context(), h.policy.Kind, id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

// serviceFor binds a records.Service to the request's resolved scope and
// principal
func serviceFor(r *http.Request, store records.Store, publisher events.Publisher) (*records.Service, error) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		return nil, err
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		return nil, auth.ErrUnauthorized
	}
	return records.NewService(store, scope, publisher, principal.Subject())
}
