package audit

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// Handlers serves the activity log API
type Handlers struct {
	store Store
}

// NewHandlers creates new activity handlers
func NewHandlers(store Store) *Handlers {
	return &Handlers{
		store: store,
	}
}

// ListActivity handles GET /v1/activity. The tenant comes from the
// resolved scope only; no query parameter can select another tenant.
func (h *Handlers) ListActivity(w http.ResponseWriter, r *http.Request) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	filter, err := parseFilter(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	entries, err := h.store.Search(r.Context(), scope.ID(), filter)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
		"limit":   filter.normalize().Limit,
		"offset":  filter.Offset,
	})
}

func parseFilter(r *http.Request) (SearchFilter, error) {
	q := r.URL.Query()
	filter := SearchFilter{
		EventTypes:   parseCommaSeparated(q.Get("event_types")),
		ResourceKind: q.Get("resource_kind"),
		ResourceID:   q.Get("resource_id"),
		Actor:        q.Get("actor"),
	}

	var err error
	if filter.Limit, err = httputil.QueryInt(r, "limit", DefaultSearchLimit, MaxSearchLimit); err != nil {
		return SearchFilter{}, err
	}
	if filter.Offset, err = httputil.QueryInt(r, "offset", 0, 0); err != nil {
		return SearchFilter{}, err
	}
	if filter.Since, err = httputil.QueryTime(r, "since"); err != nil {
		return SearchFilter{}, err
	}
	if filter.Until, err = httputil.QueryTime(r, "until"); err != nil {
		return SearchFilter{}, err
	}
	return filter, nil
}

func parseCommaSeparated(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
