package middleware

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/rbac"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// Gate enforces rbac requirements and reports denials
type Gate struct {
	publisher events.Publisher
	metrics   *observability.Metrics
}

// NewGate creates a gate. publisher may be nil.
func NewGate(publisher events.Publisher, metrics *observability.Metrics) *Gate {
	return &Gate{publisher: publisher, metrics: metrics}
}

// Require creates middleware that admits only principals satisfying all
// of reqs
func (g *Gate) Require(reqs ...rbac.Requirement) func(http.Handler) http.Handler {
	requirement := rbac.All(reqs...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.PrincipalFromContext(r.Context())
			if _, err := rbac.Require(principal, requirement); err != nil {
				g.deny(r, principal, err)
				httputil.WriteError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) deny(r *http.Request, principal auth.Principal, err error) {
	route := routeName(r)
	missing := err.Error()
	var denied *rbac.DeniedError
	if errors.As(err, &denied) {
		missing = denied.Requirement
	}

	observability.FromContext(r.Context()).WithFields(logrus.Fields{
		"requirement": missing,
		"route":       route,
		"method":      r.Method,
	}).Warn("Permission denied")
	g.metrics.RecordGateDenial(route, missing)

	scope, serr := tenant.FromContext(r.Context())
	if g.publisher == nil || serr != nil {
		return
	}
	evt := events.New(events.AccessDenied, scope, route, principal.Subject(), map[string]interface{}{
		"requirement": missing,
		"route":       route,
		"method":      r.Method,
		"role":        string(principal.Role()),
	})
	if perr := g.publisher.PublishAsync(r.Context(), evt); perr != nil {
		observability.FromContext(r.Context()).WithError(perr).Error("Failed to publish access denial")
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}
