package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// TenantMiddleware resolves the tenant scope from the authenticated
// principal. It must run after AuthMiddleware.
func TenantMiddleware(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, auth.ErrUnauthorized)
				return
			}

			scope, err := tenant.Resolve(principal)
			if err != nil {
				// a validly signed token with a bad tenant claim is an anomaly
				observability.FromContext(r.Context()).WithFields(logrus.Fields{
					"tenant_claim": principal.TenantID(),
					"method":       r.Method,
					"path":         r.URL.Path,
					"remote_addr":  r.RemoteAddr,
				}).WithError(err).Error("Tenant resolution failed")
				metrics.RecordTenantFailure()
				httputil.WriteError(w, r, err)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("tenant.id", scope.String()))

			ctx := tenant.WithScope(r.Context(), scope)
			ctx = observability.AddFields(ctx, logrus.Fields{"tenant_id": scope.String()})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
