package middleware

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
)

// AuthMiddleware authenticates the bearer credential of every request
type AuthMiddleware struct {
	authenticator *auth.Authenticator
	metrics       *observability.Metrics
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator *auth.Authenticator, metrics *observability.Metrics) *AuthMiddleware {
	return &AuthMiddleware{
		authenticator: authenticator,
		metrics:       metrics,
	}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.authenticator.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			ae := apperrors.From(err)
			observability.FromContext(r.Context()).WithFields(logrus.Fields{
				"code":   ae.Code,
				"method": r.Method,
				"path":   r.URL.Path,
			}).Info("Authentication failed")
			m.metrics.RecordAuthFailure(ae.Code)
			httputil.WriteAppError(w, ae)
			return
		}

		trace.SpanFromContext(r.Context()).SetAttributes(
			attribute.String("enduser.id", principal.Subject()),
			attribute.String("enduser.role", string(principal.Role())),
		)

		ctx := auth.WithPrincipal(r.Context(), principal)
		ctx = observability.AddFields(ctx, logrus.Fields{
			"subject": principal.Subject(),
			"role":    principal.Role(),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
