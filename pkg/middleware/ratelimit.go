package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/ratelimit"
	"github.com/platinummonkey/estateops/pkg/tenant"
)

// RateLimitMiddleware admits requests through a ratelimit.Backend
type RateLimitMiddleware struct {
	backend    ratelimit.Backend
	metrics    *observability.Metrics
	trustProxy bool
}

// RateLimitOption configures RateLimitMiddleware
type RateLimitOption func(*RateLimitMiddleware)

// WithTrustedProxyHeaders keys anonymous requests on X-Forwarded-For /
// X-Real-IP. Only enable behind a proxy that overwrites them.
func WithTrustedProxyHeaders() RateLimitOption {
	return func(m *RateLimitMiddleware) { m.trustProxy = true }
}

// NewRateLimitMiddleware creates a new rate limit middleware
func NewRateLimitMiddleware(backend ratelimit.Backend, metrics *observability.Metrics, opts ...RateLimitOption) *RateLimitMiddleware {
	m := &RateLimitMiddleware{backend: backend, metrics: metrics}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handler wraps an HTTP handler with rate limiting
func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.Key(r)

		decision, err := m.backend.Allow(r.Context(), key)
		if err != nil {
			m.metrics.RecordRateLimit("error")
			httputil.WriteError(w, r, err)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			observability.FromContext(r.Context()).WithFields(logrus.Fields{
				"key":         key,
				"retry_after": decision.RetryAfter.String(),
			}).Info("Rate limit exceeded")
			m.metrics.RecordRateLimit("rejected")
			httputil.WriteAppError(w, apperrors.RateLimited(decision.RetryAfter))
			return
		}

		m.metrics.RecordRateLimit("allowed")
		next.ServeHTTP(w, r)
	})
}

// Key returns the limiter key for r: tenant and subject when the pipeline
// has resolved them, otherwise the client IP
func (m *RateLimitMiddleware) Key(r *http.Request) string {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if ok {
		if scope, err := tenant.FromContext(r.Context()); err == nil {
			return "tenant:" + scope.String() + ":user:" + principal.Subject()
		}
	}
	return "ip:" + m.clientIP(r)
}

func (m *RateLimitMiddleware) clientIP(r *http.Request) string {
	if m.trustProxy {
		// Check X-Forwarded-For header (if behind proxy)
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			return strings.TrimSpace(first)
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return realIP
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
