package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/audit"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/automation"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/middleware"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/ratelimit"
	"github.com/platinummonkey/estateops/pkg/rbac"
	"github.com/platinummonkey/estateops/pkg/records"
)

// DefaultMaxBodyBytes bounds request bodies when Dependencies leaves it unset
const DefaultMaxBodyBytes = 1 << 20

// Dependencies are the collaborators the server is built from. Codec,
// Records, Activity and Limiter are required.
type Dependencies struct {
	Codec     *auth.Codec
	Records   records.Store
	Activity  audit.Store
	Publisher events.Publisher

	// Limiter admits authenticated requests per tenant and subject.
	// RefreshLimiter admits token refreshes per client IP.
	Limiter        ratelimit.Backend
	RefreshLimiter ratelimit.Backend

	// Automation and RulesPath enable the reload endpoint
	Automation *automation.Engine
	RulesPath  string

	Health  *observability.HealthChecker
	Metrics *observability.Metrics
	Logger  *logrus.Logger

	TrustProxyHeaders bool
	MaxBodyBytes      int64
}

// Server represents our API server
type Server struct {
	deps    Dependencies
	router  *mux.Router
	handler http.Handler

	authMW         *middleware.AuthMiddleware
	gate           *middleware.Gate
	limiter        *middleware.RateLimitMiddleware
	refreshLimiter *middleware.RateLimitMiddleware
}

// NewServer creates a new API server
func NewServer(deps Dependencies) (*Server, error) {
	switch {
	case deps.Codec == nil:
		return nil, errors.New("api: token codec is required")
	case deps.Records == nil:
		return nil, errors.New("api: records store is required")
	case deps.Activity == nil:
		return nil, errors.New("api: activity store is required")
	case deps.Limiter == nil:
		return nil, errors.New("api: rate limiter is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.New()
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = DefaultMaxBodyBytes
	}

	var limitOpts []middleware.RateLimitOption
	if deps.TrustProxyHeaders {
		limitOpts = append(limitOpts, middleware.WithTrustedProxyHeaders())
	}
	if deps.RefreshLimiter == nil {
		deps.RefreshLimiter = ratelimit.NewTokenBucket(1, 5)
	}

	s := &Server{
		deps:           deps,
		router:         mux.NewRouter(),
		authMW:         middleware.NewAuthMiddleware(auth.NewAuthenticator(deps.Codec), deps.Metrics),
		gate:           middleware.NewGate(deps.Publisher, deps.Metrics),
		limiter:        middleware.NewRateLimitMiddleware(deps.Limiter, deps.Metrics, limitOpts...),
		refreshLimiter: middleware.NewRateLimitMiddleware(deps.RefreshLimiter, deps.Metrics, limitOpts...),
	}
	// route-level so logs and metrics carry the matched template
	s.router.Use(httputil.LoggingMiddleware(deps.Logger, deps.Metrics), httputil.RecoveryMiddleware)
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteAppError(w, apperrors.NotFound("route not found"))
	})
	s.setupRoutes()

	s.handler = httputil.Chain(
		func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, "estateops") },
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware,
		httputil.SecurityHeadersMiddleware,
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
	)(s.router)
	return s, nil
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Probes and metrics sit outside the pipeline
	if s.deps.Health != nil {
		s.router.HandleFunc("/health/live", s.deps.Health.Liveness).Methods(http.MethodGet)
		s.router.HandleFunc("/health/ready", s.deps.Health.Readiness).Methods(http.MethodGet)
	}
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(httputil.ContentTypeMiddleware)

	// Token refresh is pre-authentication; only the per-IP limit applies
	authHandlers := NewAuthHandlers(s.deps.Codec)
	v1.Handle("/auth/refresh", s.refreshLimiter.Handler(http.HandlerFunc(authHandlers.Refresh))).
		Methods(http.MethodPost)

	v1.Handle("/me", s.protect(http.HandlerFunc(authHandlers.Me))).Methods(http.MethodGet)

	for _, policy := range KindPolicies {
		NewRecordHandlers(policy, s.deps.Records, s.deps.Publisher).RegisterRoutes(v1, s.protect)
	}

	tasks := NewTaskHandlers(s.deps.Records, s.deps.Publisher)
	taskWrite := rbac.All(rbac.WriteScope, rbac.RequireRoleSet(rbac.StaffRoles))
	v1.Handle("/tasks/{id}/status", s.protect(http.HandlerFunc(tasks.SetStatus), taskWrite)).Methods(http.MethodPost)
	v1.Handle("/tasks/{id}/assign", s.protect(http.HandlerFunc(tasks.Assign), taskWrite)).Methods(http.MethodPost)

	activity := audit.NewHandlers(s.deps.Activity)
	v1.Handle("/activity", s.protect(http.HandlerFunc(activity.ListActivity),
		rbac.ReadScope, rbac.RequireRoleSet(rbac.ManagerRoles))).Methods(http.MethodGet)

	if s.deps.Automation != nil && s.deps.RulesPath != "" {
		admin := NewAdminHandlers(s.deps.Automation, s.deps.RulesPath)
		v1.Handle("/admin/automation/reload", s.protect(http.HandlerFunc(admin.ReloadAutomation),
			rbac.AdminScope, rbac.RequireRoleSet(rbac.AdminRoles))).Methods(http.MethodPost)
	}
}

// protect wraps h in the full pipeline: authenticate, resolve tenant,
// gate on reqs, rate limit
func (s *Server) protect(h http.Handler, reqs ...rbac.Requirement) http.Handler {
	return httputil.Chain(
		s.authMW.Handler,
		middleware.TenantMiddleware(s.deps.Metrics),
		s.gate.Require(reqs...),
		s.limiter.Handler,
	)(h)
}

// Handler returns the router wrapped in the outer middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router so callers can mount extra routes
func (s *Server) Router() *mux.Router {
	return s.router
}
