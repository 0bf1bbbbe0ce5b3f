// Package contextkeys provides centralized context key definitions
//
// All request-scoped values travel through these keys. Nothing tenant related
// is stored in package-level state; it is threaded explicitly via context.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/estateops/pkg/contextkeys"
//	ctx = contextkeys.WithRequestID(ctx, id)
//	id := contextkeys.GetRequestID(ctx)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PrincipalKey contains auth.Principal
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: tenant resolution, rbac gates, rate limiting
	// Type: auth.Principal
	PrincipalKey Key = "principal"

	// TenantKey contains tenant.Scope
	// Set by: middleware.TenantMiddleware (pkg/middleware/tenant.go)
	// Required by: every handler that builds a records.Service
	// Type: tenant.Scope
	TenantKey Key = "tenant_scope"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains *logrus.Entry
	// Set by: httputil.LoggingMiddleware, enriched by auth and tenant middleware
	// Used by: Handlers that need structured logging with request context
	// Type: *logrus.Entry
	LoggerKey Key = "logger"
)

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
