// Package middleware adapts the authorization pipeline onto net/http.
//
// # Pipeline
//
// Every tenant route is wrapped in the same strictly ordered chain:
//
//	AuthMiddleware      bearer credential -> auth.Principal       (401)
//	TenantMiddleware    principal -> tenant.Scope                 (400)
//	Gate.Require        scope / role requirements                 (403)
//	RateLimitMiddleware per tenant+subject sliding window         (429)
//
// The principal and scope live in the request context only. Handlers read
// them with auth.PrincipalFromContext and tenant.FromContext and build
// their tenant-bound services from the scope; nothing in the request body
// or query can override it.
//
//	chain := httputil.Chain(
//		authMW.Handler,
//		middleware.TenantMiddleware(metrics),
//		gate.Require(rbac.WriteScope, rbac.RequireRoleSet(rbac.StaffRoles)),
//		limiter.Handler,
//	)
//
// # Failures
//
// Every rejection is written with httputil.WriteAppError, so clients see
// the {detail, code, timestamp} envelope and never internal error text.
// Authentication failures are logged at Info, permission denials at Warn
// (and published as authz.access_denied), tenant resolution failures at
// Error since they point at a forged or corrupted token.
//
// # Rate Limiting
//
// Authenticated requests are keyed "tenant:<tenant>:user:<subject>";
// anonymous requests (the token refresh endpoint) are keyed by client IP.
// Admitted responses carry X-RateLimit-Limit and X-RateLimit-Remaining,
// rejections carry Retry-After.
//
// # Related Packages
//
//   - pkg/auth: token codec and authenticator
//   - pkg/tenant: tenant resolution
//   - pkg/rbac: requirements
//   - pkg/ratelimit: limiter backends
package middleware
