// Package api wires the authorization pipeline onto the HTTP routes.
//
// Every tenant route passes, in order, through authentication, tenant
// resolution, a route-specific gate and the per-user rate limiter (see
// pkg/middleware). Handlers never read a tenant id from the request; they
// build a records.Service from the resolved scope, so every store call is
// filtered by the caller's tenant.
//
// # Routes
//
//	POST   /v1/auth/refresh                  refresh token -> new pair (per-IP limit)
//	GET    /v1/me                            the caller's principal
//	GET    /v1/{collection}                  list records of a kind
//	POST   /v1/{collection}                  create
//	GET    /v1/{collection}/{id}             read
//	PATCH  /v1/{collection}/{id}             optimistic update
//	DELETE /v1/{collection}/{id}             delete
//	POST   /v1/tasks/{id}/status             change task status
//	POST   /v1/tasks/{id}/assign             assign a task
//	GET    /v1/activity                      tenant activity log
//	POST   /v1/admin/automation/reload       reload automation rules
//	GET    /health/live, /health/ready       probes
//	GET    /metrics                          prometheus
//
// The collections and the roles allowed on each are listed in
// KindPolicies.
package api
