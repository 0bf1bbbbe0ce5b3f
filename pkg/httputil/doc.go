// Package httputil provides the HTTP plumbing shared by every route.
//
// # Responses
//
// Success bodies are plain JSON:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, record)
//	httputil.WriteNoContent(w)
//
// Every failure is rendered through WriteError, which classifies the error
// with apperrors.From and writes the envelope
//
//	{"detail": "scope admin required", "code": "forbidden", "timestamp": "..."}
//
// Rate-limit failures also carry "retry_after" (seconds) and a Retry-After
// header. Wrapped error text is logged, never written to the client.
//
// # Request Parsing
//
//	var req CreateTaskRequest
//	if err := httputil.ParseJSON(r, &req); err != nil {
//		httputil.WriteError(w, r, err)
//		return
//	}
//	id, err := httputil.PathUUID(r, "id")
//	limit, err := httputil.QueryInt(r, "limit", 50, 500)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger, metrics),
//		httputil.RecoveryMiddleware,
//		httputil.MaxBytesMiddleware(1<<20),
//	)
//
// # Related Packages
//
//   - pkg/middleware: authentication, tenant, gate and rate-limit middleware
//   - pkg/apperrors: error classification
package httputil
