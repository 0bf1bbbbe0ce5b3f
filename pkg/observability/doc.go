// Package observability wires logging, metrics, tracing, health checks and
// graceful shutdown for the estateops server.
//
// Logging uses logrus with a JSON formatter. A request-scoped *logrus.Entry
// travels in the context; middleware enrich it with request_id, tenant_id
// and subject so handler logs carry them automatically.
//
//	log := observability.FromContext(r.Context())
//	log.WithField("record_id", id).Info("Record created")
//
// Metrics are Prometheus collectors registered on a caller-supplied
// registry so tests can use a fresh registry each time.
//
// Tracing is optional and exports over OTLP gRPC when enabled.
package observability
