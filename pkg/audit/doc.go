// Package audit keeps the per-tenant activity log.
//
// The Recorder subscribes to every event type on the bus and appends one
// Entry per event: record mutations, task transitions and permission
// denials (authz.access_denied). Entries are read back one tenant at a
// time through Store.Search, which always filters by tenant id, and are
// purged by age on a schedule.
//
//	recorder := audit.NewRecorder(store, logger, metrics)
//	recorder.Register(bus)
//
//	handlers := audit.NewHandlers(store)
//	router.Handle("/v1/activity", gate(http.HandlerFunc(handlers.ListActivity)))
//
// # Retention
//
// PurgeJob returns a function suitable for cron that deletes entries older
// than the configured age across all tenants.
//
// # Related Packages
//
//   - pkg/events: the bus the recorder subscribes to
//   - pkg/middleware: publishes authz.access_denied on gate failures
package audit
