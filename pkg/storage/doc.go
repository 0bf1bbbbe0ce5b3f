// Package storage opens the shared backends used by the tenant-scoped
// stores: a SQL database (PostgreSQL in production, SQLite for local
// development) and an optional Redis client.
//
// The package deals only in connections. Schema and queries belong to the
// stores that own them (records, audit), which take the *DB returned here
// so they can adapt placeholders and column types to the dialect.
//
//	db, err := storage.OpenDB(ctx, storage.DBConfig{
//		Driver: storage.DriverPostgres,
//		DSN:    "postgres://estateops@localhost/estateops?sslmode=disable",
//	})
//	rdb, err := storage.OpenRedis(ctx, storage.RedisConfig{URL: "redis://localhost:6379/0"})
package storage
