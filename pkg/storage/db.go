package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver for local development
)

// Supported SQL drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// DBConfig holds database connection configuration
type DBConfig struct {
	Driver      string
	DSN         string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DB is a *sql.DB that remembers its driver
type DB struct {
	*sql.DB
	driver string
}

// Wrap adapts an existing handle, typically a sqlmock connection in tests
func Wrap(db *sql.DB, driver string) *DB {
	return &DB{DB: db, driver: driver}
}

// Driver returns the driver name the handle was opened with
func (db *DB) Driver() string { return db.driver }

// IsSQLite reports whether the handle talks to SQLite
func (db *DB) IsSQLite() bool { return db.driver == DriverSQLite }

// OpenDB opens and pings a database
func OpenDB(ctx context.Context, cfg DBConfig) (*DB, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required for driver %s", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// SQLite serialises writers; one connection also keeps :memory: databases shared
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MinConns > 0 {
			db.SetMaxIdleConns(cfg.MinConns)
		}
		if cfg.MaxLifetime == 0 {
			cfg.MaxLifetime = time.Hour
		}
		if cfg.MaxIdleTime == 0 {
			cfg.MaxIdleTime = 10 * time.Minute
		}
		db.SetConnMaxLifetime(cfg.MaxLifetime)
		db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	return &DB{DB: db, driver: cfg.Driver}, nil
}
