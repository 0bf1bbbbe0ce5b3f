// Package config provides application configuration management from environment variables.
//
// # Overview
//
// LoadConfig reads every setting from ESTATEOPS_* environment variables,
// fills defaults and validates the result. The server refuses to start on
// an invalid configuration.
//
// # Configuration Structure
//
// Server settings:
//
//	ESTATEOPS_HOST="0.0.0.0"
//	ESTATEOPS_PORT="8080"
//	ESTATEOPS_READ_TIMEOUT="15s"
//	ESTATEOPS_SHUTDOWN_TIMEOUT="30s"
//	ESTATEOPS_TRUST_PROXY_HEADERS="false"
//
// Token settings (the secret is required, at least 32 bytes):
//
//	ESTATEOPS_TOKEN_SECRET="..."
//	ESTATEOPS_TOKEN_ISSUER="estateops"
//	ESTATEOPS_ACCESS_TOKEN_TTL="15m"
//	ESTATEOPS_REFRESH_TOKEN_TTL="168h"
//
// Rate limiting:
//
//	ESTATEOPS_RATE_LIMIT_BACKEND="memory"  # memory, redis
//	ESTATEOPS_RATE_LIMIT_MAX_REQUESTS="100"
//	ESTATEOPS_RATE_LIMIT_WINDOW="1m"
//	ESTATEOPS_REDIS_URL="redis://localhost:6379/0"
//
// Storage (empty driver keeps everything in memory):
//
//	ESTATEOPS_DATABASE_DRIVER="postgres"  # postgres, sqlite3
//	ESTATEOPS_DATABASE_URL="postgres://localhost/estateops?sslmode=disable"
//
// Events, automation and activity:
//
//	ESTATEOPS_EVENT_WORKERS="4"
//	ESTATEOPS_AUTOMATION_RULES="/etc/estateops/rules.yaml"
//	ESTATEOPS_ACTIVITY_RETENTION="2160h"
//
// Observability settings:
//
//	ESTATEOPS_LOG_LEVEL="info"  # debug, info, warn, error
//	ESTATEOPS_METRICS_ENABLED="true"
//	ESTATEOPS_OTEL_ENABLED="true"
//	ESTATEOPS_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s\n", cfg.Server.Addr())
//
// # Related Packages
//
//   - pkg/storage: Uses database and redis configuration
//   - pkg/observability: Uses observability configuration
package config
