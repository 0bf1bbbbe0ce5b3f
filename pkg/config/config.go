package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/storage"
)

// Rate limiter backends
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Token codec configuration
	Auth AuthConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// Storage configuration. An empty database driver keeps records and
	// activity in memory.
	Database storage.DBConfig
	Redis    storage.RedisConfig

	// Event bus configuration
	Events EventsConfig

	// Automation rules configuration
	Automation AutomationConfig

	// Activity log configuration
	Activity ActivityConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// TrustProxyHeaders keys anonymous rate limits on X-Forwarded-For
	TrustProxyHeaders bool
}

// AuthConfig holds token codec settings
type AuthConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Pre-authentication limit on the token endpoints, per client IP
	RefreshPerSecond float64
	RefreshBurst     int
}

// RateLimitConfig holds per-tenant-user limiter settings
type RateLimitConfig struct {
	Backend       string
	MaxRequests   int
	Window        time.Duration
	SweepSchedule string
	// FailClosed rejects requests when the redis backend is unreachable
	FailClosed bool
}

// EventsConfig sizes the event bus dispatcher
type EventsConfig struct {
	Workers        int
	QueueSize      int
	MaxConcurrency int
	HandlerTimeout time.Duration
}

// AutomationConfig holds automation rule settings
type AutomationConfig struct {
	RulesPath   string
	Watch       bool
	CacheSize   int
	CacheTTL    time.Duration
	RuleTimeout time.Duration
}

// ActivityConfig holds activity log retention settings
type ActivityConfig struct {
	Retention     time.Duration
	PurgeSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Auth:          loadAuthConfig(),
		RateLimit:     loadRateLimitConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		Events:        loadEventsConfig(),
		Automation:    loadAutomationConfig(),
		Activity:      loadActivityConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Addr returns the HTTP listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:              getEnv("ESTATEOPS_HOST", "0.0.0.0"),
		Port:              getEnv("ESTATEOPS_PORT", "8080"),
		ReadTimeout:       getEnvDuration("ESTATEOPS_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      getEnvDuration("ESTATEOPS_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       getEnvDuration("ESTATEOPS_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   getEnvDuration("ESTATEOPS_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:      getEnvInt64("ESTATEOPS_MAX_BODY_BYTES", 1<<20),
		TrustProxyHeaders: getEnvBool("ESTATEOPS_TRUST_PROXY_HEADERS", false),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		Secret:           getEnv("ESTATEOPS_TOKEN_SECRET", ""),
		Issuer:           getEnv("ESTATEOPS_TOKEN_ISSUER", "estateops"),
		AccessTTL:        getEnvDuration("ESTATEOPS_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:       getEnvDuration("ESTATEOPS_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		RefreshPerSecond: getEnvFloat("ESTATEOPS_REFRESH_RATE", 1),
		RefreshBurst:     getEnvInt("ESTATEOPS_REFRESH_BURST", 5),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Backend:       strings.ToLower(getEnv("ESTATEOPS_RATE_LIMIT_BACKEND", RateLimitMemory)),
		MaxRequests:   getEnvInt("ESTATEOPS_RATE_LIMIT_MAX_REQUESTS", 100),
		Window:        getEnvDuration("ESTATEOPS_RATE_LIMIT_WINDOW", time.Minute),
		SweepSchedule: getEnv("ESTATEOPS_RATE_LIMIT_SWEEP_SCHEDULE", "@every 1m"),
		FailClosed:    getEnvBool("ESTATEOPS_RATE_LIMIT_FAIL_CLOSED", false),
	}
}

func loadDatabaseConfig() storage.DBConfig {
	return storage.DBConfig{
		Driver:      strings.ToLower(getEnv("ESTATEOPS_DATABASE_DRIVER", "")),
		DSN:         getEnv("ESTATEOPS_DATABASE_URL", ""),
		MaxConns:    getEnvInt("ESTATEOPS_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("ESTATEOPS_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("ESTATEOPS_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("ESTATEOPS_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("ESTATEOPS_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
	}
}

func loadRedisConfig() storage.RedisConfig {
	return storage.RedisConfig{
		URL:        getEnv("ESTATEOPS_REDIS_URL", ""),
		MaxRetries: getEnvInt("ESTATEOPS_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("ESTATEOPS_REDIS_POOL_SIZE", 10),
	}
}

func loadEventsConfig() EventsConfig {
	return EventsConfig{
		Workers:        getEnvInt("ESTATEOPS_EVENT_WORKERS", 4),
		QueueSize:      getEnvInt("ESTATEOPS_EVENT_QUEUE_SIZE", 1024),
		MaxConcurrency: getEnvInt("ESTATEOPS_EVENT_MAX_CONCURRENCY", 0),
		HandlerTimeout: getEnvDuration("ESTATEOPS_EVENT_HANDLER_TIMEOUT", 10*time.Second),
	}
}

func loadAutomationConfig() AutomationConfig {
	return AutomationConfig{
		RulesPath:   getEnv("ESTATEOPS_AUTOMATION_RULES", ""),
		Watch:       getEnvBool("ESTATEOPS_AUTOMATION_WATCH", true),
		CacheSize:   getEnvInt("ESTATEOPS_AUTOMATION_CACHE_SIZE", 1024),
		CacheTTL:    getEnvDuration("ESTATEOPS_AUTOMATION_CACHE_TTL", 5*time.Minute),
		RuleTimeout: getEnvDuration("ESTATEOPS_AUTOMATION_RULE_TIMEOUT", 5*time.Second),
	}
}

func loadActivityConfig() ActivityConfig {
	return ActivityConfig{
		Retention:     getEnvDuration("ESTATEOPS_ACTIVITY_RETENTION", 90*24*time.Hour),
		PurgeSchedule: getEnv("ESTATEOPS_ACTIVITY_PURGE_SCHEDULE", "@daily"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           strings.ToLower(getEnv("ESTATEOPS_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("ESTATEOPS_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("ESTATEOPS_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("ESTATEOPS_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("ESTATEOPS_OTEL_SERVICE_NAME", "estateops"),
		OTelServiceVersion: getEnv("ESTATEOPS_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("ESTATEOPS_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("ESTATEOPS_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if len(c.Auth.Secret) < auth.MinSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes (ESTATEOPS_TOKEN_SECRET)", auth.MinSecretLength)
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return fmt.Errorf("refresh token TTL must not be shorter than access token TTL")
	}
	if c.Auth.RefreshPerSecond <= 0 || c.Auth.RefreshBurst <= 0 {
		return fmt.Errorf("refresh rate and burst must be positive")
	}

	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("rate limit max requests must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	switch c.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis rate limit backend")
		}
	default:
		return fmt.Errorf("invalid rate limit backend: %s (must be memory or redis)", c.RateLimit.Backend)
	}

	switch c.Database.Driver {
	case "":
	case storage.DriverPostgres, storage.DriverSQLite:
		if c.Database.DSN == "" {
			return fmt.Errorf("database URL is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres, sqlite3 or empty)", c.Database.Driver)
	}

	if c.Activity.Retention <= 0 {
		return fmt.Errorf("activity retention must be positive")
	}

	switch c.Observability.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Observability.LogLevel)
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
