package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/api"
	"github.com/platinummonkey/estateops/pkg/audit"
	"github.com/platinummonkey/estateops/pkg/auth"
	"github.com/platinummonkey/estateops/pkg/automation"
	"github.com/platinummonkey/estateops/pkg/config"
	"github.com/platinummonkey/estateops/pkg/events"
	"github.com/platinummonkey/estateops/pkg/observability"
	"github.com/platinummonkey/estateops/pkg/ratelimit"
	"github.com/platinummonkey/estateops/pkg/records"
	"github.com/platinummonkey/estateops/pkg/storage"
)

// set by -ldflags at build time
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "Print the version and exit")
	migrateOnly := flag.Bool("migrate-only", false, "Create the database tables and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logrus.SetFormatter(logger.Formatter)
	logrus.SetLevel(logger.GetLevel())

	if err := run(cfg, logger, *migrateOnly); err != nil {
		logger.WithError(err).Fatal("estateops exited with error")
	}
}

func run(cfg *config.Config, logger *logrus.Logger, migrateOnly bool) error {
	ctx := context.Background()

	otel, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
		SampleRatio:    cfg.Observability.OTelSampleRatio,
	}, logger)
	if err != nil {
		return fmt.Errorf("init opentelemetry: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	// Storage
	var (
		db          *storage.DB
		recordStore records.Store = records.NewMemoryStore()
		activity    audit.Store   = audit.NewMemoryStore()
	)
	if cfg.Database.Driver != "" {
		db, err = storage.OpenDB(ctx, cfg.Database)
		if err != nil {
			return err
		}
		sqlStore, err := records.NewSQLStore(db)
		if err != nil {
			return err
		}
		if err := sqlStore.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate records: %w", err)
		}
		dbActivity, err := audit.NewDBStore(ctx, db)
		if err != nil {
			return fmt.Errorf("migrate activity log: %w", err)
		}
		recordStore, activity = sqlStore, dbActivity
		logger.WithField("driver", cfg.Database.Driver).Info("Database storage initialized")
	} else {
		logger.Warn("No database configured, records and activity are kept in memory")
	}
	if migrateOnly {
		logger.Info("Migrations applied")
		if db != nil {
			return db.Close()
		}
		return nil
	}

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = storage.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
	}

	// Token codec
	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     []byte(cfg.Auth.Secret),
		Issuer:     cfg.Auth.Issuer,
		AccessTTL:  cfg.Auth.AccessTTL,
		RefreshTTL: cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return err
	}

	// Rate limiting
	limitCfg := ratelimit.Config{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	memLimiter := ratelimit.NewLimiter(limitCfg)
	var limiter ratelimit.Backend = memLimiter
	if cfg.RateLimit.Backend == config.RateLimitRedis {
		var opts []ratelimit.RedisOption
		if cfg.RateLimit.FailClosed {
			opts = append(opts, ratelimit.WithFailClosed())
		}
		limiter = ratelimit.NewRedisLimiter(redisClient, limitCfg, "estateops:ratelimit:", logger, opts...)
		logger.Info("Using redis rate limiter")
	} else {
		logger.Warn("Using in-process rate limiter; limits are per replica")
	}
	refreshLimiter := ratelimit.NewTokenBucket(cfg.Auth.RefreshPerSecond, cfg.Auth.RefreshBurst)

	// Event bus and subscribers
	bus := events.NewBus(events.Config{
		Workers:        cfg.Events.Workers,
		QueueSize:      cfg.Events.QueueSize,
		MaxConcurrency: cfg.Events.MaxConcurrency,
		HandlerTimeout: cfg.Events.HandlerTimeout,
	}, logger, metrics)
	audit.NewRecorder(activity, logger, metrics).Register(bus)

	var engine *automation.Engine
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if cfg.Automation.RulesPath != "" {
		engine = automation.NewEngine(automation.Config{
			CacheSize:   cfg.Automation.CacheSize,
			CacheTTL:    cfg.Automation.CacheTTL,
			RuleTimeout: cfg.Automation.RuleTimeout,
		}, recordStore, bus, logger, metrics)
		if err := engine.Reload(cfg.Automation.RulesPath); err != nil {
			return fmt.Errorf("load automation rules: %w", err)
		}
		engine.Register(bus)
		if cfg.Automation.Watch {
			if err := engine.Watch(watchCtx, cfg.Automation.RulesPath); err != nil {
				logger.WithError(err).Warn("Automation rule hot reload disabled")
			}
		}
	}

	// Scheduled maintenance
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.RateLimit.SweepSchedule, func() {
		removed := memLimiter.Sweep() + refreshLimiter.Sweep()
		metrics.SetRateLimitKeys(memLimiter.Len())
		logger.WithField("removed", removed).Debug("Rate limiter swept")
	}); err != nil {
		return fmt.Errorf("schedule rate limiter sweep: %w", err)
	}
	if _, err := scheduler.AddFunc(cfg.Activity.PurgeSchedule,
		audit.PurgeJob(activity, audit.RetentionPolicy{MaxAge: cfg.Activity.Retention}, logger)); err != nil {
		return fmt.Errorf("schedule activity purge: %w", err)
	}
	scheduler.Start()

	// HTTP
	server, err := api.NewServer(api.Dependencies{
		Codec:             codec,
		Records:           recordStore,
		Activity:          activity,
		Publisher:         bus,
		Limiter:           limiter,
		RefreshLimiter:    refreshLimiter,
		Automation:        engine,
		RulesPath:         cfg.Automation.RulesPath,
		Health:            observability.NewHealthChecker(healthDB(db), redisClient, version),
		Metrics:           metrics,
		Logger:            logger,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// hooks run in reverse: the bus drains before the stores close
	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	if otel != nil {
		shutdown.Register("opentelemetry", otel.Shutdown)
	}
	if db != nil {
		shutdown.Register("database", func(context.Context) error { return db.Close() })
	}
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("scheduler", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("automation watcher", func(context.Context) error {
		stopWatch()
		return nil
	})
	shutdown.Register("event bus", bus.Close)

	serverErr := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"version": version,
		}).Info("Starting estateops server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	done := make(chan error, 1)
	go func() { done <- shutdown.WaitForSignal() }()

	select {
	case err := <-serverErr:
		if err != nil {
			_ = shutdown.Shutdown()
			return fmt.Errorf("http server: %w", err)
		}
		return <-done
	case err := <-done:
		if err != nil {
			return err
		}
		logger.Info("Shutdown complete")
		return nil
	}
}

func healthDB(db *storage.DB) *sql.DB {
	if db == nil {
		return nil
	}
	return db.DB
}
