// Package main wires the Sync Engine, its State Store / Fan-out Bus / Audit
// Pipeline collaborators, and the HTTP framing layer into a running server.
// Grounded on the teacher's cmd/server/main.go shape: flags, structured
// logging, config load, a deployment-profile switch deciding which
// collaborator implementations to construct, graceful shutdown on
// SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vitaliisemenov/turnsync/internal/api"
	apihandlers "github.com/vitaliisemenov/turnsync/internal/api/handlers"
	"github.com/vitaliisemenov/turnsync/internal/audit"
	"github.com/vitaliisemenov/turnsync/internal/clock"
	"github.com/vitaliisemenov/turnsync/internal/config"
	"github.com/vitaliisemenov/turnsync/internal/delivery"
	dbpostgres "github.com/vitaliisemenov/turnsync/internal/database/postgres"
	"github.com/vitaliisemenov/turnsync/internal/engine"
	"github.com/vitaliisemenov/turnsync/internal/fanout"
	"github.com/vitaliisemenov/turnsync/internal/infrastructure/migrations"
	"github.com/vitaliisemenov/turnsync/internal/statestore"
	pkgmetrics "github.com/vitaliisemenov/turnsync/pkg/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	serviceName    = "turnsync"
	serviceVersion = "1.0.0"
)

func main() {
	var showVersion = flag.Bool("version", false, "Show version information")
	var configPath = flag.String("config", "", "Path to YAML config file (optional; env vars always win)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("starting turnsync",
		"service", serviceName,
		"version", serviceVersion,
		"profile", cfg.GetProfileName(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build server dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	metricsRegistry := pkgmetrics.DefaultRegistry()

	eng := engine.New(deps.Store, deps.Pipeline, clock.NewReal(), clock.NewUUIDGenerator(), logger)
	eng.SetMetrics(metricsRegistry.Business())

	deps.Pipeline.SetMetrics(metricsRegistry.Business())

	plane := delivery.NewPlane(deps.Store, deps.Bus, clock.NewReal(), logger, cfg.Push.KeepaliveInterval)
	plane.SetMetrics(metricsRegistry.Business(), metricsRegistry.Technical().Delivery)

	if deps.pgPool != nil {
		exporter := dbpostgres.NewPrometheusExporter(deps.pgPool, metricsRegistry.Infra().DB).
			WithCircuitBreakerMetrics(metricsRegistry.Technical().CircuitBreaker)
		exporter.Start(ctx, 10*time.Second)
		defer exporter.Stop()
	}

	if redisStore, ok := deps.Store.(*statestore.RedisStore); ok {
		redisStore.SetMetrics(metricsRegistry.Infra().Cache)
	}

	planeCtx, cancelPlane := context.WithCancel(ctx)
	defer cancelPlane()
	go func() {
		if err := plane.Run(planeCtx); err != nil && planeCtx.Err() == nil {
			logger.Error("delivery plane stopped unexpectedly", "error", err)
		}
	}()

	routerConfig := api.DefaultRouterConfig(logger)
	routerConfig.RateLimitPerMinute = cfg.Limits.GeneralPerMinute
	routerConfig.SwitchRateLimit = cfg.Limits.SwitchPerSecond * 60
	routerConfig.CORSConfig.AllowedOrigins = []string{cfg.Server.CORSOrigin}
	routerConfig.Session = apihandlers.NewSessionHandlers(eng, clock.NewReal(), logger)
	routerConfig.Delivery = plane

	router := api.NewRouter(routerConfig)
	router.Handle(cfg.Metrics.Path, mustMetricsHandler(logger))

	signalHandler := cmdSignalHandler(cfg, logger)
	if err := signalHandler.Start(); err != nil {
		logger.Warn("hot-reload signal handler failed to start, continuing without it", "error", err)
	} else {
		defer signalHandler.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	cancelPlane()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

// serverDependencies holds every collaborator whose concrete type depends on
// the selected deployment profile, plus whatever needs closing on shutdown.
type serverDependencies struct {
	Store    engine.Store
	Bus      fanout.Bus
	Pipeline *audit.Pipeline

	redisClient *redis.Client
	pgPool      *dbpostgres.PostgresPool
	sqliteRepo  *audit.SQLiteRepository
}

func (d *serverDependencies) Close() {
	if d.Pipeline != nil {
		_ = d.Pipeline.Close()
	}
	if d.redisClient != nil {
		_ = d.redisClient.Close()
	}
	if d.pgPool != nil {
		_ = d.pgPool.Disconnect(context.Background())
	}
}

// buildDependencies constructs the State Store, Fan-out Bus, and Audit
// Pipeline appropriate to cfg.Profile: the lite profile wires an in-process
// store, an in-process bus, and a SQLite-backed pipeline with zero external
// dependencies; the standard profile wires a shared *redis.Client for the
// store and bus and a pooled *pgxpool.Pool for the pipeline, matching the
// teacher's own lite/standard switch in internal/config.
func buildDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*serverDependencies, error) {
	deps := &serverDependencies{}
	retry := audit.RetryConfig{
		MaxAttempts: cfg.Audit.RetryAttempts,
		InitialWait: cfg.Audit.BackoffInitial,
		MaxWait:     cfg.Audit.BackoffMax,
	}
	dlq := audit.NewDeadLetterStore()

	switch cfg.Profile {
	case config.ProfileLite:
		bus := fanout.NewLocalBus(ctx, logger)
		deps.Bus = bus
		deps.Store = statestore.NewMemoryStore(bus, cfg.Session.TTL)

		repo, err := audit.NewSQLiteRepository(cfg.Storage.FilesystemPath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite audit store: %w", err)
		}
		deps.sqliteRepo = repo
		deps.Pipeline = audit.NewPipeline(repo, dlq, logger, cfg.Audit.WorkerPoolSize, retry)

	case config.ProfileStandard:
		redisClient := redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
			MaxRetries:   cfg.Redis.MaxRetries,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		deps.redisClient = redisClient

		bus := fanout.NewRedisBus(redisClient, logger)
		deps.Bus = bus
		deps.Store = statestore.NewRedisStore(redisClient, bus, cfg.Session.TTL, cfg.Redis.KeyPrefix)

		pgPool := dbpostgres.NewPostgresPool(&dbpostgres.PostgresConfig{
			Host:            cfg.Database.Host,
			Port:            cfg.Database.Port,
			Database:        cfg.Database.Database,
			User:            cfg.Database.Username,
			Password:        cfg.Database.Password,
			SSLMode:         cfg.Database.SSLMode,
			MaxConns:        int32(cfg.Database.MaxConnections),
			MinConns:        int32(cfg.Database.MinConnections),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			ConnectTimeout:  cfg.Database.ConnectTimeout,
		}, logger)
		if err := pgPool.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		deps.pgPool = pgPool

		if err := runMigrations(cfg, logger); err != nil {
			logger.Warn("database migrations did not complete; continuing, manual intervention may be required", "error", err)
		}

		deps.Pipeline = audit.NewPipeline(audit.NewPostgresRepository(pgPool.Pool(), logger), dlq, logger, cfg.Audit.WorkerPoolSize, retry)

	default:
		return nil, fmt.Errorf("unknown deployment profile %q", cfg.Profile)
	}

	return deps, nil
}

// runMigrations applies pending goose migrations against the Postgres audit
// store. Failures are logged by the caller, not fatal: an operator may need
// to intervene manually without blocking the rest of the process from
// serving already-consistent state.
func runMigrations(cfg *config.Config, logger *slog.Logger) error {
	manager, err := migrations.NewMigrationManager(&migrations.MigrationConfig{
		Driver:  "pgx",
		DSN:     cfg.GetDatabaseURL(),
		Dialect: "postgres",
		Dir:     "migrations",
		Table:   "goose_db_version",
		Timeout: 5 * time.Minute,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create migration manager: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	return manager.Up(ctx)
}

// mustMetricsHandler builds the Prometheus exposition endpoint. Grounded on
// the teacher's pkg/metrics.MetricsEndpointHandler (rate-limited,
// self-observed /metrics handler); passing a nil registry exposes the
// process's promauto-registered default metrics only, which is everything
// this service's own metrics (pipeline, fanout, realtime) register against.
func mustMetricsHandler(logger *slog.Logger) http.Handler {
	handler, err := pkgmetrics.NewMetricsEndpointHandler(pkgmetrics.DefaultEndpointConfig(), nil)
	if err != nil {
		logger.Error("failed to build metrics endpoint, serving empty handler", "error", err)
		return http.NotFoundHandler()
	}
	return handler
}

// configApplier receives hot-reloaded configuration and logs its profile and
// log level. It changes nothing at runtime: rate limits, the log level and
// long-lived handles (Redis client, Postgres pool) keep the values they were
// built with at startup.
type configApplier struct {
	logger *slog.Logger
}

func (a *configApplier) ApplyConfig(cfg *config.Config) {
	a.logger.Info("configuration reloaded", "profile", cfg.GetProfileName(), "log_level", cfg.Log.Level)
}

func cmdSignalHandler(cfg *config.Config, logger *slog.Logger) *SignalHandler {
	return NewSignalHandler(&configApplier{logger: logger}, cfg, logger)
}
