package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	jobsapp "github.com/dropcraft/backend/internal/application/jobs"
	syncapp "github.com/dropcraft/backend/internal/application/sync"
	"github.com/dropcraft/backend/internal/infrastructure/cache"
	"github.com/dropcraft/backend/internal/infrastructure/config"
	"github.com/dropcraft/backend/internal/infrastructure/ecommerce"
	"github.com/dropcraft/backend/internal/infrastructure/logger"
	"github.com/dropcraft/backend/internal/infrastructure/persistence"
	"github.com/dropcraft/backend/internal/infrastructure/queue"
	"github.com/dropcraft/backend/internal/infrastructure/secrets"
	"github.com/dropcraft/backend/internal/infrastructure/task"
	"github.com/dropcraft/backend/internal/infrastructure/telemetry"
)

// systemUserID owns maintenance jobs that no real user initiated.
var systemUserID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Dropcraft worker",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int("concurrency", cfg.Worker.Concurrency),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers (no-op when disabled)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	logsProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logs provider", zap.Error(err))
	}

	// Tee worker logs onto the OTLP pipeline. The bridge is a nop core when
	// telemetry is off, so the local output is unaffected either way.
	bridgeMin, err := zapcore.ParseLevel(cfg.Log.Level)
	if err != nil {
		bridgeMin = zapcore.InfoLevel
	}
	log = telemetry.BridgeLogger(log, telemetry.NewZapBridgeCore(cfg.App.Name, logsProvider, bridgeMin))

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Instrument GORM with tracing when telemetry is on
	dbTracingCfg := telemetry.DefaultDBTracingConfig()
	dbTracingCfg.Enabled = tracerProvider.IsEnabled()
	if err := telemetry.NewDBTracingPlugin(dbTracingCfg, log).RegisterOtelGorm(db.DB); err != nil {
		log.Warn("Failed to register database tracing", zap.Error(err))
	}

	// Query and pool metrics ride alongside the traces
	dbMetricsCfg := telemetry.DefaultDBMetricsConfig()
	dbMetricsCfg.Enabled = meterProvider.IsEnabled()
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, dbMetricsCfg, log)
	if err != nil {
		log.Warn("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(ctx)
		defer dbMetrics.Stop()
	}

	// Redis backs the broker, the delivery dedupe store, and the rate limiter
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		cancel()
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()
	log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))

	broker := queue.NewRedisBroker(redisClient, queue.RedisBrokerConfig{
		KeyPrefix:         cfg.Queue.KeyPrefix,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})

	cacheFactory := cache.NewFactory(cfg.Redis, cache.WithLogger(log))
	deduper, err := cacheFactory.CreateIdempotencyStore(redisClient)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	limiter, err := cacheFactory.CreateRateLimiter(cfg.Sync, redisClient)
	if err != nil {
		log.Fatal("Failed to create rate limiter", zap.Error(err))
	}

	// Credential codec for store secrets at rest
	codec, err := secrets.NewCodec(cfg.Secrets.EncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize credentials codec", zap.Error(err))
	}

	// Repositories
	jobRepo := persistence.NewGormJobRepository(db.DB)
	jobItemRepo := persistence.NewGormJobItemRepository(db.DB)
	storeRepo := persistence.NewGormStoreRepository(db.DB)
	linkRepo := persistence.NewGormLinkRepository(db.DB)
	productRepo := persistence.NewGormProductSyncRepository(db.DB)

	// Application services
	adapterRegistry := ecommerce.NewAdapterRegistry()
	orchestrator := syncapp.NewOrchestrator(
		linkRepo,
		storeRepo,
		productRepo,
		adapterRegistry,
		codec,
		jobRepo,
		jobItemRepo,
		limiter,
		log,
	)

	// Worker metrics and periodic queue depth collection
	workerMetrics, err := telemetry.NewWorkerMetrics(telemetry.WorkerMetricsConfig{
		Meter:         meterProvider.Meter("dropcraft.worker"),
		Logger:        log,
		QueueProvider: broker,
	})
	if err != nil {
		log.Fatal("Failed to create worker metrics", zap.Error(err))
	}
	workerMetrics.StartPeriodicCollection(ctx, time.Minute)
	defer workerMetrics.Stop()

	// Task registry and runner. Importer and enricher collaborators are not
	// part of this deployment; their tasks fail permanently if enqueued.
	handlers := jobsapp.NewHandlers(orchestrator, nil, nil, jobRepo, log)
	registry := task.NewRegistry()
	handlers.Register(registry)

	runner := task.NewRunner(registry, broker, jobRepo, log, workerMetrics).
		WithDeduper(deduper)

	worker := task.NewWorker(broker, runner, log, task.WorkerConfig{
		Concurrency:         cfg.Worker.Concurrency,
		PollWait:            cfg.Worker.PollInterval,
		SoftTimeout:         cfg.Worker.SoftTimeout,
		HardTimeout:         cfg.Worker.HardTimeout,
		MaintenanceInterval: cfg.Worker.MaintenanceTick,
	})
	worker.Start(ctx)

	// Periodic cleanup of old terminal jobs
	svc := jobsapp.NewService(broker, jobRepo, jobItemRepo, log)
	if cfg.Worker.CleanupEnabled {
		go scheduleCleanup(ctx, svc, log)
	}

	log.Info("Worker started, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("Shutdown signal received, draining in-flight tasks")

	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := logsProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down logs provider", zap.Error(err))
	}

	log.Info("Worker shut down cleanly")
}

// scheduleCleanup enqueues a jobs:cleanup task once a day. The task itself is
// processed by the worker pool like any other, so a multi-worker deployment
// dedupes via the ledger rather than via the scheduler.
func scheduleCleanup(ctx context.Context, svc *jobsapp.Service, log *zap.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := svc.Enqueue(ctx, systemUserID, jobsapp.TaskCleanup, nil); err != nil {
			log.Error("Failed to enqueue cleanup task", zap.Error(err))
		}
	}
}
