package main

import (
	"context"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kevin07696/settlement-service/internal/adapters/postgres"
	"github.com/kevin07696/settlement-service/internal/app"
	"github.com/kevin07696/settlement-service/internal/config"
	"github.com/kevin07696/settlement-service/internal/jobs"
	"github.com/kevin07696/settlement-service/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := app.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer a.Close()
	go postgres.MonitorPool(ctx, a.Pool, 30*time.Second, logger)

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	client := asynq.NewClient(redisOpts)
	defer func() { _ = client.Close() }()

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Queue:       cfg.Worker.Queue,
		Concurrency: cfg.Worker.Concurrency,
		WeeklySpec:  cfg.Worker.WeeklySpec,
		MaxRetry:    cfg.Worker.MaxRetry,
		Recompute:   jobs.NewRecomputeHandler(a.Calculator, a.PortLogger),
		Dispatcher:  jobs.NewDispatcher(client, a.Drivers, cfg.Worker.Queue, cfg.Worker.MaxRetry, a.PortLogger),
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal("Failed to build worker", zap.Error(err))
	}

	metricsServer := observability.StartMetricsServer(
		strconv.Itoa(cfg.Server.MetricsPort),
		a.HealthChecker(),
		logger,
	)
	defer func() {
		if err := observability.ShutdownMetricsServer(context.Background(), metricsServer); err != nil {
			logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}()

	logger.Info("Settlement worker started",
		zap.String("queue", cfg.Worker.Queue),
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.String("weekly_spec", cfg.Worker.WeeklySpec),
	)
	if err := worker.Run(ctx); err != nil {
		logger.Error("Worker stopped with error", zap.Error(err))
	}
}
