package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/kevin07696/settlement-service/internal/adapters/postgres"
	"github.com/kevin07696/settlement-service/internal/app"
	"github.com/kevin07696/settlement-service/internal/config"
	cronHandler "github.com/kevin07696/settlement-service/internal/handlers/cron"
	settlementHandler "github.com/kevin07696/settlement-service/internal/handlers/settlement"
	"github.com/kevin07696/settlement-service/internal/jobs"
	"github.com/kevin07696/settlement-service/pkg/middleware"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/shutdown"
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

	logger.Info("Starting settlement service",
		zap.String("env", cfg.Env),
		zap.String("addr", cfg.Server.Addr()),
		zap.Strings("ingestion_sources", cfg.Ingestion.Sources),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	go postgres.MonitorPool(ctx, a.Pool, 30*time.Second, logger)

	recorder, err := a.NewRecorder(ctx)
	if err != nil {
		logger.Fatal("Failed to initialize payment recorder", zap.Error(err))
	}

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	dispatcher := jobs.NewDispatcher(asynqClient, a.Drivers, cfg.Worker.Queue, cfg.Worker.MaxRetry, a.PortLogger)

	settlements := settlementHandler.NewHandler(a.Calculator, recorder, a.Timeouts, cfg.Server.MaxUploadBytes, logger)
	recompute := cronHandler.NewRecomputeHandler(dispatcher, a.Timeouts, logger, cfg.Server.CronToken)
	if cfg.Server.CronToken == "" {
		logger.Warn("SERVER_CRON_TOKEN not set - cron endpoint will reject every request")
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	inflight := shutdown.NewInFlightTracker("http", logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(!cfg.IsProduction()))
	r.Use(observability.HTTPMetrics)
	r.Use(inflight.Middleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limiter.Middleware)
		settlements.Routes(r)
	})
	r.Post("/cron/recompute-week", recompute.RecomputeWeek)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(
		strconv.Itoa(cfg.Server.MetricsPort),
		a.HealthChecker(),
		logger,
	)

	// Components stop in reverse registration order: HTTP first, pool last.
	sm := shutdown.NewManager(logger, cfg.Server.ShutdownTimeout)
	sm.RegisterNoErr("database", a.Close)
	sm.RegisterNoErr("pool-monitor", cancel)
	sm.RegisterNoErr("rate-limiter", limiter.Shutdown)
	sm.RegisterCloser("asynq-client", asynqClient)
	sm.Register("metrics-server", func(ctx context.Context) error {
		return observability.ShutdownMetricsServer(ctx, metricsServer)
	})
	sm.Register("in-flight", inflight.Shutdown)
	sm.RegisterHTTPServer("http-server", server)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	waitCtx, stop := context.WithCancel(context.Background())
	go func() {
		if err := <-serveErr; err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	if err := sm.WaitForShutdown(waitCtx); err != nil {
		stop()
		logger.Fatal("Shutdown finished with errors", zap.Error(err))
	}
	stop()
	logger.Info("Settlement service stopped")
}
