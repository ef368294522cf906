// Package app wires configuration, adapters and services for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kevin07696/settlement-service/internal/adapters/cache"
	"github.com/kevin07696/settlement-service/internal/adapters/postgres"
	"github.com/kevin07696/settlement-service/internal/adapters/secrets"
	"github.com/kevin07696/settlement-service/internal/adapters/storage"
	"github.com/kevin07696/settlement-service/internal/config"
	"github.com/kevin07696/settlement-service/internal/domain/ports"
	"github.com/kevin07696/settlement-service/internal/services/commission"
	"github.com/kevin07696/settlement-service/internal/services/fee"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/internal/services/ingestion"
	"github.com/kevin07696/settlement-service/internal/services/payment"
	"github.com/kevin07696/settlement-service/internal/services/settlement"
	"github.com/kevin07696/settlement-service/pkg/logging"
	"github.com/kevin07696/settlement-service/pkg/observability"
	"github.com/kevin07696/settlement-service/pkg/resilience"
)

// App holds the shared dependencies of the server and the worker.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Secrets  ports.SecretStore
	Pool     *pgxpool.Pool
	DB       *postgres.DBExecutor
	Redis    *redis.Client // nil when the cache is disabled
	Timeouts *resilience.TimeoutConfig

	Drivers    *postgres.DriverRepository
	Ledger     *financing.Ledger
	Referrals  *commission.ReferralLedger
	Cache      ports.SettlementCache // nil when Redis is disabled
	Calculator *settlement.Service

	// PortLogger is Logger behind the service-layer interface
	PortLogger ports.Logger

	settlements *postgres.SettlementRepository
}

// Build connects to Postgres and Redis and wires the settlement calculator.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	store, err := NewSecretStore(ctx, cfg.Secrets, logger)
	if err != nil {
		return nil, err
	}
	dsn, err := DatabaseDSN(ctx, store, cfg.Database)
	if err != nil {
		return nil, err
	}
	pool, err := postgres.OpenPool(ctx, postgres.PoolConfig{
		DatabaseURL:     dsn,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Secrets:    store,
		Pool:       pool,
		DB:         postgres.NewDBExecutor(pool),
		Timeouts:   cfg.Timeouts.Resilience(),
		PortLogger: logging.NewZapAdapter(logger),
	}

	if cfg.Redis.Enabled {
		client, err := cache.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.Redis = client
		a.Cache = cache.NewSettlementCache(client)
	} else {
		logger.Warn("Settlement cache disabled")
	}

	policies, err := config.NewPolicyProvider(cfg.Policy)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Drivers = postgres.NewDriverRepository(a.DB)
	a.settlements = postgres.NewSettlementRepository(a.DB)
	a.Ledger = financing.NewLedger(postgres.NewFinancingRepository(a.DB), financing.NewRegistry(), a.PortLogger)
	a.Referrals = commission.NewReferralLedger(postgres.NewReferralRepository(a.DB), a.Drivers, a.settlements, a.PortLogger)

	sources := make([]ports.IngestionSource, 0, len(cfg.Ingestion.Sources))
	for _, name := range cfg.Ingestion.Sources {
		sources = append(sources, postgres.NewIngestionSource(pool, name))
	}
	sources = ingestion.WithBreaker(sources, resilience.BreakerConfig{
		MaxFailures: cfg.Ingestion.BreakerFailures,
		Cooldown:    cfg.Ingestion.BreakerCooldown,
	})

	deps := settlement.Dependencies{
		Drivers:     a.Drivers,
		Exemptions:  a.Drivers,
		Settlements: a.settlements,
		Policies:    policies,
		Ingestion:   ingestion.NewAggregator(sources, a.Timeouts.SourceRead, cfg.Ingestion.MaxParallel, a.PortLogger),
		Fees:        fee.NewResolver(),
		Financing:   a.Ledger,
		Referrals:   a.Referrals,
		Goals:       commission.NewGoalEvaluator(postgres.NewGoalRepository(a.DB)),
		Cache:       a.Cache,
		Logger:      a.PortLogger,
	}
	a.Calculator = settlement.NewService(deps, cfg.Redis.DraftTTL)

	return a, nil
}

// NewRecorder wires the payment recorder with the S3 evidence store. Only
// the API server commits payments.
func (a *App) NewRecorder(ctx context.Context) (*payment.Recorder, error) {
	secretKey, err := secrets.Resolve(ctx, a.Secrets, a.Config.Evidence.SecretKeySecret, "")
	if err != nil {
		return nil, err
	}
	evidence, err := storage.NewS3EvidenceStore(ctx, storage.S3Config{
		Bucket:    a.Config.Evidence.Bucket,
		Region:    a.Config.Evidence.Region,
		Endpoint:  a.Config.Evidence.Endpoint,
		AccessKey: a.Config.Evidence.AccessKey,
		SecretKey: secretKey,
		BaseURL:   a.Config.Evidence.BaseURL,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("init evidence store: %w", err)
	}

	return payment.NewRecorder(
		a.DB,
		a.settlements,
		postgres.NewPaymentRepository(a.DB),
		a.Calculator,
		a.Ledger,
		a.Referrals,
		evidence,
		a.Cache,
		a.Timeouts,
		a.PortLogger,
	), nil
}

// HealthChecker checks Postgres, and Redis when it is enabled.
func (a *App) HealthChecker() *observability.HealthChecker {
	deps := []observability.Dependency{observability.PostgresDependency(a.Pool)}
	if a.Redis != nil {
		deps = append(deps, observability.RedisDependency(a.Redis))
	}
	return observability.NewHealthChecker(deps...)
}

// Close releases the pool and the Redis client
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("redis close", zap.Error(err))
		}
	}
	a.Pool.Close()
}

// NewSecretStore builds the configured secret backend
func NewSecretStore(ctx context.Context, cfg config.SecretsConfig, logger *zap.Logger) (ports.SecretStore, error) {
	store, err := secrets.New(ctx, secrets.Options{
		Backend: cfg.Backend,
		AWS: secrets.AWSConfig{
			Region:   cfg.AWSRegion,
			Profile:  cfg.AWSProfile,
			Endpoint: cfg.AWSEndpoint,
			CacheTTL: cfg.CacheTTL,
		},
		Vault: secrets.VaultConfig{
			Address:    cfg.VaultAddress,
			AuthMethod: cfg.VaultAuth,
			Token:      cfg.VaultToken,
			RoleID:     cfg.VaultRoleID,
			SecretID:   cfg.VaultSecretID,
			Namespace:  cfg.VaultNamespace,
			MountPath:  cfg.VaultMount,
			CacheTTL:   cfg.CacheTTL,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}
	return store, nil
}

// DatabaseDSN resolves the database password and returns the connection string
func DatabaseDSN(ctx context.Context, store ports.SecretStore, cfg config.DatabaseConfig) (string, error) {
	password, err := secrets.Resolve(ctx, store, cfg.PasswordSecret, cfg.Password)
	if err != nil {
		return "", err
	}
	return cfg.ConnectionString(password), nil
}

// NewLogger builds the process logger from configuration
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	return logging.New(cfg.Level, cfg.Development)
}
