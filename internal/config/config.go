package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/settlement-service/internal/domain/models"
	"github.com/kevin07696/settlement-service/internal/services/financing"
	"github.com/kevin07696/settlement-service/pkg/resilience"
)

// Config holds all application configuration
type Config struct {
	Env       string          `envconfig:"APP_ENV" default:"development"`
	Server    ServerConfig    `envconfig:"SERVER"`
	Database  DatabaseConfig  `envconfig:"DB"`
	Redis     RedisConfig     `envconfig:"REDIS"`
	Evidence  EvidenceConfig  `envconfig:"EVIDENCE"`
	Secrets   SecretsConfig   `envconfig:"SECRETS"`
	Logger    LoggerConfig    `envconfig:"LOG"`
	Timeouts  TimeoutsConfig  `envconfig:"TIMEOUT"`
	Ingestion IngestionConfig `envconfig:"INGESTION"`
	Worker    WorkerConfig    `envconfig:"WORKER"`
	RateLimit RateLimitConfig `envconfig:"RATE_LIMIT"`
	Policy    PolicyConfig    `envconfig:"POLICY"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8080"`
	MetricsPort     int           `envconfig:"METRICS_PORT" default:"9090"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"75s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	CronToken       string        `envconfig:"CRON_TOKEN"`
}

// Addr is the listen address of the API server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL configuration. URL wins over the
// individual fields when set.
type DatabaseConfig struct {
	URL             string        `envconfig:"URL"`
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"5432"`
	User            string        `envconfig:"USER" default:"postgres"`
	Password        string        `envconfig:"PASSWORD"`
	PasswordSecret  string        `envconfig:"PASSWORD_SECRET"`
	Name            string        `envconfig:"NAME" default:"settlement_service"`
	SSLMode         string        `envconfig:"SSL_MODE" default:"disable"`
	MaxConns        int32         `envconfig:"MAX_CONNS" default:"25"`
	MinConns        int32         `envconfig:"MIN_CONNS" default:"5"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
}

// ConnectionString builds the DSN with the given password
func (d DatabaseConfig) ConnectionString(password string) string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// RedisConfig holds the settlement cache configuration
type RedisConfig struct {
	Enabled  bool          `envconfig:"ENABLED" default:"true"`
	Addr     string        `envconfig:"ADDR" default:"localhost:6379"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0"`
	DraftTTL time.Duration `envconfig:"DRAFT_TTL" default:"10m"`
}

// EvidenceConfig holds the S3 bucket for payment proofs
type EvidenceConfig struct {
	Bucket          string `envconfig:"BUCKET" default:"settlement-evidence"`
	Region          string `envconfig:"REGION" default:"eu-west-1"`
	Endpoint        string `envconfig:"ENDPOINT"`
	AccessKey       string `envconfig:"ACCESS_KEY"`
	SecretKeySecret string `envconfig:"SECRET_KEY_SECRET"`
	BaseURL         string `envconfig:"BASE_URL"`
}

// SecretsConfig selects and configures the secret backend
type SecretsConfig struct {
	Backend        string        `envconfig:"BACKEND" default:"env"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL" default:"5m"`
	AWSRegion      string        `envconfig:"AWS_REGION" default:"eu-west-1"`
	AWSProfile     string        `envconfig:"AWS_PROFILE"`
	AWSEndpoint    string        `envconfig:"AWS_ENDPOINT"`
	VaultAddress   string        `envconfig:"VAULT_ADDR" default:"http://localhost:8200"`
	VaultAuth      string        `envconfig:"VAULT_AUTH" default:"token"`
	VaultToken     string        `envconfig:"VAULT_TOKEN"`
	VaultRoleID    string        `envconfig:"VAULT_ROLE_ID"`
	VaultSecretID  string        `envconfig:"VAULT_SECRET_ID"`
	VaultNamespace string        `envconfig:"VAULT_NAMESPACE"`
	VaultMount     string        `envconfig:"VAULT_MOUNT" default:"secret"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"` // debug, info, warn, error
	Development bool   `envconfig:"DEVELOPMENT" default:"false"`
}

// TimeoutsConfig mirrors resilience.TimeoutConfig
type TimeoutsConfig struct {
	HTTPHandler     time.Duration `envconfig:"HTTP_HANDLER" default:"60s"`
	CronJob         time.Duration `envconfig:"CRON_JOB" default:"5m"`
	Commit          time.Duration `envconfig:"COMMIT" default:"45s"`
	SourceRead      time.Duration `envconfig:"SOURCE_READ" default:"10s"`
	EvidenceCleanup time.Duration `envconfig:"EVIDENCE_CLEANUP" default:"30s"`
	CleanupAttempt  time.Duration `envconfig:"CLEANUP_ATTEMPT" default:"5s"`
}

// Resilience converts to the timeout hierarchy used by services
func (t TimeoutsConfig) Resilience() *resilience.TimeoutConfig {
	return &resilience.TimeoutConfig{
		HTTPHandler:     t.HTTPHandler,
		CronJob:         t.CronJob,
		Commit:          t.Commit,
		SourceRead:      t.SourceRead,
		EvidenceCleanup: t.EvidenceCleanup,
		CleanupAttempt:  t.CleanupAttempt,
	}
}

// IngestionConfig lists the importers read for every driver week
type IngestionConfig struct {
	Sources     []string `envconfig:"SOURCES" default:"platform_a,platform_b,fuel_card,toll_gate"`
	MaxParallel int      `envconfig:"MAX_PARALLEL" default:"4"`

	// BreakerFailures consecutive failures stop reads from a source for
	// BreakerCooldown. Zero disables the breaker.
	BreakerFailures int           `envconfig:"BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BREAKER_COOLDOWN" default:"30s"`
}

// WorkerConfig configures the asynq recompute worker
type WorkerConfig struct {
	Concurrency int    `envconfig:"CONCURRENCY" default:"10"`
	Queue       string `envconfig:"QUEUE" default:"settlements"`
	MaxRetry    int    `envconfig:"MAX_RETRY" default:"5"`

	// WeeklySpec schedules the fan-out for the previous week; empty disables it
	WeeklySpec string `envconfig:"WEEKLY_SPEC" default:"0 3 * * MON"`
}

// RateLimitConfig configures the per-IP limiter on the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RPS" default:"20"`
	Burst             int     `envconfig:"BURST" default:"40"`
}

// PolicyConfig holds the raw settlement policy values. Amounts and rates
// are strings so they parse exactly into decimals.
type PolicyConfig struct {
	VATRate     string `envconfig:"VAT_RATE" default:"0.06"`
	FeeMode     string `envconfig:"FEE_MODE" default:"fixed_amount"`
	FeeValue    string `envconfig:"FEE_VALUE" default:"25"`
	Eligibility string `envconfig:"FINANCING_ELIGIBILITY" default:"start_before_week_end"`

	CommissionEnabled bool   `envconfig:"COMMISSION_ENABLED" default:"true"`
	AffiliateMode     string `envconfig:"COMMISSION_AFFILIATE_MODE" default:"percent"`
	AffiliateValue    string `envconfig:"COMMISSION_AFFILIATE_VALUE" default:"0"`
	AffiliateBase     string `envconfig:"COMMISSION_AFFILIATE_BASE" default:"net_of_vat"`
	RenterMode        string `envconfig:"COMMISSION_RENTER_MODE" default:"percent"`
	RenterValue       string `envconfig:"COMMISSION_RENTER_VALUE" default:"0"`
	RenterBase        string `envconfig:"COMMISSION_RENTER_BASE" default:"net_of_vat"`

	ReferralEnabled   bool     `envconfig:"REFERRAL_ENABLED" default:"true"`
	ReferralRates     []string `envconfig:"REFERRAL_RATES" default:"2,1,0.5"`
	ReferralMaxDepth  int      `envconfig:"REFERRAL_MAX_DEPTH" default:"3"`
	ReferralThreshold string   `envconfig:"REFERRAL_THRESHOLD" default:"0"`
	ReferralTenure    int      `envconfig:"REFERRAL_MIN_TENURE_WEEKS" default:"0"`

	GoalsEnabled bool `envconfig:"GOALS_ENABLED" default:"true"`
}

// Load reads configuration from the environment and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that cannot start the service
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port)
	}
	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns)
	}
	if len(c.Ingestion.Sources) == 0 {
		return fmt.Errorf("INGESTION_SOURCES must list at least one source")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("invalid WORKER_CONCURRENCY %d", c.Worker.Concurrency)
	}
	if c.IsProduction() && c.Secrets.Backend == "env" {
		return fmt.Errorf("SECRETS_BACKEND=env is not allowed in production")
	}
	if _, err := c.Policy.Snapshot(); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Snapshot builds the immutable policy used by one computation
func (p PolicyConfig) Snapshot() (models.PolicySnapshot, error) {
	var snap models.PolicySnapshot

	vat, err := nonNegative("POLICY_VAT_RATE", p.VATRate)
	if err != nil {
		return snap, err
	}
	mode, err := models.ParseFeeMode(p.FeeMode)
	if err != nil {
		return snap, fmt.Errorf("POLICY_FEE_MODE: %w", err)
	}
	feeValue, err := nonNegative("POLICY_FEE_VALUE", p.FeeValue)
	if err != nil {
		return snap, err
	}
	if _, err := financing.NewRegistry().Lookup(p.Eligibility); err != nil {
		return snap, fmt.Errorf("POLICY_FINANCING_ELIGIBILITY: %w", err)
	}

	affiliate, err := commissionRule("AFFILIATE", p.AffiliateMode, p.AffiliateValue, p.AffiliateBase)
	if err != nil {
		return snap, err
	}
	renter, err := commissionRule("RENTER", p.RenterMode, p.RenterValue, p.RenterBase)
	if err != nil {
		return snap, err
	}

	rates := make([]decimal.Decimal, 0, len(p.ReferralRates))
	for i, raw := range p.ReferralRates {
		r, err := nonNegative("POLICY_REFERRAL_RATES["+strconv.Itoa(i)+"]", strings.TrimSpace(raw))
		if err != nil {
			return snap, err
		}
		rates = append(rates, r)
	}
	if p.ReferralMaxDepth < 0 {
		return snap, fmt.Errorf("POLICY_REFERRAL_MAX_DEPTH must be >= 0")
	}
	threshold, err := nonNegative("POLICY_REFERRAL_THRESHOLD", p.ReferralThreshold)
	if err != nil {
		return snap, err
	}

	return models.PolicySnapshot{
		VATRate:     vat,
		DefaultFee:  models.FeeRule{Mode: mode, Value: feeValue},
		Eligibility: p.Eligibility,
		Commission: models.CommissionPolicy{
			Enabled: p.CommissionEnabled,
			Rules: map[models.DriverType]models.CommissionRule{
				models.DriverTypeAffiliate: affiliate,
				models.DriverTypeRenter:    renter,
			},
		},
		Referral: models.ReferralPolicy{
			Enabled:          p.ReferralEnabled,
			LevelRates:       rates,
			MaxDepth:         p.ReferralMaxDepth,
			RevenueThreshold: threshold,
			MinTenureWeeks:   p.ReferralTenure,
		},
		GoalsEnabled: p.GoalsEnabled,
	}, nil
}

func commissionRule(driverType, mode, value, base string) (models.CommissionRule, error) {
	prefix := "POLICY_COMMISSION_" + driverType
	var rule models.CommissionRule

	switch m := models.CommissionMode(mode); m {
	case models.CommissionPercent, models.CommissionFixed:
		rule.Mode = m
	default:
		return rule, fmt.Errorf("%s_MODE: unknown commission mode %q", prefix, mode)
	}
	switch b := models.CommissionBase(base); b {
	case models.CommissionBaseGross, models.CommissionBaseNetOfVAT, models.CommissionBaseNetOfExpenses:
		rule.Base = b
	default:
		return rule, fmt.Errorf("%s_BASE: unknown commission base %q", prefix, base)
	}
	v, err := nonNegative(prefix+"_VALUE", value)
	if err != nil {
		return rule, err
	}
	rule.Value = v
	return rule, nil
}

func nonNegative(name, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%s must be >= 0, got %s", name, raw)
	}
	return d, nil
}
