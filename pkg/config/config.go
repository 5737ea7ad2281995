package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration
type Config struct {
	Log        LogConfig
	Admin      AdminConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	OTEL       OTELConfig
	Cache      CacheConfig
	Telemetry  TelemetryConfig
	Resilience ResilienceConfig
	Ranking    RankingConfig
}

// LogConfig holds logger configuration
type LogConfig struct {
	Env   string `env:"APP_ENV" envDefault:"development"`
	Level string `env:"LOG_LEVEL" envDefault:"info"`
}

// AdminConfig holds the operational HTTP listener configuration
type AdminConfig struct {
	Addr string `env:"ADMIN_ADDR" envDefault:"0.0.0.0:9090"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	Database string `env:"DB_NAME" envDefault:"shop_discovery"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
}

// OTELConfig holds OpenTelemetry configuration
type OTELConfig struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"shop-discovery-core"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"1.0.0"`
	Endpoint       string `env:"OTEL_ENDPOINT"`
	Enabled        bool   `env:"OTEL_ENABLED" envDefault:"false"`
}

// CacheConfig holds per-pool cache configuration
type CacheConfig struct {
	ResultsTTL         time.Duration `env:"CACHE_RESULTS_TTL" envDefault:"5m"`
	ResultsMaxEntries  int           `env:"CACHE_RESULTS_MAX_ENTRIES" envDefault:"100"`
	DerivedTTL         time.Duration `env:"CACHE_DERIVED_TTL" envDefault:"24h"`
	DerivedMaxEntries  int           `env:"CACHE_DERIVED_MAX_ENTRIES" envDefault:"5000"`
	SnapshotTTL        time.Duration `env:"CACHE_SNAPSHOT_TTL" envDefault:"30s"`
	SnapshotMaxEntries int           `env:"CACHE_SNAPSHOT_MAX_ENTRIES" envDefault:"20"`
	MinConfidence      float64       `env:"CACHE_MIN_CONFIDENCE" envDefault:"10"`
	SweepInterval      time.Duration `env:"CACHE_SWEEP_INTERVAL" envDefault:"1m"`
}

// TelemetryConfig holds telemetry aggregation and alerting configuration
type TelemetryConfig struct {
	MinSamples      int           `env:"TELEMETRY_MIN_SAMPLES" envDefault:"10"`
	AlertLogSize    int           `env:"TELEMETRY_ALERT_LOG_SIZE" envDefault:"100"`
	AlertWindow     time.Duration `env:"TELEMETRY_ALERT_WINDOW" envDefault:"5m"`
	AlertRetention  time.Duration `env:"TELEMETRY_ALERT_RETENTION" envDefault:"24h"`
	SampleInterval  time.Duration `env:"TELEMETRY_SAMPLE_INTERVAL" envDefault:"30s"`
	ResourceWindow  int           `env:"TELEMETRY_RESOURCE_WINDOW" envDefault:"10"`
	GrowthRatio     float64       `env:"TELEMETRY_GROWTH_RATIO" envDefault:"1.2"`
	PublishInterval time.Duration `env:"TELEMETRY_PUBLISH_INTERVAL" envDefault:"1m"`
}

// ResilienceConfig holds circuit breaker and retry configuration
type ResilienceConfig struct {
	FailureThreshold  int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5"`
	ResetTimeout      time.Duration `env:"BREAKER_RESET_TIMEOUT" envDefault:"60s"`
	MaxRetries        int           `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	BaseDelay         time.Duration `env:"RETRY_BASE_DELAY" envDefault:"1s"`
	BackoffMultiplier float64       `env:"RETRY_BACKOFF_MULTIPLIER" envDefault:"2"`
	MaxDelay          time.Duration `env:"RETRY_MAX_DELAY" envDefault:"10s"`
	CriticalServices  []string      `env:"CRITICAL_SERVICES" envSeparator:"," envDefault:"catalog"`
}

// RankingConfig holds search ranking configuration
type RankingConfig struct {
	MaxResults      int     `env:"RANKING_MAX_RESULTS" envDefault:"20"`
	SimilarityFloor float64 `env:"RANKING_SIMILARITY_FLOOR" envDefault:"0.6"`
	FuzzyTrigger    int     `env:"RANKING_FUZZY_TRIGGER" envDefault:"3"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the core cannot run with
func (c *Config) Validate() error {
	if c.Cache.ResultsMaxEntries <= 0 || c.Cache.DerivedMaxEntries <= 0 || c.Cache.SnapshotMaxEntries <= 0 {
		return fmt.Errorf("cache pool sizes must be positive")
	}
	if c.Resilience.FailureThreshold <= 0 {
		return fmt.Errorf("BREAKER_FAILURE_THRESHOLD must be positive, got %d", c.Resilience.FailureThreshold)
	}
	if c.Resilience.MaxRetries <= 0 {
		return fmt.Errorf("RETRY_MAX_RETRIES must be positive, got %d", c.Resilience.MaxRetries)
	}
	if c.Ranking.SimilarityFloor <= 0 || c.Ranking.SimilarityFloor > 1 {
		return fmt.Errorf("RANKING_SIMILARITY_FLOOR must be in (0,1], got %v", c.Ranking.SimilarityFloor)
	}
	return nil
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
