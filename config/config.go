// Package config loads Stellar Map settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/caarlos0/env/v11"

	"github.com/alem-hub/stellar-map/internal/infrastructure/observability"
	"github.com/alem-hub/stellar-map/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/stellar-map/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/stellar-map/internal/infrastructure/scheduler"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Engine        EngineConfig
	Observability ObservabilityConfig
	Worker        WorkerConfig
}

// ══════════════════════════════════════════════════════════════════════════════
// SECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string      `env:"APP_NAME" envDefault:"stellar-map"`
	Environment Environment `env:"APP_ENV" envDefault:"development"`
	Debug       bool        `env:"APP_DEBUG" envDefault:"false"`
	Version     string      `env:"APP_VERSION" envDefault:"dev"`

	// Timezone for cron jobs (default: Asia/Almaty)
	Timezone string `env:"APP_TIMEZONE" envDefault:"Asia/Almaty"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig selects and tunes the content/completion store.
type DatabaseConfig struct {
	Driver     string `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	URL        string `env:"DATABASE_URL"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"stellar.sqlite"`

	MaxConns          int32         `env:"DB_MAX_CONNS" envDefault:"10"`
	MinConns          int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	MaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	HealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`
}

// RedisConfig configures the optional cache and event channel.
type RedisConfig struct {
	Enabled  bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     int    `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`

	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`

	// CompletionCacheTTL bounds how long a learner's completed set is cached.
	CompletionCacheTTL time.Duration `env:"REDIS_COMPLETION_TTL" envDefault:"10m"`
	// Namespace prefixes every cache key.
	Namespace string `env:"REDIS_NAMESPACE" envDefault:"stellar"`
	// PublishEvents mirrors domain events onto Redis pub/sub.
	PublishEvents bool `env:"REDIS_PUBLISH_EVENTS" envDefault:"false"`
}

// EngineConfig tunes classification, grouping and rendering.
type EngineConfig struct {
	// CoreTablePath points at a YAML threshold table; empty uses the built-in one.
	CoreTablePath string `env:"CORE_TABLE_PATH"`

	DefaultReward       int64         `env:"DEFAULT_REWARD" envDefault:"50"`
	EnforceNodeUnlockXP bool          `env:"ENFORCE_NODE_UNLOCK_XP" envDefault:"false"`
	HierarchyCacheTTL   time.Duration `env:"HIERARCHY_CACHE_TTL" envDefault:"5m"`

	PickCacheWindow        time.Duration `env:"PICK_CACHE_WINDOW" envDefault:"100ms"`
	FrameInterval          time.Duration `env:"FRAME_INTERVAL" envDefault:"16ms"`
	ShowConstellationLinks bool          `env:"SHOW_CONSTELLATION_LINKS" envDefault:"true"`

	// ConstellationAliases maps legacy constellation names used by import files.
	ConstellationAliases map[string]string `env:"CONSTELLATION_ALIASES" envSeparator:","`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	TracingEnabled bool    `env:"TRACING_ENABLED" envDefault:"false"`
	SampleRatio    float64 `env:"TRACING_SAMPLE_RATIO" envDefault:"1"`
}

// WorkerConfig schedules the background jobs.
type WorkerConfig struct {
	// AuditSchedule is a cron expression for the hierarchy audit.
	AuditSchedule     string        `env:"WORKER_AUDIT_SCHEDULE" envDefault:"0 * * * *"`
	AuditFailOnErrors bool          `env:"WORKER_AUDIT_FAIL_ON_ERRORS" envDefault:"false"`
	WarmInterval      time.Duration `env:"WORKER_WARM_INTERVAL" envDefault:"5m"`
	JobTimeout        time.Duration `env:"WORKER_JOB_TIMEOUT" envDefault:"2m"`
	MaxHistorySize    int           `env:"WORKER_MAX_HISTORY" envDefault:"100"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LOADING
// ══════════════════════════════════════════════════════════════════════════════

// Load parses the environment, applies overrides in order and validates
// the result.
func Load(overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV %q is not one of development, staging, production", c.App.Environment))
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("APP_TIMEZONE %q is invalid", c.App.Timezone))
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required for the postgres driver")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			errs = append(errs, "SQLITE_PATH is required for the sqlite driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("DATABASE_DRIVER %q must be postgres or sqlite", c.Database.Driver))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "DB_MIN_CONNS must not exceed DB_MAX_CONNS")
	}

	if c.Redis.Enabled && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, "REDIS_PORT must be 1-65535")
	}

	if c.Engine.DefaultReward < 0 {
		errs = append(errs, "DEFAULT_REWARD must be >= 0")
	}
	if c.Engine.FrameInterval <= 0 {
		errs = append(errs, "FRAME_INTERVAL must be positive")
	}
	if c.Engine.PickCacheWindow < 0 {
		errs = append(errs, "PICK_CACHE_WINDOW must be >= 0")
	}
	if c.Engine.CoreTablePath != "" {
		if _, err := os.Stat(c.Engine.CoreTablePath); err != nil {
			errs = append(errs, fmt.Sprintf("CORE_TABLE_PATH %q is not readable", c.Engine.CoreTablePath))
		}
	}

	if c.Observability.SampleRatio < 0 || c.Observability.SampleRatio > 1 {
		errs = append(errs, "TRACING_SAMPLE_RATIO must be 0-1")
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, "LOG_FORMAT must be json or console")
	}

	if _, err := scheduler.ParseCronExpression(c.Worker.AuditSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("WORKER_AUDIT_SCHEDULE: %v", err))
	}
	if c.Worker.WarmInterval <= 0 {
		errs = append(errs, "WORKER_WARM_INTERVAL must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// Location returns the configured timezone, falling back to UTC.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PoolSettings converts the database section for the postgres pool.
func (c DatabaseConfig) PoolSettings() postgres.PoolSettings {
	return postgres.PoolSettings{
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// CacheConfig converts the redis section for redis.NewCache.
func (c RedisConfig) CacheConfig() redis.Config {
	return redis.Config{
		Host:         c.Host,
		Port:         c.Port,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		MaxRetries:   c.MaxRetries,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		Namespace:    c.Namespace,
	}
}

// LoggerOptions builds logger options; debug mode forces the debug level.
func (c *Config) LoggerOptions() logger.Options {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(c.Observability.LogLevel)
	if c.App.Debug {
		opts.Level = logger.LevelDebug
	}
	opts.Development = strings.EqualFold(c.Observability.LogFormat, "console")
	return opts
}

// TracingConfig builds the tracer provider settings.
func (c *Config) TracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Observability.TracingEnabled,
		ServiceName: c.App.Name,
		Environment: string(c.App.Environment),
		Version:     c.App.Version,
		SampleRatio: c.Observability.SampleRatio,
		Writer:      os.Stderr,
	}
}
