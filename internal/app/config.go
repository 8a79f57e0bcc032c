package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/edgeunify07/textile-flow-forge/internal/platform/cache"
	"github.com/edgeunify07/textile-flow-forge/internal/platform/db"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"memory"`
	PGDSN         string `envconfig:"PG_DSN"`

	PGMaxConns        int32         `envconfig:"PG_MAX_CONNS" default:"10"`
	PGMaxConnLifetime time.Duration `envconfig:"PG_MAX_CONN_LIFETIME" default:"30m"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	SummaryCacheTTL    time.Duration `envconfig:"SUMMARY_CACHE_TTL" default:"10m"`
	RateLimitPerMinute int           `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CurrencyLocale     string        `envconfig:"CURRENCY_LOCALE" default:"en-US"`

	RecomputeConcurrency int    `envconfig:"RECOMPUTE_CONCURRENCY" default:"4"`
	RecomputeCron        string `envconfig:"RECOMPUTE_CRON" default:"30 2 * * *"`
	WorkerMetricsAddr    string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from an optional .env file and the environment.
// Variables already present in the environment win over the file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	if c.StorageDriver == "" {
		c.StorageDriver = StorageMemory
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.PGDSN == "" {
			return errors.New("PG_DSN must be provided when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.RateLimitPerMinute <= 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.RecomputeConcurrency <= 0 {
		return errors.New("RECOMPUTE_CONCURRENCY must be positive")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// Redis returns the shared Redis connection settings.
func (c *Config) Redis() cache.Options {
	return cache.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB}
}

// QueuesRecompute reports whether recompute requests go to the worker queue.
// The worker only reads Postgres, so a memory store always recomputes inline.
func (c *Config) QueuesRecompute() bool {
	return c.Redis().Enabled() && c.StorageDriver == StoragePostgres
}

// Postgres returns the connection pool settings.
func (c *Config) Postgres() db.PoolOptions {
	return db.PoolOptions{MaxConns: c.PGMaxConns, MaxConnLifetime: c.PGMaxConnLifetime}
}
