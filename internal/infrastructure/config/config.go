package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/davidleathers/risk-engine/internal/infrastructure/telemetry"
	"github.com/davidleathers/risk-engine/internal/service/fraud"
)

// DefaultPath is where Load looks for the optional YAML file
const DefaultPath = "configs/config.yaml"

// EnvPrefix prefixes every environment override, e.g. RISK_REDIS__URL
const EnvPrefix = "RISK_"

// Storage backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"oneof=development staging production test"`
	LogLevel    string `koanf:"log_level" validate:"oneof=debug info warn error"`

	Server    ServerConfig     `koanf:"server"`
	Database  DatabaseConfig   `koanf:"database"`
	Redis     RedisConfig      `koanf:"redis"`
	Storage   StorageConfig    `koanf:"storage"`
	Telemetry telemetry.Config `koanf:"telemetry"`
	Fraud     fraud.Config     `koanf:"fraud"`
}

type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// how often store sizes are pushed to the metrics exporters
	StatsInterval time.Duration `koanf:"stats_interval" validate:"gt=0"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxConns        int32         `koanf:"max_conns" validate:"gte=0"`
	MinConns        int32         `koanf:"min_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	MigrateOnStart  bool          `koanf:"migrate_on_start"`
}

type RedisConfig struct {
	URL          string        `koanf:"url"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"gte=0"`
	PoolSize     int           `koanf:"pool_size" validate:"gte=0"`
	MinIdleConns int           `koanf:"min_idle_conns" validate:"gte=0"`
	MaxRetries   int           `koanf:"max_retries"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// StorageConfig selects the backing stores for the engine
type StorageConfig struct {
	// Backend holds profiles and device fingerprints
	Backend string `koanf:"backend" validate:"oneof=memory redis"`

	// Blacklist may live in Redis or Postgres independently of Backend
	Blacklist string `koanf:"blacklist" validate:"oneof=memory redis postgres"`

	// AuditEnabled persists every verdict to Postgres
	AuditEnabled bool `koanf:"audit_enabled"`
}

// NeedsRedis reports whether any store is backed by Redis
func (c *Config) NeedsRedis() bool {
	return c.Storage.Backend == BackendRedis || c.Storage.Blacklist == BackendRedis
}

// NeedsPostgres reports whether any component talks to Postgres
func (c *Config) NeedsPostgres() bool {
	return c.Storage.Blacklist == BackendPostgres || c.Storage.AuditEnabled
}

// Defaults returns the configuration used when nothing is overridden
func Defaults() *Config {
	tel := telemetry.DefaultConfig()
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			StatsInterval:   15 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        25,
			MinConns:        2,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Redis: RedisConfig{
			URL:          "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Storage: StorageConfig{
			Backend:   BackendMemory,
			Blacklist: BackendMemory,
		},
		Telemetry: tel,
		Fraud:     fraud.DefaultConfig(),
	}
}

// Load layers defaults, the YAML file at path (if present) and RISK_ environment
// variables. A double underscore in a variable name separates nesting levels.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Validate checks field constraints and cross-field requirements
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.NeedsRedis() && c.Redis.URL == "" {
		return errors.New("invalid config: redis.url is required for redis storage")
	}
	if c.NeedsPostgres() && c.Database.URL == "" {
		return errors.New("invalid config: database.url is required for postgres storage or auditing")
	}
	if c.Database.MinConns > c.Database.MaxConns && c.Database.MaxConns > 0 {
		return errors.New("invalid config: database.min_conns exceeds max_conns")
	}
	return nil
}
