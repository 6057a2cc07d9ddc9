package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for goldfuse-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8460"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Metadata database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Scanner behavior
	Scanner ScannerConfig `yaml:"scanner"`

	// Identity resolution behavior
	Resolver ResolverConfig `yaml:"resolver"`
}

// DatabaseConfig holds PostgreSQL metadata store configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"goldfuse"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"goldfuse_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// ScannerConfig holds source profiling settings.
type ScannerConfig struct {
	// SampleLimit caps the number of distinct values fed into a column's
	// sample hash. Bounding the sample keeps a profiling pass finite
	// without a hard timeout.
	SampleLimit int `yaml:"sample_limit" env:"SCANNER_SAMPLE_LIMIT" env-default:"50"`

	// MaxConcurrentSources limits how many sources are profiled in parallel.
	// Tables within one source are always profiled sequentially.
	MaxConcurrentSources int `yaml:"max_concurrent_sources" env:"SCANNER_MAX_CONCURRENT_SOURCES" env-default:"4"`
}

// ResolverConfig holds identity resolution settings.
type ResolverConfig struct {
	// Workers is the number of parallel row-resolution workers per run.
	Workers int `yaml:"workers" env:"RESOLVER_WORKERS" env-default:"8"`

	// RowLimit caps how many rows are fetched from one source table for
	// resolution in a single run.
	RowLimit int `yaml:"row_limit" env:"RESOLVER_ROW_LIMIT" env-default:"10000"`

	// ExactKeyFallback resolves candidates that have no active identity
	// rules by hashing (source system, source pk, object type) instead of
	// skipping them. Off by default: rows matched this way never collapse
	// across systems.
	ExactKeyFallback bool `yaml:"exact_key_fallback" env:"RESOLVER_EXACT_KEY_FALLBACK" env-default:"false"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// If config.yaml does not exist, configuration comes from environment variables
// alone. The version parameter is injected at build time and set on the
// returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Scanner.SampleLimit <= 0 {
		return fmt.Errorf("scanner sample_limit must be positive, got %d", c.Scanner.SampleLimit)
	}
	if c.Scanner.MaxConcurrentSources <= 0 {
		return fmt.Errorf("scanner max_concurrent_sources must be positive, got %d", c.Scanner.MaxConcurrentSources)
	}
	if c.Resolver.Workers <= 0 {
		return fmt.Errorf("resolver workers must be positive, got %d", c.Resolver.Workers)
	}
	if c.Resolver.RowLimit <= 0 {
		return fmt.Errorf("resolver row_limit must be positive, got %d", c.Resolver.RowLimit)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string for the metadata store.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
