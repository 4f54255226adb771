// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Production is the APP_ENV value that enables production guards.
const Production = "production"

// DefaultEnvFiles are the dotenv files Load reads when they exist.
var DefaultEnvFiles = []string{".env", ".env.local"}

// DatabaseOptions holds the PostgreSQL connection settings.
type DatabaseOptions struct {
	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     string `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"taxonomy"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"changeme"`
	Name     string `env:"POSTGRES_DB" envDefault:"taxonomy"`
	SSLMode  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`
}

// ValkeyOptions holds the Valkey (Redis-compatible cache) settings.
type ValkeyOptions struct {
	Enabled  bool   `env:"VALKEY_ENABLED" envDefault:"true"`
	Host     string `env:"VALKEY_HOST" envDefault:"localhost"`
	Port     string `env:"VALKEY_PORT" envDefault:"6379"`
	Password string `env:"VALKEY_PASSWORD"`
	DB       int    `env:"VALKEY_DB" envDefault:"0"`
}

// RateLimitOptions throttles the storefront routes per client IP. Limits
// are shared through Valkey when it is enabled.
type RateLimitOptions struct {
	Enabled  bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Requests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"300"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Config holds all application configuration values loaded from the environment.
type Config struct {
	// Server settings
	Host string `env:"APP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"APP_PORT" envDefault:"8080"`
	Env  string `env:"APP_ENV" envDefault:"development"` // "development", "production", "testing"

	Database  DatabaseOptions
	Valkey    ValkeyOptions
	RateLimit RateLimitOptions

	TreeCacheTTL time.Duration `env:"TREE_CACHE_TTL" envDefault:"5m"`

	// Logging: "text" or "json". Empty picks text in development.
	LogFormat string `env:"LOG_FORMAT"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// AutoSeed seeds an empty hierarchy on serve in development.
	AutoSeed bool `env:"AUTO_SEED" envDefault:"true"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// LoadEnvFiles loads the given dotenv files that exist into the process
// environment. Variables already set win. Returns how many were read.
func LoadEnvFiles(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("load env files: %w", err)
	}
	return len(existing), nil
}

// Load reads configuration from the dotenv files and the environment,
// applying defaults for development where appropriate. Returns an error
// if critical values are missing in production mode.
func Load(envFiles ...string) (*Config, error) {
	if _, err := LoadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env == Production && c.Database.Password == "changeme" {
		return errors.New("POSTGRES_PASSWORD must be set in production")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be 'text' or 'json', got %q", c.LogFormat)
	}
	if c.RateLimit.Enabled && (c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive, got %d per %s",
			c.RateLimit.Requests, c.RateLimit.Window)
	}
	if c.TreeCacheTTL < 0 {
		return fmt.Errorf("TREE_CACHE_TTL must be non-negative, got %s", c.TreeCacheTTL)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.SSLMode,
	)
}

// Addr returns the server listen address (host:port).
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// ValkeyAddr returns the Valkey address, or "" when the cache is disabled.
func (c *Config) ValkeyAddr() string {
	if !c.Valkey.Enabled {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.Valkey.Host, c.Valkey.Port)
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// JSONLogs reports whether logs should be written as JSON.
func (c *Config) JSONLogs() bool {
	if c.LogFormat == "" {
		return !c.IsDev()
	}
	return c.LogFormat == "json"
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
