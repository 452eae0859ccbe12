// Package config provides the typed configuration of the application, loaded
// from viper with defaults and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Veraticus/taxomap/internal/common"
	"github.com/Veraticus/taxomap/internal/oracle"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the full application configuration.
type Config struct {
	Taxonomy   TaxonomyConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Oracle     OracleConfig
	Navigation NavigationConfig
	Cache      CacheConfig
}

// TaxonomyConfig locates the taxonomy snapshot.
type TaxonomyConfig struct {
	Path string
}

// DatabaseConfig selects and locates the mapping store.
type DatabaseConfig struct {
	Driver string
	Path   string
	DSN    string
}

// OracleConfig configures the oracle backend.
type OracleConfig struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	RateLimit   float64
	Burst       int
	MaxRetries  int
	RetryDelay  time.Duration
}

// NavigationConfig bounds navigations.
type NavigationConfig struct {
	TurnTimeout    time.Duration
	RequestTimeout time.Duration
	MaxTurns       int
}

// CacheConfig configures the in-process memo layer.
type CacheConfig struct {
	MemoryTTL time.Duration
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	Level  string
	Format string
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("taxonomy.path", "$HOME/.local/share/taxomap/taxonomy.json")
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "$HOME/.local/share/taxomap/mappings.db")
	v.SetDefault("oracle.provider", "gemini")
	v.SetDefault("oracle.temperature", 0.0)
	v.SetDefault("oracle.rate_limit", 5.0)
	v.SetDefault("oracle.burst", 5)
	v.SetDefault("oracle.max_retries", 3)
	v.SetDefault("oracle.retry_delay", time.Second)
	v.SetDefault("navigation.turn_timeout", 30*time.Second)
	v.SetDefault("navigation.request_timeout", 2*time.Minute)
	v.SetDefault("navigation.max_turns", 0)
	v.SetDefault("cache.memory_ttl", 10*time.Minute)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads the configuration from v. Provider API keys fall back to the
// providers' conventional environment variables when not configured.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		Taxonomy: TaxonomyConfig{
			Path: ExpandPath(v.GetString("taxonomy.path")),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			Path:   ExpandPath(v.GetString("database.path")),
			DSN:    v.GetString("database.dsn"),
		},
		Oracle: OracleConfig{
			Provider:    strings.ToLower(v.GetString("oracle.provider")),
			Model:       v.GetString("oracle.model"),
			APIKey:      v.GetString("oracle.api_key"),
			BaseURL:     v.GetString("oracle.base_url"),
			Temperature: v.GetFloat64("oracle.temperature"),
			RateLimit:   v.GetFloat64("oracle.rate_limit"),
			Burst:       v.GetInt("oracle.burst"),
			MaxRetries:  v.GetInt("oracle.max_retries"),
			RetryDelay:  v.GetDuration("oracle.retry_delay"),
		},
		Navigation: NavigationConfig{
			TurnTimeout:    v.GetDuration("navigation.turn_timeout"),
			RequestTimeout: v.GetDuration("navigation.request_timeout"),
			MaxTurns:       v.GetInt("navigation.max_turns"),
		},
		Cache: CacheConfig{
			MemoryTTL: v.GetDuration("cache.memory_ttl"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if cfg.Oracle.APIKey == "" {
		switch cfg.Oracle.Provider {
		case "gemini", "google":
			cfg.Oracle.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		case "openai":
			cfg.Oracle.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == DriverPostgres {
		cfg.Database.DSN = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted. It does not require
// oracle credentials; commands that call the oracle check those themselves.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("%w: database.path", common.ErrMissingConfig)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("%w: database.dsn", common.ErrMissingConfig)
		}
	default:
		return fmt.Errorf("%w: database.driver must be %q or %q, got %q",
			common.ErrInvalidConfig, DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	switch c.Oracle.Provider {
	case "gemini", "google", "openai":
	default:
		return fmt.Errorf("%w: oracle.provider must be gemini or openai, got %q", common.ErrInvalidConfig, c.Oracle.Provider)
	}

	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("%w: oracle.temperature must be between 0 and 2", common.ErrInvalidConfig)
	}
	if c.Oracle.RateLimit < 0 || c.Oracle.Burst < 0 || c.Oracle.MaxRetries < 0 {
		return fmt.Errorf("%w: oracle rate_limit, burst and max_retries must not be negative", common.ErrInvalidConfig)
	}
	if c.Navigation.MaxTurns < 0 {
		return fmt.Errorf("%w: navigation.max_turns must not be negative", common.ErrInvalidConfig)
	}
	if c.Navigation.TurnTimeout < 0 || c.Navigation.RequestTimeout < 0 || c.Cache.MemoryTTL < 0 {
		return fmt.Errorf("%w: timeouts and ttl must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// OracleSettings converts the configuration for oracle.NewOracle.
func (c *Config) OracleSettings() oracle.Config {
	return oracle.Config{
		Provider:    c.Oracle.Provider,
		APIKey:      c.Oracle.APIKey,
		Model:       c.Oracle.Model,
		BaseURL:     c.Oracle.BaseURL,
		Temperature: c.Oracle.Temperature,
		MaxRetries:  c.Oracle.MaxRetries,
		RetryDelay:  c.Oracle.RetryDelay,
		RateLimit:   c.Oracle.RateLimit,
		Burst:       c.Oracle.Burst,
		CallTimeout: c.Navigation.TurnTimeout,
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
