package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// DefaultLookupLimit is the default number of matches a lookup returns.
	DefaultLookupLimit = 5

	// DefaultSuggestMax is the default number of spelling suggestions.
	DefaultSuggestMax = 5

	// DefaultSimilarityFloor is the minimum similarity for a suggestion.
	DefaultSimilarityFloor = 0.55

	// DefaultRetentionDays is how long decided suggestions are kept.
	DefaultRetentionDays = 30
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// Config holds all configuration for rulings.
type Config struct {
	Store      StoreConfig      `mapstructure:"store"`
	Lookup     LookupConfig     `mapstructure:"lookup"`
	Seed       SeedConfig       `mapstructure:"seed"`
	Moderation ModerationConfig `mapstructure:"moderation"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	API        APIConfig        `mapstructure:"api"`
	MCP        MCPConfig        `mapstructure:"mcp"`
}

// StoreConfig selects and locates the entry store.
type StoreConfig struct {
	Driver      string `mapstructure:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	BoltPath    string `mapstructure:"bolt_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// String returns a safe representation of StoreConfig with the DSN password masked.
func (c StoreConfig) String() string {
	return fmt.Sprintf("StoreConfig{Driver:%s, SQLitePath:%s, BoltPath:%s, PostgresDSN:%s}",
		c.Driver, c.SQLitePath, c.BoltPath, maskDSN(c.PostgresDSN))
}

// maskDSN replaces the password of a URL-style DSN with asterisks.
func maskDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return "***"
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		u.User = url.UserPassword(u.User.Username(), "****")
	}
	return u.String()
}

// LookupConfig tunes matching and suggestions.
type LookupConfig struct {
	Limit           int     `mapstructure:"limit"`
	SuggestMax      int     `mapstructure:"suggest_max"`
	SimilarityFloor float64 `mapstructure:"similarity_floor"`
	Metric          string  `mapstructure:"metric"`
}

// SeedConfig locates seed files loaded at startup.
type SeedConfig struct {
	Path  string `mapstructure:"path"`
	Watch bool   `mapstructure:"watch"`
}

// ModerationConfig holds suggestion queue settings.
type ModerationConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
	AuthToken  string `mapstructure:"auth_token"`
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Budget int `mapstructure:"budget"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	dataDir := filepath.Join(homeDir(), ".rulings")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", filepath.Join(dataDir, "rulings.db"))
	v.SetDefault("store.bolt_path", filepath.Join(dataDir, "rulings.bolt"))
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("lookup.limit", DefaultLookupLimit)
	v.SetDefault("lookup.suggest_max", DefaultSuggestMax)
	v.SetDefault("lookup.similarity_floor", DefaultSimilarityFloor)
	v.SetDefault("lookup.metric", "ratio")

	v.SetDefault("seed.path", "")
	v.SetDefault("seed.watch", false)

	v.SetDefault("moderation.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("api.listen_addr", ":8080")
	v.SetDefault("api.auth_token", "")

	v.SetDefault("mcp.budget", 2000)

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.AddConfigPath(".")

	// Environment variables: RULINGS_STORE_DRIVER, RULINGS_LOOKUP_LIMIT, ...
	v.SetEnvPrefix("RULINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Map specific env vars
	_ = v.BindEnv("store.postgres_dsn", "RULINGS_STORE_POSTGRES_DSN", "DATABASE_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK: use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path must not be empty for the sqlite driver")
		}
	case DriverBolt:
		if c.Store.BoltPath == "" {
			return fmt.Errorf("store.bolt_path must not be empty for the bolt driver")
		}
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store.postgres_dsn must not be empty for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, sqlite, postgres, bolt", c.Store.Driver)
	}
	if c.Lookup.Limit <= 0 {
		return fmt.Errorf("lookup.limit must be greater than 0")
	}
	if c.Lookup.SuggestMax < 0 {
		return fmt.Errorf("lookup.suggest_max must be >= 0")
	}
	if c.Lookup.SimilarityFloor < 0 || c.Lookup.SimilarityFloor > 1 {
		return fmt.Errorf("lookup.similarity_floor must be between 0 and 1")
	}
	switch c.Lookup.Metric {
	case "", "ratio", "jaro_winkler":
	default:
		return fmt.Errorf("lookup.metric %q is not one of ratio, jaro_winkler", c.Lookup.Metric)
	}
	if c.Moderation.RetentionDays < 0 {
		return fmt.Errorf("moderation.retention_days must be >= 0")
	}
	if c.MCP.Budget <= 0 {
		return fmt.Errorf("mcp.budget must be greater than 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
