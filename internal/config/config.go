// Package config provides unified configuration loading for flowerstory.
// Supports YAML files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the flowerstory services.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	LLM           LLMConfig           `yaml:"llm"`
	Gate          GateConfig          `yaml:"gate"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Scoring       ScoringConfig       `yaml:"scoring"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // sqlite or postgres
	History  bool           `yaml:"history"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds model-response cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // memory or redis
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LLMConfig holds language-model provider settings.
type LLMConfig struct {
	Provider           string        `yaml:"provider"` // openrouter, gemini or none
	APIKey             string        `yaml:"api_key"`
	BaseURL            string        `yaml:"base_url"`
	Model              string        `yaml:"model"`
	LightweightModel   string        `yaml:"lightweight_model"`
	LightweightTimeout time.Duration `yaml:"lightweight_timeout"`
	FullTimeout        time.Duration `yaml:"full_timeout"`
	MaxRetries         int           `yaml:"max_retries"`
	CacheResponses     bool          `yaml:"cache_responses"`
}

// GateConfig holds request deduplication settings.
type GateConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	StaleInFlight  time.Duration `yaml:"stale_in_flight"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// ExtractionConfig holds tier selection settings.
type ExtractionConfig struct {
	RulesPath            string `yaml:"rules_path"`
	RuleMaxLength        int    `yaml:"rule_max_length"`
	LightweightMaxLength int    `yaml:"lightweight_max_length"`
}

// CatalogConfig selects where candidates are loaded from.
type CatalogConfig struct {
	Source string `yaml:"source"` // embedded, file or database
	Path   string `yaml:"path"`
}

// ScoringConfig overrides matcher weights. Zero values keep defaults.
type ScoringConfig struct {
	ColorMain         float64 `yaml:"color_main"`
	ColorAlternative  float64 `yaml:"color_alternative"`
	Mood              float64 `yaml:"mood"`
	Emotion           float64 `yaml:"emotion"`
	Situation         float64 `yaml:"situation"`
	SeasonAvailable   float64 `yaml:"season_available"`
	SeasonUnavailable float64 `yaml:"season_unavailable"`
	ExclusionFactor   float64 `yaml:"exclusion_factor"`
	MentionedFlower   float64 `yaml:"mentioned_flower"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads configuration from a YAML file and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}

		cfg.Extraction.RulesPath = resolveOptional(path, cfg.Extraction.RulesPath)
		cfg.Catalog.Path = resolveOptional(path, cfg.Catalog.Path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   20 * time.Second,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver:  "sqlite",
			History: false,
			SQLite: SQLiteConfig{
				Path:         "/tmp/flowerstory.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        10 * time.Minute,
			MaxEntries: 5000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				DB:       0,
				PoolSize: 10,
				Prefix:   "fs:",
			},
		},
		LLM: LLMConfig{
			Provider:           "none",
			BaseURL:            "https://openrouter.ai/api/v1/chat/completions",
			Model:              "openai/gpt-4o-mini",
			LightweightModel:   "openai/gpt-4o-mini",
			LightweightTimeout: 3 * time.Second,
			FullTimeout:        8 * time.Second,
			MaxRetries:         1,
			CacheResponses:     true,
		},
		Gate: GateConfig{
			DebounceWindow: 500 * time.Millisecond,
			StaleInFlight:  30 * time.Second,
			SweepInterval:  5 * time.Second,
		},
		Extraction: ExtractionConfig{
			RuleMaxLength:        10,
			LightweightMaxLength: 30,
		},
		Catalog: CatalogConfig{
			Source: "embedded",
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "flowerstory",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Driver != "sqlite" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}

	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	switch c.LLM.Provider {
	case "none":
	case "openrouter", "gemini":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm provider %s requires an api key", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("invalid llm provider: %s", c.LLM.Provider)
	}

	if c.Gate.DebounceWindow <= 0 {
		return fmt.Errorf("gate debounce_window must be positive")
	}

	if c.Extraction.RuleMaxLength < 0 || c.Extraction.LightweightMaxLength < c.Extraction.RuleMaxLength {
		return fmt.Errorf("extraction thresholds must satisfy 0 <= rule_max_length <= lightweight_max_length")
	}

	switch c.Catalog.Source {
	case "embedded", "database":
	case "file":
		if c.Catalog.Path == "" {
			return fmt.Errorf("catalog source file requires catalog.path")
		}
	default:
		return fmt.Errorf("invalid catalog source: %s", c.Catalog.Source)
	}

	return nil
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		if strings.HasPrefix(v, "sqlite:") {
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		} else if strings.HasPrefix(v, "postgres") {
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("HISTORY_ENABLED"); v != "" {
		cfg.Database.History = v == "true" || v == "1"
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.Addr = strings.TrimPrefix(v, "redis://")
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}

	// Provider-specific keys only apply when they match the selected provider.
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.LLM.Provider == "openrouter" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.LLM.Provider == "gemini" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("CATALOG_PATH"); v != "" {
		cfg.Catalog.Source = "file"
		cfg.Catalog.Path = v
	}

	if v := os.Getenv("RULES_PATH"); v != "" {
		cfg.Extraction.RulesPath = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}

func resolveOptional(configPath, target string) string {
	if target == "" {
		return ""
	}
	return ResolveRelativePath(configPath, target)
}

// ResolveRelativePath resolves a path relative to the config file location.
func ResolveRelativePath(configPath, targetPath string) string {
	if filepath.IsAbs(targetPath) {
		return targetPath
	}
	configDir := filepath.Dir(configPath)
	return filepath.Join(configDir, targetPath)
}
