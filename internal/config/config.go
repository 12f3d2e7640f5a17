// Package config loads and validates the listforge service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultReadTimeoutSeconds is the default HTTP read timeout in seconds
	DefaultReadTimeoutSeconds = 10
	// DefaultWriteTimeoutSeconds is the default HTTP write timeout in seconds
	DefaultWriteTimeoutSeconds = 30
	// DefaultShutdownTimeoutSeconds is the default graceful shutdown timeout in seconds
	DefaultShutdownTimeoutSeconds = 30
)

// Config is the root service configuration.
type Config struct {
	Debug       bool              `yaml:"debug"` // Application debug mode (controls log level and format)
	Server      ServerConfig      `yaml:"server"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Redis       RedisConfig       `yaml:"redis"`
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Vault       VaultConfig       `yaml:"vault"`
	Limits      LimitsConfig      `yaml:"limits"`
	Workers     WorkersConfig     `yaml:"workers"`
}

type ServerConfig struct {
	Address      string        `yaml:"address"`       // e.g., ":8070"
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"` // Default: 30s
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type OpenAIConfig struct {
	Model       string        `yaml:"model"`        // e.g., "gpt-4o"
	Timeout     time.Duration `yaml:"timeout"`      // Per-call timeout (default: 60s)
	MaxPerCall  int           `yaml:"max_per_call"` // Max photos per analysis call (default: 25)
	Temperature float32       `yaml:"temperature"`
	// API key is read from OPENAI_API_KEY, never from the config file.
}

type MarketplaceConfig struct {
	BaseURL       string        `yaml:"base_url"`       // Submission target, e.g. "https://www.marketplace.example"
	SubmitTimeout time.Duration `yaml:"submit_timeout"` // Whole-submission timeout (default: 2m)
	ActionTimeout time.Duration `yaml:"action_timeout"` // Per UI action timeout (default: 15s)
}

type VaultConfig struct {
	KeyEnvVar string `yaml:"key_env_var"` // Env var holding the hex-encoded 32-byte key (default: LISTFORGE_VAULT_KEY)
}

type LimitsConfig struct {
	ActionsPerMinute   float64       `yaml:"actions_per_minute"`   // Automated actions per minute (default: 6)
	MaxSessions        int           `yaml:"max_sessions"`         // Global concurrent automation cap (default: 2)
	TokenTTL           time.Duration `yaml:"token_ttl"`            // Confirm token TTL (default: 30m)
	MaxBackoffMultiple float64       `yaml:"max_backoff_multiple"` // Adaptive backoff ceiling (default: 8)
}

type WorkersConfig struct {
	BatchPollInterval time.Duration `yaml:"batch_poll_interval"` // Default: 5s
	BatchParallelism  int           `yaml:"batch_parallelism"`   // Clusters analyzed in parallel (default: 3)
	StaleJobAge       time.Duration `yaml:"stale_job_age"`       // Recovery threshold (default: 10m)
	RelistSchedule    string        `yaml:"relist_schedule"`     // Cron spec; empty disables relisting
	RelistAfter       time.Duration `yaml:"relist_after"`        // Age before a listing is re-submitted (default: 720h)
}

// Validate checks if the server configuration is valid and sets defaults.
func (c *ServerConfig) Validate() error {
	if c.Address == "" {
		c.Address = ":8070"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeoutSeconds * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeoutSeconds * time.Second
	}
	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	if c.Postgres.Host == "" {
		return errors.New("postgres.host is required")
	}
	if c.Postgres.DBName == "" {
		return errors.New("postgres.dbname is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Marketplace.BaseURL == "" {
		return errors.New("marketplace.base_url is required")
	}
	if c.Limits.ActionsPerMinute <= 0 {
		return fmt.Errorf("limits.actions_per_minute must be positive, got %v", c.Limits.ActionsPerMinute)
	}
	if c.Limits.TokenTTL <= 0 {
		return fmt.Errorf("limits.token_ttl must be positive, got %v", c.Limits.TokenTTL)
	}
	return nil
}

// setDefaults sets default values for configuration fields
func setDefaults(cfg *Config) {
	if cfg.Postgres.Port == "" {
		cfg.Postgres.Port = "5432"
	}
	if cfg.Postgres.SSLMode == "" {
		cfg.Postgres.SSLMode = "disable"
	}
	if cfg.OpenAI.Model == "" {
		cfg.OpenAI.Model = "gpt-4o"
	}
	if cfg.OpenAI.Timeout == 0 {
		cfg.OpenAI.Timeout = 60 * time.Second
	}
	if cfg.OpenAI.MaxPerCall == 0 {
		cfg.OpenAI.MaxPerCall = 25
	}
	if cfg.Marketplace.SubmitTimeout == 0 {
		cfg.Marketplace.SubmitTimeout = 2 * time.Minute
	}
	if cfg.Marketplace.ActionTimeout == 0 {
		cfg.Marketplace.ActionTimeout = 15 * time.Second
	}
	if cfg.Vault.KeyEnvVar == "" {
		cfg.Vault.KeyEnvVar = "LISTFORGE_VAULT_KEY"
	}
	if cfg.Limits.ActionsPerMinute == 0 {
		cfg.Limits.ActionsPerMinute = 6
	}
	if cfg.Limits.MaxSessions == 0 {
		cfg.Limits.MaxSessions = 2
	}
	if cfg.Limits.TokenTTL == 0 {
		cfg.Limits.TokenTTL = 30 * time.Minute
	}
	if cfg.Limits.MaxBackoffMultiple == 0 {
		cfg.Limits.MaxBackoffMultiple = 8
	}
	if cfg.Workers.BatchPollInterval == 0 {
		cfg.Workers.BatchPollInterval = 5 * time.Second
	}
	if cfg.Workers.BatchParallelism == 0 {
		cfg.Workers.BatchParallelism = 3
	}
	if cfg.Workers.StaleJobAge == 0 {
		cfg.Workers.StaleJobAge = 10 * time.Minute
	}
	if cfg.Workers.RelistAfter == 0 {
		cfg.Workers.RelistAfter = 720 * time.Hour
	}
}

// overrideWithEnvVars overrides configuration with environment variables
func overrideWithEnvVars(cfg *Config) {
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if pgHost := os.Getenv("POSTGRES_HOST"); pgHost != "" {
		cfg.Postgres.Host = pgHost
	}
	if pgPassword := os.Getenv("POSTGRES_PASSWORD"); pgPassword != "" {
		cfg.Postgres.Password = pgPassword
	}
	if baseURL := os.Getenv("MARKETPLACE_BASE_URL"); baseURL != "" {
		cfg.Marketplace.BaseURL = baseURL
	}
	if appDebug := os.Getenv("APP_DEBUG"); appDebug != "" {
		cfg.Debug = parseBool(appDebug)
	}
}

// Load reads the YAML config at path, applies defaults and environment
// overrides, and validates the result. A .env file alongside the process is
// loaded first when present.
func Load(path string) (*Config, error) {
	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Server.Validate(); err != nil {
		return nil, fmt.Errorf("server config validation: %w", err)
	}
	if port := os.Getenv("LISTFORGE_PORT"); port != "" {
		cfg.Server.Address = ":" + port
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// parseBool parses a string value as a boolean.
// Returns true for "true", "1", "yes" (case-insensitive), false otherwise.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
