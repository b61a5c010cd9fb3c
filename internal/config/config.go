package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig
	Sandbox     SandboxConfig
	Logging     LogConfig
	RateLimit   RateLimitConfig
	Marketplace MarketplaceConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8090"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SandboxConfig holds worker pool and execution configuration.
type SandboxConfig struct {
	MaxWorkers     int           `envconfig:"SANDBOX_MAX_WORKERS" default:"4"`
	MaxCrashes     int           `envconfig:"SANDBOX_MAX_CRASHES" default:"3"`
	DefaultTimeout time.Duration `envconfig:"SANDBOX_DEFAULT_TIMEOUT" default:"5s"`
	IdleTimeout    time.Duration `envconfig:"SANDBOX_IDLE_TIMEOUT" default:"60s"`
	ReapInterval   time.Duration `envconfig:"SANDBOX_REAP_INTERVAL" default:"30s"`
	PluginsDir     string        `envconfig:"SANDBOX_PLUGINS_DIR" default:"./plugins"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// MarketplaceConfig holds plugin marketplace configuration.
type MarketplaceConfig struct {
	RegistryURL string `envconfig:"MARKETPLACE_REGISTRY_URL" default:"https://registry.npmjs.org/-/v1/search"`
	PageSize    int    `envconfig:"MARKETPLACE_PAGE_SIZE" default:"20"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8090",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			MaxWorkers:     4,
			MaxCrashes:     3,
			DefaultTimeout: 5 * time.Second,
			IdleTimeout:    60 * time.Second,
			ReapInterval:   30 * time.Second,
			PluginsDir:     "./plugins",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Marketplace: MarketplaceConfig{
			RegistryURL: "https://registry.npmjs.org/-/v1/search",
			PageSize:    20,
		},
	}
}
