package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// Sandbox config
	assert.Equal(t, 4, cfg.Sandbox.MaxWorkers)
	assert.Equal(t, 3, cfg.Sandbox.MaxCrashes)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.DefaultTimeout)
	assert.Equal(t, 60*time.Second, cfg.Sandbox.IdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Sandbox.ReapInterval)
	assert.Equal(t, "./plugins", cfg.Sandbox.PluginsDir)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	// Marketplace config
	assert.Equal(t, "https://registry.npmjs.org/-/v1/search", cfg.Marketplace.RegistryURL)
	assert.Equal(t, 20, cfg.Marketplace.PageSize)
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "8090", cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"PORT":                    "9000",
		"HOST":                    "127.0.0.1",
		"SANDBOX_MAX_WORKERS":     "8",
		"SANDBOX_MAX_CRASHES":     "5",
		"SANDBOX_DEFAULT_TIMEOUT": "10s",
		"SANDBOX_PLUGINS_DIR":     "/var/lib/plugins",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "500",
		"RATE_LIMIT_BURST":        "1000",
		"RATE_LIMIT_ENABLED":      "false",
		"MARKETPLACE_PAGE_SIZE":   "50",
	}

	for key, value := range envVars {
		err := os.Setenv(key, value)
		require.NoError(t, err)
		defer os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	assert.Equal(t, 8, cfg.Sandbox.MaxWorkers)
	assert.Equal(t, 5, cfg.Sandbox.MaxCrashes)
	assert.Equal(t, 10*time.Second, cfg.Sandbox.DefaultTimeout)
	assert.Equal(t, "/var/lib/plugins", cfg.Sandbox.PluginsDir)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 500, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 1000, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)

	assert.Equal(t, 50, cfg.Marketplace.PageSize)
}

func TestLoadWithPartialEnvironmentVariables(t *testing.T) {
	err := os.Setenv("PORT", "3000")
	require.NoError(t, err)
	defer os.Unsetenv("PORT")

	err = os.Setenv("SANDBOX_MAX_WORKERS", "2")
	require.NoError(t, err)
	defer os.Unsetenv("SANDBOX_MAX_WORKERS")

	cfg, err := Load()
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Sandbox.MaxWorkers)

	// Defaults still apply
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 3, cfg.Sandbox.MaxCrashes)
	assert.Equal(t, 5*time.Second, cfg.Sandbox.DefaultTimeout)
}

func TestSandboxConfig(t *testing.T) {
	tests := []struct {
		name        string
		workers     string
		timeout     string
		wantWorkers int
		wantTimeout time.Duration
	}{
		{
			name:        "default values",
			workers:     "",
			timeout:     "",
			wantWorkers: 4,
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "custom workers",
			workers:     "16",
			timeout:     "",
			wantWorkers: 16,
			wantTimeout: 5 * time.Second,
		},
		{
			name:        "custom timeout",
			workers:     "",
			timeout:     "250ms",
			wantWorkers: 4,
			wantTimeout: 250 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Unsetenv("SANDBOX_MAX_WORKERS")
			os.Unsetenv("SANDBOX_DEFAULT_TIMEOUT")

			if tt.workers != "" {
				err := os.Setenv("SANDBOX_MAX_WORKERS", tt.workers)
				require.NoError(t, err)
				defer os.Unsetenv("SANDBOX_MAX_WORKERS")
			}
			if tt.timeout != "" {
				err := os.Setenv("SANDBOX_DEFAULT_TIMEOUT", tt.timeout)
				require.NoError(t, err)
				defer os.Unsetenv("SANDBOX_DEFAULT_TIMEOUT")
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantWorkers, cfg.Sandbox.MaxWorkers)
			assert.Equal(t, tt.wantTimeout, cfg.Sandbox.DefaultTimeout)
		})
	}
}
