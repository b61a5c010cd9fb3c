// Package config provides 12-factor configuration management for the
// plugin sandbox daemon.
//
// Configuration is loaded from environment variables with sensible
// defaults. CLI flags can override environment variables for development
// flexibility.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host)
//   - Sandbox: worker pool sizing, timeouts, crash threshold
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//   - Marketplace: plugin registry endpoint
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST
//   - SANDBOX_MAX_WORKERS, SANDBOX_MAX_CRASHES, SANDBOX_DEFAULT_TIMEOUT,
//     SANDBOX_IDLE_TIMEOUT, SANDBOX_REAP_INTERVAL, SANDBOX_PLUGINS_DIR
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - MARKETPLACE_REGISTRY_URL, MARKETPLACE_PAGE_SIZE
package config
