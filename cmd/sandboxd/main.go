package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/etools-app/sandbox/internal/config"
	"github.com/etools-app/sandbox/internal/logging"
	"github.com/etools-app/sandbox/internal/server"
)

func main() {
	port := flag.String("port", "", "server port (overrides PORT)")
	pluginsDir := flag.String("plugins", "", "plugins directory (overrides SANDBOX_PLUGINS_DIR)")
	dev := flag.Bool("dev", false, "development mode: debug logging, console output")
	flag.Parse()

	cfg := config.LoadOrDefault()
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *pluginsDir != "" {
		cfg.Sandbox.PluginsDir = *pluginsDir
	}
	if *dev {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		logger = logging.NewDefault()
		logger.Warn("invalid log config, using defaults", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("starting plugin sandbox",
		zap.String("port", cfg.Server.Port),
		zap.String("plugins_dir", cfg.Sandbox.PluginsDir),
		zap.Int("max_workers", cfg.Sandbox.MaxWorkers))

	srv := server.New(cfg, logger)
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
