package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/etools-app/sandbox/internal/api/middleware"
	"github.com/etools-app/sandbox/internal/config"
	"github.com/etools-app/sandbox/internal/logging"
	"github.com/etools-app/sandbox/internal/marketplace"
	"github.com/etools-app/sandbox/internal/monitor"
	"github.com/etools-app/sandbox/internal/sandbox"
	"github.com/etools-app/sandbox/internal/ws"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	router  *gin.Engine
	http    *http.Server
	sandbox *sandbox.Sandbox
	hub     *ws.Hub
	promReg *prometheus.Registry
}

// New creates a fully wired server: metrics registry, event hub, sandbox,
// marketplace client, middleware stack and routes.
func New(cfg *config.Config, log *logging.Logger) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewDefault()
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector())
	promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	hub := ws.NewHub()
	mon := monitor.New(monitor.NewMetrics(promReg))
	sb := sandbox.New(cfg, log, mon, hub.Broadcast)
	market := marketplace.NewClient(cfg.Marketplace)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := NewHandlers(cfg, log, sb, mon, market)
	wsHandler := ws.NewHandler(hub, sb, log)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Plugin lifecycle
	router.GET("/plugins", handlers.ListPlugins)
	router.POST("/plugins", handlers.RegisterPlugin)
	router.POST("/plugins/discover", handlers.DiscoverPlugins)
	router.DELETE("/plugins/:id", handlers.UnregisterPlugin)
	router.POST("/plugins/:id/enable", handlers.EnablePlugin)
	router.POST("/plugins/:id/disable", handlers.DisablePlugin)

	// Permissions
	router.POST("/plugins/:id/permissions/grant", handlers.GrantPermission)
	router.POST("/plugins/:id/permissions/revoke", handlers.RevokePermission)
	router.GET("/plugins/:id/permissions/check", handlers.CheckPermission)

	// Execution and diagnostics
	router.POST("/plugins/:id/execute", handlers.ExecutePlugin)
	router.POST("/plugins/:id/execute-code", handlers.ExecuteCode)
	router.GET("/plugins/:id/health", handlers.PluginHealth)
	router.GET("/plugins/:id/validate", handlers.ValidatePlugin)

	// Metrics
	router.GET("/metrics", handlers.Metrics)
	router.GET("/metrics/report", handlers.MetricsReport)
	router.GET("/metrics/prometheus", gin.WrapH(
		promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	// Marketplace
	router.GET("/marketplace/plugins", handlers.MarketplacePlugins)

	// WebSocket event stream
	router.GET("/stream", wsHandler.HandleConnection)

	return &Server{
		cfg:     cfg,
		log:     log.Named("server"),
		router:  router,
		sandbox: sb,
		hub:     hub,
		promReg: promReg,
	}
}

// Router exposes the gin engine, used by tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Sandbox exposes the execution core, used by tests and the CLI.
func (s *Server) Sandbox() *sandbox.Sandbox {
	return s.sandbox
}

// Run serves until ctx is canceled, then drains connections.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- s.http.ListenAndServe()
	}()
	s.log.Info("listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Close terminates the sandbox and its execution units.
func (s *Server) Close() {
	s.sandbox.Close()
}
