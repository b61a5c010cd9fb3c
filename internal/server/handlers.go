package server

import (
	"errors"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/etools-app/sandbox/internal/config"
	"github.com/etools-app/sandbox/internal/logging"
	"github.com/etools-app/sandbox/internal/manifest"
	"github.com/etools-app/sandbox/internal/marketplace"
	"github.com/etools-app/sandbox/internal/monitor"
	"github.com/etools-app/sandbox/internal/registry"
	"github.com/etools-app/sandbox/internal/sandbox"
	"github.com/etools-app/sandbox/internal/worker"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	cfg     *config.Config
	log     *logging.Logger
	sandbox *sandbox.Sandbox
	monitor *monitor.Monitor
	market  *marketplace.Client
}

// NewHandlers creates a new handler set.
func NewHandlers(cfg *config.Config, log *logging.Logger, sb *sandbox.Sandbox, mon *monitor.Monitor, market *marketplace.Client) *Handlers {
	return &Handlers{
		cfg:     cfg,
		log:     log.Named("handlers"),
		sandbox: sb,
		monitor: mon,
		market:  market,
	}
}

// Root handles the banner endpoint.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "Plugin Sandbox (Go)",
		"version": "0.3.0",
	})
}

// Health handles the liveness endpoint.
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"plugins": len(h.sandbox.Plugins()),
		"pool":    h.sandbox.PoolStats(),
	})
}

type registerRequest struct {
	PluginID    string   `json:"pluginId" binding:"required"`
	Permissions []string `json:"permissions"`
	ModulePath  string   `json:"modulePath"`
}

// RegisterPlugin registers or replaces a plugin.
func (h *Handlers) RegisterPlugin(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !manifest.ValidID(req.PluginID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid plugin id"})
		return
	}

	h.sandbox.Register(req.PluginID, req.Permissions, req.ModulePath)
	info, _ := h.sandbox.Plugin(req.PluginID)
	c.JSON(http.StatusCreated, info)
}

// ListPlugins returns registry snapshots for every plugin.
func (h *Handlers) ListPlugins(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": h.sandbox.Plugins()})
}

// UnregisterPlugin removes a plugin.
func (h *Handlers) UnregisterPlugin(c *gin.Context) {
	h.sandbox.Unregister(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// EnablePlugin re-enables a plugin without clearing its crash streak.
func (h *Handlers) EnablePlugin(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisablePlugin disables a plugin.
func (h *Handlers) DisablePlugin(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *Handlers) setEnabled(c *gin.Context, enabled bool) {
	if err := h.sandbox.SetEnabled(c.Param("id"), enabled); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "enabled": enabled})
}

type permissionRequest struct {
	Permission string `json:"permission" binding:"required"`
}

// GrantPermission grants one permission to a plugin.
func (h *Handlers) GrantPermission(c *gin.Context) {
	h.changePermission(c, h.sandbox.GrantPermission)
}

// RevokePermission revokes one permission from a plugin.
func (h *Handlers) RevokePermission(c *gin.Context) {
	h.changePermission(c, h.sandbox.RevokePermission)
}

func (h *Handlers) changePermission(c *gin.Context, apply func(string, string) error) {
	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := apply(c.Param("id"), req.Permission); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckPermission reports whether a plugin holds a permission.
func (h *Handlers) CheckPermission(c *gin.Context) {
	permission := c.Query("permission")
	if permission == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "permission query parameter required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"granted": h.sandbox.CheckPermission(c.Param("id"), permission),
	})
}

type executeRequest struct {
	Query   string `json:"query"`
	Timeout int64  `json:"timeout"` // milliseconds
}

// ExecutePlugin runs a plugin module against a query.
func (h *Handlers) ExecutePlugin(c *gin.Context) {
	var req executeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.sandbox.ExecuteModule(c.Request.Context(), c.Param("id"),
		req.Query, time.Duration(req.Timeout)*time.Millisecond)
	if err != nil {
		c.JSON(executeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

type executeCodeRequest struct {
	Code    string `json:"code" binding:"required"`
	Args    []any  `json:"args"`
	Timeout int64  `json:"timeout"` // milliseconds
}

// ExecuteCode runs inline plugin code.
func (h *Handlers) ExecuteCode(c *gin.Context) {
	var req executeCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.sandbox.ExecuteCode(c.Request.Context(), c.Param("id"),
		req.Code, req.Args, time.Duration(req.Timeout)*time.Millisecond)
	if err != nil {
		c.JSON(executeStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func executeStatus(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotRegistered):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrDisabled), errors.Is(err, registry.ErrNoModulePath):
		return http.StatusConflict
	case errors.Is(err, worker.ErrPoolClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusServiceUnavailable
	}
}

// PluginHealth returns the health record of one plugin.
func (h *Handlers) PluginHealth(c *gin.Context) {
	health, ok := h.sandbox.Health(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": registry.ErrNotRegistered.Error()})
		return
	}
	c.JSON(http.StatusOK, health)
}

// ValidatePlugin validates the plugin package in the configured plugins
// directory against its manifest.
func (h *Handlers) ValidatePlugin(c *gin.Context) {
	id := c.Param("id")
	dir := filepath.Join(h.cfg.Sandbox.PluginsDir, id)

	m, err := manifest.Load(dir)
	if err != nil {
		c.JSON(http.StatusOK, manifest.Validation{
			Valid: false,
			Errors: []manifest.Issue{{
				Code:    "MANIFEST_UNREADABLE",
				Message: err.Error(),
			}},
		})
		return
	}
	c.JSON(http.StatusOK, manifest.Validate(id, dir, m))
}

// DiscoverPlugins scans the plugins directory and registers every valid
// package found.
func (h *Handlers) DiscoverPlugins(c *gin.Context) {
	plugins, err := manifest.Discover(h.cfg.Sandbox.PluginsDir)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	registered := make([]string, 0, len(plugins))
	skipped := make([]string, 0)
	for _, p := range plugins {
		v := manifest.Validate(p.ID, p.Dir, p.Manifest)
		if !v.Valid {
			skipped = append(skipped, p.ID)
			h.log.Warn("skipping invalid plugin package",
				zap.String("plugin_id", p.ID),
				zap.Int("errors", len(v.Errors)))
			continue
		}
		h.sandbox.Register(p.ID, p.Manifest.Permissions, p.Manifest.EntryPath(p.Dir))
		registered = append(registered, p.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"registered": registered,
		"skipped":    skipped,
	})
}

// Metrics returns per-plugin execution aggregates as JSON.
func (h *Handlers) Metrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"plugins": h.monitor.All(),
		"pool":    h.sandbox.PoolStats(),
	})
}

// MetricsReport returns the plain-text execution report.
func (h *Handlers) MetricsReport(c *gin.Context) {
	c.String(http.StatusOK, h.monitor.Report())
}

// MarketplacePlugins lists or searches marketplace listings.
func (h *Handlers) MarketplacePlugins(c *gin.Context) {
	page := 1
	if p, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && p > 0 {
		page = p
	}

	var (
		result *marketplace.Page
		err    error
	)
	if query := c.Query("query"); query != "" {
		result, err = h.market.Search(c.Request.Context(), query, page)
	} else {
		result, err = h.market.List(c.Request.Context(), page)
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
