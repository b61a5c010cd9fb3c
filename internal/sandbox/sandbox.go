package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/etools-app/sandbox/internal/config"
	"github.com/etools-app/sandbox/internal/logging"
	"github.com/etools-app/sandbox/internal/monitor"
	"github.com/etools-app/sandbox/internal/protocol"
	"github.com/etools-app/sandbox/internal/registry"
	"github.com/etools-app/sandbox/internal/worker"
)

// Sandbox coordinates plugin executions: it checks the registry, snapshots
// permissions, leases an execution unit from the pool, dispatches, and
// records the outcome. It is safe for concurrent use.
type Sandbox struct {
	cfg     *config.Config
	log     *logging.Logger
	reg     *registry.Registry
	pool    *worker.Pool
	monitor *monitor.Monitor
	emit    func(msg any)
}

// New creates a sandbox. emit receives host-bound messages produced by
// plugin code (logs, notifications) and breaker-trip notifications; it must
// not block. A nil emit discards them.
func New(cfg *config.Config, log *logging.Logger, mon *monitor.Monitor, emit func(msg any)) *Sandbox {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}
	if mon == nil {
		mon = monitor.New(nil)
	}
	if emit == nil {
		emit = func(any) {}
	}

	pool := worker.NewPool(worker.Config{
		MaxWorkers:   cfg.Sandbox.MaxWorkers,
		IdleTimeout:  cfg.Sandbox.IdleTimeout,
		ReapInterval: cfg.Sandbox.ReapInterval,
	}, emit)

	return &Sandbox{
		cfg:     cfg,
		log:     log.Named("sandbox"),
		reg:     registry.New(cfg.Sandbox.MaxCrashes),
		pool:    pool,
		monitor: mon,
		emit:    emit,
	}
}

// ExecuteModule runs the registered module of pluginID against query.
//
// Registration, enablement and module-path checks happen before any pool
// interaction, so a request for an unknown or disabled plugin never
// consumes pool capacity. The returned error is one of the registry
// sentinels, a context error from waiting on a saturated pool, or nil; a
// plugin-level failure (script error, timeout) is reported inside the
// ResultMessage, not as an error.
func (s *Sandbox) ExecuteModule(ctx context.Context, pluginID, query string, timeout time.Duration) (protocol.ResultMessage, error) {
	info, ok := s.reg.Get(pluginID)
	switch {
	case !ok:
		return protocol.Failure(registry.ErrNotRegistered.Error(), 0), registry.ErrNotRegistered
	case !info.Enabled:
		return protocol.Failure(registry.ErrDisabled.Error(), 0), registry.ErrDisabled
	case info.ModulePath == "":
		return protocol.Failure(registry.ErrNoModulePath.Error(), 0), registry.ErrNoModulePath
	}

	msg := protocol.NewExecute(pluginID, info.ModulePath, query,
		s.reg.PermissionSnapshot(pluginID), s.timeoutMS(timeout))
	return s.dispatch(ctx, pluginID, msg)
}

// ExecuteCode runs an inline script for pluginID. The plugin must be
// registered and enabled but needs no module path. Kept for plugins that
// ship raw code instead of a module file.
func (s *Sandbox) ExecuteCode(ctx context.Context, pluginID, code string, args []any, timeout time.Duration) (protocol.ResultMessage, error) {
	info, ok := s.reg.Get(pluginID)
	switch {
	case !ok:
		return protocol.Failure(registry.ErrNotRegistered.Error(), 0), registry.ErrNotRegistered
	case !info.Enabled:
		return protocol.Failure(registry.ErrDisabled.Error(), 0), registry.ErrDisabled
	}

	msg := protocol.NewCodeExecute(pluginID, code, args,
		s.reg.PermissionSnapshot(pluginID), s.timeoutMS(timeout))
	return s.dispatch(ctx, pluginID, msg)
}

func (s *Sandbox) dispatch(ctx context.Context, pluginID string, msg protocol.ExecuteMessage) (protocol.ResultMessage, error) {
	w, err := s.pool.Acquire(ctx, pluginID)
	if err != nil {
		return protocol.Failure(err.Error(), 0), err
	}
	s.monitor.SetActiveWorkers(s.pool.InFlight())

	start := time.Now()
	res, derr := w.Dispatch(msg)
	elapsed := time.Since(start)

	if derr != nil {
		// The unit interrupted a script, escaped with a fault, or is
		// wedged. Its VM state cannot be trusted; replace it lazily.
		s.pool.Discard(w)
		s.log.Warn("execution unit discarded",
			zap.String("plugin_id", pluginID),
			zap.String("worker_id", w.ID),
			zap.Error(derr))
	} else {
		s.pool.Release(w)
	}
	s.monitor.SetActiveWorkers(s.pool.InFlight())

	if res.Success {
		s.reg.RecordSuccess(pluginID, elapsed)
	} else {
		s.recordFailure(pluginID, res.Error)
	}
	s.monitor.Record(pluginID, elapsed, res.Success)

	return res, nil
}

func (s *Sandbox) recordFailure(pluginID, message string) {
	if !s.reg.RecordFailure(pluginID, message) {
		return
	}
	s.monitor.MarkDisabled(pluginID)
	s.log.Warn("plugin disabled after repeated failures",
		zap.String("plugin_id", pluginID),
		zap.Int("crash_count", s.reg.CrashCount(pluginID)))
	s.emit(protocol.NotificationMessage{
		Type:    protocol.TypeNotification,
		Title:   "Plugin disabled",
		Message: "Plugin '" + pluginID + "' was disabled after repeated failures",
	})
}

func (s *Sandbox) timeoutMS(timeout time.Duration) int64 {
	if timeout <= 0 {
		timeout = s.cfg.Sandbox.DefaultTimeout
	}
	return timeout.Milliseconds()
}

// Register adds or replaces a plugin. Re-registering clears a tripped
// circuit breaker.
func (s *Sandbox) Register(pluginID string, permissions []string, modulePath string) {
	s.reg.Register(pluginID, permissions, modulePath)
	s.log.Info("plugin registered",
		zap.String("plugin_id", pluginID),
		zap.Int("permissions", len(permissions)))
}

// Unregister removes a plugin.
func (s *Sandbox) Unregister(pluginID string) {
	s.reg.Unregister(pluginID)
	s.log.Info("plugin unregistered", zap.String("plugin_id", pluginID))
}

// SetEnabled toggles a plugin. Enabling does not clear the crash streak;
// only re-registration or a successful execution does.
func (s *Sandbox) SetEnabled(pluginID string, enabled bool) error {
	return s.reg.SetEnabled(pluginID, enabled)
}

// GrantPermission grants one permission.
func (s *Sandbox) GrantPermission(pluginID, permission string) error {
	return s.reg.GrantPermission(pluginID, permission)
}

// RevokePermission revokes one permission. In-flight executions keep the
// snapshot they were dispatched with.
func (s *Sandbox) RevokePermission(pluginID, permission string) error {
	return s.reg.RevokePermission(pluginID, permission)
}

// CheckPermission reports whether pluginID currently holds permission.
func (s *Sandbox) CheckPermission(pluginID, permission string) bool {
	return s.reg.CheckPermission(pluginID, permission)
}

// Plugin returns the registry snapshot for one plugin.
func (s *Sandbox) Plugin(pluginID string) (registry.Info, bool) {
	return s.reg.Get(pluginID)
}

// Plugins returns snapshots for all registered plugins.
func (s *Sandbox) Plugins() []registry.Info {
	return s.reg.List()
}

// Health returns the health record for one plugin.
func (s *Sandbox) Health(pluginID string) (registry.Health, bool) {
	return s.reg.Health(pluginID)
}

// Metrics returns per-plugin execution aggregates.
func (s *Sandbox) Metrics() []monitor.PluginMetrics {
	return s.monitor.All()
}

// Report returns the human-readable execution report.
func (s *Sandbox) Report() string {
	return s.monitor.Report()
}

// PoolStats returns worker pool counters for diagnostics.
func (s *Sandbox) PoolStats() map[string]any {
	return s.pool.Stats()
}

// Close terminates all execution units. In-flight dispatches fail with
// worker.ErrStopped.
func (s *Sandbox) Close() {
	s.pool.Close()
	s.log.Info("sandbox closed")
}
