package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/etools-app/sandbox/internal/resilience"
)

var (
	ErrNotRegistered = errors.New("plugin not registered")
	ErrDisabled      = errors.New("plugin is disabled")
	ErrNoModulePath  = errors.New("plugin has no module path")
)

// execContext is the per-plugin execution state. All fields are owned by
// the Registry and mutated only under its lock.
type execContext struct {
	pluginID      string
	permissions   map[string]struct{}
	enabled       bool
	breaker       *resilience.Breaker
	lastExecution time.Duration
	modulePath    string
	health        Health
}

// Info is a read-only snapshot of a plugin's execution context.
type Info struct {
	PluginID        string   `json:"pluginId"`
	Permissions     []string `json:"permissions"`
	Enabled         bool     `json:"enabled"`
	CrashCount      int      `json:"crashCount"`
	LastExecutionMS int64    `json:"lastExecutionTime,omitempty"`
	ModulePath      string   `json:"modulePath,omitempty"`
	Health          Health   `json:"health"`
}

// Registry tracks execution contexts for all known plugins: granted
// permissions, the enabled flag, crash counting, and health. It is the only
// cross-cutting mutable state besides the worker pool, so every mutation
// goes through its mutex.
type Registry struct {
	mu         sync.RWMutex
	contexts   map[string]*execContext
	maxCrashes int
}

// New creates a registry. Plugins are disabled after maxCrashes consecutive
// execution failures (3 if maxCrashes is not positive).
func New(maxCrashes int) *Registry {
	if maxCrashes <= 0 {
		maxCrashes = 3
	}
	return &Registry{
		contexts:   make(map[string]*execContext),
		maxCrashes: maxCrashes,
	}
}

// Register creates or overwrites the context for pluginID. The crash count
// resets to zero and the plugin is enabled regardless of prior state; this
// is the only way to clear a tripped circuit breaker.
func (r *Registry) Register(pluginID string, permissions []string, modulePath string) {
	perms := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		perms[p] = struct{}{}
	}

	r.mu.Lock()
	breaker := resilience.New(r.maxCrashes)
	if prev, ok := r.contexts[pluginID]; ok {
		// Re-registration keeps the plugin's breaker, explicitly closed.
		breaker = prev.breaker
		breaker.Reset()
	}
	r.contexts[pluginID] = &execContext{
		pluginID:    pluginID,
		permissions: perms,
		enabled:     true,
		breaker:     breaker,
		modulePath:  modulePath,
		health:      newHealth(StatusUnknown, ""),
	}
	r.mu.Unlock()
}

// Unregister removes the context for pluginID.
func (r *Registry) Unregister(pluginID string) {
	r.mu.Lock()
	delete(r.contexts, pluginID)
	r.mu.Unlock()
}

// SetEnabled flips the enabled flag. Enabling does not clear the crash
// count: a plugin force-enabled past a tripped breaker is re-disabled by
// its next failure.
func (r *Registry) SetEnabled(pluginID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, pluginID)
	}
	ctx.enabled = enabled
	if !enabled && ctx.health.Status == StatusHealthy {
		ctx.health = newHealth(StatusUnknown, "disabled")
	}
	return nil
}

// GrantPermission adds a permission to a registered plugin. The change is
// live for future dispatches; in-flight executions carry their snapshot.
func (r *Registry) GrantPermission(pluginID, permission string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, pluginID)
	}
	ctx.permissions[permission] = struct{}{}
	return nil
}

// RevokePermission removes a permission from a registered plugin.
func (r *Registry) RevokePermission(pluginID, permission string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, pluginID)
	}
	delete(ctx.permissions, permission)
	return nil
}

// CheckPermission reports whether pluginID currently holds permission. It
// never errors: unknown plugins, disabled plugins, and missing permissions
// all answer false. The privileged action executor calls this as a guard
// before honoring actionData.
func (r *Registry) CheckPermission(pluginID, permission string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[pluginID]
	if !ok || !ctx.enabled {
		return false
	}
	_, granted := ctx.permissions[permission]
	return granted
}

// PermissionSnapshot returns a sorted copy of the current permission set,
// taken at dispatch time so later revocations cannot affect an in-flight
// execution.
func (r *Registry) PermissionSnapshot(pluginID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return []string{}
	}
	perms := make([]string, 0, len(ctx.permissions))
	for p := range ctx.permissions {
		perms = append(perms, p)
	}
	sort.Strings(perms)
	return perms
}

// Get returns a snapshot of the context for pluginID.
func (r *Registry) Get(pluginID string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return Info{}, false
	}
	return r.snapshot(ctx), true
}

// List returns snapshots of all contexts, sorted by plugin ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.contexts))
	for _, ctx := range r.contexts {
		infos = append(infos, r.snapshot(ctx))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PluginID < infos[j].PluginID })
	return infos
}

// RecordSuccess clears the crash streak and marks the plugin healthy.
func (r *Registry) RecordSuccess(pluginID string, executionTime time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return
	}
	ctx.breaker.RecordSuccess()
	ctx.lastExecution = executionTime
	ctx.health = Health{
		Status:      StatusHealthy,
		LastChecked: time.Now().UnixMilli(),
		Errors:      ctx.health.Errors,
	}
}

// RecordFailure increments the crash streak and appends a health error.
// When the streak reaches the registry's threshold the plugin is disabled;
// the returned flag reports whether this failure disabled it.
func (r *Registry) RecordFailure(pluginID, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return false
	}

	tripped := ctx.breaker.RecordFailure()
	ctx.health.appendError("PLUGIN_ERROR", message)

	if tripped && ctx.enabled {
		ctx.enabled = false
		ctx.health.Status = StatusError
		ctx.health.Message = fmt.Sprintf("disabled after %d consecutive failures", r.maxCrashes)
		ctx.health.LastChecked = time.Now().UnixMilli()
		return true
	}

	ctx.health.Status = StatusWarning
	ctx.health.Message = message
	ctx.health.LastChecked = time.Now().UnixMilli()
	return false
}

// CrashCount returns the current consecutive failure count for pluginID.
func (r *Registry) CrashCount(pluginID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return 0
	}
	return ctx.breaker.ConsecutiveFailures()
}

// Health returns the health record for pluginID.
func (r *Registry) Health(pluginID string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ctx, ok := r.contexts[pluginID]
	if !ok {
		return Health{}, false
	}
	return ctx.health.clone(), true
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}

func (r *Registry) snapshot(ctx *execContext) Info {
	perms := make([]string, 0, len(ctx.permissions))
	for p := range ctx.permissions {
		perms = append(perms, p)
	}
	sort.Strings(perms)

	return Info{
		PluginID:        ctx.pluginID,
		Permissions:     perms,
		Enabled:         ctx.enabled,
		CrashCount:      ctx.breaker.ConsecutiveFailures(),
		LastExecutionMS: ctx.lastExecution.Milliseconds(),
		ModulePath:      ctx.modulePath,
		Health:          ctx.health.clone(),
	}
}
