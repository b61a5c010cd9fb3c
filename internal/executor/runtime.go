package executor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/etools-app/sandbox/internal/protocol"
)

const defaultTimeout = 5 * time.Second

// Executor runs plugin code inside one isolated goja VM. It lives on a
// single worker goroutine; the only cross-goroutine entry point is
// Interrupt, which goja allows from any goroutine.
type Executor struct {
	mu   sync.Mutex // guards the vm pointer across Interrupt and resets
	vm   *goja.Runtime
	emit func(msg any)

	// Compiled programs survive VM resets; module exports do not.
	programs map[string]*cachedProgram
	modules  map[string]*goja.Object
	pluginID string
}

// New creates an executor with a hardened VM. emit receives LogMessage and
// NotificationMessage side-channel values and may be nil.
func New(emit func(msg any)) *Executor {
	e := &Executor{
		emit:     emit,
		programs: make(map[string]*cachedProgram),
	}
	e.resetVM("")
	return e
}

// Execute runs one execute message to completion and converts every
// outcome, including thrown errors and timeouts, into a ResultMessage. The
// returned error is nil for ordinary plugin failures; it is non-nil only
// when the unit itself is no longer trustworthy (timeout interrupt or an
// escaped fault) and must be discarded by the pool.
func (e *Executor) Execute(msg protocol.ExecuteMessage) (res protocol.ResultMessage, fatal error) {
	start := time.Now()
	timeout := time.Duration(msg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// A unit sticks to one plugin. Switching plugins gets a fresh global
	// scope so no state leaks between extensions; repeat executions keep
	// the warm VM and module cache.
	if msg.PluginID != e.pluginID || e.vm == nil {
		e.resetVM(msg.PluginID)
	}
	vm := e.vm

	defer func() {
		if r := recover(); r != nil {
			elapsed := time.Since(start).Milliseconds()
			res = protocol.Failure(fmt.Sprintf("plugin runtime fault: %v", r), elapsed)
			fatal = fmt.Errorf("unit fault: %v", r)
		}
	}()

	e.installHostAPI(vm, msg)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	done := make(chan struct{})
	guardExit := make(chan struct{})
	guardStopped := false
	defer func() {
		if !guardStopped {
			close(done)
		}
	}()
	go func() {
		defer close(guardExit)
		select {
		case <-timer.C:
			e.Interrupt("execution timed out")
		case <-done:
		}
	}()

	var value goja.Value
	var err error
	if msg.Code != "" {
		value, err = e.runCode(vm, msg)
	} else {
		value, err = e.runModule(vm, msg)
	}

	// Join the guard before clearing, otherwise a late interrupt could
	// poison the next execution on this VM.
	guardStopped = true
	close(done)
	timer.Stop()
	<-guardExit
	vm.ClearInterrupt()

	elapsed := time.Since(start)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			reason := fmt.Sprintf("execution timed out after %s", timeout)
			return protocol.Failure(reason, elapsed.Milliseconds()), protocol.ErrTimeout
		}
		return protocol.Failure(exceptionString(err), elapsed.Milliseconds()), nil
	}

	results, err := toSearchResults(exportValue(value))
	if err != nil {
		return protocol.Failure(err.Error(), elapsed.Milliseconds()), nil
	}
	return protocol.Success(results, elapsed.Milliseconds()), nil
}

// Interrupt aborts any script currently running in the VM. Safe to call
// from other goroutines.
func (e *Executor) Interrupt(reason string) {
	e.mu.Lock()
	vm := e.vm
	e.mu.Unlock()
	if vm != nil {
		vm.Interrupt(reason)
	}
}

// Close releases the VM and caches.
func (e *Executor) Close() {
	e.mu.Lock()
	e.vm = nil
	e.mu.Unlock()
	e.modules = nil
	e.programs = nil
}

// PluginID returns the plugin this unit is currently bound to.
func (e *Executor) PluginID() string {
	return e.pluginID
}

// resetVM builds a fresh hardened runtime bound to pluginID.
func (e *Executor) resetVM(pluginID string) {
	vm := goja.New()
	vm.SetMaxCallStackSize(1024)

	// No ambient authority inside the unit.
	vm.Set("require", goja.Undefined())
	vm.Set("process", goja.Undefined())
	vm.Set("module", goja.Undefined())
	vm.Set("exports", goja.Undefined())
	noop := func(call goja.FunctionCall) goja.Value { return goja.Undefined() }
	vm.Set("setTimeout", noop)
	vm.Set("setInterval", noop)

	console := vm.NewObject()
	console.Set("log", e.makeConsoleFunc("info"))
	console.Set("info", e.makeConsoleFunc("info"))
	console.Set("warn", e.makeConsoleFunc("warn"))
	console.Set("error", e.makeConsoleFunc("error"))
	vm.Set("console", console)

	e.mu.Lock()
	e.vm = vm
	e.mu.Unlock()
	e.modules = make(map[string]*goja.Object)
	e.pluginID = pluginID
}

// installHostAPI exposes the per-dispatch host surface: the permission
// snapshot and the notification channel. Plugins see data and narrow
// helpers, never host callbacks they could retain across executions.
func (e *Executor) installHostAPI(vm *goja.Runtime, msg protocol.ExecuteMessage) {
	perms := append([]string{}, msg.Permissions...)

	host := vm.NewObject()
	host.Set("pluginId", msg.PluginID)
	host.Set("permissions", perms)
	host.Set("hasPermission", func(name string) bool {
		for _, p := range perms {
			if p == name {
				return true
			}
		}
		return false
	})
	host.Set("notify", func(title, message string) {
		e.emitMsg(protocol.NotificationMessage{
			Type:    protocol.TypeNotification,
			Title:   title,
			Message: message,
		})
	})
	vm.Set("etools", host)
}

// runModule loads the plugin module and invokes its search entrypoint.
func (e *Executor) runModule(vm *goja.Runtime, msg protocol.ExecuteMessage) (goja.Value, error) {
	exports, err := e.loadModule(vm, msg.PluginPath)
	if err != nil {
		return nil, err
	}

	manifest := exports.Get("manifest")
	if manifest == nil || goja.IsUndefined(manifest) || goja.IsNull(manifest) {
		return nil, fmt.Errorf("plugin %s does not export a manifest", msg.PluginID)
	}

	entry := exports.Get("search")
	if entry == nil || goja.IsUndefined(entry) {
		entry = exports.Get("onSearch")
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return nil, fmt.Errorf("plugin %s does not export a search entrypoint (search or onSearch)", msg.PluginID)
	}

	value, err := fn(goja.Undefined(), vm.ToValue(msg.Query))
	if err != nil {
		return nil, err
	}
	return settle(value)
}

// runCode evaluates the legacy inline-code variant. The snippet sees its
// arguments as the global "args" array and must evaluate to the same result
// shape as a module entrypoint.
func (e *Executor) runCode(vm *goja.Runtime, msg protocol.ExecuteMessage) (goja.Value, error) {
	vm.Set("args", sanitizeArgs(msg.Args))
	value, err := vm.RunScript("<plugin-code>", msg.Code)
	if err != nil {
		return nil, err
	}
	return settle(value)
}

// settle unwraps a returned promise. The unit runs no event loop, so only
// promises that are already settled when the entrypoint returns are
// accepted.
func settle(value goja.Value) (goja.Value, error) {
	if value == nil {
		return nil, nil
	}
	p, ok := value.Export().(*goja.Promise)
	if !ok {
		return value, nil
	}
	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), nil
	case goja.PromiseStateRejected:
		return nil, fmt.Errorf("entrypoint rejected: %s", p.Result().String())
	default:
		return nil, fmt.Errorf("entrypoint returned a promise that never settled")
	}
}

func (e *Executor) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			if clean, ok := sanitizeValue(arg.Export(), 0); ok {
				args = append(args, clean)
			}
		}
		e.emitMsg(protocol.LogMessage{
			Type:     protocol.TypeLog,
			Level:    level,
			Args:     args,
			PluginID: e.pluginID,
		})
		return goja.Undefined()
	}
}

func (e *Executor) emitMsg(msg any) {
	if e.emit != nil {
		e.emit(msg)
	}
}

func exportValue(value goja.Value) any {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil
	}
	return value.Export()
}

// exceptionString renders a thrown JS value or Go error as a plain string.
func exceptionString(err error) string {
	var exc *goja.Exception
	if errors.As(err, &exc) {
		return exc.Value().String()
	}
	return err.Error()
}
