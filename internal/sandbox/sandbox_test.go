package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etools-app/sandbox/internal/config"
	"github.com/etools-app/sandbox/internal/protocol"
	"github.com/etools-app/sandbox/internal/registry"
)

const calcPlugin = `
const manifest = {
	name: "calc",
	version: "1.0.0",
	description: "Calculator",
	permissions: [],
	entry: "index.js",
	triggers: ["="]
};

function search(query) {
	return [{
		id: "calc-1",
		title: "Result: " + query,
		actionData: { type: "clipboard", text: query }
	}];
}

module.exports = { manifest, search };
`

const crashPlugin = `
const manifest = { name: "crash", version: "1.0.0", entry: "index.js" };

function search(query) {
	throw new Error("boom");
}

module.exports = { manifest, search };
`

const spinPlugin = `
const manifest = { name: "spin", version: "1.0.0", entry: "index.js" };

function search(query) {
	for (;;) {}
}

module.exports = { manifest, search };
`

func writePlugin(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.js")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func newSandbox(t *testing.T, emit func(msg any)) *Sandbox {
	t.Helper()
	cfg := config.Default()
	cfg.Sandbox.MaxWorkers = 4
	cfg.Sandbox.MaxCrashes = 3
	cfg.Sandbox.DefaultTimeout = 2 * time.Second
	s := New(cfg, nil, nil, emit)
	t.Cleanup(s.Close)
	return s
}

func TestExecuteModuleSuccess(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("calc", nil, writePlugin(t, calcPlugin))

	res, err := s.ExecuteModule(context.Background(), "calc", "1+1", 0)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %s", res.Error)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Result: 1+1", res.Results[0].Title)

	info, ok := s.Plugin("calc")
	require.True(t, ok)
	assert.Zero(t, info.CrashCount)
	assert.Equal(t, registry.StatusHealthy, info.Health.Status)

	st := s.Metrics()
	require.Len(t, st, 1)
	assert.Equal(t, int64(1), st[0].UsageCount)
}

func TestExecuteUnregisteredSkipsPool(t *testing.T) {
	s := newSandbox(t, nil)

	res, err := s.ExecuteModule(context.Background(), "ghost", "q", 0)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
	assert.False(t, res.Success)

	// No execution unit was created for the rejected request.
	assert.Equal(t, 0, s.PoolStats()["size"])
	assert.Empty(t, s.Metrics())
}

func TestExecuteDisabled(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("calc", nil, writePlugin(t, calcPlugin))
	require.NoError(t, s.SetEnabled("calc", false))

	res, err := s.ExecuteModule(context.Background(), "calc", "q", 0)
	assert.ErrorIs(t, err, registry.ErrDisabled)
	assert.False(t, res.Success)
	assert.Equal(t, 0, s.PoolStats()["size"])
}

func TestExecuteWithoutModulePath(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("pathless", nil, "")

	_, err := s.ExecuteModule(context.Background(), "pathless", "q", 0)
	assert.ErrorIs(t, err, registry.ErrNoModulePath)
}

func TestCrashLoopDisablesPlugin(t *testing.T) {
	var mu sync.Mutex
	var notes []protocol.NotificationMessage
	emit := func(msg any) {
		if n, ok := msg.(protocol.NotificationMessage); ok {
			mu.Lock()
			notes = append(notes, n)
			mu.Unlock()
		}
	}

	s := newSandbox(t, emit)
	s.Register("crash", nil, writePlugin(t, crashPlugin))

	for i := 0; i < 3; i++ {
		res, err := s.ExecuteModule(context.Background(), "crash", "q", 0)
		require.NoError(t, err)
		assert.False(t, res.Success)
	}

	info, ok := s.Plugin("crash")
	require.True(t, ok)
	assert.False(t, info.Enabled)
	assert.Equal(t, 3, info.CrashCount)
	assert.Equal(t, registry.StatusError, info.Health.Status)

	// The fourth attempt is rejected before touching the pool.
	_, err := s.ExecuteModule(context.Background(), "crash", "q", 0)
	assert.ErrorIs(t, err, registry.ErrDisabled)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0].Message, "crash")
}

func TestReRegisterResetsBreaker(t *testing.T) {
	s := newSandbox(t, nil)
	path := writePlugin(t, crashPlugin)
	s.Register("crash", nil, path)

	for i := 0; i < 3; i++ {
		_, _ = s.ExecuteModule(context.Background(), "crash", "q", 0)
	}
	info, _ := s.Plugin("crash")
	require.False(t, info.Enabled)

	s.Register("crash", nil, path)
	info, _ = s.Plugin("crash")
	assert.True(t, info.Enabled)
	assert.Zero(t, info.CrashCount)
}

func TestSuccessClearsCrashStreak(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("crash", nil, writePlugin(t, crashPlugin))
	s.Register("calc", nil, writePlugin(t, calcPlugin))

	_, _ = s.ExecuteModule(context.Background(), "crash", "q", 0)
	_, _ = s.ExecuteModule(context.Background(), "crash", "q", 0)
	info, _ := s.Plugin("crash")
	require.Equal(t, 2, info.CrashCount)

	// Swap the module for a working one; one success clears the streak.
	s.Register("crash", nil, writePlugin(t, calcPlugin))
	res, err := s.ExecuteModule(context.Background(), "crash", "q", 0)
	require.NoError(t, err)
	require.True(t, res.Success)

	info, _ = s.Plugin("crash")
	assert.Zero(t, info.CrashCount)
}

func TestTimeoutDiscardsUnit(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("spin", nil, writePlugin(t, spinPlugin))
	s.Register("calc", nil, writePlugin(t, calcPlugin))

	res, err := s.ExecuteModule(context.Background(), "spin", "q", 100*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")

	// The interrupted unit was discarded; a fresh one serves the next call.
	res, err = s.ExecuteModule(context.Background(), "calc", "q", 0)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestTimeoutBoundedWallClock(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("spin", nil, writePlugin(t, spinPlugin))

	start := time.Now()
	_, err := s.ExecuteModule(context.Background(), "spin", "q", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecuteCode(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("inline", nil, "")

	code := `
		[{
			id: "r1",
			title: "Hello " + args[0],
			actionData: { type: "none" }
		}]
	`
	res, err := s.ExecuteCode(context.Background(), "inline", code, []any{"world"}, 0)
	require.NoError(t, err)
	require.True(t, res.Success, "error: %s", res.Error)
	require.Len(t, res.Results, 1)
	assert.Equal(t, "Hello world", res.Results[0].Title)
}

func TestPermissionPassthrough(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("calc", []string{"network"}, "")

	assert.True(t, s.CheckPermission("calc", "network"))
	assert.False(t, s.CheckPermission("calc", "filesystem"))

	require.NoError(t, s.GrantPermission("calc", "filesystem"))
	assert.True(t, s.CheckPermission("calc", "filesystem"))

	require.NoError(t, s.RevokePermission("calc", "network"))
	assert.False(t, s.CheckPermission("calc", "network"))

	assert.Error(t, s.GrantPermission("ghost", "network"))
}

func TestUnregister(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("calc", nil, "")
	s.Unregister("calc")

	_, ok := s.Plugin("calc")
	assert.False(t, ok)
	_, err := s.ExecuteModule(context.Background(), "calc", "q", 0)
	assert.ErrorIs(t, err, registry.ErrNotRegistered)
}

func TestConcurrentPluginsBoundedByPool(t *testing.T) {
	s := newSandbox(t, nil)

	plugins := []string{"p1", "p2", "p3", "p4", "p5"}
	for _, id := range plugins {
		s.Register(id, nil, writePlugin(t, calcPlugin))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(plugins))
	for i, id := range plugins {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				res, err := s.ExecuteModule(context.Background(), id, "q", 0)
				if err != nil {
					errs[i] = err
					return
				}
				if !res.Success {
					errs[i] = errors.New(res.Error)
					return
				}
			}
		}(i, id)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "plugin %s", plugins[i])
	}
	stats := s.PoolStats()
	assert.LessOrEqual(t, stats["size"].(int), 4)
}

func TestAcquireHonorsContext(t *testing.T) {
	s := newSandbox(t, nil)
	s.Register("spin", nil, writePlugin(t, spinPlugin))

	cfgMax := 4
	// Saturate the pool with long executions.
	var wg sync.WaitGroup
	for i := 0; i < cfgMax; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.ExecuteModule(context.Background(), "spin", "q", 300*time.Millisecond)
		}()
	}

	// Wait until the spinners hold every unit; unit construction is
	// concurrent but not instant.
	deadline := time.After(2 * time.Second)
	for s.PoolStats()["busy"].(int) != cfgMax {
		select {
		case <-deadline:
			t.Fatalf("pool never saturated, stats = %v", s.PoolStats())
		case <-time.After(2 * time.Millisecond):
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.ExecuteModule(ctx, "spin", "q", 100*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	wg.Wait()
}
