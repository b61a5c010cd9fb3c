package executor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/etools-app/sandbox/internal/protocol"
)

const qrcodePlugin = `
const manifest = {
	name: "qrcode",
	version: "1.0.0",
	description: "QR code generator",
	permissions: ["network"],
	entry: "index.js",
	triggers: ["qr"]
};

function search(query) {
	return [{
		id: "qr-1",
		title: "Generate QR for " + query,
		description: "Copies a QR payload",
		score: 0.9,
		actionData: { type: "clipboard", text: query }
	}];
}

module.exports = { manifest, search };
`

func writePlugin(t *testing.T, source string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "index.js")
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("writing plugin: %v", err)
	}
	return path
}

func TestExecuteModule(t *testing.T) {
	path := writePlugin(t, qrcodePlugin)
	exec := New(nil)
	defer exec.Close()

	msg := protocol.NewExecute("qrcode", path, "qr:hello", []string{"network"}, 2000)
	res, fatal := exec.Execute(msg)

	if fatal != nil {
		t.Fatalf("fatal = %v", fatal)
	}
	if !res.Success {
		t.Fatalf("Success = false, error = %q", res.Error)
	}
	if len(res.Results) != 1 {
		t.Fatalf("len(Results) = %d, want 1", len(res.Results))
	}

	got := res.Results[0]
	if got.Title != "Generate QR for qr:hello" {
		t.Errorf("Title = %q", got.Title)
	}
	if got.ActionData.Type != protocol.ActionClipboard {
		t.Errorf("ActionData.Type = %q, want clipboard", got.ActionData.Type)
	}
	if got.ActionData.Payload["text"] != "qr:hello" {
		t.Errorf("ActionData.Payload = %v", got.ActionData.Payload)
	}
	if res.ExecutionTime < 0 {
		t.Errorf("ExecutionTime = %d", res.ExecutionTime)
	}
}

func TestExecuteResolvesEntryWithoutExtension(t *testing.T) {
	path := writePlugin(t, qrcodePlugin)
	exec := New(nil)
	defer exec.Close()

	// Register-style path: directory index without the .js suffix.
	bare := strings.TrimSuffix(path, ".js")
	res, fatal := exec.Execute(protocol.NewExecute("qrcode", bare, "x", nil, 2000))
	if fatal != nil || !res.Success {
		t.Fatalf("bare path: success=%v error=%q fatal=%v", res.Success, res.Error, fatal)
	}

	// Directory path resolves to its index.js.
	dir := filepath.Dir(path)
	res, fatal = exec.Execute(protocol.NewExecute("qrcode", dir, "x", nil, 2000))
	if fatal != nil || !res.Success {
		t.Fatalf("dir path: success=%v error=%q fatal=%v", res.Success, res.Error, fatal)
	}
}

func TestExecuteAcceptsOnSearch(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "alt", version: "0.1.0" },
	onSearch: function (query) {
		return [{ title: "alt " + query, actionData: { type: "none" } }];
	}
};
`)
	exec := New(nil)
	defer exec.Close()

	res, fatal := exec.Execute(protocol.NewExecute("alt", path, "q", nil, 2000))
	if fatal != nil || !res.Success {
		t.Fatalf("success=%v error=%q fatal=%v", res.Success, res.Error, fatal)
	}
	if res.Results[0].Title != "alt q" {
		t.Errorf("Title = %q", res.Results[0].Title)
	}
}

func TestExecuteSettledPromise(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "p" },
	search: q => Promise.resolve([{ title: "async " + q }])
};
`)
	exec := New(nil)
	defer exec.Close()

	res, fatal := exec.Execute(protocol.NewExecute("p", path, "q", nil, 2000))
	if fatal != nil || !res.Success {
		t.Fatalf("success=%v error=%q fatal=%v", res.Success, res.Error, fatal)
	}
	if res.Results[0].ActionData.Type != protocol.ActionNone {
		t.Errorf("ActionData.Type = %q, want none default", res.Results[0].ActionData.Type)
	}
}

func TestExecuteValidation(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{
			name:    "no manifest",
			source:  `module.exports = { search: q => [] };`,
			wantErr: "manifest",
		},
		{
			name:    "no entrypoint",
			source:  `module.exports = { manifest: { name: "x" } };`,
			wantErr: "entrypoint",
		},
		{
			name:    "empty exports",
			source:  `var unused = 1;`,
			wantErr: "manifest",
		},
		{
			name:    "syntax error",
			source:  `module.exports = {`,
			wantErr: "parse",
		},
		{
			name: "throwing entrypoint",
			source: `module.exports = {
				manifest: { name: "x" },
				search: function () { throw new Error("plugin exploded"); }
			};`,
			wantErr: "plugin exploded",
		},
		{
			name: "non-array result",
			source: `module.exports = {
				manifest: { name: "x" },
				search: q => 42
			};`,
			wantErr: "result array",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writePlugin(t, tt.source)
			exec := New(nil)
			defer exec.Close()

			res, fatal := exec.Execute(protocol.NewExecute("bad", path, "q", nil, 2000))
			if fatal != nil {
				t.Fatalf("validation failures must not be fatal: %v", fatal)
			}
			if res.Success {
				t.Fatal("Success = true, want failure")
			}
			if !strings.Contains(res.Error, tt.wantErr) {
				t.Errorf("Error = %q, want substring %q", res.Error, tt.wantErr)
			}
		})
	}
}

func TestExecuteTimeoutIsFatal(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "spin" },
	search: function () { for (;;) {} }
};
`)
	exec := New(nil)
	defer exec.Close()

	res, fatal := exec.Execute(protocol.NewExecute("spin", path, "q", nil, 100))
	if !errors.Is(fatal, protocol.ErrTimeout) {
		t.Fatalf("fatal = %v, want ErrTimeout", fatal)
	}
	if res.Success {
		t.Error("timed-out execution must not succeed")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestExecuteMissingModule(t *testing.T) {
	exec := New(nil)
	defer exec.Close()

	res, fatal := exec.Execute(protocol.NewExecute("ghost", "/nonexistent/plugin", "q", nil, 1000))
	if fatal != nil {
		t.Fatalf("fatal = %v", fatal)
	}
	if res.Success || !strings.Contains(res.Error, "resolve") {
		t.Errorf("success=%v error=%q", res.Success, res.Error)
	}
}

func TestConsoleIsRedirected(t *testing.T) {
	path := writePlugin(t, `
console.log("loading", 1);
module.exports = {
	manifest: { name: "noisy" },
	search: function (q) {
		console.warn("searching", q);
		console.error("deep", { nested: true });
		return [];
	}
};
`)

	var mu sync.Mutex
	var logs []protocol.LogMessage
	exec := New(func(msg any) {
		if lm, ok := msg.(protocol.LogMessage); ok {
			mu.Lock()
			logs = append(logs, lm)
			mu.Unlock()
		}
	})
	defer exec.Close()

	res, _ := exec.Execute(protocol.NewExecute("noisy", path, "q", nil, 2000))
	if !res.Success {
		t.Fatalf("error = %q", res.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(logs) != 3 {
		t.Fatalf("len(logs) = %d, want 3", len(logs))
	}
	if logs[0].Level != "info" || logs[1].Level != "warn" || logs[2].Level != "error" {
		t.Errorf("levels = %s/%s/%s", logs[0].Level, logs[1].Level, logs[2].Level)
	}
	for _, lm := range logs {
		if lm.PluginID != "noisy" {
			t.Errorf("PluginID = %q, want noisy", lm.PluginID)
		}
	}
}

func TestNotifyEmitsNotification(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "n" },
	search: function () {
		etools.notify("Title", "Body");
		return [];
	}
};
`)

	var mu sync.Mutex
	var notes []protocol.NotificationMessage
	exec := New(func(msg any) {
		if nm, ok := msg.(protocol.NotificationMessage); ok {
			mu.Lock()
			notes = append(notes, nm)
			mu.Unlock()
		}
	})
	defer exec.Close()

	if res, _ := exec.Execute(protocol.NewExecute("n", path, "q", nil, 2000)); !res.Success {
		t.Fatalf("error = %q", res.Error)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(notes) != 1 || notes[0].Title != "Title" || notes[0].Message != "Body" {
		t.Errorf("notes = %+v", notes)
	}
}

func TestPermissionSnapshotVisibleToPlugin(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "perms" },
	search: function () {
		return [{
			title: "perm check",
			actionData: { type: "custom", network: etools.hasPermission("network"), fs: etools.hasPermission("filesystem") }
		}];
	}
};
`)
	exec := New(nil)
	defer exec.Close()

	res, _ := exec.Execute(protocol.NewExecute("perms", path, "q", []string{"network"}, 2000))
	if !res.Success {
		t.Fatalf("error = %q", res.Error)
	}
	payload := res.Results[0].ActionData.Payload
	if payload["network"] != true || payload["fs"] != false {
		t.Errorf("payload = %v", payload)
	}
}

func TestPluginSwitchGetsFreshScope(t *testing.T) {
	leaker := writePlugin(t, `
globalThis.leak = "secret";
module.exports = {
	manifest: { name: "leaker" },
	search: () => [{ title: "done" }]
};
`)
	inspector := writePlugin(t, `
module.exports = {
	manifest: { name: "inspector" },
	search: () => [{ title: "leak:" + typeof globalThis.leak }]
};
`)

	exec := New(nil)
	defer exec.Close()

	if res, _ := exec.Execute(protocol.NewExecute("leaker", leaker, "q", nil, 2000)); !res.Success {
		t.Fatalf("leaker error = %q", res.Error)
	}
	res, _ := exec.Execute(protocol.NewExecute("inspector", inspector, "q", nil, 2000))
	if !res.Success {
		t.Fatalf("inspector error = %q", res.Error)
	}
	if res.Results[0].Title != "leak:undefined" {
		t.Errorf("Title = %q, state leaked across plugins", res.Results[0].Title)
	}
}

func TestExecuteCodeVariant(t *testing.T) {
	exec := New(nil)
	defer exec.Close()

	msg := protocol.NewCodeExecute("inline", `
[{ title: "arg sum " + (args[0] + args[1]), actionData: { type: "none" } }]
`, []any{int64(1), int64(2)}, nil, 2000)

	res, fatal := exec.Execute(msg)
	if fatal != nil || !res.Success {
		t.Fatalf("success=%v error=%q fatal=%v", res.Success, res.Error, fatal)
	}
	if res.Results[0].Title != "arg sum 3" {
		t.Errorf("Title = %q", res.Results[0].Title)
	}
}

func TestFunctionValuesNeverCrossBack(t *testing.T) {
	path := writePlugin(t, `
module.exports = {
	manifest: { name: "cb" },
	search: function () {
		return [{
			title: "with callback",
			actionData: { type: "custom", onPick: function () {}, keep: "yes" }
		}];
	}
};
`)
	exec := New(nil)
	defer exec.Close()

	res, _ := exec.Execute(protocol.NewExecute("cb", path, "q", nil, 2000))
	if !res.Success {
		t.Fatalf("error = %q", res.Error)
	}
	payload := res.Results[0].ActionData.Payload
	if _, present := payload["onPick"]; present {
		t.Error("callable value crossed the boundary")
	}
	if payload["keep"] != "yes" {
		t.Errorf("payload = %v, serializable fields must survive", payload)
	}
}
