package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"
)

// FileName is the manifest file every plugin directory must carry.
const FileName = "plugin.json"

// Manifest describes a plugin package.
type Manifest struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Author      string    `json:"author,omitempty"`
	Permissions []string  `json:"permissions"`
	Entry       string    `json:"entry"`
	Triggers    []Trigger `json:"triggers"`
}

// Trigger is a search keyword that routes queries to the plugin.
type Trigger struct {
	Keyword     string `json:"keyword"`
	Description string `json:"description"`
	Hotkey      string `json:"hotkey,omitempty"`
}

// UnmarshalJSON accepts both the shorthand string form ("qr:") and the
// object form ({"keyword": "qr:", ...}). Older plugins use the shorthand.
func (t *Trigger) UnmarshalJSON(data []byte) error {
	var s string
	if err := sonic.Unmarshal(data, &s); err == nil {
		t.Keyword = s
		t.Description = ""
		t.Hotkey = ""
		return nil
	}

	type object Trigger
	var obj object
	if err := sonic.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("trigger must be a string or an object: %w", err)
	}
	*t = Trigger(obj)
	return nil
}

// Parse decodes a manifest from raw JSON.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Load reads and parses the manifest of the plugin directory dir.
func Load(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(data)
}

// EntryPath returns the absolute path of the manifest's entry script
// relative to the plugin directory dir.
func (m *Manifest) EntryPath(dir string) string {
	return filepath.Join(dir, m.Entry)
}
