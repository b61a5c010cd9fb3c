package manifest

import (
	"os"
	"path/filepath"
	"sort"
)

// Plugin is one discovered plugin package.
type Plugin struct {
	ID       string    `json:"id"`
	Dir      string    `json:"dir"`
	Manifest *Manifest `json:"manifest"`
}

// Discover scans root for plugin directories. A plugin directory is any
// immediate child of root containing a plugin.json. Directories whose
// manifest fails to parse are skipped; discovery is best-effort and never
// fails on a single bad package.
func Discover(root string) ([]Plugin, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var plugins []Plugin
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := Load(dir)
		if err != nil {
			continue
		}
		plugins = append(plugins, Plugin{
			ID:       e.Name(),
			Dir:      dir,
			Manifest: m,
		})
	}

	sort.Slice(plugins, func(i, j int) bool { return plugins[i].ID < plugins[j].ID })
	return plugins, nil
}
