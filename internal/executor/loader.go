package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dop251/goja"
)

// cachedProgram is a compiled plugin module keyed by resolved path. The
// compilation is VM-independent, so the cache survives VM resets; a changed
// mod time invalidates the entry.
type cachedProgram struct {
	prog    *goja.Program
	modTime time.Time
}

// resolveEntry maps a registered module path onto a concrete file. Accepted
// forms: an exact file path, a path missing its ".js" extension, or a
// directory containing index.js. The original launcher registers entries
// like "/plugins/qrcode/index".
func resolveEntry(path string) (string, error) {
	if fi, err := os.Stat(path); err == nil {
		if !fi.IsDir() {
			return path, nil
		}
		index := filepath.Join(path, "index.js")
		if fi, err := os.Stat(index); err == nil && !fi.IsDir() {
			return index, nil
		}
		return "", fmt.Errorf("plugin directory %s has no index.js", path)
	}

	withExt := path + ".js"
	if fi, err := os.Stat(withExt); err == nil && !fi.IsDir() {
		return withExt, nil
	}
	return "", fmt.Errorf("cannot resolve plugin entry %s", path)
}

// loadModule resolves, compiles, and evaluates a plugin module, returning
// its exports object. Exports are cached per VM generation so repeated
// executions of the same plugin skip the re-import.
func (e *Executor) loadModule(vm *goja.Runtime, path string) (*goja.Object, error) {
	resolved, err := resolveEntry(path)
	if err != nil {
		return nil, err
	}

	if exports, ok := e.modules[resolved]; ok {
		return exports, nil
	}

	prog, err := e.compile(resolved)
	if err != nil {
		return nil, err
	}

	wrapper, err := vm.RunProgram(prog)
	if err != nil {
		return nil, fmt.Errorf("plugin module failed to load: %w", err)
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("plugin module %s did not compile to a module wrapper", resolved)
	}

	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return nil, err
	}
	if _, err := fn(goja.Undefined(), module, exports); err != nil {
		return nil, fmt.Errorf("plugin module threw during load: %w", err)
	}

	final := module.Get("exports")
	obj, ok := final.(*goja.Object)
	if !ok || final == nil || goja.IsUndefined(final) || goja.IsNull(final) {
		return nil, fmt.Errorf("plugin module %s exported nothing", resolved)
	}

	e.modules[resolved] = obj
	return obj, nil
}

// compile reads and compiles a module file, reusing the cached program when
// the file is unchanged. The source is wrapped CommonJS-style so the module
// sees its own module/exports pair instead of the shared global scope.
func (e *Executor) compile(resolved string) (*goja.Program, error) {
	fi, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("plugin entry unreadable: %w", err)
	}

	if cached, ok := e.programs[resolved]; ok && cached.modTime.Equal(fi.ModTime()) {
		return cached.prog, nil
	}

	src, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("plugin entry unreadable: %w", err)
	}

	wrapped := "(function (module, exports) {\n" + string(src) + "\n})"
	prog, err := goja.Compile(resolved, wrapped, false)
	if err != nil {
		return nil, fmt.Errorf("plugin module does not parse: %w", err)
	}

	e.programs[resolved] = &cachedProgram{prog: prog, modTime: fi.ModTime()}
	return prog, nil
}
