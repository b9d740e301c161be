package manifest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/rtzoeller/perfetto/internal/blueprint"
	"github.com/rtzoeller/perfetto/internal/registry"
)

// manifestSuffix selects the files treated as module manifests.
const manifestSuffix = "tests.cue"

// LoadError reports a module directory whose manifests could not be
// loaded. One module failing never aborts discovery of its siblings.
type LoadError struct {
	// Dir is the module directory relative to the discovery root.
	Dir string
	// Path is the offending manifest file, when known.
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("module %s: %s: %v", e.Dir, e.Path, e.Err)
	}
	return fmt.Sprintf("module %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Discover scans root for module directories and loads their manifests.
// Every directory holding at least one "*tests.cue" file becomes one
// module. Modules that fail to load are returned as LoadErrors;
// successfully loaded siblings are unaffected. The returned modules are
// sorted by directory.
func Discover(root string) ([]registry.Module, []*LoadError, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, fmt.Errorf("modules directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("modules directory %s: not a directory", root)
	}

	byDir := make(map[string][]string)
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(name, manifestSuffix) {
			dir := filepath.Dir(path)
			byDir[dir] = append(byDir[dir], path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", root, walkErr)
	}

	dirs := make([]string, 0, len(byDir))
	for dir := range byDir {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	ctx := cuecontext.New()
	var modules []registry.Module
	var failures []*LoadError
	for _, dir := range dirs {
		files := byDir[dir]
		sort.Strings(files)

		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == "." {
			rel = filepath.Base(dir)
		}

		m, loadErr := loadModule(ctx, rel, dir, files)
		if loadErr != nil {
			failures = append(failures, loadErr)
			continue
		}
		modules = append(modules, m)
	}
	return modules, failures, nil
}

// loadModule compiles every manifest in one directory and merges the
// declarations. Duplicate test names across files are rejected with
// both declaration sites; within one file CUE unification applies, so
// conflicting redeclarations already fail at compile time.
func loadModule(ctx *cue.Context, rel, dir string, files []string) (registry.Module, *LoadError) {
	name := filepath.Base(dir)

	var moduleName, moduleNameFile string
	var entries []entry
	seen := make(map[string]token.Pos)

	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, &LoadError{Dir: rel, Path: file, Err: err}
		}
		p, err := compileFile(ctx, file, data)
		if err != nil {
			return nil, &LoadError{Dir: rel, Path: file, Err: err}
		}

		if p.module != "" {
			if moduleName != "" && p.module != moduleName {
				return nil, &LoadError{Dir: rel, Path: file, Err: fmt.Errorf(
					"module name %q conflicts with %q declared in %s", p.module, moduleName, moduleNameFile)}
			}
			moduleName = p.module
			moduleNameFile = file
		}

		for _, e := range p.entries {
			if prev, dup := seen[e.name]; dup {
				return nil, &LoadError{Dir: rel, Path: file, Err: &registry.DuplicateError{
					Module:    name,
					Name:      e.name,
					Positions: []string{posString(prev), posString(e.pos)},
				}}
			}
			seen[e.name] = e.pos
			entries = append(entries, e)
		}
	}

	if moduleName != "" {
		name = moduleName
	}
	m := registry.NewStaticModule(name, dir)
	for _, e := range entries {
		bp := e.bp
		if err := m.Add(e.name, func() blueprint.Blueprint { return bp }); err != nil {
			return nil, &LoadError{Dir: rel, Err: err}
		}
	}
	return m, nil
}

func posString(p token.Pos) string {
	if p.IsValid() {
		return fmt.Sprintf("%s:%d", p.Filename(), p.Line())
	}
	return "unknown position"
}
