// Package resolver binds symbolic fixture references to files on disk.
//
// Each fixture category (trace, query, golden) has an ordered list of
// search roots; the first root containing the referenced file wins.
// Resolution is deterministic and side-effect-free: the same ref under
// the same configuration always yields the same path, and nothing
// beyond stat calls touches the filesystem.
package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rtzoeller/perfetto/internal/blueprint"
)

// Roots lists the ordered search directories per fixture category.
type Roots struct {
	Trace  []string
	Query  []string
	Golden []string
}

func (r Roots) forKind(k blueprint.RootKind) []string {
	switch k {
	case blueprint.RootTrace:
		return r.Trace
	case blueprint.RootQuery:
		return r.Query
	case blueprint.RootGolden:
		return r.Golden
	default:
		return nil
	}
}

// NotFoundError reports a ref that none of the searched roots contain.
type NotFoundError struct {
	Ref      blueprint.PathRef
	Searched []string
}

func (e *NotFoundError) Error() string {
	if len(e.Searched) == 0 {
		return fmt.Sprintf("%s: no roots configured for category %s", e.Ref, e.Ref.Root())
	}
	return fmt.Sprintf("%s: not found in %s", e.Ref, strings.Join(e.Searched, ", "))
}

// Resolver maps PathRefs to absolute file paths.
type Resolver struct {
	roots Roots
}

// New builds a resolver over the given roots.
func New(roots Roots) *Resolver {
	return &Resolver{roots: roots}
}

// ForModule returns a resolver that searches dir before the configured
// roots in every category, so module-local fixtures shadow shared ones.
// An empty dir returns the receiver unchanged.
func (r *Resolver) ForModule(dir string) *Resolver {
	if dir == "" {
		return r
	}
	return &Resolver{roots: Roots{
		Trace:  prepend(dir, r.roots.Trace),
		Query:  prepend(dir, r.roots.Query),
		Golden: prepend(dir, r.roots.Golden),
	}}
}

func prepend(dir string, roots []string) []string {
	out := make([]string, 0, len(roots)+1)
	out = append(out, dir)
	return append(out, roots...)
}

// Resolve returns the absolute path of the first existing regular file
// matching ref, searching roots in configuration order. A ref no root
// contains fails with a NotFoundError listing every directory searched.
func (r *Resolver) Resolve(ref blueprint.PathRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	roots := r.roots.forKind(ref.Root())
	searched := make([]string, 0, len(roots))
	for _, root := range roots {
		searched = append(searched, root)
		abs, err := filepath.Abs(filepath.Join(root, filepath.FromSlash(ref.Name())))
		if err != nil {
			return "", fmt.Errorf("resolving %s: %w", ref, err)
		}
		info, err := os.Stat(abs)
		if err == nil && info.Mode().IsRegular() {
			return abs, nil
		}
	}
	return "", &NotFoundError{Ref: ref, Searched: searched}
}

// Target returns where ref lives in the first configured root, without
// requiring the file to exist. Golden files that have not been approved
// yet resolve through Target, and regeneration writes there.
func (r *Resolver) Target(ref blueprint.PathRef) (string, error) {
	if err := ref.Validate(); err != nil {
		return "", err
	}
	roots := r.roots.forKind(ref.Root())
	if len(roots) == 0 {
		return "", &NotFoundError{Ref: ref}
	}
	abs, err := filepath.Abs(filepath.Join(roots[0], filepath.FromSlash(ref.Name())))
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", ref, err)
	}
	return abs, nil
}
