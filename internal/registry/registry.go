// Package registry collects the declarative test modules known to a
// run.
//
// A module maps test names to entry functions, each producing a single
// blueprint. Modules come from manifest discovery or from static Go
// registration; either way the registry enforces the same invariants:
// module names unique across the registry, entry names unique within a
// module, entry functions pure.
package registry

import (
	"fmt"
	"sort"
)

// Registry holds every registered module. Enumeration order is
// deterministic: modules sort by name, entries within a module sort by
// name.
type Registry struct {
	modules map[string]Module
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Add registers a module. It fails when the module name is empty or
// already taken, or when the module's entries violate the unique-name
// invariant.
func (r *Registry) Add(m Module) error {
	name := m.Name()
	if name == "" {
		return fmt.Errorf("module name is empty")
	}
	if _, ok := r.modules[name]; ok {
		return fmt.Errorf("module %q registered twice", name)
	}
	seen := make(map[string]struct{})
	for _, e := range m.Entries() {
		if e.Name == "" {
			return fmt.Errorf("module %q: entry with empty name", name)
		}
		if e.Blueprint == nil {
			return fmt.Errorf("module %q: entry %q has no blueprint function", name, e.Name)
		}
		if _, dup := seen[e.Name]; dup {
			return &DuplicateError{Module: name, Name: e.Name}
		}
		seen[e.Name] = struct{}{}
	}
	r.modules[name] = m
	return nil
}

// Modules returns all registered modules sorted by name.
func (r *Registry) Modules() []Module {
	out := make([]Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup returns the module registered under name.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Len reports the number of registered modules.
func (r *Registry) Len() int { return len(r.modules) }
