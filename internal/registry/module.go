package registry

import (
	"fmt"
	"sort"

	"github.com/rtzoeller/perfetto/internal/blueprint"
)

// Entry is a named test declaration. Blueprint must be pure: no side
// effects, and structurally equal results on every call.
type Entry struct {
	Name      string
	Blueprint func() blueprint.Blueprint
}

// Module is a named collection of test entries. Implementations must
// return entries sorted by name, with names unique within the module.
type Module interface {
	// Name identifies the module, for example "fs".
	Name() string
	// FixtureDir is an optional directory searched before the configured
	// roots when resolving this module's refs. Empty when the module has
	// no local fixtures.
	FixtureDir() string
	// Entries enumerates the module's tests sorted by name.
	Entries() []Entry
}

// StaticModule is a Module assembled in Go code.
type StaticModule struct {
	name    string
	dir     string
	entries map[string]Entry
}

// NewStaticModule creates an empty module. fixtureDir may be empty.
func NewStaticModule(name, fixtureDir string) *StaticModule {
	return &StaticModule{
		name:    name,
		dir:     fixtureDir,
		entries: make(map[string]Entry),
	}
}

// Add registers one test entry. Reusing a name fails with a
// DuplicateError.
func (m *StaticModule) Add(name string, fn func() blueprint.Blueprint) error {
	if name == "" {
		return fmt.Errorf("module %q: test name is empty", m.name)
	}
	if fn == nil {
		return fmt.Errorf("module %q: test %q has no blueprint function", m.name, name)
	}
	if _, ok := m.entries[name]; ok {
		return &DuplicateError{Module: m.name, Name: name}
	}
	m.entries[name] = Entry{Name: name, Blueprint: fn}
	return nil
}

// Name implements Module.
func (m *StaticModule) Name() string { return m.name }

// FixtureDir implements Module.
func (m *StaticModule) FixtureDir() string { return m.dir }

// Entries implements Module.
func (m *StaticModule) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
