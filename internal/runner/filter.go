package runner

import (
	"path/filepath"
	"strings"
)

// Filter selects test cases by module and test name. Patterns use
// filepath.Match syntax; a pattern without wildcards matches as a
// substring. Empty patterns match everything.
type Filter struct {
	Module string
	Name   string
}

// MatchModule reports whether a module name passes the module pattern.
func (f Filter) MatchModule(name string) bool {
	return match(f.Module, name)
}

// MatchName reports whether a test name passes the name pattern.
func (f Filter) MatchName(name string) bool {
	return match(f.Name, name)
}

// Match reports whether the (module, name) pair is selected.
func (f Filter) Match(module, name string) bool {
	return f.MatchModule(module) && f.MatchName(name)
}

func match(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[") {
		return strings.Contains(s, pattern)
	}
	ok, err := filepath.Match(pattern, s)
	return err == nil && ok
}
