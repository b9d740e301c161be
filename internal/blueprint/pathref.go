package blueprint

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RootKind identifies the fixture category a PathRef resolves against.
// Each kind has its own ordered list of search roots (see the resolver
// package).
type RootKind int

const (
	// RootTrace is the category for recorded trace fixtures.
	RootTrace RootKind = iota
	// RootQuery is the category for query text fixtures.
	RootQuery
	// RootGolden is the category for approved golden output files.
	RootGolden
)

// String returns the category name used in errors and logs.
func (k RootKind) String() string {
	switch k {
	case RootTrace:
		return "trace"
	case RootQuery:
		return "query"
	case RootGolden:
		return "golden"
	default:
		return fmt.Sprintf("RootKind(%d)", int(k))
	}
}

// PathRef is a symbolic, root-relative file reference: a file name plus
// the fixture category it belongs to. It never carries an absolute
// location; binding it to a real file is the resolver's job.
// PathRefs are immutable once constructed.
type PathRef struct {
	root RootKind
	name string
}

// InvalidRefError reports a reference that fails validation, such as an
// empty name or a path-traversal segment.
type InvalidRefError struct {
	Name   string
	Reason string
}

func (e *InvalidRefError) Error() string {
	return fmt.Sprintf("invalid path ref %q: %s", e.Name, e.Reason)
}

// NewRef validates name and returns a PathRef in the given category.
// Valid names are non-empty relative paths with no ".", "..", or empty
// segments.
func NewRef(root RootKind, name string) (PathRef, error) {
	if err := validateRefName(name); err != nil {
		return PathRef{}, err
	}
	return PathRef{root: root, name: name}, nil
}

// TraceRef returns a PathRef in the trace category.
func TraceRef(name string) (PathRef, error) { return NewRef(RootTrace, name) }

// QueryRef returns a PathRef in the query category.
func QueryRef(name string) (PathRef, error) { return NewRef(RootQuery, name) }

// GoldenRef returns a PathRef in the golden category.
func GoldenRef(name string) (PathRef, error) { return NewRef(RootGolden, name) }

// Root returns the fixture category this ref resolves against.
func (r PathRef) Root() RootKind { return r.root }

// Name returns the root-relative file name.
func (r PathRef) Name() string { return r.name }

// IsZero reports whether the ref was not built through NewRef.
func (r PathRef) IsZero() bool { return r.name == "" }

// String renders the ref as "category:name".
func (r PathRef) String() string { return r.root.String() + ":" + r.name }

// Validate re-runs construction validation. Zero values fail it; refs
// built through NewRef always pass.
func (r PathRef) Validate() error { return validateRefName(r.name) }

func validateRefName(name string) error {
	if name == "" {
		return &InvalidRefError{Name: name, Reason: "empty name"}
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return &InvalidRefError{Name: name, Reason: "absolute paths are not allowed"}
	}
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		switch seg {
		case "":
			return &InvalidRefError{Name: name, Reason: "empty path segment"}
		case ".", "..":
			return &InvalidRefError{Name: name, Reason: fmt.Sprintf("path segment %q is not allowed", seg)}
		}
	}
	return nil
}
