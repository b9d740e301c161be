// Package blueprint defines the declarative description of a single
// diff test case: which trace to load, which query to run against it,
// and which golden file holds the approved output.
//
// Blueprints are pure data. Producing one has no side effects, and the
// same module entry invoked twice yields structurally equal values. All
// file references are symbolic PathRefs bound to real files later by
// the resolver.
package blueprint

import (
	"fmt"
	"reflect"
	"time"
)

// Option keys recognized by the runner.
const (
	// OptionTimeout overrides the run-level per-case timeout. Values are
	// a time.Duration or a Go duration string such as "45s".
	OptionTimeout = "timeout"
)

// Blueprint describes one test case. Immutable once constructed.
type Blueprint struct {
	trace  PathRef
	query  PathRef
	golden PathRef
	opts   map[string]any
}

// New builds a Blueprint from one ref per fixture category plus optional
// per-case options. Each ref must be valid and carry the category
// matching its position; recognized options must parse.
func New(trace, query, golden PathRef, opts map[string]any) (Blueprint, error) {
	if err := checkRef(trace, RootTrace); err != nil {
		return Blueprint{}, err
	}
	if err := checkRef(query, RootQuery); err != nil {
		return Blueprint{}, err
	}
	if err := checkRef(golden, RootGolden); err != nil {
		return Blueprint{}, err
	}
	b := Blueprint{trace: trace, query: query, golden: golden}
	if len(opts) > 0 {
		b.opts = make(map[string]any, len(opts))
		for k, v := range opts {
			b.opts[k] = v
		}
	}
	if v, ok := b.opts[OptionTimeout]; ok {
		if _, err := parseTimeout(v); err != nil {
			return Blueprint{}, fmt.Errorf("option %q: %w", OptionTimeout, err)
		}
	}
	return b, nil
}

func checkRef(ref PathRef, want RootKind) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%s ref: %w", want, err)
	}
	if ref.Root() != want {
		return fmt.Errorf("%s ref: got category %s", want, ref.Root())
	}
	return nil
}

// Trace returns the trace fixture reference.
func (b Blueprint) Trace() PathRef { return b.trace }

// Query returns the query fixture reference.
func (b Blueprint) Query() PathRef { return b.query }

// Golden returns the golden file reference.
func (b Blueprint) Golden() PathRef { return b.golden }

// Option returns the raw per-case option value for key.
func (b Blueprint) Option(key string) (any, bool) {
	v, ok := b.opts[key]
	return v, ok
}

// Options returns a copy of the per-case options. Mutating the copy does
// not affect the Blueprint.
func (b Blueprint) Options() map[string]any {
	if len(b.opts) == 0 {
		return nil
	}
	out := make(map[string]any, len(b.opts))
	for k, v := range b.opts {
		out[k] = v
	}
	return out
}

// Timeout reports the per-case timeout override, when set. New rejects
// unparseable values, so a set option always parses here.
func (b Blueprint) Timeout() (time.Duration, bool) {
	v, ok := b.opts[OptionTimeout]
	if !ok {
		return 0, false
	}
	d, err := parseTimeout(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

// Equal reports structural equality, options included.
func (b Blueprint) Equal(o Blueprint) bool {
	return b.trace == o.trace &&
		b.query == o.query &&
		b.golden == o.golden &&
		reflect.DeepEqual(b.opts, o.opts)
}

func parseTimeout(v any) (time.Duration, error) {
	switch t := v.(type) {
	case time.Duration:
		if t < 0 {
			return 0, fmt.Errorf("negative duration %s", t)
		}
		return t, nil
	case string:
		d, err := time.ParseDuration(t)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", t)
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %s", d)
		}
		return d, nil
	default:
		return 0, fmt.Errorf("unsupported timeout type %T", v)
	}
}
