// Package manifest discovers test modules declared in CUE manifest
// files.
//
// A module is a directory containing one or more files whose name ends
// in "tests.cue". Each manifest declares named test cases:
//
//	module: "fs"
//
//	tests: test_f2fs_iostat: {
//		trace:  "f2fs_iostat.textproto"
//		query:  "f2fs_iostat_test.sql"
//		golden: "f2fs_iostat.out"
//	}
//
// The module field is optional; the directory name is the default.
// Manifests are data, not programs: discovery evaluates the declared
// values and nothing else. Fixture names are module-relative first and
// fall back to the configured roots at resolution time.
package manifest

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/rtzoeller/perfetto/internal/blueprint"
)

// CompileError reports a malformed manifest declaration with its source
// position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// entry is one parsed test declaration.
type entry struct {
	name string
	bp   blueprint.Blueprint
	pos  token.Pos
}

// parsed holds the declarations of one manifest file.
type parsed struct {
	module  string // empty when the file does not set one
	entries []entry
}

// compileFile parses a single manifest file. Files compile in isolation
// so that cross-file duplicates stay visible instead of unifying away.
func compileFile(ctx *cue.Context, path string, data []byte) (*parsed, error) {
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	out := &parsed{}

	moduleVal := v.LookupPath(cue.ParsePath("module"))
	if moduleVal.Exists() {
		name, err := moduleVal.String()
		if err != nil {
			return nil, &CompileError{Field: "module", Message: "must be a string", Pos: moduleVal.Pos()}
		}
		if name == "" {
			return nil, &CompileError{Field: "module", Message: "must not be empty", Pos: moduleVal.Pos()}
		}
		out.module = name
	}

	testsVal := v.LookupPath(cue.ParsePath("tests"))
	if !testsVal.Exists() {
		return nil, &CompileError{Field: "tests", Message: "tests are required", Pos: v.Pos()}
	}
	iter, err := testsVal.Fields()
	if err != nil {
		return nil, &CompileError{Field: "tests", Message: fmt.Sprintf("must be a struct of test cases: %v", err), Pos: testsVal.Pos()}
	}
	for iter.Next() {
		e, err := compileCase(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		out.entries = append(out.entries, *e)
	}
	return out, nil
}

// compileCase parses a single test declaration into a blueprint.
func compileCase(name string, v cue.Value) (*entry, error) {
	field := func(key string) (string, error) {
		fv := v.LookupPath(cue.ParsePath(key))
		if !fv.Exists() {
			return "", &CompileError{
				Field:   fmt.Sprintf("tests.%s.%s", name, key),
				Message: fmt.Sprintf("%s is required", key),
				Pos:     v.Pos(),
			}
		}
		s, err := fv.String()
		if err != nil {
			return "", &CompileError{
				Field:   fmt.Sprintf("tests.%s.%s", name, key),
				Message: "must be a string",
				Pos:     fv.Pos(),
			}
		}
		return s, nil
	}

	traceName, err := field("trace")
	if err != nil {
		return nil, err
	}
	queryName, err := field("query")
	if err != nil {
		return nil, err
	}
	goldenName, err := field("golden")
	if err != nil {
		return nil, err
	}

	traceRef, err := blueprint.TraceRef(traceName)
	if err != nil {
		return nil, &CompileError{Field: fmt.Sprintf("tests.%s.trace", name), Message: err.Error(), Pos: v.Pos()}
	}
	queryRef, err := blueprint.QueryRef(queryName)
	if err != nil {
		return nil, &CompileError{Field: fmt.Sprintf("tests.%s.query", name), Message: err.Error(), Pos: v.Pos()}
	}
	goldenRef, err := blueprint.GoldenRef(goldenName)
	if err != nil {
		return nil, &CompileError{Field: fmt.Sprintf("tests.%s.golden", name), Message: err.Error(), Pos: v.Pos()}
	}

	var opts map[string]any
	timeoutVal := v.LookupPath(cue.ParsePath("timeout"))
	if timeoutVal.Exists() {
		s, err := timeoutVal.String()
		if err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("tests.%s.timeout", name),
				Message: `must be a duration string such as "45s"`,
				Pos:     timeoutVal.Pos(),
			}
		}
		if _, err := time.ParseDuration(s); err != nil {
			return nil, &CompileError{
				Field:   fmt.Sprintf("tests.%s.timeout", name),
				Message: fmt.Sprintf("invalid duration %q", s),
				Pos:     timeoutVal.Pos(),
			}
		}
		opts = map[string]any{blueprint.OptionTimeout: s}
	}

	bp, err := blueprint.New(traceRef, queryRef, goldenRef, opts)
	if err != nil {
		return nil, &CompileError{Field: "tests." + name, Message: err.Error(), Pos: v.Pos()}
	}
	return &entry{name: name, bp: bp, pos: v.Pos()}, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := cueerrors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
