// Package differ compares captured query output against golden files.
//
// Comparison is exact after a small documented normalization: CRLF and
// bare CR line endings become LF, and trailing newlines collapse to
// exactly one. Unicode NFC normalization is available as an explicit
// option for engines whose output encodes combining characters
// inconsistently. There is no fuzzy matching beyond that; golden-file
// testing depends on byte-deterministic output.
package differ

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pmezard/go-difflib/difflib"
)

// Verdict classifies one comparison.
type Verdict int

const (
	// Equal means the output matches the golden file.
	Equal Verdict = iota
	// Different means the golden file exists and the output deviates.
	Different
	// MissingGolden means no golden file exists yet. Distinct from
	// Different: it signals an unreviewed case, not a regression.
	MissingGolden
)

// String returns the verdict name used in logs.
func (v Verdict) String() string {
	switch v {
	case Equal:
		return "equal"
	case Different:
		return "different"
	case MissingGolden:
		return "missing-golden"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Result is the outcome of one comparison.
type Result struct {
	Verdict    Verdict
	GoldenPath string
	// Actual and Expected hold both sides after normalization. Expected
	// is empty when the golden file is missing.
	Actual   string
	Expected string
	// Diff holds the unified diff when the verdict is Different.
	Diff string
}

// Options configure normalization beyond the line-ending defaults.
type Options struct {
	// NFC applies Unicode NFC normalization to both sides before
	// comparing.
	NFC bool
}

// Differ compares output text against golden files.
type Differ struct {
	opts Options
}

// New builds a differ with the given options.
func New(opts Options) *Differ {
	return &Differ{opts: opts}
}

// Compare diffs actual against the golden file at goldenPath. A missing
// golden file yields MissingGolden. A golden file that exists but cannot
// be read is an error; the caller records it against the case.
func (d *Differ) Compare(actual, goldenPath string) (Result, error) {
	res := Result{GoldenPath: goldenPath, Actual: d.normalize(actual)}

	data, err := os.ReadFile(goldenPath)
	if errors.Is(err, fs.ErrNotExist) {
		res.Verdict = MissingGolden
		return res, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("reading golden file %s: %w", goldenPath, err)
	}

	res.Expected = d.normalize(string(data))
	if res.Actual == res.Expected {
		res.Verdict = Equal
		return res, nil
	}

	res.Verdict = Different
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(res.Expected),
		B:        difflib.SplitLines(res.Actual),
		FromFile: goldenPath,
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		return Result{}, fmt.Errorf("computing diff for %s: %w", goldenPath, err)
	}
	res.Diff = diff
	return res, nil
}

// Rebase writes actual as the new golden file, creating parent
// directories as needed. The raw output is written unmodified, so a
// Compare against the rewritten file is Equal.
func (d *Differ) Rebase(actual, goldenPath string) error {
	if err := os.MkdirAll(filepath.Dir(goldenPath), 0755); err != nil {
		return fmt.Errorf("creating golden directory: %w", err)
	}
	if err := os.WriteFile(goldenPath, []byte(actual), 0644); err != nil {
		return fmt.Errorf("writing golden file: %w", err)
	}
	return nil
}
