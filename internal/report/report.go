// Package report defines the aggregated outcome of one diff-test run.
package report

import (
	"time"

	"github.com/google/uuid"
)

// Outcome classifies a single test case's result.
type Outcome string

const (
	// OutcomePass means the output matched the golden file.
	OutcomePass Outcome = "pass"
	// OutcomeFail means the output deviated from the golden file.
	OutcomeFail Outcome = "fail"
	// OutcomeError means the case produced no comparable output:
	// unresolvable refs, an engine failure, or a timeout.
	OutcomeError Outcome = "error"
	// OutcomeMissingGolden means the case ran but no golden file exists.
	OutcomeMissingGolden Outcome = "missing-golden"
	// OutcomeRegenerated means regeneration mode rewrote the golden file.
	OutcomeRegenerated Outcome = "regenerated"
)

// CaseResult is one test case's outcome within a run.
type CaseResult struct {
	Module  string  `json:"module"`
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	// Detail carries the unified diff for failures, the error message
	// for errors, and the written path for regenerated cases.
	Detail string `json:"detail,omitempty"`
	// Actual and Expected hold the normalized output sides for failing
	// and missing-golden cases.
	Actual     string `json:"actual,omitempty"`
	Expected   string `json:"expected,omitempty"`
	GoldenPath string `json:"golden_path,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Key renders the case identity as "module/name".
func (c CaseResult) Key() string { return c.Module + "/" + c.Name }

// ModuleFailure records a module whose declarations could not be
// loaded. Load failures are per-module; sibling modules still run.
type ModuleFailure struct {
	Module string `json:"module"`
	Path   string `json:"path,omitempty"`
	Err    string `json:"error"`
}

// Summary aggregates outcome counts for one run.
type Summary struct {
	Total       int `json:"total"`
	Passed      int `json:"passed"`
	Failed      int `json:"failed"`
	Errors      int `json:"errors"`
	Missing     int `json:"missing"`
	Regenerated int `json:"regenerated"`
}

// Report is the complete record of one run. The runner appends while
// executing and finalizes it once; it must not change afterwards.
type Report struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Jobs       int       `json:"jobs"`
	Rebase     bool      `json:"rebase"`
	// Incomplete marks a run cancelled before every case finished.
	Incomplete     bool            `json:"incomplete,omitempty"`
	Cases          []CaseResult    `json:"cases"`
	ModuleFailures []ModuleFailure `json:"module_failures,omitempty"`
}

// New creates an empty report stamped with a fresh run ID.
func New(jobs int, rebase bool) *Report {
	return &Report{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Jobs:      jobs,
		Rebase:    rebase,
	}
}

// Append records one completed case.
func (r *Report) Append(c CaseResult) {
	r.Cases = append(r.Cases, c)
}

// AddModuleFailure records a module that failed to load.
func (r *Report) AddModuleFailure(module, path string, err error) {
	r.ModuleFailures = append(r.ModuleFailures, ModuleFailure{
		Module: module,
		Path:   path,
		Err:    err.Error(),
	})
}

// Finalize stamps the total wall-clock duration.
func (r *Report) Finalize(d time.Duration) {
	r.DurationMS = d.Milliseconds()
}

// Summary tallies outcomes. The counts depend only on the set of cases,
// not on completion order.
func (r *Report) Summary() Summary {
	s := Summary{Total: len(r.Cases)}
	for _, c := range r.Cases {
		switch c.Outcome {
		case OutcomePass:
			s.Passed++
		case OutcomeFail:
			s.Failed++
		case OutcomeError:
			s.Errors++
		case OutcomeMissingGolden:
			s.Missing++
		case OutcomeRegenerated:
			s.Regenerated++
		}
	}
	return s
}

// OK reports whether the run gates green: every case passed or was
// regenerated on request, every module loaded, and the run was not cut
// short.
func (r *Report) OK() bool {
	if r.Incomplete || len(r.ModuleFailures) > 0 {
		return false
	}
	for _, c := range r.Cases {
		if c.Outcome != OutcomePass && c.Outcome != OutcomeRegenerated {
			return false
		}
	}
	return true
}

// Failures returns the cases that did not pass, in report order.
func (r *Report) Failures() []CaseResult {
	var out []CaseResult
	for _, c := range r.Cases {
		if c.Outcome == OutcomePass || c.Outcome == OutcomeRegenerated {
			continue
		}
		out = append(out, c)
	}
	return out
}
