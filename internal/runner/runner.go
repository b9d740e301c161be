// Package runner coordinates a diff-test run: it enumerates registered
// test cases, binds their fixture references, replays each trace
// through the external query engine, and diffs the captured output
// against the golden files.
//
// Cases are independent by construction, so the runner executes them on
// a bounded worker pool. A case's failure, whether an unresolvable ref,
// a crashing engine, or a diff, becomes that case's outcome and never
// disturbs its neighbors. Report order equals discovery order (modules
// and entries sorted by name) regardless of how the pool schedules
// work, so two runs over the same tree produce comparable reports.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/rtzoeller/perfetto/internal/blueprint"
	"github.com/rtzoeller/perfetto/internal/differ"
	"github.com/rtzoeller/perfetto/internal/engine"
	"github.com/rtzoeller/perfetto/internal/registry"
	"github.com/rtzoeller/perfetto/internal/report"
	"github.com/rtzoeller/perfetto/internal/resolver"
)

// Executor runs one (trace, query) pair through the external query
// engine. engine.Engine implements it; tests substitute stubs.
type Executor interface {
	Execute(ctx context.Context, tracePath, queryPath string) (engine.Output, error)
}

// Progress receives completion updates while a run executes. Calls are
// serialized by the runner.
type Progress interface {
	Init(total int)
	Update(done, passed, failed int)
	Finish()
}

// Options configure one run.
type Options struct {
	// Jobs bounds worker parallelism. Values below 1 mean 1.
	Jobs int
	// Timeout is the per-case engine budget. Zero disables it; a
	// blueprint's timeout option overrides it per case.
	Timeout time.Duration
	// Rebase rewrites golden files from actual output instead of
	// reporting Fail or MissingGolden.
	Rebase bool
	// Filter selects which cases run.
	Filter Filter
	// ModuleFailures carries discovery failures into the final report.
	ModuleFailures []report.ModuleFailure
	// Logger receives run and per-case logs. nil discards.
	Logger *slog.Logger
	// Progress receives live updates. nil disables progress reporting.
	Progress Progress
}

// Case is one enumerated, runnable test case.
type Case struct {
	Module     string
	Name       string
	Blueprint  blueprint.Blueprint
	FixtureDir string
}

// Key renders the case identity as "module/name".
func (c Case) Key() string { return c.Module + "/" + c.Name }

// Enumerate lists the cases a run with filter would execute, in report
// order.
func Enumerate(reg *registry.Registry, filter Filter) []Case {
	var cases []Case
	for _, m := range reg.Modules() {
		if !filter.MatchModule(m.Name()) {
			continue
		}
		dir := m.FixtureDir()
		for _, e := range m.Entries() {
			if !filter.MatchName(e.Name) {
				continue
			}
			cases = append(cases, Case{
				Module:     m.Name(),
				Name:       e.Name,
				Blueprint:  e.Blueprint(),
				FixtureDir: dir,
			})
		}
	}
	return cases
}

// Runner executes diff-test cases.
type Runner struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	exec     Executor
	differ   *differ.Differ
	opts     Options
	log      *slog.Logger
}

// New assembles a runner. Logger and Progress are the only optional
// collaborators.
func New(reg *registry.Registry, res *resolver.Resolver, exec Executor, d *differ.Differ, opts Options) *Runner {
	if opts.Jobs < 1 {
		opts.Jobs = 1
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{
		registry: reg,
		resolver: res,
		exec:     exec,
		differ:   d,
		opts:     opts,
		log:      log,
	}
}

// Run executes every case matching the filter and returns the finalized
// report. Cancelling ctx stops dispatch, terminates in-flight engine
// processes, and yields a partial report with Incomplete set; cases cut
// off mid-flight are omitted rather than recorded as failures.
func (r *Runner) Run(ctx context.Context) *report.Report {
	cases := Enumerate(r.registry, r.opts.Filter)
	rep := report.New(r.opts.Jobs, r.opts.Rebase)
	rep.ModuleFailures = append(rep.ModuleFailures, r.opts.ModuleFailures...)
	start := time.Now()

	r.log.Info("run starting",
		"cases", len(cases),
		"jobs", r.opts.Jobs,
		"rebase", r.opts.Rebase)
	if r.opts.Progress != nil {
		r.opts.Progress.Init(len(cases))
	}

	type indexed struct {
		idx int
		c   Case
	}
	queue := make(chan indexed)
	// Results are indexed by discovery position so report order never
	// depends on scheduling. Dropped cases leave nil gaps.
	results := make([]*report.CaseResult, len(cases))

	var mu sync.Mutex
	var done, passed, failed int

	var wg sync.WaitGroup
	for i := 0; i < r.opts.Jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range queue {
				res, recorded := r.runCase(ctx, item.c)
				if !recorded {
					continue
				}
				mu.Lock()
				results[item.idx] = &res
				done++
				if res.Outcome == report.OutcomePass || res.Outcome == report.OutcomeRegenerated {
					passed++
				} else {
					failed++
				}
				if r.opts.Progress != nil {
					r.opts.Progress.Update(done, passed, failed)
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for i, c := range cases {
		select {
		case <-ctx.Done():
			break dispatch
		case queue <- indexed{idx: i, c: c}:
		}
	}
	close(queue)
	wg.Wait()
	if r.opts.Progress != nil {
		r.opts.Progress.Finish()
	}

	for _, res := range results {
		if res != nil {
			rep.Append(*res)
		}
	}
	if len(rep.Cases) < len(cases) {
		rep.Incomplete = true
	}
	rep.Finalize(time.Since(start))

	s := rep.Summary()
	r.log.Info("run finished",
		"total", s.Total,
		"passed", s.Passed,
		"failed", s.Failed,
		"errors", s.Errors,
		"missing", s.Missing,
		"regenerated", s.Regenerated,
		"incomplete", rep.Incomplete)
	return rep
}

// runCase executes one case. The second return value is false when the
// run was cancelled before the case finished, in which case the result
// must not be recorded.
func (r *Runner) runCase(ctx context.Context, c Case) (report.CaseResult, bool) {
	if ctx.Err() != nil {
		return report.CaseResult{}, false
	}
	start := time.Now()
	log := r.log.With("module", c.Module, "test", c.Name)

	res := r.resolver.ForModule(c.FixtureDir)

	tracePath, err := res.Resolve(c.Blueprint.Trace())
	if err != nil {
		return r.caseError(c, start, fmt.Errorf("trace: %w", err)), true
	}
	queryPath, err := res.Resolve(c.Blueprint.Query())
	if err != nil {
		return r.caseError(c, start, fmt.Errorf("query: %w", err)), true
	}

	// Golden files may not exist yet; fall back to the write target so
	// comparison can report MissingGolden and regeneration knows where
	// to put the file.
	goldenPath, err := res.Resolve(c.Blueprint.Golden())
	if err != nil {
		var nfErr *resolver.NotFoundError
		if !errors.As(err, &nfErr) {
			return r.caseError(c, start, fmt.Errorf("golden: %w", err)), true
		}
		goldenPath, err = res.Target(c.Blueprint.Golden())
		if err != nil {
			return r.caseError(c, start, fmt.Errorf("golden: %w", err)), true
		}
	}

	timeout := r.opts.Timeout
	if d, ok := c.Blueprint.Timeout(); ok {
		timeout = d
	}
	caseCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		caseCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Debug("executing engine", "trace", tracePath, "query", queryPath)
	out, err := r.exec.Execute(caseCtx, tracePath, queryPath)
	if ctx.Err() != nil {
		// Run-level cancellation: the case was terminated, not failed.
		return report.CaseResult{}, false
	}
	if err != nil {
		log.Debug("engine failed", "error", err)
		return r.caseError(c, start, err), true
	}

	cmp, err := r.differ.Compare(out.Stdout, goldenPath)
	if err != nil {
		return r.caseError(c, start, err), true
	}

	result := report.CaseResult{
		Module:     c.Module,
		Name:       c.Name,
		GoldenPath: goldenPath,
		DurationMS: time.Since(start).Milliseconds(),
	}
	switch {
	case cmp.Verdict == differ.Equal:
		result.Outcome = report.OutcomePass
	case r.opts.Rebase:
		if err := r.differ.Rebase(out.Stdout, goldenPath); err != nil {
			return r.caseError(c, start, err), true
		}
		result.Outcome = report.OutcomeRegenerated
		result.Detail = goldenPath
		log.Info("golden regenerated", "path", goldenPath)
	case cmp.Verdict == differ.Different:
		result.Outcome = report.OutcomeFail
		result.Detail = cmp.Diff
		result.Actual = cmp.Actual
		result.Expected = cmp.Expected
	default:
		result.Outcome = report.OutcomeMissingGolden
		result.Detail = fmt.Sprintf("no golden file at %s", goldenPath)
		result.Actual = cmp.Actual
	}

	log.Debug("case finished", "outcome", result.Outcome, "duration", time.Since(start))
	return result, true
}

func (r *Runner) caseError(c Case, start time.Time, err error) report.CaseResult {
	return report.CaseResult{
		Module:     c.Module,
		Name:       c.Name,
		Outcome:    report.OutcomeError,
		Detail:     err.Error(),
		DurationMS: time.Since(start).Milliseconds(),
	}
}
