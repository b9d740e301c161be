package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtzoeller/perfetto/internal/blueprint"
	"github.com/rtzoeller/perfetto/internal/differ"
	"github.com/rtzoeller/perfetto/internal/engine"
	"github.com/rtzoeller/perfetto/internal/registry"
	"github.com/rtzoeller/perfetto/internal/report"
	"github.com/rtzoeller/perfetto/internal/resolver"
)

// stubExecutor fakes the engine: it answers with the content stored
// under the query file's base name.
type stubExecutor struct {
	mu      sync.Mutex
	replies map[string]string // query base name -> stdout
	errs    map[string]error  // query base name -> forced error
	delay   time.Duration
	calls   []string
}

func (s *stubExecutor) Execute(ctx context.Context, tracePath, queryPath string) (engine.Output, error) {
	key := filepath.Base(queryPath)
	s.mu.Lock()
	s.calls = append(s.calls, key)
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return engine.Output{}, &engine.ExecError{Timeout: true}
		}
	}
	if err := s.errs[key]; err != nil {
		return engine.Output{}, err
	}
	return engine.Output{Stdout: s.replies[key]}, nil
}

// blockingExecutor parks every call until the context is cancelled.
type blockingExecutor struct {
	started chan string
}

func (b *blockingExecutor) Execute(ctx context.Context, tracePath, queryPath string) (engine.Output, error) {
	b.started <- filepath.Base(queryPath)
	<-ctx.Done()
	return engine.Output{}, &engine.ExecError{Err: ctx.Err()}
}

type fixture struct {
	reg    *registry.Registry
	res    *resolver.Resolver
	golden string
}

// addCase writes trace and query fixtures for module/name and registers
// the entry. goldenContent may be empty to leave the golden missing.
func (f *fixture) addCase(t *testing.T, module, name, goldenContent string) {
	t.Helper()

	stem := module + "_" + name
	m, ok := f.reg.Lookup(module)
	var sm *registry.StaticModule
	if ok {
		sm = m.(*registry.StaticModule)
	} else {
		sm = registry.NewStaticModule(module, "")
	}

	dir := filepath.Dir(f.golden)
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+".textproto"), []byte("trace"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, stem+"_test.sql"), []byte("select 1"), 0644))
	if goldenContent != "" {
		require.NoError(t, os.WriteFile(filepath.Join(f.golden, stem+".out"), []byte(goldenContent), 0644))
	}

	trace, err := blueprint.TraceRef(stem + ".textproto")
	require.NoError(t, err)
	query, err := blueprint.QueryRef(stem + "_test.sql")
	require.NoError(t, err)
	golden, err := blueprint.GoldenRef(stem + ".out")
	require.NoError(t, err)
	bp, err := blueprint.New(trace, query, golden, nil)
	require.NoError(t, err)
	require.NoError(t, sm.Add(name, func() blueprint.Blueprint { return bp }))

	if !ok {
		require.NoError(t, f.reg.Add(sm))
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fixtures := t.TempDir()
	golden := filepath.Join(fixtures, "golden")
	require.NoError(t, os.MkdirAll(golden, 0755))
	return &fixture{
		reg: registry.New(),
		res: resolver.New(resolver.Roots{
			Trace:  []string{fixtures},
			Query:  []string{fixtures},
			Golden: []string{golden},
		}),
		golden: golden,
	}
}

func (f *fixture) runner(exec Executor, opts Options) *Runner {
	return New(f.reg, f.res, exec, differ.New(differ.Options{}), opts)
}

func TestRunAllPass(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "row a\n")
	f.addCase(t, "fs", "test_b", "row b\n")
	f.addCase(t, "ufs", "test_c", "row c\n")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_a_test.sql":  "row a\n",
		"fs_test_b_test.sql":  "row b\n",
		"ufs_test_c_test.sql": "row c\n",
	}}

	rep := f.runner(exec, Options{Jobs: 2}).Run(context.Background())

	require.Len(t, rep.Cases, 3)
	assert.True(t, rep.OK())
	assert.False(t, rep.Incomplete)
	for _, c := range rep.Cases {
		assert.Equal(t, report.OutcomePass, c.Outcome, c.Key())
	}
	assert.Equal(t, 2, rep.Jobs)
	assert.NotEmpty(t, rep.ID)
}

func TestRunReportOrderIsDiscoveryOrder(t *testing.T) {
	f := newFixture(t)
	// Registered out of order on purpose.
	f.addCase(t, "ufs", "test_z", "z\n")
	f.addCase(t, "fs", "test_b", "b\n")
	f.addCase(t, "fs", "test_a", "a\n")

	exec := &stubExecutor{
		replies: map[string]string{
			"fs_test_a_test.sql":  "a\n",
			"fs_test_b_test.sql":  "b\n",
			"ufs_test_z_test.sql": "z\n",
		},
		delay: 5 * time.Millisecond,
	}

	for _, jobs := range []int{1, 4} {
		rep := f.runner(exec, Options{Jobs: jobs}).Run(context.Background())
		require.Len(t, rep.Cases, 3)
		assert.Equal(t, "fs/test_a", rep.Cases[0].Key())
		assert.Equal(t, "fs/test_b", rep.Cases[1].Key())
		assert.Equal(t, "ufs/test_z", rep.Cases[2].Key())
	}
}

func TestRunFailProducesDiff(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "expected row\n")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_a_test.sql": "actual row\n",
	}}

	rep := f.runner(exec, Options{}).Run(context.Background())

	require.Len(t, rep.Cases, 1)
	c := rep.Cases[0]
	assert.Equal(t, report.OutcomeFail, c.Outcome)
	assert.Contains(t, c.Detail, "-expected row")
	assert.Contains(t, c.Detail, "+actual row")
	assert.Contains(t, c.GoldenPath, "fs_test_a.out")
	assert.Equal(t, "actual row\n", c.Actual)
	assert.Equal(t, "expected row\n", c.Expected)
	assert.False(t, rep.OK())
}

func TestRunFaultIsolation(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "a\n")
	f.addCase(t, "fs", "test_b", "b\n")
	f.addCase(t, "fs", "test_c", "c\n")

	exec := &stubExecutor{
		replies: map[string]string{
			"fs_test_a_test.sql": "a\n",
			"fs_test_c_test.sql": "c\n",
		},
		errs: map[string]error{
			"fs_test_b_test.sql": &engine.ExecError{ExitCode: 139, Stderr: "Segmentation fault"},
		},
	}

	rep := f.runner(exec, Options{Jobs: 3}).Run(context.Background())

	require.Len(t, rep.Cases, 3)
	assert.Equal(t, report.OutcomePass, rep.Cases[0].Outcome)
	assert.Equal(t, report.OutcomeError, rep.Cases[1].Outcome)
	assert.Contains(t, rep.Cases[1].Detail, "139")
	assert.Equal(t, report.OutcomePass, rep.Cases[2].Outcome)
	assert.False(t, rep.OK())
}

func TestRunUnresolvableTraceIsCaseError(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "a\n")
	// Remove the trace fixture after registration.
	require.NoError(t, os.Remove(filepath.Join(filepath.Dir(f.golden), "fs_test_a.textproto")))

	exec := &stubExecutor{replies: map[string]string{"fs_test_a_test.sql": "a\n"}}
	rep := f.runner(exec, Options{}).Run(context.Background())

	require.Len(t, rep.Cases, 1)
	assert.Equal(t, report.OutcomeError, rep.Cases[0].Outcome)
	assert.Contains(t, rep.Cases[0].Detail, "trace:")
	assert.Contains(t, rep.Cases[0].Detail, "not found")
	// The engine must never have been invoked for the broken case.
	assert.Empty(t, exec.calls)
}

func TestRunMissingGolden(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_new", "")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_new_test.sql": "fresh output\n",
	}}

	rep := f.runner(exec, Options{}).Run(context.Background())

	require.Len(t, rep.Cases, 1)
	c := rep.Cases[0]
	assert.Equal(t, report.OutcomeMissingGolden, c.Outcome)
	assert.Contains(t, c.Detail, "no golden file")
	assert.Equal(t, "fresh output\n", c.Actual)
	assert.False(t, rep.OK())

	// Nothing was written outside regeneration mode.
	_, err := os.Stat(filepath.Join(f.golden, "fs_test_new.out"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunRebase(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_changed", "old golden\n")
	f.addCase(t, "fs", "test_new", "")
	f.addCase(t, "fs", "test_same", "same\n")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_changed_test.sql": "new golden\n",
		"fs_test_new_test.sql":     "created\n",
		"fs_test_same_test.sql":    "same\n",
	}}

	rep := f.runner(exec, Options{Rebase: true}).Run(context.Background())

	require.Len(t, rep.Cases, 3)
	assert.Equal(t, report.OutcomeRegenerated, rep.Cases[0].Outcome)
	assert.Equal(t, report.OutcomeRegenerated, rep.Cases[1].Outcome)
	assert.Equal(t, report.OutcomePass, rep.Cases[2].Outcome)
	assert.True(t, rep.OK())
	assert.True(t, rep.Rebase)

	data, err := os.ReadFile(filepath.Join(f.golden, "fs_test_changed.out"))
	require.NoError(t, err)
	assert.Equal(t, "new golden\n", string(data))

	data, err = os.ReadFile(filepath.Join(f.golden, "fs_test_new.out"))
	require.NoError(t, err)
	assert.Equal(t, "created\n", string(data))

	// Regeneration is idempotent: a second rebase run changes nothing
	// and reports all passes.
	rep = f.runner(exec, Options{Rebase: true}).Run(context.Background())
	for _, c := range rep.Cases {
		assert.Equal(t, report.OutcomePass, c.Outcome, c.Key())
	}
}

func TestRunFilter(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_iostat", "a\n")
	f.addCase(t, "fs", "test_gc", "b\n")
	f.addCase(t, "ufs", "test_iostat", "c\n")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_iostat_test.sql":  "a\n",
		"fs_test_gc_test.sql":      "b\n",
		"ufs_test_iostat_test.sql": "c\n",
	}}

	t.Run("by name", func(t *testing.T) {
		rep := f.runner(exec, Options{Filter: Filter{Name: "iostat"}}).Run(context.Background())
		require.Len(t, rep.Cases, 2)
		assert.Equal(t, "fs/test_iostat", rep.Cases[0].Key())
		assert.Equal(t, "ufs/test_iostat", rep.Cases[1].Key())
	})

	t.Run("by module", func(t *testing.T) {
		rep := f.runner(exec, Options{Filter: Filter{Module: "ufs"}}).Run(context.Background())
		require.Len(t, rep.Cases, 1)
		assert.Equal(t, "ufs/test_iostat", rep.Cases[0].Key())
	})

	t.Run("glob", func(t *testing.T) {
		rep := f.runner(exec, Options{Filter: Filter{Name: "test_g*"}}).Run(context.Background())
		require.Len(t, rep.Cases, 1)
		assert.Equal(t, "fs/test_gc", rep.Cases[0].Key())
	})

	t.Run("no matches", func(t *testing.T) {
		rep := f.runner(exec, Options{Filter: Filter{Name: "nope"}}).Run(context.Background())
		assert.Empty(t, rep.Cases)
		assert.True(t, rep.OK())
	})
}

func TestRunPerCaseTimeout(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_slow", "a\n")

	exec := &stubExecutor{
		replies: map[string]string{"fs_test_slow_test.sql": "a\n"},
		delay:   500 * time.Millisecond,
	}

	rep := f.runner(exec, Options{Timeout: 20 * time.Millisecond}).Run(context.Background())

	require.Len(t, rep.Cases, 1)
	assert.Equal(t, report.OutcomeError, rep.Cases[0].Outcome)
	assert.True(t, strings.HasPrefix(rep.Cases[0].Detail, "timeout"), rep.Cases[0].Detail)
	assert.False(t, rep.Incomplete)
}

func TestRunBlueprintTimeoutOverride(t *testing.T) {
	f := newFixture(t)

	fixtures := filepath.Dir(f.golden)
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "slow.textproto"), []byte("t"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(fixtures, "slow_test.sql"), []byte("q"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(f.golden, "slow.out"), []byte("a\n"), 0644))

	trace, err := blueprint.TraceRef("slow.textproto")
	require.NoError(t, err)
	query, err := blueprint.QueryRef("slow_test.sql")
	require.NoError(t, err)
	golden, err := blueprint.GoldenRef("slow.out")
	require.NoError(t, err)
	bp, err := blueprint.New(trace, query, golden, map[string]any{"timeout": "1s"})
	require.NoError(t, err)

	m := registry.NewStaticModule("fs", "")
	require.NoError(t, m.Add("test_slow", func() blueprint.Blueprint { return bp }))
	require.NoError(t, f.reg.Add(m))

	exec := &stubExecutor{
		replies: map[string]string{"slow_test.sql": "a\n"},
		delay:   50 * time.Millisecond,
	}

	// The run-level timeout would kill the case; the blueprint override
	// gives it room.
	rep := f.runner(exec, Options{Timeout: 5 * time.Millisecond}).Run(context.Background())
	require.Len(t, rep.Cases, 1)
	assert.Equal(t, report.OutcomePass, rep.Cases[0].Outcome)
}

func TestRunCancellation(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "a\n")
	f.addCase(t, "fs", "test_b", "b\n")
	f.addCase(t, "fs", "test_c", "c\n")

	exec := &blockingExecutor{started: make(chan string, 3)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-exec.started
		cancel()
	}()

	rep := f.runner(exec, Options{Jobs: 1}).Run(ctx)

	assert.True(t, rep.Incomplete)
	assert.Less(t, len(rep.Cases), 3)
	assert.False(t, rep.OK())
	// Terminated in-flight work is omitted, not reported as an error.
	for _, c := range rep.Cases {
		assert.NotEqual(t, report.OutcomeError, c.Outcome)
	}
}

func TestRunModuleFailuresCarriedIntoReport(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "a\n")

	exec := &stubExecutor{replies: map[string]string{"fs_test_a_test.sql": "a\n"}}
	rep := f.runner(exec, Options{
		ModuleFailures: []report.ModuleFailure{
			{Module: "broken", Path: "broken/tests.cue", Err: "syntax error"},
		},
	}).Run(context.Background())

	require.Len(t, rep.Cases, 1)
	assert.Equal(t, report.OutcomePass, rep.Cases[0].Outcome)
	require.Len(t, rep.ModuleFailures, 1)
	assert.False(t, rep.OK())
}

// countingProgress records update invocations.
type countingProgress struct {
	mu      sync.Mutex
	total   int
	updates int
	last    [3]int
	done    bool
}

func (p *countingProgress) Init(total int) { p.total = total }
func (p *countingProgress) Update(done, passed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	p.last = [3]int{done, passed, failed}
}
func (p *countingProgress) Finish() { p.done = true }

func TestRunProgressUpdates(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "fs", "test_a", "a\n")
	f.addCase(t, "fs", "test_b", "wrong\n")

	exec := &stubExecutor{replies: map[string]string{
		"fs_test_a_test.sql": "a\n",
		"fs_test_b_test.sql": "b\n",
	}}

	progress := &countingProgress{}
	f.runner(exec, Options{Jobs: 2, Progress: progress}).Run(context.Background())

	assert.Equal(t, 2, progress.total)
	assert.Equal(t, 2, progress.updates)
	assert.Equal(t, [3]int{2, 1, 1}, progress.last)
	assert.True(t, progress.done)
}

func TestEnumerate(t *testing.T) {
	f := newFixture(t)
	f.addCase(t, "ufs", "test_b", "b\n")
	f.addCase(t, "fs", "test_a", "a\n")

	cases := Enumerate(f.reg, Filter{})
	require.Len(t, cases, 2)
	assert.Equal(t, "fs/test_a", cases[0].Key())
	assert.Equal(t, "ufs/test_b", cases[1].Key())
	assert.Equal(t, "fs_test_a.textproto", cases[0].Blueprint.Trace().Name())
}

func TestFilterMatch(t *testing.T) {
	tests := []struct {
		filter Filter
		module string
		name   string
		want   bool
	}{
		{Filter{}, "fs", "test_a", true},
		{Filter{Module: "fs"}, "fs", "test_a", true},
		{Filter{Module: "fs"}, "ufs", "test_a", true}, // substring
		{Filter{Module: "fs*"}, "ufs", "test_a", false},
		{Filter{Name: "iostat"}, "fs", "test_f2fs_iostat", true},
		{Filter{Name: "test_[ab]"}, "fs", "test_a", true},
		{Filter{Name: "test_[ab]"}, "fs", "test_c", false},
		{Filter{Module: "fs", Name: "gc"}, "fs", "test_iostat", false},
	}

	for i, tt := range tests {
		got := tt.filter.Match(tt.module, tt.name)
		assert.Equal(t, tt.want, got, fmt.Sprintf("case %d: %+v", i, tt))
	}
}
