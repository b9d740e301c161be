package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rtzoeller/perfetto/internal/report"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func makeReport(id string, started time.Time) *report.Report {
	r := &report.Report{
		ID:        id,
		StartedAt: started,
		Jobs:      4,
	}
	r.Append(report.CaseResult{Module: "fs", Name: "test_a", Outcome: report.OutcomePass, DurationMS: 10})
	r.Append(report.CaseResult{Module: "fs", Name: "test_b", Outcome: report.OutcomeFail, Detail: "-x\n+y\n", DurationMS: 25})
	r.Finalize(500 * time.Millisecond)
	return r
}

func TestOpenAppliesSchemaIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not fail on the existing schema.
	s, err = Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestRecordAndReadRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, makeReport("run-1", started)))

	runs, err := s.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	r := runs[0]
	assert.Equal(t, "run-1", r.ID)
	assert.True(t, r.StartedAt.Equal(started))
	assert.Equal(t, int64(500), r.DurationMS)
	assert.Equal(t, 4, r.Jobs)
	assert.Equal(t, 2, r.Total)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.False(t, r.Rebase)
	assert.False(t, r.Incomplete)
}

func TestRecentRunsNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, makeReport("run-old", base)))
	require.NoError(t, s.RecordRun(ctx, makeReport("run-new", base.Add(time.Hour))))
	require.NoError(t, s.RecordRun(ctx, makeReport("run-mid", base.Add(30*time.Minute))))

	runs, err := s.RecentRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-mid", runs[1].ID)
}

func TestRecordRunRejectsDuplicateID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	started := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, makeReport("run-1", started)))
	err := s.RecordRun(ctx, makeReport("run-1", started))
	require.Error(t, err)

	// The failed insert must not leave partial case rows behind.
	outcomes, err := s.CaseOutcomes(ctx, "fs", "test_a", 10)
	require.NoError(t, err)
	assert.Len(t, outcomes, 1)
}

func TestCaseOutcomes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.RecordRun(ctx, makeReport("run-1", base)))
	require.NoError(t, s.RecordRun(ctx, makeReport("run-2", base.Add(time.Hour))))

	outcomes, err := s.CaseOutcomes(ctx, "fs", "test_b", 10)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	assert.Equal(t, "run-2", outcomes[0].RunID)
	assert.Equal(t, report.OutcomeFail, outcomes[0].Outcome)
	assert.Equal(t, "-x\n+y\n", outcomes[0].Detail)
	assert.Equal(t, "run-1", outcomes[1].RunID)

	none, err := s.CaseOutcomes(ctx, "fs", "test_unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRecordRunStoresFlags(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	r := &report.Report{
		ID:         "run-flags",
		StartedAt:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Jobs:       1,
		Rebase:     true,
		Incomplete: true,
	}
	r.Append(report.CaseResult{Module: "fs", Name: "test_a", Outcome: report.OutcomeRegenerated})
	require.NoError(t, s.RecordRun(ctx, r))

	runs, err := s.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Rebase)
	assert.True(t, runs[0].Incomplete)
	assert.Equal(t, 1, runs[0].Regenerated)
}
