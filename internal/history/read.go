package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rtzoeller/perfetto/internal/report"
)

// RunSummary is one recorded run with its aggregated counts.
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	Jobs        int       `json:"jobs"`
	Rebase      bool      `json:"rebase"`
	Incomplete  bool      `json:"incomplete"`
	Total       int       `json:"total"`
	Passed      int       `json:"passed"`
	Failed      int       `json:"failed"`
	Errors      int       `json:"errors"`
	Missing     int       `json:"missing"`
	Regenerated int       `json:"regenerated"`
}

// RecentRuns returns up to limit runs, newest first. limit values below
// 1 default to 20.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, duration_ms, jobs, rebase, incomplete,
		       total, passed, failed, errors, missing, regenerated
		FROM runs
		ORDER BY started_at DESC, id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		var rebase, incomplete int
		err := rows.Scan(&r.ID, &started, &r.DurationMS, &r.Jobs, &rebase, &incomplete,
			&r.Total, &r.Passed, &r.Failed, &r.Errors, &r.Missing, &r.Regenerated)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		r.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parsing run timestamp %q: %w", started, err)
		}
		r.Rebase = rebase != 0
		r.Incomplete = incomplete != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// CaseOutcome is one case execution drawn from history.
type CaseOutcome struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	Outcome    report.Outcome `json:"outcome"`
	Detail     string         `json:"detail,omitempty"`
	DurationMS int64          `json:"duration_ms"`
}

// CaseOutcomes returns the recorded outcomes for one module/name pair,
// newest first. Useful for spotting flaky cases.
func (s *Store) CaseOutcomes(ctx context.Context, module, name string, limit int) ([]CaseOutcome, error) {
	if limit < 1 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, r.started_at, c.outcome, c.detail, c.duration_ms
		FROM case_results c
		JOIN runs r ON r.id = c.run_id
		WHERE c.module = ? AND c.name = ?
		ORDER BY r.started_at DESC, c.run_id
		LIMIT ?`, module, name, limit)
	if err != nil {
		return nil, fmt.Errorf("querying case history: %w", err)
	}
	defer rows.Close()

	var out []CaseOutcome
	for rows.Next() {
		var c CaseOutcome
		var started, outcome string
		if err := rows.Scan(&c.RunID, &started, &outcome, &c.Detail, &c.DurationMS); err != nil {
			return nil, fmt.Errorf("scanning case row: %w", err)
		}
		c.StartedAt, err = time.Parse(time.RFC3339Nano, started)
		if err != nil {
			return nil, fmt.Errorf("parsing run timestamp %q: %w", started, err)
		}
		c.Outcome = report.Outcome(outcome)
		out = append(out, c)
	}
	return out, rows.Err()
}
