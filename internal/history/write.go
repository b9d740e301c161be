package history

import (
	"context"
	"fmt"
	"time"

	"github.com/rtzoeller/perfetto/internal/report"
)

// RecordRun persists a finalized report. The run row and its case rows
// commit atomically; recording the same run ID twice is an error.
func (s *Store) RecordRun(ctx context.Context, rep *report.Report) error {
	sum := rep.Summary()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, started_at, duration_ms, jobs, rebase, incomplete,
			total, passed, failed, errors, missing, regenerated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rep.ID,
		rep.StartedAt.UTC().Format(time.RFC3339Nano),
		rep.DurationMS,
		rep.Jobs,
		boolInt(rep.Rebase),
		boolInt(rep.Incomplete),
		sum.Total,
		sum.Passed,
		sum.Failed,
		sum.Errors,
		sum.Missing,
		sum.Regenerated,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", rep.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO case_results (run_id, module, name, outcome, detail, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing case insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range rep.Cases {
		_, err := stmt.ExecContext(ctx, rep.ID, c.Module, c.Name, string(c.Outcome), c.Detail, c.DurationMS)
		if err != nil {
			return fmt.Errorf("inserting case %s: %w", c.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", rep.ID, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
