package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtzoeller/perfetto/internal/history"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Limit    int
	Case     string // "module/name" selects one case's history
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs from the history database",
		Long: `Show past runs recorded in the history database, newest first.
With --case the outcome trail of a single case is shown instead,
which is the quickest way to spot a flaky test.

Examples:
  tracediff history
  tracediff history --limit 5
  tracediff history --case "fs/test_f2fs_iostat"
  tracediff history --db ./runs.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "history database path")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows to show")
	cmd.Flags().StringVar(&opts.Case, "case", "", "show one case's history (module/name)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.History
	}
	if dbPath == "" {
		return NewExitError(ExitCommandError, "no history database configured (set history: in config or pass --db)")
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("history database not found: %s", dbPath))
	}

	st, err := history.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Case != "" {
		module, name, ok := strings.Cut(opts.Case, "/")
		if !ok || module == "" || name == "" {
			return NewExitError(ExitCommandError, fmt.Sprintf("invalid case %q: expected module/name", opts.Case))
		}
		outcomes, err := st.CaseOutcomes(ctx, module, name, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read case history", err)
		}
		return outputCaseHistory(cmd, opts, outcomes)
	}

	runs, err := st.RecentRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run history", err)
	}
	return outputRunHistory(cmd, opts, runs)
}

func outputRunHistory(cmd *cobra.Command, opts *HistoryOptions, runs []history.RunSummary) error {
	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: runs})
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	for _, r := range runs {
		status := "ok"
		switch {
		case r.Incomplete:
			status = "incomplete"
		case r.Failed+r.Errors+r.Missing > 0:
			status = "failed"
		}
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.StartedAt.Format(time.RFC3339), status)
		fmt.Fprintf(w, "    %d passed, %d failed, %d errored, %d missing, %d regenerated (%d total) in %s\n",
			r.Passed, r.Failed, r.Errors, r.Missing, r.Regenerated, r.Total,
			time.Duration(r.DurationMS)*time.Millisecond)
	}
	return nil
}

func outputCaseHistory(cmd *cobra.Command, opts *HistoryOptions, outcomes []history.CaseOutcome) error {
	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{Status: "ok", Data: outcomes})
	}

	w := cmd.OutOrStdout()
	if len(outcomes) == 0 {
		fmt.Fprintf(w, "No history for case %s.\n", opts.Case)
		return nil
	}

	for _, o := range outcomes {
		fmt.Fprintf(w, "%s  %s  %s (%s)\n",
			o.StartedAt.Format(time.RFC3339), o.RunID, o.Outcome,
			time.Duration(o.DurationMS)*time.Millisecond)
	}
	return nil
}
