package cli

import (
	"github.com/spf13/cobra"

	"github.com/rtzoeller/perfetto/internal/report"
	"github.com/rtzoeller/perfetto/internal/ui"
)

// FailuresOptions holds flags for the failures command.
type FailuresOptions struct {
	*RootOptions
}

// FailuresResult is the failures command JSON payload.
type FailuresResult struct {
	RunID          string                 `json:"run_id"`
	Failures       []report.CaseResult    `json:"failures"`
	ModuleFailures []report.ModuleFailure `json:"module_failures,omitempty"`
}

// NewFailuresCommand creates the failures command.
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FailuresOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "failures [report-file]",
		Short: "Browse failures from a saved run report",
		Long: `Open an interactive browser over the failing cases of a saved run
report: the case list on the left, the diff or error detail on the
right.

The report file defaults to the configured report path. With
--format json the failures are printed instead of browsed.

Examples:
  tracediff failures
  tracediff failures out/report.json
  tracediff failures --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runFailures(opts, path, cmd)
		},
	}

	return cmd
}

func runFailures(opts *FailuresOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	if path == "" {
		path = cfg.Report
	}
	if path == "" {
		return NewExitError(ExitCommandError, "no report path given and none configured")
	}

	rep, err := report.Load(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run report", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd, CLIResponse{
			Status: "ok",
			Data: FailuresResult{
				RunID:          rep.ID,
				Failures:       rep.Failures(),
				ModuleFailures: rep.ModuleFailures,
			},
		})
	}

	if err := ui.NewViewer().View(rep); err != nil {
		return WrapExitError(ExitCommandError, "failures viewer", err)
	}
	return nil
}
