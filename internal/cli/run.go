package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rtzoeller/perfetto/internal/differ"
	"github.com/rtzoeller/perfetto/internal/engine"
	"github.com/rtzoeller/perfetto/internal/history"
	"github.com/rtzoeller/perfetto/internal/report"
	"github.com/rtzoeller/perfetto/internal/resolver"
	"github.com/rtzoeller/perfetto/internal/runner"
	"github.com/rtzoeller/perfetto/internal/ui"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Module     string
	Filter     string
	Jobs       int
	Timeout    time.Duration
	Rebase     bool
	Out        string
	Database   string
	NoProgress bool
	Quiet      bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [modules-dir]",
		Short: "Execute diff tests against the query engine",
		Long: `Execute every discovered diff test: replay each trace through the
configured query engine and compare the captured output against the
approved golden file.

The modules directory defaults to the configured one. Flags override
their config file counterparts.

Exit codes:
  0 - All cases passed
  1 - One or more cases failed, errored, or lack a golden file
  2 - Command error (bad config, missing directories, etc.)

Examples:
  tracediff run
  tracediff run ./diff-tests --jobs 8
  tracediff run --module "fs" --filter "test_f2fs_*"
  tracediff run --rebase --filter "test_new_*"
  tracediff run --format json --out out/report.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runDiffTests(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "run only modules matching this glob")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "run only test names matching this glob")
	cmd.Flags().IntVarP(&opts.Jobs, "jobs", "j", 0, "parallel engine invocations")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per-case engine budget (0 disables)")
	cmd.Flags().BoolVar(&opts.Rebase, "rebase", false, "regenerate golden files from actual output")
	cmd.Flags().StringVar(&opts.Out, "out", "", "write the JSON run report to this path")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this history database")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "disable the progress bar")
	cmd.Flags().BoolVar(&opts.Quiet, "quiet", false, "only print failures and the summary")

	return cmd
}

func runDiffTests(opts *RunOptions, modulesDir string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}

	if modulesDir == "" {
		modulesDir = cfg.ModulesDir
	}
	if _, err := os.Stat(modulesDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("modules directory not found: %s", modulesDir))
	}

	logger.Debug("discovering test modules", "dir", modulesDir)
	reg, moduleFailures, err := discoverRegistry(modulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "module discovery failed", err)
	}
	logger.Debug("modules discovered", "modules", reg.Len(), "broken", len(moduleFailures))

	eng, err := engine.New(engine.Config{
		Bin:  cfg.Engine.Bin,
		Args: cfg.Engine.Args,
		Env:  cfg.Engine.Env,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid engine configuration", err)
	}

	res := resolver.New(resolver.Roots{
		Trace:  cfg.Roots.Trace,
		Query:  cfg.Roots.Query,
		Golden: cfg.Roots.Golden,
	})
	d := differ.New(differ.Options{NFC: cfg.Normalize.Unicode})

	jobs := cfg.Jobs
	if cmd.Flags().Changed("jobs") {
		jobs = opts.Jobs
	}
	timeout := cfg.Timeout.Std()
	if cmd.Flags().Changed("timeout") {
		timeout = opts.Timeout
	}

	ropts := runner.Options{
		Jobs:           jobs,
		Timeout:        timeout,
		Rebase:         opts.Rebase,
		Filter:         runner.Filter{Module: opts.Module, Name: opts.Filter},
		ModuleFailures: moduleFailures,
		Logger:         logger,
	}
	if !opts.NoProgress && opts.Format != "json" {
		ropts.Progress = ui.NewProgressBar()
	}

	r := runner.New(reg, res, eng, d, ropts)

	// Ctrl-C cancels the run; cases already finished still get reported.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, cancelling run", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	rep := r.Run(ctx)

	outPath := cfg.Report
	if cmd.Flags().Changed("out") {
		outPath = opts.Out
	}
	if outPath != "" {
		if err := rep.Save(outPath); err != nil {
			logger.Error("failed to write run report", "path", outPath, "error", err)
		} else {
			logger.Debug("run report written", "path", outPath)
		}
	}

	dbPath := cfg.History
	if cmd.Flags().Changed("db") {
		dbPath = opts.Database
	}
	if dbPath != "" {
		// Record with a fresh context so a cancelled run still lands in
		// history.
		if err := recordHistory(dbPath, rep); err != nil {
			logger.Error("failed to record run history", "db", dbPath, "error", err)
		}
	}

	if opts.Format == "json" {
		if err := outputRunJSON(cmd, rep); err != nil {
			return err
		}
	} else {
		renderer := ui.NewRenderer(cmd.OutOrStdout())
		renderer.Quiet = opts.Quiet
		renderer.Render(rep)
	}

	if !rep.OK() {
		return NewExitError(ExitFailure, failSummary(rep))
	}
	return nil
}

func recordHistory(path string, rep *report.Report) error {
	st, err := history.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return st.RecordRun(ctx, rep)
}

// outputRunJSON emits the report in the CLIResponse envelope.
func outputRunJSON(cmd *cobra.Command, rep *report.Report) error {
	resp := CLIResponse{Status: "ok", Data: rep}
	if !rep.OK() {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_RUN_FAILED",
			Message: failSummary(rep),
		}
	}
	return writeJSON(cmd, resp)
}

// failSummary names the reason a run is not green.
func failSummary(rep *report.Report) string {
	s := rep.Summary()
	bad := s.Failed + s.Errors + s.Missing
	switch {
	case rep.Incomplete:
		return "run cancelled before all cases finished"
	case bad == 0 && len(rep.ModuleFailures) > 0:
		return fmt.Sprintf("%d module(s) failed to load", len(rep.ModuleFailures))
	default:
		return fmt.Sprintf("%d of %d case(s) did not pass", bad, s.Total)
	}
}
