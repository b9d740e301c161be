package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rtzoeller/perfetto/internal/report"
	"github.com/rtzoeller/perfetto/internal/runner"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Module string
	Filter string
}

// ListedCase is one discovered case in list output.
type ListedCase struct {
	Module string `json:"module"`
	Name   string `json:"name"`
	Trace  string `json:"trace"`
	Query  string `json:"query"`
	Golden string `json:"golden"`
}

// ListResult is the full list command payload.
type ListResult struct {
	Cases          []ListedCase           `json:"cases"`
	ModuleFailures []report.ModuleFailure `json:"module_failures,omitempty"`
	Total          int                    `json:"total"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list [modules-dir]",
		Short: "List discovered diff tests",
		Long: `Discover test modules and print every case that a run would execute,
without invoking the engine.

Exit codes:
  0 - Discovery succeeded
  1 - One or more modules failed to load
  2 - Command error (bad config, missing directories, etc.)

Examples:
  tracediff list
  tracediff list ./diff-tests --module "fs"
  tracediff list --filter "test_f2fs_*" --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runList(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "list only modules matching this glob")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "list only test names matching this glob")

	return cmd
}

func runList(opts *ListOptions, modulesDir string, cmd *cobra.Command) error {
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

	reg, moduleFailures, err := discoverRegistry(modulesDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "module discovery failed", err)
	}

	cases := runner.Enumerate(reg, runner.Filter{Module: opts.Module, Name: opts.Filter})

	result := ListResult{
		Cases:          make([]ListedCase, 0, len(cases)),
		ModuleFailures: moduleFailures,
		Total:          len(cases),
	}
	for _, c := range cases {
		result.Cases = append(result.Cases, ListedCase{
			Module: c.Module,
			Name:   c.Name,
			Trace:  c.Blueprint.Trace().Name(),
			Query:  c.Blueprint.Query().Name(),
			Golden: c.Blueprint.Golden().Name(),
		})
	}

	if opts.Format == "json" {
		return outputListJSON(cmd, result)
	}
	return outputListText(cmd, result)
}

func outputListJSON(cmd *cobra.Command, result ListResult) error {
	resp := CLIResponse{Status: "ok", Data: result}
	if len(result.ModuleFailures) > 0 {
		resp.Status = "error"
		resp.Error = &CLIError{
			Code:    "E_MODULE_LOAD",
			Message: fmt.Sprintf("%d module(s) failed to load", len(result.ModuleFailures)),
		}
	}
	if err := writeJSON(cmd, resp); err != nil {
		return err
	}
	if len(result.ModuleFailures) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d module(s) failed to load", len(result.ModuleFailures)))
	}
	return nil
}

func outputListText(cmd *cobra.Command, result ListResult) error {
	w := cmd.OutOrStdout()

	modules := 0
	current := ""
	for _, c := range result.Cases {
		if c.Module != current {
			if current != "" {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "%s\n", c.Module)
			current = c.Module
			modules++
		}
		fmt.Fprintf(w, "  %s (trace=%s query=%s golden=%s)\n", c.Name, c.Trace, c.Query, c.Golden)
	}

	if len(result.Cases) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d case(s) in %d module(s)\n", result.Total, modules)

	if len(result.ModuleFailures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Module load failures:")
		for _, mf := range result.ModuleFailures {
			fmt.Fprintf(w, "  ✗ %s: %s\n", mf.Module, mf.Err)
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d module(s) failed to load", len(result.ModuleFailures)))
	}
	return nil
}
