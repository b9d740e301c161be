package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/rtzoeller/perfetto/internal/report"
)

// Renderer writes the human-readable run report.
type Renderer struct {
	w io.Writer
	// Quiet suppresses per-case pass lines; problems and the summary
	// still print.
	Quiet bool
}

// NewRenderer builds a renderer writing to w.
func NewRenderer(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

// Render prints every case line, details for non-pass outcomes, module
// load failures, and the summary.
func (r *Renderer) Render(rep *report.Report) {
	for _, c := range rep.Cases {
		r.renderCase(c)
	}
	if len(rep.ModuleFailures) > 0 {
		fmt.Fprintln(r.w)
		fmt.Fprintln(r.w, "Module load failures:")
		for _, mf := range rep.ModuleFailures {
			fmt.Fprintf(r.w, "  %s %s: %s\n", color.RedString("✗"), mf.Module, mf.Err)
		}
	}
	r.renderSummary(rep)
}

func (r *Renderer) renderCase(c report.CaseResult) {
	name := c.Key()
	switch c.Outcome {
	case report.OutcomePass:
		if r.Quiet {
			return
		}
		fmt.Fprintf(r.w, "%s %s (%s)\n", color.GreenString("✓"), name, caseDuration(c))
	case report.OutcomeRegenerated:
		fmt.Fprintf(r.w, "%s %s (golden regenerated: %s)\n", color.YellowString("●"), name, c.Detail)
	case report.OutcomeMissingGolden:
		fmt.Fprintf(r.w, "%s %s: %s\n", color.YellowString("?"), name, c.Detail)
	case report.OutcomeError:
		first, rest := splitDetail(c.Detail)
		fmt.Fprintf(r.w, "%s %s: %s\n", color.RedString("✗"), name, first)
		for _, line := range rest {
			fmt.Fprintf(r.w, "    %s\n", line)
		}
	case report.OutcomeFail:
		fmt.Fprintf(r.w, "%s %s\n", color.RedString("✗"), name)
		r.renderDiff(c.Detail)
	}
}

func (r *Renderer) renderDiff(diff string) {
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			fmt.Fprintf(r.w, "  %s\n", color.GreenString("%s", line))
		case strings.HasPrefix(line, "-"):
			fmt.Fprintf(r.w, "  %s\n", color.RedString("%s", line))
		default:
			fmt.Fprintf(r.w, "  %s\n", line)
		}
	}
}

func (r *Renderer) renderSummary(rep *report.Report) {
	s := rep.Summary()

	parts := []string{fmt.Sprintf("%d passed", s.Passed)}
	if s.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", s.Failed))
	}
	if s.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d errored", s.Errors))
	}
	if s.Missing > 0 {
		parts = append(parts, fmt.Sprintf("%d missing golden", s.Missing))
	}
	if s.Regenerated > 0 {
		parts = append(parts, fmt.Sprintf("%d regenerated", s.Regenerated))
	}

	fmt.Fprintln(r.w)
	fmt.Fprintf(r.w, "Summary: %s, %d total in %s\n",
		strings.Join(parts, ", "), s.Total, time.Duration(rep.DurationMS)*time.Millisecond)
	if rep.Incomplete {
		fmt.Fprintln(r.w, color.YellowString("Run incomplete: cancelled before all cases finished."))
	}
	if rep.OK() {
		fmt.Fprintln(r.w, color.GreenString("✓ All cases passed"))
	}
}

func caseDuration(c report.CaseResult) string {
	return (time.Duration(c.DurationMS) * time.Millisecond).String()
}

// splitDetail separates a detail message into its first line and the
// remainder for indented continuation.
func splitDetail(detail string) (string, []string) {
	lines := strings.Split(strings.TrimRight(detail, "\n"), "\n")
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], lines[1:]
}
