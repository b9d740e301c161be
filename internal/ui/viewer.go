package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/rtzoeller/perfetto/internal/report"
)

// Viewer is the interactive failures browser: failing cases on the
// left, the diff or error detail on the right.
type Viewer struct{}

// NewViewer builds a failures browser.
func NewViewer() *Viewer {
	return &Viewer{}
}

// View opens the TUI over the report's non-pass cases. It returns
// immediately when there is nothing to browse.
func (v *Viewer) View(rep *report.Report) error {
	failures := rep.Failures()
	if len(failures) == 0 && len(rep.ModuleFailures) == 0 {
		color.Green("✓ no failures to browse")
		return nil
	}

	app := tview.NewApplication()

	list := tview.NewList().
		ShowSecondaryText(false).
		SetHighlightFullLine(true)
	for i, c := range failures {
		list.AddItem(fmt.Sprintf("[yellow]%d.[white] %s (%s)", i+1, c.Key(), c.Outcome), "", 0, nil)
	}
	for _, mf := range rep.ModuleFailures {
		list.AddItem(fmt.Sprintf("[red]![white] module %s", mf.Module), "", 0, nil)
	}
	list.SetMainTextColor(tview.Styles.PrimaryTextColor).
		SetSelectedTextColor(tcell.ColorWhite).
		SetSelectedBackgroundColor(tcell.ColorDarkCyan)

	detail := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	detail.SetBorder(true)

	updateDetail := func() {
		i := list.GetCurrentItem()
		switch {
		case i >= 0 && i < len(failures):
			detail.SetText(formatCaseDetail(failures[i]))
		case i >= len(failures) && i < len(failures)+len(rep.ModuleFailures):
			detail.SetText(formatModuleFailure(rep.ModuleFailures[i-len(failures)]))
		}
		detail.ScrollToBeginning()
	}
	list.SetChangedFunc(func(int, string, string, rune) {
		updateDetail()
	})
	updateDetail()

	header := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)
	header.SetText(fmt.Sprintf(" %d failing case(s) | ↑↓ navigate, →/Enter focus detail, ←/Esc back, Ctrl+C exit ",
		len(failures)))

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEnter, tcell.KeyRight:
			app.SetFocus(detail)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})
	detail.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyLeft, tcell.KeyEsc:
			app.SetFocus(list)
			return nil
		case tcell.KeyCtrlC:
			app.Stop()
			return nil
		}
		return event
	})

	panes := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(list, 0, 1, true).
		AddItem(detail, 0, 2, false)
	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 1, 0, false).
		AddItem(panes, 0, 1, true)

	if err := app.SetRoot(root, true).SetFocus(list).Run(); err != nil {
		return fmt.Errorf("running failures viewer: %w", err)
	}
	return nil
}

// formatCaseDetail renders one failing case with tview color tags.
func formatCaseDetail(c report.CaseResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[red]✗ %s[white]\n\n", c.Key())
	fmt.Fprintf(&b, "[cyan]outcome:[white] %s\n", c.Outcome)
	if c.GoldenPath != "" {
		fmt.Fprintf(&b, "[cyan]golden:[white]  %s\n", tview.Escape(c.GoldenPath))
	}
	fmt.Fprintf(&b, "[cyan]elapsed:[white] %dms\n\n", c.DurationMS)

	switch c.Outcome {
	case report.OutcomeFail:
		for _, line := range strings.Split(strings.TrimRight(c.Detail, "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fmt.Fprintf(&b, "[green]%s[white]\n", tview.Escape(line))
			case strings.HasPrefix(line, "-"):
				fmt.Fprintf(&b, "[red]%s[white]\n", tview.Escape(line))
			default:
				fmt.Fprintf(&b, "%s\n", tview.Escape(line))
			}
		}
	default:
		fmt.Fprintf(&b, "%s\n", tview.Escape(c.Detail))
	}
	return b.String()
}

func formatModuleFailure(mf report.ModuleFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[red]! module %s failed to load[white]\n\n", mf.Module)
	if mf.Path != "" {
		fmt.Fprintf(&b, "[cyan]manifest:[white] %s\n\n", tview.Escape(mf.Path))
	}
	fmt.Fprintf(&b, "%s\n", tview.Escape(mf.Err))
	return b.String()
}
