// Package ui renders run output for humans: a live progress bar, the
// final report text, and an interactive failures browser.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// ProgressBar renders live run progress on stderr. It implements the
// runner's Progress interface.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar returns an idle bar; Init arms it for a run.
func NewProgressBar() *ProgressBar {
	return &ProgressBar{}
}

// Init sizes the bar for total cases.
func (p *ProgressBar) Init(total int) {
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(describe(0, 0)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        color.CyanString("█"),
			SaucerHead:    color.CyanString("█"),
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// Update advances the bar and refreshes the pass/fail tally.
func (p *ProgressBar) Update(done, passed, failed int) {
	if p.bar == nil {
		return
	}
	p.bar.Set(done)
	p.bar.Describe(describe(passed, failed))
}

// Finish completes the bar.
func (p *ProgressBar) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}

func describe(passed, failed int) string {
	return color.CyanString("diffing: ") +
		color.GreenString("[passed: %d", passed) +
		" | " +
		color.RedString("failed: %d]", failed)
}
