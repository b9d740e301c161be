// Package engine invokes the external query engine that loads traces
// and executes queries. The engine binary is a collaborator, not part
// of this framework: each test case gets one process, its stdout is the
// case's output, and its stderr is captured for diagnostics.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Placeholders recognized in the argument template.
const (
	placeholderTrace = "{trace}"
	placeholderQuery = "{query}"
)

// defaultArgs is the conventional shell interface of trace query
// engines: query file via -q, trace as the positional argument.
var defaultArgs = []string{"-q", placeholderQuery, placeholderTrace}

// Config describes how to assemble an engine invocation.
type Config struct {
	// Bin is the engine binary path or name; PATH lookup applies.
	Bin string
	// Args is the argument template. {trace} and {query} expand to the
	// resolved fixture paths. Empty means ["-q", "{query}", "{trace}"].
	Args []string
	// Env appends KEY=VALUE pairs to the inherited environment.
	Env []string
	// WaitDelay bounds how long Wait blocks on the process's pipes
	// after a kill. Defaults to 5s.
	WaitDelay time.Duration
}

// Output holds one invocation's captured channels.
type Output struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Engine launches the configured binary once per test case.
type Engine struct {
	cfg Config
}

// New validates cfg. The template must reference both placeholders so a
// misconfigured invocation cannot silently run against the wrong
// fixture.
func New(cfg Config) (*Engine, error) {
	if cfg.Bin == "" {
		return nil, fmt.Errorf("engine binary not configured")
	}
	if len(cfg.Args) == 0 {
		cfg.Args = append([]string(nil), defaultArgs...)
	}
	var hasTrace, hasQuery bool
	for _, a := range cfg.Args {
		if strings.Contains(a, placeholderTrace) {
			hasTrace = true
		}
		if strings.Contains(a, placeholderQuery) {
			hasQuery = true
		}
	}
	if !hasTrace || !hasQuery {
		return nil, fmt.Errorf("engine args must reference both %s and %s, got %v",
			placeholderTrace, placeholderQuery, cfg.Args)
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	return &Engine{cfg: cfg}, nil
}

// Execute runs one (trace, query) pair. The process lives and dies
// within this call: a ctx deadline or cancellation kills it, and
// WaitDelay guarantees the kill is reaped even if the engine ignores
// its pipes.
func (e *Engine) Execute(ctx context.Context, tracePath, queryPath string) (Output, error) {
	args := make([]string, 0, len(e.cfg.Args))
	for _, a := range e.cfg.Args {
		a = strings.ReplaceAll(a, placeholderTrace, tracePath)
		a = strings.ReplaceAll(a, placeholderQuery, queryPath)
		args = append(args, a)
	}

	cmd := exec.CommandContext(ctx, e.cfg.Bin, args...)
	cmd.Env = append(os.Environ(), e.cfg.Env...)
	cmd.WaitDelay = e.cfg.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return out, nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out, &ExecError{Timeout: true, Stderr: out.Stderr, Err: err}
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, &ExecError{ExitCode: exitErr.ExitCode(), Stderr: out.Stderr, Err: err}
	}
	return out, &ExecError{ExitCode: -1, Stderr: out.Stderr, Err: err}
}
