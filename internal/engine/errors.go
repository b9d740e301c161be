package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ExecError reports an engine invocation that produced no usable
// output.
type ExecError struct {
	// Timeout marks an invocation killed by the per-case deadline.
	Timeout bool
	// ExitCode is the engine's exit status; -1 when the process could
	// not be started at all.
	ExitCode int
	// Stderr holds the captured diagnostics channel.
	Stderr string
	Err    error
}

func (e *ExecError) Error() string {
	var msg string
	switch {
	case e.Timeout:
		msg = "timeout: engine did not finish within the case budget"
	case e.ExitCode >= 0:
		msg = fmt.Sprintf("engine exited with code %d", e.ExitCode)
	case e.Err != nil:
		msg = fmt.Sprintf("engine failed: %v", e.Err)
	default:
		msg = "engine failed"
	}
	if tail := lastLines(e.Stderr, 5); tail != "" {
		msg += "\n" + tail
	}
	return msg
}

func (e *ExecError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is, or wraps, an engine timeout.
func IsTimeout(err error) bool {
	var execErr *ExecError
	return errors.As(err, &execErr) && execErr.Timeout
}

// lastLines returns up to n of the final lines of s, trimmed.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
