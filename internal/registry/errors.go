package registry

import (
	"errors"
	"fmt"
	"strings"
)

// DuplicateError reports two test entries declared under the same name
// within one module.
type DuplicateError struct {
	Module string
	Name   string
	// Positions holds the declaration sites when known, for example
	// "fs/tests.cue:12".
	Positions []string
}

func (e *DuplicateError) Error() string {
	if len(e.Positions) > 0 {
		return fmt.Sprintf("duplicate test name %q in module %q (declared at %s)",
			e.Name, e.Module, strings.Join(e.Positions, " and "))
	}
	return fmt.Sprintf("duplicate test name %q in module %q", e.Name, e.Module)
}

// IsDuplicate reports whether err is, or wraps, a DuplicateError.
func IsDuplicate(err error) bool {
	var dupErr *DuplicateError
	return errors.As(err, &dupErr)
}
