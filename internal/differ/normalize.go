package differ

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalize applies the documented comparison normalization. It is
// idempotent, and empty input stays empty.
func (d *Differ) normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.TrimRight(s, "\n") + "\n"
	if d.opts.NFC {
		s = norm.NFC.String(s)
	}
	return s
}
