// Package textx provides small text helpers shared by the prompt builder and
// the interview usecases.
package textx

import (
	"strings"
)

// SanitizeText removes control characters except tab, newline and CR, and
// trims surrounding space.
func SanitizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

// Truncate cuts s to at most n runes, appending "..." when it cut.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// Compact sanitizes every item and drops the empty ones. It never returns nil.
func Compact(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = SanitizeText(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}
