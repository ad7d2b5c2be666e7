package openai

import (
	"strings"
	"unicode"
)

// sanitizeText makes text safe to send to a provider.
// Invalid UTF-8 is dropped, as are control characters other than newlines and tabs.
func sanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
	// Trim leading and trailing whitespace
	return strings.TrimSpace(s)
}
