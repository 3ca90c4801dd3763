package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input and caps it at maxLen runes. Names arrive from
// checkout forms in any script, so the cut never splits a character.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= maxLen {
		return trimmed
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}

// SanitizePhone keeps digits and a leading plus, dropping spaces, dashes and
// brackets so carrier lookups compare like with like.
func SanitizePhone(input string, maxLen int) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return SanitizeString(b.String(), maxLen)
}
