// Package security provides filename sanitization for embedding external
// identifiers (sensor IDs, capture names) into filesystem paths.
package security

import "strings"

// SanitizeFilename makes a safe filename component from an arbitrary string.
// Characters other than ASCII letters, digits, dot, underscore and dash are
// replaced with a single underscore, runs of replacements are collapsed, and
// the result is trimmed to a reasonable length. Empty or fully-stripped
// inputs come back as "unknown".
func SanitizeFilename(s string) string {
	if s == "" {
		return "unknown"
	}
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			lastUnderscore = false
		case r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
