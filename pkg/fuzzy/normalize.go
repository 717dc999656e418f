// Package fuzzy provides description normalization and sequence similarity
// used to pair line items across differently-sourced documents.
package fuzzy

import "strings"

// Normalize canonicalizes a description into a matching key: lowercase,
// with every character outside [a-z0-9] removed.
func Normalize(text string) string {
	lower := strings.ToLower(text)

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
