// Package textutil provides the string normalization shared by name matching
// and class-label matching.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases s and strips diacritical marks so that comparisons
// are case- and accent-insensitive. Empty input yields an empty string.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)

	var buf []rune
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) { // mark nonspacing
			continue
		}
		buf = append(buf, r)
	}
	return string(buf)
}
