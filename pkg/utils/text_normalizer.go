package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// NormalizeText case-folds s and collapses every run of whitespace to a single space.
func NormalizeText(s string) string {
	// Casers keep state; one per call keeps this safe for concurrent use.
	folded := cases.Fold().String(s)
	return strings.Join(strings.Fields(folded), " ")
}

// Words splits normalized text into tokens on anything that is not a letter or digit.
func Words(s string) []string {
	return strings.FieldsFunc(NormalizeText(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeAll normalizes each value and drops empty and duplicate results, keeping order.
func NormalizeAll(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := NormalizeText(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
