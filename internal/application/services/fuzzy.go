package services

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// similarity is the normalized Levenshtein ratio of a and b in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 0
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}
