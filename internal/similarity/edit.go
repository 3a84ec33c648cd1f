// Package similarity holds the string similarity primitives used by the matcher.
// Every function returns a score in [0,1] where 1 means identical.
package similarity

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"github.com/hbollon/go-edlib"
)

// LevenshteinRatio returns 1 - distance/max(len(a), len(b)) on runes.
// Two empty strings are identical (1.0).
func LevenshteinRatio(a, b string) float64 {
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1.0
	}
	if a == b {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(a, b)
	return Clamp(1.0 - float64(distance)/float64(maxLen))
}

// JaroWinkler returns the Jaro-Winkler similarity with the library's standard
// prefix scale. It is not symmetric in general.
func JaroWinkler(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return Clamp(float64(edlib.JaroWinklerSimilarity(a, b)))
}
