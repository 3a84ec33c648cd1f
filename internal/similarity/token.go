package similarity

import (
	"math"
	"strings"
)

// NearOne is the largest value Clamp returns for inputs below 1.
const NearOne = 1 - 1e-9

// Clamp bounds x to [0,1] and rounds to 1e-9 so that results computed through
// different floating point paths compare equal. Only x >= 1 yields 1; values
// that would round up to 1 stay at NearOne.
func Clamp(x float64) float64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	r := math.Round(x*1e9) / 1e9
	if r >= 1 {
		return NearOne
	}
	return r
}

// TokenSet splits normalized text on whitespace into a set.
func TokenSet(s string) map[string]struct{} {
	fields := strings.Fields(s)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Jaccard returns |A∩B| / |A∪B| over the whitespace token sets of a and b.
// Two empty token sets are treated as identical (1.0).
func Jaccard(a, b string) float64 {
	return SetJaccard(TokenSet(a), TokenSet(b))
}

// SetJaccard is Jaccard over prepared sets. Both empty -> 1.0.
func SetJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return Clamp(float64(intersection) / float64(union))
}
