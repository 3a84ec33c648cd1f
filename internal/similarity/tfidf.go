package similarity

import (
	"math"
	"sort"
	"strings"
)

// NGramRange bounds the character n-gram sizes used by Cosine.
type NGramRange struct {
	Min int
	Max int
}

// DefaultNGramRange matches the word-bounded 2..4 character analyzer.
var DefaultNGramRange = NGramRange{Min: 2, Max: 4}

// CharWBNGrams returns word-bounded character n-grams: each word is padded with one
// space on both sides and n-grams never cross word boundaries. A word shorter than n
// contributes itself once.
func CharWBNGrams(s string, r NGramRange) []string {
	var grams []string
	for _, word := range strings.Fields(s) {
		padded := []rune(" " + word + " ")
		for n := r.Min; n <= r.Max; n++ {
			offset := 0
			grams = append(grams, string(padded[offset:minInt(offset+n, len(padded))]))
			for offset+n < len(padded) {
				offset++
				grams = append(grams, string(padded[offset:minInt(offset+n, len(padded))]))
			}
			if offset == 0 {
				break
			}
		}
	}
	return grams
}

// Cosine builds a TF-IDF vector space over just the two inputs (smooth idf,
// l2-normalized rows) and returns the cosine of their vectors. Degenerate inputs
// yield 0.
func Cosine(a, b string) float64 {
	return CosineWithRange(a, b, DefaultNGramRange)
}

// CosineWithRange is Cosine with an explicit n-gram range.
func CosineWithRange(a, b string, r NGramRange) float64 {
	if a == "" || b == "" || r.Min <= 0 || r.Max < r.Min {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	tfA := termFrequencies(CharWBNGrams(a, r))
	tfB := termFrequencies(CharWBNGrams(b, r))
	if len(tfA) == 0 || len(tfB) == 0 {
		return 0.0
	}

	// Sorted vocabulary keeps the floating point summation order fixed.
	vocab := make([]string, 0, len(tfA)+len(tfB))
	for term := range tfA {
		vocab = append(vocab, term)
	}
	for term := range tfB {
		if _, ok := tfA[term]; !ok {
			vocab = append(vocab, term)
		}
	}
	sort.Strings(vocab)

	const docs = 2.0
	vecA := make([]float64, len(vocab))
	vecB := make([]float64, len(vocab))
	for i, term := range vocab {
		df := 0.0
		if tfA[term] > 0 {
			df++
		}
		if tfB[term] > 0 {
			df++
		}
		idf := math.Log((1+docs)/(1+df)) + 1
		vecA[i] = float64(tfA[term]) * idf
		vecB[i] = float64(tfB[term]) * idf
	}

	var dot, normA, normB float64
	for i := range vocab {
		dot += vecA[i] * vecB[i]
		normA += vecA[i] * vecA[i]
		normB += vecB[i] * vecB[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}

	return Clamp(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

func termFrequencies(grams []string) map[string]int {
	tf := make(map[string]int, len(grams))
	for _, g := range grams {
		tf[g]++
	}
	return tf
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
