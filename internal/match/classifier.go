package match

import (
	"math"

	"github.com/crossref-matcher/internal/similarity"
)

// Recommendation texts attached to results.
const (
	RecommendAutoAccept     = "exact match - accept automatically"
	RecommendHighConfident  = "high similarity - recommended"
	RecommendHighVerify     = "high similarity - verify context"
	RecommendManualReview   = "medium similarity - manual review"
	RecommendLowVerify      = "low similarity - verify carefully"
	RecommendManualMapping  = "no reliable match - manual mapping needed"
	RecommendIDNotFound     = "identifier not found in target - manual mapping needed"
	RecommendIDMissing      = "source has no identifier - manual mapping needed"
	RecommendDescriptionGap = "identifier found but descriptions diverge - review"
)

// highConfidenceCutoff separates "recommended" from "verify" high matches.
const highConfidenceCutoff = 0.8

// Classifier maps overall scores to categories.
type Classifier struct {
	thresholds Thresholds
}

// NewClassifier creates a classifier over validated thresholds.
func NewClassifier(t Thresholds) *Classifier {
	return &Classifier{thresholds: t}
}

// Classify returns the highest category whose lower bound overall reaches.
func (c *Classifier) Classify(overall float64) Category {
	switch {
	case overall >= c.thresholds.Exact:
		return Exact
	case overall >= c.thresholds.High:
		return High
	case overall >= c.thresholds.Medium:
		return Medium
	case overall >= c.thresholds.Low:
		return Low
	}
	return NoMatch
}

// Confidence is mean*(1-stddev) over the five component scores, using the
// population standard deviation. Agreeing algorithms yield higher confidence.
func Confidence(s ScoreSet) float64 {
	comps := s.Components()

	var sum float64
	for _, v := range comps {
		sum += v
	}
	mean := sum / float64(len(comps))

	var sq float64
	for _, v := range comps {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(comps)))

	return similarity.Clamp(mean * (1 - std))
}

// Recommend returns the human guidance for a category and confidence.
func Recommend(cat Category, confidence float64) string {
	switch cat {
	case Exact:
		return RecommendAutoAccept
	case High:
		if confidence >= highConfidenceCutoff {
			return RecommendHighConfident
		}
		return RecommendHighVerify
	case Medium:
		return RecommendManualReview
	case Low:
		return RecommendLowVerify
	}
	return RecommendManualMapping
}
