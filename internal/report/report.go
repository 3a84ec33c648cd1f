// Package report aggregates match results into run-level statistics.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/crossref-matcher/internal/match"
)

// Report summarizes one matching run.
type Report struct {
	Total       int `json:"total"`
	Matched     int `json:"matched"`
	Unmatched   int `json:"unmatched"`
	NeedsReview int `json:"needs_review"`

	ByCategory map[match.Category]int `json:"by_category"`
	ByDataType map[match.DataType]int `json:"by_data_type"`
	ByIDStatus map[match.IDStatus]int `json:"by_id_status,omitempty"`

	// Averages are over matched results only.
	AverageOverall    float64                     `json:"average_overall"`
	AverageConfidence float64                     `json:"average_confidence"`
	AlgorithmAverages map[match.Algorithm]float64 `json:"algorithm_averages"`

	CoercionFailures int `json:"coercion_failures"`

	Comparisons  int64   `json:"comparisons"`
	CacheHits    int64   `json:"cache_hits"`
	CacheHitRate float64 `json:"cache_hit_rate"`

	Elapsed time.Duration `json:"elapsed_ns"`
}

// Summarize aggregates results. An empty input yields a zero report with every
// category present.
func Summarize(results []match.MatchResult, elapsed time.Duration, stats match.Stats) Report {
	r := Report{
		Total:             len(results),
		ByCategory:        make(map[match.Category]int, len(match.Categories)),
		ByDataType:        make(map[match.DataType]int),
		AlgorithmAverages: make(map[match.Algorithm]float64, len(match.Algorithms)),
		Comparisons:       stats.Comparisons,
		CacheHits:         stats.CacheHits,
		CacheHitRate:      stats.CacheHitRate,
		Elapsed:           elapsed,
	}
	for _, c := range match.Categories {
		r.ByCategory[c] = 0
	}
	for _, alg := range match.Algorithms {
		r.AlgorithmAverages[alg] = 0
	}

	var sumOverall, sumConfidence float64
	sums := make(map[match.Algorithm]float64, len(match.Algorithms))

	for _, res := range results {
		r.ByCategory[res.Category]++
		r.ByDataType[res.DataType]++
		if res.IDStatus != match.IDNone {
			if r.ByIDStatus == nil {
				r.ByIDStatus = make(map[match.IDStatus]int)
			}
			r.ByIDStatus[res.IDStatus]++
		}
		if res.NeedsReview {
			r.NeedsReview++
		}
		if res.CoercionFailed {
			r.CoercionFailures++
		}

		if !res.Matched() {
			r.Unmatched++
			continue
		}
		r.Matched++
		sumOverall += res.Scores.Overall
		sumConfidence += res.Confidence
		for _, alg := range match.Algorithms {
			sums[alg] += res.Scores.Get(alg)
		}
	}

	if r.Matched > 0 {
		n := float64(r.Matched)
		r.AverageOverall = sumOverall / n
		r.AverageConfidence = sumConfidence / n
		for _, alg := range match.Algorithms {
			r.AlgorithmAverages[alg] = sums[alg] / n
		}
	}
	return r
}

// ReviewRate is the share of results flagged for review, in [0,1].
func (r Report) ReviewRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.NeedsReview) / float64(r.Total)
}

// WriteText renders the report for terminals.
func (r Report) WriteText(w io.Writer) error {
	var err error
	printf := func(format string, args ...any) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}

	printf("\n=== Matching Summary ===\n")
	printf("Total Results: %d\n", r.Total)
	printf("Matched: %d\n", r.Matched)
	printf("Unmatched: %d\n", r.Unmatched)
	printf("Needs Review: %d (%.2f%%)\n", r.NeedsReview, r.ReviewRate()*100)
	printf("Average Score: %.4f\n", r.AverageOverall)
	printf("Average Confidence: %.4f\n", r.AverageConfidence)

	printf("\nBy category:\n")
	for _, c := range match.Categories {
		printf("  %-9s %d\n", c, r.ByCategory[c])
	}

	printf("\nAlgorithm averages:\n")
	for _, alg := range match.Algorithms {
		printf("  %-13s %.4f\n", alg, r.AlgorithmAverages[alg])
	}

	if len(r.ByIDStatus) > 0 {
		printf("\nIdentifier status:\n")
		for _, s := range []match.IDStatus{match.IDFound, match.IDNotFound, match.IDNotFoundFuzzy, match.IDMissing} {
			if n, ok := r.ByIDStatus[s]; ok {
				printf("  %-16s %d\n", s, n)
			}
		}
	}

	if r.CoercionFailures > 0 {
		printf("\nWarning: %d values could not be read as text\n", r.CoercionFailures)
	}
	printf("\nComparisons: %d (cache hit rate %.2f%%)\n", r.Comparisons, r.CacheHitRate*100)
	printf("Elapsed: %s\n", r.Elapsed.Round(time.Millisecond))
	return err
}
