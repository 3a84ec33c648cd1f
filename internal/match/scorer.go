package match

import (
	"sync/atomic"

	"github.com/crossref-matcher/internal/normalize"
	"github.com/crossref-matcher/internal/similarity"
)

// Semantic sub-weights: data type, flags, length, keywords.
const (
	semTypeWeight     = 0.3
	semFlagsWeight    = 0.3
	semLengthWeight   = 0.2
	semKeywordsWeight = 0.2
)

// Scorer computes the five similarity components for a pair of raw values and
// blends them into the overall score.
type Scorer struct {
	weights    Weights
	normalizer *normalize.Normalizer
	features   *FeatureExtractor
	cache      *SimilarityCache

	comparisons atomic.Int64
}

// NewScorer wires a scorer. cache may be nil to disable pair caching.
func NewScorer(weights Weights, normalizer *normalize.Normalizer, features *FeatureExtractor, cache *SimilarityCache) *Scorer {
	return &Scorer{
		weights:    weights,
		normalizer: normalizer,
		features:   features,
		cache:      cache,
	}
}

// Score compares two raw texts. If either side normalizes to empty every score is
// 0.
func (s *Scorer) Score(a, b string) ScoreSet {
	s.comparisons.Add(1)

	na := s.normalizer.Normalize(a)
	nb := s.normalizer.Normalize(b)
	if na == "" || nb == "" {
		return ScoreSet{}
	}

	fa := s.features.Extract(a)
	fb := s.features.Extract(b)

	// The semantic component reads raw punctuation, so the key carries each
	// side's raw feature signature along with the normalized pair.
	key := pairKey{source: na, target: nb, sourceSig: fa.signature(), targetSig: fb.signature()}
	if s.cache != nil {
		if cached, ok := s.cache.get(key); ok {
			return cached
		}
	}

	var set ScoreSet
	if na == nb {
		set.Levenshtein, set.JaroWinkler, set.Jaccard, set.Cosine = 1, 1, 1, 1
	} else {
		set.Levenshtein = similarity.LevenshteinRatio(na, nb)
		set.JaroWinkler = similarity.JaroWinkler(na, nb)
		set.Jaccard = similarity.Jaccard(na, nb)
		set.Cosine = similarity.Cosine(na, nb)
	}
	set.Semantic = SemanticSimilarity(fa, fb)
	set.Overall = overall(s.weights, set)

	if s.cache != nil {
		s.cache.put(key, set)
	}
	return set
}

// overall is the weighted sum. It is exactly 1 only when every component is,
// since float summation of the weights may land just below 1.
func overall(w Weights, set ScoreSet) float64 {
	if set.Levenshtein == 1 && set.JaroWinkler == 1 && set.Jaccard == 1 && set.Cosine == 1 && set.Semantic == 1 {
		return 1
	}
	return similarity.Clamp(w.Apply(set))
}

// Comparisons returns how many pairs were scored, cached or not.
func (s *Scorer) Comparisons() int64 {
	return s.comparisons.Load()
}

// SemanticSimilarity blends data type agreement, flag agreement, length
// similarity and keyword overlap.
func SemanticSimilarity(a, b SemanticFeatures) float64 {
	typeScore := 0.0
	if a.DataType == b.DataType {
		typeScore = 1.0
	}

	fa, fb := a.flags(), b.flags()
	agree := 0
	for i := range fa {
		if fa[i] == fb[i] {
			agree++
		}
	}
	flagScore := float64(agree) / float64(len(fa))

	lengthScore := 1.0
	if maxLen := max(a.Length, b.Length); maxLen > 0 {
		diff := a.Length - b.Length
		if diff < 0 {
			diff = -diff
		}
		lengthScore = 1.0 - float64(diff)/float64(maxLen)
	}

	keywordScore := similarity.SetJaccard(tagSet(a.Keywords), tagSet(b.Keywords))

	return similarity.Clamp(semTypeWeight*typeScore +
		semFlagsWeight*flagScore +
		semLengthWeight*lengthScore +
		semKeywordsWeight*keywordScore)
}

func tagSet(tags []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return set
}
