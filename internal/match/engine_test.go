package match

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return e
}

func values(ss ...string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func TestFindBestMatchesScenario(t *testing.T) {
	e := newTestEngine(t, nil)

	sources := values("Produto A", "Cliente B", "Valor Total", "Data Vencimento")
	targets := values("Produto Alpha", "Cliente Beta", "Total Valor", "Vencimento Data")

	results, err := e.FindBestMatches(context.Background(), sources, targets, 0.3)
	require.NoError(t, err)
	require.Len(t, results, 4)

	bySource := make(map[int]MatchResult)
	for _, r := range results {
		assert.Greater(t, r.Scores.Overall, 0.3)
		bySource[r.SourceIndex] = r
	}
	for i := range sources {
		assert.Equal(t, i, bySource[i].TargetIndex, "source %d", i)
		assert.False(t, bySource[i].NeedsReview, "source %d", i)
	}

	valor := bySource[2]
	assert.Equal(t, "Total Valor", valor.TargetValue)
	assert.Equal(t, 1.0, valor.Scores.Jaccard)
	assert.GreaterOrEqual(t, valor.Category, Medium)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Scores.Overall, results[i].Scores.Overall)
	}
}

func TestFindBestMatchesEmpty(t *testing.T) {
	e := newTestEngine(t, nil)

	got, err := e.FindBestMatches(context.Background(), nil, values("a"), 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = e.FindBestMatches(context.Background(), values("a"), []any{}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindBestMatchesInvalidThreshold(t *testing.T) {
	e := newTestEngine(t, nil)
	_, err := e.FindBestMatches(context.Background(), values("a"), values("a"), 1.5)
	assert.ErrorIs(t, err, ErrInvalidThreshold)
}

func TestFindBestMatchesTieNeedsReview(t *testing.T) {
	e := newTestEngine(t, nil)

	// Distinct wordings such as "Total Value" vs "Valor Total" score too far
	// apart to tie, so the targets here normalize to the same text.

	results, err := e.FindBestMatches(context.Background(),
		values("Valor Total"),
		values("Valor Total", "VALOR-TOTAL", "Cliente"),
		0.3)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, r.NeedsReview)
	assert.Equal(t, 0, r.TargetIndex, "earliest target wins a dead heat")
	assert.Equal(t, Exact, r.Category)
	require.NotEmpty(t, r.Alternatives)
	assert.Equal(t, 1, r.Alternatives[0].TargetIndex)
}

func TestFindBestMatchesTopOneStillFlagsTies(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.TopK = 1 })

	results, err := e.FindBestMatches(context.Background(),
		values("parafuso m4"), values("Parafuso M4", "parafuso-m4"), 0.3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].NeedsReview)
	assert.Equal(t, 0, results[0].TargetIndex)
	assert.Empty(t, results[0].Alternatives, "top_k=1 reports no alternatives")
}

func TestFindBestMatchesTopTwoReportsOneAlternative(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.TopK = 2 })

	results, err := e.FindBestMatches(context.Background(),
		values("parafuso m4"), values("Parafuso M4", "parafuso-m4", "PARAFUSO M4"), 0.3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].NeedsReview)
	require.Len(t, results[0].Alternatives, 1)
	assert.Equal(t, 1, results[0].Alternatives[0].TargetIndex)
}

func TestFindBestMatchesUnmatched(t *testing.T) {
	sources := values("Produto A", "zzzz", "")
	targets := values("Produto Alpha")

	e := newTestEngine(t, nil)
	results, err := e.FindBestMatches(context.Background(), sources, targets, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].SourceIndex)

	e = newTestEngine(t, func(c *Config) { c.IncludeUnmatched = true })
	results, err = e.FindBestMatches(context.Background(), sources, targets, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results[1:] {
		assert.False(t, r.Matched())
		assert.Equal(t, NoMatch, r.Category)
		assert.True(t, r.NeedsReview)
		assert.Equal(t, RecommendManualMapping, r.Recommendation)
	}
	assert.Equal(t, []int{1, 2}, []int{results[1].SourceIndex, results[2].SourceIndex})
}

func TestFindBestMatchesZeroThresholdNeedsPositiveScore(t *testing.T) {
	e := newTestEngine(t, nil)
	results, err := e.FindBestMatches(context.Background(), []any{"", nil}, values("Produto"), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindBestMatchesCoercion(t *testing.T) {
	e := newTestEngine(t, nil)
	results, err := e.FindBestMatches(context.Background(), []any{1001, 12.5}, []any{"1001", "12.5"}, 0.9)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, Exact, r.Category)
		assert.False(t, r.CoercionFailed)
	}
}

func syntheticValues() (sources, targets []any) {
	words := []string{"Produto", "Cliente", "Valor", "Data", "Codigo", "Parafuso", "Material", "Estoque"}
	for i := 0; i < 250; i++ {
		sources = append(sources, fmt.Sprintf("%s %s %d", words[i%len(words)], words[(i/3)%len(words)], i%17))
	}
	for i := 0; i < 60; i++ {
		targets = append(targets, fmt.Sprintf("%s-%s %d", words[(i*5)%len(words)], words[i%len(words)], i%13))
	}
	return sources, targets
}

func TestFindBestMatchesParallelMatchesSequential(t *testing.T) {
	sources, targets := syntheticValues()
	ctx := context.Background()

	seq := newTestEngine(t, func(c *Config) {
		c.EnableParallel = false
		c.EnableCache = false
		c.IncludeUnmatched = true
	})
	par := newTestEngine(t, func(c *Config) {
		c.EnableParallel = true
		c.MaxWorkers = 4
		c.ChunkSize = 7
		c.ParallelThreshold = 10
		c.IncludeUnmatched = true
	})

	want, err := seq.FindBestMatches(ctx, sources, targets, 0.45)
	require.NoError(t, err)
	got, err := par.FindBestMatches(ctx, sources, targets, 0.45)
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Len(t, got, len(sources))

	// A second run is answered from the cache and must not change anything.
	again, err := par.FindBestMatches(ctx, sources, targets, 0.45)
	require.NoError(t, err)
	assert.Equal(t, want, again)
	assert.Greater(t, par.Stats().CacheHits, int64(0))
}

func TestFindBestMatchesCancelled(t *testing.T) {
	sources, targets := syntheticValues()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, parallel := range []bool{false, true} {
		e := newTestEngine(t, func(c *Config) {
			c.EnableParallel = parallel
			c.MaxWorkers = 2
			c.ParallelThreshold = 1
			c.ChunkSize = 10
		})
		_, err := e.FindBestMatches(ctx, sources, targets, 0.3)
		assert.ErrorIs(t, err, context.Canceled, "parallel=%t", parallel)
	}
}

func TestCompareValues(t *testing.T) {
	e := newTestEngine(t, nil)

	r := e.CompareValues("Valor Total", "valor total")
	assert.Equal(t, Exact, r.Category)
	assert.Equal(t, RecommendAutoAccept, r.Recommendation)
	assert.Equal(t, TypeText, r.DataType)

	r = e.CompareValues(nil, "Produto")
	assert.Equal(t, NoMatch, r.Category)
	assert.Equal(t, 0.0, r.Scores.Overall)
}

func TestMatchIdentifiersFound(t *testing.T) {
	e := newTestEngine(t, nil)

	results, err := e.MatchIdentifiers(context.Background(),
		[]Record{{ID: "1001", Description: "Parafuso M4"}},
		[]Record{{ID: "1001", Description: "Screw M4"}},
		0.8)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, IDFound, r.IDStatus)
	assert.Equal(t, 0, r.TargetIndex)
	assert.Equal(t, "1001", r.TargetID)
	assert.Equal(t, "Screw M4", r.TargetValue)
	assert.Less(t, r.Scores.Overall, 0.8)
	assert.True(t, r.NeedsReview, "description similarity below threshold")
	assert.Equal(t, RecommendDescriptionGap, r.Recommendation)
}

func TestMatchIdentifiersStatuses(t *testing.T) {
	sources := []Record{
		{ID: 1001.0, Description: "Parafuso M4"},
		{ID: "2002", Description: "Produto A"},
		{ID: nil, Description: "Cliente B"},
		{ID: "3003", Description: "Valor Total"},
	}
	targets := []Record{
		{ID: "1001", Description: "Old description"},
		{ID: "1001", Description: "Parafuso M4"},
		{ID: "9999", Description: "Produto Alpha"},
		{ID: "3003", Description: "Valor Total"},
	}

	e := newTestEngine(t, nil)
	results, err := e.MatchIdentifiers(context.Background(), sources, targets, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, IDFound, results[0].IDStatus)
	assert.Equal(t, 1, results[0].TargetIndex, "later target rows override earlier ones")
	assert.False(t, results[0].NeedsReview)

	assert.Equal(t, IDNotFound, results[1].IDStatus)
	assert.True(t, results[1].NeedsReview)
	assert.False(t, results[1].Matched())
	assert.Equal(t, RecommendIDNotFound, results[1].Recommendation)

	assert.Equal(t, IDMissing, results[2].IDStatus)
	assert.True(t, results[2].NeedsReview)

	assert.Equal(t, IDFound, results[3].IDStatus)
	assert.Equal(t, Exact, results[3].Category)

	for i, r := range results {
		assert.Equal(t, i, r.SourceIndex)
	}
}

func TestMatchIdentifiersFallback(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.FallbackToText = true })

	results, err := e.MatchIdentifiers(context.Background(),
		[]Record{{ID: "2002", Description: "Produto A"}, {ID: "", Description: "zzzz"}},
		[]Record{{ID: "9999", Description: "Produto Alpha"}},
		0.5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, IDNotFoundFuzzy, results[0].IDStatus)
	assert.Equal(t, "9999", results[0].TargetID)
	assert.True(t, results[0].NeedsReview)

	assert.Equal(t, IDMissing, results[1].IDStatus)
	assert.False(t, results[1].Matched())
}

func TestMatchIdentifiersEmpty(t *testing.T) {
	e := newTestEngine(t, nil)
	results, err := e.MatchIdentifiers(context.Background(), nil, []Record{{ID: "1"}}, 0.5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStatsAndClearCache(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := e.FindBestMatches(ctx, values("Produto A", "Produto A"), values("Produto Alpha"), 0.3)
	require.NoError(t, err)

	s := e.Stats()
	assert.Equal(t, int64(2), s.Comparisons)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.CacheMisses)
	assert.InDelta(t, 0.5, s.CacheHitRate, 1e-9)
	assert.Equal(t, 1, s.CachedPairs)
	assert.Greater(t, s.NormalizedEntries, 0)

	e.ClearCache()
	s = e.Stats()
	assert.Equal(t, 0, s.CachedPairs)
	assert.Equal(t, int64(0), s.CacheHits)
	assert.Equal(t, 0, s.NormalizedEntries)
	assert.Equal(t, 0, s.FeatureEntries)
}

func TestStatsWithoutCache(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.EnableCache = false })
	_, err := e.FindBestMatches(context.Background(), values("a b"), values("a b"), 0.3)
	require.NoError(t, err)

	s := e.Stats()
	assert.Equal(t, int64(1), s.Comparisons)
	assert.Zero(t, s.CacheHits)
	assert.Zero(t, s.NormalizedEntries)
}
