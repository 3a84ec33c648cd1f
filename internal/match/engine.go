package match

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crossref-matcher/internal/debug"
	"github.com/crossref-matcher/internal/normalize"
)

// Engine selects the best target for each source value.
type Engine struct {
	cfg        Config
	logger     *zap.Logger
	normalizer *normalize.Normalizer
	features   *FeatureExtractor
	cache      *SimilarityCache
	scorer     *Scorer
	classifier *Classifier
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. nil keeps the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Comparisons       int64   `json:"comparisons"`
	CacheHits         int64   `json:"cache_hits"`
	CacheMisses       int64   `json:"cache_misses"`
	CacheHitRate      float64 `json:"cache_hit_rate"`
	CachedPairs       int     `json:"cached_pairs"`
	NormalizedEntries int     `json:"normalized_entries"`
	FeatureEntries    int     `json:"feature_entries"`
}

// NewEngine validates cfg and builds an engine. Invalid configuration is reported
// here, never during matching.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cacheSize := 0
	if cfg.EnableCache {
		cacheSize = cfg.NormalizeCacheSize
	}

	e := &Engine{
		cfg:        cfg,
		logger:     debug.L(),
		normalizer: normalize.NewNormalizer(cacheSize),
	}
	e.features = NewFeatureExtractor(e.normalizer, cacheSize)
	if cfg.EnableCache {
		e.cache = NewSimilarityCache()
	}
	e.scorer = NewScorer(cfg.Weights, e.normalizer, e.features, e.cache)
	e.classifier = NewClassifier(cfg.Thresholds)

	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Classifier exposes the engine's category mapping.
func (e *Engine) Classifier() *Classifier {
	return e.classifier
}

// prepared is a value coerced to text once per run.
type prepared struct {
	index int
	text  string
	ok    bool
}

func prepare(values []any) []prepared {
	out := make([]prepared, len(values))
	for i, v := range values {
		text, ok := normalize.Stringify(v)
		out[i] = prepared{index: i, text: text, ok: ok}
	}
	return out
}

// CompareValues scores one pair and classifies it as a single-candidate match.
func (e *Engine) CompareValues(source, target any) MatchResult {
	src := prepare([]any{source})[0]
	tgt := prepare([]any{target})[0]

	scores := e.scorer.Score(src.text, tgt.text)
	res := e.newResult(src, scores)
	res.TargetIndex = 0
	res.TargetValue = tgt.text
	return res
}

// FindBestMatches returns the best target for every source whose best overall
// score is positive and reaches threshold. Results are ordered by overall score,
// highest first, with ties in source order. Sources without a match are included
// only when IncludeUnmatched is set.
func (e *Engine) FindBestMatches(ctx context.Context, sources, targets []any, threshold float64) ([]MatchResult, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(sources) == 0 || len(targets) == 0 {
		return []MatchResult{}, nil
	}

	start := time.Now()
	srcs := prepare(sources)
	tgts := prepare(targets)
	slots := make([]*MatchResult, len(srcs))

	parallel := e.cfg.EnableParallel && e.cfg.MaxWorkers > 1 && len(srcs) > e.cfg.ParallelThreshold
	e.logger.Info("matching started",
		zap.Int("sources", len(srcs)),
		zap.Int("targets", len(tgts)),
		zap.Float64("threshold", threshold),
		zap.Bool("parallel", parallel))

	var err error
	if parallel {
		err = e.matchParallel(ctx, srcs, tgts, threshold, slots)
	} else {
		err = e.matchRange(ctx, srcs, tgts, threshold, slots)
	}
	if err != nil {
		return nil, err
	}

	results := make([]MatchResult, 0, len(slots))
	for _, r := range slots {
		if r != nil {
			results = append(results, *r)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Scores.Overall > results[j].Scores.Overall
	})

	e.logger.Info("matching finished",
		zap.Int("results", len(results)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

// matchRange scores srcs sequentially, writing into slots by source index.
func (e *Engine) matchRange(ctx context.Context, srcs, tgts []prepared, threshold float64, slots []*MatchResult) error {
	for _, src := range srcs {
		if err := ctx.Err(); err != nil {
			return err
		}
		slots[src.index] = e.bestFor(src, tgts, threshold)
	}
	return nil
}

// matchParallel splits sources into chunks handled by at most MaxWorkers
// goroutines. Each chunk owns a disjoint range of slots.
func (e *Engine) matchParallel(ctx context.Context, srcs, tgts []prepared, threshold float64, slots []*MatchResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxWorkers)

	chunks := 0
	for lo := 0; lo < len(srcs); lo += e.cfg.ChunkSize {
		hi := lo + e.cfg.ChunkSize
		if hi > len(srcs) {
			hi = len(srcs)
		}
		chunk := srcs[lo:hi]
		chunks++
		g.Go(func() error {
			return e.matchRange(gctx, chunk, tgts, threshold, slots)
		})
	}
	debug.DebugOutput(e.cfg.Debug, "dispatched %d chunks to %d workers", chunks, e.cfg.MaxWorkers)

	return g.Wait()
}

// bestFor picks the best target for src, or nil when nothing qualifies and
// unmatched rows are not wanted.
func (e *Engine) bestFor(src prepared, tgts []prepared, threshold float64) *MatchResult {
	top := newTopK(e.cfg.TopK)
	for _, tgt := range tgts {
		scores := e.scorer.Score(src.text, tgt.text)
		if scores.Overall > 0 && scores.Overall >= threshold {
			top.offer(candidate{index: tgt.index, value: tgt.text, scores: scores})
		}
	}

	best, ok := top.best()
	if !ok {
		debug.DebugOutput(e.cfg.Debug, "no match for source %d %q", src.index, src.text)
		if !e.cfg.IncludeUnmatched {
			return nil
		}
		res := e.unmatched(src)
		return &res
	}

	res := e.newResult(src, best.scores)
	res.TargetIndex = best.index
	res.TargetValue = best.value
	res.Alternatives = top.alternatives()
	if top.tied(e.cfg.TieMargin) {
		res.NeedsReview = true
	}
	debug.DebugOutput(e.cfg.Debug, "source %d %q -> target %d %q (%.4f, review=%t)",
		src.index, src.text, best.index, best.value, best.scores.Overall, res.NeedsReview)
	return &res
}

func (e *Engine) newResult(src prepared, scores ScoreSet) MatchResult {
	cat := e.classifier.Classify(scores.Overall)
	conf := Confidence(scores)
	return MatchResult{
		SourceIndex:    src.index,
		SourceValue:    src.text,
		TargetIndex:    -1,
		Scores:         scores,
		Category:       cat,
		Confidence:     conf,
		DataType:       e.features.Extract(src.text).DataType,
		Recommendation: Recommend(cat, conf),
		CoercionFailed: !src.ok,
	}
}

func (e *Engine) unmatched(src prepared) MatchResult {
	res := e.newResult(src, ScoreSet{})
	res.NeedsReview = true
	return res
}

// MatchIdentifiers pairs records by identifier first. A found identifier is
// scored on its description and flagged for review when that score is below
// threshold. Missing or unknown identifiers are always flagged; with
// FallbackToText they are matched by description instead. Output keeps source
// order. When several targets share an identifier the last one wins.
func (e *Engine) MatchIdentifiers(ctx context.Context, sources, targets []Record, threshold float64) ([]MatchResult, error) {
	if err := ValidateThreshold(threshold); err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return []MatchResult{}, nil
	}

	start := time.Now()
	byID := make(map[string]int, len(targets))
	tgtDesc := make([]any, len(targets))
	tgtIDs := make([]string, len(targets))
	for i, t := range targets {
		id, _ := normalize.Stringify(t.ID)
		id = strings.TrimSpace(id)
		tgtIDs[i] = id
		tgtDesc[i] = t.Description
		if id != "" {
			byID[id] = i
		}
	}
	tgts := prepare(tgtDesc)

	results := make([]MatchResult, 0, len(sources))
	for i, rec := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, idOK := normalize.Stringify(rec.ID)
		id = strings.TrimSpace(id)
		desc, descOK := normalize.Stringify(rec.Description)
		src := prepared{index: i, text: desc, ok: idOK && descOK}

		if ti, found := byID[id]; id != "" && found {
			res := e.newResult(src, e.scorer.Score(src.text, tgts[ti].text))
			res.TargetIndex = ti
			res.TargetValue = tgts[ti].text
			res.SourceID = id
			res.TargetID = tgtIDs[ti]
			res.IDStatus = IDFound
			if res.Scores.Overall < threshold {
				res.NeedsReview = true
				res.Recommendation = RecommendDescriptionGap
			}
			results = append(results, res)
			continue
		}

		results = append(results, e.unresolvedID(src, id, tgts, tgtIDs, threshold))
	}

	e.logger.Info("identifier matching finished",
		zap.Int("sources", len(sources)),
		zap.Int("targets", len(targets)),
		zap.Duration("took", time.Since(start)))
	return results, nil
}

func (e *Engine) unresolvedID(src prepared, id string, tgts []prepared, tgtIDs []string, threshold float64) MatchResult {
	status, recommendation := IDNotFound, RecommendIDNotFound
	if id == "" {
		status, recommendation = IDMissing, RecommendIDMissing
	}

	if e.cfg.FallbackToText && len(tgts) > 0 {
		top := newTopK(e.cfg.TopK)
		for _, tgt := range tgts {
			scores := e.scorer.Score(src.text, tgt.text)
			if scores.Overall > 0 && scores.Overall >= threshold {
				top.offer(candidate{index: tgt.index, value: tgt.text, scores: scores})
			}
		}
		if best, ok := top.best(); ok {
			res := e.newResult(src, best.scores)
			res.TargetIndex = best.index
			res.TargetValue = best.value
			res.TargetID = tgtIDs[best.index]
			res.SourceID = id
			res.Alternatives = top.alternatives()
			res.NeedsReview = true
			if status == IDNotFound {
				res.IDStatus = IDNotFoundFuzzy
			} else {
				res.IDStatus = IDMissing
			}
			return res
		}
	}

	res := e.unmatched(src)
	res.SourceID = id
	res.IDStatus = status
	res.Recommendation = recommendation
	return res
}

// ClearCache drops every cached normalization, feature set and score.
func (e *Engine) ClearCache() {
	e.normalizer.Purge()
	e.features.Purge()
	if e.cache != nil {
		e.cache.Clear()
	}
	e.logger.Debug("caches cleared")
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Comparisons:       e.scorer.Comparisons(),
		NormalizedEntries: e.normalizer.Len(),
		FeatureEntries:    e.features.Len(),
	}
	if e.cache != nil {
		s.CacheHits = e.cache.Hits()
		s.CacheMisses = e.cache.Misses()
		s.CachedPairs = e.cache.Len()
		if lookups := s.CacheHits + s.CacheMisses; lookups > 0 {
			s.CacheHitRate = float64(s.CacheHits) / float64(lookups)
		}
	}
	return s
}
