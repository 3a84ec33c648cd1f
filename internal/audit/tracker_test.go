package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crossref-matcher/internal/db"
	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/report"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	conn, err := db.Open(context.Background(), db.DriverSQLite, ":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	tr := NewTracker(conn, zaptest.NewLogger(t))
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	require.NoError(t, tr.EnsureSchema(context.Background()))
	return tr
}

func sampleResults() []match.MatchResult {
	return []match.MatchResult{
		{
			SourceIndex: 0, SourceValue: "Produto A", TargetIndex: 1, TargetValue: "Produto Alpha",
			Scores:   match.ScoreSet{Levenshtein: 0.6, JaroWinkler: 0.9, Jaccard: 0.5, Cosine: 0.6, Semantic: 0.95, Overall: 0.714},
			Category: match.Medium, Confidence: 0.6, DataType: match.TypeText,
			Recommendation: match.RecommendManualReview,
			Alternatives:   []match.Alternative{{TargetIndex: 3, TargetValue: "Produto B", Overall: 0.52}},
		},
		{
			SourceIndex: 1, SourceValue: "zzzz", TargetIndex: -1,
			Category: match.NoMatch, DataType: match.TypeText,
			Recommendation: match.RecommendManualMapping, NeedsReview: true,
		},
	}
}

func saveSample(t *testing.T, tr *Tracker, label string) *Run {
	t.Helper()
	results := sampleResults()
	run := &Run{
		Label:     label,
		Threshold: 0.4,
		Config:    match.DefaultConfig(),
		Report:    report.Summarize(results, 5*time.Millisecond, match.Stats{Comparisons: 8}),
	}
	require.NoError(t, tr.SaveRun(context.Background(), run, results))
	return run
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	tr := newTestTracker(t)
	assert.NoError(t, tr.EnsureSchema(context.Background()))
}

func TestSaveAndGetRun(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	run := saveSample(t, tr, "catalogue v1")

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, ModeValues, run.Mode)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 1, run.Matched)
	assert.Equal(t, 1, run.NeedsReview)

	got, err := tr.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "catalogue v1", got.Label)
	assert.Equal(t, 0.4, got.Threshold)
	assert.Equal(t, run.Config, got.Config)
	assert.Equal(t, 1, got.Report.ByCategory[match.Medium])
	assert.Equal(t, int64(8), got.Report.Comparisons)
	assert.True(t, run.CreatedAt.Equal(got.CreatedAt))
}

func TestGetRunNotFound(t *testing.T) {
	tr := newTestTracker(t)
	_, err := tr.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = tr.Results(context.Background(), "missing", ResultFilter{})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	tr := newTestTracker(t)
	first := saveSample(t, tr, "first")
	second := saveSample(t, tr, "second")

	runs, err := tr.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, first.ID, runs[1].ID)

	runs, err = tr.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestResultsRoundTrip(t *testing.T) {
	tr := newTestTracker(t)
	run := saveSample(t, tr, "")

	got, err := tr.Results(context.Background(), run.ID, ResultFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := sampleResults()
	for i := range want {
		assert.Equal(t, i, got[i].Index)
		assert.Equal(t, run.ID, got[i].RunID)
		assert.Equal(t, want[i], got[i].MatchResult)
		assert.Nil(t, got[i].Decision)
	}
}

func TestResultsFilter(t *testing.T) {
	tr := newTestTracker(t)
	run := saveSample(t, tr, "")
	ctx := context.Background()

	tests := []struct {
		name   string
		filter ResultFilter
		want   []int
	}{
		{"review only", ResultFilter{OnlyReview: true}, []int{1}},
		{"category", ResultFilter{Category: "MEDIUM"}, []int{0}},
		{"no-match category", ResultFilter{Category: "no-match"}, []int{1}},
		{"paged", ResultFilter{Limit: 1, Offset: 1}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tr.Results(ctx, run.ID, tt.filter)
			require.NoError(t, err)
			var idx []int
			for _, r := range got {
				idx = append(idx, r.Index)
			}
			assert.Equal(t, tt.want, idx)
		})
	}

	_, err := tr.Results(ctx, run.ID, ResultFilter{Category: "great"})
	assert.Error(t, err)
}

func TestRecordDecision(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	run := saveSample(t, tr, "")

	first := &Decision{RunID: run.ID, ResultIndex: 1, Decision: "Rejected", DecidedBy: "ana"}
	require.NoError(t, tr.RecordDecision(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, DecisionRejected, first.Decision)

	second := &Decision{RunID: run.ID, ResultIndex: 1, Decision: DecisionRemapped, TargetValue: "Produto Zeta", Note: "manual"}
	require.NoError(t, tr.RecordDecision(ctx, second))

	decisions, err := tr.Decisions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, first.ID, decisions[0].ID)

	results, err := tr.Results(ctx, run.ID, ResultFilter{})
	require.NoError(t, err)
	assert.Nil(t, results[0].Decision)
	require.NotNil(t, results[1].Decision)
	assert.Equal(t, DecisionRemapped, results[1].Decision.Decision)
	assert.Equal(t, "Produto Zeta", results[1].Decision.TargetValue)
}

func TestRecordDecisionErrors(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	run := saveSample(t, tr, "")

	tests := []struct {
		name     string
		decision Decision
		wantErr  error
	}{
		{"unknown verdict", Decision{RunID: run.ID, ResultIndex: 0, Decision: "maybe"}, ErrInvalidDecision},
		{"remap without target", Decision{RunID: run.ID, ResultIndex: 0, Decision: DecisionRemapped}, ErrInvalidDecision},
		{"unknown index", Decision{RunID: run.ID, ResultIndex: 9, Decision: DecisionAccepted}, ErrResultNotFound},
		{"unknown run", Decision{RunID: "nope", ResultIndex: 0, Decision: DecisionAccepted}, ErrResultNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.decision
			assert.ErrorIs(t, tr.RecordDecision(ctx, &d), tt.wantErr)
		})
	}
}

func TestDeleteRun(t *testing.T) {
	ctx := context.Background()
	tr := newTestTracker(t)
	run := saveSample(t, tr, "")
	require.NoError(t, tr.RecordDecision(ctx, &Decision{RunID: run.ID, ResultIndex: 0, Decision: DecisionAccepted}))

	require.NoError(t, tr.DeleteRun(ctx, run.ID))
	_, err := tr.GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, ErrRunNotFound)

	decisions, err := tr.Decisions(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, decisions)

	assert.ErrorIs(t, tr.DeleteRun(ctx, run.ID), ErrRunNotFound)
}
