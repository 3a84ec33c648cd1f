package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/report"
)

func sampleRows() []Row {
	results := []match.MatchResult{
		{
			SourceIndex: 0, SourceValue: "Produto A", TargetIndex: 2, TargetValue: "Produto Alpha",
			Scores:   match.ScoreSet{Levenshtein: 0.6, JaroWinkler: 0.9, Jaccard: 0.5, Cosine: 0.6, Semantic: 0.95, Overall: 0.71428},
			Category: match.Medium, Confidence: 0.6, DataType: match.TypeText,
			Recommendation: match.RecommendManualReview,
			Alternatives:   []match.Alternative{{TargetIndex: 3, TargetValue: "Produto B", Overall: 0.5}},
		},
		{
			SourceIndex: 1, SourceValue: "zzzz", TargetIndex: -1, SourceID: "9",
			IDStatus: match.IDNotFound, Category: match.NoMatch, DataType: match.TypeText,
			Recommendation: match.RecommendIDNotFound, NeedsReview: true,
		},
	}
	rows := RowsFromResults(results)
	rows[1].Decision = "remapped"
	rows[1].DecisionTarget = "Produto Z"
	return rows
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatCSV, false},
		{"CSV", FormatCSV, false},
		{"xlsx", FormatXLSX, false},
		{"excel", FormatXLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Contains(t, FormatCSV.ContentType(), "text/csv")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, headers, records[0])

	first := records[1]
	assert.Equal(t, "Produto A", first[2])
	assert.Equal(t, "2", first[3])
	assert.Equal(t, "medium", first[7])
	assert.Equal(t, "0.7143", first[8])
	assert.Equal(t, "Produto B (0.5000)", first[18])

	second := records[2]
	assert.Equal(t, "9", second[1])
	assert.Equal(t, "", second[3], "unmatched rows have no target index")
	assert.Equal(t, "NOT_FOUND", second[6])
	assert.Equal(t, "true", second[16])
	assert.Equal(t, "remapped", second[19])
	assert.Equal(t, "Produto Z", second[20])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestWriteXLSX(t *testing.T) {
	rows := sampleRows()
	results := []match.MatchResult{rows[0].MatchResult, rows[1].MatchResult}
	rep := report.Summarize(results, 2*time.Second, match.Stats{Comparisons: 4})

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rows, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultsSheet, SummarySheet}, f.GetSheetList())

	got, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, headers, got[0])
	assert.Equal(t, "Produto Alpha", got[1][5])
	assert.Equal(t, "medium", got[1][7])
	assert.Contains(t, got[1][8], "0.714")

	summary, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, summary[0])
	assert.Equal(t, []string{"Total", "2"}, summary[1])
	assert.Equal(t, []string{"Matched", "1"}, summary[2])

	var sawIDStatus bool
	for _, line := range summary {
		if len(line) > 0 && line[0] == "ID Status" {
			sawIDStatus = true
		}
	}
	assert.True(t, sawIDStatus)
}
