// Package export writes match results to CSV and Excel workbooks.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/report"
)

// ErrUnsupportedFormat is returned for formats other than csv and xlsx.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Format of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv", "xlsx" and "excel"; empty means csv.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Row is one exported line: a result plus the reviewer decision, if any.
type Row struct {
	match.MatchResult
	Decision       string
	DecisionTarget string
}

// RowsFromResults wraps results without decisions.
func RowsFromResults(results []match.MatchResult) []Row {
	rows := make([]Row, len(results))
	for i, r := range results {
		rows[i] = Row{MatchResult: r}
	}
	return rows
}

var headers = []string{
	"Source Index", "Source ID", "Source Value",
	"Target Index", "Target ID", "Target Value",
	"ID Status", "Category", "Overall", "Confidence",
	"Levenshtein", "Jaro-Winkler", "Jaccard", "Cosine", "Semantic",
	"Data Type", "Needs Review", "Recommendation", "Alternatives",
	"Decision", "Decision Target",
}

func targetIndex(r match.MatchResult) string {
	if !r.Matched() {
		return ""
	}
	return strconv.Itoa(r.TargetIndex)
}

func alternatives(alts []match.Alternative) string {
	parts := make([]string, len(alts))
	for i, a := range alts {
		parts[i] = fmt.Sprintf("%s (%.4f)", a.TargetValue, a.Overall)
	}
	return strings.Join(parts, " | ")
}

func score(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

func (r Row) record() []string {
	s := r.Scores
	return []string{
		strconv.Itoa(r.SourceIndex), r.SourceID, r.SourceValue,
		targetIndex(r.MatchResult), r.TargetID, r.TargetValue,
		string(r.IDStatus), r.Category.String(), score(s.Overall), score(r.Confidence),
		score(s.Levenshtein), score(s.JaroWinkler), score(s.Jaccard), score(s.Cosine), score(s.Semantic),
		string(r.DataType), strconv.FormatBool(r.NeedsReview), r.Recommendation, alternatives(r.Alternatives),
		r.Decision, r.DecisionTarget,
	}
}

// WriteCSV writes a header line and one line per row.
func WriteCSV(w io.Writer, rows []Row) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for i, row := range rows {
		if err := writer.Write(row.record()); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// Sheet names of the workbook.
const (
	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

var categoryColors = map[match.Category]string{
	match.Exact:   "#C6EFCE",
	match.High:    "#E2EFDA",
	match.Medium:  "#FFF2CC",
	match.Low:     "#FCE4D6",
	match.NoMatch: "#F8CBAD",
}

type styles struct {
	header   int
	score    int
	category map[match.Category]int
}

func newStyles(f *excelize.File) (styles, error) {
	var (
		st  styles
		err error
	)
	st.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return st, fmt.Errorf("failed to create header style: %w", err)
	}

	numFmt := "0.0000"
	st.score, err = f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
	if err != nil {
		return st, fmt.Errorf("failed to create score style: %w", err)
	}

	st.category = make(map[match.Category]int, len(categoryColors))
	for cat, color := range categoryColors {
		id, err := f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		})
		if err != nil {
			return st, fmt.Errorf("failed to create %s style: %w", cat, err)
		}
		st.category[cat] = id
	}
	return st, nil
}

// WriteXLSX writes a workbook with a styled Results sheet and a Summary sheet
// built from rep.
func WriteXLSX(w io.Writer, rows []Row, rep report.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ResultsSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return err
	}

	if err := writeResults(f, st, rows); err != nil {
		return err
	}
	if err := writeSummary(f, st, rep); err != nil {
		return err
	}

	idx, err := f.GetSheetIndex(ResultsSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeResults(f *excelize.File, st styles, rows []Row) error {
	sw, err := f.NewStreamWriter(ResultsSheet)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	widths := map[int]float64{3: 40, 6: 40, 18: 45, 19: 50}
	for col := 1; col <= len(headers); col++ {
		width, ok := widths[col]
		if !ok {
			width = 14
		}
		if err := sw.SetColWidth(col, col, width); err != nil {
			return err
		}
	}
	if err := sw.SetPanes(&excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return err
	}

	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = excelize.Cell{Value: h, StyleID: st.header}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row.cells(st)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	return sw.Flush()
}

func (r Row) cells(st styles) []any {
	s := r.Scores
	scoreCell := func(v float64) excelize.Cell { return excelize.Cell{Value: v, StyleID: st.score} }

	var target any = ""
	if r.Matched() {
		target = r.TargetIndex
	}
	return []any{
		r.SourceIndex, r.SourceID, r.SourceValue,
		target, r.TargetID, r.TargetValue,
		string(r.IDStatus), excelize.Cell{Value: r.Category.String(), StyleID: st.category[r.Category]},
		scoreCell(s.Overall), scoreCell(r.Confidence),
		scoreCell(s.Levenshtein), scoreCell(s.JaroWinkler), scoreCell(s.Jaccard), scoreCell(s.Cosine), scoreCell(s.Semantic),
		string(r.DataType), r.NeedsReview, r.Recommendation, alternatives(r.Alternatives),
		r.Decision, r.DecisionTarget,
	}
}

func writeSummary(f *excelize.File, st styles, rep report.Report) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	lines := [][]any{
		{"Metric", "Value"},
		{"Total", rep.Total},
		{"Matched", rep.Matched},
		{"Unmatched", rep.Unmatched},
		{"Needs Review", rep.NeedsReview},
		{"Review Rate", rep.ReviewRate()},
		{"Average Overall", rep.AverageOverall},
		{"Average Confidence", rep.AverageConfidence},
		{"Coercion Failures", rep.CoercionFailures},
		{"Comparisons", rep.Comparisons},
		{"Cache Hit Rate", rep.CacheHitRate},
		{"Elapsed", rep.Elapsed.String()},
		{},
		{"Category", "Count"},
	}
	for _, cat := range match.Categories {
		lines = append(lines, []any{cat.String(), rep.ByCategory[cat]})
	}
	lines = append(lines, []any{}, []any{"Algorithm", "Average"})
	for _, alg := range match.Algorithms {
		lines = append(lines, []any{string(alg), rep.AlgorithmAverages[alg]})
	}
	if len(rep.ByIDStatus) > 0 {
		lines = append(lines, []any{}, []any{"ID Status", "Count"})
		for _, status := range []match.IDStatus{match.IDFound, match.IDNotFound, match.IDNotFoundFuzzy, match.IDMissing} {
			lines = append(lines, []any{string(status), rep.ByIDStatus[status]})
		}
	}

	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &line); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i, err)
		}
		if label, ok := line[0].(string); ok && isSectionHeader(label) {
			end, _ := excelize.CoordinatesToCellName(2, i+1)
			if err := f.SetCellStyle(SummarySheet, cell, end, st.header); err != nil {
				return err
			}
		}
	}
	return f.SetColWidth(SummarySheet, "A", "B", 22)
}

func isSectionHeader(label string) bool {
	switch label {
	case "Metric", "Category", "Algorithm", "ID Status":
		return true
	}
	return false
}
