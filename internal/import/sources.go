package import_pkg

import (
	"fmt"
	"strings"

	"github.com/crossref-matcher/internal/match"
	"github.com/crossref-matcher/internal/normalize"
)

// headerRows are the rows tried, in order, as the header of a sheet. ERP exports
// often carry a title line above the real header.
var headerRows = []int{0, 1}

func filledCells(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// isTitle reports a single-cell line sitting above a wider row.
func (t *Table) isTitle(row int) bool {
	return filledCells(t.Rows[row]) == 1 && row+1 < len(t.Rows) && filledCells(t.Rows[row+1]) > 1
}

// Strategy names how a header cell was matched.
type Strategy string

const (
	StrategyExact         Strategy = "exact"
	StrategyAccentless    Strategy = "accentless"
	StrategyAliasContains Strategy = "alias_contains"
)

// ColumnSpec identifies a column by name with optional aliases. Aliases are
// matched as substrings of the accent-stripped header; aliases shorter than
// three letters must match a whole word.
type ColumnSpec struct {
	Name    string
	Aliases []string
}

// Common ERP column aliases.
var (
	IDColumn = ColumnSpec{
		Name:    "codigo",
		Aliases: []string{"codigo", "cod", "id", "sku", "code", "referencia"},
	}
	DescriptionColumn = ColumnSpec{
		Name:    "descricao",
		Aliases: []string{"descricao", "desc", "description", "nome", "produto", "name"},
	}
)

// ColumnMatch is the resolved location of a column.
type ColumnMatch struct {
	HeaderRow int
	Index     int
	Header    string
	Strategy  Strategy
}

func headerKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// FindColumn resolves spec against the header rows of t. Each header row that is
// not a title line is searched in turn, first for the exact lower-cased name, then for the
// accent-stripped name, then for any alias contained in a header.
func FindColumn(t *Table, spec ColumnSpec) (ColumnMatch, error) {
	if strings.TrimSpace(spec.Name) == "" && len(spec.Aliases) == 0 {
		return ColumnMatch{}, fmt.Errorf("%w: empty column name", ErrColumnNotFound)
	}
	exact := headerKey(spec.Name)
	accentless := normalize.Text(spec.Name)

	for _, row := range headerRows {
		if row >= len(t.Rows) {
			break
		}
		headers := t.Rows[row]
		if t.isTitle(row) {
			continue
		}

		if exact != "" {
			for i, h := range headers {
				if headerKey(h) == exact {
					return ColumnMatch{HeaderRow: row, Index: i, Header: h, Strategy: StrategyExact}, nil
				}
			}
		}
		if accentless != "" {
			for i, h := range headers {
				if normalize.Text(h) == accentless {
					return ColumnMatch{HeaderRow: row, Index: i, Header: h, Strategy: StrategyAccentless}, nil
				}
			}
		}
		for _, alias := range spec.Aliases {
			a := normalize.Text(alias)
			if a == "" {
				continue
			}
			for i, h := range headers {
				if containsAlias(normalize.Text(h), a) {
					return ColumnMatch{HeaderRow: row, Index: i, Header: h, Strategy: StrategyAliasContains}, nil
				}
			}
		}
	}

	return ColumnMatch{}, fmt.Errorf("%w: %q in sheet %q", ErrColumnNotFound, spec.Name, t.Sheet)
}

func containsAlias(header, alias string) bool {
	if len([]rune(alias)) >= 3 {
		return strings.Contains(header, alias)
	}
	for _, word := range strings.Fields(header) {
		if word == alias {
			return true
		}
	}
	return false
}

// Headers returns the cells of the given header row.
func (t *Table) Headers(row int) []string {
	if row < 0 || row >= len(t.Rows) {
		return nil
	}
	return t.Rows[row]
}

// Values returns the column's cells below its header row. Blank trailing rows
// are dropped; blank cells in the middle are kept so indices stay aligned with
// the sheet.
func Values(t *Table, spec ColumnSpec) ([]any, error) {
	col, err := FindColumn(t, spec)
	if err != nil {
		return nil, err
	}

	values := []any{}
	for row := col.HeaderRow + 1; row < len(t.Rows); row++ {
		values = append(values, t.Cell(row, col.Index))
	}
	for len(values) > 0 && values[len(values)-1] == "" {
		values = values[:len(values)-1]
	}
	return values, nil
}

// Records pairs an identifier column with a description column. Both columns
// must share a header row; rows where both cells are blank are skipped.
func Records(t *Table, idSpec, descSpec ColumnSpec) ([]match.Record, error) {
	idCol, err := FindColumn(t, idSpec)
	if err != nil {
		return nil, err
	}
	descCol, err := FindColumn(t, descSpec)
	if err != nil {
		return nil, err
	}
	if idCol.HeaderRow != descCol.HeaderRow {
		return nil, fmt.Errorf("%w: %q and %q found on different header rows (%d, %d)",
			ErrColumnNotFound, idCol.Header, descCol.Header, idCol.HeaderRow, descCol.HeaderRow)
	}

	records := []match.Record{}
	for row := idCol.HeaderRow + 1; row < len(t.Rows); row++ {
		id := t.Cell(row, idCol.Index)
		desc := t.Cell(row, descCol.Index)
		if id == "" && desc == "" {
			continue
		}
		rec := match.Record{Description: desc}
		if id != "" {
			rec.ID = id
		}
		records = append(records, rec)
	}
	return records, nil
}
