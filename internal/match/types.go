package match

import (
	"fmt"
	"strings"
)

// Category is the coarse confidence band a score falls into.
type Category int

const (
	NoMatch Category = iota
	Low
	Medium
	High
	Exact
)

var categoryNames = map[Category]string{
	NoMatch: "no_match",
	Low:     "low",
	Medium:  "medium",
	High:    "high",
	Exact:   "exact",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText renders the category with its lowercase name so JSON and YAML
// carry "high" rather than 3.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts the lowercase names produced by MarshalText. Upper case and
// dashes ("NO-MATCH", "NO_MATCH") are tolerated.
func (c *Category) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(string(text)), "-", "_"))
	for cat, name := range categoryNames {
		if name == s {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown category %q", string(text))
}

// Categories lists every category from best to worst.
var Categories = []Category{Exact, High, Medium, Low, NoMatch}

// DataType is the coarse kind of content a value carries.
type DataType string

const (
	TypeText       DataType = "text"
	TypeNumber     DataType = "number"
	TypeDate       DataType = "date"
	TypeCode       DataType = "code"
	TypeMixed      DataType = "mixed"
	TypeCurrency   DataType = "currency"
	TypePercentage DataType = "percentage"
)

// IDStatus reports how identifier-keyed matching resolved a source record.
type IDStatus string

const (
	// IDNone is used for description-only matching.
	IDNone IDStatus = ""
	// IDFound means the identifier exists on the target side.
	IDFound IDStatus = "OK"
	// IDNotFound means the identifier is absent and no fallback produced a match.
	IDNotFound IDStatus = "NOT_FOUND"
	// IDNotFoundFuzzy means the identifier is absent and the description matched
	// through fuzzy fallback.
	IDNotFoundFuzzy IDStatus = "NOT_FOUND_FUZZY"
	// IDMissing means the source record has no identifier at all.
	IDMissing IDStatus = "MISSING"
)

// Algorithm names one similarity component.
type Algorithm string

const (
	AlgLevenshtein Algorithm = "levenshtein"
	AlgJaroWinkler Algorithm = "jaro_winkler"
	AlgJaccard     Algorithm = "jaccard"
	AlgCosine      Algorithm = "cosine"
	AlgSemantic    Algorithm = "semantic"
)

// Algorithms lists the components in their canonical order.
var Algorithms = []Algorithm{AlgLevenshtein, AlgJaroWinkler, AlgJaccard, AlgCosine, AlgSemantic}

// SemanticFeatures is what the extractor learns about one raw value.
type SemanticFeatures struct {
	DataType      DataType `json:"data_type"`
	Length        int      `json:"length"`
	WordCount     int      `json:"word_count"`
	HasNumbers    bool     `json:"has_numbers"`
	HasDate       bool     `json:"has_date_pattern"`
	HasCurrency   bool     `json:"has_currency"`
	HasPercentage bool     `json:"has_percentage"`
	IsCode        bool     `json:"is_code"`
	IsName        bool     `json:"is_name"`
	// Keywords are "category:keyword" tags, sorted and unique.
	Keywords []string `json:"keywords"`
}

func (f SemanticFeatures) flags() [6]bool {
	return [6]bool{f.HasNumbers, f.HasDate, f.HasCurrency, f.HasPercentage, f.IsCode, f.IsName}
}

// signature captures the parts of the features that depend on the raw text and
// not only on its normalized form.
func (f SemanticFeatures) signature() string {
	var b strings.Builder
	b.WriteString(string(f.DataType))
	b.WriteByte(':')
	for _, flag := range f.flags() {
		if flag {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// ScoreSet holds the component scores and the weighted overall score of one
// comparison. All values are in [0,1].
type ScoreSet struct {
	Levenshtein float64 `json:"levenshtein"`
	JaroWinkler float64 `json:"jaro_winkler"`
	Jaccard     float64 `json:"jaccard"`
	Cosine      float64 `json:"cosine"`
	Semantic    float64 `json:"semantic"`
	Overall     float64 `json:"overall"`
}

// Components returns the five component scores in canonical order.
func (s ScoreSet) Components() []float64 {
	return []float64{s.Levenshtein, s.JaroWinkler, s.Jaccard, s.Cosine, s.Semantic}
}

// Get returns one component score by algorithm name.
func (s ScoreSet) Get(alg Algorithm) float64 {
	switch alg {
	case AlgLevenshtein:
		return s.Levenshtein
	case AlgJaroWinkler:
		return s.JaroWinkler
	case AlgJaccard:
		return s.Jaccard
	case AlgCosine:
		return s.Cosine
	case AlgSemantic:
		return s.Semantic
	}
	return 0
}

// Record is a source or target row for identifier-keyed matching.
type Record struct {
	ID          any `json:"id"`
	Description any `json:"description"`
}

// Alternative is a runner-up candidate kept alongside the winner.
type Alternative struct {
	TargetIndex int     `json:"target_index"`
	TargetValue string  `json:"target_value"`
	Overall     float64 `json:"overall"`
}

// MatchResult describes the chosen target for one source value.
type MatchResult struct {
	SourceIndex    int           `json:"source_index"`
	SourceValue    string        `json:"source_value"`
	TargetIndex    int           `json:"target_index"` // -1 when nothing matched
	TargetValue    string        `json:"target_value"`
	Scores         ScoreSet      `json:"scores"`
	Category       Category      `json:"category"`
	Confidence     float64       `json:"confidence"`
	DataType       DataType      `json:"data_type"`
	Recommendation string        `json:"recommendation"`
	NeedsReview    bool          `json:"needs_review"`
	Alternatives   []Alternative `json:"alternatives,omitempty"`

	SourceID string   `json:"source_id,omitempty"`
	TargetID string   `json:"target_id,omitempty"`
	IDStatus IDStatus `json:"id_status,omitempty"`

	// CoercionFailed is set when a source value could not be turned into text and
	// was compared as empty.
	CoercionFailed bool `json:"coercion_failed,omitempty"`
}

// Matched reports whether a target was assigned.
func (r MatchResult) Matched() bool {
	return r.TargetIndex >= 0
}
