package normalize

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "only spaces", input: "   \t\n ", want: ""},
		{name: "accents and case", input: "Descrição do Material", want: "descricao do material"},
		{name: "punctuation collapses", input: "Parafuso--M4 (aço)!!", want: "parafuso m4 aco"},
		{name: "currency and percent", input: "R$ 10,50 / 15%", want: "r 10 50 15"},
		{name: "cedilla and tilde", input: "AÇÃO ÇÉU", want: "acao ceu"},
		{name: "compatibility forms", input: "ﬁnal ²", want: "final 2"},
		{name: "underscore is punctuation", input: "codigo_material", want: "codigo material"},
		{name: "non latin letters kept", input: "Москва-2", want: "москва 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.input))
		})
	}
}

func TestTextIdempotent(t *testing.T) {
	inputs := []string{
		"", "Produto A", "Valor Total", "Data Vencimento 10/12/2024",
		"  R$   1.234,56  ", "Ação & Reação", "İstanbul", "ǅemal", "\xff\xfe broken",
		"Straße", "ÅNGSTRÖM", "mixed_CASE-text", "100%", "☃ snow",
	}
	for _, in := range inputs {
		once := Text(in)
		assert.Equal(t, once, Text(once), "input %q", in)
	}
}

func TestStripAccents(t *testing.T) {
	assert.Equal(t, "Codigo do material", StripAccents("Código do material"))
	assert.Equal(t, "Descricao Tasy", StripAccents("Descrição Tasy"))
}

type stringer struct{}

func (stringer) String() string { return "Screw M4" }

func TestStringify(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   string
		wantOK bool
	}{
		{"nil", nil, "", true},
		{"string", "abc", "abc", true},
		{"bytes", []byte("xyz"), "xyz", true},
		{"int", 1001, "1001", true},
		{"int64", int64(-7), "-7", true},
		{"float", 12.5, "12.5", true},
		{"integral float", float64(1001), "1001", true},
		{"nan", math.NaN(), "", true},
		{"inf", math.Inf(1), "", true},
		{"bool", true, "true", true},
		{"stringer", stringer{}, "Screw M4", true},
		{"error", errors.New("boom"), "boom", true},
		{"slice", []int{1, 2}, "[1 2]", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Stringify(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

type panicky struct{}

func (panicky) String() string { panic("no text") }

func TestStringifyRecoversPanics(t *testing.T) {
	got, ok := Stringify(panicky{})
	assert.Equal(t, "", got)
	assert.False(t, ok)
}

func TestNormalizerCacheIsTransparent(t *testing.T) {
	cached := NewNormalizer(16)
	plain := NewNormalizer(0)

	for _, in := range []string{"Produto A", "Produto A", "Cliente-B", "Cliente-B", ""} {
		assert.Equal(t, plain.Normalize(in), cached.Normalize(in))
	}
	assert.Equal(t, 3, cached.Len())
	assert.Equal(t, 0, plain.Len())

	cached.Purge()
	assert.Equal(t, 0, cached.Len())

	var nilNormalizer *Normalizer
	assert.Equal(t, "a b", nilNormalizer.Normalize("A-B"))
	assert.Equal(t, "1001", cached.NormalizeValue(1001))
}
