package match

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/crossref-matcher/internal/normalize"
)

var (
	reDate       = regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2}`)
	reCurrency   = regexp.MustCompile(`(?i)R\$|[$€£¥]|\breal\b|\breais\b|\bdolar\b|\beuro\b`)
	rePercentage = regexp.MustCompile(`(?i)%|\bpercent\b|\bporcent\b`)
	reCode       = regexp.MustCompile(`^[A-Z0-9]{3,}$`)
	reDigits     = regexp.MustCompile(`\d`)
)

type keywordCategory struct {
	name     string
	keywords []string
}

// domainKeywords maps ERP column vocabulary to coarse categories. Order is fixed
// so extraction is deterministic.
var domainKeywords = []keywordCategory{
	{"financeiro", []string{"valor", "preco", "custo", "total", "subtotal", "desconto", "taxa"}},
	{"temporal", []string{"data", "hora", "periodo", "mes", "ano", "dia", "prazo"}},
	{"identificacao", []string{"codigo", "id", "numero", "seq", "chave", "ref"}},
	{"quantidade", []string{"qtd", "quantidade", "volume", "peso", "medida"}},
	{"pessoa", []string{"nome", "cliente", "fornecedor", "usuario", "responsavel"}},
	{"produto", []string{"item", "produto", "material", "mercadoria", "sku"}},
	{"localizacao", []string{"endereco", "cidade", "estado", "pais", "cep"}},
}

// FeatureExtractor derives SemanticFeatures from raw values. Results are cached by
// raw text when a cache size is configured.
type FeatureExtractor struct {
	normalizer *normalize.Normalizer
	cache      *lru.Cache[string, SemanticFeatures]
}

// NewFeatureExtractor creates an extractor. cacheSize <= 0 disables caching.
func NewFeatureExtractor(normalizer *normalize.Normalizer, cacheSize int) *FeatureExtractor {
	fe := &FeatureExtractor{normalizer: normalizer}
	if cacheSize > 0 {
		if c, err := lru.New[string, SemanticFeatures](cacheSize); err == nil {
			fe.cache = c
		}
	}
	return fe
}

// Extract returns the features of text. The returned Keywords slice is owned by
// the caller.
func (fe *FeatureExtractor) Extract(text string) SemanticFeatures {
	if fe.cache != nil {
		if f, ok := fe.cache.Get(text); ok {
			return f.clone()
		}
	}

	f := fe.compute(text)
	if fe.cache != nil {
		fe.cache.Add(text, f.clone())
	}
	return f
}

// Len returns the number of cached feature sets.
func (fe *FeatureExtractor) Len() int {
	if fe.cache == nil {
		return 0
	}
	return fe.cache.Len()
}

// Purge drops all cached feature sets.
func (fe *FeatureExtractor) Purge() {
	if fe.cache != nil {
		fe.cache.Purge()
	}
}

func (fe *FeatureExtractor) compute(text string) SemanticFeatures {
	normalized := fe.normalizer.Normalize(text)
	trimmed := strings.TrimSpace(text)

	return SemanticFeatures{
		DataType:      DetectDataType(text),
		Length:        utf8.RuneCountInString(normalized),
		WordCount:     len(strings.Fields(normalized)),
		HasNumbers:    reDigits.MatchString(text),
		HasDate:       reDate.MatchString(text),
		HasCurrency:   reCurrency.MatchString(text),
		HasPercentage: rePercentage.MatchString(text),
		IsCode:        reCode.MatchString(trimmed),
		IsName:        isName(normalized),
		Keywords:      ExtractKeywords(normalized),
	}
}

func (f SemanticFeatures) clone() SemanticFeatures {
	if f.Keywords != nil {
		f.Keywords = append([]string(nil), f.Keywords...)
	}
	return f
}

// DetectDataType classifies raw text. Patterns are tried in priority order: date,
// currency, percentage, code, number, mixed, text.
func DetectDataType(text string) DataType {
	s := strings.TrimSpace(text)
	if s == "" {
		return TypeText
	}

	switch {
	case reDate.MatchString(s):
		return TypeDate
	case reCurrency.MatchString(s):
		return TypeCurrency
	case rePercentage.MatchString(s):
		return TypePercentage
	case reCode.MatchString(s):
		return TypeCode
	case isNumeric(s):
		return TypeNumber
	case hasLetterAndDigit(s):
		return TypeMixed
	}
	return TypeText
}

func isNumeric(s string) bool {
	stripped := strings.NewReplacer(".", "", ",", "", "-", "").Replace(s)
	if stripped == "" {
		return false
	}
	for _, r := range stripped {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasLetterAndDigit(s string) bool {
	var letter, digit bool
	for _, r := range s {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
		if letter && digit {
			return true
		}
	}
	return false
}

// isName is true for normalized text made only of letters and spaces, longer than
// two characters.
func isName(normalized string) bool {
	if utf8.RuneCountInString(normalized) <= 2 {
		return false
	}
	for _, r := range normalized {
		if r != ' ' && !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// ExtractKeywords tags the words of normalized text with domain categories. A word
// hits a keyword when it contains the keyword, or when the word has at least three
// characters and is contained in the keyword.
func ExtractKeywords(normalized string) []string {
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	for _, cat := range domainKeywords {
		for _, word := range words {
			for _, kw := range cat.keywords {
				if strings.Contains(word, kw) || (utf8.RuneCountInString(word) >= 3 && strings.Contains(kw, word)) {
					seen[cat.name+":"+kw] = struct{}{}
				}
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}
