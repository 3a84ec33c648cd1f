package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Decompose (compatibility form) and drop combining marks, e.g. "Descrição" -> "Descricao".
var stripMarks = runes.Remove(runes.In(unicode.Mn))

var reSpaces = regexp.MustCompile(`\s+`)

// Text returns the canonical comparison form of s: lower-cased, accents stripped,
// every rune that is not a letter, digit or space replaced by a space, whitespace
// collapsed and trimmed. Text is idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}

	lowered := strings.ToLower(s)
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, stripMarks), lowered)
	if err != nil {
		// Invalid UTF-8 is the only realistic failure; fall back to the lowered form.
		stripped = strings.ToValidUTF8(lowered, " ")
	}

	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			// NFKD can expose upper-case compatibility forms (e.g. ligatures); keep them folded.
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		case unicode.Is(unicode.Mn, r):
			return -1
		default:
			return ' '
		}
	}, stripped)

	return strings.TrimSpace(reSpaces.ReplaceAllString(cleaned, " "))
}

// StripAccents removes combining marks without touching case or punctuation.
func StripAccents(s string) string {
	out, _, err := transform.String(transform.Chain(norm.NFKD, stripMarks, norm.NFC), s)
	if err != nil {
		return s
	}
	return out
}

// Stringify coerces an arbitrary scalar to text. Absent values (nil, NaN, ±Inf) become "".
// ok is false only when the value could not be rendered at all; the text is then "".
func Stringify(v any) (text string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
		}
	}()

	switch x := v.(type) {
	case nil:
		return "", true
	case string:
		return x, true
	case []byte:
		return string(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "", true
		}
		return strconv.FormatFloat(f, 'f', -1, 32), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	case fmt.Stringer:
		return x.String(), true
	case error:
		return x.Error(), true
	default:
		return fmt.Sprint(x), true
	}
}

// Normalizer wraps Text with an optional bounded cache keyed by raw text.
type Normalizer struct {
	cache *lru.Cache[string, string]
}

// NewNormalizer creates a normalizer; cacheSize <= 0 disables caching.
func NewNormalizer(cacheSize int) *Normalizer {
	n := &Normalizer{}
	if cacheSize > 0 {
		// lru.New only fails for a non-positive size.
		n.cache, _ = lru.New[string, string](cacheSize)
	}
	return n
}

// Normalize canonicalizes a raw string.
func (n *Normalizer) Normalize(s string) string {
	if n == nil || n.cache == nil {
		return Text(s)
	}
	if v, ok := n.cache.Get(s); ok {
		return v
	}
	v := Text(s)
	n.cache.Add(s, v)
	return v
}

// NormalizeValue coerces v to text and normalizes it.
func (n *Normalizer) NormalizeValue(v any) string {
	s, _ := Stringify(v)
	return n.Normalize(s)
}

// Len reports the number of cached entries.
func (n *Normalizer) Len() int {
	if n == nil || n.cache == nil {
		return 0
	}
	return n.cache.Len()
}

// Purge empties the cache.
func (n *Normalizer) Purge() {
	if n != nil && n.cache != nil {
		n.cache.Purge()
	}
}
