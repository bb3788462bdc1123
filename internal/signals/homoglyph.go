package signals

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// confusables maps characters commonly substituted for Latin letters.
var confusables = map[rune]rune{
	'а': 'a', 'е': 'e', 'о': 'o', 'р': 'p', 'с': 'c', 'х': 'x', 'у': 'y',
	'і': 'i', 'ј': 'j', 'ѕ': 's', 'ԁ': 'd', 'һ': 'h', 'ӏ': 'l', 'ɡ': 'g',
	'α': 'a', 'ο': 'o', 'ν': 'v', 'ε': 'e', 'κ': 'k', 'τ': 't',
	'0': 'o', '3': 'e', '4': 'a', '5': 's', '7': 't', '@': 'a', '$': 's',
}

var digraphs = strings.NewReplacer("rn", "m", "vv", "w", "cl", "d")

// skeleton folds s to the Latin letters it imitates. The digit one is ambiguous
// between "l" and "i", so the caller chooses its reading.
func skeleton(s string, one rune) string {
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Map(func(r rune) rune {
			r = unicode.ToLower(r)
			if r == '1' || r == '|' {
				return one
			}
			if c, ok := confusables[r]; ok {
				return c
			}
			return r
		}),
		norm.NFC,
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// imitates reports whether token reads as brand once confusable characters
// are folded, without being brand itself.
func imitates(token, brand string) bool {
	if token == brand {
		return false
	}
	for _, one := range []rune{'l', 'i'} {
		folded := skeleton(token, one)
		if folded == brand || digraphs.Replace(folded) == brand {
			return true
		}
	}
	return false
}

// levenshtein returns the edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// lookalikeBrand returns the protected brand a registrable label imitates,
// or "" when none. label is the registrable domain without its public suffix.
func lookalikeBrand(label string, brands []string) string {
	label = strings.ToLower(label)
	tokens := strings.FieldsFunc(label, func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
	joined := strings.Join(tokens, "")

	for _, brand := range brands {
		brand = strings.ToLower(brand)
		if brand == "" || label == brand {
			continue
		}
		if imitates(joined, brand) || (len(tokens) > 1 && joined == brand) {
			return brand
		}
		for _, tok := range tokens {
			switch {
			case tok == brand:
				// brand name embedded in someone else's domain
				return brand
			case imitates(tok, brand):
				return brand
			case len([]rune(tok)) >= 5 && levenshtein(tok, brand) == 1:
				return brand
			}
		}
	}
	return ""
}
