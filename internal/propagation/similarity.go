package propagation

import (
	"strings"
	"unicode"
)

// stopwords are dropped before comparing utterances, so function words
// never count as shared secret content.
var stopwords = map[string]struct{}{
	"the": {}, "was": {}, "were": {}, "been": {},
	"have": {}, "has": {}, "had": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "must": {}, "shall": {}, "can": {},
	"for": {}, "with": {}, "from": {},
	"that": {}, "this": {}, "these": {}, "those": {}, "its": {},
	"and": {}, "but": {}, "than": {}, "too": {}, "very": {}, "just": {},
	"about": {}, "they": {}, "them": {}, "their": {}, "you": {}, "your": {},
}

// Tokenize lowercases text, splits on anything that is not a letter or a
// digit, and keeps words of three or more characters that are not
// stopwords.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Jaccard measures token-set overlap between two texts in [0, 1]. Two
// texts with no significant tokens at all score zero, never one.
func Jaccard(a, b string) float64 {
	setA := make(map[string]struct{})
	for _, t := range Tokenize(a) {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{})
	for _, t := range Tokenize(b) {
		setB[t] = struct{}{}
	}

	if len(setA) == 0 && len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
