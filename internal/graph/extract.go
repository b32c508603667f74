package graph

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sandevgo/rumormill/internal/core"
)

// Matcher finds known entity names inside free text. Matching is
// case-insensitive and bounded at word edges, so "Mara" never fires inside
// "Maramont". Longer names claim their span first: "the market square" wins
// over a hypothetical "market" entity covering the same characters.
type Matcher struct {
	store *Store
}

func NewMatcher(store *Store) *Matcher {
	return &Matcher{store: store}
}

// Extract returns the ids of every entity whose name occurs in text, each
// id at most once, ordered by first occurrence.
func (m *Matcher) Extract(text string) []core.EntityID {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	vocab := m.store.Vocabulary()
	sort.Slice(vocab, func(i, j int) bool {
		if len(vocab[i].Name) != len(vocab[j].Name) {
			return len(vocab[i].Name) > len(vocab[j].Name)
		}
		return vocab[i].Name < vocab[j].Name
	})

	lower := strings.ToLower(text)
	claimed := make([]bool, len(lower))

	type hit struct {
		pos int
		id  core.EntityID
	}
	var hits []hit
	seen := make(map[core.EntityID]struct{})

	for _, entry := range vocab {
		if entry.Name == "" {
			continue
		}
		for from := 0; from < len(lower); {
			rel := strings.Index(lower[from:], entry.Name)
			if rel < 0 {
				break
			}
			pos := from + rel
			end := pos + len(entry.Name)
			from = pos + 1

			if !boundedAt(lower, pos, end) || spanClaimed(claimed, pos, end) {
				continue
			}
			markClaimed(claimed, pos, end)
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			hits = append(hits, hit{pos: pos, id: entry.ID})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	result := make([]core.EntityID, 0, len(hits))
	for _, h := range hits {
		result = append(result, h.id)
	}
	return result
}

// boundedAt reports whether [pos, end) sits on word boundaries: the runes
// immediately before and after must not be letters or digits.
func boundedAt(s string, pos, end int) bool {
	if pos > 0 {
		r, _ := utf8.DecodeLastRuneInString(s[:pos])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(s) {
		r, _ := utf8.DecodeRuneInString(s[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func spanClaimed(claimed []bool, pos, end int) bool {
	for i := pos; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func markClaimed(claimed []bool, pos, end int) {
	for i := pos; i < end; i++ {
		claimed[i] = true
	}
}
