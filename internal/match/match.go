// Package match turns raw customer questions into lexical patterns and
// picks the learned answer that best covers a question.
package match

import (
	"strings"
	"unicode"

	"github.com/spec-kit/escalation-service/internal/domain"
)

// MaxPatternTokens caps how many leading tokens of a question form its pattern.
const MaxPatternTokens = 4

// Kind reports how a lookup was satisfied.
type Kind string

const (
	KindExact   Kind = "exact"
	KindPartial Kind = "partial"
	KindMiss    Kind = "miss"
)

// Normalize lower-cases q, drops everything outside [a-z0-9] and whitespace,
// and keeps at most the first MaxPatternTokens tokens joined by single spaces.
func Normalize(q string) string {
	var b strings.Builder
	b.Grow(len(q))
	for _, r := range strings.ToLower(q) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case isSpace(r):
			b.WriteByte(' ')
		}
	}
	tokens := strings.Fields(b.String())
	if len(tokens) > MaxPatternTokens {
		tokens = tokens[:MaxPatternTokens]
	}
	return strings.Join(tokens, " ")
}

// Unicode whitespace, including no-break and ideographic spaces, plus the
// zero-width no-break space U+FEFF.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}

// Result is the outcome of a Lookup.
type Result struct {
	Entry    *domain.KnowledgeEntry
	Kind     Kind
	Pattern  string
	Matched  int
	Coverage float64
}

// Found reports whether an entry was selected.
func (r Result) Found() bool { return r.Entry != nil }

// Lookup selects the entry answering question. entries must be in store
// iteration order: an exact pattern match wins outright, otherwise the entry
// whose tokens are best covered by the question wins and ties keep the entry
// seen first. A best candidate that shares no token is a miss.
func Lookup(question string, entries []domain.KnowledgeEntry) Result {
	pattern := Normalize(question)
	for i := range entries {
		if entries[i].Pattern == pattern {
			return Result{Entry: &entries[i], Kind: KindExact, Pattern: pattern, Matched: len(strings.Fields(pattern)), Coverage: 1}
		}
	}

	queryTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(pattern) {
		queryTokens[tok] = struct{}{}
	}

	best := -1
	bestCount := 0
	bestCoverage := 0.0
	for i := range entries {
		count, coverage := score(entries[i].Pattern, queryTokens)
		// Strictly greater: an equal score never displaces the earlier entry.
		if coverage > bestCoverage {
			best, bestCount, bestCoverage = i, count, coverage
		}
	}
	if best < 0 || bestCount == 0 {
		return Result{Kind: KindMiss, Pattern: pattern}
	}
	return Result{Entry: &entries[best], Kind: KindPartial, Pattern: pattern, Matched: bestCount, Coverage: bestCoverage}
}

// score counts the entry tokens present in the query and divides by the
// number of entry tokens (1 when the entry pattern is empty).
func score(entryPattern string, queryTokens map[string]struct{}) (int, float64) {
	tokens := strings.Fields(entryPattern)
	count := 0
	for _, tok := range tokens {
		if _, ok := queryTokens[tok]; ok {
			count++
		}
	}
	denominator := len(tokens)
	if denominator == 0 {
		denominator = 1
	}
	return count, float64(count) / float64(denominator)
}
