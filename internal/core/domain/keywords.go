package domain

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// minKeywordLength excludes short tokens such as loop variables.
const minKeywordLength = 3

// stopWords are dropped from keyword extraction. Besides common English
// words the list covers the vocabulary of test-generation requests.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {}, "at": {},
	"to": {}, "for": {}, "of": {}, "with": {}, "by": {}, "from": {}, "as": {}, "is": {}, "was": {},
	"are": {}, "were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"test": {}, "tests": {}, "testing": {}, "generate": {}, "create": {},
}

var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// IsStopWord reports whether w is excluded from keyword extraction.
func IsStopWord(w string) bool {
	_, ok := stopWords[strings.ToLower(w)]
	return ok
}

// ExtractKeywords returns lower-cased keyword counts for text.
// Identifiers are counted whole and by their snake_case and camelCase parts.
func ExtractKeywords(text string) map[string]int {
	counts := make(map[string]int)
	for _, word := range wordRe.FindAllString(text, -1) {
		addKeyword(counts, word)
		parts := SplitIdentifier(word)
		if len(parts) > 1 {
			for _, part := range parts {
				addKeyword(counts, part)
			}
		}
	}
	return counts
}

// KeywordList returns the keys of counts in sorted order.
func KeywordList(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SplitIdentifier splits snake_case and camelCase identifiers into parts.
func SplitIdentifier(ident string) []string {
	var parts []string
	for _, seg := range strings.Split(ident, "_") {
		if seg == "" {
			continue
		}
		runes := []rune(seg)
		start := 0
		for i := 1; i < len(runes); i++ {
			prev, cur := runes[i-1], runes[i]
			lowerToUpper := unicode.IsLower(prev) && unicode.IsUpper(cur)
			acronymEnd := i+1 < len(runes) && unicode.IsUpper(prev) && unicode.IsUpper(cur) && unicode.IsLower(runes[i+1])
			if lowerToUpper || acronymEnd {
				parts = append(parts, string(runes[start:i]))
				start = i
			}
		}
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func addKeyword(counts map[string]int, word string) {
	w := strings.ToLower(word)
	if len([]rune(w)) < minKeywordLength {
		return
	}
	if _, stop := stopWords[w]; stop {
		return
	}
	counts[w]++
}
