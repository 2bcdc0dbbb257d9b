// Package alias implements the Alias Registry and its discovery/decay
// worker: bidirectional term relations learned from the
// corpus and conversation turns, used to expand queries at retrieval time.
package alias

import (
	"regexp"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"is": true, "are": true, "to": true, "in": true, "on": true, "for": true,
	"with": true, "at": true, "by": true, "it": true, "this": true, "that": true,
}

var whitespaceRe = regexp.MustCompile(`\s+`)
var acronymRe = regexp.MustCompile(`^[A-Za-z]{2,6}$`)

// Normalize lowercases, collapses whitespace, and trims a candidate term.
func Normalize(term string) string {
	t := strings.ToLower(strings.TrimSpace(term))
	return whitespaceRe.ReplaceAllString(t, " ")
}

// isStopPhrase reports whether every token of the (already normalized)
// phrase is a stop word.
func isStopPhrase(term string) bool {
	tokens := strings.Fields(term)
	if len(tokens) == 0 {
		return true
	}
	for _, t := range tokens {
		if !stopWords[t] {
			return false
		}
	}
	return true
}

// ValidEndpoint reports whether a normalized term qualifies as an alias
// endpoint: at least 2 tokens, or a 2-6 letter acronym, and not
// stop-word-only.
func ValidEndpoint(term string) bool {
	if term == "" || isStopPhrase(term) {
		return false
	}
	if acronymRe.MatchString(strings.ReplaceAll(term, " ", "")) && !strings.Contains(term, " ") {
		return true
	}
	return len(strings.Fields(term)) >= 2
}
