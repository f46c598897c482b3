// Package retrieval ranks document-map content against free-text queries:
// a BM25 index over chunks and a lexical navigator over the section tree,
// definitions and raw blocks.
package retrieval

import (
	"regexp"
	"strings"
)

var tokenRe = regexp.MustCompile(`[A-Za-z0-9]{2,}`)

var stopWords = map[string]bool{
	"what": true, "which": true, "when": true, "where": true, "how": true,
	"the": true, "is": true, "are": true, "does": true, "do": true,
	"for": true, "and": true, "any": true, "date": true,
}

// Tokenize returns the lowercase alphanumeric runs of at least two
// characters in text, in order and with repeats.
func Tokenize(text string) []string {
	raw := tokenRe.FindAllString(text, -1)
	out := make([]string, len(raw))
	for i, t := range raw {
		out[i] = strings.ToLower(t)
	}
	return out
}

// QueryTokens is Tokenize minus question words and other fillers.
func QueryTokens(query string) []string {
	var out []string
	for _, t := range Tokenize(query) {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}
