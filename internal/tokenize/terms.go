package tokenize

import (
	"regexp"
	"strings"
)

var termRegex = regexp.MustCompile(`[\p{L}\p{N}]+`)

// stopWords are common English function words dropped from term lists.
var stopWords = BuildStopWordMap([]string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"has", "have", "he", "her", "his", "i", "in", "is", "it", "its", "of",
	"on", "or", "she", "that", "the", "their", "them", "they", "this", "to",
	"was", "were", "will", "with", "you", "your", "we", "our", "what", "which",
	"who", "how", "do", "does", "did", "not", "no", "so", "if", "than", "then",
})

// Terms returns lowercased alphanumeric terms of text with stop words and
// single-character terms removed. Used by lexical scoring, never by chunking.
func Terms(text string) []string {
	words := termRegex.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if len([]rune(w)) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// IsStopWord reports whether the lowercased word is a stop word.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
