package invdx

import (
	"iter"
	"strings"
	"unicode"
)

// tokenSpan is a half-open [start, end) byte range of one token within a
// string already scanned by splitWords.
type tokenSpan struct {
	start, end int
}

// splitWords yields the byte spans of maximal runs of alphanumeric runes in
// s, in left-to-right order. Non-alphanumeric runs act as separators and are
// never yielded; adjacent separators collapse, so there are no empty spans.
func splitWords(s string) iter.Seq[tokenSpan] {
	return func(yield func(tokenSpan) bool) {
		start := -1
		for i, r := range s {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				if start == -1 {
					start = i
				}
				continue
			}
			if start != -1 {
				if !yield(tokenSpan{start, i}) {
					return
				}
				start = -1
			}
		}
		if start != -1 {
			yield(tokenSpan{start, len(s)})
		}
	}
}

// indexedToken is one emitted token together with its 0-based ordinal
// position within the document.
type indexedToken struct {
	word string
	pos  uint32
}

// tokenize lowercases text and splits it into alphanumeric tokens, assigning
// each one the ordinal of its emission (not its byte offset).
func tokenize(text string) []indexedToken {
	lower := strings.ToLower(text)

	var tokens []indexedToken
	var pos uint32
	for span := range splitWords(lower) {
		tokens = append(tokens, indexedToken{word: lower[span.start:span.end], pos: pos})
		pos++
	}
	return tokens
}
