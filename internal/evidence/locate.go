// Package evidence turns text snippets returned by a model into exact character
// spans of the source document.
package evidence

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spigell/job-preprocessor/internal/model"
)

// Locate returns every non-overlapping, case-insensitive occurrence of snippet in
// source, scanning left to right. Span offsets are code point offsets and span text
// is taken from source, so original casing is preserved. A snippet that never
// occurs (or is blank) yields an empty slice. A source that is not valid UTF-8
// also yields an empty slice, since its code points cannot be sliced back to the
// original bytes.
func Locate(snippet, source string) []model.TextSpan {
	spans := []model.TextSpan{}
	if strings.TrimSpace(snippet) == "" || source == "" || !utf8.ValidString(source) {
		return spans
	}

	src := []rune(source)
	pattern := fold([]rune(snippet))
	if len(pattern) > len(src) {
		return spans
	}
	text := fold(src)
	table := failureTable(pattern)

	// KMP keeps each call linear in len(source) no matter how repetitive the
	// snippet is. After a hit the matcher restarts from scratch at the match end,
	// which is what keeps spans from overlapping.
	matched := 0
	for i := 0; i < len(text); i++ {
		for matched > 0 && text[i] != pattern[matched] {
			matched = table[matched-1]
		}
		if text[i] == pattern[matched] {
			matched++
		}
		if matched == len(pattern) {
			start := i - len(pattern) + 1
			end := i + 1
			spans = append(spans, model.TextSpan{
				Start: start,
				End:   end,
				Text:  string(src[start:end]),
			})
			matched = 0
		}
	}

	return spans
}

// LocateAll runs Locate for each snippet and concatenates the results in snippet
// order. Identical regions found by different snippets are kept as-is.
func LocateAll(snippets []string, source string) []model.TextSpan {
	spans := []model.TextSpan{}
	for _, s := range snippets {
		spans = append(spans, Locate(s, source)...)
	}
	return spans
}

// fold lowercases rune by rune so that folded and original slices share offsets.
func fold(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func failureTable(pattern []rune) []int {
	table := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = table[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		table[i] = k
	}
	return table
}
