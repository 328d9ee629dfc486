package search

import (
	"strings"
)

// Highlight markers. They are private-use code points so they cannot collide
// with indexed text.
const (
	PreTag  = "\uE000"
	PostTag = "\uE001"
)

var (
	preRune  = []rune(PreTag)[0]
	postRune = []rune(PostTag)[0]
)

// RecoverOffsets strips the markers from highlighted and returns the original
// text with the marked ranges as rune offsets into it. The character tokenizer
// marks each rune on its own, so adjacent marks are merged back into phrase
// hits of at most phraseLen runes. A phraseLen below one merges every run of
// adjacent marks.
func RecoverOffsets(highlighted string, phraseLen int) (string, []Offset) {
	var (
		plain   strings.Builder
		offsets []Offset
		pos     int
		start   = -1
	)

	for _, r := range highlighted {
		switch r {
		case preRune:
			if start < 0 {
				start = pos
			}
		case postRune:
			if start >= 0 {
				offsets = appendMerged(offsets, Offset{start, pos}, phraseLen)
				start = -1
			}
		default:
			plain.WriteRune(r)
			pos++
		}
	}
	return plain.String(), offsets
}

func appendMerged(offsets []Offset, o Offset, phraseLen int) []Offset {
	if o[0] == o[1] {
		return offsets
	}
	if n := len(offsets); n > 0 && offsets[n-1][1] == o[0] &&
		(phraseLen < 1 || o[1]-offsets[n-1][0] <= phraseLen) {
		offsets[n-1][1] = o[1]
		return offsets
	}
	return append(offsets, o)
}

// Mark inserts markers around each range of text. It is the inverse of
// RecoverOffsets for sorted offsets that do not touch.
func Mark(text string, offsets []Offset) string {
	runes := []rune(text)
	var b strings.Builder
	next := 0
	for _, o := range offsets {
		b.WriteString(string(runes[next:o[0]]))
		b.WriteString(PreTag)
		b.WriteString(string(runes[o[0]:o[1]]))
		b.WriteString(PostTag)
		next = o[1]
	}
	b.WriteString(string(runes[next:]))
	return b.String()
}
