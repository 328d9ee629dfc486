package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecoverOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		highlighted string
		phraseLen   int
		wantText    string
		wantOffsets []Offset
	}{
		{
			name:        "no markers",
			highlighted: "alpha",
			wantText:    "alpha",
		},
		{
			name:        "per character marks are merged",
			highlighted: PreTag + "a" + PostTag + PreTag + "l" + PostTag + "pha",
			phraseLen:   2,
			wantText:    "alpha",
			wantOffsets: []Offset{{0, 2}},
		},
		{
			name:        "separate ranges stay separate",
			highlighted: "b" + PreTag + "a" + PostTag + "n" + PreTag + "a" + PostTag,
			wantText:    "bana",
			wantOffsets: []Offset{{1, 2}, {3, 4}},
		},
		{
			name:        "adjacent phrase hits stay separate",
			highlighted: PreTag + "a" + PostTag + PreTag + "l" + PostTag + PreTag + "a" + PostTag + PreTag + "l" + PostTag,
			phraseLen:   2,
			wantText:    "alal",
			wantOffsets: []Offset{{0, 2}, {2, 4}},
		},
		{
			name:        "single rune phrase hits stay separate",
			highlighted: PreTag + "a" + PostTag + PreTag + "a" + PostTag + "b",
			phraseLen:   1,
			wantText:    "aab",
			wantOffsets: []Offset{{0, 1}, {1, 2}},
		},
		{
			name:        "unknown phrase length merges every run",
			highlighted: PreTag + "a" + PostTag + PreTag + "l" + PostTag + PreTag + "a" + PostTag,
			wantText:    "ala",
			wantOffsets: []Offset{{0, 3}},
		},
		{
			name:        "multi character span",
			highlighted: "x" + PreTag + "yz" + PostTag,
			wantText:    "xyz",
			wantOffsets: []Offset{{1, 3}},
		},
		{
			name:        "offsets count runes not bytes",
			highlighted: "日" + PreTag + "本" + PostTag + "語",
			wantText:    "日本語",
			wantOffsets: []Offset{{1, 2}},
		},
		{
			name:        "unterminated marker is dropped",
			highlighted: "ab" + PreTag + "c",
			wantText:    "abc",
		},
		{
			name:        "empty highlight is dropped",
			highlighted: "a" + PreTag + PostTag + "b",
			wantText:    "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			text, offsets := RecoverOffsets(tt.highlighted, tt.phraseLen)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantOffsets, offsets)
		})
	}
}

func TestMarkReversesRecoverOffsets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text    string
		offsets []Offset
	}{
		{"alpha", []Offset{{0, 2}}},
		{"banana", []Offset{{1, 2}, {3, 6}}},
		{"日本語テキスト", []Offset{{0, 1}, {3, 7}}},
		{"plain", nil},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			text, offsets := RecoverOffsets(Mark(tt.text, tt.offsets), 0)
			assert.Equal(t, tt.text, text)
			assert.Equal(t, tt.offsets, offsets)
		})
	}
}
