package dedup_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"contentmill/internal/usecase/dedup"
)

func TestHashContentIsStable(t *testing.T) {
	a := dedup.HashContent("Understanding Python Async", "Python's async model explained.")
	b := dedup.HashContent("Understanding Python Async", "Python's async model explained.")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Equal(t, strings.ToLower(a), a, "hash must be lowercase hex")
}

func TestHashContentTrimsInputs(t *testing.T) {
	a := dedup.HashContent("  Title  ", "\n body \t")
	b := dedup.HashContent("Title", "body")
	assert.Equal(t, a, b)
}

func TestHashContentUsesFirst500Runes(t *testing.T) {
	prefix := strings.Repeat("a", 500)
	a := dedup.HashContent("T", prefix+"tail one")
	b := dedup.HashContent("T", prefix+"completely different tail")
	assert.Equal(t, a, b, "content beyond 500 runes must not affect the hash")

	c := dedup.HashContent("T", strings.Repeat("a", 499)+"X")
	assert.NotEqual(t, a, c, "content inside the first 500 runes must affect the hash")
}

func TestHashContentDistinguishesTitles(t *testing.T) {
	a := dedup.HashContent("Title A", "same body")
	b := dedup.HashContent("Title B", "same body")
	assert.NotEqual(t, a, b)
}

func TestHashContentAny(t *testing.T) {
	tests := []struct {
		name    string
		title   any
		content any
		want    string
	}{
		{name: "both strings", title: "T", content: "c", want: dedup.HashContent("T", "c")},
		{name: "empty title still hashes", title: "", content: "c", want: dedup.HashContent("", "c")},
		{name: "empty content still hashes", title: "T", content: "", want: dedup.HashContent("T", "")},
		{name: "int title", title: 42, content: "c", want: ""},
		{name: "nil content", title: "T", content: nil, want: ""},
		{name: "map content", title: "T", content: map[string]any{}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dedup.HashContentAny(tt.title, tt.content))
		})
	}
}

func TestIndex(t *testing.T) {
	idx := dedup.NewIndex()

	h := dedup.HashContent("T", "c")
	assert.False(t, idx.Seen(h))

	idx.Add(h)
	assert.True(t, idx.Seen(h))
}

func TestIndexEmptyHashNeverMatches(t *testing.T) {
	idx := dedup.NewIndex()
	idx.Add("")
	assert.False(t, idx.Seen(""), "empty hash must never match")
}
