package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Provider = (*OpenAI)(nil)
	_ Provider = (*Anthropic)(nil)
	_ Provider = (*Noop)(nil)
)

func TestNoopGenerateIsDeterministic(t *testing.T) {
	p := NewNoop()
	req := &Request{Prompt: "Write about Go schedulers."}

	first, err := p.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "noop", first.Model)
	assert.Contains(t, first.Text, "# Generated Article")
	assert.Contains(t, first.Text, "Go schedulers")
	assert.Positive(t, first.InputTokens)
	assert.Positive(t, first.OutputTokens)
}

func TestNoopGenerateTruncatesLongPrompts(t *testing.T) {
	p := NewNoop()
	long := strings.Repeat("x", 600)

	resp, err := p.Generate(context.Background(), &Request{Prompt: long})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(resp.Text, "..."))
	assert.Less(t, len(resp.Text), len(long))
}

func TestNoopGenerateEmptyPrompt(t *testing.T) {
	p := NewNoop()

	_, err := p.Generate(context.Background(), &Request{Prompt: "   "})
	assert.Error(t, err)

	_, err = p.Generate(context.Background(), nil)
	assert.Error(t, err)
}

func TestTruncatePrompt(t *testing.T) {
	short, truncated := truncatePrompt("hello")
	assert.Equal(t, "hello", short)
	assert.False(t, truncated)

	long := strings.Repeat("é", maxPromptRunes+100)
	cut, truncated := truncatePrompt(long)
	assert.True(t, truncated)
	assert.Equal(t, maxPromptRunes, len([]rune(cut))-len([]rune("\n(input truncated)")))
}
