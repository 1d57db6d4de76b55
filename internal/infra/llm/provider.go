// Package llm provides article-generation providers backed by hosted
// language-model APIs. It includes adapters for OpenAI and Anthropic with
// circuit breaker and retry wiring, a deterministic noop provider for
// offline operation, and the pricing table used for cost accounting.
package llm

import (
	"context"
)

// Request carries a single generation call. Zero-valued fields fall back
// to the provider's configured defaults.
type Request struct {
	// System is an optional instruction prepended to the conversation.
	System string

	// Prompt is the user message the provider generates from.
	Prompt string

	// Model overrides the configured model when non-empty.
	Model string

	// MaxTokens overrides the configured response cap when positive.
	MaxTokens int
}

// Response is the provider-normalized generation result. Token counts come
// from the provider's usage report and feed the pricing table.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider generates text from a prompt.
type Provider interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// maxPromptRunes bounds prompt size ahead of the provider's own token
// limit so a single runaway item cannot exhaust the context window.
const maxPromptRunes = 30000

// truncatePrompt trims oversized prompts on a rune boundary. The second
// return reports whether truncation happened.
func truncatePrompt(prompt string) (string, bool) {
	runes := []rune(prompt)
	if len(runes) <= maxPromptRunes {
		return prompt, false
	}
	return string(runes[:maxPromptRunes]) + "\n(input truncated)", true
}
