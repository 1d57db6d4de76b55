package llm

import (
	"context"
	"fmt"
	"strings"
)

// Noop is a provider that returns a deterministic canned article without
// calling any API. Useful for tests and offline pipeline runs.
type Noop struct{}

// NewNoop creates a new Noop provider.
func NewNoop() *Noop {
	return &Noop{}
}

// Name identifies the provider in logs, metrics and attempt records.
func (n *Noop) Name() string { return "noop" }

// Generate echoes the first part of the prompt under a fixed heading.
// Token counts are estimated at four bytes per token so cost accounting
// downstream exercises the same paths as with a real provider.
func (n *Noop) Generate(_ context.Context, req *Request) (*Response, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("noop generate: empty prompt")
	}

	const maxEchoRunes = 500
	body := req.Prompt
	if runes := []rune(body); len(runes) > maxEchoRunes {
		body = string(runes[:maxEchoRunes]) + "..."
	}

	generated := "# Generated Article\n\n" + body

	return &Response{
		Text:         generated,
		Model:        "noop",
		InputTokens:  estimateTokens(req.System + req.Prompt),
		OutputTokens: estimateTokens(generated),
	}, nil
}

// estimateTokens approximates usage at four bytes per token, minimum one.
func estimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 {
		n = 1
	}
	return n
}
