package process

import (
	"fmt"
	"strings"

	"contentmill/internal/domain/entity"
)

// systemPrompt frames every generation request. The response must be
// Markdown with a single top-level heading so ParseGenerated can split the
// title from the body.
const systemPrompt = `You are a technology editor for an automated news digest.
Write original, factual articles in clear English based on the material you
are given. Respond in Markdown: start with exactly one '# ' heading holding
the article title, then the article body. Do not invent quotes or figures.`

// BuildPrompt renders the user prompt for one topic from its message
// metadata. Engagement numbers tell the model why the item was selected.
func BuildPrompt(msg *entity.TopicMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a short news article (300-600 words) about the following %s item.\n\n", msg.Source)
	fmt.Fprintf(&b, "Title: %s\n", msg.Title)
	if msg.URL != "" {
		fmt.Fprintf(&b, "Link: %s\n", msg.URL)
	}
	if msg.Subreddit != "" {
		fmt.Fprintf(&b, "Subreddit: r/%s\n", msg.Subreddit)
	}
	if msg.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", msg.Author)
	}
	if msg.Upvotes > 0 {
		fmt.Fprintf(&b, "Upvotes: %d\n", msg.Upvotes)
	}
	if msg.Comments > 0 {
		fmt.Fprintf(&b, "Comments: %d\n", msg.Comments)
	}
	if msg.Boosts > 0 {
		fmt.Fprintf(&b, "Boosts: %d\n", msg.Boosts)
	}
	fmt.Fprintf(&b, "Collected: %s\n", msg.CollectedAt)
	b.WriteString("\nCover what happened, why it matters and what to watch next.")
	return b.String()
}

// ParseGenerated splits a model response into title and body. The title is
// the first '# ' heading; when the response starts with anything else,
// fallbackTitle is used and the whole response becomes the body.
func ParseGenerated(generated, fallbackTitle string) (title, body string) {
	lines := strings.Split(generated, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if after, ok := strings.CutPrefix(trimmed, "# "); ok {
			return strings.TrimSpace(after), strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
		break
	}
	return strings.TrimSpace(fallbackTitle), strings.TrimSpace(generated)
}
