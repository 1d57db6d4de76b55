package markdown

import (
	"regexp"
	"strings"
)

var (
	inlineURLs = regexp.MustCompile(`https?://\S+`)
	spaceRuns  = regexp.MustCompile(`\s+`)
)

// CleanTitle strips inline URLs and trailing ellipses from a title. Feed
// titles often end in "..." where the source truncated them, and link posts
// carry the target URL inside the headline; neither belongs in front matter.
func CleanTitle(title string) string {
	t := inlineURLs.ReplaceAllString(title, "")
	t = spaceRuns.ReplaceAllString(t, " ")
	t = strings.TrimSpace(t)
	for {
		switch {
		case strings.HasSuffix(t, "..."):
			t = strings.TrimSpace(strings.TrimSuffix(t, "..."))
		case strings.HasSuffix(t, "…"):
			t = strings.TrimSpace(strings.TrimSuffix(t, "…"))
		default:
			return t
		}
	}
}
