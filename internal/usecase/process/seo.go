package process

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// seoTitleMaxRunes caps the seo_title field; longer titles are cut and
	// suffixed with a single ellipsis rune so the total stays at the cap.
	seoTitleMaxRunes = 60

	// slugMaxRunes keeps slugs short enough for blob names and URLs.
	slugMaxRunes = 80

	isoDateLen = len("2006-01-02")
)

var (
	apostropheRunes = strings.NewReplacer("'", "", "’", "", "ʼ", "")
	nonSlugRuns     = regexp.MustCompile(`[^a-z0-9]+`)
	unsafeSegment   = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// GenerateSlug converts a title into a URL-safe slug: lowercase, apostrophes
// dropped, every other run of non-alphanumeric characters collapsed to one
// hyphen, leading and trailing hyphens trimmed. The result is stable under
// re-application. Returns "" when nothing survives (for example a title with
// no ASCII letters or digits); callers fall back to another identifier.
func GenerateSlug(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = apostropheRunes.Replace(s)
	s = nonSlugRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if utf8.RuneCountInString(s) > slugMaxRunes {
		runes := []rune(s)
		s = strings.Trim(string(runes[:slugMaxRunes]), "-")
	}
	return s
}

// GenerateSEOTitle returns the title unchanged when it fits the 60-rune cap,
// otherwise the first 59 runes with an ellipsis appended.
func GenerateSEOTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= seoTitleMaxRunes {
		return title
	}
	cut := strings.TrimRight(string(runes[:seoTitleMaxRunes-1]), " ")
	return cut + "…"
}

// DatePart extracts the YYYY-MM-DD prefix of an ISO-8601 timestamp. Anything
// after the date, offsets and fractional seconds included, is ignored.
func DatePart(published string) (string, error) {
	s := strings.TrimSpace(published)
	if len(s) < isoDateLen {
		return "", fmt.Errorf("published date %q is too short", published)
	}
	d := s[:isoDateLen]
	if _, err := time.Parse("2006-01-02", d); err != nil {
		return "", fmt.Errorf("published date %q: %w", published, err)
	}
	return d, nil
}

// CompactDate is DatePart without separators (YYYYMMDD), the form used in
// article ids and filenames.
func CompactDate(published string) (string, error) {
	d, err := DatePart(published)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(d, "-", ""), nil
}

// ArticleID builds the stable article id "YYYYMMDD-slug".
func ArticleID(published, slug string) (string, error) {
	cd, err := CompactDate(published)
	if err != nil {
		return "", err
	}
	return cd + "-" + slug, nil
}

// URLPath returns the site path "/YYYY/MM/slug" for an article.
func URLPath(published, slug string) (string, error) {
	d, err := DatePart(published)
	if err != nil {
		return "", err
	}
	return "/" + d[:4] + "/" + d[5:7] + "/" + slug, nil
}

// Filename returns "YYYYMMDD-slug.ext"; ext is passed without the dot.
func Filename(published, slug, ext string) (string, error) {
	cd, err := CompactDate(published)
	if err != nil {
		return "", err
	}
	return cd + "-" + slug + "." + ext, nil
}

// ArticlePath returns the processed-content blob path of an artifact:
// articles/YYYY-MM-DD/{slug}.json. The same date and slug always map to the
// same path, which makes artifact writes idempotent.
func ArticlePath(published, slug string) (string, error) {
	d, err := DatePart(published)
	if err != nil {
		return "", err
	}
	return "articles/" + d + "/" + slug + ".json", nil
}

// MarkdownPath returns the markdown-content blob path of an article, derived
// from the same date and slug as ArticlePath.
func MarkdownPath(published, slug string) (string, error) {
	d, err := DatePart(published)
	if err != nil {
		return "", err
	}
	return "articles/" + d + "/" + slug + ".md", nil
}

// TopicStatePath returns the processed-content blob path of a topic's state
// record. Topic ids may contain characters that are unsafe in blob names
// (RSS guids are often URLs), so the id is sanitized first.
func TopicStatePath(topicID string) string {
	return "topics/" + sanitizeSegment(topicID) + ".json"
}

func sanitizeSegment(s string) string {
	out := unsafeSegment.ReplaceAllString(s, "-")
	out = strings.Trim(out, "-.")
	if out == "" {
		return "unknown"
	}
	if len(out) > 128 {
		out = strings.Trim(out[:128], "-.")
	}
	return out
}
