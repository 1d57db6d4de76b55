package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/mmcdole/gofeed"

	"contentmill/internal/domain/entity"
)

// maxDerivedTitleRunes caps titles synthesized from body text.
const maxDerivedTitleRunes = 80

// standardizeReddit converts a raw listing post into a StandardItem. Link
// posts have no selftext, so the body falls back to "Link: <url>" to keep
// the item eligible for the downstream length check.
func standardizeReddit(post redditPost, baseURL string, now time.Time) *entity.StandardItem {
	content := strings.TrimSpace(post.Selftext)
	if content == "" {
		content = linkFallback(post.URL)
	}

	sourceURL := post.URL
	if post.Permalink != "" {
		sourceURL = strings.TrimRight(baseURL, "/") + post.Permalink
	}

	return &entity.StandardItem{
		ID:          post.ID,
		Title:       strings.TrimSpace(post.Title),
		Content:     content,
		Source:      entity.SourceReddit,
		URL:         post.URL,
		CollectedAt: now.UTC(),
		Metadata: map[string]any{
			entity.MetaSubreddit: post.Subreddit,
			entity.MetaScore:     post.Score,
			entity.MetaComments:  post.NumComments,
			entity.MetaAuthor:    post.Author,
			entity.MetaSourceURL: sourceURL,
		},
	}
}

// standardizeMastodon converts a status into a StandardItem. Statuses have
// no title, so one is derived from the spoiler text when present,
// otherwise from the first line of the converted body.
func standardizeMastodon(status mastodonStatus, now time.Time) (*entity.StandardItem, error) {
	text, err := htmltomarkdown.ConvertString(status.Content)
	if err != nil {
		return nil, fmt.Errorf("convert status %s content: %w", status.ID, err)
	}
	text = strings.TrimSpace(text)

	title := strings.TrimSpace(status.SpoilerText)
	if title == "" {
		title = deriveTitle(text)
	}

	return &entity.StandardItem{
		ID:          status.ID,
		Title:       title,
		Content:     text,
		Source:      entity.SourceMastodon,
		URL:         status.URL,
		CollectedAt: now.UTC(),
		Metadata: map[string]any{
			entity.MetaBoosts:     status.ReblogsCount,
			entity.MetaFavourites: status.FavouritesCount,
			entity.MetaAuthor:     status.Account.Acct,
			entity.MetaSourceURL:  status.URL,
		},
	}, nil
}

// standardizeRSS converts a feed entry into a StandardItem. Content falls
// back to the description, then to a link line for headline-only feeds.
// The ID is derived from the GUID (or link) so it stays blob-path safe.
func standardizeRSS(item *gofeed.Item, now time.Time) *entity.StandardItem {
	content := strings.TrimSpace(item.Content)
	if content == "" {
		content = strings.TrimSpace(item.Description)
	}
	if content == "" {
		content = linkFallback(item.Link)
	}

	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}

	author := ""
	if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	return &entity.StandardItem{
		ID:          "rss_" + shortHash(guid),
		Title:       strings.TrimSpace(item.Title),
		Content:     content,
		Source:      entity.SourceRSS,
		URL:         item.Link,
		CollectedAt: now.UTC(),
		Metadata: map[string]any{
			entity.MetaAuthor:    author,
			entity.MetaSourceURL: item.Link,
		},
	}
}

// standardizeWeb converts an extracted article into a StandardItem.
func standardizeWeb(title, text, author, pageURL string, now time.Time) *entity.StandardItem {
	return &entity.StandardItem{
		ID:          "web_" + shortHash(pageURL),
		Title:       strings.TrimSpace(title),
		Content:     strings.TrimSpace(text),
		Source:      entity.SourceWeb,
		URL:         pageURL,
		CollectedAt: now.UTC(),
		Metadata: map[string]any{
			entity.MetaAuthor:    author,
			entity.MetaSourceURL: pageURL,
		},
	}
}

// linkFallback builds the body for link-dominant items.
func linkFallback(url string) string {
	return "Link: " + url
}

// deriveTitle takes the first non-empty line of text, collapses whitespace,
// and truncates to maxDerivedTitleRunes.
func deriveTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.Join(strings.Fields(line), " ")
		runes := []rune(line)
		if len(runes) > maxDerivedTitleRunes {
			return string(runes[:maxDerivedTitleRunes-1]) + "…"
		}
		return line
	}
	return ""
}

// shortHash returns the first 12 hex characters of the SHA-256 of s.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
