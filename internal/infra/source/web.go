package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/httpx"
	"contentmill/internal/observability/metrics"
)

// WebConfig holds the parameters for scraping one article listing page.
type WebConfig struct {
	// ListingURL is the page that links to individual articles.
	ListingURL string

	// LinkSelector is the CSS selector for article anchors on the
	// listing page. Defaults to "article a".
	LinkSelector string

	// MinTextLength drops extracted articles shorter than this many
	// characters. Defaults to 200.
	MinTextLength int

	// MaxItems is the absolute budget for the whole run.
	MaxItems int

	// RequestsPerMinute paces page fetches. Defaults to 30.
	RequestsPerMinute int
}

func (c *WebConfig) applyDefaults() {
	if c.LinkSelector == "" {
		c.LinkSelector = "article a"
	}
	if c.MinTextLength <= 0 {
		c.MinTextLength = 200
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 20
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
}

// WebAdapter scrapes a listing page for article links and extracts each
// article's readable text.
type WebAdapter struct {
	config  WebConfig
	fetcher *httpx.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewWebAdapter creates a web adapter. A nil client falls back to the
// shared HTTP client.
func NewWebAdapter(config WebConfig, client *http.Client, fetchConfig httpx.FetchConfig, logger *slog.Logger) *WebAdapter {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httpx.NewLimiter("web", config.RequestsPerMinute, 2*time.Second, 0)
	return &WebAdapter{
		config:  config,
		fetcher: httpx.NewFetcher(client, limiter, fetchConfig, logger),
		logger:  logger,
		now:     time.Now,
	}
}

func (a *WebAdapter) Name() string { return string(entity.SourceWeb) }

// Stream fetches the listing page once, then pulls linked articles one at
// a time. Articles that fail to fetch or extract are logged and skipped.
func (a *WebAdapter) Stream(ctx context.Context) Iterator {
	var links []string
	listed := false

	return newPagedIterator(func(ctx context.Context) ([]*entity.StandardItem, bool, error) {
		if !listed {
			listed = true
			var err error
			links, err = a.fetchListing(ctx)
			if err != nil {
				a.logger.Warn("listing page fetch failed",
					"listing_url", a.config.ListingURL,
					"error", err,
				)
				metrics.RecordSourceFetchError(a.Name(), "listing_fetch")
				return nil, true, nil
			}
		}

		for len(links) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, true, err
			}

			link := links[0]
			links = links[1:]

			item, err := a.fetchArticle(ctx, link)
			if err != nil {
				a.logger.Warn("article fetch failed",
					"article_url", link,
					"error", err,
				)
				metrics.RecordSourceFetchError(a.Name(), "article_fetch")
				continue
			}
			if item == nil {
				continue
			}
			return []*entity.StandardItem{item}, len(links) == 0, nil
		}
		return nil, true, nil
	})
}

// fetchListing returns up to MaxItems absolute article URLs from the
// listing page, de-duplicated in document order.
func (a *WebAdapter) fetchListing(ctx context.Context) ([]string, error) {
	start := a.now()

	body, err := a.fetcher.Get(ctx, a.config.ListingURL, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing HTML: %w", err)
	}

	base, err := url.Parse(a.config.ListingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing URL: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(a.config.LinkSelector).Each(func(_ int, sel *goquery.Selection) {
		if len(links) >= a.config.MaxItems {
			return
		}
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs := makeAbsoluteURL(href, base)
		if abs == "" {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})

	metrics.RecordSourceFetch(a.Name(), a.now().Sub(start))
	return links, nil
}

// fetchArticle extracts the readable text of one article. It returns
// (nil, nil) when the article is too short to keep.
func (a *WebAdapter) fetchArticle(ctx context.Context, articleURL string) (*entity.StandardItem, error) {
	body, err := a.fetcher.Get(ctx, articleURL, nil)
	if err != nil {
		return nil, err
	}

	parsed, err := url.Parse(articleURL)
	if err != nil {
		parsed = nil
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return nil, fmt.Errorf("extract article content: %w", err)
	}

	text := article.TextContent
	if text == "" {
		text = article.Content
	}
	text = strings.TrimSpace(text)
	if len(text) < a.config.MinTextLength {
		a.logger.Debug("article below minimum length, skipped",
			"article_url", articleURL,
			"length", len(text),
		)
		return nil, nil
	}

	return standardizeWeb(article.Title, text, article.Byline, articleURL, a.now()), nil
}

// makeAbsoluteURL resolves href against the listing page URL. Only http
// and https targets are kept.
func makeAbsoluteURL(href string, base *url.URL) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
