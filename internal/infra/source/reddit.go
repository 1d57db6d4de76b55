package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/httpx"
	"contentmill/internal/observability/metrics"
)

// RedditConfig holds the parameters for one Reddit collection run.
type RedditConfig struct {
	// BaseURL is the API host. Defaults to the public reddit.com host.
	BaseURL string

	// Subreddits to pull from. The item budget is split evenly across
	// them, each getting at least one slot.
	Subreddits []string

	// Listing is the sort order: hot, new, or top. Defaults to hot.
	Listing string

	// MinScore drops posts below this score before standardization.
	MinScore int

	// MaxItems is the absolute budget for the whole run.
	MaxItems int

	// PageSize is the listing page size. Defaults to 100, the API cap.
	PageSize int

	// RequestsPerMinute paces listing fetches. Defaults to 30, which
	// keeps the base delay at or above two seconds.
	RequestsPerMinute int
}

func (c *RedditConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.reddit.com"
	}
	if c.Listing == "" {
		c.Listing = "hot"
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 30
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
}

// RedditAdapter streams posts from a set of subreddit listings.
type RedditAdapter struct {
	config  RedditConfig
	fetcher *httpx.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewRedditAdapter creates a Reddit adapter. A nil client falls back to
// the shared HTTP client.
func NewRedditAdapter(config RedditConfig, client *http.Client, fetchConfig httpx.FetchConfig, logger *slog.Logger) *RedditAdapter {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httpx.NewLimiter("reddit", config.RequestsPerMinute, 2*time.Second, 0)
	return &RedditAdapter{
		config:  config,
		fetcher: httpx.NewFetcher(client, limiter, fetchConfig, logger),
		logger:  logger,
		now:     time.Now,
	}
}

func (a *RedditAdapter) Name() string { return string(entity.SourceReddit) }

// maxListingPages bounds pagination per subreddit in case the API keeps
// returning a cursor.
const maxListingPages = 20

// Stream iterates the configured subreddits in order, paginating each
// listing until its quota is filled or the listing runs out. A failed page
// fetch is logged and skips to the next subreddit.
func (a *RedditAdapter) Stream(ctx context.Context) Iterator {
	quota := quotaPerTarget(a.config.MaxItems, len(a.config.Subreddits))

	subIdx := 0
	after := ""
	yielded := 0
	pages := 0

	advance := func() {
		subIdx++
		after = ""
		yielded = 0
		pages = 0
	}

	return newPagedIterator(func(ctx context.Context) ([]*entity.StandardItem, bool, error) {
		for subIdx < len(a.config.Subreddits) {
			if err := ctx.Err(); err != nil {
				return nil, true, err
			}

			sub := a.config.Subreddits[subIdx]
			listing, err := a.fetchListing(ctx, sub, after)
			if err != nil {
				a.logger.Warn("subreddit page fetch failed",
					"subreddit", sub,
					"error", err,
				)
				metrics.RecordSourceFetchError(a.Name(), "page_fetch")
				advance()
				continue
			}
			pages++

			items := make([]*entity.StandardItem, 0, len(listing.Data.Children))
			for _, child := range listing.Data.Children {
				if yielded >= quota {
					break
				}
				post := child.Data
				if post.Over18 || post.Stickied || post.Score < a.config.MinScore {
					continue
				}
				items = append(items, standardizeReddit(post, a.config.BaseURL, a.now()))
				yielded++
			}

			if yielded >= quota || listing.Data.After == "" || pages >= maxListingPages {
				advance()
			} else {
				after = listing.Data.After
			}

			if len(items) > 0 {
				return items, subIdx >= len(a.config.Subreddits), nil
			}
		}
		return nil, true, nil
	})
}

func (a *RedditAdapter) fetchListing(ctx context.Context, subreddit, after string) (*redditListing, error) {
	start := a.now()

	endpoint := fmt.Sprintf("%s/r/%s/%s.json", a.config.BaseURL, subreddit, a.config.Listing)
	params := url.Values{}
	params.Set("limit", strconv.Itoa(a.config.PageSize))
	if after != "" {
		params.Set("after", after)
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	body, err := a.fetcher.Get(ctx, endpoint+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("decode r/%s listing: %w", subreddit, err)
	}

	metrics.RecordSourceFetch(a.Name(), a.now().Sub(start))
	return &listing, nil
}

// redditListing mirrors the subset of the listing response the adapter
// reads. Unknown fields are ignored.
type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		After    string        `json:"after"`
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string     `json:"kind"`
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Score       int     `json:"score"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	URL         string  `json:"url"`
	CreatedUTC  float64 `json:"created_utc"`
	Over18      bool    `json:"over_18"`
	Stickied    bool    `json:"stickied"`
	NumComments int     `json:"num_comments"`
}
