package source

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"contentmill/internal/domain/entity"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/resilience/circuitbreaker"
	"contentmill/internal/resilience/retry"
)

// RSSConfig holds the parameters for one feed collection run.
type RSSConfig struct {
	// FeedURLs lists the feeds to pull. The item budget is split evenly
	// across them, each getting at least one slot.
	FeedURLs []string

	// MaxItems is the absolute budget for the whole run.
	MaxItems int
}

func (c *RSSConfig) applyDefaults() {
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
}

// RSSAdapter streams entries from a set of RSS/Atom feeds using gofeed.
// Feed fetches run through retry and a shared circuit breaker.
type RSSAdapter struct {
	config         RSSConfig
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	logger         *slog.Logger
	now            func() time.Time
}

// NewRSSAdapter creates an RSS adapter. A nil client leaves gofeed on its
// default HTTP client.
func NewRSSAdapter(config RSSConfig, client *http.Client, logger *slog.Logger) *RSSAdapter {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &RSSAdapter{
		config:         config,
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.SourceFetchConfig()),
		retryConfig:    retry.SourceFetchConfig(),
		logger:         logger,
		now:            time.Now,
	}
}

func (a *RSSAdapter) Name() string { return string(entity.SourceRSS) }

// Stream fetches one feed at a time, yielding up to the per-feed quota
// from each. A failed feed is logged and skipped.
func (a *RSSAdapter) Stream(ctx context.Context) Iterator {
	quota := quotaPerTarget(a.config.MaxItems, len(a.config.FeedURLs))
	feedIdx := 0

	return newPagedIterator(func(ctx context.Context) ([]*entity.StandardItem, bool, error) {
		for feedIdx < len(a.config.FeedURLs) {
			if err := ctx.Err(); err != nil {
				return nil, true, err
			}

			feedURL := a.config.FeedURLs[feedIdx]
			feedIdx++

			feed, err := a.fetchFeed(ctx, feedURL)
			if err != nil {
				a.logger.Warn("feed fetch failed",
					"feed_url", feedURL,
					"error", err,
				)
				metrics.RecordSourceFetchError(a.Name(), "feed_fetch")
				continue
			}

			limit := quota
			if limit > len(feed.Items) {
				limit = len(feed.Items)
			}
			items := make([]*entity.StandardItem, 0, limit)
			for _, entry := range feed.Items[:limit] {
				items = append(items, standardizeRSS(entry, a.now()))
			}

			if len(items) > 0 {
				return items, feedIdx >= len(a.config.FeedURLs), nil
			}
		}
		return nil, true, nil
	})
}

// fetchFeed retrieves and parses one feed with retry and circuit breaker
// protection.
func (a *RSSAdapter) fetchFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	start := a.now()

	var feed *gofeed.Feed
	retryErr := retry.WithBackoff(ctx, a.retryConfig, func() error {
		cbResult, err := a.circuitBreaker.Execute(func() (interface{}, error) {
			return a.doFetch(ctx, feedURL)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				a.logger.Warn("feed fetch circuit breaker open, request rejected",
					"feed_url", feedURL,
					"state", a.circuitBreaker.State().String(),
				)
			}
			return err
		}
		feed = cbResult.(*gofeed.Feed)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	metrics.RecordSourceFetch(a.Name(), a.now().Sub(start))
	return feed, nil
}

func (a *RSSAdapter) doFetch(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "contentmill/1.0"
	if a.client != nil {
		fp.Client = a.client
	}
	return fp.ParseURLWithContext(feedURL, ctx)
}
