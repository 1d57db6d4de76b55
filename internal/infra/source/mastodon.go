package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/httpx"
	"contentmill/internal/observability/metrics"
)

// MastodonConfig holds the parameters for one timeline collection run.
type MastodonConfig struct {
	// InstanceURL is the instance host, e.g. https://mastodon.social.
	InstanceURL string

	// Timeline is the timeline kind: public or tag/<name>. Defaults to
	// public.
	Timeline string

	// Local restricts the public timeline to local statuses.
	Local bool

	// MinBoosts and MinFavourites drop low-engagement statuses before
	// standardization. A status passes when either threshold is met.
	MinBoosts     int
	MinFavourites int

	// MaxItems is the absolute budget for the whole run.
	MaxItems int

	// PageSize is the timeline page size. Defaults to 40, the API cap.
	PageSize int

	// RequestsPerMinute paces timeline fetches. Defaults to 60, which
	// keeps the base delay at or above one second.
	RequestsPerMinute int
}

func (c *MastodonConfig) applyDefaults() {
	if c.Timeline == "" {
		c.Timeline = "public"
	}
	if c.PageSize <= 0 || c.PageSize > 40 {
		c.PageSize = 40
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.MaxItems <= 0 {
		c.MaxItems = 50
	}
}

// MastodonAdapter streams statuses from one instance timeline.
type MastodonAdapter struct {
	config  MastodonConfig
	fetcher *httpx.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

// NewMastodonAdapter creates a Mastodon adapter. A nil client falls back
// to the shared HTTP client.
func NewMastodonAdapter(config MastodonConfig, client *http.Client, fetchConfig httpx.FetchConfig, logger *slog.Logger) *MastodonAdapter {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	limiter := httpx.NewLimiter("mastodon", config.RequestsPerMinute, time.Second, 0)
	return &MastodonAdapter{
		config:  config,
		fetcher: httpx.NewFetcher(client, limiter, fetchConfig, logger),
		logger:  logger,
		now:     time.Now,
	}
}

func (a *MastodonAdapter) Name() string { return string(entity.SourceMastodon) }

// Stream paginates the timeline backwards with max_id until the item
// budget is filled or the timeline runs out. Replies, sensitive statuses,
// and statuses below both engagement thresholds are dropped before
// standardization. A failed page ends the stream; collected pages before
// it are still delivered.
func (a *MastodonAdapter) Stream(ctx context.Context) Iterator {
	maxID := ""
	yielded := 0
	pages := 0

	return newPagedIterator(func(ctx context.Context) ([]*entity.StandardItem, bool, error) {
		for yielded < a.config.MaxItems && pages < maxListingPages {
			if err := ctx.Err(); err != nil {
				return nil, true, err
			}

			statuses, err := a.fetchTimeline(ctx, maxID)
			if err != nil {
				a.logger.Warn("timeline page fetch failed",
					"instance", a.config.InstanceURL,
					"timeline", a.config.Timeline,
					"error", err,
				)
				metrics.RecordSourceFetchError(a.Name(), "page_fetch")
				return nil, true, nil
			}
			pages++

			if len(statuses) == 0 {
				return nil, true, nil
			}
			maxID = statuses[len(statuses)-1].ID

			items := make([]*entity.StandardItem, 0, len(statuses))
			for _, status := range statuses {
				if yielded >= a.config.MaxItems {
					break
				}
				if !a.keep(status) {
					continue
				}
				item, err := standardizeMastodon(status, a.now())
				if err != nil {
					a.logger.Warn("status standardization failed",
						"status_id", status.ID,
						"error", err,
					)
					continue
				}
				items = append(items, item)
				yielded++
			}

			if len(items) > 0 {
				return items, yielded >= a.config.MaxItems, nil
			}
		}
		return nil, true, nil
	})
}

func (a *MastodonAdapter) keep(status mastodonStatus) bool {
	if status.InReplyToID != nil {
		return false
	}
	if status.Sensitive {
		return false
	}
	return status.ReblogsCount >= a.config.MinBoosts ||
		status.FavouritesCount >= a.config.MinFavourites
}

func (a *MastodonAdapter) fetchTimeline(ctx context.Context, maxID string) ([]mastodonStatus, error) {
	start := a.now()

	endpoint := fmt.Sprintf("%s/api/v1/timelines/%s",
		strings.TrimRight(a.config.InstanceURL, "/"), a.config.Timeline)
	params := url.Values{}
	params.Set("limit", strconv.Itoa(a.config.PageSize))
	if a.config.Local {
		params.Set("local", "true")
	}
	if maxID != "" {
		params.Set("max_id", maxID)
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	body, err := a.fetcher.Get(ctx, endpoint+"?"+params.Encode(), header)
	if err != nil {
		return nil, err
	}

	var statuses []mastodonStatus
	if err := json.Unmarshal(body, &statuses); err != nil {
		return nil, fmt.Errorf("decode %s timeline: %w", a.config.Timeline, err)
	}

	metrics.RecordSourceFetch(a.Name(), a.now().Sub(start))
	return statuses, nil
}

// mastodonStatus mirrors the subset of the status payload the adapter
// reads.
type mastodonStatus struct {
	ID              string  `json:"id"`
	CreatedAt       string  `json:"created_at"`
	InReplyToID     *string `json:"in_reply_to_id"`
	Sensitive       bool    `json:"sensitive"`
	SpoilerText     string  `json:"spoiler_text"`
	URL             string  `json:"url"`
	Content         string  `json:"content"`
	ReblogsCount    int     `json:"reblogs_count"`
	FavouritesCount int     `json:"favourites_count"`
	Account         struct {
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
	} `json:"account"`
}
