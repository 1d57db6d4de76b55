package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
)

// PublishedURLsBlob is the append-only set of source URLs that already
// produced a published article.
const PublishedURLsBlob = "metadata/published-urls.json"

// Index is the in-batch layer: a set of content hashes for the current
// cycle. The empty hash never matches, so items whose hash could not be
// computed are kept.
type Index struct {
	seen map[string]struct{}
}

// NewIndex creates an empty in-batch index.
func NewIndex() *Index {
	return &Index{seen: make(map[string]struct{})}
}

// Seen reports whether the hash was added earlier in this cycle.
func (x *Index) Seen(h string) bool {
	if h == "" {
		return false
	}
	_, ok := x.seen[h]
	return ok
}

// Add records a hash. Empty hashes are ignored.
func (x *Index) Add(h string) {
	if h == "" {
		return
	}
	x.seen[h] = struct{}{}
}

// SameDayFilter drops items whose content hash matches an article already
// processed today. It fails open: any storage or decode error keeps the
// batch unchanged.
type SameDayFilter struct {
	store   blob.Store
	enabled bool
	logger  *slog.Logger
	now     func() time.Time
}

// NewSameDayFilter creates the same-day layer. When enabled is false,
// Apply is a no-op.
func NewSameDayFilter(store blob.Store, enabled bool, logger *slog.Logger) *SameDayFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SameDayFilter{
		store:   store,
		enabled: enabled,
		logger:  logger,
		now:     time.Now,
	}
}

// Apply returns the items whose hash does not collide with any article
// processed today.
func (f *SameDayFilter) Apply(ctx context.Context, items []*entity.StandardItem) []*entity.StandardItem {
	if !f.enabled || len(items) == 0 {
		return items
	}

	seen, err := f.todayHashes(ctx)
	if err != nil {
		f.logger.Warn("same-day dedup unavailable, passing batch through",
			"error", err,
		)
		return items
	}
	if len(seen) == 0 {
		return items
	}

	kept := make([]*entity.StandardItem, 0, len(items))
	for _, item := range items {
		h := HashContent(item.Title, item.Content)
		if _, dup := seen[h]; dup {
			f.logger.Debug("item already processed today",
				"item_id", item.ID,
				"title", item.Title,
			)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// todayHashes collects the content hashes of every article artifact
// written today. Artifacts that recorded their source content hash are
// matched on it; older ones fall back to hashing title plus body.
func (f *SameDayFilter) todayHashes(ctx context.Context) (map[string]struct{}, error) {
	prefix := "articles/" + f.now().UTC().Format("2006-01-02") + "/"
	names, err := f.store.List(ctx, blob.ContainerProcessed, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		data, err := f.store.Download(ctx, blob.ContainerProcessed, name)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", name, err)
		}
		var artifact entity.ArticleArtifact
		if err := json.Unmarshal(data, &artifact); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}

		if artifact.SourceMetadata != nil {
			if h, ok := artifact.SourceMetadata["content_hash"].(string); ok && h != "" {
				seen[h] = struct{}{}
				continue
			}
		}
		if h := HashContent(artifact.Title, artifact.Body()); h != "" {
			seen[h] = struct{}{}
		}
	}
	return seen, nil
}

// PublishedURLFilter drops items whose URL already produced a published
// article on any previous day. Items without a URL pass through. It fails
// open on storage errors.
type PublishedURLFilter struct {
	store   blob.Store
	enabled bool
	logger  *slog.Logger
}

// NewPublishedURLFilter creates the historical URL layer. When enabled is
// false, Apply is a no-op.
func NewPublishedURLFilter(store blob.Store, enabled bool, logger *slog.Logger) *PublishedURLFilter {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishedURLFilter{
		store:   store,
		enabled: enabled,
		logger:  logger,
	}
}

// Apply returns the items whose source_url and url are both absent from
// the published-URL set.
func (f *PublishedURLFilter) Apply(ctx context.Context, items []*entity.StandardItem) []*entity.StandardItem {
	if !f.enabled || len(items) == 0 {
		return items
	}

	published, err := f.load(ctx)
	if err != nil {
		f.logger.Warn("published-url dedup unavailable, passing batch through",
			"error", err,
		)
		return items
	}
	if len(published) == 0 {
		return items
	}

	kept := make([]*entity.StandardItem, 0, len(items))
	for _, item := range items {
		if f.isPublished(published, item) {
			f.logger.Debug("item URL already published",
				"item_id", item.ID,
				"url", item.SourceURL(),
			)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

func (f *PublishedURLFilter) isPublished(published map[string]struct{}, item *entity.StandardItem) bool {
	for _, u := range []string{item.MetaString(entity.MetaSourceURL), item.URL} {
		if u == "" {
			continue
		}
		if _, ok := published[u]; ok {
			return true
		}
	}
	return false
}

// MarkPublished adds urls to the published set and rewrites the blob.
// Unlike Apply, write errors surface to the caller: losing the set would
// re-open old URLs for duplication.
func (f *PublishedURLFilter) MarkPublished(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	published, err := f.load(ctx)
	if err != nil {
		return fmt.Errorf("load published urls: %w", err)
	}

	for _, u := range urls {
		if u != "" {
			published[u] = struct{}{}
		}
	}

	ordered := make([]string, 0, len(published))
	for u := range published {
		ordered = append(ordered, u)
	}
	sort.Strings(ordered)
	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return fmt.Errorf("encode published urls: %w", err)
	}
	if err := f.store.Upload(ctx, blob.ContainerCollected, PublishedURLsBlob, data); err != nil {
		return fmt.Errorf("write %s: %w", PublishedURLsBlob, err)
	}
	return nil
}

// load reads the published-URL set. A missing blob is an empty set.
func (f *PublishedURLFilter) load(ctx context.Context) (map[string]struct{}, error) {
	data, err := f.store.Download(ctx, blob.ContainerCollected, PublishedURLsBlob)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return make(map[string]struct{}), nil
		}
		return nil, fmt.Errorf("download %s: %w", PublishedURLsBlob, err)
	}

	var urls []string
	if err := json.Unmarshal(data, &urls); err != nil {
		return nil, fmt.Errorf("decode %s: %w", PublishedURLsBlob, err)
	}

	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set, nil
}
