package dedup_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/usecase/dedup"
)

func itemWith(id, title, content, url string) *entity.StandardItem {
	item := &entity.StandardItem{
		ID:          id,
		Title:       title,
		Content:     content,
		Source:      entity.SourceReddit,
		URL:         url,
		CollectedAt: time.Now().UTC(),
	}
	if url != "" {
		item.Metadata = map[string]any{entity.MetaSourceURL: url}
	}
	return item
}

func writeArtifact(t *testing.T, store blob.Store, name string, artifact entity.ArticleArtifact) {
	t.Helper()
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	require.NoError(t, store.Upload(context.Background(), blob.ContainerProcessed, name, data))
}

func todayPrefix() string {
	return "articles/" + time.Now().UTC().Format("2006-01-02") + "/"
}

func TestSameDayFilterDropsStoredContentHash(t *testing.T) {
	store := blob.NewMemory()
	item := itemWith("a", "Understanding Python Async", "Python's async model explained.", "")

	writeArtifact(t, store, todayPrefix()+"understanding-python-async.json", entity.ArticleArtifact{
		Title:   "Deep Dive: Python Async",
		Content: "A full LLM-written article body.",
		SourceMetadata: map[string]any{
			"content_hash": dedup.HashContent(item.Title, item.Content),
		},
	})

	f := dedup.NewSameDayFilter(store, true, nil)
	kept := f.Apply(context.Background(), []*entity.StandardItem{item})
	assert.Empty(t, kept)
}

func TestSameDayFilterFallsBackToTitleAndBody(t *testing.T) {
	store := blob.NewMemory()
	item := itemWith("a", "Understanding Python Async", "Python's async model explained.", "")

	// Artifact written before content_hash was recorded.
	writeArtifact(t, store, todayPrefix()+"understanding-python-async.json", entity.ArticleArtifact{
		Title:   item.Title,
		Content: item.Content,
	})

	f := dedup.NewSameDayFilter(store, true, nil)
	kept := f.Apply(context.Background(), []*entity.StandardItem{item})
	assert.Empty(t, kept)
}

func TestSameDayFilterKeepsNewItems(t *testing.T) {
	store := blob.NewMemory()
	writeArtifact(t, store, todayPrefix()+"other.json", entity.ArticleArtifact{
		Title:   "Other Topic",
		Content: "other body",
		SourceMetadata: map[string]any{
			"content_hash": dedup.HashContent("Other Topic", "other body"),
		},
	})

	item := itemWith("a", "Fresh Topic Today", "never processed before", "")
	f := dedup.NewSameDayFilter(store, true, nil)
	kept := f.Apply(context.Background(), []*entity.StandardItem{item})
	assert.Len(t, kept, 1)
}

func TestSameDayFilterDisabledPassesThrough(t *testing.T) {
	item := itemWith("a", "T", "c", "")
	f := dedup.NewSameDayFilter(blob.NewMemory(), false, nil)
	kept := f.Apply(context.Background(), []*entity.StandardItem{item})
	assert.Len(t, kept, 1)
}

// failingStore errors on every read operation.
type failingStore struct {
	blob.Store
}

func (f *failingStore) List(context.Context, string, string) ([]string, error) {
	return nil, errors.New("storage offline")
}

func (f *failingStore) Download(context.Context, string, string) ([]byte, error) {
	return nil, errors.New("storage offline")
}

func TestSameDayFilterFailsOpen(t *testing.T) {
	item := itemWith("a", "T", "c", "")
	f := dedup.NewSameDayFilter(&failingStore{}, true, nil)
	kept := f.Apply(context.Background(), []*entity.StandardItem{item})
	assert.Len(t, kept, 1, "storage errors must not drop items")
}

func TestPublishedURLFilterRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	f := dedup.NewPublishedURLFilter(store, true, nil)

	oldItem := itemWith("old", "Old Story", "body", "https://example.com/old")
	newItem := itemWith("new", "New Story", "body", "https://example.com/new")

	// Nothing published yet: both pass.
	kept := f.Apply(ctx, []*entity.StandardItem{oldItem, newItem})
	require.Len(t, kept, 2)

	require.NoError(t, f.MarkPublished(ctx, []string{"https://example.com/old"}))

	kept = f.Apply(ctx, []*entity.StandardItem{oldItem, newItem})
	require.Len(t, kept, 1)
	assert.Equal(t, "new", kept[0].ID)
}

func TestPublishedURLFilterMatchesPlainURL(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	f := dedup.NewPublishedURLFilter(store, true, nil)
	require.NoError(t, f.MarkPublished(ctx, []string{"https://example.com/x"}))

	item := itemWith("a", "T", "c", "")
	item.URL = "https://example.com/x"

	kept := f.Apply(ctx, []*entity.StandardItem{item})
	assert.Empty(t, kept)
}

func TestPublishedURLFilterKeepsItemsWithoutURL(t *testing.T) {
	ctx := context.Background()
	f := dedup.NewPublishedURLFilter(blob.NewMemory(), true, nil)
	require.NoError(t, f.MarkPublished(ctx, []string{"https://example.com/x"}))

	item := itemWith("a", "T", "c", "")
	kept := f.Apply(ctx, []*entity.StandardItem{item})
	assert.Len(t, kept, 1)
}

func TestPublishedURLFilterFailsOpenOnCorruptSet(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	require.NoError(t, store.Upload(ctx, blob.ContainerCollected, dedup.PublishedURLsBlob, []byte("{not json")))

	f := dedup.NewPublishedURLFilter(store, true, nil)
	item := itemWith("a", "T", "c", "https://example.com/x")
	kept := f.Apply(ctx, []*entity.StandardItem{item})
	assert.Len(t, kept, 1)
}

func TestPublishedURLFilterMarkPublishedAccumulates(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	f := dedup.NewPublishedURLFilter(store, true, nil)

	require.NoError(t, f.MarkPublished(ctx, []string{"https://a.example.com"}))
	require.NoError(t, f.MarkPublished(ctx, []string{"https://b.example.com", ""}))

	data, err := store.Download(ctx, blob.ContainerCollected, dedup.PublishedURLsBlob)
	require.NoError(t, err)

	var urls []string
	require.NoError(t, json.Unmarshal(data, &urls))
	assert.ElementsMatch(t, []string{"https://a.example.com", "https://b.example.com"}, urls)
}
