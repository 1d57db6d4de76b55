package collect_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/source"
	"contentmill/internal/usecase/collect"
	"contentmill/internal/usecase/dedup"
)

const readableBody = "Readable sentences about software engineering and build systems " +
	"written plainly enough to clear the markup ratio check. "

// stubAdapter replays a fixed item slice, then ends its stream or fails
// with err.
type stubAdapter struct {
	name  string
	items []*entity.StandardItem
	err   error
}

func (a *stubAdapter) Name() string { return a.name }

func (a *stubAdapter) Stream(ctx context.Context) source.Iterator {
	items := make([]*entity.StandardItem, len(a.items))
	copy(items, a.items)
	return &stubIterator{items: items, err: a.err}
}

type stubIterator struct {
	items []*entity.StandardItem
	err   error
}

func (it *stubIterator) Next(ctx context.Context) (*entity.StandardItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(it.items) == 0 {
		if it.err != nil {
			return nil, it.err
		}
		return nil, source.ErrEnd
	}
	item := it.items[0]
	it.items = it.items[1:]
	return item, nil
}

// stubFetcher records requested URLs and returns a fixed body.
type stubFetcher struct {
	mu      sync.Mutex
	calls   []string
	content string
	err     error
}

func (f *stubFetcher) FetchContent(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

func (f *stubFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func goodItem(id, title string) *entity.StandardItem {
	return &entity.StandardItem{
		ID:          id,
		Title:       title,
		Content:     strings.Repeat(readableBody, 5),
		Source:      entity.SourceReddit,
		URL:         "https://example.com/post/" + id,
		CollectedAt: time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC),
		Metadata: map[string]any{
			entity.MetaSubreddit: "golang",
			entity.MetaScore:     42,
			entity.MetaComments:  7,
			entity.MetaAuthor:    "tester",
			entity.MetaSourceURL: "https://reddit.example/r/golang/comments/" + id,
		},
	}
}

type fixture struct {
	blobs      *blob.Memory
	processing *queue.Memory
	svc        *collect.Service
}

func newFixture(adapters []source.Adapter, fetcher collect.ContentFetcher, cfg collect.ServiceConfig) *fixture {
	f := &fixture{
		blobs:      blob.NewMemory(),
		processing: queue.NewMemory(queue.QueueProcessingRequests),
	}
	f.svc = collect.NewService(adapters, fetcher, f.blobs, f.processing, cfg)
	return f
}

func (f *fixture) receiveTopics(t *testing.T, max int) []*entity.TopicMessage {
	t.Helper()
	deliveries, err := f.processing.Receive(context.Background(), max, time.Minute)
	require.NoError(t, err)

	msgs := make([]*entity.TopicMessage, 0, len(deliveries))
	for _, d := range deliveries {
		require.Equal(t, entity.OpProcessTopic, d.Envelope.Operation)
		require.Equal(t, collect.ServiceName, d.Envelope.ServiceName)
		var msg entity.TopicMessage
		require.NoError(t, d.Envelope.DecodePayload(&msg))
		require.NoError(t, msg.Validate())
		require.Equal(t, msg.CorrelationID(), d.Envelope.CorrelationID)
		msgs = append(msgs, &msg)
	}
	return msgs
}

func TestRunCycleHappyPath(t *testing.T) {
	adapters := []source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			goodItem("r1", "Go Runtime Scheduler Internals"),
			goodItem("r2", "Postgres Vacuum Tuning Notes"),
		}},
		&stubAdapter{name: "rss", items: []*entity.StandardItem{
			func() *entity.StandardItem {
				item := goodItem("rss1", "Kernel Bypass Networking Primer")
				item.Source = entity.SourceRSS
				item.Metadata = map[string]any{entity.MetaSourceURL: "https://blog.example/bypass"}
				return item
			}(),
		}},
	}
	f := newFixture(adapters, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, int64(3), stats.Collected)
	assert.Equal(t, int64(3), stats.Published)
	assert.Zero(t, stats.RejectedQuality)
	assert.Zero(t, stats.RejectedDedup)
	assert.Equal(t, stats.Collected, stats.Published+stats.RejectedQuality+stats.RejectedDedup)
	assert.True(t, strings.HasPrefix(stats.CollectionID, "collection_"))
	assert.True(t, strings.HasPrefix(stats.CollectionBlob, "collections/"))
	assert.True(t, strings.HasSuffix(stats.CollectionBlob, stats.CollectionID+".json"))

	data, err := f.blobs.Download(context.Background(), blob.ContainerCollected, stats.CollectionBlob)
	require.NoError(t, err)
	var collected entity.CollectedContent
	require.NoError(t, json.Unmarshal(data, &collected))
	assert.Equal(t, stats.CollectionID, collected.CollectionID)
	assert.Len(t, collected.Items, 3)

	msgs := f.receiveTopics(t, 10)
	require.Len(t, msgs, 3)

	var ids []string
	for _, msg := range msgs {
		ids = append(ids, msg.TopicID)
		assert.Equal(t, stats.CollectionID, msg.CollectionID)
		assert.Equal(t, stats.CollectionBlob, msg.CollectionBlob)
		assert.NotEmpty(t, msg.ContentHash)
		assert.Greater(t, msg.PriorityScore, 0.6)
	}
	assert.ElementsMatch(t, []string{"r1", "r2", "rss1"}, ids)

	for _, msg := range msgs {
		if msg.TopicID != "r1" {
			continue
		}
		assert.Equal(t, "golang", msg.Subreddit)
		assert.Equal(t, "https://reddit.example/r/golang/comments/r1", msg.URL)
		assert.Equal(t, 42, msg.Upvotes, "reddit score must surface as upvotes")
		assert.Equal(t, 7, msg.Comments)
		assert.Equal(t, "tester", msg.Author)
	}
}

// orderCheckQueue fails the test if a message is sent before the
// collection blob contains the corresponding item.
type orderCheckQueue struct {
	*queue.Memory
	blobs blob.Store
	t     *testing.T
}

func (q *orderCheckQueue) Send(ctx context.Context, env *queue.Envelope) error {
	var msg entity.TopicMessage
	require.NoError(q.t, env.DecodePayload(&msg))

	data, err := q.blobs.Download(ctx, blob.ContainerCollected, msg.CollectionBlob)
	require.NoError(q.t, err, "collection blob must exist before the send")

	var collected entity.CollectedContent
	require.NoError(q.t, json.Unmarshal(data, &collected))
	found := false
	for _, item := range collected.Items {
		if item.ID == msg.TopicID {
			found = true
			break
		}
	}
	require.True(q.t, found, "blob must already contain item %s", msg.TopicID)
	return q.Memory.Send(ctx, env)
}

func TestRunCycleWritesBlobBeforeEachSend(t *testing.T) {
	adapters := []source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			goodItem("r1", "Go Runtime Scheduler Internals"),
			goodItem("r2", "Postgres Vacuum Tuning Notes"),
			goodItem("r3", "Object Storage Consistency Models"),
		}},
	}
	blobs := blob.NewMemory()
	checking := &orderCheckQueue{
		Memory: queue.NewMemory(queue.QueueProcessingRequests),
		blobs:  blobs,
		t:      t,
	}
	svc := collect.NewService(adapters, nil, blobs, checking, collect.ServiceConfig{})

	stats, err := svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Published)
	assert.Equal(t, 3, checking.Len())
}

func TestRunCycleSuppressesInBatchDuplicates(t *testing.T) {
	first := goodItem("a1", "Go Runtime Scheduler Internals")
	second := goodItem("a2", "Go Runtime Scheduler Internals") // same title and body
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{first, second}},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Collected)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(1), stats.RejectedDedup)
	assert.Equal(t, stats.Collected, stats.Published+stats.RejectedQuality+stats.RejectedDedup)

	msgs := f.receiveTopics(t, 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "a1", msgs[0].TopicID, "first occurrence wins")

	data, err := f.blobs.Download(context.Background(), blob.ContainerCollected, stats.CollectionBlob)
	require.NoError(t, err)
	var collected entity.CollectedContent
	require.NoError(t, json.Unmarshal(data, &collected))
	assert.Len(t, collected.Items, 1)
}

func TestRunCycleSameDayDedup(t *testing.T) {
	item := goodItem("r1", "Go Runtime Scheduler Internals")
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{item}},
	}, nil, collect.ServiceConfig{SameDayDedup: true})

	// An artifact processed earlier today carries the same content hash.
	artifact := entity.ArticleArtifact{
		Title:         "Go Runtime Scheduler Internals, Revisited",
		Slug:          "go-runtime-scheduler-internals-revisited",
		PublishedDate: time.Now().UTC().Format(time.RFC3339),
		Content:       "existing article",
		SourceMetadata: map[string]any{
			"content_hash": dedup.HashContent(item.Title, item.Content),
		},
	}
	data, err := json.Marshal(artifact)
	require.NoError(t, err)
	prefix := "articles/" + time.Now().UTC().Format("2006-01-02") + "/"
	require.NoError(t, f.blobs.Upload(context.Background(), blob.ContainerProcessed, prefix+"existing.json", data))

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Published)
	assert.Equal(t, int64(1), stats.RejectedDedup)
	assert.Equal(t, stats.Collected, stats.Published+stats.RejectedQuality+stats.RejectedDedup)
	assert.Zero(t, f.processing.Len())
}

func TestRunCyclePublishedURLDedup(t *testing.T) {
	item := goodItem("r1", "Go Runtime Scheduler Internals")
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{item}},
	}, nil, collect.ServiceConfig{PublishedURLDedup: true})

	urls, err := json.Marshal([]string{"https://reddit.example/r/golang/comments/r1"})
	require.NoError(t, err)
	require.NoError(t, f.blobs.Upload(context.Background(), blob.ContainerCollected, dedup.PublishedURLsBlob, urls))

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Published)
	assert.Equal(t, int64(1), stats.RejectedDedup)
	assert.Zero(t, f.processing.Len())
}

func TestRunCycleRecordsPublishedURLs(t *testing.T) {
	adapters := func() []source.Adapter {
		return []source.Adapter{
			&stubAdapter{name: "reddit", items: []*entity.StandardItem{
				goodItem("r1", "Go Runtime Scheduler Internals"),
			}},
		}
	}
	f := newFixture(adapters(), nil, collect.ServiceConfig{PublishedURLDedup: true})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Published)

	data, err := f.blobs.Download(context.Background(), blob.ContainerCollected, dedup.PublishedURLsBlob)
	require.NoError(t, err, "a completed cycle must persist its published URLs")
	var urls []string
	require.NoError(t, json.Unmarshal(data, &urls))
	assert.Contains(t, urls, "https://reddit.example/r/golang/comments/r1")
	assert.Contains(t, urls, "https://example.com/post/r1")

	// A later cycle sees the same item again and drops it on its URL.
	second := collect.NewService(adapters(), nil, f.blobs, f.processing, collect.ServiceConfig{PublishedURLDedup: true})
	stats, err = second.RunCycle(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Published)
	assert.Equal(t, int64(1), stats.RejectedDedup)
	assert.Equal(t, 1, f.processing.Len(), "only the first cycle's message is queued")
}

func TestRunCycleRejectsPaywalledItem(t *testing.T) {
	paywalled := goodItem("p1", "Exclusive Earnings Deep Analysis")
	paywalled.URL = "https://www.wsj.com/articles/earnings"
	paywalled.Metadata[entity.MetaSourceURL] = "https://www.wsj.com/articles/earnings"

	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			paywalled,
			goodItem("r2", "Postgres Vacuum Tuning Notes"),
		}},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Collected)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(1), stats.RejectedQuality)
	assert.Equal(t, stats.Collected, stats.Published+stats.RejectedQuality+stats.RejectedDedup)

	msgs := f.receiveTopics(t, 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r2", msgs[0].TopicID)
}

func TestRunCycleRejectsThinContentWithoutFetcher(t *testing.T) {
	thin := goodItem("t1", "Interesting Link Post Headline")
	thin.Content = "Link: https://example.com/article"

	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{thin}},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Collected)
	assert.Zero(t, stats.Published)
	assert.Equal(t, int64(1), stats.RejectedQuality)
	assert.Zero(t, stats.Enhanced)
}

func TestRunCycleEnhancesThinItems(t *testing.T) {
	thin := goodItem("t1", "Interesting Link Post Headline")
	thin.Content = "Link: https://example.com/post/t1"

	fetcher := &stubFetcher{content: strings.Repeat(readableBody, 6)}
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{thin}},
	}, fetcher, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Enhanced)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, []string{"https://example.com/post/t1"}, fetcher.requested(),
		"enhancement must fetch the canonical link, not the discussion page")

	// The blob carries the upgraded body.
	data, err := f.blobs.Download(context.Background(), blob.ContainerCollected, stats.CollectionBlob)
	require.NoError(t, err)
	var collected entity.CollectedContent
	require.NoError(t, json.Unmarshal(data, &collected))
	require.Len(t, collected.Items, 1)
	assert.Contains(t, collected.Items[0].Content, "Readable sentences")
}

func TestRunCycleEnhanceFailureKeepsOriginalBody(t *testing.T) {
	thin := goodItem("t1", "Interesting Link Post Headline")
	thin.Content = "Link: https://example.com/post/t1"

	fetcher := &stubFetcher{err: errors.New("upstream 503")}
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{thin}},
	}, fetcher, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Zero(t, stats.Enhanced)
	assert.Zero(t, stats.Published)
	assert.Equal(t, int64(1), stats.RejectedQuality, "unenhanced link body fails the length check")
}

func TestRunCycleDiversityCap(t *testing.T) {
	items := []*entity.StandardItem{
		goodItem("r1", "Go Runtime Scheduler Internals"),
		goodItem("r2", "Postgres Vacuum Tuning Notes"),
		goodItem("r3", "Object Storage Consistency Models"),
		goodItem("r4", "Container Image Layer Caching"),
	}
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: items},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Collected)
	assert.Equal(t, int64(3), stats.Published, "one source tag may publish at most three items")
	assert.Equal(t, int64(1), stats.RejectedQuality)
	assert.Equal(t, stats.Collected, stats.Published+stats.RejectedQuality+stats.RejectedDedup)
}

func TestRunCycleHonorsMaxItems(t *testing.T) {
	items := []*entity.StandardItem{
		goodItem("r1", "Go Runtime Scheduler Internals"),
		goodItem("r2", "Postgres Vacuum Tuning Notes"),
		goodItem("r3", "Object Storage Consistency Models"),
	}
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: items},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), &entity.CollectionRequest{MaxItems: 2})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Collected)
	assert.Equal(t, int64(2), stats.Published)
}

func TestRunCycleFiltersRequestedSources(t *testing.T) {
	rssItem := goodItem("rss1", "Kernel Bypass Networking Primer")
	rssItem.Source = entity.SourceRSS

	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			goodItem("r1", "Go Runtime Scheduler Internals"),
		}},
		&stubAdapter{name: "rss", items: []*entity.StandardItem{rssItem}},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), &entity.CollectionRequest{
		Sources: []string{"rss", "telegraph"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Sources)
	assert.Equal(t, int64(1), stats.Collected)

	msgs := f.receiveTopics(t, 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rss1", msgs[0].TopicID)
}

func TestRunCycleContinuesPastFailingAdapter(t *testing.T) {
	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", err: errors.New("listing fetch failed")},
		&stubAdapter{name: "rss", items: []*entity.StandardItem{
			func() *entity.StandardItem {
				item := goodItem("rss1", "Kernel Bypass Networking Primer")
				item.Source = entity.SourceRSS
				return item
			}(),
		}},
	}, nil, collect.ServiceConfig{})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Collected)
	assert.Equal(t, int64(1), stats.Published)
}

func TestRunCycleStrictModeRelevance(t *testing.T) {
	offtopic := goodItem("o1", "Weekend Cooking Stories Thread")
	offtopic.Content = strings.Repeat("A long narrative about weekend cooking and family recipes shared around town. ", 7)

	f := newFixture([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			goodItem("r1", "Go Runtime Scheduler Internals"),
			offtopic,
		}},
	}, nil, collect.ServiceConfig{Strict: true})

	stats, err := f.svc.RunCycle(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, int64(1), stats.RejectedQuality)

	msgs := f.receiveTopics(t, 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, "r1", msgs[0].TopicID)
}

func TestHandleMessage(t *testing.T) {
	deliveryFor := func(t *testing.T, operation string, payload any) *queue.Delivery {
		t.Helper()
		env, err := queue.NewEnvelope(operation, "test-orchestrator", "corr-1", payload)
		require.NoError(t, err)
		return &queue.Delivery{
			Envelope:     env,
			Queue:        queue.QueueCollectionRequests,
			ID:           "d-1",
			DequeueCount: 1,
		}
	}

	t.Run("collect_content runs a cycle", func(t *testing.T) {
		f := newFixture([]source.Adapter{
			&stubAdapter{name: "reddit", items: []*entity.StandardItem{
				goodItem("r1", "Go Runtime Scheduler Internals"),
			}},
		}, nil, collect.ServiceConfig{})

		disp, err := f.svc.HandleMessage(context.Background(), deliveryFor(t, entity.OpCollectContent, &entity.CollectionRequest{}))
		require.NoError(t, err)
		assert.Equal(t, queue.Done, disp)
		assert.Equal(t, 1, f.processing.Len())
	})

	t.Run("unknown operation is dead-lettered", func(t *testing.T) {
		f := newFixture(nil, nil, collect.ServiceConfig{})

		disp, err := f.svc.HandleMessage(context.Background(), deliveryFor(t, "collect_everything", nil))
		require.Error(t, err)
		assert.Equal(t, queue.Dead, disp)
	})

	t.Run("garbage payload is dead-lettered", func(t *testing.T) {
		f := newFixture(nil, nil, collect.ServiceConfig{})

		d := deliveryFor(t, entity.OpCollectContent, nil)
		d.Envelope.Payload = json.RawMessage(`{"max_items": "plenty"}`)
		disp, err := f.svc.HandleMessage(context.Background(), d)
		require.Error(t, err)
		assert.Equal(t, queue.Dead, disp)
	})

	t.Run("cycle failure leaves delivery in flight", func(t *testing.T) {
		blobs := blob.NewMemory()
		failing := &sendFailQueue{Memory: queue.NewMemory(queue.QueueProcessingRequests)}
		svc := collect.NewService([]source.Adapter{
			&stubAdapter{name: "reddit", items: []*entity.StandardItem{
				goodItem("r1", "Go Runtime Scheduler Internals"),
			}},
		}, nil, blobs, failing, collect.ServiceConfig{})

		disp, err := svc.HandleMessage(context.Background(), deliveryFor(t, entity.OpCollectContent, &entity.CollectionRequest{}))
		require.Error(t, err)
		assert.Equal(t, queue.Leave, disp)
	})
}

// sendFailQueue rejects every send so publish-stage failures can be driven.
type sendFailQueue struct {
	*queue.Memory
}

func (q *sendFailQueue) Send(ctx context.Context, env *queue.Envelope) error {
	return fmt.Errorf("queue unavailable")
}

func TestRunCycleAbortsWhenQueueUnavailable(t *testing.T) {
	blobs := blob.NewMemory()
	failing := &sendFailQueue{Memory: queue.NewMemory(queue.QueueProcessingRequests)}
	svc := collect.NewService([]source.Adapter{
		&stubAdapter{name: "reddit", items: []*entity.StandardItem{
			goodItem("r1", "Go Runtime Scheduler Internals"),
			goodItem("r2", "Postgres Vacuum Tuning Notes"),
		}},
	}, nil, blobs, failing, collect.ServiceConfig{})

	stats, err := svc.RunCycle(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue topic")
	assert.Zero(t, stats.Published)
}
