// Package collect implements the collection cycle: pull items from every
// source adapter, upgrade thin bodies with a full-page fetch, gate the
// batch for quality, deduplicate against this cycle and earlier ones, and
// fan the survivors out to the processing queue. The collection blob is
// rewritten before each send, so every queued message references a blob
// that already contains its item.
package collect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/source"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/observability/tracing"
	"contentmill/internal/usecase/dedup"
	"contentmill/internal/usecase/review"
)

// ServiceName is stamped on every envelope this service produces.
const ServiceName = "content-collector"

// DefaultMaxItems bounds one cycle when neither the request nor the
// configuration says otherwise.
const DefaultMaxItems = 50

// Rejection labels for drops the review gate does not name itself.
const (
	reasonBelowThreshold = "below_score_threshold"
	reasonDiversityCap   = "diversity_cap"
	reasonDuplicate      = "duplicate"
)

// ContentFetcher upgrades a thin item body by fetching the linked page and
// extracting its readable text.
type ContentFetcher interface {
	FetchContent(ctx context.Context, url string) (string, error)
}

// ServiceConfig carries the collector's knobs. The zero value is usable:
// thresholds and caps fall back to the review package defaults and both
// optional dedup layers stay off.
type ServiceConfig struct {
	// Strict enables the relevance filters of the quality gate.
	Strict bool

	// ScoreThreshold is the minimum quality score an item needs.
	// Defaults to review.DefaultThreshold.
	ScoreThreshold float64

	// PerSourceCap bounds how many items one source tag may publish per
	// cycle. Defaults to review.DefaultPerSourceCap.
	PerSourceCap int

	// MaxItems bounds how many items one cycle pulls across all adapters.
	// A positive CollectionRequest.MaxItems overrides it.
	MaxItems int

	// SameDayDedup enables the filter against articles processed today.
	SameDayDedup bool

	// PublishedURLDedup enables the filter against historically
	// published source URLs.
	PublishedURLDedup bool

	// EnhanceThreshold is the body length in bytes below which an item
	// gets a full-page fetch. Defaults to 300.
	EnhanceThreshold int

	// EnhanceParallelism bounds concurrent enhancement fetches.
	// Defaults to 10.
	EnhanceParallelism int
}

// Service runs collection cycles against a fixed adapter set.
type Service struct {
	Adapters   []source.Adapter
	Fetcher    ContentFetcher // nil disables enhancement
	Blobs      blob.Store
	Processing queue.Queue

	sameDay *dedup.SameDayFilter
	urls    *dedup.PublishedURLFilter
	cfg     ServiceConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the collector. processingQueue receives one process_topic
// message per published item.
func NewService(adapters []source.Adapter, contentFetcher ContentFetcher, blobs blob.Store, processingQueue queue.Queue, cfg ServiceConfig) *Service {
	if cfg.ScoreThreshold <= 0 {
		cfg.ScoreThreshold = review.DefaultThreshold
	}
	if cfg.PerSourceCap <= 0 {
		cfg.PerSourceCap = review.DefaultPerSourceCap
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.EnhanceThreshold <= 0 {
		cfg.EnhanceThreshold = 300
	}
	if cfg.EnhanceParallelism <= 0 {
		cfg.EnhanceParallelism = 10
	}
	logger := slog.Default()
	return &Service{
		Adapters:   adapters,
		Fetcher:    contentFetcher,
		Blobs:      blobs,
		Processing: processingQueue,
		sameDay:    dedup.NewSameDayFilter(blobs, cfg.SameDayDedup, logger),
		urls:       dedup.NewPublishedURLFilter(blobs, cfg.PublishedURLDedup, logger),
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
}

// HandleMessage dispatches one queue delivery. Collection cycles are safe
// to repeat, so cycle failures leave the delivery in flight for redelivery
// instead of dead-lettering it.
func (s *Service) HandleMessage(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	if err := d.Envelope.Validate(); err != nil {
		return queue.Dead, fmt.Errorf("malformed envelope: %w", err)
	}
	if d.Envelope.Operation != entity.OpCollectContent {
		return queue.Dead, fmt.Errorf("unknown operation %q", d.Envelope.Operation)
	}

	var req entity.CollectionRequest
	if len(d.Envelope.Payload) > 0 {
		if err := d.Envelope.DecodePayload(&req); err != nil {
			return queue.Dead, err
		}
	}

	if _, err := s.RunCycle(ctx, &req); err != nil {
		return queue.Leave, err
	}
	return queue.Done, nil
}

// RunCycle executes one collection pass: gather, enhance, gate, dedup,
// publish. The returned stats are valid even when an error cut the cycle
// short; the accounting invariant holds only for complete cycles.
func (s *Service) RunCycle(ctx context.Context, req *entity.CollectionRequest) (*CycleStats, error) {
	ctx, span := tracing.StartStageSpan(ctx, "collect_content")
	defer span.End()

	start := s.now()
	cycle := start.UTC()
	collectionID := fmt.Sprintf("collection_%d", cycle.Unix())
	stats := &CycleStats{
		CollectionID:   collectionID,
		CollectionBlob: fmt.Sprintf("collections/%s/%s.json", cycle.Format("2006/01/02"), collectionID),
	}

	adapters := s.selectAdapters(req)
	stats.Sources = len(adapters)

	maxItems := s.cfg.MaxItems
	if req != nil && req.MaxItems > 0 {
		maxItems = req.MaxItems
	}

	gathered, err := s.gather(ctx, adapters, maxItems, stats)
	if err != nil {
		tracing.MarkSpanError(span, err)
		return stats, err
	}
	if err := s.enhance(ctx, gathered, stats); err != nil {
		tracing.MarkSpanError(span, err)
		return stats, err
	}

	accepted := s.gate(gathered, stats)
	accepted = s.dropProcessed(ctx, accepted, stats)

	if err := s.publish(ctx, accepted, stats); err != nil {
		tracing.MarkSpanError(span, err)
		return stats, err
	}

	stats.Duration = s.now().Sub(start)
	metrics.RecordCollectionCycle(stats.Duration)

	if !stats.accounted() {
		s.logger.Error("collection cycle accounting mismatch",
			slog.Int64("collected", stats.Collected),
			slog.Int64("published", stats.Published),
			slog.Int64("rejected_quality", stats.RejectedQuality),
			slog.Int64("rejected_dedup", stats.RejectedDedup))
	}
	s.logger.Info("collection cycle completed",
		slog.String("collection_id", stats.CollectionID),
		slog.Int("sources", stats.Sources),
		slog.Int64("collected", stats.Collected),
		slog.Int64("enhanced", stats.Enhanced),
		slog.Int64("published", stats.Published),
		slog.Int64("rejected_quality", stats.RejectedQuality),
		slog.Int64("rejected_dedup", stats.RejectedDedup),
		slog.Duration("duration", stats.Duration))

	return stats, nil
}

// selectAdapters filters the configured adapters by the requested source
// names. Names can match more than one adapter (two RSS feeds share the
// "rss" tag); requested names with no adapter are logged and skipped.
func (s *Service) selectAdapters(req *entity.CollectionRequest) []source.Adapter {
	if req == nil || len(req.Sources) == 0 {
		return s.Adapters
	}

	wanted := make(map[string]struct{}, len(req.Sources))
	for _, name := range req.Sources {
		wanted[name] = struct{}{}
	}

	matched := make(map[string]struct{}, len(wanted))
	var selected []source.Adapter
	for _, a := range s.Adapters {
		if _, ok := wanted[a.Name()]; ok {
			selected = append(selected, a)
			matched[a.Name()] = struct{}{}
		}
	}
	for name := range wanted {
		if _, ok := matched[name]; !ok {
			s.logger.Warn("requested source has no adapter", slog.String("source", name))
		}
	}
	return selected
}

// gather pulls items from the selected adapters in order, stopping at the
// cycle budget. A failing adapter ends its own stream and the cycle moves
// on; only context errors abort.
func (s *Service) gather(ctx context.Context, adapters []source.Adapter, maxItems int, stats *CycleStats) ([]*entity.StandardItem, error) {
	var gathered []*entity.StandardItem
	for _, adapter := range adapters {
		if len(gathered) >= maxItems {
			break
		}

		it := adapter.Stream(ctx)
		for len(gathered) < maxItems {
			item, err := it.Next(ctx)
			if errors.Is(err, source.ErrEnd) {
				break
			}
			if err != nil {
				if ctx.Err() != nil {
					return gathered, err
				}
				s.logger.Warn("source stream failed",
					slog.String("source", adapter.Name()),
					slog.Any("error", err))
				metrics.RecordSourceFetchError(adapter.Name(), "stream_failed")
				break
			}

			stats.Collected++
			metrics.RecordItemCollected(adapter.Name())
			gathered = append(gathered, item)
		}
	}
	return gathered, nil
}

// enhance upgrades thin bodies with a full-page fetch, bounded by the
// configured parallelism. Fetch failures keep the original body, and the
// longer text wins so a bad extraction never replaces a usable feed body.
func (s *Service) enhance(ctx context.Context, items []*entity.StandardItem, stats *CycleStats) error {
	if s.Fetcher == nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.cfg.EnhanceParallelism)

	for i, item := range items {
		if len(item.Content) >= s.cfg.EnhanceThreshold {
			continue
		}
		// Prefer the canonical link over source_url: for link posts the
		// latter is the discussion page, not the article.
		target := item.URL
		if target == "" {
			target = item.MetaString(entity.MetaSourceURL)
		}
		if target == "" {
			continue
		}

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			fetched, err := s.Fetcher.FetchContent(gctx, target)
			if err != nil {
				s.logger.Debug("content enhancement failed, keeping original body",
					slog.String("item_id", item.ID),
					slog.String("url", target),
					slog.Any("error", err))
				return nil
			}
			if len(fetched) <= len(item.Content) {
				return nil
			}

			upgraded := *item
			upgraded.Content = fetched
			items[i] = &upgraded
			atomic.AddInt64(&stats.Enhanced, 1)
			return nil
		})
	}
	return g.Wait()
}

// gate applies the review filters, the score threshold, and the per-source
// diversity cap. Everything it drops counts as a quality rejection.
func (s *Service) gate(items []*entity.StandardItem, stats *CycleStats) []review.ScoredItem {
	scored := make([]review.ScoredItem, 0, len(items))
	for _, item := range items {
		ok, reason := review.Review(item, s.cfg.Strict)
		if !ok {
			stats.RejectedQuality++
			metrics.RecordItemRejected(string(item.Source), reason)
			s.logger.Debug("item rejected by quality gate",
				slog.String("item_id", item.ID),
				slog.String("source", string(item.Source)),
				slog.String("reason", reason))
			continue
		}

		score, signals := review.Score(item)
		if !review.Accept(score, s.cfg.ScoreThreshold) {
			stats.RejectedQuality++
			metrics.RecordItemRejected(string(item.Source), reasonBelowThreshold)
			s.logger.Debug("item below score threshold",
				slog.String("item_id", item.ID),
				slog.Float64("score", score),
				slog.Any("signals", signals))
			continue
		}

		scored = append(scored, review.ScoredItem{Item: item, Score: score, Signals: signals})
	}

	ranked := review.RankWithDiversity(scored, s.cfg.PerSourceCap)
	if len(ranked) < len(scored) {
		kept := make(map[*entity.StandardItem]struct{}, len(ranked))
		for _, si := range ranked {
			kept[si.Item] = struct{}{}
		}
		for _, si := range scored {
			if _, ok := kept[si.Item]; !ok {
				stats.RejectedQuality++
				metrics.RecordItemRejected(string(si.Item.Source), reasonDiversityCap)
			}
		}
	}
	return ranked
}

// dropProcessed removes items already seen by earlier cycles: same-day
// artifacts first, then historically published URLs. Both layers fail open
// inside the filters, so a storage outage widens the batch instead of
// losing it.
func (s *Service) dropProcessed(ctx context.Context, ranked []review.ScoredItem, stats *CycleStats) []review.ScoredItem {
	if len(ranked) == 0 {
		return ranked
	}

	items := make([]*entity.StandardItem, len(ranked))
	for i, si := range ranked {
		items[i] = si.Item
	}
	survivors := s.urls.Apply(ctx, s.sameDay.Apply(ctx, items))
	if len(survivors) == len(ranked) {
		return ranked
	}

	kept := make(map[*entity.StandardItem]struct{}, len(survivors))
	for _, item := range survivors {
		kept[item] = struct{}{}
	}
	out := make([]review.ScoredItem, 0, len(survivors))
	for _, si := range ranked {
		if _, ok := kept[si.Item]; ok {
			out = append(out, si)
			continue
		}
		stats.RejectedDedup++
		metrics.RecordItemRejected(string(si.Item.Source), reasonDuplicate)
	}
	return out
}

// publish streams accepted items out. The first occurrence wins the
// in-batch hash check, the cumulative collection blob is rewritten before
// each send, then the topic message goes to the processing queue. Storage
// and queue failures abort the cycle: every message already sent references
// a blob state that contains its item.
func (s *Service) publish(ctx context.Context, accepted []review.ScoredItem, stats *CycleStats) error {
	if len(accepted) == 0 {
		return nil
	}

	index := dedup.NewIndex()
	collected := &entity.CollectedContent{
		CollectionID: stats.CollectionID,
		CollectedAt:  s.now().UTC(),
	}

	var publishedURLs []string
	for _, si := range accepted {
		hash := dedup.HashContent(si.Item.Title, si.Item.Content)
		if index.Seen(hash) {
			stats.RejectedDedup++
			metrics.RecordItemRejected(string(si.Item.Source), reasonDuplicate)
			continue
		}
		index.Add(hash)

		collected.Items = append(collected.Items, *si.Item)
		data, err := json.MarshalIndent(collected, "", "  ")
		if err != nil {
			return fmt.Errorf("encode collection %s: %w", stats.CollectionID, err)
		}
		if err := s.Blobs.Upload(ctx, blob.ContainerCollected, stats.CollectionBlob, data); err != nil {
			return fmt.Errorf("write collection blob %s: %w", stats.CollectionBlob, err)
		}

		msg := buildTopicMessage(si.Item, stats.CollectionID, stats.CollectionBlob, si.Score, hash)
		env, err := queue.NewEnvelope(entity.OpProcessTopic, ServiceName, msg.CorrelationID(), msg)
		if err != nil {
			return fmt.Errorf("build topic envelope: %w", err)
		}
		if err := s.Processing.Send(ctx, env); err != nil {
			return fmt.Errorf("enqueue topic %s: %w", msg.TopicID, err)
		}

		stats.Published++
		metrics.RecordItemPublished(string(si.Item.Source))
		for _, u := range []string{si.Item.MetaString(entity.MetaSourceURL), si.Item.URL} {
			if u != "" {
				publishedURLs = append(publishedURLs, u)
			}
		}
	}

	// Feed the historical layer so later cycles drop these URLs. Every
	// message is already sent at this point, so a failed set write logs
	// instead of forcing the whole cycle into redelivery.
	if s.cfg.PublishedURLDedup {
		if err := s.urls.MarkPublished(ctx, publishedURLs); err != nil {
			s.logger.Warn("recording published urls failed",
				slog.String("collection_id", stats.CollectionID),
				slog.Any("error", err))
		}
	}
	return nil
}
