// Package process implements the topic processor: it turns collected topic
// messages into enriched article artifacts through an LLM, guarded by
// per-topic leases and cost budgets, and hands finished artifacts to the
// markdown queue.
//
// Every stage failure maps to a queue disposition: malformed messages are
// dead-lettered, budget rejections go back to the pending queue, and
// transient failures leave the delivery in flight so the visibility timeout
// redelivers it.
package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/lease"
	"contentmill/internal/infra/llm"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/observability/tracing"
	"contentmill/internal/session"
	"contentmill/internal/usecase/dedup"
	"contentmill/internal/usecase/review"
	"contentmill/internal/utils/text"
)

// ServiceName is stamped on every envelope this service produces.
const ServiceName = "content-processor"

// ServiceConfig carries the processor's own knobs. Generation holds the
// same parameters the LLM provider was constructed with, so budget
// estimates and the real request agree on model and output allowance.
type ServiceConfig struct {
	Budget     Budget
	Generation llm.Config

	// LeaseTTL is how long one processor may hold a topic before other
	// processors treat the lease as abandoned. Defaults to 5 minutes.
	LeaseTTL time.Duration

	// FanOutLimit bounds concurrent topic processing during collection
	// fan-out. Defaults to 2.
	FanOutLimit int
}

// Service processes topic messages into article artifacts.
type Service struct {
	Blobs    blob.Store
	Markdown queue.Queue
	Provider llm.Provider
	Leases   lease.Store
	Tracker  *session.Tracker

	cfg    ServiceConfig
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewService wires the processor. markdownQueue receives one
// markdown_generated message per finished artifact.
func NewService(blobs blob.Store, markdownQueue queue.Queue, provider llm.Provider, leases lease.Store, tracker *session.Tracker, cfg ServiceConfig) *Service {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = 2
	}
	return &Service{
		Blobs:    blobs,
		Markdown: markdownQueue,
		Provider: provider,
		Leases:   leases,
		Tracker:  tracker,
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// HandleMessage dispatches one queue delivery. The returned disposition
// tells the worker loop how to settle the delivery; the error carries the
// cause for logs and dead-letter reasons.
func (s *Service) HandleMessage(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	if err := d.Envelope.Validate(); err != nil {
		return queue.Dead, &MalformedError{Reason: err.Error()}
	}
	switch d.Envelope.Operation {
	case entity.OpProcessTopic:
		return s.handleTopic(ctx, d)
	case entity.OpProcessCollection:
		return s.handleCollection(ctx, d)
	default:
		return queue.Dead, &MalformedError{Reason: "unknown operation " + d.Envelope.Operation}
	}
}

func (s *Service) handleTopic(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	var msg entity.TopicMessage
	if err := d.Envelope.DecodePayload(&msg); err != nil {
		return queue.Dead, &MalformedError{Reason: err.Error()}
	}
	if err := msg.Validate(); err != nil {
		return queue.Dead, &MalformedError{Reason: err.Error()}
	}
	return s.processTopic(ctx, &msg)
}

// processTopic runs the lease, budget, generation and hand-off stages for
// one topic. Shared by direct topic messages and collection fan-out.
func (s *Service) processTopic(ctx context.Context, msg *entity.TopicMessage) (queue.Disposition, error) {
	ctx, span := tracing.StartStageSpan(ctx, "process_topic")
	defer span.End()

	logger := s.logger.With(
		slog.String("topic_id", msg.TopicID),
		slog.String("correlation_id", msg.CorrelationID()),
	)
	start := s.now()

	owner := s.Tracker.ProcessorID()
	acquired, err := s.Leases.Acquire(ctx, msg.TopicID, owner, s.cfg.LeaseTTL)
	if err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("acquiring lease for topic %s: %w", msg.TopicID, err)
	}
	if !acquired {
		logger.Info("topic lease held elsewhere, leaving for redelivery")
		return queue.Leave, ErrLeaseHeld
	}
	defer func() {
		// Release must run even when ctx was cancelled mid-attempt.
		if relErr := s.Leases.Release(context.WithoutCancel(ctx), msg.TopicID, owner); relErr != nil {
			logger.Warn("releasing topic lease", slog.Any("error", relErr))
		}
	}()

	state := s.loadTopicState(ctx, msg.TopicID, logger)
	if state.Status == entity.TopicCompleted && state.ArtifactBlob != "" {
		// A previous attempt wrote the artifact but may have crashed before
		// the markdown hand-off. Re-enqueue and finish.
		if err := s.enqueueMarkdown(ctx, state.ArtifactBlob, msg); err != nil {
			tracing.MarkSpanError(span, err)
			return queue.Leave, fmt.Errorf("re-enqueueing markdown for topic %s: %w", msg.TopicID, err)
		}
		logger.Info("topic already completed, markdown re-enqueued",
			slog.String("artifact_blob", state.ArtifactBlob))
		return queue.Done, nil
	}

	prompt := BuildPrompt(msg)
	estimate := EstimateAttemptCost(s.cfg.Generation.Model, systemPrompt, prompt, s.cfg.Generation.MaxTokens)
	if err := s.cfg.Budget.Check(s.Tracker.Snapshot().CostUSD, estimate); err != nil {
		logger.Warn("attempt blocked by budget",
			slog.Float64("estimate_usd", estimate),
			slog.Any("error", err))
		return queue.Redeliver, err
	}

	state.BeginAttempt(s.newID(), owner, s.now().Add(s.cfg.LeaseTTL))
	s.saveTopicState(ctx, state, logger)

	resp, err := s.Provider.Generate(ctx, &llm.Request{System: systemPrompt, Prompt: prompt})
	if err != nil {
		tracing.MarkSpanError(span, err)
		s.recordFailure(ctx, state, err.Error(), 0, 0, start, logger)
		return queue.Leave, fmt.Errorf("generating article for topic %s: %w", msg.TopicID, err)
	}

	cost, err := llm.Cost(resp.Model, resp.InputTokens, resp.OutputTokens)
	if err != nil {
		tracing.MarkSpanError(span, err)
		s.recordFailure(ctx, state, err.Error(), resp.InputTokens+resp.OutputTokens, 0, start, logger)
		return queue.Leave, fmt.Errorf("pricing usage for topic %s: %w", msg.TopicID, err)
	}
	tokens := resp.InputTokens + resp.OutputTokens

	artifact, blobPath, err := s.buildArtifact(msg, resp, cost)
	if err != nil {
		tracing.MarkSpanError(span, err)
		s.recordFailure(ctx, state, err.Error(), tokens, cost, start, logger)
		return queue.Leave, fmt.Errorf("building artifact for topic %s: %w", msg.TopicID, err)
	}

	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		tracing.MarkSpanError(span, err)
		s.recordFailure(ctx, state, err.Error(), tokens, cost, start, logger)
		return queue.Leave, fmt.Errorf("encoding artifact for topic %s: %w", msg.TopicID, err)
	}
	if err := s.Blobs.Upload(ctx, blob.ContainerProcessed, blobPath, data); err != nil {
		tracing.MarkSpanError(span, err)
		s.recordFailure(ctx, state, err.Error(), tokens, cost, start, logger)
		return queue.Leave, fmt.Errorf("writing artifact %s: %w", blobPath, err)
	}

	// Completed state is persisted before the markdown hand-off so a crash
	// in between is recoverable through the shortcut above.
	state.CompleteAttempt(tokens, cost, artifact.QualityScore, artifact.WordCount)
	state.ArtifactBlob = blobPath
	s.saveTopicState(ctx, state, logger)

	if err := s.enqueueMarkdown(ctx, blobPath, msg); err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("enqueueing markdown for topic %s: %w", msg.TopicID, err)
	}

	duration := s.now().Sub(start)
	s.Tracker.RecordTopic(true, duration)
	s.Tracker.RecordArticle(resp.InputTokens, resp.OutputTokens, cost, artifact.QualityScore, artifact.WordCount)
	s.Tracker.PublishSLO()
	metrics.RecordTopicProcessed(true)

	logger.Info("topic processed",
		slog.String("slug", artifact.Slug),
		slog.String("artifact_blob", blobPath),
		slog.String("model", resp.Model),
		slog.Int("input_tokens", resp.InputTokens),
		slog.Int("output_tokens", resp.OutputTokens),
		slog.Float64("cost_usd", cost),
		slog.Duration("duration", duration))
	return queue.Done, nil
}

func (s *Service) handleCollection(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	var req entity.CollectionProcessingRequest
	if err := d.Envelope.DecodePayload(&req); err != nil {
		return queue.Dead, &MalformedError{Reason: err.Error()}
	}
	if err := req.Validate(); err != nil {
		return queue.Dead, &MalformedError{Reason: err.Error()}
	}

	ctx, span := tracing.StartStageSpan(ctx, "process_collection")
	defer span.End()

	data, err := s.Blobs.Download(ctx, blob.ContainerCollected, req.CollectionBlob)
	if errors.Is(err, blob.ErrNotFound) {
		return queue.Dead, &MalformedError{Reason: "collection blob not found: " + req.CollectionBlob}
	}
	if err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("downloading collection %s: %w", req.CollectionBlob, err)
	}

	var collected entity.CollectedContent
	if err := json.Unmarshal(data, &collected); err != nil {
		return queue.Dead, &MalformedError{Reason: "decoding collection blob: " + err.Error()}
	}

	logger := s.logger.With(
		slog.String("collection_id", collected.CollectionID),
		slog.String("collection_blob", req.CollectionBlob),
	)
	logger.Info("fanning out collection", slog.Int("items", len(collected.Items)))

	var processed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.cfg.FanOutLimit)
	for i := range collected.Items {
		item := &collected.Items[i]
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			msg := topicMessageFrom(item, collected.CollectionID, req.CollectionBlob)
			if err := msg.Validate(); err != nil {
				failed.Add(1)
				logger.Warn("skipping invalid collection item",
					slog.String("item_id", item.ID),
					slog.Any("error", err))
				return nil
			}

			_, err := s.processTopic(gctx, msg)
			switch {
			case err == nil:
				processed.Add(1)
			case errors.Is(err, ErrLeaseHeld):
				skipped.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				logger.Warn("collection item failed",
					slog.String("topic_id", msg.TopicID),
					slog.Any("error", err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("collection fan-out interrupted: %w", err)
	}

	logger.Info("collection fan-out finished",
		slog.Int64("processed", processed.Load()),
		slog.Int64("skipped", skipped.Load()),
		slog.Int64("failed", failed.Load()))
	return queue.Done, nil
}

// topicMessageFrom builds the per-item message for collection fan-out.
// Blob items carry no precomputed priority, so they are re-scored with the
// same heuristics the collector applies.
func topicMessageFrom(item *entity.StandardItem, collectionID, collectionBlob string) *entity.TopicMessage {
	score, _ := review.Score(item)
	return &entity.TopicMessage{
		TopicID:        item.ID,
		Title:          item.Title,
		Source:         item.Source,
		CollectedAt:    item.CollectedAt.UTC().Format(time.RFC3339),
		PriorityScore:  score,
		CollectionID:   collectionID,
		CollectionBlob: collectionBlob,
		Subreddit:      item.MetaString(entity.MetaSubreddit),
		URL:            item.SourceURL(),
		Upvotes:        item.Upvotes(),
		Comments:       item.MetaInt(entity.MetaComments),
		Boosts:         item.MetaInt(entity.MetaBoosts),
		Author:         item.MetaString(entity.MetaAuthor),
		ContentHash:    dedup.HashContent(item.Title, item.Content),
	}
}

// buildArtifact assembles the article artifact and its deterministic blob
// path from the generation response.
func (s *Service) buildArtifact(msg *entity.TopicMessage, resp *llm.Response, cost float64) (*entity.ArticleArtifact, string, error) {
	title, body := ParseGenerated(resp.Text, msg.Title)
	slug := GenerateSlug(title)
	if slug == "" {
		slug = GenerateSlug(msg.TopicID)
	}
	if slug == "" {
		slug = "untitled"
	}
	published := s.now().UTC().Format(time.RFC3339)

	meta := map[string]any{
		"source":        string(msg.Source),
		"collection_id": msg.CollectionID,
		"topic_title":   msg.Title,
	}
	if msg.URL != "" {
		meta[entity.MetaSourceURL] = msg.URL
	}
	if msg.ContentHash != "" {
		meta["content_hash"] = msg.ContentHash
	}
	if msg.Subreddit != "" {
		meta[entity.MetaSubreddit] = msg.Subreddit
	}

	artifact := &entity.ArticleArtifact{
		Title:          title,
		Slug:           slug,
		SEOTitle:       GenerateSEOTitle(title),
		PublishedDate:  published,
		Content:        body,
		SourceMetadata: meta,
		Cost:           cost,
		QualityScore:   msg.PriorityScore,
		WordCount:      text.CountWords(body),
		Author:         msg.Author,
		TopicID:        msg.TopicID,
	}
	if err := artifact.Validate(); err != nil {
		return nil, "", err
	}
	path, err := ArticlePath(published, slug)
	if err != nil {
		return nil, "", err
	}
	return artifact, path, nil
}

func (s *Service) enqueueMarkdown(ctx context.Context, artifactBlob string, msg *entity.TopicMessage) error {
	env, err := queue.NewEnvelope(entity.OpMarkdownGenerated, ServiceName, msg.CorrelationID(), &entity.MarkdownRequest{
		ArticleBlob: artifactBlob,
		TopicID:     msg.TopicID,
	})
	if err != nil {
		return err
	}
	return s.Markdown.Send(ctx, env)
}

func (s *Service) recordFailure(ctx context.Context, state *entity.TopicState, reason string, tokens int, costUSD float64, start time.Time, logger *slog.Logger) {
	state.FailAttempt(reason, tokens, costUSD)
	s.saveTopicState(ctx, state, logger)
	s.Tracker.RecordTopic(false, s.now().Sub(start))
	metrics.RecordTopicProcessed(false)
}

// loadTopicState returns the persisted state for the topic, or a fresh
// pending state when none exists or the blob cannot be read. State is an
// audit record; mutual exclusion comes from the lease store.
func (s *Service) loadTopicState(ctx context.Context, topicID string, logger *slog.Logger) *entity.TopicState {
	data, err := s.Blobs.Download(ctx, blob.ContainerProcessed, TopicStatePath(topicID))
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			logger.Warn("loading topic state, starting fresh", slog.Any("error", err))
		}
		return entity.NewTopicState(topicID)
	}
	var state entity.TopicState
	if err := json.Unmarshal(data, &state); err != nil {
		logger.Warn("decoding topic state, starting fresh", slog.Any("error", err))
		return entity.NewTopicState(topicID)
	}
	if state.TopicID == "" {
		state.TopicID = topicID
	}
	return &state
}

func (s *Service) saveTopicState(ctx context.Context, state *entity.TopicState, logger *slog.Logger) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		logger.Warn("encoding topic state", slog.Any("error", err))
		return
	}
	if err := s.Blobs.Upload(ctx, blob.ContainerProcessed, TopicStatePath(state.TopicID), data); err != nil {
		logger.Warn("persisting topic state", slog.Any("error", err))
	}
}
