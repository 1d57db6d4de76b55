package markdown

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/observability/tracing"
	"contentmill/internal/usecase/process"
)

// ServiceName is stamped on every envelope this service produces.
const ServiceName = "markdown-generator"

// ServiceConfig carries the renderer's knobs.
type ServiceConfig struct {
	// Template selects the layout for messages that do not name one.
	// Invalid values fall back to the default template at construction.
	Template string
}

// Service renders article artifacts to markdown blobs and triggers site
// builds.
type Service struct {
	Blobs   blob.Store
	Publish queue.Queue

	cfg    ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the renderer. publishQueue receives one build request per
// rendered document.
func NewService(blobs blob.Store, publishQueue queue.Queue, cfg ServiceConfig) *Service {
	logger := slog.Default()
	if _, err := ParseTemplate(cfg.Template); err != nil {
		logger.Warn("invalid default markdown template, using default",
			slog.String("template", cfg.Template))
		cfg.Template = string(TemplateDefault)
	}
	return &Service{
		Blobs:   blobs,
		Publish: publishQueue,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleMessage dispatches one queue delivery. The returned disposition
// tells the worker loop how to settle the delivery.
func (s *Service) HandleMessage(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	if err := d.Envelope.Validate(); err != nil {
		return queue.Dead, fmt.Errorf("malformed envelope: %w", err)
	}
	switch d.Envelope.Operation {
	case entity.OpMarkdownGenerated, entity.OpGenerateMarkdown:
		return s.handleGenerate(ctx, d)
	case entity.OpRegenerateMarkdown:
		return s.handleRegenerate(ctx, d)
	default:
		return queue.Dead, fmt.Errorf("unknown operation %q", d.Envelope.Operation)
	}
}

func (s *Service) handleGenerate(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	ctx, span := tracing.StartStageSpan(ctx, "render_markdown")
	defer span.End()

	var req entity.MarkdownRequest
	if err := d.Envelope.DecodePayload(&req); err != nil {
		return queue.Dead, err
	}
	if req.ArticleBlob == "" {
		return queue.Dead, fmt.Errorf("markdown request without article_blob")
	}
	tpl, err := s.template(req.Template)
	if err != nil {
		return queue.Dead, err
	}

	mdPath, disp, err := s.renderArtifact(ctx, req.ArticleBlob, tpl)
	if err != nil {
		tracing.MarkSpanError(span, err)
		return disp, err
	}
	if err := s.enqueuePublish(ctx, mdPath, false, d.Envelope.CorrelationID); err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("enqueueing publish for %s: %w", mdPath, err)
	}
	return queue.Done, nil
}

func (s *Service) handleRegenerate(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	ctx, span := tracing.StartStageSpan(ctx, "regenerate_markdown")
	defer span.End()

	var req entity.MarkdownRequest
	if err := d.Envelope.DecodePayload(&req); err != nil {
		return queue.Dead, err
	}
	if req.Count <= 0 {
		return queue.Dead, fmt.Errorf("regenerate request without a positive count")
	}
	tpl, err := s.template(req.Template)
	if err != nil {
		return queue.Dead, err
	}

	artifacts, err := s.recentArtifacts(ctx, req.Count)
	if err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, err
	}
	if len(artifacts) == 0 {
		s.logger.Info("no article artifacts to regenerate")
		return queue.Done, nil
	}

	rendered := 0
	lastPath := ""
	for _, name := range artifacts {
		mdPath, _, err := s.renderArtifact(ctx, name, tpl)
		if err != nil {
			s.logger.Warn("skipping artifact during regeneration",
				slog.String("article_blob", name),
				slog.Any("error", err))
			continue
		}
		rendered++
		lastPath = mdPath
	}
	if rendered == 0 {
		err := fmt.Errorf("regeneration rendered none of %d artifacts", len(artifacts))
		tracing.MarkSpanError(span, err)
		return queue.Leave, err
	}

	// One build covers every re-rendered file; force it so the builder does
	// not skip output that is byte-identical to the previous render.
	if err := s.enqueuePublish(ctx, lastPath, true, d.Envelope.CorrelationID); err != nil {
		tracing.MarkSpanError(span, err)
		return queue.Leave, fmt.Errorf("enqueueing publish after regeneration: %w", err)
	}

	s.logger.Info("markdown regeneration completed",
		slog.Int("requested", req.Count),
		slog.Int("rendered", rendered))
	return queue.Done, nil
}

// renderArtifact downloads one artifact, renders it, and writes the result
// to the markdown container. The returned disposition classifies failures:
// an absent or invalid artifact can never render (Dead), storage failures
// are worth retrying (Leave).
func (s *Service) renderArtifact(ctx context.Context, articleBlob string, tpl Template) (string, queue.Disposition, error) {
	data, err := s.Blobs.Download(ctx, blob.ContainerProcessed, articleBlob)
	if errors.Is(err, blob.ErrNotFound) {
		return "", queue.Dead, fmt.Errorf("artifact %s does not exist", articleBlob)
	}
	if err != nil {
		return "", queue.Leave, fmt.Errorf("downloading artifact %s: %w", articleBlob, err)
	}

	var artifact entity.ArticleArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return "", queue.Dead, fmt.Errorf("decoding artifact %s: %w", articleBlob, err)
	}

	doc, err := Render(&artifact, tpl)
	if err != nil {
		return "", queue.Dead, fmt.Errorf("rendering %s: %w", articleBlob, err)
	}

	mdPath, err := process.MarkdownPath(artifact.PublishedDate, artifact.Slug)
	if err != nil {
		return "", queue.Dead, fmt.Errorf("deriving markdown path for %s: %w", articleBlob, err)
	}
	if err := s.Blobs.Upload(ctx, blob.ContainerMarkdown, mdPath, []byte(doc)); err != nil {
		return "", queue.Leave, fmt.Errorf("writing markdown %s: %w", mdPath, err)
	}

	metrics.RecordMarkdownRendered(string(tpl))
	s.logger.Info("markdown rendered",
		slog.String("article_blob", articleBlob),
		slog.String("markdown_blob", mdPath),
		slog.String("template", string(tpl)))
	return mdPath, queue.Done, nil
}

// recentArtifacts returns up to count processed-article blob names, newest
// first. The date sits in the path (articles/YYYY-MM-DD/slug.json), so
// lexicographic order is chronological; within one day order is by slug.
func (s *Service) recentArtifacts(ctx context.Context, count int) ([]string, error) {
	names, err := s.Blobs.List(ctx, blob.ContainerProcessed, "articles/")
	if err != nil {
		return nil, fmt.Errorf("listing article artifacts: %w", err)
	}

	var artifacts []string
	for _, n := range names {
		if strings.HasSuffix(n, ".json") {
			artifacts = append(artifacts, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(artifacts)))
	if len(artifacts) > count {
		artifacts = artifacts[:count]
	}
	return artifacts, nil
}

func (s *Service) template(requested string) (Template, error) {
	if requested == "" {
		requested = s.cfg.Template
	}
	return ParseTemplate(requested)
}

func (s *Service) enqueuePublish(ctx context.Context, markdownBlob string, force bool, correlationID string) error {
	env, err := queue.NewEnvelope(entity.OpMarkdownGenerated, ServiceName, correlationID, &entity.PublishRequest{
		MarkdownBlob: markdownBlob,
		ForceRebuild: force,
	})
	if err != nil {
		return err
	}
	return s.Publish.Send(ctx, env)
}
