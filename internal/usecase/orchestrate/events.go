package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
)

// Run consumes blob-created events until the channel closes or the context
// is cancelled. Routing failures are logged and the loop keeps going; the
// direct enqueue done by each stage covers a dropped event.
func (s *Service) Run(ctx context.Context, events <-chan blob.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.HandleBlobEvent(ctx, ev); err != nil {
				s.logger.Error("blob event routing failed",
					slog.String("container", ev.Container),
					slog.String("name", ev.Name),
					slog.Any("error", err))
			}
		}
	}
}

// HandleBlobEvent maps one blob-created notification onto the next pipeline
// stage. Collection blobs go to processing, article artifacts go to markdown
// generation; everything else (topic state, dedup metadata, rendered
// markdown, deployed site files) is ignored. Repeat events for a blob
// routed inside the coalesce window are dropped, so the per-item rewrites
// of one collection blob produce a single processing request.
func (s *Service) HandleBlobEvent(ctx context.Context, ev blob.Event) error {
	var route func(context.Context, blob.Event) error
	switch ev.Container {
	case blob.ContainerCollected:
		if !strings.HasPrefix(ev.Name, "collections/") || !strings.HasSuffix(ev.Name, ".json") {
			s.ignore(ev)
			return nil
		}
		route = s.routeCollection
	case blob.ContainerProcessed:
		if !strings.HasPrefix(ev.Name, "articles/") || !strings.HasSuffix(ev.Name, ".json") {
			s.ignore(ev)
			return nil
		}
		route = s.routeArticle
	default:
		s.ignore(ev)
		return nil
	}

	key := ev.Container + "/" + ev.Name
	if s.recentlyRouted(key) {
		metrics.RecordBlobEvent(ev.Container, "coalesced")
		s.logger.Debug("blob event coalesced", slog.String("blob", key))
		return nil
	}
	if err := route(ctx, ev); err != nil {
		return err
	}
	s.markRouted(key)
	return nil
}

// recentlyRouted reports whether the blob was routed inside the coalesce
// window. Expired entries are swept in passing, so the map stays bounded
// by one burst's worth of blobs.
func (s *Service) recentlyRouted(key string) bool {
	now := s.now()
	s.routedMu.Lock()
	defer s.routedMu.Unlock()
	for k, at := range s.routed {
		if now.Sub(at) > coalesceWindow {
			delete(s.routed, k)
		}
	}
	_, ok := s.routed[key]
	return ok
}

// markRouted records a successful route. Failed routes are not recorded:
// the next event for the same blob gets another try.
func (s *Service) markRouted(key string) {
	s.routedMu.Lock()
	s.routed[key] = s.now()
	s.routedMu.Unlock()
}

// routeCollection enqueues a processing request for a freshly written
// collection blob. The id derived from the file name is advisory; the
// processor reads the authoritative one from the blob itself.
func (s *Service) routeCollection(ctx context.Context, ev blob.Event) error {
	collectionID := strings.TrimSuffix(path.Base(ev.Name), ".json")
	req := &entity.CollectionProcessingRequest{
		CollectionID:   collectionID,
		CollectionBlob: ev.Name,
	}

	env, err := queue.NewEnvelope(entity.OpProcessCollection, ServiceName, collectionID, req)
	if err != nil {
		metrics.RecordBlobEvent(ev.Container, "failed")
		return fmt.Errorf("building processing request for %s: %w", ev.Name, err)
	}
	if err := s.Queues.Processing.Send(ctx, env); err != nil {
		metrics.RecordBlobEvent(ev.Container, "failed")
		return fmt.Errorf("enqueue processing request for %s: %w", ev.Name, err)
	}

	metrics.RecordBlobEvent(ev.Container, "routed")
	s.logger.Info("collection routed to processing",
		slog.String("collection_id", collectionID),
		slog.String("blob", ev.Name))
	return nil
}

// routeArticle enqueues a markdown render for a freshly written article
// artifact. Rendering is idempotent on the artifact path, so overlapping
// with the processor's own enqueue is harmless.
func (s *Service) routeArticle(ctx context.Context, ev blob.Event) error {
	slug := strings.TrimSuffix(path.Base(ev.Name), ".json")
	req := &entity.MarkdownRequest{ArticleBlob: ev.Name}

	env, err := queue.NewEnvelope(entity.OpGenerateMarkdown, ServiceName, slug, req)
	if err != nil {
		metrics.RecordBlobEvent(ev.Container, "failed")
		return fmt.Errorf("building markdown request for %s: %w", ev.Name, err)
	}
	if err := s.Queues.Markdown.Send(ctx, env); err != nil {
		metrics.RecordBlobEvent(ev.Container, "failed")
		return fmt.Errorf("enqueue markdown request for %s: %w", ev.Name, err)
	}

	metrics.RecordBlobEvent(ev.Container, "routed")
	s.logger.Info("article routed to markdown generation",
		slog.String("slug", slug),
		slog.String("blob", ev.Name))
	return nil
}

func (s *Service) ignore(ev blob.Event) {
	metrics.RecordBlobEvent(ev.Container, "ignored")
	s.logger.Debug("blob event ignored",
		slog.String("container", ev.Container),
		slog.String("name", ev.Name))
}
