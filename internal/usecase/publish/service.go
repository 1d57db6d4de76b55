// Package publish implements the site builder: collect every markdown blob,
// run the static-site generator in a scratch tree, validate the output, back
// up the live site, and deploy. A failure on the very first uploaded file is
// catastrophic and restores the previous site from backup; later failures
// are reported but leave the deploy standing.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/observability/metrics"
	"contentmill/internal/observability/tracing"
)

// ServiceName is stamped on log lines and envelopes of this service.
const ServiceName = "site-publisher"

// SiteBuilder runs the static-site generator against a prepared tree.
type SiteBuilder interface {
	Build(ctx context.Context, workdir, outdir string) error
}

// ServiceConfig carries the publisher's knobs.
type ServiceConfig struct {
	// ScratchDir is where per-job build trees are created. Defaults to the
	// system temp directory.
	ScratchDir string

	// SiteURL is the public base URL stamped on deploy announcements.
	SiteURL string
}

// Announcer broadcasts deploy outcomes to the configured notification
// channels. Implementations must not block the caller.
type Announcer interface {
	AnnounceDeploy(ctx context.Context, ann *entity.SiteAnnouncement)
}

// Service builds and deploys the static site.
type Service struct {
	Blobs   blob.Store
	Builder SiteBuilder

	// Announcer, when set, is told about deploys and rollbacks after the
	// web container has been updated.
	Announcer Announcer

	cfg    ServiceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewService wires the publisher.
func NewService(blobs blob.Store, builder SiteBuilder, cfg ServiceConfig) *Service {
	return &Service{
		Blobs:   blobs,
		Builder: builder,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
}

// markdownFile is one downloaded markdown blob.
type markdownFile struct {
	name string
	data []byte
}

// HandleMessage dispatches one publish-queue delivery. Build and deploy
// failures leave the delivery in flight: the job reads all of its input from
// the containers, so a retry sees the current state.
func (s *Service) HandleMessage(ctx context.Context, d *queue.Delivery) (queue.Disposition, error) {
	if err := d.Envelope.Validate(); err != nil {
		return queue.Dead, fmt.Errorf("malformed envelope: %w", err)
	}
	if d.Envelope.Operation != entity.OpMarkdownGenerated {
		return queue.Dead, fmt.Errorf("unknown operation %q", d.Envelope.Operation)
	}

	var req entity.PublishRequest
	if len(d.Envelope.Payload) > 0 {
		if err := d.Envelope.DecodePayload(&req); err != nil {
			return queue.Dead, err
		}
	}

	result, err := s.BuildAndDeploy(ctx, &req)
	if err != nil {
		// A rollback is still news: the site changed back.
		if result.RolledBack {
			s.announce(ctx, d.Envelope.CorrelationID, result)
		}
		return queue.Leave, err
	}
	s.logger.Info("publish handled",
		slog.Int("files_uploaded", result.FilesUploaded),
		slog.Bool("skipped", result.Skipped),
		slog.Bool("rolled_back", result.RolledBack),
		slog.Int("non_fatal_errors", len(result.Errors)),
		slog.Duration("duration", result.Duration))
	if !result.Skipped {
		s.announce(ctx, d.Envelope.CorrelationID, result)
	}
	return queue.Done, nil
}

// announce hands the deploy outcome to the notification channels. Dispatch
// is fire-and-forget, so a slow webhook never holds the queue handler.
func (s *Service) announce(ctx context.Context, correlationID string, result *DeploymentResult) {
	if s.Announcer == nil {
		return
	}
	s.Announcer.AnnounceDeploy(ctx, &entity.SiteAnnouncement{
		SiteURL:       s.cfg.SiteURL,
		FilesUploaded: result.FilesUploaded,
		Duration:      result.Duration,
		RolledBack:    result.RolledBack,
		Errors:        result.Errors,
		CorrelationID: correlationID,
		FinishedAt:    s.now(),
	})
}

// BuildAndDeploy runs one complete job. The returned result is valid even
// when an error cut the job short.
func (s *Service) BuildAndDeploy(ctx context.Context, req *entity.PublishRequest) (*DeploymentResult, error) {
	ctx, span := tracing.StartStageSpan(ctx, "publish_site")
	defer span.End()

	start := s.now()
	result := &DeploymentResult{}
	force := req != nil && req.ForceRebuild

	files, err := s.downloadMarkdown(ctx)
	if err != nil {
		tracing.MarkSpanError(span, err)
		return result, err
	}

	fp := fingerprint(files)
	if !force && s.isFresh(ctx, fp) {
		result.Skipped = true
		result.Duration = s.now().Sub(start)
		s.logger.Info("site build skipped, inputs unchanged",
			slog.Int("markdown_files", len(files)))
		return result, nil
	}

	workdir, err := os.MkdirTemp(s.cfg.ScratchDir, "sitebuild-*")
	if err != nil {
		tracing.MarkSpanError(span, err)
		return result, fmt.Errorf("creating build workspace: %w", err)
	}
	defer os.RemoveAll(workdir)
	outdir := filepath.Join(workdir, "public")

	if err := s.organize(workdir, files); err != nil {
		tracing.MarkSpanError(span, err)
		return result, err
	}
	if err := s.Builder.Build(ctx, workdir, outdir); err != nil {
		tracing.MarkSpanError(span, err)
		return result, fmt.Errorf("site build: %w", err)
	}
	if err := ValidateOutput(outdir); err != nil {
		tracing.MarkSpanError(span, err)
		return result, err
	}

	s.backupLiveSite(ctx, result)

	deployErr := s.deploy(ctx, outdir, fp, result)
	result.Duration = s.now().Sub(start)
	metrics.RecordDeploy(result.FilesUploaded, result.Duration, result.RolledBack)
	if deployErr != nil {
		tracing.MarkSpanError(span, deployErr)
		return result, deployErr
	}

	s.logger.Info("site deployed",
		slog.Int("files_uploaded", result.FilesUploaded),
		slog.Int("markdown_files", len(files)),
		slog.Int("non_fatal_errors", len(result.Errors)),
		slog.Duration("duration", result.Duration))
	return result, nil
}

// downloadMarkdown lists and fetches every markdown blob. Every listed name
// must pass validation before anything is copied; one bad name aborts the
// job rather than letting it into the build tree.
func (s *Service) downloadMarkdown(ctx context.Context) ([]markdownFile, error) {
	names, err := s.Blobs.List(ctx, blob.ContainerMarkdown, "")
	if err != nil {
		return nil, fmt.Errorf("listing markdown blobs: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := ValidateBlobName(name); err != nil {
			return nil, fmt.Errorf("markdown container failed validation: %w", err)
		}
	}

	files := make([]markdownFile, 0, len(names))
	for _, name := range names {
		data, err := s.Blobs.Download(ctx, blob.ContainerMarkdown, name)
		if err != nil {
			return nil, fmt.Errorf("downloading %s: %w", name, err)
		}
		files = append(files, markdownFile{name: name, data: data})
	}
	return files, nil
}

// isFresh reports whether the last deploy was built from the same inputs.
func (s *Service) isFresh(ctx context.Context, fp string) bool {
	data, err := s.Blobs.Download(ctx, blob.ContainerWeb, fingerprintBlob)
	if err != nil {
		return false
	}
	return string(data) == fp
}

// organize lays the downloaded files out under content/posts, preserving
// their container paths. Names were validated, so joining them under the
// workspace cannot escape it.
func (s *Service) organize(workdir string, files []markdownFile) error {
	for _, f := range files {
		dst := filepath.Join(workdir, "content", "posts", filepath.FromSlash(f.name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating content dir for %s: %w", f.name, err)
		}
		if err := os.WriteFile(dst, f.data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}
	return nil
}
