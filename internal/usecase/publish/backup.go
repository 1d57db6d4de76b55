package publish

import (
	"context"
	"fmt"
	"log/slog"

	"contentmill/internal/infra/blob"
)

// backupLiveSite mirrors the web container into the backup container before
// a deploy. Failures are non-fatal: a broken backup must not block the
// deploy, it only costs the rollback point.
func (s *Service) backupLiveSite(ctx context.Context, result *DeploymentResult) {
	names, err := s.Blobs.List(ctx, blob.ContainerWeb, "")
	if err != nil {
		s.logger.Warn("listing live site for backup failed", slog.Any("error", err))
		result.Errors = append(result.Errors, fmt.Sprintf("backup list: %v", err))
		return
	}

	backed := 0
	for _, name := range names {
		data, err := s.Blobs.Download(ctx, blob.ContainerWeb, name)
		if err == nil {
			err = s.Blobs.Upload(ctx, blob.ContainerBackup, name, data)
		}
		if err != nil {
			s.logger.Warn("backing up site file failed",
				slog.String("name", name),
				slog.Any("error", err))
			result.Errors = append(result.Errors, fmt.Sprintf("backup %s: %v", name, err))
			continue
		}
		backed++
	}
	if backed > 0 {
		s.logger.Info("live site backed up", slog.Int("files", backed))
	}
}

// restoreFromBackup copies the backup container over the web container.
// Runs with a cancellation-free context: a rollback triggered by a dying
// worker must still try to finish.
func (s *Service) restoreFromBackup(ctx context.Context, result *DeploymentResult) {
	ctx = context.WithoutCancel(ctx)
	result.RolledBack = true

	names, err := s.Blobs.List(ctx, blob.ContainerBackup, "")
	if err != nil {
		s.logger.Error("listing backup for restore failed", slog.Any("error", err))
		result.Errors = append(result.Errors, fmt.Sprintf("restore list: %v", err))
		return
	}

	restored := 0
	for _, name := range names {
		data, err := s.Blobs.Download(ctx, blob.ContainerBackup, name)
		if err == nil {
			err = s.Blobs.Upload(ctx, blob.ContainerWeb, name, data)
		}
		if err != nil {
			s.logger.Error("restoring site file failed",
				slog.String("name", name),
				slog.Any("error", err))
			result.Errors = append(result.Errors, fmt.Sprintf("restore %s: %v", name, err))
			continue
		}
		restored++
	}
	result.Errors = append(result.Errors,
		fmt.Sprintf("rolled back: restored %d of %d files from backup", restored, len(names)))
	s.logger.Warn("live site restored from backup", slog.Int("files", restored))
}
