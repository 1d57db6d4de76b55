package publish

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"contentmill/internal/infra/blob"
)

// deploy uploads the validated output tree to the web container, then the
// input fingerprint. A failure on the very first file means nothing of the
// new site made it out: that is catastrophic, the previous site is restored
// and the job fails. Later failures leave a partially updated site and are
// recorded as non-fatal.
func (s *Service) deploy(ctx context.Context, outdir, fp string, result *DeploymentResult) error {
	var paths []string
	err := filepath.WalkDir(outdir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outdir, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking build output: %w", err)
	}
	sort.Strings(paths)

	for i, rel := range paths {
		data, err := os.ReadFile(filepath.Join(outdir, filepath.FromSlash(rel)))
		if err == nil {
			err = s.Blobs.Upload(ctx, blob.ContainerWeb, rel, data)
		}
		if err != nil {
			if i == 0 {
				s.logger.Error("first upload failed, treating deploy as catastrophic",
					slog.String("name", rel),
					slog.Any("error", err))
				result.Errors = append(result.Errors, fmt.Sprintf("upload %s: %v", rel, err))
				s.restoreFromBackup(ctx, result)
				return fmt.Errorf("deploy failed on first file %s: %w", rel, err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("upload %s: %v", rel, err))
			continue
		}
		result.FilesUploaded++
	}

	if err := s.Blobs.Upload(ctx, blob.ContainerWeb, fingerprintBlob, []byte(fp)); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("upload %s: %v", fingerprintBlob, err))
	}
	return nil
}
