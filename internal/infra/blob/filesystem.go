package blob

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"contentmill/internal/observability/metrics"
)

// Filesystem stores blobs as files under root/<container>/<name>.
// Writes are atomic: data lands in a temp file which is then renamed
// into place, so watchers and readers never observe partial blobs.
type Filesystem struct {
	root string
}

// NewFilesystem creates the store root if necessary.
func NewFilesystem(root string) (*Filesystem, error) {
	if root == "" {
		return nil, fmt.Errorf("filesystem store root is empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving store root %q: %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating store root %q: %w", abs, err)
	}
	return &Filesystem{root: abs}, nil
}

// Root returns the absolute directory backing the store.
func (s *Filesystem) Root() string {
	return s.root
}

func (s *Filesystem) path(container, name string) string {
	return filepath.Join(s.root, container, filepath.FromSlash(name))
}

// Upload implements Store. The temp file is created next to the final
// location so the rename stays on one filesystem.
func (s *Filesystem) Upload(ctx context.Context, container, name string, data []byte) error {
	start := time.Now()
	err := s.upload(ctx, container, name, data)
	metrics.RecordBlobOperation("upload", time.Since(start), err)
	return err
}

func (s *Filesystem) upload(ctx context.Context, container, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateContainer(container); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}

	dst := s.path(container, name)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("creating temp blob: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing blob %s/%s: %w", container, name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp blob: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publishing blob %s/%s: %w", container, name, err)
	}
	return nil
}

// Download implements Store.
func (s *Filesystem) Download(ctx context.Context, container, name string) ([]byte, error) {
	start := time.Now()
	data, err := s.download(ctx, container, name)
	metrics.RecordBlobOperation("download", time.Since(start), err)
	return data, err
}

func (s *Filesystem) download(ctx context.Context, container, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateContainer(container); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(container, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s/%s: %w", container, name, err)
	}
	return data, nil
}

// List implements Store. Temp files from in-flight uploads are skipped.
func (s *Filesystem) List(ctx context.Context, container, prefix string) ([]string, error) {
	start := time.Now()
	names, err := s.list(ctx, container, prefix)
	metrics.RecordBlobOperation("list", time.Since(start), err)
	return names, err
}

func (s *Filesystem) list(ctx context.Context, container, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateContainer(container); err != nil {
		return nil, err
	}

	base := filepath.Join(s.root, container)
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil, nil
	}

	var names []string
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing container %s: %w", container, err)
	}
	sort.Strings(names)
	return names, nil
}

// Exists implements Store.
func (s *Filesystem) Exists(ctx context.Context, container, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := validateContainer(container); err != nil {
		return false, err
	}
	if err := validateName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(container, name))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking blob %s/%s: %w", container, name, err)
	}
	return true, nil
}

// Delete implements Store.
func (s *Filesystem) Delete(ctx context.Context, container, name string) error {
	start := time.Now()
	err := s.remove(ctx, container, name)
	metrics.RecordBlobOperation("delete", time.Since(start), err)
	return err
}

func (s *Filesystem) remove(ctx context.Context, container, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateContainer(container); err != nil {
		return err
	}
	if err := validateName(name); err != nil {
		return err
	}
	err := os.Remove(s.path(container, name))
	if os.IsNotExist(err) {
		return fmt.Errorf("%s/%s: %w", container, name, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting blob %s/%s: %w", container, name, err)
	}
	return nil
}
