// Package blob provides the object storage abstraction used by every
// pipeline stage. Each container has exactly one writer stage; all
// cross-stage references are blob paths carried inside queue messages.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Container names. Each container is written by exactly one stage.
const (
	// ContainerCollected holds raw collection batches written by the collector.
	// Path convention: collections/YYYY/MM/DD/collection_<ts>.json
	ContainerCollected = "collected-content"

	// ContainerProcessed holds article artifacts written by the processor.
	// Path convention: articles/YYYY-MM-DD/{slug}.json
	ContainerProcessed = "processed-content"

	// ContainerMarkdown holds rendered markdown written by the renderer.
	// Path convention: articles/YYYY-MM-DD/{slug}.md
	ContainerMarkdown = "markdown-content"

	// ContainerWeb is the live static site served to the public.
	ContainerWeb = "static-sites"

	// ContainerBackup mirrors the web container before each deploy.
	ContainerBackup = "backup"
)

// ErrNotFound is returned when a blob or container does not exist.
var ErrNotFound = errors.New("blob not found")

// Store is the object storage contract shared by all stages.
// Names may contain forward slashes to form pseudo-directories.
type Store interface {
	// Upload writes data under container/name, overwriting any existing blob.
	Upload(ctx context.Context, container, name string, data []byte) error

	// Download returns the blob contents, or ErrNotFound.
	Download(ctx context.Context, container, name string) ([]byte, error)

	// List returns the names of all blobs in the container whose name
	// starts with prefix, in lexical order. Empty prefix lists everything.
	List(ctx context.Context, container, prefix string) ([]string, error)

	// Exists reports whether the blob is present without downloading it.
	Exists(ctx context.Context, container, name string) (bool, error)

	// Delete removes the blob. Deleting a missing blob returns ErrNotFound.
	Delete(ctx context.Context, container, name string) error
}

// validateName rejects blob names that could escape the container root
// or that no backend can represent.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("blob name is empty")
	}
	if strings.HasPrefix(name, "/") {
		return fmt.Errorf("blob name %q is absolute", name)
	}
	if strings.Contains(name, "\\") {
		return fmt.Errorf("blob name %q contains a backslash", name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return fmt.Errorf("blob name %q contains a parent traversal", name)
		}
	}
	return nil
}

// validateContainer rejects container names outside the flat naming scheme.
func validateContainer(container string) error {
	if container == "" {
		return fmt.Errorf("container name is empty")
	}
	if strings.ContainsAny(container, "/\\") {
		return fmt.Errorf("container name %q contains a path separator", container)
	}
	return nil
}
