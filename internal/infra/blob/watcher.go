package blob

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Event describes a blob that appeared in a filesystem-backed container.
type Event struct {
	Container string
	Name      string
}

// Watcher turns filesystem notifications on a Filesystem store root into
// blob-created events. Renames into place (the final step of an atomic
// upload) surface as create notifications, so consumers only ever see
// fully written blobs.
type Watcher struct {
	fw     *fsnotify.Watcher
	root   string
	logger *slog.Logger

	events chan Event

	mu      sync.Mutex
	closed  bool
	stopped chan struct{}
}

// NewWatcher starts watching the store root and all existing container
// directories. Directories created later are picked up automatically.
func NewWatcher(store *Filesystem, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating filesystem watcher: %w", err)
	}

	w := &Watcher{
		fw:      fw,
		root:    store.Root(),
		logger:  logger,
		events:  make(chan Event, 64),
		stopped: make(chan struct{}),
	}

	if err := w.watchTree(w.root); err != nil {
		fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

// Events returns the blob-created event stream. The channel is closed
// when the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.fw.Close()
	<-w.stopped
	return err
}

// watchTree registers the directory and every subdirectory below it.
func (w *Watcher) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run() {
	defer close(w.stopped)
	defer close(w.events)

	for {
		select {
		case ev, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error", slog.String("error", ev.Error()))
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			w.handleCreate(ev.Name)
		}
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Stat(path)
	if err != nil {
		// The file may already be gone (temp upload cleaned up).
		return
	}

	if info.IsDir() {
		if err := w.watchTree(path); err != nil {
			w.logger.Warn("failed to watch new directory",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return
	}

	if strings.HasPrefix(filepath.Base(path), ".upload-") {
		return
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) != 2 {
		// File directly under the root, not inside a container.
		return
	}

	select {
	case w.events <- Event{Container: parts[0], Name: parts[1]}:
	default:
		w.logger.Warn("blob event dropped, consumer too slow",
			slog.String("container", parts[0]),
			slog.String("name", parts[1]))
	}
}
