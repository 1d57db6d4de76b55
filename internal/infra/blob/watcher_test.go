package blob

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWatcherSeesUploadedBlob(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	watcher, err := NewWatcher(store, discardLogger())
	require.NoError(t, err)
	defer watcher.Close()

	// Warm-up upload creates the directory tree so the watcher can
	// register watches before the blob under test arrives.
	require.NoError(t, store.Upload(ctx, ContainerCollected,
		"collections/2025/01/15/warmup.json", []byte("{}")))
	time.Sleep(300 * time.Millisecond)

	require.NoError(t, store.Upload(ctx, ContainerCollected,
		"collections/2025/01/15/collection_1736899200.json", []byte("{}")))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-watcher.Events():
			if ev.Container == ContainerCollected &&
				ev.Name == "collections/2025/01/15/collection_1736899200.json" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for blob event")
		}
	}
}

func TestWatcherCloseStopsEvents(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	require.NoError(t, err)

	watcher, err := NewWatcher(store, discardLogger())
	require.NoError(t, err)
	require.NoError(t, watcher.Close())

	select {
	case _, open := <-watcher.Events():
		assert.False(t, open, "event channel should be closed after Close")
	case <-time.After(2 * time.Second):
		t.Fatal("event channel not closed after Close")
	}

	// Closing twice is safe.
	assert.NoError(t, watcher.Close())
}
