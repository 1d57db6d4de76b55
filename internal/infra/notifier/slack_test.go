package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackAnnouncePostsBlocks(t *testing.T) {
	var got slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, s.Announce(context.Background(), testAnnouncement()))

	assert.Equal(t, "Site deployed: 12 files deployed in 42s.", got.Text)
	require.Len(t, got.Blocks, 2)

	section := got.Blocks[0]
	assert.Equal(t, "section", section.Type)
	require.NotNil(t, section.Text)
	assert.Equal(t, "mrkdwn", section.Text.Type)
	assert.Contains(t, section.Text.Text, "<https://news.example.com|Site deployed>")
	assert.Contains(t, section.Text.Text, "12 files deployed in 42s.")

	footer := got.Blocks[1]
	assert.Equal(t, "context", footer.Type)
	require.Len(t, footer.Elements, 1)
	assert.Contains(t, footer.Elements[0].Text, "col_7_abc")
	assert.Contains(t, footer.Elements[0].Text, "2026-08-25T10:30:00Z")
}

func TestSlackAnnounceClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("invalid_payload"))
	}))
	defer srv.Close()

	s := NewSlack(SlackConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	err := s.Announce(context.Background(), testAnnouncement())
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, int32(1), requests.Load(), "client errors must not be retried")
}

func TestSlackBlocksWithoutSiteURL(t *testing.T) {
	ann := testAnnouncement()
	ann.SiteURL = ""

	s := NewSlack(SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/T/B/t", Timeout: time.Second})
	payload := s.buildBlocks(ann)

	require.Len(t, payload.Blocks, 2)
	assert.Contains(t, payload.Blocks[0].Text.Text, "*Site deployed*")
	assert.NotContains(t, payload.Blocks[0].Text.Text, "<|")
}

func TestSlackRollbackFallbackText(t *testing.T) {
	ann := testAnnouncement()
	ann.RolledBack = true

	s := NewSlack(SlackConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/T/B/t", Timeout: time.Second})
	payload := s.buildBlocks(ann)

	assert.Contains(t, payload.Text, "Site deploy rolled back")
	assert.Contains(t, payload.Blocks[0].Text.Text, "restored from backup")
}
