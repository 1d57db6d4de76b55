package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
)

func testAnnouncement() *entity.SiteAnnouncement {
	return &entity.SiteAnnouncement{
		SiteURL:       "https://news.example.com",
		FilesUploaded: 12,
		Duration:      42 * time.Second,
		CorrelationID: "col_7_abc",
		FinishedAt:    time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC),
	}
}

func TestDiscordAnnouncePostsEmbed(t *testing.T) {
	var got discordPayload
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(DiscordConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, d.Announce(context.Background(), testAnnouncement()))

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "Site deployed", embed.Title)
	assert.Contains(t, embed.Description, "12 files deployed in 42s.")
	assert.Equal(t, "https://news.example.com", embed.URL)
	assert.Equal(t, colorDeployed, embed.Color)
	assert.Equal(t, "col_7_abc", embed.Footer.Text)
	assert.Equal(t, "2026-08-25T10:30:00Z", embed.Timestamp)
	assert.Equal(t, int32(1), requests.Load())
}

func TestDiscordAnnounceRollback(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ann := testAnnouncement()
	ann.RolledBack = true
	ann.Errors = []string{"upload index.html: connection reset"}

	d := NewDiscord(DiscordConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, d.Announce(context.Background(), ann))

	require.Len(t, got.Embeds, 1)
	embed := got.Embeds[0]
	assert.Equal(t, "Site deploy rolled back", embed.Title)
	assert.Equal(t, colorRolledBack, embed.Color)
	assert.Contains(t, embed.Description, "restored from backup")
	assert.Contains(t, embed.Description, "upload index.html: connection reset")
}

func TestDiscordAnnounceRetriesAfterRateLimit(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"rate limited","retry_after":0.01}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscord(DiscordConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, d.Announce(context.Background(), testAnnouncement()))
	assert.Equal(t, int32(2), requests.Load())
}

func TestDiscordAnnounceClientErrorDoesNotRetry(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid embed"}`))
	}))
	defer srv.Close()

	d := NewDiscord(DiscordConfig{Enabled: true, WebhookURL: srv.URL, Timeout: 5 * time.Second})
	err := d.Announce(context.Background(), testAnnouncement())
	require.Error(t, err)

	var clientErr *ClientError
	require.ErrorAs(t, err, &clientErr)
	assert.Equal(t, http.StatusBadRequest, clientErr.StatusCode)
	assert.Equal(t, int32(1), requests.Load(), "client errors must not be retried")
}

func TestDiscordDescriptionStaysWithinLimit(t *testing.T) {
	ann := testAnnouncement()
	for i := 0; i < 10; i++ {
		ann.Errors = append(ann.Errors, strings.Repeat("x", 2000))
	}

	d := NewDiscord(DiscordConfig{Enabled: true, WebhookURL: "https://discord.com/api/webhooks/1/t", Timeout: time.Second})
	payload := d.buildEmbed(ann)

	require.Len(t, payload.Embeds, 1)
	description := payload.Embeds[0].Description
	assert.LessOrEqual(t, len(description), maxEmbedDescriptionLen)
	assert.True(t, strings.HasSuffix(description, truncationSuffix))
}

func TestExtractRetryAfterFallsBackToHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"7"}}}
	assert.Equal(t, 7*time.Second, extractRetryAfter(resp, []byte("not json")))

	resp = &http.Response{Header: http.Header{}}
	assert.Equal(t, 5*time.Second, extractRetryAfter(resp, nil))
}
