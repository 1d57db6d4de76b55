package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fetcherParagraph = "Static site generators trade runtime flexibility for build-time " +
	"certainty. Every page is rendered once, checked once, and served as plain files, " +
	"which makes rollbacks a copy operation instead of a migration. "

func articlePage(title string) string {
	paras := ""
	for i := 0; i < 4; i++ {
		paras += "<p>" + fetcherParagraph + "</p>"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><article><h1>%s</h1>%s</article></body></html>`, title, title, paras)
}

func testConfig() ContentFetchConfig {
	cfg := DefaultContentFetchConfig()
	cfg.Timeout = 5 * time.Second
	cfg.DenyPrivateIPs = false
	return cfg
}

func TestFetchContentExtractsArticle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(articlePage("Build Pipelines Explained")))
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	content, err := f.FetchContent(context.Background(), server.URL+"/article")
	require.NoError(t, err)
	assert.Contains(t, content, "Static site generators")
}

func TestFetchContentRejectsPrivateTargets(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.DenyPrivateIPs = true
	f := NewReadabilityFetcher(cfg)

	_, err := f.FetchContent(context.Background(), server.URL+"/article")
	require.Error(t, err)
	assert.Zero(t, hits.Load(), "validation must reject the URL before any request")
}

func TestFetchContentRejectsBadScheme(t *testing.T) {
	f := NewReadabilityFetcher(testConfig())
	_, err := f.FetchContent(context.Background(), "ftp://example.com/article")
	require.Error(t, err)
}

func TestFetchContentHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	_, err := f.FetchContent(context.Background(), server.URL+"/article")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestFetchContentBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", 4096) + "</body></html>"))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.MaxBodySize = 1024
	f := NewReadabilityFetcher(cfg)

	_, err := f.FetchContent(context.Background(), server.URL+"/article")
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestFetchContentTooManyRedirects(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/hop/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	})

	cfg := testConfig()
	cfg.MaxRedirects = 2
	f := NewReadabilityFetcher(cfg)

	_, err := f.FetchContent(context.Background(), server.URL+"/hop/")
	require.ErrorIs(t, err, ErrTooManyRedirects)
}

func TestFetchContentNoReadableContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><head></head><body></body></html>"))
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	_, err := f.FetchContent(context.Background(), server.URL+"/empty")
	require.ErrorIs(t, err, ErrExtractFailed)
}

func TestFetchContentTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(articlePage("Too Slow")))
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	f := NewReadabilityFetcher(cfg)

	_, err := f.FetchContent(context.Background(), server.URL+"/slow")
	require.ErrorIs(t, err, ErrFetchTimeout)
}

func TestFetchContentBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())

	var lastErr error
	for i := 0; i < 10; i++ {
		_, lastErr = f.FetchContent(context.Background(), server.URL+"/article")
		require.Error(t, lastErr)
	}

	// The breaker trips after the fifth consecutive failure; the remaining
	// calls never reach the server.
	assert.Equal(t, int32(5), hits.Load())
	assert.ErrorIs(t, lastErr, gobreaker.ErrOpenState)
}

func BenchmarkFetchContent(b *testing.B) {
	page := []byte(articlePage("Benchmark Article"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(page)
	}))
	defer server.Close()

	f := NewReadabilityFetcher(testConfig())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := f.FetchContent(ctx, server.URL+"/article"); err != nil {
			b.Fatal(err)
		}
	}
}
