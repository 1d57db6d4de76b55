package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/resilience/retry"
)

func testFetcher(t *testing.T, server *httptest.Server, config FetchConfig) *Fetcher {
	t.Helper()
	config.DenyPrivateIPs = false
	l := NewLimiter("test", 6000, time.Millisecond, time.Second)
	return NewFetcher(server.Client(), l, config, nil)
}

func TestFetcherGetReturnsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"kind":"Listing"}`))
	}))
	defer server.Close()

	f := testFetcher(t, server, FetchConfig{})
	body, err := f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"Listing"}`, string(body))
}

func TestFetcherGetSetsRequestHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := testFetcher(t, server, FetchConfig{})
	header := http.Header{}
	header.Set("Accept", "application/json")
	_, err := f.Get(context.Background(), server.URL, header)
	require.NoError(t, err)
}

func TestFetcherGet429SetsBackoffFromRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	l := NewLimiter("test", 6000, time.Millisecond, time.Minute)
	f := NewFetcher(server.Client(), l, FetchConfig{DenyPrivateIPs: false}, nil)

	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)

	var httpErr *retry.HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusTooManyRequests, httpErr.StatusCode)
	assert.True(t, retry.IsRetryable(err), "429 should be retryable")
	assert.Equal(t, 7*time.Second, l.CurrentDelay())
}

func TestFetcherGet429WithoutRetryAfterDoubles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	l := NewLimiter("test", 6000, 2*time.Second, time.Minute)
	l.sleep = func(context.Context, time.Duration) error { return nil }
	f := NewFetcher(server.Client(), l, FetchConfig{DenyPrivateIPs: false}, nil)

	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Equal(t, 2*time.Second, l.CurrentDelay())

	_, err = f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Equal(t, 4*time.Second, l.CurrentDelay())
}

func TestFetcherGetSuccessResetsBackoff(t *testing.T) {
	status := http.StatusTooManyRequests
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer server.Close()

	l := NewLimiter("test", 6000, 2*time.Second, time.Minute)
	l.sleep = func(context.Context, time.Duration) error { return nil }
	f := NewFetcher(server.Client(), l, FetchConfig{DenyPrivateIPs: false}, nil)

	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	require.Equal(t, 2*time.Second, l.CurrentDelay())

	status = http.StatusOK
	_, err = f.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), l.CurrentDelay())
}

func TestFetcherGetServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := testFetcher(t, server, FetchConfig{})
	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.True(t, retry.IsRetryable(err))
}

func TestFetcherGetClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := testFetcher(t, server, FetchConfig{})
	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.False(t, retry.IsRetryable(err))
}

func TestFetcherGetRejectsOversizedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 2048)))
	}))
	defer server.Close()

	f := testFetcher(t, server, FetchConfig{MaxBodySize: 1024})
	_, err := f.Get(context.Background(), server.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestFetcherGetRejectsPrivateURLWhenDenied(t *testing.T) {
	l := NewLimiter("test", 60, time.Second, time.Minute)
	f := NewFetcher(http.DefaultClient, l, FetchConfig{DenyPrivateIPs: true}, nil)

	_, err := f.Get(context.Background(), "http://127.0.0.1:6379/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid fetch URL")
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  *float64
	}{
		{name: "empty", value: "", want: nil},
		{name: "seconds", value: "30", want: floatPtr(30)},
		{name: "garbage", value: "soon", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseRetryAfter(tt.value)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 0.001)
		})
	}
}

func TestParseRetryAfterHTTPDate(t *testing.T) {
	at := time.Now().Add(90 * time.Second).UTC()
	got := parseRetryAfter(at.Format(http.TimeFormat))
	require.NotNil(t, got)
	assert.InDelta(t, 90, *got, 2)

	past := time.Now().Add(-time.Hour).UTC()
	got = parseRetryAfter(past.Format(http.TimeFormat))
	require.NotNil(t, got)
	assert.Equal(t, float64(0), *got)
}

func TestSharedClientSingleton(t *testing.T) {
	ResetClient()
	t.Cleanup(ResetClient)

	c1 := SharedClient()
	c2 := SharedClient()
	assert.Same(t, c1, c2)

	ResetClient()
	c3 := SharedClient()
	assert.NotSame(t, c1, c3)
}

func TestSharedClientSetsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ResetClient()
	t.Cleanup(ResetClient)

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := SharedClient().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, UserAgent, gotUA)
}
