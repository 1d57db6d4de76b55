package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentmill/internal/domain/entity"
	"contentmill/internal/infra/httpx"
)

const webParagraph = "Distributed queues make failure handling explicit. Every consumer " +
	"must decide what to acknowledge, what to retry, and what to abandon, and those " +
	"decisions shape the reliability of the whole pipeline far more than raw throughput does. "

func webArticleHTML(title string) string {
	paras := ""
	for i := 0; i < 4; i++ {
		paras += "<p>" + webParagraph + "</p>"
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><title>%s</title></head>
<body><article><h1>%s</h1>%s</article></body></html>`, title, title, paras)
}

func webListingHTML(hrefs ...string) string {
	links := ""
	for i, href := range hrefs {
		links += fmt.Sprintf(`<article><a href="%s">Story %d</a></article>`, href, i+1)
	}
	return "<!DOCTYPE html><html><body>" + links + "</body></html>"
}

func TestWebStreamExtractsLinkedArticles(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webListingHTML("/posts/first", "/posts/second")))
	})
	mux.HandleFunc("/posts/first", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webArticleHTML("First Deep Dive")))
	})
	mux.HandleFunc("/posts/second", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webArticleHTML("Second Deep Dive")))
	})

	adapter := NewWebAdapter(WebConfig{
		ListingURL:    server.URL + "/",
		MinTextLength: 100,
		MaxItems:      10,
	}, server.Client(), httpx.FetchConfig{DenyPrivateIPs: false}, nil)

	items, err := Collect(context.Background(), adapter.Stream(context.Background()))
	require.NoError(t, err)

	require.Len(t, items, 2)
	assert.Equal(t, entity.SourceWeb, items[0].Source)
	assert.Contains(t, items[0].Content, "Distributed queues")
	assert.True(t, strings.HasPrefix(items[0].ID, "web_"))
	assert.Equal(t, server.URL+"/posts/first", items[0].URL)
}

func TestWebStreamSkipsShortArticles(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webListingHTML("/posts/stub", "/posts/full")))
	})
	mux.HandleFunc("/posts/stub", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article><p>too short</p></article></body></html>`))
	})
	mux.HandleFunc("/posts/full", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webArticleHTML("Full Article")))
	})

	adapter := NewWebAdapter(WebConfig{
		ListingURL:    server.URL + "/",
		MinTextLength: 100,
		MaxItems:      10,
	}, server.Client(), httpx.FetchConfig{DenyPrivateIPs: false}, nil)

	items, err := Collect(context.Background(), adapter.Stream(context.Background()))
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, server.URL+"/posts/full", items[0].URL)
}

func TestWebStreamContinuesPastFailedArticle(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webListingHTML("/posts/missing", "/posts/ok")))
	})
	mux.HandleFunc("/posts/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(webArticleHTML("Recovered")))
	})

	adapter := NewWebAdapter(WebConfig{
		ListingURL:    server.URL + "/",
		MinTextLength: 100,
		MaxItems:      10,
	}, server.Client(), httpx.FetchConfig{DenyPrivateIPs: false}, nil)

	items, err := Collect(context.Background(), adapter.Stream(context.Background()))
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, server.URL+"/posts/ok", items[0].URL)
}

func TestWebStreamEmptyWhenListingFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	adapter := NewWebAdapter(WebConfig{
		ListingURL: server.URL + "/",
		MaxItems:   10,
	}, server.Client(), httpx.FetchConfig{DenyPrivateIPs: false}, nil)

	items, err := Collect(context.Background(), adapter.Stream(context.Background()))
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMakeAbsoluteURL(t *testing.T) {
	base, err := url.Parse("https://news.example.com/section/index.html")
	require.NoError(t, err)

	tests := []struct {
		name string
		href string
		want string
	}{
		{name: "relative path", href: "/posts/a", want: "https://news.example.com/posts/a"},
		{name: "relative to dir", href: "posts/a", want: "https://news.example.com/section/posts/a"},
		{name: "absolute", href: "https://other.example.com/x", want: "https://other.example.com/x"},
		{name: "fragment only", href: "#top", want: ""},
		{name: "javascript scheme", href: "javascript:void(0)", want: ""},
		{name: "empty", href: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, makeAbsoluteURL(tt.href, base))
		})
	}
}
