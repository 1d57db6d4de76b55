package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"contentmill/pkg/config"
)

// SourceDiagnostic represents the diagnostic result for a single source target
type SourceDiagnostic struct {
	Source        string `json:"source"` // "reddit", "mastodon", "rss", "web"
	Target        string `json:"target"` // subreddit, instance, feed URL, listing URL
	URL           string `json:"url"`
	Status        string `json:"status"` // "OK", "HTTP_ERROR", "PARSE_ERROR", "EMPTY", "TIMEOUT", "REDIRECT"
	HTTPCode      int    `json:"http_code"`
	ItemCount     int    `json:"item_count"`
	LatestDate    string `json:"latest_date,omitempty"`
	FeedType      string `json:"feed_type,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ResponseTime  int64  `json:"response_time_ms"`
	ContentLength int64  `json:"content_length"`
}

func main() {
	targets := collectTargets()
	if len(targets) == 0 {
		log.Fatal("No sources configured. Set REDDIT_SUBREDDITS, MASTODON_INSTANCE_URL, RSS_FEED_URLS, or WEB_LISTING_URL.")
	}

	log.Printf("Diagnosing %d source targets...\n", len(targets))

	diagnostics := make([]SourceDiagnostic, 0, len(targets))
	for i, t := range targets {
		log.Printf("[%d/%d] Diagnosing: %s %s", i+1, len(targets), t.source, t.target)
		diag := diagnoseTarget(t, 30*time.Second)
		diagnostics = append(diagnostics, diag)

		// Rate limiting to be nice to servers
		time.Sleep(500 * time.Millisecond)
	}

	generateReport(diagnostics)
	generateJSONReport(diagnostics)
	generateEnvFixes(diagnostics)
}

// target is one probeable endpoint derived from the collector's environment.
type target struct {
	source string
	target string
	url    string
	parse  func(body []byte, contentType string) (itemCount int, latestDate, feedType string, err error)
}

// collectTargets expands the collector's source configuration into one
// probe per subreddit, feed, timeline, and listing page.
func collectTargets() []target {
	var targets []target

	redditBase := config.GetEnvString("REDDIT_BASE_URL", "https://www.reddit.com")
	redditListing := config.GetEnvString("REDDIT_LISTING", "hot")
	for _, sub := range config.GetEnvStringList("REDDIT_SUBREDDITS", nil) {
		targets = append(targets, target{
			source: "reddit",
			target: "r/" + sub,
			url:    fmt.Sprintf("%s/r/%s/%s.json?limit=5", strings.TrimSuffix(redditBase, "/"), sub, redditListing),
			parse:  parseRedditListing,
		})
	}

	if instance := os.Getenv("MASTODON_INSTANCE_URL"); instance != "" {
		timeline := config.GetEnvString("MASTODON_TIMELINE", "public")
		endpoint := "/api/v1/timelines/public?limit=5"
		if tag, ok := strings.CutPrefix(timeline, "tag/"); ok {
			endpoint = "/api/v1/timelines/tag/" + url.PathEscape(tag) + "?limit=5"
		}
		targets = append(targets, target{
			source: "mastodon",
			target: instance,
			url:    strings.TrimSuffix(instance, "/") + endpoint,
			parse:  parseMastodonTimeline,
		})
	}

	for _, feedURL := range config.GetEnvStringList("RSS_FEED_URLS", nil) {
		targets = append(targets, target{
			source: "rss",
			target: feedURL,
			url:    feedURL,
			parse:  parseFeed,
		})
	}

	if listingURL := os.Getenv("WEB_LISTING_URL"); listingURL != "" {
		selector := config.GetEnvString("WEB_LINK_SELECTOR", "article a")
		targets = append(targets, target{
			source: "web",
			target: listingURL,
			url:    listingURL,
			parse: func(body []byte, contentType string) (int, string, string, error) {
				return parseListingPage(body, selector)
			},
		})
	}

	return targets
}

func diagnoseTarget(t target, timeout time.Duration) SourceDiagnostic {
	diag := SourceDiagnostic{
		Source: t.source,
		Target: t.target,
		URL:    t.url,
	}

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", t.url, nil)
	if err != nil {
		diag.Status = "REQUEST_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}

	req.Header.Set("User-Agent", "contentmill-diagnostic/1.0")
	req.Header.Set("Accept", "application/json, application/rss+xml, application/atom+xml, application/xml, text/html")

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	diag.ResponseTime = time.Since(startTime).Milliseconds()

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			diag.Status = "TIMEOUT"
			diag.ErrorMessage = fmt.Sprintf("Request timeout after %v", timeout)
		} else {
			diag.Status = "HTTP_ERROR"
			diag.ErrorMessage = err.Error()
		}
		return diag
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("Failed to close response body: %v", err)
		}
	}()

	diag.HTTPCode = resp.StatusCode
	diag.ContentLength = resp.ContentLength

	if resp.Request.URL.String() != t.url {
		diag.RedirectURL = resp.Request.URL.String()
		diag.Status = "REDIRECT"
	}

	if resp.StatusCode != 200 {
		diag.Status = "HTTP_ERROR"
		diag.ErrorMessage = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status)
		return diag
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		diag.Status = "READ_ERROR"
		diag.ErrorMessage = err.Error()
		return diag
	}

	itemCount, latestDate, feedType, parseErr := t.parse(body, resp.Header.Get("Content-Type"))
	if parseErr != nil {
		diag.Status = "PARSE_ERROR"
		diag.ErrorMessage = parseErr.Error()
		diag.FeedType = feedType
		return diag
	}

	diag.ItemCount = itemCount
	diag.LatestDate = latestDate
	diag.FeedType = feedType

	if itemCount == 0 {
		diag.Status = "EMPTY"
		diag.ErrorMessage = "Target has no items"
		return diag
	}

	if diag.Status != "REDIRECT" {
		diag.Status = "OK"
	}
	return diag
}

func parseFeed(body []byte, contentType string) (int, string, string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return 0, "", "UNKNOWN", fmt.Errorf("failed to parse feed: %v. Content preview: %s", err, preview)
	}

	latest := ""
	if len(feed.Items) > 0 {
		if feed.Items[0].PublishedParsed != nil {
			latest = feed.Items[0].PublishedParsed.Format(time.RFC3339)
		} else if feed.Items[0].UpdatedParsed != nil {
			latest = feed.Items[0].UpdatedParsed.Format(time.RFC3339)
		}
	}
	return len(feed.Items), latest, strings.ToUpper(feed.FeedType), nil
}

func parseRedditListing(body []byte, contentType string) (int, string, string, error) {
	var listing struct {
		Data struct {
			Children []struct {
				Data struct {
					CreatedUTC float64 `json:"created_utc"`
				} `json:"data"`
			} `json:"children"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &listing); err != nil {
		return 0, "", "JSON", fmt.Errorf("failed to parse reddit listing: %v", err)
	}

	latest := ""
	if len(listing.Data.Children) > 0 {
		created := time.Unix(int64(listing.Data.Children[0].Data.CreatedUTC), 0).UTC()
		latest = created.Format(time.RFC3339)
	}
	return len(listing.Data.Children), latest, "JSON", nil
}

func parseMastodonTimeline(body []byte, contentType string) (int, string, string, error) {
	var statuses []struct {
		CreatedAt time.Time `json:"created_at"`
	}
	if err := json.Unmarshal(body, &statuses); err != nil {
		return 0, "", "JSON", fmt.Errorf("failed to parse mastodon timeline: %v", err)
	}

	latest := ""
	if len(statuses) > 0 {
		latest = statuses[0].CreatedAt.UTC().Format(time.RFC3339)
	}
	return len(statuses), latest, "JSON", nil
}

func parseListingPage(body []byte, selector string) (int, string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0, "", "HTML", fmt.Errorf("failed to parse listing page: %v", err)
	}

	links := 0
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		if href, ok := sel.Attr("href"); ok && href != "" {
			links++
		}
	})
	return links, "", "HTML", nil
}

// writef is a helper to write to file and handle errors
func writef(f *os.File, format string, args ...interface{}) error {
	_, err := fmt.Fprintf(f, format, args...)
	return err
}

func generateReport(diagnostics []SourceDiagnostic) {
	f, err := os.Create("source_diagnostic_report.txt")
	if err != nil {
		log.Printf("Failed to create report file: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close report file: %v", err)
		}
	}()

	writeErr := func(err error) bool {
		if err != nil {
			log.Printf("Failed to write to report: %v", err)
			return true
		}
		return false
	}

	if writeErr(writef(f, "===============================================\n")) {
		return
	}
	if writeErr(writef(f, "Content Source Diagnostic Report\n")) {
		return
	}
	if writeErr(writef(f, "Generated: %s\n", time.Now().Format(time.RFC3339))) {
		return
	}
	if writeErr(writef(f, "Total Targets: %d\n", len(diagnostics))) {
		return
	}
	if writeErr(writef(f, "===============================================\n\n")) {
		return
	}

	statusCount := make(map[string]int)
	var okCount, errorCount int
	for _, d := range diagnostics {
		statusCount[d.Status]++
		if d.Status == "OK" || d.Status == "REDIRECT" {
			okCount++
		} else {
			errorCount++
		}
	}

	_ = writef(f, "SUMMARY:\n")
	_ = writef(f, "  ✅ Working: %d (%.1f%%)\n", okCount, float64(okCount)/float64(len(diagnostics))*100)
	_ = writef(f, "  ❌ Broken: %d (%.1f%%)\n", errorCount, float64(errorCount)/float64(len(diagnostics))*100)
	_ = writef(f, "\nSTATUS BREAKDOWN:\n")
	for status, count := range statusCount {
		_ = writef(f, "  %s: %d\n", status, count)
	}
	_ = writef(f, "\n")

	_ = writef(f, "DETAILED RESULTS:\n")
	_ = writef(f, "===============================================\n\n")

	_ = writef(f, "✅ WORKING TARGETS (%d):\n", okCount)
	_ = writef(f, "-------------------------------------------\n")
	for _, d := range diagnostics {
		if d.Status == "OK" || d.Status == "REDIRECT" {
			_ = writef(f, "Source: %s | Target: %s\n", d.Source, d.Target)
			_ = writef(f, "  URL: %s\n", d.URL)
			_ = writef(f, "  Type: %s | Items: %d | Latest: %s\n", d.FeedType, d.ItemCount, d.LatestDate)
			_ = writef(f, "  Response: %dms | HTTP: %d\n", d.ResponseTime, d.HTTPCode)
			if d.RedirectURL != "" {
				_ = writef(f, "  ⚠️  Redirected to: %s\n", d.RedirectURL)
			}
			_ = writef(f, "\n")
		}
	}

	_ = writef(f, "\n❌ BROKEN TARGETS (%d):\n", errorCount)
	_ = writef(f, "-------------------------------------------\n")
	for _, d := range diagnostics {
		if d.Status != "OK" && d.Status != "REDIRECT" {
			_ = writef(f, "Source: %s | Target: %s\n", d.Source, d.Target)
			_ = writef(f, "  URL: %s\n", d.URL)
			_ = writef(f, "  Status: %s | HTTP: %d\n", d.Status, d.HTTPCode)
			_ = writef(f, "  Error: %s\n", d.ErrorMessage)
			_ = writef(f, "  Response: %dms\n", d.ResponseTime)
			_ = writef(f, "\n")
		}
	}

	log.Println("✅ Text report generated: source_diagnostic_report.txt")
}

func generateJSONReport(diagnostics []SourceDiagnostic) {
	f, err := os.Create("source_diagnostic_report.json")
	if err != nil {
		log.Printf("Failed to create JSON report: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close JSON report file: %v", err)
		}
	}()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(diagnostics); err != nil {
		log.Printf("Failed to write JSON report: %v", err)
		return
	}

	log.Println("✅ JSON report generated: source_diagnostic_report.json")
}

// generateEnvFixes writes suggested environment edits for broken targets:
// feeds to drop from RSS_FEED_URLS, redirected feeds to update, and sources
// to disable outright.
func generateEnvFixes(diagnostics []SourceDiagnostic) {
	f, err := os.Create("source_fixes.env")
	if err != nil {
		log.Printf("Failed to create env fixes file: %v", err)
		return
	}
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close env fixes file: %v", err)
		}
	}()

	_ = writef(f, "# Suggested configuration fixes for broken sources\n")
	_ = writef(f, "# Generated: %s\n\n", time.Now().Format(time.RFC3339))

	hasRedirects := false
	for _, d := range diagnostics {
		if d.Source == "rss" && d.RedirectURL != "" && d.RedirectURL != d.URL {
			if !hasRedirects {
				_ = writef(f, "# Redirected feeds: replace the old URL in RSS_FEED_URLS\n")
				hasRedirects = true
			}
			_ = writef(f, "# %s -> %s\n", d.URL, d.RedirectURL)
		}
	}
	if hasRedirects {
		_ = writef(f, "\n")
	}

	var goodFeeds []string
	brokenFeeds := 0
	for _, d := range diagnostics {
		if d.Source != "rss" {
			continue
		}
		if d.Status == "OK" || d.Status == "REDIRECT" {
			goodFeeds = append(goodFeeds, d.URL)
		} else {
			brokenFeeds++
		}
	}
	if brokenFeeds > 0 {
		_ = writef(f, "# RSS_FEED_URLS with the %d broken feeds removed:\n", brokenFeeds)
		_ = writef(f, "RSS_FEED_URLS=%s\n\n", strings.Join(goodFeeds, ","))
	}

	for _, d := range diagnostics {
		if d.Source == "rss" || d.Status == "OK" || d.Status == "REDIRECT" {
			continue
		}
		_ = writef(f, "# %s target %s is broken (%s): consider %s_ENABLED=false\n",
			d.Source, d.Target, d.Status, strings.ToUpper(d.Source))
	}

	log.Println("✅ Env fixes generated: source_fixes.env")
}
