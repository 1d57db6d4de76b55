// The collector binary consumes collection requests, pulls items from the
// enabled source adapters, runs them through the quality gate and dedup
// filters, and fans survivors out to the processing queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/fetcher"
	"contentmill/internal/infra/httpx"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/source"
	"contentmill/internal/infra/worker"
	"contentmill/internal/usecase/collect"
	"contentmill/pkg/config"
)

// shutdownTimeout bounds the wait for the in-flight batch on SIGTERM.
// Messages still in flight past it redeliver after the visibility timeout.
const shutdownTimeout = 30 * time.Second

func main() {
	loadDotEnv()
	logger := initLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	workerMetrics := worker.NewWorkerMetrics()
	workerMetrics.MustRegister()
	workerConfig, err := worker.LoadConfigFromEnv(logger, workerMetrics)
	if err != nil {
		logger.Error("failed to load worker configuration", slog.Any("error", err))
		os.Exit(1)
	}

	blobs := openBlobStore(logger)

	backend, err := queue.OpenBackend(logger)
	if err != nil {
		logger.Error("failed to open queue backend", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close queue backend", slog.Any("error", err))
		}
	}()

	adapters := setupAdapters(logger)
	if len(adapters) == 0 {
		logger.Warn("no source adapters enabled, collection cycles will produce nothing")
	}

	contentFetcher, fetchConfig := setupContentFetcher(logger)

	serviceConfig := collect.ServiceConfig{
		Strict:             config.GetEnvBool("COLLECTOR_STRICT", false),
		ScoreThreshold:     config.GetEnvFloat64("COLLECTOR_SCORE_THRESHOLD", 0),
		PerSourceCap:       config.GetEnvInt("COLLECTOR_PER_SOURCE_CAP", 0),
		MaxItems:           config.GetEnvInt("COLLECTOR_MAX_ITEMS", 0),
		SameDayDedup:       config.GetEnvBool("COLLECTOR_SAMEDAY_DEDUP", true),
		PublishedURLDedup:  config.GetEnvBool("COLLECTOR_PUBLISHED_URL_DEDUP", true),
		EnhanceThreshold:   fetchConfig.Threshold,
		EnhanceParallelism: fetchConfig.Parallelism,
	}

	svc := collect.NewService(adapters, contentFetcher, blobs,
		backend.Queue(queue.QueueProcessingRequests), serviceConfig)

	runtime := worker.NewRuntime(queue.QueueCollectionRequests,
		backend.Queue(queue.QueueCollectionRequests),
		svc.HandleMessage, blobs, workerMetrics, *workerConfig, logger)

	worker.StartMetricsServer(ctx, workerConfig.MetricsPort, logger)

	healthServer := worker.NewHealthServer("collector",
		fmt.Sprintf(":%d", workerConfig.HealthPort), runtime.Health, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runtime.Start(ctx)
	healthServer.SetReady(true)
	logger.Info("collector started",
		slog.String("queue", queue.QueueCollectionRequests),
		slog.Int("adapters", len(adapters)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	healthServer.SetReady(false)

	done := make(chan struct{})
	go func() {
		runtime.Stop()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("worker stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("worker did not stop in time, exiting anyway")
	}

	cancel()
	httpx.CloseClient()
	logger.Info("shutdown complete")
}

// loadDotEnv loads a .env file when one is present. Absence is the normal
// case outside local development.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		return
	}
	slog.Info("loaded environment from .env")
}

// initLogger initializes and returns a structured logger based on environment configuration.
func initLogger() *slog.Logger {
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// openBlobStore opens the filesystem blob store all pipeline stages share.
func openBlobStore(logger *slog.Logger) *blob.Filesystem {
	root := config.GetEnvString("BLOB_ROOT", "./data/blobs")
	store, err := blob.NewFilesystem(root)
	if err != nil {
		logger.Error("failed to open blob store",
			slog.String("root", root), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("blob store ready", slog.String("root", store.Root()))
	return store
}

// setupAdapters builds one adapter per enabled source. A source with a
// broken configuration is disabled with a warning rather than blocking
// the others.
func setupAdapters(logger *slog.Logger) []source.Adapter {
	client := httpx.SharedClient()
	fetchConfig := httpx.DefaultFetchConfig()

	var adapters []source.Adapter

	if cfg, ok := loadRedditConfig(logger); ok {
		adapters = append(adapters, source.NewRedditAdapter(cfg, client, fetchConfig, logger))
		logger.Info("reddit adapter enabled", slog.Int("subreddits", len(cfg.Subreddits)))
	}
	if cfg, ok := loadMastodonConfig(logger); ok {
		adapters = append(adapters, source.NewMastodonAdapter(cfg, client, fetchConfig, logger))
		logger.Info("mastodon adapter enabled", slog.String("instance", cfg.InstanceURL))
	}
	if cfg, ok := loadRSSConfig(logger); ok {
		adapters = append(adapters, source.NewRSSAdapter(cfg, client, logger))
		logger.Info("rss adapter enabled", slog.Int("feeds", len(cfg.FeedURLs)))
	}
	if cfg, ok := loadWebConfig(logger); ok {
		adapters = append(adapters, source.NewWebAdapter(cfg, client, fetchConfig, logger))
		logger.Info("web adapter enabled", slog.String("listing", cfg.ListingURL))
	}

	return adapters
}

// setupContentFetcher builds the enhancement fetcher. Configuration errors
// disable enhancement instead of blocking collection.
func setupContentFetcher(logger *slog.Logger) (collect.ContentFetcher, fetcher.ContentFetchConfig) {
	fetchConfig, err := fetcher.LoadContentFetchConfig()
	if err != nil {
		logger.Error("failed to load content fetch configuration", slog.Any("error", err))
		logger.Warn("content enhancement disabled due to configuration error")
		fetchConfig = fetcher.DefaultContentFetchConfig()
		fetchConfig.Enabled = false
	}

	if !fetchConfig.Enabled {
		logger.Info("content enhancement disabled")
		return nil, fetchConfig
	}

	logger.Info("content enhancement enabled",
		slog.Int("threshold", fetchConfig.Threshold),
		slog.Int("parallelism", fetchConfig.Parallelism),
		slog.Duration("timeout", fetchConfig.Timeout))
	return fetcher.NewReadabilityFetcher(fetchConfig), fetchConfig
}

// loadRedditConfig loads the Reddit source configuration from environment variables.
//
// Environment variables:
//   - REDDIT_ENABLED: enables the adapter (default: false)
//   - REDDIT_SUBREDDITS: comma-separated subreddit names (required if enabled)
//   - REDDIT_BASE_URL, REDDIT_LISTING, REDDIT_MIN_SCORE, REDDIT_MAX_ITEMS,
//     REDDIT_PAGE_SIZE, REDDIT_REQUESTS_PER_MINUTE: optional tuning knobs
func loadRedditConfig(logger *slog.Logger) (source.RedditConfig, bool) {
	if os.Getenv("REDDIT_ENABLED") != "true" {
		return source.RedditConfig{}, false
	}

	subreddits := config.GetEnvStringList("REDDIT_SUBREDDITS", nil)
	if len(subreddits) == 0 {
		logger.Warn("REDDIT_SUBREDDITS is empty, disabling the reddit source")
		return source.RedditConfig{}, false
	}

	return source.RedditConfig{
		BaseURL:           config.GetEnvString("REDDIT_BASE_URL", ""),
		Subreddits:        subreddits,
		Listing:           config.GetEnvString("REDDIT_LISTING", ""),
		MinScore:          config.GetEnvInt("REDDIT_MIN_SCORE", 0),
		MaxItems:          config.GetEnvInt("REDDIT_MAX_ITEMS", 0),
		PageSize:          config.GetEnvInt("REDDIT_PAGE_SIZE", 0),
		RequestsPerMinute: config.GetEnvInt("REDDIT_REQUESTS_PER_MINUTE", 0),
	}, true
}

// loadMastodonConfig loads the Mastodon source configuration from environment variables.
//
// Environment variables:
//   - MASTODON_ENABLED: enables the adapter (default: false)
//   - MASTODON_INSTANCE_URL: instance base URL, https only (required if enabled)
//   - MASTODON_TIMELINE, MASTODON_LOCAL, MASTODON_MIN_BOOSTS,
//     MASTODON_MIN_FAVOURITES, MASTODON_MAX_ITEMS, MASTODON_PAGE_SIZE,
//     MASTODON_REQUESTS_PER_MINUTE: optional tuning knobs
func loadMastodonConfig(logger *slog.Logger) (source.MastodonConfig, bool) {
	if os.Getenv("MASTODON_ENABLED") != "true" {
		return source.MastodonConfig{}, false
	}

	instanceURL := os.Getenv("MASTODON_INSTANCE_URL")
	if instanceURL == "" {
		logger.Warn("MASTODON_INSTANCE_URL is empty, disabling the mastodon source")
		return source.MastodonConfig{}, false
	}

	u, err := url.Parse(instanceURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		logger.Warn("MASTODON_INSTANCE_URL must be an https URL, disabling the mastodon source",
			slog.String("url", instanceURL))
		return source.MastodonConfig{}, false
	}

	return source.MastodonConfig{
		InstanceURL:       instanceURL,
		Timeline:          config.GetEnvString("MASTODON_TIMELINE", ""),
		Local:             config.GetEnvBool("MASTODON_LOCAL", false),
		MinBoosts:         config.GetEnvInt("MASTODON_MIN_BOOSTS", 0),
		MinFavourites:     config.GetEnvInt("MASTODON_MIN_FAVOURITES", 0),
		MaxItems:          config.GetEnvInt("MASTODON_MAX_ITEMS", 0),
		PageSize:          config.GetEnvInt("MASTODON_PAGE_SIZE", 0),
		RequestsPerMinute: config.GetEnvInt("MASTODON_REQUESTS_PER_MINUTE", 0),
	}, true
}

// loadRSSConfig loads the RSS source configuration from environment variables.
//
// Environment variables:
//   - RSS_ENABLED: enables the adapter (default: false)
//   - RSS_FEED_URLS: comma-separated feed URLs (required if enabled)
//   - RSS_MAX_ITEMS: optional item budget for one run
func loadRSSConfig(logger *slog.Logger) (source.RSSConfig, bool) {
	if os.Getenv("RSS_ENABLED") != "true" {
		return source.RSSConfig{}, false
	}

	feeds := config.GetEnvStringList("RSS_FEED_URLS", nil)
	if len(feeds) == 0 {
		logger.Warn("RSS_FEED_URLS is empty, disabling the rss source")
		return source.RSSConfig{}, false
	}

	return source.RSSConfig{
		FeedURLs: feeds,
		MaxItems: config.GetEnvInt("RSS_MAX_ITEMS", 0),
	}, true
}

// loadWebConfig loads the web scraping source configuration from environment variables.
//
// Environment variables:
//   - WEB_ENABLED: enables the adapter (default: false)
//   - WEB_LISTING_URL: the article listing page to scrape (required if enabled)
//   - WEB_LINK_SELECTOR, WEB_MIN_TEXT_LENGTH, WEB_MAX_ITEMS,
//     WEB_REQUESTS_PER_MINUTE: optional tuning knobs
func loadWebConfig(logger *slog.Logger) (source.WebConfig, bool) {
	if os.Getenv("WEB_ENABLED") != "true" {
		return source.WebConfig{}, false
	}

	listingURL := os.Getenv("WEB_LISTING_URL")
	if listingURL == "" {
		logger.Warn("WEB_LISTING_URL is empty, disabling the web source")
		return source.WebConfig{}, false
	}

	u, err := url.Parse(listingURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		logger.Warn("WEB_LISTING_URL is not a valid URL, disabling the web source",
			slog.String("url", listingURL))
		return source.WebConfig{}, false
	}

	return source.WebConfig{
		ListingURL:        listingURL,
		LinkSelector:      config.GetEnvString("WEB_LINK_SELECTOR", ""),
		MinTextLength:     config.GetEnvInt("WEB_MIN_TEXT_LENGTH", 0),
		MaxItems:          config.GetEnvInt("WEB_MAX_ITEMS", 0),
		RequestsPerMinute: config.GetEnvInt("WEB_REQUESTS_PER_MINUTE", 0),
	}, true
}
