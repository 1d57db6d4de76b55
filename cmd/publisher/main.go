// The publisher binary consumes site-publishing requests, assembles a Hugo
// build tree from the markdown container, runs the site build, and deploys
// the output atomically with a backup of the previous site.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/notifier"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/sitegen"
	"contentmill/internal/infra/worker"
	"contentmill/internal/usecase/notify"
	"contentmill/internal/usecase/publish"
	"contentmill/pkg/config"
)

// shutdownTimeout bounds the wait for the in-flight batch on SIGTERM. A site
// build can take a while; past it the message redelivers after the
// visibility timeout and the next attempt rebuilds from scratch.
const shutdownTimeout = time.Minute

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

	builder := createSiteBuilder(logger)
	announcer := setupAnnouncer(logger)

	serviceConfig := publish.ServiceConfig{
		ScratchDir: config.GetEnvString("PUBLISH_SCRATCH_DIR", ""),
		SiteURL:    config.GetEnvString("SITE_BASE_URL", ""),
	}

	svc := publish.NewService(blobs, builder, serviceConfig)
	svc.Announcer = announcer

	runtime := worker.NewRuntime(queue.QueuePublishRequests,
		backend.Queue(queue.QueuePublishRequests),
		svc.HandleMessage, blobs, workerMetrics, *workerConfig, logger)

	worker.StartMetricsServer(ctx, workerConfig.MetricsPort, logger)

	healthServer := worker.NewHealthServer("publisher",
		fmt.Sprintf(":%d", workerConfig.HealthPort), runtime.Health, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runtime.Start(ctx)
	healthServer.SetReady(true)
	logger.Info("publisher started", slog.String("queue", queue.QueuePublishRequests))

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

	notifyCtx, notifyCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := announcer.Shutdown(notifyCtx); err != nil {
		logger.Warn("announcement dispatcher did not drain in time", slog.Any("error", err))
	}
	notifyCancel()

	cancel()
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

// createSiteBuilder configures the Hugo wrapper.
//
// Environment variables:
//   - HUGO_BINARY: hugo executable path (default: "hugo" on PATH)
//   - HUGO_CONFIG_PATH: site config passed to --config (optional)
//   - SITE_BASE_URL: canonical base URL passed to --baseURL (optional)
//   - HUGO_BUILD_TIMEOUT: one build's time budget (default: 2m)
func createSiteBuilder(logger *slog.Logger) *sitegen.Hugo {
	binary := config.GetEnvString("HUGO_BINARY", "")
	configPath := config.GetEnvString("HUGO_CONFIG_PATH", "")
	baseURL := config.GetEnvString("SITE_BASE_URL", "")
	timeout := config.GetEnvDuration("HUGO_BUILD_TIMEOUT", 0)

	hugo := sitegen.NewHugo(binary, configPath, baseURL, timeout)
	logger.Info("site builder configured",
		slog.String("binary", hugo.Binary),
		slog.String("base_url", baseURL))
	return hugo
}

// setupAnnouncer wires the deploy announcement channels. Both channels are
// always registered so health reports cover them; disabled ones are skipped
// at dispatch time.
//
// Environment variables:
//   - NOTIFY_MAX_CONCURRENT: worker pool size for deliveries (default: 10)
func setupAnnouncer(logger *slog.Logger) notify.Service {
	discordConfig := loadDiscordConfig(logger)
	slackConfig := loadSlackConfig(logger)

	channels := []notify.Channel{
		notify.NewDiscordChannel(discordConfig),
		notify.NewSlackChannel(slackConfig),
	}
	logger.Info("deploy announcements configured",
		slog.Bool("discord", discordConfig.Enabled),
		slog.Bool("slack", slackConfig.Enabled))
	return notify.NewService(channels, config.GetEnvInt("NOTIFY_MAX_CONCURRENT", 0))
}

// loadDiscordConfig loads and validates the Discord webhook configuration.
// Any validation failure disables the channel rather than aborting startup.
//
// Environment variables:
//   - DISCORD_ENABLED: enables Discord deploy announcements (default: false)
//   - DISCORD_WEBHOOK_URL: Discord webhook URL (required if enabled)
func loadDiscordConfig(logger *slog.Logger) notifier.DiscordConfig {
	if os.Getenv("DISCORD_ENABLED") != "true" {
		return notifier.DiscordConfig{}
	}

	webhookURL := os.Getenv("DISCORD_WEBHOOK_URL")
	if webhookURL == "" {
		logger.Warn("discord webhook URL is empty, disabling announcements")
		return notifier.DiscordConfig{}
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid discord webhook URL, disabling announcements", slog.Any("error", err))
		return notifier.DiscordConfig{}
	}
	if u.Scheme != "https" {
		logger.Warn("discord webhook URL must use https, disabling announcements")
		return notifier.DiscordConfig{}
	}
	if u.Host != "discord.com" {
		logger.Warn("invalid discord webhook host, disabling announcements", slog.String("host", u.Host))
		return notifier.DiscordConfig{}
	}
	if !strings.HasPrefix(u.Path, "/api/webhooks/") {
		logger.Warn("invalid discord webhook path, disabling announcements", slog.String("path", u.Path))
		return notifier.DiscordConfig{}
	}

	return notifier.DiscordConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}

// loadSlackConfig loads and validates the Slack webhook configuration.
// Any validation failure disables the channel rather than aborting startup.
//
// Environment variables:
//   - SLACK_ENABLED: enables Slack deploy announcements (default: false)
//   - SLACK_WEBHOOK_URL: Slack Incoming Webhook URL (required if enabled)
func loadSlackConfig(logger *slog.Logger) notifier.SlackConfig {
	if os.Getenv("SLACK_ENABLED") != "true" {
		return notifier.SlackConfig{}
	}

	webhookURL := os.Getenv("SLACK_WEBHOOK_URL")
	if webhookURL == "" {
		logger.Warn("slack webhook URL is empty, disabling announcements")
		return notifier.SlackConfig{}
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		logger.Warn("invalid slack webhook URL, disabling announcements", slog.Any("error", err))
		return notifier.SlackConfig{}
	}
	if u.Scheme != "https" {
		logger.Warn("slack webhook URL must use https, disabling announcements")
		return notifier.SlackConfig{}
	}
	if u.Host != "hooks.slack.com" {
		logger.Warn("invalid slack webhook host, disabling announcements", slog.String("host", u.Host))
		return notifier.SlackConfig{}
	}
	if !strings.HasPrefix(u.Path, "/services/") {
		logger.Warn("invalid slack webhook path, disabling announcements", slog.String("path", u.Path))
		return notifier.SlackConfig{}
	}

	return notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: webhookURL,
		Timeout:    30 * time.Second,
	}
}
