// The renderer binary consumes markdown-generation requests, renders article
// artifacts into markdown blobs, and requests a site build once a collection
// batch completes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contentmill/internal/infra/blob"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/worker"
	"contentmill/internal/usecase/markdown"
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

	serviceConfig := markdown.ServiceConfig{
		Template: config.GetEnvString("MARKDOWN_TEMPLATE", ""),
	}

	svc := markdown.NewService(blobs, backend.Queue(queue.QueuePublishRequests), serviceConfig)

	runtime := worker.NewRuntime(queue.QueueMarkdownRequests,
		backend.Queue(queue.QueueMarkdownRequests),
		svc.HandleMessage, blobs, workerMetrics, *workerConfig, logger)

	worker.StartMetricsServer(ctx, workerConfig.MetricsPort, logger)

	healthServer := worker.NewHealthServer("renderer",
		fmt.Sprintf(":%d", workerConfig.HealthPort), runtime.Health, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runtime.Start(ctx)
	healthServer.SetReady(true)
	logger.Info("renderer started", slog.String("queue", queue.QueueMarkdownRequests))

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
