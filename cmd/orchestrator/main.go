// The orchestrator binary drives the pipeline: a cron schedule wakes the
// collector, and blob-created events from the shared store push finished
// collections and articles into their next queue.
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
	"contentmill/internal/usecase/orchestrate"
	"contentmill/pkg/config"
)

// shutdownTimeout bounds the wait for the event loop to drain on SIGTERM.
const shutdownTimeout = 30 * time.Second

func main() {
	loadDotEnv()
	logger := initLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	serviceConfig := orchestrate.ServiceConfig{
		Schedule:       config.GetEnvString("ORCHESTRATOR_SCHEDULE", ""),
		Timezone:       config.GetEnvString("ORCHESTRATOR_TIMEZONE", ""),
		DefaultSources: config.GetEnvStringList("ORCHESTRATOR_SOURCES", nil),
		MaxItems:       config.GetEnvInt("ORCHESTRATOR_MAX_ITEMS", 0),
	}

	svc := orchestrate.NewService(orchestrate.Queues{
		Collection: backend.Queue(queue.QueueCollectionRequests),
		Processing: backend.Queue(queue.QueueProcessingRequests),
		Markdown:   backend.Queue(queue.QueueMarkdownRequests),
	}, serviceConfig)

	watcher, err := blob.NewWatcher(blobs, logger)
	if err != nil {
		logger.Error("failed to start blob watcher", slog.Any("error", err))
		os.Exit(1)
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- svc.Run(ctx, watcher.Events())
	}()

	if err := svc.StartCron(); err != nil {
		logger.Error("failed to start collection schedule", slog.Any("error", err))
		os.Exit(1)
	}

	metricsPort := config.GetEnvInt("ORCHESTRATOR_METRICS_PORT", 9090)
	worker.StartMetricsServer(ctx, metricsPort, logger)

	// No queue consumer here, so the worker detail endpoint stays empty.
	healthPort := config.GetEnvInt("ORCHESTRATOR_HEALTH_PORT", 9091)
	healthServer := worker.NewHealthServer("orchestrator",
		fmt.Sprintf(":%d", healthPort), nil, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	healthServer.SetReady(true)
	logger.Info("orchestrator started", slog.String("blob_root", blobs.Root()))

	if config.GetEnvBool("ORCHESTRATOR_TRIGGER_ON_START", false) {
		if err := svc.TriggerCollection(ctx); err != nil {
			logger.Error("startup collection trigger failed", slog.Any("error", err))
		} else {
			logger.Info("startup collection triggered")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	loopStopped := false
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-runErr:
		logger.Error("event loop stopped unexpectedly", slog.Any("error", err))
		loopStopped = true
	}

	healthServer.SetReady(false)
	svc.StopCron()

	// Closing the watcher closes the event channel, which lets the event
	// loop drain what it already received and return.
	if err := watcher.Close(); err != nil {
		logger.Error("failed to close blob watcher", slog.Any("error", err))
	}
	if !loopStopped {
		select {
		case <-runErr:
			logger.Info("event loop stopped")
		case <-time.After(shutdownTimeout):
			logger.Warn("event loop did not stop in time, exiting anyway")
		}
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
// The orchestrator additionally watches its root for blob-created events.
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
