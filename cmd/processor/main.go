// The processor binary consumes topic messages, acquires a per-topic lease,
// enriches the collected item through an LLM provider under budget caps,
// stores the resulting article artifact, and requests markdown generation.
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
	"contentmill/internal/infra/lease"
	"contentmill/internal/infra/llm"
	"contentmill/internal/infra/queue"
	"contentmill/internal/infra/worker"
	"contentmill/internal/session"
	"contentmill/internal/usecase/process"
	"contentmill/pkg/config"
)

// shutdownTimeout bounds the wait for the in-flight batch on SIGTERM. It is
// generous because one topic can hold a multi-minute LLM call; past it the
// message redelivers after the visibility timeout.
const shutdownTimeout = 2 * time.Minute

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

	provider, generation := createProvider(logger)
	leases := setupLeases(logger, backend)

	processorID := resolveProcessorID()
	tracker := session.NewTracker(processorID)

	budget := process.LoadBudget()
	logger.Info("session budget loaded",
		slog.String("processor_id", processorID),
		slog.Float64("session_max_usd", budget.SessionMaxUSD),
		slog.Float64("attempt_max_usd", budget.AttemptMaxUSD))

	serviceConfig := process.ServiceConfig{
		Budget:      budget,
		Generation:  generation,
		LeaseTTL:    config.GetEnvDuration("PROCESS_LEASE_TTL", 0),
		FanOutLimit: config.GetEnvInt("PROCESS_FANOUT_LIMIT", 0),
	}

	svc := process.NewService(blobs, backend.Queue(queue.QueueMarkdownRequests),
		provider, leases, tracker, serviceConfig)

	runtime := worker.NewRuntime(queue.QueueProcessingRequests,
		backend.Queue(queue.QueueProcessingRequests),
		svc.HandleMessage, blobs, workerMetrics, *workerConfig, logger)

	worker.StartMetricsServer(ctx, workerConfig.MetricsPort, logger)

	healthServer := worker.NewHealthServer("processor",
		fmt.Sprintf(":%d", workerConfig.HealthPort), runtime.Health, logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()

	runtime.Start(ctx)
	healthServer.SetReady(true)
	logger.Info("processor started",
		slog.String("queue", queue.QueueProcessingRequests),
		slog.String("provider", provider.Name()))

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
	tracker.LogSummary(logger)
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

// createProvider builds the LLM provider selected by the LLM_PROVIDER
// environment variable and returns it with the loaded generation config.
func createProvider(logger *slog.Logger) (llm.Provider, llm.Config) {
	providerType := os.Getenv("LLM_PROVIDER")
	if providerType == "" {
		providerType = "anthropic"
	}

	switch providerType {
	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			logger.Error("ANTHROPIC_API_KEY is required when LLM_PROVIDER=anthropic")
			os.Exit(1)
		}
		cfg := llm.LoadConfig(llm.DefaultAnthropicModel)
		logger.Info("using the anthropic provider", slog.String("model", cfg.Model))
		return llm.NewAnthropic(apiKey, cfg), cfg
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			logger.Error("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
			os.Exit(1)
		}
		cfg := llm.LoadConfig(llm.DefaultOpenAIModel)
		logger.Info("using the openai provider", slog.String("model", cfg.Model))
		return llm.NewOpenAI(apiKey, cfg), cfg
	case "noop":
		cfg := llm.LoadConfig("noop")
		logger.Warn("using the noop provider, articles will carry placeholder content")
		return llm.NewNoop(), cfg
	default:
		logger.Error("invalid LLM_PROVIDER",
			slog.String("provider", providerType),
			slog.String("expected", "anthropic, openai, or noop"))
		os.Exit(1)
		return nil, llm.Config{}
	}
}

// setupLeases picks the topic-lease store. Redis leases coordinate
// processors across replicas; in-memory leases only guard one process.
//
// Environment variables:
//   - LEASE_BACKEND: "redis" or "memory". Empty follows the queue backend:
//     redis-backed queues share their connection for leases, anything else
//     falls back to in-memory.
func setupLeases(logger *slog.Logger, backend *queue.Backend) lease.Store {
	switch mode := os.Getenv("LEASE_BACKEND"); mode {
	case "redis":
		client := backend.RedisClient()
		if client == nil {
			logger.Error("LEASE_BACKEND=redis requires QUEUE_BACKEND=redis, leases share that connection")
			os.Exit(1)
		}
		logger.Info("topic leases on redis")
		return lease.NewRedis(client)
	case "memory":
		logger.Warn("in-memory topic leases, replicas will not coordinate")
		return lease.NewMemory()
	case "":
		if client := backend.RedisClient(); client != nil {
			logger.Info("topic leases on redis")
			return lease.NewRedis(client)
		}
		logger.Warn("in-memory topic leases, replicas will not coordinate")
		return lease.NewMemory()
	default:
		logger.Error("invalid LEASE_BACKEND",
			slog.String("backend", mode),
			slog.String("expected", "redis or memory"))
		os.Exit(1)
		return nil
	}
}

// resolveProcessorID determines this replica's identifier for lease
// ownership and session cost attribution.
// Priority: PROCESSOR_ID env > HOSTNAME env > "processor-local".
func resolveProcessorID() string {
	if id := os.Getenv("PROCESSOR_ID"); id != "" {
		return id
	}
	if hostname := os.Getenv("HOSTNAME"); hostname != "" {
		return hostname
	}
	return "processor-local"
}
