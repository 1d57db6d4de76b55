package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer serves liveness and readiness probes for a pipeline binary.
//
//   - GET /health        liveness, always 200 once the server is up
//   - GET /health/ready  readiness, 503 until SetReady(true)
//   - GET /health/worker runtime snapshot (queue, status, counters)
//
// Start blocks until the context is cancelled, then shuts down gracefully.
type HealthServer struct {
	component string
	addr      string
	logger    *slog.Logger
	isReady   *atomic.Bool
	snapshot  func() RuntimeHealth
	server    *http.Server
}

type healthResponse struct {
	Status    string `json:"status"`
	Component string `json:"component"`
}

// NewHealthServer builds a probe server for the named component. snapshot
// may be nil when the binary has no queue runtime (the orchestrator's cron
// half, for instance); /health/worker then reports 404.
func NewHealthServer(component, addr string, snapshot func() RuntimeHealth, logger *slog.Logger) *HealthServer {
	isReady := &atomic.Bool{}
	return &HealthServer{
		component: component,
		addr:      addr,
		logger:    logger,
		isReady:   isReady,
		snapshot:  snapshot,
	}
}

// Start serves probes until ctx is cancelled. Returns http.ErrServerClosed
// on graceful shutdown.
func (h *HealthServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleLiveness)
	mux.HandleFunc("/health/ready", h.handleReadiness)
	mux.HandleFunc("/health/worker", h.handleWorker)

	h.server = &http.Server{
		Addr:         h.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		h.logger.Info("health server starting",
			slog.String("component", h.component),
			slog.String("addr", h.addr))
		if err := h.server.ListenAndServe(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		h.logger.Info("health server shutting down")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			h.logger.Error("health server shutdown failed", slog.Any("error", err))
			return err
		}
		return http.ErrServerClosed

	case err := <-errChan:
		if err != http.ErrServerClosed {
			h.logger.Error("health server failed", slog.Any("error", err))
		}
		return err
	}
}

// SetReady flips the readiness probe. Binaries call it after wiring is
// complete and again with false before shutdown so load balancers stop
// routing first.
func (h *HealthServer) SetReady(ready bool) {
	h.isReady.Store(ready)
	h.logger.Info("readiness changed", slog.Bool("ready", ready))
}

func (h *HealthServer) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Component: h.component})
}

func (h *HealthServer) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if h.isReady.Load() {
		h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Component: h.component})
		return
	}
	h.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "not ready", Component: h.component})
}

func (h *HealthServer) handleWorker(w http.ResponseWriter, r *http.Request) {
	if h.snapshot == nil {
		http.NotFound(w, r)
		return
	}
	h.writeJSON(w, http.StatusOK, h.snapshot())
}

func (h *HealthServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("health response encoding failed", slog.Any("error", err))
	}
}
