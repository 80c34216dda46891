package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"Talos/internal/config"
	"Talos/internal/history"
	"Talos/internal/provider"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	config     *config.Config
	provider   provider.Provider
	hist       *history.History
	registry   *prometheus.Registry
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new API server
func New(
	cfg *config.Config,
	prov provider.Provider,
	hist *history.History,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Server {
	return &Server{
		config:   cfg,
		provider: prov,
		hist:     hist,
		registry: registry,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	// Health and readiness endpoints
	mux.HandleFunc(s.config.Observability.HealthCheckPath, s.handleHealth)
	mux.HandleFunc(s.config.Observability.ReadinessPath, s.handleReadiness)

	// Metrics endpoint
	if s.config.Observability.EnableMetrics {
		mux.Handle(s.config.Observability.MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// API v1 endpoints
	mux.HandleFunc("/api/v1/status", s.authMiddleware(s.handleStatus))
	mux.HandleFunc("/api/v1/workers", s.authMiddleware(s.handleWorkers))
	mux.HandleFunc("/api/v1/decisions", s.authMiddleware(s.handleDecisions))

	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.loggingMiddleware(mux),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("starting API server", "address", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("server shutdown error", "error", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	// Check provider health
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.provider.HealthCheck(ctx); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workers, err := s.provider.ListWorkers(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list workers", err)
		return
	}

	response := map[string]interface{}{
		"timestamp":    time.Now().Format(time.RFC3339),
		"worker_count": len(workers),
		"queue":        s.config.Broker.Queue,
		"min_workers":  s.config.Autoscaler.MinWorkers,
		"max_workers":  s.config.Autoscaler.MaxWorkers,
		"enabled":      s.config.Autoscaler.Enabled,
		"pool":         s.provider.Name(),
		"dry_run":      s.config.DryRun,
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workers, err := s.provider.ListWorkers(ctx)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list workers", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"count":     len(workers),
		"workers":   workers,
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	decisions := s.hist.Recent(100)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
		"count":     len(decisions),
		"decisions": decisions,
	})
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.config.Server.EnableAuth {
			next(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.Header.Get("Authorization")
			if len(apiKey) > 7 && apiKey[:7] == "Bearer " {
				apiKey = apiKey[7:]
			}
		}

		if apiKey != s.config.Server.APIKey {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", nil)
			return
		}

		next(w, r)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, statusCode, response)
}
