package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"Talos/internal/api"
	"Talos/internal/broker"
	"Talos/internal/config"
	"Talos/internal/controller"
	"Talos/internal/history"
	"Talos/internal/metrics"
	"Talos/internal/pool"
	"Talos/internal/provider"
	"Talos/internal/provider/docker"
	"Talos/internal/provider/ec2"
	"Talos/internal/scaler"

	"github.com/prometheus/client_golang/prometheus"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting Talos",
		"version", version,
		"pool", cfg.Pool.Type,
		"queue", cfg.Broker.Queue,
		"dry_run", cfg.DryRun,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Initialize metrics
	registry := prometheus.NewRegistry()
	met := metrics.NewMetrics(registry)
	met.ControllerInfo.WithLabelValues(version, cfg.Pool.Type, modeString(cfg.DryRun)).Set(1)

	// Initialize broker client
	brokerClient := broker.NewClient(cfg.Broker.URL, cfg.Broker.Queue, cfg.Broker.Token, cfg.Broker.RequestTimeout)

	// Initialize provider
	prov, err := createProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	defer prov.Close()

	// Initialize worker pool
	workerPool := pool.New(prov, pool.Options{
		Queue:       cfg.Broker.Queue,
		BrokerURL:   cfg.Broker.URL,
		BrokerToken: cfg.Broker.Token,
		DryRun:      cfg.DryRun,
	}, met, logger)

	// Initialize autoscaler core
	source := controller.NewQueueSource(brokerClient, workerPool, met)
	autoscaler, err := scaler.New(scaler.Config{
		MinWorkers:              cfg.Autoscaler.MinWorkers,
		MaxWorkers:              cfg.Autoscaler.MaxWorkers,
		TargetTasksPerWorker:    cfg.Autoscaler.TargetTasksPerWorker,
		ScaleDownQueueThreshold: cfg.Autoscaler.ScaleDownQueueThreshold,
		Cooldown:                cfg.Autoscaler.Cooldown,
		Enabled:                 cfg.Autoscaler.Enabled,
	}, source, scaler.RealClock{}, workerPool, logger)
	if err != nil {
		return fmt.Errorf("failed to create autoscaler: %w", err)
	}

	// Initialize decision history
	hist := history.New()

	// Initialize controller
	ctrl := controller.New(autoscaler, source, hist, met, logger, cfg.Autoscaler.CheckInterval, cfg.Autoscaler.Enabled)

	// Initialize API server
	apiServer := api.New(cfg, prov, hist, registry, logger)

	// Start API server
	go func() {
		if err := apiServer.Start(ctx); err != nil {
			logger.Error("API server error", "error", err)
		}
	}()

	// Start controller
	errCh := make(chan error, 1)
	go func() {
		errCh <- ctrl.Run(ctx)
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
		cancel()
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutdown complete")
	return nil
}

func createProvider(cfg *config.Config, logger *slog.Logger) (provider.Provider, error) {
	switch cfg.Pool.Type {
	case "docker":
		return docker.New(cfg.Pool.Docker, logger)
	case "ec2":
		return ec2.New(cfg.Pool.AWS, logger)
	default:
		return nil, fmt.Errorf("unknown pool type: %s", cfg.Pool.Type)
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

func modeString(dryRun bool) string {
	if dryRun {
		return "dry-run"
	}
	return "production"
}
