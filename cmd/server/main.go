// Package main provides the entry point for the risk simulation server.
// It serves:
// - Pooled Monte Carlo runs with progress over WebSocket
// - Synchronous chart path sampling
// - Prometheus metrics
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/api"
	"github.com/atlas-desktop/risk-sim/internal/config"
	"github.com/atlas-desktop/risk-sim/internal/logging"
	"github.com/atlas-desktop/risk-sim/internal/metrics"
	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	host := flag.String("host", "", "Server host (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	m := metrics.New()
	simulator := montecarlo.NewSimulator(logger, &montecarlo.SimulatorConfig{
		BatchSize:         cfg.Simulation.BatchSize,
		MaxWorkers:        cfg.Simulation.MaxWorkers,
		ReservoirCapacity: cfg.Simulation.ReservoirCapacity,
		ChartSamples:      cfg.Simulation.ChartSamples,
	}, m)

	server := api.NewServer(logger, &cfg.Server, simulator, m)

	logger.Info("Starting risk simulation server",
		zap.String("addr", cfg.Addr()),
		zap.Int("batchSize", cfg.Simulation.BatchSize),
		zap.Int("maxWorkers", cfg.Simulation.MaxWorkers),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logger.Info("Server started successfully",
		zap.String("ws", fmt.Sprintf("ws://%s%s", cfg.Addr(), cfg.Server.WebSocketPath)),
		zap.String("http", fmt.Sprintf("http://%s/api/v1", cfg.Addr())),
	)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		if err != nil {
			logger.Error("Server error", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("Error during server shutdown", zap.Error(err))
	}

	logger.Info("Server stopped")
}
