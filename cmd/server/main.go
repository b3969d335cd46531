package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/metrics"
	natspkg "github.com/brojonat/solxfer/service/nats"
	"github.com/brojonat/solxfer/service/server"
	"github.com/brojonat/solxfer/service/solana"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"cluster", cfg.Cluster,
	)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.NewMetrics(nil)
	}

	// Initialize Solana connection and transfer workflow
	// Note: For premium RPC endpoints, include API key in the URL
	conn := solana.NewConnection(cfg.RPCURL, cfg.WSURL, cfg.Cluster, m, logger)
	transferer := solana.NewTransferer(conn, cfg.Cluster, m, logger)
	logger.Info("initialized solana connection", "rpc_url", cfg.RPCURL, "ws_url", cfg.WSURL)

	wallets := solana.NewWalletAdapter(cfg.WalletKeypairPath, logger)
	if cfg.AutoConnect {
		if err := wallets.Connect(); err != nil {
			logger.Error("failed to auto-connect wallet", "error", err)
			os.Exit(1)
		}
	}

	// Transfer events are optional
	var publisher natspkg.Publisher
	if cfg.NATSURL != "" {
		p, err := natspkg.NewPublisher(cfg.NATSURL, m, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Warn("NATS_URL not set, transfer events will not be published")
	}

	transfers := server.NewTransferService(transferer, wallets, publisher, cfg.Cluster, logger)
	sessions := server.NewSessionStore(cfg.ExplorerHost, cfg.Cluster)

	httpServer := server.New(cfg, wallets, transfers, sessions, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	logger.Info("server initialized, all dependencies ready",
		"wallet_connected", wallets.Connected(),
		"nats_enabled", publisher != nil,
		"metrics_enabled", m != nil,
	)

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
