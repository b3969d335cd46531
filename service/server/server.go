package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solxfer/service/config"
	"github.com/brojonat/solxfer/service/metrics"
	"github.com/brojonat/solxfer/service/solana"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	janitorInterval  = 5 * time.Minute
	limiterIdleAfter = 10 * time.Minute
)

// Server represents the HTTP server for the transfer service.
type Server struct {
	cfg       *config.Config
	wallets   *solana.WalletAdapter
	transfers *TransferService
	sessions  *SessionStore
	limiter   *RateLimiter
	renderer  *TemplateRenderer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
	stop      chan struct{}
}

// New creates a new HTTP server with the given dependencies.
// The renderer is optional - if nil (WithTemplates not called), the HTML dialog isn't served.
// The metrics is optional - if nil, the metrics endpoint isn't available.
func New(cfg *config.Config, wallets *solana.WalletAdapter, transfers *TransferService, sessions *SessionStore, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		wallets:   wallets,
		transfers: transfers,
		sessions:  sessions,
		limiter:   NewRateLimiter(cfg.TransferRateLimit, cfg.TransferRateBurst, cfg.TrustProxyHeaders),
		metrics:   m,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

// Handler builds the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	instrument := func(name string, h http.Handler) http.Handler {
		return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
	}

	// JSON API
	transfer := s.limiter.Middleware(s.metrics, "/api/v1/transfers")(handleTransfer(s.transfers, s.logger))
	mux.Handle("POST /api/v1/transfers", instrument("/api/v1/transfers", transfer))
	mux.Handle("GET /api/v1/wallet", instrument("/api/v1/wallet", handleGetWallet(s.wallets)))

	// Wallet bar
	mux.Handle("POST /wallet/connect", instrument("/wallet/connect", s.handleWalletConnect()))
	mux.Handle("POST /wallet/disconnect", instrument("/wallet/disconnect", s.handleWalletDisconnect()))

	// HTML dialog (if template renderer is configured)
	if s.renderer != nil {
		mux.Handle("GET /{$}", instrument("/", s.handleIndex()))
		mux.Handle("POST /dialog/open", instrument("/dialog/open", s.handleDialogOpen()))
		mux.Handle("POST /dialog/close", instrument("/dialog/close", s.handleDialogClose()))
		mux.Handle("POST /dialog/fields", instrument("/dialog/fields", s.handleDialogFields()))
		mux.Handle("POST /dialog/submit", instrument("/dialog/submit", s.handleDialogSubmit()))
		mux.Handle("GET /dialog/events", instrument("/dialog/events", s.handleDialogEvents()))
		mux.HandleFunc("GET /favicon.ico", handleFavicon())
		mux.HandleFunc("GET /favicon.svg", handleFavicon())
		s.logger.Info("HTML page endpoints enabled")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and the session janitor. It blocks until the
// server is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.cfg.ServerAddr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// Long enough for a transfer to be confirmed on a slow cluster.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.janitor()

	s.logger.Info("starting HTTP server", "addr", s.cfg.ServerAddr, "cluster", s.cfg.Cluster)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// janitor periodically drops idle sessions and rate limiter entries.
func (s *Server) janitor() {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := s.sessions.Sweep(); n > 0 {
				s.logger.Debug("swept idle sessions", "removed", n, "remaining", s.sessions.Len())
			}
			s.limiter.Cleanup(limiterIdleAfter)
		case <-s.stop:
			return
		}
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	select {
	case <-s.stop:
	default:
		close(s.stop)
	}

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
