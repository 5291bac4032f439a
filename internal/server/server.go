// Package server assembles the REST and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpulse/pulsebot/internal/domain"
	"github.com/quantpulse/pulsebot/internal/server/handler"
	"github.com/quantpulse/pulsebot/internal/server/middleware"
	"github.com/quantpulse/pulsebot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client IP; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Signals   *handler.SignalHandler
	Account   *handler.AccountHandler
	Decisions *handler.DecisionHandler
	Trades    *handler.TradeHandler
	Outcomes  *handler.OutcomeHandler
	Scorer    *handler.ScorerHandler
}

// Server is the headless HTTP + WebSocket API for the bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, logging, rate limiting, auth) and attaches
// the WebSocket hub. Store-backed handlers may be nil; their routes are then
// not registered (signal mode runs without Postgres). limiter may be nil to
// disable rate limiting.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Signal endpoints.
	mux.HandleFunc("GET /api/signal/{asset}", handlers.Signals.GetSignal)
	mux.HandleFunc("GET /api/signals", handlers.Signals.ListSignals)

	// Account endpoints.
	mux.HandleFunc("GET /api/account", handlers.Account.GetAccount)
	mux.HandleFunc("POST /api/account/reset", handlers.Account.ResetAccount)

	// Decision endpoints.
	if handlers.Decisions != nil {
		mux.HandleFunc("GET /api/decisions", handlers.Decisions.ListDecisions)
		mux.HandleFunc("GET /api/decisions/rejections", handlers.Decisions.GetRejections)
	}

	// Trade endpoints.
	if handlers.Trades != nil {
		mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
		mux.HandleFunc("GET /api/trades/{id}", handlers.Trades.GetTrade)
	}

	// Outcome endpoints.
	if handlers.Outcomes != nil {
		mux.HandleFunc("GET /api/outcomes", handlers.Outcomes.ListOutcomes)
		mux.HandleFunc("POST /api/outcomes", handlers.Outcomes.PostOutcome)
	}

	// Scorer runtime endpoints.
	mux.HandleFunc("GET /api/scorer", handlers.Scorer.GetScorer)
	mux.HandleFunc("PUT /api/scorer", handlers.Scorer.SetScorer)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
