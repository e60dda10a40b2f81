// Package server exposes the betting ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/osmowager/wagerbot/internal/server/handler"
	"github.com/osmowager/wagerbot/internal/server/middleware"
	"github.com/osmowager/wagerbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Balances *handler.BalanceHandler
}

// Server is the HTTP + WebSocket front end of the betting ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain
// (auth, then request logging).
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required; registered inside the chain anyway
	// since the API key also covers it in locked-down deployments).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("POST /api/markets/{id}/entries", handlers.Markets.PlaceEntry)
	mux.HandleFunc("POST /api/markets/{id}/settle", handlers.Markets.Settle)
	mux.HandleFunc("POST /api/markets/{id}/cancel", handlers.Markets.Cancel)

	// Balances.
	mux.HandleFunc("GET /api/balance/{principal}", handlers.Balances.GetBalance)
	mux.HandleFunc("GET /api/escrow/balance", handlers.Balances.EscrowBalance)

	// Live event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
