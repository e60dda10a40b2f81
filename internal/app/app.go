// Package app provides top-level lifecycle management for the betting ledger
// daemon. It wires together the store, transfer client, caches, event sinks
// and the HTTP server, and runs them until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/osmowager/wagerbot/internal/config"
	"github.com/osmowager/wagerbot/internal/server"
	"github.com/osmowager/wagerbot/internal/server/handler"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the HTTP server and the event feed, and
// blocks until the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting wagerd",
		slog.String("log_level", a.cfg.LogLevel),
		slog.Int("port", a.cfg.Server.Port),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	srv := server.NewServer(
		server.Config{
			Port:   a.cfg.Server.Port,
			APIKey: a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health:   handler.NewHealthHandler(deps.Transfer, a.logger),
			Markets:  handler.NewMarketHandler(deps.Engine, deps.Limiter, a.logger),
			Balances: handler.NewBalanceHandler(deps.Engine, a.logger),
		},
		deps.Hub,
		a.logger,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		deps.Hub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down wagerd")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
