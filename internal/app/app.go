// Package app provides the top-level application lifecycle management for
// the papertrade service. It wires together stores, sessions, the price
// oracle, and services, then runs the HTTP server until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/server"
	"github.com/papertrade/papertrade/internal/server/handler"
	"github.com/papertrade/papertrade/internal/service"
)

// App is the root application object. It owns the configuration, logger,
// and a list of cleanup functions that are called in reverse order on
// shutdown.
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

// Run is the main entry point. It wires all dependencies, starts the HTTP
// server, and blocks until the context is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("log_level", a.cfg.LogLevel),
	)

	startingBalance, err := domain.ParseCents(a.cfg.Trading.StartingBalance)
	if err != nil {
		return fmt.Errorf("app: starting balance: %w", err)
	}

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	trades := service.NewTradeService(
		deps.LedgerStore,
		deps.Quoter,
		deps.RateLimiter,
		a.cfg.Trading.CommitRetries,
		a.cfg.Trading.OrderRateLimit,
		a.logger.With(slog.String("component", "trade_service")),
	)
	accounts := service.NewAccountService(
		deps.UserStore,
		deps.SessionStore,
		deps.LedgerStore,
		startingBalance,
		a.cfg.Session.TTL.Duration,
		a.logger.With(slog.String("component", "account_service")),
	)
	portfolio := service.NewPortfolioService(
		deps.LedgerStore,
		a.logger.With(slog.String("component", "portfolio_service")),
	)

	handlerLogger := a.logger.With(slog.String("component", "handler"))
	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		},
		server.Handlers{
			Health:    handler.NewHealthHandler(handlerLogger),
			Accounts:  handler.NewAccountHandler(accounts, handlerLogger),
			Orders:    handler.NewOrderHandler(trades, handlerLogger),
			Portfolio: handler.NewPortfolioHandler(portfolio, handlerLogger),
			Quotes:    handler.NewQuoteHandler(deps.Quoter, handlerLogger),
		},
		deps.SessionStore,
		a.logger.With(slog.String("component", "server")),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return ctx.Err()
}

// Close tears down all resources in reverse registration order. It is safe
// to call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
