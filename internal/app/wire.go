package app

import (
	"context"
	"fmt"

	"github.com/papertrade/papertrade/internal/cache/redis"
	"github.com/papertrade/papertrade/internal/config"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/oracle/finnhub"
	"github.com/papertrade/papertrade/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application needs.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	UserStore   domain.UserStore
	LedgerStore domain.LedgerStore

	// Sessions and rate limiting
	SessionStore domain.SessionStore
	RateLimiter  domain.RateLimiter

	// Price oracle
	Quoter domain.Quoter
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.UserStore = postgres.NewUserStore(pool)
	deps.LedgerStore = postgres.NewLedgerStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.SessionStore = redis.NewSessionStore(redisClient, cfg.Session.TTL.Duration)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- Price oracle ---
	deps.Quoter = finnhub.NewClient(
		cfg.Oracle.BaseURL,
		cfg.Oracle.APIKey,
		finnhub.WithTimeout(cfg.Oracle.Timeout.Duration),
	)

	return deps, cleanup, nil
}
