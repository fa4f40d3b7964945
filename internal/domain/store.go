package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// UserStore persists registered accounts. Balances are read and written
// through LedgerStore, never here.
type UserStore interface {
	Create(ctx context.Context, user User) error
	GetByID(ctx context.Context, id UserID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
}

// LedgerStore is the durable state for balances and position history. The
// commit operations are atomic: a reader observes either both the updated
// balance and the new position event, or neither.
type LedgerStore interface {
	// GetBalance returns the current balance and its version counter.
	// The version must be passed back to CommitTrade/CommitDeposit so a
	// stale read loses the race instead of overspending.
	GetBalance(ctx context.Context, userID UserID) (Cents, int64, error)

	// GetHolding returns the aggregate signed quantity for the pair,
	// 0 if no events exist.
	GetHolding(ctx context.Context, userID UserID, symbol string) (int64, error)

	// ListHoldings returns the per-symbol aggregate positions with a
	// non-zero quantity.
	ListHoldings(ctx context.Context, userID UserID) ([]Holding, error)

	// ListTrades returns position events newest first.
	ListTrades(ctx context.Context, userID UserID, opts ListOpts) ([]PositionEvent, error)

	// CommitTrade applies the balance update and inserts the position
	// event in one transaction. It fails with ErrConcurrentModification
	// when expectedVersion no longer matches the balance row.
	CommitTrade(ctx context.Context, userID UserID, newBalance Cents, expectedVersion int64, event PositionEvent) error

	// CommitDeposit applies a balance update with no position event,
	// under the same version discipline.
	CommitDeposit(ctx context.Context, userID UserID, newBalance Cents, expectedVersion int64) error
}

// Quoter is the price oracle: the current market price for a symbol.
// A price of exactly zero from the upstream is reported as ErrUnknownSymbol,
// never as a valid quote.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// SessionStore resolves opaque session tokens to user identities.
type SessionStore interface {
	Create(ctx context.Context, userID UserID, ttl time.Duration) (token string, err error)
	Get(ctx context.Context, token string) (UserID, error)
	Delete(ctx context.Context, token string) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
