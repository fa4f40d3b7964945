package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrRateLimited        = errors.New("rate limited")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Order rejection reasons. Every one of these leaves balance and
	// holdings untouched.
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")

	// Infrastructure failures surfaced to the caller.
	ErrPricingUnavailable = errors.New("pricing unavailable")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
	ErrTradeConflict      = errors.New("trade conflict")
	ErrUserNotFound       = errors.New("user not found")

	// ErrConcurrentModification is returned by the ledger store when a
	// versioned balance write loses a race. The order processor retries it;
	// it never reaches a caller directly.
	ErrConcurrentModification = errors.New("concurrent modification")
)
