package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papertrade/papertrade/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Balance writes
// are guarded by a per-user version column: an update that carries a stale
// version matches zero rows and the whole transaction is rolled back, so two
// racing commits against the same user can never both apply.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// GetBalance returns the user's current balance and its version counter.
func (s *LedgerStore) GetBalance(ctx context.Context, userID domain.UserID) (domain.Cents, int64, error) {
	var balance, version int64
	err := s.pool.QueryRow(ctx,
		`SELECT balance, version FROM users WHERE id = $1`, userID,
	).Scan(&balance, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, domain.ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("postgres: get balance for %s: %w", userID, err)
	}
	return domain.Cents(balance), version, nil
}

// GetHolding returns the aggregate signed quantity of one symbol for one
// user, 0 when no position events exist.
func (s *LedgerStore) GetHolding(ctx context.Context, userID domain.UserID, symbol string) (int64, error) {
	var holding int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM trades WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&holding)
	if err != nil {
		return 0, fmt.Errorf("postgres: get holding %s/%s: %w", userID, symbol, err)
	}
	return holding, nil
}

// ListHoldings returns the per-symbol aggregate positions with a non-zero
// quantity, alphabetically by symbol.
func (s *LedgerStore) ListHoldings(ctx context.Context, userID domain.UserID) ([]domain.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT symbol, SUM(quantity) AS quantity
		 FROM trades
		 WHERE user_id = $1
		 GROUP BY symbol
		 HAVING SUM(quantity) <> 0
		 ORDER BY symbol`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list holdings for %s: %w", userID, err)
	}
	defer rows.Close()

	var holdings []domain.Holding
	for rows.Next() {
		var h domain.Holding
		if err := rows.Scan(&h.Symbol, &h.Quantity); err != nil {
			return nil, fmt.Errorf("postgres: scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan holdings: %w", err)
	}
	return holdings, nil
}

// ListTrades returns the user's position events, newest first.
func (s *LedgerStore) ListTrades(ctx context.Context, userID domain.UserID, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	query := `SELECT id, user_id, symbol, quantity, unit_price, kind, executed_on, created_at
		FROM trades WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{userID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", userID, err)
	}
	defer rows.Close()

	var events []domain.PositionEvent
	for rows.Next() {
		var ev domain.PositionEvent
		var unitPrice int64
		var kind string
		if err := rows.Scan(
			&ev.ID, &ev.UserID, &ev.Symbol, &ev.Quantity,
			&unitPrice, &kind, &ev.ExecutedOn, &ev.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade: %w", err)
		}
		ev.UnitPrice = domain.Cents(unitPrice)
		ev.Kind = domain.TradeKind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return events, nil
}

// CommitTrade applies the versioned balance update and inserts the position
// event in a single transaction. Either both are visible afterwards or
// neither is.
func (s *LedgerStore) CommitTrade(ctx context.Context, userID domain.UserID, newBalance domain.Cents, expectedVersion int64, ev domain.PositionEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit trade: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyBalance(ctx, tx, userID, newBalance, expectedVersion); err != nil {
		return err
	}

	const insert = `
		INSERT INTO trades (user_id, symbol, quantity, unit_price, kind, executed_on)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err = tx.Exec(ctx, insert,
		userID, ev.Symbol, ev.Quantity, int64(ev.UnitPrice), string(ev.Kind), ev.ExecutedOn,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade %s/%s: %w", userID, ev.Symbol, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit trade %s/%s: %w", userID, ev.Symbol, err)
	}
	return nil
}

// CommitDeposit applies a versioned balance update with no position event.
func (s *LedgerStore) CommitDeposit(ctx context.Context, userID domain.UserID, newBalance domain.Cents, expectedVersion int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin commit deposit: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := applyBalance(ctx, tx, userID, newBalance, expectedVersion); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit deposit %s: %w", userID, err)
	}
	return nil
}

// applyBalance performs the compare-and-swap balance write. Zero rows
// affected means the version is stale: some other commit won the race since
// the caller's balance read.
func applyBalance(ctx context.Context, tx pgx.Tx, userID domain.UserID, newBalance domain.Cents, expectedVersion int64) error {
	tag, err := tx.Exec(ctx,
		`UPDATE users SET balance = $2, version = version + 1
		 WHERE id = $1 AND version = $3`,
		userID, int64(newBalance), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("postgres: update balance for %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a lost race from a missing user.
		var exists bool
		if checkErr := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID,
		).Scan(&exists); checkErr != nil {
			return fmt.Errorf("postgres: check user %s: %w", userID, checkErr)
		}
		if !exists {
			return domain.ErrUserNotFound
		}
		return domain.ErrConcurrentModification
	}
	return nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
