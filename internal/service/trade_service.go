package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papertrade/papertrade/internal/domain"
)

// TradeService is the order processor. Each order moves through
// received → priced → validated → committed, or is rejected at any step
// before the commit. A rejected order leaves balance and holdings exactly
// as they were.
type TradeService struct {
	ledger  domain.LedgerStore
	quoter  domain.Quoter
	limiter domain.RateLimiter

	commitRetries  int
	orderRateLimit int

	// now is swapped out by tests that need a fixed execution date.
	now func() time.Time

	logger *slog.Logger
}

// NewTradeService creates a TradeService with all required dependencies.
// commitRetries bounds the optimistic-concurrency retry loop;
// orderRateLimit caps order submissions per user per second.
func NewTradeService(
	ledger domain.LedgerStore,
	quoter domain.Quoter,
	limiter domain.RateLimiter,
	commitRetries int,
	orderRateLimit int,
	logger *slog.Logger,
) *TradeService {
	if commitRetries < 1 {
		commitRetries = 1
	}
	return &TradeService{
		ledger:         ledger,
		quoter:         quoter,
		limiter:        limiter,
		commitRetries:  commitRetries,
		orderRateLimit: orderRateLimit,
		now:            time.Now,
		logger:         logger,
	}
}

// PlaceOrder prices, validates, and commits a buy or sell order for the
// given user. The commit is atomic: the balance update and the position
// event land together or not at all.
func (s *TradeService) PlaceOrder(ctx context.Context, userID domain.UserID, req domain.OrderRequest) (domain.TradeConfirmation, error) {
	if userID == domain.Anonymous {
		return domain.TradeConfirmation{}, domain.ErrUnauthenticated
	}

	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return domain.TradeConfirmation{}, fmt.Errorf("trade_service: empty symbol: %w", domain.ErrUnknownSymbol)
	}
	if !req.Side.Valid() {
		return domain.TradeConfirmation{}, fmt.Errorf("trade_service: unknown side %q", req.Side)
	}
	if req.Quantity <= 0 {
		return domain.TradeConfirmation{}, fmt.Errorf("trade_service: quantity %d: %w", req.Quantity, domain.ErrInvalidQuantity)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "orders:"+userID.String(), s.orderRateLimit, time.Second)
		if err != nil {
			return domain.TradeConfirmation{}, fmt.Errorf("trade_service: rate limiter: %w", err)
		}
		if !allowed {
			return domain.TradeConfirmation{}, domain.ErrRateLimited
		}
	}

	orderID := uuid.New().String()

	// received → priced
	quote, err := s.quoter.Quote(ctx, symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			return domain.TradeConfirmation{}, fmt.Errorf("trade_service: %s: %w", symbol, domain.ErrUnknownSymbol)
		}
		s.logger.WarnContext(ctx, "trade_service: pricing failed",
			slog.String("order_id", orderID),
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		return domain.TradeConfirmation{}, fmt.Errorf("trade_service: %s: %w", symbol, domain.ErrPricingUnavailable)
	}

	if quote.UnitPrice > 0 && req.Quantity > math.MaxInt64/int64(quote.UnitPrice) {
		return domain.TradeConfirmation{}, fmt.Errorf("trade_service: quantity %d: %w", req.Quantity, domain.ErrInvalidQuantity)
	}
	totalCost := domain.Cents(req.Quantity) * quote.UnitPrice

	// priced → validated → committed, re-reading state after every lost
	// race until the bounded retry budget is spent.
	for attempt := 0; attempt < s.commitRetries; attempt++ {
		balance, version, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.TradeConfirmation{}, err
			}
			return domain.TradeConfirmation{}, s.ledgerFailure(ctx, orderID, "read balance", err)
		}

		holding, err := s.ledger.GetHolding(ctx, userID, symbol)
		if err != nil {
			return domain.TradeConfirmation{}, s.ledgerFailure(ctx, orderID, "read holding", err)
		}

		var newBalance domain.Cents
		var signedQty int64
		var kind domain.TradeKind

		switch req.Side {
		case domain.OrderSideBuy:
			if balance < totalCost {
				return domain.TradeConfirmation{}, fmt.Errorf(
					"trade_service: cost %s exceeds balance %s: %w",
					totalCost, balance, domain.ErrInsufficientFunds)
			}
			newBalance = balance - totalCost
			signedQty = req.Quantity
			kind = domain.TradeKindBought

		case domain.OrderSideSell:
			if holding < req.Quantity {
				return domain.TradeConfirmation{}, fmt.Errorf(
					"trade_service: %s: requested %d, held %d: %w",
					symbol, req.Quantity, holding, domain.ErrInsufficientShares)
			}
			newBalance = balance + totalCost
			signedQty = -req.Quantity
			kind = domain.TradeKindSold
		}

		executedOn := s.executionDate()
		event := domain.PositionEvent{
			UserID:     userID,
			Symbol:     symbol,
			Quantity:   signedQty,
			UnitPrice:  quote.UnitPrice,
			Kind:       kind,
			ExecutedOn: executedOn,
		}

		err = s.ledger.CommitTrade(ctx, userID, newBalance, version, event)
		if err == nil {
			s.logger.InfoContext(ctx, "trade_service: order committed",
				slog.String("order_id", orderID),
				slog.String("user_id", userID.String()),
				slog.String("symbol", symbol),
				slog.String("side", string(req.Side)),
				slog.Int64("quantity", req.Quantity),
				slog.String("unit_price", quote.UnitPrice.String()),
				slog.String("new_balance", newBalance.String()),
			)
			return domain.TradeConfirmation{
				OrderID:        orderID,
				Symbol:         symbol,
				Side:           req.Side,
				Quantity:       req.Quantity,
				UnitPrice:      quote.UnitPrice,
				TotalCost:      totalCost,
				NewBalance:     newBalance,
				UpdatedHolding: holding + signedQty,
				ExecutedOn:     executedOn,
			}, nil
		}

		if errors.Is(err, domain.ErrConcurrentModification) {
			s.logger.DebugContext(ctx, "trade_service: commit lost race, retrying",
				slog.String("order_id", orderID),
				slog.Int("attempt", attempt+1),
			)
			continue
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.TradeConfirmation{}, err
		}
		return domain.TradeConfirmation{}, s.ledgerFailure(ctx, orderID, "commit trade", err)
	}

	return domain.TradeConfirmation{}, fmt.Errorf(
		"trade_service: gave up after %d attempts: %w", s.commitRetries, domain.ErrTradeConflict)
}

// Deposit adds cash to the user's balance under the same commit discipline
// as a trade, but without pricing and without a position event.
func (s *TradeService) Deposit(ctx context.Context, userID domain.UserID, amount domain.Cents) (domain.DepositConfirmation, error) {
	if userID == domain.Anonymous {
		return domain.DepositConfirmation{}, domain.ErrUnauthenticated
	}
	if amount <= 0 {
		return domain.DepositConfirmation{}, fmt.Errorf("trade_service: deposit %s: %w", amount, domain.ErrInvalidAmount)
	}

	for attempt := 0; attempt < s.commitRetries; attempt++ {
		balance, version, err := s.ledger.GetBalance(ctx, userID)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.DepositConfirmation{}, err
			}
			return domain.DepositConfirmation{}, s.ledgerFailure(ctx, "", "read balance", err)
		}

		newBalance := balance + amount
		if newBalance < balance {
			return domain.DepositConfirmation{}, fmt.Errorf("trade_service: deposit %s overflows balance: %w", amount, domain.ErrInvalidAmount)
		}

		err = s.ledger.CommitDeposit(ctx, userID, newBalance, version)
		if err == nil {
			s.logger.InfoContext(ctx, "trade_service: deposit committed",
				slog.String("user_id", userID.String()),
				slog.String("amount", amount.String()),
				slog.String("new_balance", newBalance.String()),
			)
			return domain.DepositConfirmation{
				Amount:     amount,
				NewBalance: newBalance,
			}, nil
		}

		if errors.Is(err, domain.ErrConcurrentModification) {
			continue
		}
		if errors.Is(err, domain.ErrUserNotFound) {
			return domain.DepositConfirmation{}, err
		}
		return domain.DepositConfirmation{}, s.ledgerFailure(ctx, "", "commit deposit", err)
	}

	return domain.DepositConfirmation{}, fmt.Errorf(
		"trade_service: gave up after %d attempts: %w", s.commitRetries, domain.ErrTradeConflict)
}

// executionDate returns today's date in UTC, time-of-day zeroed.
func (s *TradeService) executionDate() time.Time {
	now := s.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// ledgerFailure logs the underlying store error and returns the
// ErrLedgerUnavailable the caller sees. The raw error stays in the logs.
func (s *TradeService) ledgerFailure(ctx context.Context, orderID, op string, err error) error {
	attrs := []any{
		slog.String("op", op),
		slog.String("error", err.Error()),
	}
	if orderID != "" {
		attrs = append(attrs, slog.String("order_id", orderID))
	}
	s.logger.ErrorContext(ctx, "trade_service: ledger failure", attrs...)
	return fmt.Errorf("trade_service: %s: %w", op, domain.ErrLedgerUnavailable)
}
