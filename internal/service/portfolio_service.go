package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papertrade/papertrade/internal/domain"
)

// PortfolioService serves derived portfolio views: per-symbol aggregate
// holdings and the position-event history they are derived from.
type PortfolioService struct {
	ledger domain.LedgerStore
	logger *slog.Logger
}

// NewPortfolioService creates a PortfolioService.
func NewPortfolioService(ledger domain.LedgerStore, logger *slog.Logger) *PortfolioService {
	return &PortfolioService{
		ledger: ledger,
		logger: logger,
	}
}

// Holdings returns the user's current aggregate position per symbol.
func (s *PortfolioService) Holdings(ctx context.Context, userID domain.UserID) ([]domain.Holding, error) {
	if userID == domain.Anonymous {
		return nil, domain.ErrUnauthenticated
	}
	holdings, err := s.ledger.ListHoldings(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list holdings: %w", err)
	}
	return holdings, nil
}

// Holding returns the aggregate position of a single symbol; 0 when the
// user has never traded it.
func (s *PortfolioService) Holding(ctx context.Context, userID domain.UserID, symbol string) (int64, error) {
	if userID == domain.Anonymous {
		return 0, domain.ErrUnauthenticated
	}
	holding, err := s.ledger.GetHolding(ctx, userID, symbol)
	if err != nil {
		return 0, fmt.Errorf("portfolio_service: get holding %s: %w", symbol, err)
	}
	return holding, nil
}

// History returns the user's position events, newest first, paginated.
func (s *PortfolioService) History(ctx context.Context, userID domain.UserID, opts domain.ListOpts) ([]domain.PositionEvent, error) {
	if userID == domain.Anonymous {
		return nil, domain.ErrUnauthenticated
	}
	events, err := s.ledger.ListTrades(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("portfolio_service: list trades: %w", err)
	}
	return events, nil
}
