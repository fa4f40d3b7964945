package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/server/middleware"
)

// PortfolioService defines the methods that the portfolio handler requires
// from the service layer.
type PortfolioService interface {
	Holdings(ctx context.Context, userID domain.UserID) ([]domain.Holding, error)
	History(ctx context.Context, userID domain.UserID, opts domain.ListOpts) ([]domain.PositionEvent, error)
}

// PortfolioHandler serves portfolio view endpoints.
type PortfolioHandler struct {
	portfolio PortfolioService
	logger    *slog.Logger
}

// NewPortfolioHandler creates a PortfolioHandler with the given service and logger.
func NewPortfolioHandler(portfolio PortfolioService, logger *slog.Logger) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		logger:    logger,
	}
}

type holdingsResponse struct {
	Holdings []domain.Holding `json:"holdings"`
}

// ListHoldings returns the authenticated user's aggregate position per symbol.
// GET /api/portfolio
func (h *PortfolioHandler) ListHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.portfolio.Holdings(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		h.writePortfolioError(w, r, "list holdings", err)
		return
	}

	if holdings == nil {
		holdings = []domain.Holding{}
	}
	writeJSON(w, http.StatusOK, holdingsResponse{Holdings: holdings})
}

type historyResponse struct {
	Trades []domain.PositionEvent `json:"trades"`
}

// ListHistory returns the authenticated user's position events, newest
// first, with pagination.
// GET /api/portfolio/history?limit=50&offset=0
func (h *PortfolioHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.portfolio.History(r.Context(), middleware.UserID(r.Context()), parseListOpts(r))
	if err != nil {
		h.writePortfolioError(w, r, "list history", err)
		return
	}

	if events == nil {
		events = []domain.PositionEvent{}
	}
	writeJSON(w, http.StatusOK, historyResponse{Trades: events})
}

func (h *PortfolioHandler) writePortfolioError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, known := errorStatus(err)
	if !known {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to "+op)
		return
	}
	writeError(w, status, err.Error())
}
