package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/papertrade/papertrade/internal/domain"
)

// QuoteHandler serves the stock-research quote lookup endpoint.
type QuoteHandler struct {
	quoter domain.Quoter
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler with the given oracle and logger.
func NewQuoteHandler(quoter domain.Quoter, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{
		quoter: quoter,
		logger: logger,
	}
}

// GetQuote returns the current market price for a symbol.
// GET /api/quote?symbol=AAPL
func (h *QuoteHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol query parameter required")
		return
	}

	quote, err := h.quoter.Quote(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) {
			writeError(w, http.StatusBadRequest, "unknown symbol "+symbol)
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: quote failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "quote service unavailable")
		return
	}

	writeJSON(w, http.StatusOK, quote)
}
