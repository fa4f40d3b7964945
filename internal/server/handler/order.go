package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/server/middleware"
)

// OrderService defines the methods that the order handler requires from the
// order processor.
type OrderService interface {
	PlaceOrder(ctx context.Context, userID domain.UserID, req domain.OrderRequest) (domain.TradeConfirmation, error)
	Deposit(ctx context.Context, userID domain.UserID, amount domain.Cents) (domain.DepositConfirmation, error)
}

// OrderHandler serves order and deposit HTTP endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// placeOrderRequest is the inbound order body. Quantity is decoded as a raw
// JSON number so fractional share counts can be rejected rather than
// silently truncated.
type placeOrderRequest struct {
	Symbol   string           `json:"symbol"`
	Quantity json.Number      `json:"quantity"`
	Side     domain.OrderSide `json:"side"`
}

// PlaceOrder executes a buy or sell order for the authenticated user.
// POST /api/orders
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var body placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if body.Symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if !body.Side.Valid() {
		writeError(w, http.StatusBadRequest, `side must be "buy" or "sell"`)
		return
	}

	quantity, err := body.Quantity.Int64()
	if err != nil {
		// Fractional or malformed share count.
		writeError(w, http.StatusBadRequest, "quantity must be a positive whole number")
		return
	}

	confirmation, err := h.orders.PlaceOrder(r.Context(), middleware.UserID(r.Context()), domain.OrderRequest{
		Symbol:   body.Symbol,
		Quantity: quantity,
		Side:     body.Side,
	})
	if err != nil {
		h.writeOrderError(w, r, "place order", err)
		return
	}

	writeJSON(w, http.StatusCreated, confirmation)
}

// depositRequest is the inbound deposit body. Amount is a decimal string so
// cash values never pass through binary floating point.
type depositRequest struct {
	Amount string `json:"amount"`
}

// Deposit adds cash to the authenticated user's balance.
// POST /api/deposit
func (h *OrderHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var body depositRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	amount, err := domain.ParseCents(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a positive decimal value")
		return
	}

	confirmation, err := h.orders.Deposit(r.Context(), middleware.UserID(r.Context()), amount)
	if err != nil {
		h.writeOrderError(w, r, "deposit", err)
		return
	}

	writeJSON(w, http.StatusOK, confirmation)
}

// writeOrderError maps a processor error to its HTTP response. Rejections
// carry their detail to the caller; infrastructure failures get a generic
// message and a log line with the real error.
func (h *OrderHandler) writeOrderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, known := errorStatus(err)
	if !known || status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "handler: "+op+" failed",
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}
	if !known {
		writeError(w, status, "failed to "+op)
		return
	}
	writeError(w, status, err.Error())
}
