package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/server/middleware"
)

// AccountService defines the methods that the account handler requires from
// the service layer.
type AccountService interface {
	Register(ctx context.Context, username, password string) (domain.User, error)
	Login(ctx context.Context, username, password string) (token string, err error)
	Logout(ctx context.Context, token string) error
	Balance(ctx context.Context, userID domain.UserID) (domain.Cents, error)
}

// AccountHandler serves registration, session, and balance endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler with the given service and logger.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		logger:   logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerResponse struct {
	UserID   string       `json:"user_id"`
	Username string       `json:"username"`
	Balance  domain.Cents `json:"balance"`
}

// Register creates a new account with the fixed starting balance.
// POST /api/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.accounts.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "username already taken")
			return
		}
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "username and password are required")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: register failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		UserID:   user.ID.String(),
		Username: user.Username,
		Balance:  user.Balance,
	})
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login verifies credentials, mints a session, and sets the session cookie.
// POST /api/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	token, err := h.accounts.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: login failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to log in")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token})
}

// Logout invalidates the current session and clears the cookie.
// POST /api/logout
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.Token(r.Context())
	if err := h.accounts.Logout(r.Context(), token); err != nil {
		h.logger.ErrorContext(r.Context(), "handler: logout failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	Balance domain.Cents `json:"balance"`
}

// GetAccount returns the authenticated user's current cash balance.
// GET /api/account
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	balance, err := h.accounts.Balance(r.Context(), middleware.UserID(r.Context()))
	if err != nil {
		status, known := errorStatus(err)
		if !known {
			h.logger.ErrorContext(r.Context(), "handler: get account failed",
				slog.String("error", err.Error()),
			)
			writeError(w, status, "failed to read account")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}
