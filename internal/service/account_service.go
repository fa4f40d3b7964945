package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/papertrade/papertrade/internal/domain"
)

// AccountService handles registration, login sessions, and balance reads.
// Credential storage is bcrypt; the trading core never sees a password.
type AccountService struct {
	users    domain.UserStore
	sessions domain.SessionStore
	ledger   domain.LedgerStore

	startingBalance domain.Cents
	sessionTTL      time.Duration

	logger *slog.Logger
}

// NewAccountService creates an AccountService with all required dependencies.
// startingBalance is granted to every newly registered account.
func NewAccountService(
	users domain.UserStore,
	sessions domain.SessionStore,
	ledger domain.LedgerStore,
	startingBalance domain.Cents,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AccountService {
	return &AccountService{
		users:           users,
		sessions:        sessions,
		ledger:          ledger,
		startingBalance: startingBalance,
		sessionTTL:      sessionTTL,
		logger:          logger,
	}
}

// Register creates a new account with the fixed starting balance.
func (s *AccountService) Register(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return domain.User{}, fmt.Errorf("account_service: empty username: %w", domain.ErrInvalidCredentials)
	}
	if password == "" {
		return domain.User{}, fmt.Errorf("account_service: empty password: %w", domain.ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, fmt.Errorf("account_service: hash password: %w", err)
	}

	user := domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Balance:      s.startingBalance,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.User{}, fmt.Errorf("account_service: username %q: %w", username, domain.ErrAlreadyExists)
		}
		return domain.User{}, fmt.Errorf("account_service: create user: %w", err)
	}

	s.logger.InfoContext(ctx, "account_service: user registered",
		slog.String("user_id", user.ID.String()),
		slog.String("username", username),
	)
	return user, nil
}

// Login verifies credentials and mints a session token. Unknown usernames
// and wrong passwords produce the same ErrInvalidCredentials so the response
// does not reveal which accounts exist.
func (s *AccountService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return "", domain.ErrInvalidCredentials
		}
		return "", fmt.Errorf("account_service: lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", domain.ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID, s.sessionTTL)
	if err != nil {
		return "", fmt.Errorf("account_service: create session: %w", err)
	}

	s.logger.InfoContext(ctx, "account_service: user logged in",
		slog.String("user_id", user.ID.String()),
	)
	return token, nil
}

// Logout invalidates a session token. Unknown tokens are a no-op.
func (s *AccountService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("account_service: delete session: %w", err)
	}
	return nil
}

// Balance returns the user's current cash balance.
func (s *AccountService) Balance(ctx context.Context, userID domain.UserID) (domain.Cents, error) {
	if userID == domain.Anonymous {
		return 0, domain.ErrUnauthenticated
	}
	balance, _, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("account_service: get balance: %w", err)
	}
	return balance, nil
}
