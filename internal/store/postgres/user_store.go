package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/papertrade/papertrade/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, username, password_hash, balance, version, created_at`

func scanUserRow(row pgx.Row) (domain.User, error) {
	var u domain.User
	var balance int64
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &balance, &u.Version, &u.CreatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.Balance = domain.Cents(balance)
	return u, nil
}

// Create inserts a new user with its starting balance.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, username, password_hash, balance, version, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.Username, u.PasswordHash, int64(u.Balance), u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505 = unique_violation (username already taken).
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create user %s: %w", u.Username, err)
	}
	return nil
}

// GetByID retrieves a single user by its ID.
func (s *UserStore) GetByID(ctx context.Context, id domain.UserID) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)

	u, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// GetByUsername retrieves a single user by its login name.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE username = $1`, username)

	u, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUserNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %q: %w", username, err)
	}
	return u, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
