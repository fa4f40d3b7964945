package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/papertrade/papertrade/internal/domain"
)

// SessionStore implements domain.SessionStore using Redis string keys with a
// TTL. The token is an opaque uuid; the value is the user's id. Expired
// sessions disappear on their own, so logout is best-effort cleanup rather
// than a correctness requirement.
type SessionStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSessionStore creates a SessionStore backed by the given Client. ttl is
// the default session lifetime used when Create is called with a zero ttl.
func NewSessionStore(c *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: c.Underlying(), ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Create mints a new session token for the given user.
func (ss *SessionStore) Create(ctx context.Context, userID domain.UserID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = ss.ttl
	}
	token := uuid.New().String()
	if err := ss.rdb.Set(ctx, sessionKey(token), userID.String(), ttl).Err(); err != nil {
		return "", fmt.Errorf("redis: create session for %s: %w", userID, err)
	}
	return token, nil
}

// Get resolves a session token to its user id. It returns domain.ErrNotFound
// for unknown or expired tokens.
func (ss *SessionStore) Get(ctx context.Context, token string) (domain.UserID, error) {
	val, err := ss.rdb.Get(ctx, sessionKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Anonymous, domain.ErrNotFound
		}
		return domain.Anonymous, fmt.Errorf("redis: get session: %w", err)
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return domain.Anonymous, fmt.Errorf("redis: parse session user id: %w", err)
	}
	return userID, nil
}

// Delete removes a session token. Deleting an unknown token is not an error.
func (ss *SessionStore) Delete(ctx context.Context, token string) error {
	if err := ss.rdb.Del(ctx, sessionKey(token)).Err(); err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)
