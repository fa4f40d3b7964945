package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/papertrade/papertrade/internal/domain"
)

type stubSessions struct {
	sessions map[string]domain.UserID
	err      error
}

func (s *stubSessions) Create(ctx context.Context, userID domain.UserID, ttl time.Duration) (string, error) {
	return "", errors.New("not implemented")
}

func (s *stubSessions) Get(ctx context.Context, token string) (domain.UserID, error) {
	if s.err != nil {
		return domain.Anonymous, s.err
	}
	id, ok := s.sessions[token]
	if !ok {
		return domain.Anonymous, domain.ErrNotFound
	}
	return id, nil
}

func (s *stubSessions) Delete(ctx context.Context, token string) error { return nil }

func TestSessionMiddleware(t *testing.T) {
	userID := uuid.New()
	sessions := &stubSessions{sessions: map[string]domain.UserID{"tok-1": userID}}

	var gotUser domain.UserID
	var gotToken string
	handler := Session(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserID(r.Context())
		gotToken = Token(r.Context())
	}))

	tests := []struct {
		name      string
		setup     func(*http.Request)
		wantUser  domain.UserID
		wantToken string
	}{
		{
			name:     "no token",
			setup:    func(r *http.Request) {},
			wantUser: domain.Anonymous,
		},
		{
			name: "bearer token",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer tok-1")
			},
			wantUser:  userID,
			wantToken: "tok-1",
		},
		{
			name: "session cookie",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok-1"})
			},
			wantUser:  userID,
			wantToken: "tok-1",
		},
		{
			name: "unknown token passes through anonymous",
			setup: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer expired")
			},
			wantUser: domain.Anonymous,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			gotUser, gotToken = domain.Anonymous, ""
			req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
			tc.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if gotUser != tc.wantUser {
				t.Errorf("UserID = %s, want %s", gotUser, tc.wantUser)
			}
			if gotToken != tc.wantToken {
				t.Errorf("Token = %q, want %q", gotToken, tc.wantToken)
			}
		})
	}
}

func TestSessionMiddlewareLookupFailure(t *testing.T) {
	sessions := &stubSessions{err: errors.New("redis down")}
	handler := Session(sessions)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached despite lookup failure")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/account", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
