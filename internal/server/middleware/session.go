package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/papertrade/papertrade/internal/domain"
)

// SessionCookie is the name of the browser session cookie.
const SessionCookie = "papertrade_session"

type contextKey string

const (
	userIDKey contextKey = "user_id"
	tokenKey  contextKey = "session_token"
)

// Session returns middleware that resolves the request's session token to a
// user identity and stores both on the request context. Requests without a
// valid session pass through as anonymous; rejecting them is the order
// processor's job, not the transport's.
func Session(sessions domain.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := sessions.Get(r.Context(), token)
			if err != nil {
				if !errors.Is(err, domain.ErrNotFound) {
					http.Error(w, `{"error":"session lookup failed"}`, http.StatusInternalServerError)
					return
				}
				// Unknown or expired token: anonymous.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken looks for a session token in the Authorization header
// (Bearer scheme) or in the session cookie.
func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if cookie, err := r.Cookie(SessionCookie); err == nil {
		return cookie.Value
	}

	return ""
}

// UserID returns the authenticated user id from the request context, or
// domain.Anonymous when the request carried no valid session.
func UserID(ctx context.Context) domain.UserID {
	if id, ok := ctx.Value(userIDKey).(domain.UserID); ok {
		return id
	}
	return domain.Anonymous
}

// Token returns the session token from the request context, or "" when the
// request carried none.
func Token(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey).(string); ok {
		return token
	}
	return ""
}
