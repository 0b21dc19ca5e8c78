package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/service"
)

// TokenVerifier validates session tokens. *auth.Verifier implements it.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// UserResolver binds a verified identity to a user row.
type UserResolver interface {
	EnsureUser(ctx context.Context, externalID, email string) (*model.User, error)
}

// IdentityConfig holds configuration for the identity middleware.
type IdentityConfig struct {
	Logger     *slog.Logger
	Verifier   TokenVerifier
	Users      UserResolver
	CookieName string
}

// Identity authenticates dashboard API requests with the identity
// provider's session token, read from "Authorization: Bearer" or the
// session cookie. The user row is created on first sight and placed in
// the request context.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := cfg.Verifier.Verify(sessionToken(r, cfg.CookieName))
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, auth.ErrMissingToken) {
					reason = "missing_token"
				}
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
				return
			}

			user, err := cfg.Users.EnsureUser(r.Context(), claims.Subject, claims.Email)
			if err != nil {
				cfg.Logger.Error("user resolution failed",
					slog.String("subject", claims.Subject),
					slog.String("error", err.Error()),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				if errors.Is(err, service.ErrUnavailable) {
					writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
					return
				}
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
				return
			}

			ctx := auth.ContextWithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// sessionToken prefers the Authorization header over the cookie.
func sessionToken(r *http.Request, cookieName string) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}

	if cookieName == "" {
		return ""
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}
