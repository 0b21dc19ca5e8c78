package middleware

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/cache"
	"github.com/reurl/reurl/internal/metrics"
)

// Rate limit scopes reported to metrics.
const (
	scopeAPI      = "api"
	scopeRedirect = "redirect"
)

// RateLimiter checks token buckets. *cache.Cache implements it.
type RateLimiter interface {
	CheckUserRateLimit(ctx context.Context, userID string, ratePerMinute, burst int) (*cache.RateLimitResult, error)
	CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*cache.RateLimitResult, error)
}

// RateLimitConfig holds configuration for rate limiting middleware.
// A nil Limiter disables both limits.
type RateLimitConfig struct {
	Logger  *slog.Logger
	Limiter RateLimiter
	Metrics metrics.Recorder

	// API rate limiting (per authenticated user)
	APIEnabled bool
	APIRPM     int
	APIBurst   int

	// Redirect rate limiting (per client IP)
	RedirectEnabled bool
	RedirectRPS     int
	RedirectBurst   int

	// TrustedProxies may set X-Forwarded-For for the per-IP limit.
	// Empty means the connection address is always used.
	TrustedProxies []netip.Prefix
}

// RateLimitAPI returns middleware that rate limits API requests per user.
// Must be applied after Identity.
func RateLimitAPI(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.APIEnabled || cfg.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := cfg.Limiter.CheckUserRateLimit(r.Context(), userID, cfg.APIRPM, cfg.APIBurst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("scope", scopeAPI),
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			if result == nil {
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				cfg.reject(w, r, scopeAPI, result, slog.String("user_id", userID))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitIP returns middleware that rate limits requests per client IP.
// Used for the redirect endpoint to prevent abuse.
func RateLimitIP(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.RedirectEnabled || cfg.Limiter == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := peerIP(r, cfg.TrustedProxies)

			result, err := cfg.Limiter.CheckIPRateLimit(r.Context(), ip, cfg.RedirectRPS, cfg.RedirectBurst)
			if err != nil {
				cfg.Logger.Error("rate limit check failed",
					slog.String("scope", scopeRedirect),
					slog.String("error", err.Error()),
				)
			}
			if result == nil || result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			cfg.reject(w, r, scopeRedirect, result, slog.String("ip", ip))
		})
	}
}

func (cfg RateLimitConfig) reject(w http.ResponseWriter, r *http.Request, scope string, result *cache.RateLimitResult, subject slog.Attr) {
	if cfg.Metrics != nil {
		cfg.Metrics.IncRateLimited(scope)
	}

	retryAfter := retryAfterSeconds(result.RetryAfter)

	cfg.Logger.Warn("rate limit exceeded",
		slog.String("scope", scope),
		subject,
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.Int("retry_after_seconds", retryAfter),
		slog.String("request_id", GetRequestID(r.Context())),
	)

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
		"Rate limit exceeded. Retry after "+strconv.Itoa(retryAfter)+" seconds.")
}

// setRateLimitHeaders sets standard rate limit response headers.
func setRateLimitHeaders(w http.ResponseWriter, result *cache.RateLimitResult) {
	if result.Limit <= 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(result.Remaining, 10))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

// retryAfterSeconds rounds up so clients never retry too early.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}
