// Package main is the entrypoint for the reurl API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/cache"
	"github.com/reurl/reurl/internal/config"
	"github.com/reurl/reurl/internal/handler"
	"github.com/reurl/reurl/internal/handler/dto"
	"github.com/reurl/reurl/internal/metrics"
	"github.com/reurl/reurl/internal/middleware"
	"github.com/reurl/reurl/internal/migrate"
	"github.com/reurl/reurl/internal/repository"
	"github.com/reurl/reurl/internal/server"
	"github.com/reurl/reurl/internal/service"
	"github.com/reurl/reurl/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := migrateUp(ctx, cfg, logger); err != nil {
			return err
		}
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.Options{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errors.New("database unavailable")
	}
	logger.Info("connected to database", "database_url", redactURL(cfg.DatabaseURL))

	// Interface values stay nil, not typed-nil, when Redis is disabled.
	var (
		linkCache   service.LinkCache
		limiter     middleware.RateLimiter
		cacheHealth handler.HealthChecker
		cacheClient *cache.Cache
	)
	if cfg.CacheEnabled() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			repo.Close()
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			return errors.New("redis unavailable")
		}
		linkCache, limiter, cacheHealth = cacheClient, cacheClient, cacheClient
		logger.Info("connected to Redis", "redis_url", redactURL(cfg.RedisURL))
	} else {
		logger.Warn("REDIS_URL not set: alias cache and rate limiting disabled")
	}

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Secret:       cfg.IdentityJWTSecret,
		PublicKeyPEM: cfg.IdentityJWTPublicKey,
		Issuer:       cfg.IdentityIssuer,
		Audience:     cfg.IdentityAudience,
		Leeway:       cfg.IdentityLeeway,
	})
	if err != nil {
		return fmt.Errorf("identity verifier: %w", err)
	}

	validator, err := dto.NewValidator()
	if err != nil {
		return fmt.Errorf("request validator: %w", err)
	}

	trustedProxies, err := cfg.GetTrustedProxies()
	if err != nil {
		return err
	}

	recorder := metrics.NewPrometheus()

	linkService := service.NewLinkService(repo, linkCache, cfg.BaseURL, logger, recorder)
	redirectService := service.NewRedirectService(repo, repo, linkCache, logger, recorder)
	statsService := service.NewStatsService(repo)
	userService := service.NewUserService(repo)

	router := server.NewRouter(server.RouterConfig{
		Logger:        logger,
		IsDevelopment: cfg.IsDevelopment(),
		CORSOrigins:   cfg.GetCORSAllowedOrigins(),
		MaxBodySize:   cfg.MaxRequestBodySize,

		Root:     handler.New(),
		Health:   handler.NewHealthHandler(repo, cacheHealth, logger),
		Metrics:  handler.NewMetricsHandler(recorder.Registry(), logger),
		Links:    handler.NewLinkHandler(linkService, validator, logger),
		Stats:    handler.NewStatsHandler(statsService, logger),
		Redirect: handler.NewRedirectHandler(redirectService, cfg.RedirectStatusCode),

		Identity: middleware.IdentityConfig{
			Logger:     logger,
			Verifier:   verifier,
			Users:      userService,
			CookieName: cfg.SessionCookieName,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:          logger,
			Limiter:         limiter,
			Metrics:         recorder,
			APIEnabled:      cfg.RateLimitAPIEnabled,
			APIRPM:          cfg.RateLimitAPIRPM,
			APIBurst:        cfg.RateLimitAPIBurst,
			RedirectEnabled: cfg.RateLimitRedirectEnabled,
			RedirectRPS:     cfg.RateLimitRedirectRPS,
			RedirectBurst:   cfg.RateLimitRedirectBurst,
			TrustedProxies:  trustedProxies,
		},
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		IdleTimeout:     cfg.IdleTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Registered first, closed last.
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error {
			return cacheClient.Close()
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"redirect_status", cfg.RedirectStatusCode,
		"cache_enabled", cfg.CacheEnabled(),
	)

	return srv.Run(ctx)
}

// migrateUp applies pending migrations before the pool is opened.
func migrateUp(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	db, err := migrate.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migrations: %s", sanitizeError(err, cfg.DatabaseURL))
	}

	runner, err := migrate.New(db, migrations.FS, logger)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("migrations: %w", err)
	}
	defer runner.Close()

	applied, err := runner.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	logger.Info("migrations applied", "count", applied)
	return nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "reurl")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s&]+`)

// redactURL drops the password from a connection string.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	q := parsed.Query()
	if q.Has("password") {
		q.Set("password", "redacted")
		parsed.RawQuery = q.Encode()
	}

	return parsed.String()
}

// sanitizeError replaces connection strings and inline passwords in err.
func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
