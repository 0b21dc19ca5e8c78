package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/reurl/reurl/internal/analytics"
	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/cache"
	"github.com/reurl/reurl/internal/metrics"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/repository"
)

// NotFoundPath is where every failed resolution is sent.
const NotFoundPath = "/404"

// visitInsertTimeout bounds the analytics insert once the visitor has gone away.
const visitInsertTimeout = 2 * time.Second

// LinkLookup finds active links by alias.
type LinkLookup interface {
	GetActiveLinkByAlias(ctx context.Context, alias string) (*model.Link, error)
}

// VisitStore appends analytics rows.
type VisitStore interface {
	InsertVisit(ctx context.Context, visit *model.Visit) error
}

// Resolution is the outcome of resolving an alias.
type Resolution struct {
	Outcome  string // one of the metrics.Outcome* values
	Location string
	LinkID   string
	CacheHit bool
}

// RedirectService resolves aliases, records visits and applies the password gate.
type RedirectService struct {
	links   LinkLookup
	visits  VisitStore
	cache   LinkCache
	logger  *slog.Logger
	metrics metrics.Recorder
	now     func() time.Time
}

// NewRedirectService creates a new RedirectService. cache may be nil.
func NewRedirectService(links LinkLookup, visits VisitStore, cache LinkCache, logger *slog.Logger, recorder metrics.Recorder) *RedirectService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RedirectService{
		links:   links,
		visits:  visits,
		cache:   cache,
		logger:  logger.With("component", "service.redirect"),
		metrics: recorder,
		now:     time.Now,
	}
}

// Resolve maps alias to a redirect location. It never fails: lookup errors,
// unknown aliases and expired links all resolve to NotFoundPath.
// An empty password means none was supplied.
func (s *RedirectService) Resolve(ctx context.Context, alias, password string, hit analytics.Hit) Resolution {
	start := s.now()
	res := s.resolve(ctx, alias, password, hit)
	duration := s.now().Sub(start)

	s.metrics.IncRedirect(res.Outcome)
	s.metrics.ObserveRedirectDuration(duration)

	s.logger.Info("redirect_"+res.Outcome,
		"alias", alias,
		"link_id", res.LinkID,
		"cache_hit", res.CacheHit,
		"duration_ms", float64(duration.Microseconds())/1000,
	)

	return res
}

func (s *RedirectService) resolve(ctx context.Context, alias, password string, hit analytics.Hit) Resolution {
	notFound := Resolution{Outcome: metrics.OutcomeNotFound, Location: NotFoundPath}

	if !isLookupCandidate(alias) {
		return notFound
	}

	link, cacheHit, err := s.lookup(ctx, alias)
	if err != nil {
		if !errors.Is(err, ErrLinkNotFound) {
			s.logger.Error("redirect_lookup_failed", "alias", alias, "error", err)
		}
		notFound.CacheHit = cacheHit
		return notFound
	}

	s.recordVisit(ctx, link, hit)

	res := Resolution{LinkID: link.ID, CacheHit: cacheHit}
	res.Outcome, res.Location = s.gate(link, password)
	return res
}

// lookup consults the cache, then the store, and backfills the cache.
func (s *RedirectService) lookup(ctx context.Context, alias string) (*model.Link, bool, error) {
	if s.cache != nil {
		link, err := s.cache.GetLink(ctx, alias)
		switch {
		case err == nil:
			s.metrics.IncRedirectCacheHit()
			if link.IsExpired(s.now()) {
				if err := s.cache.DeleteLink(ctx, alias); err != nil {
					s.logger.Warn("cache_evict_failed", "alias", alias, "error", err)
				}
				return nil, true, ErrLinkNotFound
			}
			return link, true, nil

		case errors.Is(err, cache.ErrCacheMiss):
			s.metrics.IncRedirectCacheMiss()
			negative, negErr := s.cache.IsNegativelyCached(ctx, alias)
			if negErr != nil {
				s.logger.Warn("negative_cache_check_failed", "alias", alias, "error", negErr)
			} else if negative {
				return nil, true, ErrLinkNotFound
			}

		default:
			s.metrics.IncRedirectCacheMiss()
			s.logger.Warn("cache_lookup_failed", "alias", alias, "error", err)
		}
	}

	link, err := s.links.GetActiveLinkByAlias(ctx, alias)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			if s.cache != nil {
				if err := s.cache.SetNegativeCache(ctx, alias); err != nil {
					s.logger.Warn("negative_cache_set_failed", "alias", alias, "error", err)
				}
			}
			return nil, false, ErrLinkNotFound
		}
		return nil, false, storeErr("lookup alias", err)
	}

	if s.cache != nil {
		if err := s.cache.SetLink(ctx, link); err != nil {
			s.logger.Warn("cache_backfill_failed", "alias", alias, "error", err)
		}
	}

	return link, false, nil
}

// recordVisit inserts the analytics row. Failures never block the redirect.
func (s *RedirectService) recordVisit(ctx context.Context, link *model.Link, hit analytics.Hit) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), visitInsertTimeout)
	defer cancel()

	visit := analytics.NewVisit(link.ID, hit, s.now())
	if err := s.visits.InsertVisit(ctx, visit); err != nil {
		s.metrics.IncVisitRecorded(false)
		s.logger.Warn("analytics_insert_failed",
			"alias", link.Alias,
			"link_id", link.ID,
			"error", err,
		)
		return
	}
	s.metrics.IncVisitRecorded(true)
}

// gate applies the password check and picks the redirect location.
func (s *RedirectService) gate(link *model.Link, password string) (string, string) {
	if !link.HasPassword() {
		return metrics.OutcomeDestination, link.Destination
	}

	page := PasswordPath(link.Alias)
	if password == "" {
		return metrics.OutcomePasswordRequired, page
	}

	ok, err := auth.VerifyPassword(password, link.PasswordHash)
	if err != nil {
		s.logger.Error("password_hash_invalid", "link_id", link.ID, "error", err)
	}
	if !ok {
		return metrics.OutcomePasswordIncorrect, page + "?error=incorrect"
	}

	return metrics.OutcomeDestination, link.Destination
}

// PasswordPath is the password entry page for alias.
func PasswordPath(alias string) string {
	return "/password/" + url.PathEscape(alias)
}
