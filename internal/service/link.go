package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/metrics"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/repository"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// LinkStore persists links.
type LinkStore interface {
	CreateLink(ctx context.Context, link *model.Link) error
	ListLinksWithClicks(ctx context.Context, userID string, limit int) ([]*model.LinkWithClicks, error)
	DeleteLink(ctx context.Context, id, userID string) (*model.Link, error)
}

// LinkCache is the optional alias cache. A nil LinkCache disables caching.
type LinkCache interface {
	GetLink(ctx context.Context, alias string) (*model.Link, error)
	SetLink(ctx context.Context, link *model.Link) error
	DeleteLink(ctx context.Context, alias string) error
	MarkDeleted(ctx context.Context, alias string) error
	IsNegativelyCached(ctx context.Context, alias string) (bool, error)
	SetNegativeCache(ctx context.Context, alias string) error
}

// LinkService handles link business logic.
type LinkService struct {
	store   LinkStore
	cache   LinkCache
	baseURL string
	logger  *slog.Logger
	metrics metrics.Recorder

	now          func() time.Time
	newAlias     func() (string, error)
	hashPassword func(string) (string, error)
}

// NewLinkService creates a new LinkService. cache may be nil.
func NewLinkService(store LinkStore, cache LinkCache, baseURL string, logger *slog.Logger, recorder metrics.Recorder) *LinkService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &LinkService{
		store:        store,
		cache:        cache,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		logger:       logger.With("component", "service.link"),
		metrics:      recorder,
		now:          time.Now,
		newAlias:     GenerateAlias,
		hashPassword: auth.HashPassword,
	}
}

// CreateLinkInput defines input for creating a link.
type CreateLinkInput struct {
	UserID     string
	URL        string
	CustomSlug string
	ExpiresAt  *time.Time
	Password   string
}

// CreateLink validates input and stores a new link under a custom or generated alias.
func (s *LinkService) CreateLink(ctx context.Context, input CreateLinkInput) (*model.Link, error) {
	destination, err := NormalizeDestination(input.URL)
	if err != nil {
		return nil, err
	}

	custom := input.CustomSlug
	if custom != "" {
		if err := ValidateCustomAlias(custom); err != nil {
			return nil, err
		}
	}

	now := s.now().UTC()
	var expiresAt *time.Time
	if input.ExpiresAt != nil {
		if !input.ExpiresAt.After(now) {
			return nil, ErrExpiresInPast
		}
		ts := input.ExpiresAt.UTC()
		expiresAt = &ts
	}

	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	var passwordHash string
	if input.Password != "" {
		passwordHash, err = s.hashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash link password: %w", err)
		}
	}

	link := &model.Link{
		ID:           uuid.NewString(),
		UserID:       input.UserID,
		Destination:  destination,
		PasswordHash: passwordHash,
		ExpiresAt:    expiresAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if custom != "" {
		link.Alias = custom
		if err := s.store.CreateLink(ctx, link); err != nil {
			if errors.Is(err, repository.ErrAliasExists) {
				return nil, ErrAliasExists
			}
			return nil, storeErr("create link", err)
		}
	} else if err := s.insertWithGeneratedAlias(ctx, link); err != nil {
		return nil, err
	}

	// A negative entry from an earlier miss would hide the new link.
	s.invalidate(ctx, link.Alias)
	s.metrics.IncLinkCreated()

	s.logger.Info("link_created",
		"link_id", link.ID,
		"alias", link.Alias,
		"user_id", link.UserID,
		"custom_alias", custom != "",
		"password_protected", link.HasPassword(),
		"expires", link.ExpiresAt != nil,
	)

	return link, nil
}

// insertWithGeneratedAlias relies on the unique constraint and retries on collision.
func (s *LinkService) insertWithGeneratedAlias(ctx context.Context, link *model.Link) error {
	for attempt := 1; attempt <= maxAliasAttempts; attempt++ {
		alias, err := s.newAlias()
		if err != nil {
			return fmt.Errorf("generate alias: %w", err)
		}
		if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
			continue
		}

		link.Alias = alias
		err = s.store.CreateLink(ctx, link)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrAliasExists) {
			return storeErr("create link", err)
		}

		s.metrics.IncAliasCollision()
		s.logger.Warn("alias_collision", "alias", alias, "attempt", attempt)
	}

	return ErrAliasExhausted
}

// ListLinks returns the owner's newest links with click counts.
// limit is clamped to [1, 100]; zero selects the default of 10.
func (s *LinkService) ListLinks(ctx context.Context, userID string, limit int) ([]*model.LinkWithClicks, error) {
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}

	links, err := s.store.ListLinksWithClicks(ctx, userID, limit)
	if err != nil {
		return nil, storeErr("list links", err)
	}
	return links, nil
}

// DeleteLink removes an owner's link and its analytics.
// Unknown, malformed and foreign ids all yield ErrLinkNotFound.
func (s *LinkService) DeleteLink(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrLinkNotFound
	}

	link, err := s.store.DeleteLink(ctx, id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrLinkNotFound) {
			return ErrLinkNotFound
		}
		return storeErr("delete link", err)
	}

	if s.cache != nil {
		if err := s.cache.MarkDeleted(ctx, link.Alias); err != nil {
			s.logger.Warn("cache_tombstone_failed", "alias", link.Alias, "error", err)
		}
	}
	s.metrics.IncLinkDeleted()

	s.logger.Info("link_deleted",
		"link_id", link.ID,
		"alias", link.Alias,
		"user_id", userID,
	)

	return nil
}

// ShortLink returns the absolute short URL for alias.
func (s *LinkService) ShortLink(alias string) string {
	return s.baseURL + "/" + alias
}

// BaseURL returns the configured base URL.
func (s *LinkService) BaseURL() string {
	return s.baseURL
}

// invalidate drops positive and negative cache entries for alias.
func (s *LinkService) invalidate(ctx context.Context, alias string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteLink(ctx, alias); err != nil {
		s.logger.Warn("cache_invalidate_failed", "alias", alias, "error", err)
	}
}
