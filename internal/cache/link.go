package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reurl/reurl/internal/model"
)

// Cache key prefixes and TTLs.
const (
	linkKeyPrefix     = "link:"
	negCacheKeySuffix = ":neg"

	// DefaultLinkTTL is the TTL for cached link data.
	DefaultLinkTTL = 24 * time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = time.Minute

	// TombstoneTTL is how long a deleted alias stays pinned as not found.
	// It must outlast any lookup that read the row before the delete.
	TombstoneTTL = 10 * time.Minute
)

// ErrCacheMiss is returned when an alias has no cache entry.
var ErrCacheMiss = errors.New("cache miss")

func linkKey(alias string) string {
	return linkKeyPrefix + alias
}

func negKey(alias string) string {
	return linkKeyPrefix + alias + negCacheKeySuffix
}

// GetLink retrieves a link from cache by alias.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetLink(ctx context.Context, alias string) (*model.Link, error) {
	cmd := c.client.HGetAll(ctx, linkKey(alias))
	result, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	var cached model.CachedLink
	if err := cmd.Scan(&cached); err != nil {
		return nil, fmt.Errorf("decode cached link: %w", err)
	}
	if cached.ID == "" || cached.Destination == "" {
		return nil, ErrCacheMiss
	}

	return cached.ToLink(alias), nil
}

// setLinkScript writes the link hash unless the alias has a negative entry.
// KEYS[1] = link hash, KEYS[2] = negative entry
// ARGV[1] = ttl in milliseconds, ARGV[2..] = field/value pairs
var setLinkScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("DEL", KEYS[1])
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 1
`)

// SetLink stores a link in cache. A negative entry for the alias wins:
// the write is skipped so a lookup that raced a delete cannot revive it.
// Create clears negative entries through DeleteLink before links are cached.
func (c *Cache) SetLink(ctx context.Context, link *model.Link) error {
	key := linkKey(link.Alias)

	ttl := linkTTL(link, time.Now())
	if ttl <= 0 {
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("failed to evict expired link: %w", err)
		}
		return nil
	}

	cached := link.ToCachedLink()
	args := []any{
		ttl.Milliseconds(),
		"id", cached.ID,
		"user_id", cached.UserID,
		"destination", cached.Destination,
		"password_hash", cached.PasswordHash,
		"expires_at", cached.ExpiresAt,
		"created_at", cached.CreatedAt,
	}

	if err := setLinkScript.Run(ctx, c.client, []string{key, negKey(link.Alias)}, args...).Err(); err != nil {
		return fmt.Errorf("failed to cache link: %w", err)
	}

	return nil
}

// MarkDeleted drops the cached link and pins the alias as not found for
// TombstoneTTL, so in-flight backfills are refused by SetLink.
func (c *Cache) MarkDeleted(ctx context.Context, alias string) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, linkKey(alias))
	pipe.Set(ctx, negKey(alias), "deleted", TombstoneTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to tombstone link: %w", err)
	}
	return nil
}

// DeleteLink removes both the positive and negative entries for an alias.
func (c *Cache) DeleteLink(ctx context.Context, alias string) error {
	if err := c.client.Del(ctx, linkKey(alias), negKey(alias)).Err(); err != nil {
		return fmt.Errorf("failed to delete link from cache: %w", err)
	}
	return nil
}

// IsNegativelyCached checks if an alias is in negative cache.
func (c *Cache) IsNegativelyCached(ctx context.Context, alias string) (bool, error) {
	exists, err := c.client.Exists(ctx, negKey(alias)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetNegativeCache marks an alias as not found.
func (c *Cache) SetNegativeCache(ctx context.Context, alias string) error {
	if err := c.client.SetEx(ctx, negKey(alias), "", NegativeCacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}

// linkTTL bounds DefaultLinkTTL by the link's remaining lifetime.
// A non-positive result means the link must not be cached.
func linkTTL(link *model.Link, now time.Time) time.Duration {
	ttl := DefaultLinkTTL
	if link.ExpiresAt != nil {
		remaining := link.ExpiresAt.Sub(now)
		if remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}
