package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/cache"
	"github.com/reurl/reurl/internal/metrics"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/repository"
)

var testParams = auth.Params{Time: 1, Memory: 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastHash(password string) (string, error) {
	return auth.HashPasswordWithParams(password, testParams)
}

// fakeStore is an in-memory stand-in for the repository.
type fakeStore struct {
	mu sync.Mutex

	links  map[string]*model.Link // by alias
	visits []*model.Visit

	createErrs     []error // returned in order before normal behavior
	lookupErr      error
	insertVisitErr error
	listErr        error

	lookups   int
	lastLimit int
}

func newFakeStore() *fakeStore {
	return &fakeStore{links: make(map[string]*model.Link)}
}

func (f *fakeStore) CreateLink(_ context.Context, link *model.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return err
	}
	if _, exists := f.links[link.Alias]; exists {
		return repository.ErrAliasExists
	}
	stored := *link
	f.links[link.Alias] = &stored
	return nil
}

func (f *fakeStore) GetActiveLinkByAlias(_ context.Context, alias string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	link, ok := f.links[alias]
	if !ok || link.IsExpired(time.Now()) {
		return nil, repository.ErrLinkNotFound
	}
	found := *link
	return &found, nil
}

func (f *fakeStore) ListLinksWithClicks(_ context.Context, userID string, limit int) ([]*model.LinkWithClicks, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []*model.LinkWithClicks
	for _, l := range f.links {
		if l.UserID != userID {
			continue
		}
		item := &model.LinkWithClicks{Link: *l}
		for _, v := range f.visits {
			if v.LinkID == l.ID {
				item.Clicks++
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteLink(_ context.Context, id, userID string) (*model.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for alias, l := range f.links {
		if l.ID != id || l.UserID != userID {
			continue
		}
		kept := f.visits[:0]
		for _, v := range f.visits {
			if v.LinkID != id {
				kept = append(kept, v)
			}
		}
		f.visits = kept
		delete(f.links, alias)
		return l, nil
	}
	return nil, repository.ErrLinkNotFound
}

func (f *fakeStore) InsertVisit(_ context.Context, visit *model.Visit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertVisitErr != nil {
		return f.insertVisitErr
	}
	f.visits = append(f.visits, visit)
	return nil
}

func (f *fakeStore) visitCount(linkID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, v := range f.visits {
		if v.LinkID == linkID {
			n++
		}
	}
	return n
}

// deletingLookup deletes the link through onLookup after the store has
// returned it, the way a concurrent delete lands mid-redirect.
type deletingLookup struct {
	*fakeStore
	onLookup func()
}

func (d *deletingLookup) GetActiveLinkByAlias(ctx context.Context, alias string) (*model.Link, error) {
	link, err := d.fakeStore.GetActiveLinkByAlias(ctx, alias)
	if d.onLookup != nil {
		hook := d.onLookup
		d.onLookup = nil
		hook()
	}
	return link, err
}

// fakeCache mimics the Redis alias cache.
type fakeCache struct {
	mu       sync.Mutex
	links    map[string]*model.Link
	negative map[string]bool
	getErr   error
	deletes  []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{links: make(map[string]*model.Link), negative: make(map[string]bool)}
}

func (c *fakeCache) GetLink(_ context.Context, alias string) (*model.Link, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.getErr != nil {
		return nil, c.getErr
	}
	link, ok := c.links[alias]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	cp := *link
	return &cp, nil
}

func (c *fakeCache) SetLink(_ context.Context, link *model.Link) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.negative[link.Alias] {
		return nil
	}
	cp := *link
	c.links[link.Alias] = &cp
	return nil
}

func (c *fakeCache) DeleteLink(_ context.Context, alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletes = append(c.deletes, alias)
	delete(c.links, alias)
	delete(c.negative, alias)
	return nil
}

func (c *fakeCache) MarkDeleted(_ context.Context, alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.deletes = append(c.deletes, alias)
	delete(c.links, alias)
	c.negative[alias] = true
	return nil
}

func (c *fakeCache) IsNegativelyCached(_ context.Context, alias string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.negative[alias], nil
}

func (c *fakeCache) SetNegativeCache(_ context.Context, alias string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.negative[alias] = true
	return nil
}

func newTestLinkService(store *fakeStore, c LinkCache, rec metrics.Recorder) *LinkService {
	svc := NewLinkService(store, c, "https://reurl.test/", discardLogger(), rec)
	svc.hashPassword = fastHash
	return svc
}

// aliasSequence returns the given aliases in order, then repeats the last.
func aliasSequence(aliases ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		a := aliases[i]
		if i < len(aliases)-1 {
			i++
		}
		return a, nil
	}
}
