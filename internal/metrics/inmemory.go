package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Redirects               map[string]uint64 // by outcome
	RedirectCacheHits       uint64
	RedirectCacheMisses     uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	LinksCreated            uint64
	LinksDeleted            uint64
	AliasCollisions         uint64
	VisitsRecorded          uint64
	VisitsFailed            uint64
	RateLimited             map[string]uint64 // by scope
}

// InMemoryRecorder keeps counters in process memory so callers can
// assert on what was recorded through Snapshot.
type InMemoryRecorder struct {
	redirectCacheHits       atomic.Uint64
	redirectCacheMisses     atomic.Uint64
	redirectDurationCount   atomic.Uint64
	redirectDurationTotalNs atomic.Int64
	linksCreated            atomic.Uint64
	linksDeleted            atomic.Uint64
	aliasCollisions         atomic.Uint64
	visitsRecorded          atomic.Uint64
	visitsFailed            atomic.Uint64

	mu          sync.Mutex
	redirects   map[string]uint64
	rateLimited map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redirects:   make(map[string]uint64),
		rateLimited: make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	redirects := make(map[string]uint64, len(m.redirects))
	for k, v := range m.redirects {
		redirects[k] = v
	}
	rateLimited := make(map[string]uint64, len(m.rateLimited))
	for k, v := range m.rateLimited {
		rateLimited[k] = v
	}
	m.mu.Unlock()

	return Snapshot{
		Redirects:               redirects,
		RedirectCacheHits:       m.redirectCacheHits.Load(),
		RedirectCacheMisses:     m.redirectCacheMisses.Load(),
		RedirectDurationCount:   m.redirectDurationCount.Load(),
		RedirectDurationTotalNs: m.redirectDurationTotalNs.Load(),
		LinksCreated:            m.linksCreated.Load(),
		LinksDeleted:            m.linksDeleted.Load(),
		AliasCollisions:         m.aliasCollisions.Load(),
		VisitsRecorded:          m.visitsRecorded.Load(),
		VisitsFailed:            m.visitsFailed.Load(),
		RateLimited:             rateLimited,
	}
}

// IncRedirect counts one resolution by outcome.
func (m *InMemoryRecorder) IncRedirect(outcome string) {
	m.mu.Lock()
	m.redirects[outcome]++
	m.mu.Unlock()
}

// IncRedirectCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncRedirectCacheHit() {
	m.redirectCacheHits.Add(1)
}

// IncRedirectCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncRedirectCacheMiss() {
	m.redirectCacheMisses.Add(1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	m.redirectDurationCount.Add(1)
	m.redirectDurationTotalNs.Add(duration.Nanoseconds())
}

// IncLinkCreated increments link created counter.
func (m *InMemoryRecorder) IncLinkCreated() {
	m.linksCreated.Add(1)
}

// IncLinkDeleted increments link deleted counter.
func (m *InMemoryRecorder) IncLinkDeleted() {
	m.linksDeleted.Add(1)
}

// IncAliasCollision counts generated aliases that hit the unique constraint.
func (m *InMemoryRecorder) IncAliasCollision() {
	m.aliasCollisions.Add(1)
}

// IncVisitRecorded counts analytics inserts.
func (m *InMemoryRecorder) IncVisitRecorded(ok bool) {
	if ok {
		m.visitsRecorded.Add(1)
		return
	}
	m.visitsFailed.Add(1)
}

// IncRateLimited counts rejected requests by limiter scope.
func (m *InMemoryRecorder) IncRateLimited(scope string) {
	m.mu.Lock()
	m.rateLimited[scope]++
	m.mu.Unlock()
}
