package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncRedirect(string)                    {}
func (n *NoopRecorder) IncRedirectCacheHit()                  {}
func (n *NoopRecorder) IncRedirectCacheMiss()                 {}
func (n *NoopRecorder) ObserveRedirectDuration(time.Duration) {}
func (n *NoopRecorder) IncLinkCreated()                       {}
func (n *NoopRecorder) IncLinkDeleted()                       {}
func (n *NoopRecorder) IncAliasCollision()                    {}
func (n *NoopRecorder) IncVisitRecorded(bool)                 {}
func (n *NoopRecorder) IncRateLimited(string)                 {}
