// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Redirect outcomes.
const (
	OutcomeDestination       = "destination"
	OutcomePasswordRequired  = "password_required"
	OutcomePasswordIncorrect = "password_incorrect"
	OutcomeNotFound          = "not_found"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Redirect metrics
	IncRedirect(outcome string)
	IncRedirectCacheHit()
	IncRedirectCacheMiss()
	ObserveRedirectDuration(duration time.Duration)

	// Link management metrics
	IncLinkCreated()
	IncLinkDeleted()
	IncAliasCollision()

	// Analytics metrics
	IncVisitRecorded(ok bool)

	// Rate limiting
	IncRateLimited(scope string) // scope: "api" or "redirect"
}
