package core

import (
	"time"
)

// Admin login throttling defaults.
const (
	DefaultRateLimitWindow = 15 * time.Minute
	DefaultMaxAttempts     = 5
)

// AttemptRecord counts failed admin authentication attempts from one client
// within a fixed window.
type AttemptRecord struct {
	Count   int
	ResetAt time.Time
}

// NewAttemptRecord starts a record with one attempt in a window of the given length.
func NewAttemptRecord(now time.Time, window time.Duration) AttemptRecord {
	return AttemptRecord{Count: 1, ResetAt: now.Add(window)}
}

// Expired reports whether the window has closed at now.
func (a AttemptRecord) Expired(now time.Time) bool {
	return now.After(a.ResetAt)
}

// IsBlocked reports whether the attempt count has reached maxAttempts.
func (a AttemptRecord) IsBlocked(maxAttempts int) bool {
	return a.Count >= maxAttempts
}

// RetryAfter returns how long the client must wait before the window resets.
func (a AttemptRecord) RetryAfter(now time.Time) time.Duration {
	if remaining := a.ResetAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Increment records one more attempt, opening a fresh window if the current one expired.
func (a AttemptRecord) Increment(now time.Time, window time.Duration) AttemptRecord {
	if a.Expired(now) {
		return NewAttemptRecord(now, window)
	}
	return AttemptRecord{Count: a.Count + 1, ResetAt: a.ResetAt}
}
