package webui

import (
	"context"
	"sync"
	"time"

	"productstudio/core"
)

// RateLimiter throttles failed admin authentication attempts per client IP.
//
// Each failure increments the client's record. Once maxAttempts is reached
// the client is blocked until blockFor has elapsed; a successful login
// clears the record.
//
// Thread Safety: RateLimiter is safe for concurrent use.
type RateLimiter struct {
	mu          sync.RWMutex
	attempts    map[string]core.AttemptRecord
	maxAttempts int
	window      time.Duration
	blockFor    time.Duration
	now         func() time.Time
}

// NewRateLimiter creates a RateLimiter. Non-positive values fall back to
// core.DefaultMaxAttempts and core.DefaultRateLimitWindow.
func NewRateLimiter(maxAttempts int, window, blockFor time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = core.DefaultMaxAttempts
	}
	if window <= 0 {
		window = core.DefaultRateLimitWindow
	}
	if blockFor <= 0 {
		blockFor = window
	}
	return &RateLimiter{
		attempts:    make(map[string]core.AttemptRecord),
		maxAttempts: maxAttempts,
		window:      window,
		blockFor:    blockFor,
		now:         time.Now,
	}
}

// Allow reports whether ip may attempt authentication. When blocked it also
// returns how long until the block lifts.
func (r *RateLimiter) Allow(ip string) (bool, time.Duration) {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	now := r.now()
	if !exists || record.Expired(now) {
		return true, 0
	}
	if record.IsBlocked(r.maxAttempts) {
		return false, record.RetryAfter(now)
	}
	return true, 0
}

// RecordFailure counts one failed attempt for ip.
func (r *RateLimiter) RecordFailure(ip string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	record, exists := r.attempts[ip]
	if !exists {
		r.attempts[ip] = core.NewAttemptRecord(now, r.window)
		return
	}

	record = record.Increment(now, r.window)
	// Reaching the limit extends the window to the block duration.
	if record.Count == r.maxAttempts {
		record.ResetAt = now.Add(r.blockFor)
	}
	r.attempts[ip] = record
}

// Reset clears the record for ip.
func (r *RateLimiter) Reset(ip string) {
	r.mu.Lock()
	delete(r.attempts, ip)
	r.mu.Unlock()
}

// Cleanup removes expired records and returns how many were dropped.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for ip, record := range r.attempts {
		if record.Expired(now) {
			delete(r.attempts, ip)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is cancelled.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (r *RateLimiter) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.attempts)
}

// AttemptCount returns the live failure count for ip.
func (r *RateLimiter) AttemptCount(ip string) int {
	r.mu.RLock()
	record, exists := r.attempts[ip]
	r.mu.RUnlock()

	if !exists || record.Expired(r.now()) {
		return 0
	}
	return record.Count
}
