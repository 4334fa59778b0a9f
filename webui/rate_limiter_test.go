package webui

import (
	"context"
	"testing"
	"time"
)

// fakeClock lets tests move the limiter through its windows.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(attempts int) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	limiter := NewRateLimiter(attempts, 15*time.Minute, 30*time.Minute)
	limiter.now = clock.now
	return limiter, clock
}

func TestRateLimiter_AllowInitial(t *testing.T) {
	limiter, _ := newTestLimiter(5)

	allowed, remaining := limiter.Allow("192.168.1.1")
	if !allowed {
		t.Error("Allow() = false for new IP, want true")
	}
	if remaining != 0 {
		t.Errorf("Allow() remaining = %v, want 0", remaining)
	}
}

func TestRateLimiter_BlockAfterMaxAttempts(t *testing.T) {
	limiter, clock := newTestLimiter(3)
	ip := "192.168.1.100"

	for i := 0; i < 3; i++ {
		if allowed, _ := limiter.Allow(ip); !allowed {
			t.Fatalf("Allow() = false after %d attempts, want true", i)
		}
		limiter.RecordFailure(ip)
	}

	allowed, remaining := limiter.Allow(ip)
	if allowed {
		t.Fatal("Allow() = true after max attempts, want false")
	}
	if remaining != 30*time.Minute {
		t.Errorf("Allow() remaining = %v, want the full block duration", remaining)
	}
	if count := limiter.AttemptCount(ip); count != 3 {
		t.Errorf("AttemptCount() = %d, want 3", count)
	}

	// Still blocked after the original window would have closed.
	clock.advance(20 * time.Minute)
	if allowed, _ := limiter.Allow(ip); allowed {
		t.Error("Allow() = true inside the block, want false")
	}

	clock.advance(11 * time.Minute)
	if allowed, _ := limiter.Allow(ip); !allowed {
		t.Error("Allow() = false after the block expired, want true")
	}
}

func TestRateLimiter_Reset(t *testing.T) {
	limiter, _ := newTestLimiter(2)
	ip := "192.168.1.200"

	limiter.RecordFailure(ip)
	limiter.RecordFailure(ip)
	if allowed, _ := limiter.Allow(ip); allowed {
		t.Fatal("expected ip to be blocked")
	}

	limiter.Reset(ip)
	if allowed, _ := limiter.Allow(ip); !allowed {
		t.Error("Allow() = false after Reset, want true")
	}
	if count := limiter.AttemptCount(ip); count != 0 {
		t.Errorf("AttemptCount() = %d after Reset, want 0", count)
	}
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	limiter, clock := newTestLimiter(5)
	ip := "10.0.0.1"

	limiter.RecordFailure(ip)
	limiter.RecordFailure(ip)
	clock.advance(16 * time.Minute)

	if count := limiter.AttemptCount(ip); count != 0 {
		t.Errorf("AttemptCount() = %d after window expiry, want 0", count)
	}

	limiter.RecordFailure(ip)
	if count := limiter.AttemptCount(ip); count != 1 {
		t.Errorf("AttemptCount() = %d in a fresh window, want 1", count)
	}
}

func TestRateLimiter_IsolatedPerIP(t *testing.T) {
	limiter, _ := newTestLimiter(1)

	limiter.RecordFailure("10.0.0.1")
	if allowed, _ := limiter.Allow("10.0.0.1"); allowed {
		t.Error("first ip should be blocked")
	}
	if allowed, _ := limiter.Allow("10.0.0.2"); !allowed {
		t.Error("second ip should not be affected")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(5)

	limiter.RecordFailure("10.0.0.1")
	clock.advance(10 * time.Minute)
	limiter.RecordFailure("10.0.0.2")
	clock.advance(6 * time.Minute)

	if removed := limiter.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if count := limiter.Count(); count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	limiter := NewRateLimiter(0, 0, 0)
	if limiter.maxAttempts != 5 || limiter.window != 15*time.Minute || limiter.blockFor != 15*time.Minute {
		t.Errorf("unexpected defaults: %d %v %v", limiter.maxAttempts, limiter.window, limiter.blockFor)
	}
}

func TestRateLimiter_StartCleanupTickerStops(t *testing.T) {
	limiter := NewRateLimiter(5, time.Millisecond, time.Millisecond)
	limiter.RecordFailure("10.0.0.1")

	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartCleanupTicker(ctx, 5*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for limiter.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if count := limiter.Count(); count != 0 {
		t.Errorf("Count() = %d after ticker cleanup, want 0", count)
	}
}
