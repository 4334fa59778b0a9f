package studio

import "sync"

// userLatch allows one running generation per user.
type userLatch struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newUserLatch() *userLatch {
	return &userLatch{running: make(map[string]struct{})}
}

// tryAcquire returns false when userID already holds the latch.
func (l *userLatch) tryAcquire(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.running[userID]; busy {
		return false
	}
	l.running[userID] = struct{}{}
	return true
}

func (l *userLatch) release(userID string) {
	l.mu.Lock()
	delete(l.running, userID)
	l.mu.Unlock()
}

func (l *userLatch) isHeld(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.running[userID]
	return busy
}
