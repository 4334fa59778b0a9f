package studio

import (
	"sync"
	"time"
)

// Progress is the live state of a user's current or last batch.
type Progress struct {
	BatchID   string    `json:"batch_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Running   bool      `json:"running"`
	Outcome   string    `json:"outcome,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Percent returns completion as 0-100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Completed) / float64(p.Total) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// ProgressObserver is notified after every progress change. Calls are made
// synchronously from the batch goroutine and must not block.
type ProgressObserver interface {
	ProgressChanged(userID string, p Progress)
}

// ProgressTracker keeps per-user progress in memory. Nothing is persisted.
//
// Thread Safety: ProgressTracker is safe for concurrent use.
type ProgressTracker struct {
	mu        sync.RWMutex
	byUser    map[string]Progress
	observers []ProgressObserver
	now       func() time.Time
}

// NewProgressTracker creates an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		byUser: make(map[string]Progress),
		now:    time.Now,
	}
}

// Subscribe adds an observer.
func (t *ProgressTracker) Subscribe(o ProgressObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Start resets the user's counter to {0, total}.
func (t *ProgressTracker) Start(userID, batchID string, total int) {
	t.update(userID, func(Progress) Progress {
		return Progress{BatchID: batchID, Total: total, Running: true}
	})
}

// Advance increments the user's completed count.
func (t *ProgressTracker) Advance(userID string) {
	t.update(userID, func(p Progress) Progress {
		if p.Completed < p.Total {
			p.Completed++
		}
		return p
	})
}

// Finish marks the user's batch as done with outcome.
func (t *ProgressTracker) Finish(userID, outcome string) {
	t.update(userID, func(p Progress) Progress {
		p.Running = false
		p.Outcome = outcome
		return p
	})
}

// Get returns the user's progress. ok is false if the user never ran a batch.
func (t *ProgressTracker) Get(userID string) (Progress, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byUser[userID]
	return p, ok
}

// Forget drops the user's entry.
func (t *ProgressTracker) Forget(userID string) {
	t.mu.Lock()
	delete(t.byUser, userID)
	t.mu.Unlock()
}

func (t *ProgressTracker) update(userID string, fn func(Progress) Progress) {
	t.mu.Lock()
	p := fn(t.byUser[userID])
	p.UpdatedAt = t.now()
	t.byUser[userID] = p
	observers := append([]ProgressObserver(nil), t.observers...)
	t.mu.Unlock()

	for _, o := range observers {
		o.ProgressChanged(userID, p)
	}
}
