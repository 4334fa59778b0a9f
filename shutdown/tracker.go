// Package shutdown coordinates graceful shutdown: it stops new generations
// from starting, waits for running ones to finish (and refund if they fail)
// and then runs the registered cleanup handlers in priority order.
package shutdown

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrTrackerClosed is returned when trying to start an operation on a closed tracker.
var ErrTrackerClosed = errors.New("shutdown: service is shutting down")

// ErrWaitTimeout is returned when Wait times out before all operations complete.
var ErrWaitTimeout = errors.New("shutdown: operations did not complete in time")

// OperationTracker tracks named in-flight operations so shutdown can wait
// for them and report the ones that overran the deadline.
//
// Usage:
//
//	tracker := NewOperationTracker()
//
//	id, ok := tracker.Start("batch 3f2a")
//	if !ok {
//	    return ErrTrackerClosed
//	}
//	defer tracker.Done(id)
//
//	// During shutdown:
//	tracker.Close()
//	err := tracker.Wait(30 * time.Second)
type OperationTracker struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	nextID uint64
	active map[uint64]string
	closed bool
}

// NewOperationTracker creates a new OperationTracker ready to track operations.
func NewOperationTracker() *OperationTracker {
	return &OperationTracker{active: make(map[uint64]string)}
}

// Start registers an operation. ok is false once the tracker is closed; the
// caller must then reject the work. Every successful Start must be matched
// by exactly one Done(id).
func (t *OperationTracker) Start(name string) (id uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, false
	}
	t.nextID++
	t.active[t.nextID] = name
	t.wg.Add(1)
	return t.nextID, true
}

// Done marks an operation as complete. Unknown ids are ignored.
func (t *OperationTracker) Done(id uint64) {
	t.mu.Lock()
	_, ok := t.active[id]
	delete(t.active, id)
	t.mu.Unlock()

	if ok {
		t.wg.Done()
	}
}

// Wait blocks until all tracked operations complete or the timeout is reached.
func (t *OperationTracker) Wait(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrWaitTimeout
	}
}

// Close prevents new operations from starting. Running ones continue.
func (t *OperationTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// ActiveCount returns the current number of active operations.
func (t *OperationTracker) ActiveCount() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.active))
}

// Active returns the names of the running operations in start order.
func (t *OperationTracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint64, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = t.active[id]
	}
	return names
}

// IsClosed returns true if the tracker has been closed.
func (t *OperationTracker) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
