package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"productstudio/core"
)

// shutdownEntry holds a registered shutdown function with metadata.
type shutdownEntry struct {
	name     string
	fn       core.ShutdownFunc
	priority int // lower = earlier execution
	order    int // registration order, breaks priority ties
}

// HandlerResult reports how one cleanup handler went.
type HandlerResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// ShutdownRegistry maintains an ordered collection of shutdown functions.
//
// Typical priorities in this service:
//   - 10: stop the HTTP server
//   - 20: stop background schedulers
//   - 30: drain the async event writer
//   - 40: close the database
//   - 90: sync the logger
type ShutdownRegistry struct {
	mu      sync.Mutex
	entries []shutdownEntry
	closed  bool
}

// NewShutdownRegistry creates a new ShutdownRegistry ready to accept registrations.
func NewShutdownRegistry() *ShutdownRegistry {
	return &ShutdownRegistry{}
}

// Register adds a shutdown function. Handlers with equal priority run in
// registration order. Registration after Shutdown is a no-op.
func (r *ShutdownRegistry) Register(name string, priority int, fn core.ShutdownFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || fn == nil {
		return
	}
	r.entries = append(r.entries, shutdownEntry{
		name:     name,
		fn:       fn,
		priority: priority,
		order:    len(r.entries),
	})
}

// Shutdown runs every handler in priority order, even after a failure, and
// returns one result per handler. Only the first call does anything.
func (r *ShutdownRegistry) Shutdown(ctx context.Context) []HandlerResult {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	sorted := r.sortedLocked()
	r.mu.Unlock()

	results := make([]HandlerResult, 0, len(sorted))
	for _, entry := range sorted {
		start := time.Now()
		err := entry.fn(ctx)
		if err != nil {
			err = fmt.Errorf("shutdown handler %s: %w", entry.name, err)
		}
		results = append(results, HandlerResult{
			Name:     entry.name,
			Duration: time.Since(start),
			Err:      err,
		})
	}
	return results
}

// Names returns the handler names in execution order.
func (r *ShutdownRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	sorted := r.sortedLocked()
	names := make([]string, len(sorted))
	for i, entry := range sorted {
		names[i] = entry.name
	}
	return names
}

func (r *ShutdownRegistry) sortedLocked() []shutdownEntry {
	sorted := make([]shutdownEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].order < sorted[j].order
	})
	return sorted
}

// Count returns the number of registered shutdown functions.
func (r *ShutdownRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed returns true if Shutdown has been called.
func (r *ShutdownRegistry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
