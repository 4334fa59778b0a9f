package db

import (
	"sync"
	"time"
)

// Async writer defaults.
const (
	DefaultChannelCapacity = 100
	DefaultDrainTimeout    = 30 * time.Second
)

// WriteOperation is one queued write.
type WriteOperation struct {
	Data      interface{}
	Timestamp time.Time
}

// WriteHandler processes a write operation. Errors go to the writer's OnError hook.
type WriteHandler func(op WriteOperation) error

// AsyncWriter moves audit inserts off the request path through a buffered
// channel drained by one goroutine. Stop drains everything already queued.
type AsyncWriter struct {
	writeChan chan WriteOperation
	handler   WriteHandler
	onError   func(op WriteOperation, err error)
	done      chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool
}

// AsyncWriterConfig holds configuration for the async writer.
type AsyncWriterConfig struct {
	ChannelCapacity int
	// OnError is called for every failed write (optional)
	OnError func(op WriteOperation, err error)
}

// DefaultAsyncWriterConfig returns the default configuration.
func DefaultAsyncWriterConfig() AsyncWriterConfig {
	return AsyncWriterConfig{ChannelCapacity: DefaultChannelCapacity}
}

// NewAsyncWriter creates a new async writer with default configuration.
func NewAsyncWriter(handler WriteHandler) *AsyncWriter {
	return NewAsyncWriterWithConfig(handler, DefaultAsyncWriterConfig())
}

// NewAsyncWriterWithConfig creates a new async writer with custom configuration.
func NewAsyncWriterWithConfig(handler WriteHandler, config AsyncWriterConfig) *AsyncWriter {
	if config.ChannelCapacity <= 0 {
		config.ChannelCapacity = DefaultChannelCapacity
	}
	return &AsyncWriter{
		writeChan: make(chan WriteOperation, config.ChannelCapacity),
		handler:   handler,
		onError:   config.OnError,
		done:      make(chan struct{}),
	}
}

// Start begins the background goroutine. Calling it twice is a no-op.
func (w *AsyncWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started || w.stopped {
		return
	}
	w.started = true
	go w.processWrites()
}

func (w *AsyncWriter) processWrites() {
	defer close(w.done)

	for op := range w.writeChan {
		if err := w.handler(op); err != nil && w.onError != nil {
			w.onError(op, err)
		}
	}
}

// Write queues data without blocking. It returns false when the buffer is
// full or the writer has been stopped.
func (w *AsyncWriter) Write(data interface{}) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		return false
	}

	select {
	case w.writeChan <- WriteOperation{Data: data, Timestamp: time.Now()}:
		return true
	default:
		return false
	}
}

// Pending returns the number of operations waiting in the buffer.
func (w *AsyncWriter) Pending() int {
	return len(w.writeChan)
}

// Stop refuses new writes and waits until every queued write is handled.
func (w *AsyncWriter) Stop() {
	w.StopWithTimeout(0)
}

// StopWithTimeout is Stop with an upper bound on the wait; zero waits forever.
// It returns false if the drain did not finish in time.
func (w *AsyncWriter) StopWithTimeout(timeout time.Duration) bool {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return true
	}
	w.stopped = true
	started := w.started
	close(w.writeChan)
	w.mu.Unlock()

	if !started {
		return true
	}

	if timeout <= 0 {
		<-w.done
		return true
	}

	select {
	case <-w.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// IsStarted reports whether the writer is accepting and processing writes.
func (w *AsyncWriter) IsStarted() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.started && !w.stopped
}
