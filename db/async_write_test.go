package db

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestAsyncWriterProcessesInOrder(t *testing.T) {
	var mu sync.Mutex
	var received []interface{}

	writer := NewAsyncWriter(func(op WriteOperation) error {
		mu.Lock()
		received = append(received, op.Data)
		mu.Unlock()
		return nil
	})
	writer.Start()
	writer.Start() // no-op

	for _, data := range []string{"first", "second", "third"} {
		if !writer.Write(data) {
			t.Errorf("Write(%s) returned false", data)
		}
	}

	writer.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 || received[0] != "first" || received[2] != "third" {
		t.Errorf("received = %v, want [first second third]", received)
	}
}

func TestAsyncWriterFullBuffer(t *testing.T) {
	release := make(chan struct{})
	writer := NewAsyncWriterWithConfig(func(op WriteOperation) error {
		<-release
		return nil
	}, AsyncWriterConfig{ChannelCapacity: 2})

	// Not started: nothing drains, so the third write must be refused.
	if !writer.Write(1) || !writer.Write(2) {
		t.Fatal("Write() refused while buffer had room")
	}
	if writer.Write(3) {
		t.Error("Write() accepted into a full buffer")
	}
	if writer.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", writer.Pending())
	}

	writer.Start()
	close(release)
	if !writer.StopWithTimeout(time.Second) {
		t.Error("StopWithTimeout() did not drain in time")
	}
}

func TestAsyncWriterRejectsAfterStop(t *testing.T) {
	writer := NewAsyncWriter(func(WriteOperation) error { return nil })
	writer.Start()
	writer.Stop()
	writer.Stop()

	if writer.IsStarted() {
		t.Error("IsStarted() = true after Stop")
	}
	if writer.Write("late") {
		t.Error("Write() accepted after Stop")
	}
}

func TestAsyncWriterOnError(t *testing.T) {
	var failures int64
	writer := NewAsyncWriterWithConfig(func(WriteOperation) error {
		return errors.New("disk full")
	}, AsyncWriterConfig{
		OnError: func(op WriteOperation, err error) {
			atomic.AddInt64(&failures, 1)
		},
	})
	writer.Start()
	writer.Write("a")
	writer.Write("b")
	writer.Stop()

	if got := atomic.LoadInt64(&failures); got != 2 {
		t.Errorf("OnError called %d times, want 2", got)
	}
}

func TestAsyncWriterStopTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	writer := NewAsyncWriter(func(WriteOperation) error {
		<-release
		return nil
	})
	writer.Start()
	writer.Write("stuck")

	if writer.StopWithTimeout(20 * time.Millisecond) {
		t.Error("StopWithTimeout() reported a drain while the handler was blocked")
	}
}
