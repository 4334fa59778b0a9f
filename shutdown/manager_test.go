package shutdown

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestManager_BeginEnd(t *testing.T) {
	manager := NewManager(testLogger(t))

	end, err := manager.Begin("batch 1")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if manager.ActiveOperations() != 1 {
		t.Errorf("expected 1 active operation, got %d", manager.ActiveOperations())
	}

	end()
	end() // idempotent
	if manager.ActiveOperations() != 0 {
		t.Errorf("expected 0 active operations, got %d", manager.ActiveOperations())
	}
}

func TestManager_ShutdownWaitsForGenerations(t *testing.T) {
	manager := NewManager(testLogger(t), WithTimeout(5*time.Second))

	end, err := manager.Begin("batch slow")
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	var finished atomic.Bool
	go func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		end()
	}()

	var cleanupSawFinished atomic.Bool
	manager.Register("database", 40, func(ctx context.Context) error {
		cleanupSawFinished.Store(finished.Load())
		return nil
	})

	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !cleanupSawFinished.Load() {
		t.Error("cleanup ran before the in-flight generation finished")
	}
	if _, err := manager.Begin("late"); !errors.Is(err, ErrTrackerClosed) {
		t.Errorf("Begin after shutdown error = %v, want ErrTrackerClosed", err)
	}
}

func TestManager_ShutdownTimesOut(t *testing.T) {
	manager := NewManager(testLogger(t), WithTimeout(50*time.Millisecond))
	manager.Begin("stuck")

	ran := false
	manager.Register("handler", 1, func(ctx context.Context) error { ran = true; return nil })

	start := time.Now()
	if err := manager.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !ran {
		t.Error("cleanup should still run after the wait timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v", elapsed)
	}
}

func TestManager_ShutdownReportsErrors(t *testing.T) {
	manager := NewManager(testLogger(t))
	boom := errors.New("close failed")
	manager.Register("database", 40, func(ctx context.Context) error { return boom })

	err := manager.Shutdown()
	if !errors.Is(err, boom) {
		t.Errorf("Shutdown() error = %v, want wrapped %v", err, boom)
	}
	if err := manager.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v, want nil", err)
	}
}

func TestManager_ShutdownCancelsContextAndRunsHooks(t *testing.T) {
	manager := NewManager(testLogger(t))

	hooked := false
	manager.OnShutdownStart(func() { hooked = true })

	if manager.IsShuttingDown() {
		t.Error("new manager should not be shutting down")
	}
	manager.Shutdown()

	if !hooked {
		t.Error("OnShutdownStart hook did not run")
	}
	select {
	case <-manager.Context().Done():
	default:
		t.Error("context should be cancelled after Shutdown")
	}
	if !manager.IsShuttingDown() {
		t.Error("manager should report shutting down")
	}
}

func TestManager_ForceExitOnSecondSignal(t *testing.T) {
	var exitCode atomic.Int32
	exitCode.Store(-1)
	manager := NewManager(testLogger(t), WithExitFunc(func(code int) { exitCode.Store(int32(code)) }))

	manager.signals.Observe(interruptSignal())
	if exitCode.Load() != -1 {
		t.Fatal("first signal must not force exit")
	}
	manager.signals.Observe(interruptSignal())
	if got := exitCode.Load(); got != 130 {
		t.Errorf("exit code = %d, want 130", got)
	}
}

func TestManager_StartIdempotent(t *testing.T) {
	manager := NewManager(testLogger(t))
	manager.Start()
	manager.Start()
	if err := manager.Shutdown(); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestManager_ExitCode(t *testing.T) {
	manager := NewManager(testLogger(t), WithExitFunc(func(int) {}))
	if got := manager.ExitCode(); got != 0 {
		t.Errorf("ExitCode() without signal = %d, want 0", got)
	}

	manager.signals.Observe(interruptSignal())
	if got := manager.ExitCode(); got != 130 {
		t.Errorf("ExitCode() after interrupt = %d, want 130", got)
	}
}
