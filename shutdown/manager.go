package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"productstudio/core"
	"productstudio/logging"
)

// Manager coordinates graceful shutdown. It composes:
//   - OperationTracker: in-flight generations
//   - ShutdownRegistry: ordered cleanup functions
//   - SignalCounter: a second signal forces exit
//
// Usage:
//
//	manager := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	manager.Register("database", 40, func(ctx context.Context) error {
//	    return database.Close()
//	})
//	manager.Start()
//
//	// The orchestrator wraps every generation:
//	end, err := manager.Begin("batch " + batchID)
//	if err != nil {
//	    return err // shutting down
//	}
//	defer end()
//
//	<-manager.Context().Done()
//	manager.Shutdown()
type Manager struct {
	logger   *logging.Logger
	timeout  time.Duration
	mu       sync.Mutex
	started  bool
	shutdown bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker  *OperationTracker
	registry *ShutdownRegistry
	signals  *SignalCounter

	sigChan chan os.Signal
	exit    func(code int)
	onClose []func()
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout sets how long Shutdown waits for in-flight generations plus
// cleanup. Default is 60 seconds.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExitFunc replaces os.Exit for the forced-exit path.
func WithExitFunc(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// NewManager creates a Manager. A nil logger discards output.
func NewManager(logger *logging.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:   logger.Named("shutdown"),
		timeout:  60 * time.Second,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  NewOperationTracker(),
		registry: NewShutdownRegistry(),
		sigChan:  make(chan os.Signal, 1),
		exit:     os.Exit,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.signals = NewSignalCounter(2, func(code int) {
		m.logger.Warn("Received second signal, forcing immediate shutdown",
			zap.Strings("abandoned", m.tracker.Active()),
			zap.Int("exit_code", code))
		m.exit(code)
	})
	return m
}

// Context is cancelled when the first shutdown signal arrives or Trigger
// is called.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup function. Lower priority values run first.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.registry.Register(name, priority, fn)
	m.logger.Debug("Registered shutdown handler",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// OnShutdownStart adds a callback run synchronously as soon as Shutdown
// begins, before waiting for operations (e.g. to flip health to stopping).
func (m *Manager) OnShutdownStart(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onClose = append(m.onClose, fn)
}

// Start begins handling SIGINT and SIGTERM. Calling it again is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for sig := range m.sigChan {
			if m.signals.Observe(sig) == 1 {
				m.logger.Info("Received shutdown signal, initiating graceful shutdown",
					zap.String("signal", sig.String()))
				m.cancel()
			}
		}
	}()

	m.logger.Info("Shutdown manager started, listening for signals")
}

// Trigger cancels the managed context as if a signal had arrived.
func (m *Manager) Trigger() {
	m.cancel()
}

// Begin registers an in-flight operation and returns the function that
// ends it. After Shutdown has started it returns ErrTrackerClosed.
func (m *Manager) Begin(name string) (func(), error) {
	id, ok := m.tracker.Start(name)
	if !ok {
		m.logger.Debug("Operation rejected, service shutting down", zap.String("operation", name))
		return nil, ErrTrackerClosed
	}
	var once sync.Once
	return func() { once.Do(func() { m.tracker.Done(id) }) }, nil
}

// Shutdown stops accepting operations, waits for running ones and then runs
// the cleanup handlers with whatever remains of the timeout (at least one
// second). It returns an error if a handler failed. Only the first call does
// anything.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil
	}
	m.shutdown = true
	hooks := append([]func(){}, m.onClose...)
	m.mu.Unlock()

	m.cancel()
	for _, fn := range hooks {
		fn()
	}

	startTime := time.Now()
	m.logger.Info("Initiating graceful shutdown",
		zap.Duration("timeout", m.timeout),
		zap.Int("registered_handlers", m.registry.Count()))

	m.tracker.Close()
	if active := m.tracker.Active(); len(active) > 0 {
		m.logger.Info("Waiting for in-flight generations", zap.Strings("operations", active))
	}

	if err := m.tracker.Wait(m.timeout); err != nil {
		m.logger.Warn("Timeout waiting for in-flight generations",
			zap.Duration("waited", time.Since(startTime)),
			zap.Strings("remaining", m.tracker.Active()))
	}

	remaining := m.timeout - time.Since(startTime)
	if remaining < time.Second {
		remaining = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), remaining)
	defer cancel()

	var errs []error
	for _, result := range m.registry.Shutdown(ctx) {
		if result.Err != nil {
			m.logger.Error("Cleanup function failed",
				zap.String("handler", result.Name),
				zap.Duration("duration", result.Duration),
				zap.Error(result.Err))
			errs = append(errs, result.Err)
			continue
		}
		m.logger.Debug("Cleanup function finished",
			zap.String("handler", result.Name),
			zap.Duration("duration", result.Duration))
	}

	m.mu.Lock()
	if m.started {
		signal.Stop(m.sigChan)
		close(m.sigChan)
	}
	m.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown had %d errors: %w", len(errs), errors.Join(errs...))
	}
	m.logger.Info("Graceful shutdown completed", zap.Duration("duration", time.Since(startTime)))
	return nil
}

// Wait blocks until the managed context is cancelled.
func (m *Manager) Wait() {
	<-m.ctx.Done()
}

// ActiveOperations returns the count of in-flight operations.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.ActiveCount()
}

// IsShuttingDown returns true once Shutdown has started.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// RegisteredHandlers returns the handler names in execution order.
func (m *Manager) RegisteredHandlers() []string {
	return m.registry.Names()
}

// ExitCode returns the process exit code for the signal that started the
// shutdown, or ExitCodeSuccess when none arrived.
func (m *Manager) ExitCode() int {
	if sig := m.signals.Last(); sig != nil {
		return ExitCodeForSignal(sig)
	}
	return core.ExitCodeSuccess
}
