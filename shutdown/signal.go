package shutdown

import (
	"os"
	"sync"
	"syscall"

	"productstudio/core"
)

// SignalCounter counts shutdown signals. The first one starts a graceful
// shutdown; reaching forceAfter calls onForce with the exit code matching
// the last signal.
type SignalCounter struct {
	mu         sync.Mutex
	count      int
	last       os.Signal
	forceAfter int
	onForce    func(exitCode int)
}

// NewSignalCounter creates a SignalCounter. onForce may be nil.
func NewSignalCounter(forceAfter int, onForce func(exitCode int)) *SignalCounter {
	return &SignalCounter{
		forceAfter: forceAfter,
		onForce:    onForce,
	}
}

// Observe records sig and returns the new count. The force callback runs
// while the lock is held, so it should exit the process or return quickly.
func (s *SignalCounter) Observe(sig os.Signal) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	s.last = sig
	if s.count >= s.forceAfter && s.onForce != nil {
		s.onForce(ExitCodeForSignal(sig))
	}
	return s.count
}

// Count returns the current signal count.
func (s *SignalCounter) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Last returns the most recent signal, or nil.
func (s *SignalCounter) Last() os.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// ExitCodeForSignal maps a signal to its 128+n exit code.
func ExitCodeForSignal(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}
