package webui

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"productstudio/logging"
)

// HealthChecker probes one dependency, such as the database or blob store.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to HealthChecker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name implements HealthChecker.
func (c CheckFunc) Name() string { return c.CheckName }

// Check implements HealthChecker.
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// DependencyStatus is the last observed state of one dependency.
type DependencyStatus struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	// Errors keeps the last few failure messages, oldest first.
	Errors []string `json:"recent_errors,omitempty"`
}

const maxRecentErrors = 5

// HealthMonitor periodically probes the registered dependencies and keeps
// their last status for the /health endpoint.
type HealthMonitor struct {
	mu       sync.RWMutex
	checkers []HealthChecker
	status   map[string]DependencyStatus

	interval       time.Duration
	timeout        time.Duration
	onStatusChange func(name string, healthy bool)
	logger         *logging.Logger
}

// HealthMonitorConfig configures a HealthMonitor.
type HealthMonitorConfig struct {
	CheckInterval time.Duration
	// CheckTimeout bounds each probe.
	CheckTimeout   time.Duration
	OnStatusChange func(name string, healthy bool)
}

// DefaultHealthMonitorConfig checks every 30s with a 5s probe timeout.
func DefaultHealthMonitorConfig() HealthMonitorConfig {
	return HealthMonitorConfig{
		CheckInterval: 30 * time.Second,
		CheckTimeout:  5 * time.Second,
	}
}

// NewHealthMonitor creates a monitor with no checkers.
func NewHealthMonitor(config HealthMonitorConfig, logger *logging.Logger) *HealthMonitor {
	if config.CheckInterval <= 0 {
		config.CheckInterval = 30 * time.Second
	}
	if config.CheckTimeout <= 0 {
		config.CheckTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthMonitor{
		status:         make(map[string]DependencyStatus),
		interval:       config.CheckInterval,
		timeout:        config.CheckTimeout,
		onStatusChange: config.OnStatusChange,
		logger:         logger.Named("health"),
	}
}

// Register adds a checker. Its status reads as unhealthy until the first probe.
func (m *HealthMonitor) Register(c HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
	m.status[c.Name()] = DependencyStatus{Name: c.Name(), Error: "not checked yet"}
}

// Start probes immediately and then every interval until ctx is cancelled.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes every dependency once.
func (m *HealthMonitor) CheckNow(ctx context.Context) {
	m.mu.RLock()
	checkers := append([]HealthChecker(nil), m.checkers...)
	m.mu.RUnlock()

	for _, c := range checkers {
		m.check(ctx, c)
	}
}

func (m *HealthMonitor) check(ctx context.Context, c HealthChecker) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := c.Check(probeCtx)
	cancel()

	name := c.Name()
	m.mu.Lock()
	prev, hadPrev := m.status[name]
	next := DependencyStatus{
		Name:      name,
		Healthy:   err == nil,
		CheckedAt: time.Now(),
	}
	if err != nil {
		next.Error = err.Error()
		recent := prev.Errors
		if len(recent) >= maxRecentErrors {
			recent = recent[1:]
		}
		next.Errors = append(append([]string(nil), recent...), next.Error)
	}
	m.status[name] = next
	m.mu.Unlock()

	changed := !hadPrev || prev.CheckedAt.IsZero() || prev.Healthy != next.Healthy
	if !changed {
		return
	}
	if next.Healthy {
		m.logger.Info("dependency healthy", zap.String("dependency", name))
	} else {
		m.logger.Warn("dependency unhealthy", zap.String("dependency", name), zap.Error(err))
	}
	if m.onStatusChange != nil {
		m.onStatusChange(name, next.Healthy)
	}
}

// Status returns every dependency's status sorted by name, and whether all
// of them are healthy.
func (m *HealthMonitor) Status() ([]DependencyStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DependencyStatus, 0, len(m.status))
	healthy := true
	for _, s := range m.status {
		out = append(out, s)
		healthy = healthy && s.Healthy
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, healthy
}
