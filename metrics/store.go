// Package metrics provides the Store organism for in-memory metrics storage.
// This file contains the Store which implements the Collector interface.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Store is an in-memory Collector. It keeps a fixed-size ring of recent
// records plus running totals.
//
// Usage:
//
//	store := NewStore(DefaultStoreConfig(), time.Now())
//	store.RecordGeneration(record)
//	metrics := store.GetGenerationMetrics()
type Store struct {
	mu sync.RWMutex

	// Ring buffer of recent records
	history []GenerationRecord
	cap     int
	head    int
	size    int

	totalRecords   int64
	totalSuccess   int64
	totalErrors    int64
	images         int64
	tokensCharged  int64
	tokensRefunded int64
	byKind         map[string]*kindStats
	byOutcome      map[string]int64

	inFlight atomic.Int64
	stopping atomic.Bool

	startTime time.Time
	version   string
}

// kindStats holds per-kind aggregation data
type kindStats struct {
	count         int64
	successCount  int64
	totalDuration time.Duration
}

// StoreConfig configures the Store.
type StoreConfig struct {
	// HistoryCapacity is the max number of records to retain
	HistoryCapacity int
	// Version is the application version string
	Version string
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		HistoryCapacity: 100,
		Version:         "0.0.0",
	}
}

// NewStore creates a Store. startTime is used to calculate uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.HistoryCapacity
	if capacity < 1 {
		capacity = 100
	}

	return &Store{
		history:   make([]GenerationRecord, capacity),
		cap:       capacity,
		byKind:    make(map[string]*kindStats),
		byOutcome: make(map[string]int64),
		startTime: startTime,
		version:   config.Version,
	}
}

// RecordGeneration implements Collector.
func (s *Store) RecordGeneration(record GenerationRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[s.head] = record
	s.head = (s.head + 1) % s.cap
	if s.size < s.cap {
		s.size++
	}

	s.totalRecords++
	switch record.Status {
	case StatusSuccess:
		s.totalSuccess++
	case StatusError:
		s.totalErrors++
	}

	s.images += int64(record.Completed)
	if record.Refunded {
		s.tokensRefunded += record.Cost
	} else {
		s.tokensCharged += record.Cost
	}
	if record.Outcome != "" {
		s.byOutcome[record.Outcome]++
	}

	stats, ok := s.byKind[record.Kind]
	if !ok {
		stats = &kindStats{}
		s.byKind[record.Kind] = stats
	}
	stats.count++
	if record.Status == StatusSuccess {
		stats.successCount++
	}
	stats.totalDuration += record.Duration
}

// GetGenerationMetrics implements Collector.
func (s *Store) GetGenerationMetrics() GenerationMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := GenerationMetrics{
		TotalProcessed:  s.totalRecords,
		TotalSuccess:    s.totalSuccess,
		TotalErrors:     s.totalErrors,
		ImagesGenerated: s.images,
		TokensCharged:   s.tokensCharged,
		TokensRefunded:  s.tokensRefunded,
		ByKind:          make(map[string]*KindMetrics, len(s.byKind)),
		ByOutcome:       make(map[string]int64, len(s.byOutcome)),
	}

	for kind, stats := range s.byKind {
		km := &KindMetrics{Count: stats.count}
		if stats.count > 0 {
			km.SuccessRate = float64(stats.successCount) / float64(stats.count) * 100
			km.AvgDuration = stats.totalDuration / time.Duration(stats.count)
		}
		metrics.ByKind[kind] = km
	}
	for outcome, n := range s.byOutcome {
		metrics.ByOutcome[outcome] = n
	}

	return metrics
}

// GetRecentGenerations implements Collector.
func (s *Store) GetRecentGenerations(limit int) []GenerationRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || s.size == 0 {
		return []GenerationRecord{}
	}
	if limit > s.size {
		limit = s.size
	}

	result := make([]GenerationRecord, limit)
	for i := 0; i < limit; i++ {
		idx := (s.head - 1 - i + s.cap) % s.cap
		result[i] = s.history[idx]
	}
	return result
}

// GenerationStarted marks one generation as in flight.
func (s *Store) GenerationStarted() {
	s.inFlight.Add(1)
}

// GenerationFinished clears one in-flight mark.
func (s *Store) GenerationFinished() {
	s.inFlight.Add(-1)
}

// SetStopping flips the reported health to "stopping".
func (s *Store) SetStopping() {
	s.stopping.Store(true)
}

// GetSystemStatus implements Collector.
func (s *Store) GetSystemStatus() SystemStatus {
	health := SystemHealthRunning
	if s.stopping.Load() {
		health = SystemHealthStopping
	}
	return SystemStatus{
		Health:    health,
		Version:   s.version,
		Uptime:    time.Since(s.startTime),
		LastCheck: time.Now(),
		InFlight:  s.inFlight.Load(),
	}
}

// Verify Store implements Collector interface
var _ Collector = (*Store)(nil)
