// Package metrics provides pure data types for the admin metrics endpoint.
// This file contains atom-level type definitions with no behavior.
package metrics

import "time"

// GenerationRecord is the outcome of one metered request: a batch, a
// text-only generation or an edit.
type GenerationRecord struct {
	// ID is the batch id shared with logs and generation events
	ID string `json:"id"`

	// Kind is one of KindBatch, KindText or KindEdit
	Kind string `json:"kind"`

	// OwnerID is the user the tokens were charged to
	OwnerID string `json:"owner_id"`

	// Status is StatusSuccess or StatusError
	Status string `json:"status"`

	// Outcome is "success" or the failure kind (e.g. "ContentRejected")
	Outcome string `json:"outcome"`

	// Items is the number of planned generations
	Items int `json:"items"`

	// Completed is the number of persisted artifacts
	Completed int `json:"completed"`

	// Cost is the number of tokens reserved
	Cost int64 `json:"cost"`

	// Refunded reports whether the reservation was credited back
	Refunded bool `json:"refunded"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	// ErrorMsg holds the user-facing failure message
	ErrorMsg string `json:"error_msg,omitempty"`
}

// GenerationMetrics aggregates every recorded outcome since startup.
type GenerationMetrics struct {
	TotalProcessed int64 `json:"total_processed"`
	TotalSuccess   int64 `json:"total_success"`
	TotalErrors    int64 `json:"total_errors"`

	// ImagesGenerated counts persisted artifacts, including those of
	// batches that later failed
	ImagesGenerated int64 `json:"images_generated"`

	// TokensCharged is the net token spend (reservations minus refunds)
	TokensCharged  int64 `json:"tokens_charged"`
	TokensRefunded int64 `json:"tokens_refunded"`

	ByKind    map[string]*KindMetrics `json:"by_kind"`
	ByOutcome map[string]int64        `json:"by_outcome"`
}

// KindMetrics holds statistics for one request kind.
type KindMetrics struct {
	Count       int64         `json:"count"`
	SuccessRate float64       `json:"success_rate"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// SystemStatus represents the overall service status.
type SystemStatus struct {
	// Health indicates the service state: "running" or "stopping"
	Health string `json:"health"`

	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`

	// InFlight is the number of generations currently running
	InFlight int64 `json:"in_flight"`
}

// Status constants for GenerationRecord
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Health constants for SystemStatus
const (
	SystemHealthRunning  = "running"
	SystemHealthStopping = "stopping"
)

// Request kinds
const (
	KindBatch = "batch"
	KindText  = "text"
	KindEdit  = "edit"
)
