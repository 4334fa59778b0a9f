// Package metrics provides the Collector interface for generation metrics.
// This is a molecule that composes the atom-level types from types.go.
package metrics

// Collector receives generation outcomes and serves aggregates.
// Implementations must be safe for concurrent use and return zero values
// when nothing has been recorded.
type Collector interface {
	// RecordGeneration logs a finished batch, text generation or edit.
	RecordGeneration(record GenerationRecord)

	// GetGenerationMetrics returns aggregated statistics.
	GetGenerationMetrics() GenerationMetrics

	// GetRecentGenerations returns up to limit records, most recent first.
	GetRecentGenerations(limit int) []GenerationRecord

	// GetSystemStatus returns the overall service status.
	GetSystemStatus() SystemStatus
}
