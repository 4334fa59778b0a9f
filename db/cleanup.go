package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult contains statistics about a retention run.
type CleanupResult struct {
	GenerationEventsDeleted int64
	Duration                time.Duration
}

// Cleanup deletes generation events older than retentionDays. Ledger
// entries are the balance audit trail and are never pruned.
//
// Example:
//
//	result, err := database.Cleanup(ctx, 90)
func (d *Database) Cleanup(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	res, err := d.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM generation_events WHERE created_at < strftime('%%Y-%%m-%%d %%H:%%M:%%f', 'now', '-%d days')", retentionDays))
	if err != nil {
		return result, fmt.Errorf("failed to delete from generation_events: %w", err)
	}

	result.GenerationEventsDeleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if result.GenerationEventsDeleted > 0 {
		// Checkpoint rather than VACUUM: the studio keeps serving while this runs.
		if _, err := d.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but checkpoint failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig holds configuration for the retention scheduler.
type CleanupSchedulerConfig struct {
	RetentionDays int
	Interval      time.Duration
	// OnCleanup is called after each run (optional)
	OnCleanup func(result CleanupResult, err error)
}

// DefaultCleanupSchedulerConfig returns a daily run keeping 90 days.
func DefaultCleanupSchedulerConfig() CleanupSchedulerConfig {
	return CleanupSchedulerConfig{
		RetentionDays: 90,
		Interval:      24 * time.Hour,
	}
}

// StartCleanupScheduler runs Cleanup immediately and then every Interval
// until ctx is cancelled. The returned channel closes when the goroutine exits.
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) <-chan struct{} {
	if config.Interval <= 0 {
		config.Interval = DefaultCleanupSchedulerConfig().Interval
	}

	exited := make(chan struct{})
	run := func() {
		result, err := d.Cleanup(ctx, config.RetentionDays)
		if config.OnCleanup != nil {
			config.OnCleanup(result, err)
		}
	}

	go func() {
		defer close(exited)
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()

	return exited
}
