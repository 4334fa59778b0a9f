package db

import (
	"context"
	"fmt"
	"time"
)

// GenerationEvent is the audit row written once per batch or edit.
type GenerationEvent struct {
	ID           int64
	BatchID      string
	OwnerID      string
	Kind         string // "batch", "text" or "edit"
	Items        int
	Completed    int
	Cost         int64
	Refunded     bool
	Outcome      string
	ErrorMessage string
	DurationMS   int64
	CreatedAt    time.Time
}

// InsertGenerationEvent records an outcome. With a started AsyncWriter the
// insert is queued and the returned id is 0; a full queue falls back to a
// synchronous write.
func (r *Repository) InsertGenerationEvent(ctx context.Context, e GenerationEvent) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	query := `
		INSERT INTO generation_events (
			batch_id, owner_id, kind, items, completed, cost,
			refunded, outcome, error_message, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	args := []interface{}{
		e.BatchID,
		e.OwnerID,
		e.Kind,
		e.Items,
		e.Completed,
		e.Cost,
		e.Refunded,
		e.Outcome,
		nullString(e.ErrorMessage),
		e.DurationMS,
	}

	if r.asyncWriter != nil && r.asyncWriter.IsStarted() {
		if r.asyncWriter.Write(asyncInsertOp{query: query, args: args}) {
			return 0, nil
		}
	}

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert generation event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// QueryRecentGenerationEvents returns events newest first. An empty ownerID
// returns events of every owner.
func (r *Repository) QueryRecentGenerationEvents(ctx context.Context, ownerID string, limit int) ([]GenerationEvent, error) {
	if r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, owner_id, kind, items, completed, cost, refunded,
			   outcome, COALESCE(error_message, ''), duration_ms, created_at
		FROM generation_events
		WHERE (? = '' OR owner_id = ?)
		ORDER BY id DESC
		LIMIT ?`,
		ownerID, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation events: %w", err)
	}
	defer rows.Close()

	var events []GenerationEvent
	for rows.Next() {
		var e GenerationEvent
		var createdAt string
		err := rows.Scan(&e.ID, &e.BatchID, &e.OwnerID, &e.Kind, &e.Items, &e.Completed, &e.Cost,
			&e.Refunded, &e.Outcome, &e.ErrorMessage, &e.DurationMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generation event row: %w", err)
		}
		e.CreatedAt = parseTimestamp(createdAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generation event rows: %w", err)
	}
	return events, nil
}

// CountGenerationEvents returns the total count of generation events.
func (r *Repository) CountGenerationEvents(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count generation events: %w", err)
	}
	return count, nil
}
