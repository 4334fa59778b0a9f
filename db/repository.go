package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by repository methods.
var (
	ErrNotFound            = errors.New("db: record not found")
	ErrInsufficientBalance = errors.New("db: insufficient token balance")
)

// timestampExpr renders the current UTC time the way column defaults do.
const timestampExpr = "strftime('%Y-%m-%d %H:%M:%f', 'now')"

// Repository provides typed access to the studio tables. Generation events
// go through the optional AsyncWriter; everything else is synchronous.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
}

// NewRepository creates a new Repository. asyncWriter may be nil.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{
		db:          db,
		asyncWriter: asyncWriter,
	}
}

// SetAsyncWriter attaches the writer built from CreateAsyncWriteHandler.
func (r *Repository) SetAsyncWriter(w *AsyncWriter) {
	r.asyncWriter = w
}

// asyncInsertOp is an internal type for async insert operations.
type asyncInsertOp struct {
	query string
	args  []interface{}
}

// CreateAsyncWriteHandler returns a WriteHandler that executes queued inserts.
func (r *Repository) CreateAsyncWriteHandler() WriteHandler {
	return func(op WriteOperation) error {
		insertOp, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("invalid operation type: expected asyncInsertOp")
		}

		_, err := r.db.ExecContext(context.Background(), insertOp.query, insertOp.args...)
		return err
	}
}

// nullString converts an empty string to NULL.
func nullString(s string) interface{} {
	if s == "" {
		return sql.NullString{}
	}
	return s
}

// sqlLimit maps a non-positive limit to SQLite's "no limit".
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// parseTimestamp parses a stored UTC timestamp. Fractional seconds are
// accepted by every layout.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}
