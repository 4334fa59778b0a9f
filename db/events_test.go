package db

import (
	"context"
	"testing"
)

func TestInsertGenerationEventSync(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	id, err := repo.InsertGenerationEvent(ctx, GenerationEvent{
		BatchID:      "batch-1",
		OwnerID:      "user-1",
		Kind:         "batch",
		Items:        3,
		Completed:    1,
		Cost:         24,
		Refunded:     true,
		Outcome:      "content_rejected",
		ErrorMessage: "blocked by safety filter",
		DurationMS:   1200,
	})
	if err != nil {
		t.Fatalf("InsertGenerationEvent() error = %v", err)
	}
	if id <= 0 {
		t.Errorf("InsertGenerationEvent() id = %d, want > 0", id)
	}

	if _, err := repo.InsertGenerationEvent(ctx, GenerationEvent{
		BatchID: "batch-2", OwnerID: "user-2", Kind: "edit", Items: 1, Completed: 1, Cost: 16, Outcome: "success",
	}); err != nil {
		t.Fatalf("InsertGenerationEvent() error = %v", err)
	}

	events, err := repo.QueryRecentGenerationEvents(ctx, "user-1", 10)
	if err != nil {
		t.Fatalf("QueryRecentGenerationEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("QueryRecentGenerationEvents(user-1) returned %d, want 1", len(events))
	}
	e := events[0]
	if !e.Refunded || e.Cost != 24 || e.Completed != 1 || e.ErrorMessage != "blocked by safety filter" {
		t.Errorf("event = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt was not parsed")
	}

	all, err := repo.QueryRecentGenerationEvents(ctx, "", 0)
	if err != nil {
		t.Fatalf("QueryRecentGenerationEvents(all) error = %v", err)
	}
	if len(all) != 2 || all[0].BatchID != "batch-2" {
		t.Errorf("QueryRecentGenerationEvents(all) = %+v, want newest first", all)
	}
	if all[0].ErrorMessage != "" || all[0].Refunded {
		t.Errorf("success event = %+v", all[0])
	}
}

func TestInsertGenerationEventAsync(t *testing.T) {
	repo, _ := setupTestRepository(t)
	ctx := context.Background()

	writer := NewAsyncWriter(repo.CreateAsyncWriteHandler())
	repo.SetAsyncWriter(writer)
	writer.Start()

	for i := 0; i < 5; i++ {
		id, err := repo.InsertGenerationEvent(ctx, GenerationEvent{
			BatchID: "async", OwnerID: "user", Kind: "batch", Items: 1, Completed: 1, Cost: 16, Outcome: "success",
		})
		if err != nil {
			t.Fatalf("InsertGenerationEvent() error = %v", err)
		}
		if id != 0 {
			t.Errorf("queued insert returned id %d, want 0", id)
		}
	}

	writer.Stop()

	count, err := repo.CountGenerationEvents(ctx)
	if err != nil {
		t.Fatalf("CountGenerationEvents() error = %v", err)
	}
	if count != 5 {
		t.Errorf("CountGenerationEvents() = %d after drain, want 5", count)
	}

	// A stopped writer falls back to synchronous inserts.
	id, err := repo.InsertGenerationEvent(ctx, GenerationEvent{
		BatchID: "sync", OwnerID: "user", Kind: "text", Outcome: "success",
	})
	if err != nil {
		t.Fatalf("InsertGenerationEvent() after Stop error = %v", err)
	}
	if id <= 0 {
		t.Errorf("InsertGenerationEvent() after Stop id = %d, want > 0", id)
	}
}
