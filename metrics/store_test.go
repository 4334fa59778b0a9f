package metrics

import (
	"sync"
	"testing"
	"time"
)

func record(kind, status, outcome string, cost int64, completed int, refunded bool) GenerationRecord {
	return GenerationRecord{
		ID:        "batch",
		Kind:      kind,
		Status:    status,
		Outcome:   outcome,
		Cost:      cost,
		Completed: completed,
		Refunded:  refunded,
		Duration:  100 * time.Millisecond,
	}
}

func TestNewStore(t *testing.T) {
	t.Run("creates store with default config", func(t *testing.T) {
		store := NewStore(DefaultStoreConfig(), time.Now())
		if store.cap != 100 {
			t.Errorf("expected capacity 100, got %d", store.cap)
		}
		if store.version != "0.0.0" {
			t.Errorf("expected version 0.0.0, got %s", store.version)
		}
	})

	t.Run("handles zero capacity by defaulting to 100", func(t *testing.T) {
		store := NewStore(StoreConfig{}, time.Now())
		if store.cap != 100 {
			t.Errorf("expected default capacity 100, got %d", store.cap)
		}
	})
}

func TestStore_RecordGeneration(t *testing.T) {
	store := NewStore(DefaultStoreConfig(), time.Now())

	store.RecordGeneration(record(KindBatch, StatusSuccess, "success", 24, 3, false))
	store.RecordGeneration(record(KindBatch, StatusError, "ContentRejected", 20, 1, true))
	store.RecordGeneration(record(KindEdit, StatusSuccess, "success", 16, 1, false))

	m := store.GetGenerationMetrics()
	if m.TotalProcessed != 3 || m.TotalSuccess != 2 || m.TotalErrors != 1 {
		t.Errorf("totals = %d/%d/%d, want 3/2/1", m.TotalProcessed, m.TotalSuccess, m.TotalErrors)
	}
	if m.TokensCharged != 40 {
		t.Errorf("TokensCharged = %d, want 40", m.TokensCharged)
	}
	if m.TokensRefunded != 20 {
		t.Errorf("TokensRefunded = %d, want 20", m.TokensRefunded)
	}
	if m.ImagesGenerated != 5 {
		t.Errorf("ImagesGenerated = %d, want 5", m.ImagesGenerated)
	}
	if m.ByOutcome["ContentRejected"] != 1 {
		t.Errorf("ByOutcome[ContentRejected] = %d, want 1", m.ByOutcome["ContentRejected"])
	}

	batch := m.ByKind[KindBatch]
	if batch == nil {
		t.Fatal("expected batch stats")
	}
	if batch.Count != 2 || batch.SuccessRate != 50 {
		t.Errorf("batch stats = %+v, want count 2 and 50%% success", batch)
	}
	if batch.AvgDuration != 100*time.Millisecond {
		t.Errorf("AvgDuration = %v, want 100ms", batch.AvgDuration)
	}
}

func TestStore_GetRecentGenerations(t *testing.T) {
	store := NewStore(StoreConfig{HistoryCapacity: 3}, time.Now())

	for i, id := range []string{"a", "b", "c", "d"} {
		r := record(KindText, StatusSuccess, "success", int64(i), 1, false)
		r.ID = id
		store.RecordGeneration(r)
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{0, nil},
		{2, []string{"d", "c"}},
		{10, []string{"d", "c", "b"}},
	}
	for _, tt := range tests {
		got := store.GetRecentGenerations(tt.limit)
		if len(got) != len(tt.want) {
			t.Fatalf("GetRecentGenerations(%d) returned %d records, want %d", tt.limit, len(got), len(tt.want))
		}
		for i := range got {
			if got[i].ID != tt.want[i] {
				t.Errorf("GetRecentGenerations(%d)[%d] = %s, want %s", tt.limit, i, got[i].ID, tt.want[i])
			}
		}
	}
}

func TestStore_SystemStatus(t *testing.T) {
	store := NewStore(StoreConfig{Version: "1.2.3"}, time.Now().Add(-time.Minute))

	store.GenerationStarted()
	store.GenerationStarted()
	store.GenerationFinished()

	status := store.GetSystemStatus()
	if status.Health != SystemHealthRunning {
		t.Errorf("Health = %s, want running", status.Health)
	}
	if status.InFlight != 1 {
		t.Errorf("InFlight = %d, want 1", status.InFlight)
	}
	if status.Uptime < time.Minute {
		t.Errorf("Uptime = %v, want at least 1m", status.Uptime)
	}
	if status.Version != "1.2.3" {
		t.Errorf("Version = %s, want 1.2.3", status.Version)
	}

	store.SetStopping()
	if got := store.GetSystemStatus().Health; got != SystemHealthStopping {
		t.Errorf("Health after SetStopping = %s, want stopping", got)
	}
}

func TestStore_Concurrent(t *testing.T) {
	store := NewStore(StoreConfig{HistoryCapacity: 10}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.RecordGeneration(record(KindBatch, StatusSuccess, "success", 16, 1, false))
			store.GetGenerationMetrics()
			store.GetRecentGenerations(5)
		}()
	}
	wg.Wait()

	if got := store.GetGenerationMetrics().TotalProcessed; got != 50 {
		t.Errorf("TotalProcessed = %d, want 50", got)
	}
	if got := len(store.GetRecentGenerations(100)); got != 10 {
		t.Errorf("history size = %d, want 10", got)
	}
}
