package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productstudio/gallery"
	"productstudio/imagegen"
	"productstudio/metrics"
)

func TestGenerateBatchSuccess(t *testing.T) {
	env := setupOrchestrator(t, 60)
	observer := &recordingObserver{}
	env.orch.Progress().Subscribe(observer)

	res, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "  on a marble table  ",
		Items:  items("p1", "p2", "p3"),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(24), res.Cost)
	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, int64(36), env.balance(t))
	assert.Equal(t, []int64{24}, env.counting.debits)
	assert.Empty(t, env.counting.credits)

	require.Len(t, res.Artifacts, 3)
	assert.Equal(t, "art-3", res.Artifacts[0].ID, "most recent first")
	assert.Equal(t, "art-1", res.Artifacts[2].ID)

	assert.Equal(t, []string{"p1", "p2", "p3"}, env.resolver.calls)
	for i, ref := range env.invoker.refs {
		require.NotNil(t, ref)
		b, err := ref.Bytes()
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("src-p%d", i+1), string(b))
	}
	assert.Equal(t, "on a marble table", env.invoker.prompts[0])

	p, ok := env.orch.Progress().Get("user-1")
	require.True(t, ok)
	assert.Equal(t, 3, p.Completed)
	assert.Equal(t, 3, p.Total)
	assert.False(t, p.Running)
	assert.Equal(t, OutcomeSuccess, p.Outcome)

	// start + three advances + finish
	require.Len(t, observer.updates, 5)
	assert.Equal(t, 0, observer.updates[0].Completed)
	assert.True(t, observer.updates[0].Running)

	require.Len(t, env.events.events, 1)
	ev := env.events.events[0]
	assert.Equal(t, res.BatchID, ev.BatchID)
	assert.Equal(t, metrics.KindBatch, ev.Kind)
	assert.Equal(t, OutcomeSuccess, ev.Outcome)
	assert.Equal(t, 3, ev.Completed)
	assert.False(t, ev.Refunded)

	m := env.metrics.GetGenerationMetrics()
	assert.Equal(t, int64(1), m.TotalSuccess)
	assert.Equal(t, int64(3), m.ImagesGenerated)
	assert.Equal(t, int64(24), m.TokensCharged)
}

func TestGenerateBatchFailureRefundsFullCost(t *testing.T) {
	env := setupOrchestrator(t, 60)
	env.invoker.failAt = 2
	env.invoker.failErr = fmt.Errorf("%w: upstream 503", imagegen.ErrTransport)

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "studio shot",
		Items:  items("p1", "p2", "p3"),
	})
	require.Error(t, err)

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, KindGenerationFailed, serr.Kind)
	assert.True(t, serr.Refunded)
	assert.Equal(t, 1, serr.Completed)
	assert.Contains(t, err.Error(), RefundNotice)
	assert.ErrorIs(t, err, imagegen.ErrTransport)

	assert.Equal(t, int64(60), env.balance(t), "balance restored")
	assert.Equal(t, []int64{24}, env.counting.debits)
	assert.Equal(t, []int64{24}, env.counting.credits, "exactly one full refund")

	assert.Equal(t, []string{"p1", "p2"}, env.resolver.calls, "item 3 never attempted")
	assert.Equal(t, 2, env.invoker.callCount())
	assert.Len(t, env.persister.persisted, 1, "artifact 1 stays persisted")

	p, _ := env.orch.Progress().Get("user-1")
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, string(KindGenerationFailed), p.Outcome)

	require.Len(t, env.events.events, 1)
	assert.True(t, env.events.events[0].Refunded)
	assert.Contains(t, env.events.events[0].ErrorMessage, RefundNotice)

	m := env.metrics.GetGenerationMetrics()
	assert.Equal(t, int64(1), m.TotalErrors)
	assert.Equal(t, int64(24), m.TokensRefunded)
	assert.Equal(t, int64(0), m.TokensCharged)
}

func TestGenerateBatchFailureKinds(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(env *testEnv)
		wantKind  Kind
		wantMsg   string
		wantCalls int
	}{
		{
			name: "source unavailable",
			setup: func(env *testEnv) {
				env.resolver.failOn["p2"] = fmt.Errorf("%w: 404", imagegen.ErrSourceUnavailable)
			},
			wantKind:  KindSourceUnavailable,
			wantMsg:   "product p2",
			wantCalls: 1,
		},
		{
			name: "content rejected",
			setup: func(env *testEnv) {
				env.invoker.failAt = 1
				env.invoker.failErr = fmt.Errorf("%w: SAFETY", imagegen.ErrContentRejected)
			},
			wantKind:  KindContentRejected,
			wantMsg:   "content safety policy",
			wantCalls: 1,
		},
		{
			name: "no output",
			setup: func(env *testEnv) {
				env.invoker.failAt = 1
				env.invoker.failErr = imagegen.ErrNoOutput
			},
			wantKind:  KindGenerationFailed,
			wantMsg:   "did not return an image",
			wantCalls: 1,
		},
		{
			name: "storage",
			setup: func(env *testEnv) {
				env.persister.failAt = 1
				env.persister.failErr = fmt.Errorf("%w: disk full", gallery.ErrStorage)
			},
			wantKind:  KindStorageError,
			wantMsg:   "failed to store",
			wantCalls: 1,
		},
		{
			name: "metadata",
			setup: func(env *testEnv) {
				env.persister.failAt = 2
				env.persister.failErr = fmt.Errorf("%w: constraint", gallery.ErrMetadata)
			},
			wantKind:  KindMetadataError,
			wantMsg:   "failed to save",
			wantCalls: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupOrchestrator(t, 60)
			tt.setup(env)

			_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
				UserID: "user-1",
				Prompt: "studio shot",
				Items:  items("p1", "p2"),
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, strings.HasSuffix(err.Error(), RefundNotice))
			assert.Equal(t, int64(60), env.balance(t))
			assert.Equal(t, []int64{20}, env.counting.credits)
			assert.Equal(t, tt.wantCalls, env.invoker.callCount(), "no call after the failing item")
		})
	}
}

func TestGenerateBatchReservationGate(t *testing.T) {
	env := setupOrchestrator(t, 10)

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "studio shot",
		Items:  items("p1"),
	})
	require.Error(t, err)
	assert.Equal(t, KindReservationFailed, KindOf(err))
	assert.Contains(t, err.Error(), "16 required")
	assert.NotContains(t, err.Error(), RefundNotice)

	assert.Equal(t, int64(10), env.balance(t))
	assert.Empty(t, env.resolver.calls)
	assert.Equal(t, 0, env.invoker.callCount())
	assert.Empty(t, env.counting.credits)

	require.Len(t, env.events.events, 1)
	assert.Equal(t, string(KindReservationFailed), env.events.events[0].Outcome)
	assert.Equal(t, int64(0), env.metrics.GetGenerationMetrics().TokensCharged)
}

func TestGenerateBatchUnknownAccount(t *testing.T) {
	env := setupOrchestrator(t, 60)

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "ghost",
		Prompt: "studio shot",
		Items:  items("p1"),
	})
	assert.Equal(t, KindReservationFailed, KindOf(err))
	assert.Equal(t, 0, env.invoker.callCount())
}

func TestGenerateTextOnly(t *testing.T) {
	env := setupOrchestrator(t, 60)

	res, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "a perfume bottle on black sand",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(20), res.Cost)
	assert.Equal(t, int64(40), env.balance(t))
	require.Len(t, res.Artifacts, 1)
	assert.Empty(t, env.resolver.calls)
	require.Len(t, env.invoker.refs, 1)
	assert.Nil(t, env.invoker.refs[0])

	p, _ := env.orch.Progress().Get("user-1")
	assert.Equal(t, 1, p.Total)
	assert.Equal(t, 1, p.Completed)
	assert.Equal(t, metrics.KindText, env.events.events[0].Kind)
}

func TestPreconditionsDebitNothing(t *testing.T) {
	tests := []struct {
		name     string
		req      BatchRequest
		wantKind Kind
		wantErr  error
	}{
		{"no identity", BatchRequest{Prompt: "x", Items: items("p1")}, KindNoIdentity, ErrNoIdentity},
		{"blank identity", BatchRequest{UserID: "  ", Prompt: "x"}, KindNoIdentity, ErrNoIdentity},
		{"empty prompt", BatchRequest{UserID: "user-1", Prompt: " \n "}, KindInvalidRequest, ErrEmptyPrompt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupOrchestrator(t, 60)
			_, err := env.orch.GenerateBatch(context.Background(), tt.req)
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, env.counting.debits)
			assert.Empty(t, env.events.events)
		})
	}
}

func TestGenerateBatchRejectedDuringShutdown(t *testing.T) {
	env := setupOrchestrator(t, 60)
	env.gate.closed = true

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{UserID: "user-1", Prompt: "x"})
	assert.Equal(t, KindUnavailable, KindOf(err))
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.Empty(t, env.counting.debits)
}

func TestGenerateBatchBusy(t *testing.T) {
	env := setupOrchestrator(t, 60)
	env.invoker.block = make(chan struct{})

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = env.orch.GenerateBatch(context.Background(), BatchRequest{
			UserID: "user-1",
			Prompt: "first",
			Items:  items("p1"),
		})
	}()

	require.Eventually(t, func() bool {
		return env.orch.IsRunning("user-1")
	}, time.Second, 5*time.Millisecond)

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "second",
		Items:  items("p1"),
	})
	assert.Equal(t, KindBusy, KindOf(err))
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(env.invoker.block)
	wg.Wait()
	require.NoError(t, firstErr)

	assert.Equal(t, []int64{16}, env.counting.debits, "second request debited nothing")
	assert.Equal(t, int64(44), env.balance(t))
	assert.False(t, env.orch.IsRunning("user-1"))
}

func TestGenerateBatchSurvivesClientDisconnect(t *testing.T) {
	env := setupOrchestrator(t, 60)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The client goes away after the reservation succeeded.
	env.resolver.onResolve = cancel

	res, err := env.orch.GenerateBatch(ctx, BatchRequest{
		UserID: "user-1",
		Prompt: "studio shot",
		Items:  items("p1", "p2"),
	})
	require.NoError(t, err)
	assert.Len(t, res.Artifacts, 2)
	for _, ctxErr := range env.invoker.ctxErr {
		assert.NoError(t, ctxErr)
	}
	assert.Equal(t, int64(40), env.balance(t))
}

func TestRefundFailureIsReported(t *testing.T) {
	env := setupOrchestrator(t, 60)
	env.counting.creditErr = errors.New("database is locked")
	env.invoker.failAt = 1
	env.invoker.failErr = imagegen.ErrNoOutput

	_, err := env.orch.GenerateBatch(context.Background(), BatchRequest{
		UserID: "user-1",
		Prompt: "studio shot",
		Items:  items("p1"),
	})
	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.False(t, serr.Refunded)
	assert.True(t, serr.RefundFailed)
	assert.NotContains(t, err.Error(), RefundNotice)
	assert.Equal(t, []int64{16}, env.counting.credits, "refund attempted once")
	assert.Equal(t, int64(44), env.balance(t))
}

func TestEditImage(t *testing.T) {
	env := setupOrchestrator(t, 60)
	source := imagegen.SourceItem{ID: "img-1", Label: "gallery image", URL: "http://studio.test/files/generated_images/user-1/img-1.png"}

	res, err := env.orch.EditImage(context.Background(), EditRequest{
		UserID: "user-1",
		Prompt: "change the background to blue",
		Source: source,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(16), res.Cost)
	assert.Equal(t, int64(44), env.balance(t))
	assert.Equal(t, "art-1", res.Artifact.ID)
	assert.Equal(t, []string{"img-1"}, env.resolver.calls)
	require.Len(t, env.invoker.refs, 1)
	assert.NotNil(t, env.invoker.refs[0])

	_, tracked := env.orch.Progress().Get("user-1")
	assert.False(t, tracked, "edits do not touch the progress counter")
	assert.Equal(t, metrics.KindEdit, env.events.events[0].Kind)
}

func TestEditImageFailureRefundsEditCost(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(env *testEnv)
		wantKind Kind
	}{
		{
			name:     "resolve",
			setup:    func(env *testEnv) { env.resolver.failOn["img-1"] = imagegen.ErrSourceUnavailable },
			wantKind: KindSourceUnavailable,
		},
		{
			name: "invoke",
			setup: func(env *testEnv) {
				env.invoker.failAt = 1
				env.invoker.failErr = imagegen.ErrNoOutput
			},
			wantKind: KindGenerationFailed,
		},
		{
			name: "persist",
			setup: func(env *testEnv) {
				env.persister.failAt = 1
				env.persister.failErr = gallery.ErrMetadata
			},
			wantKind: KindMetadataError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupOrchestrator(t, 60)
			tt.setup(env)

			_, err := env.orch.EditImage(context.Background(), EditRequest{
				UserID: "user-1",
				Prompt: "remove the shadow",
				Source: imagegen.SourceItem{ID: "img-1", URL: "http://studio.test/x.png"},
			})
			assert.Equal(t, tt.wantKind, KindOf(err))
			assert.Contains(t, err.Error(), RefundNotice)
			assert.Equal(t, []int64{16}, env.counting.credits)
			assert.Equal(t, int64(60), env.balance(t))
		})
	}
}

func TestEditImageInsufficientBalance(t *testing.T) {
	env := setupOrchestrator(t, 15)

	_, err := env.orch.EditImage(context.Background(), EditRequest{
		UserID: "user-1",
		Prompt: "remove the shadow",
		Source: imagegen.SourceItem{ID: "img-1", URL: "http://studio.test/x.png"},
	})
	assert.Equal(t, KindReservationFailed, KindOf(err))
	assert.Empty(t, env.resolver.calls)
	assert.Equal(t, int64(15), env.balance(t))
}

func TestNewOrchestratorRequiresDependencies(t *testing.T) {
	full := Dependencies{
		Ledger:    &countingLedger{},
		Resolver:  &fakeResolver{},
		Invoker:   &fakeInvoker{},
		Persister: &fakePersister{},
	}

	_, err := NewOrchestrator(full, DefaultCostPolicy(), nil)
	require.NoError(t, err)

	for name, mutate := range map[string]func(d *Dependencies){
		"ledger":    func(d *Dependencies) { d.Ledger = nil },
		"resolver":  func(d *Dependencies) { d.Resolver = nil },
		"invoker":   func(d *Dependencies) { d.Invoker = nil },
		"persister": func(d *Dependencies) { d.Persister = nil },
	} {
		d := full
		mutate(&d)
		_, err := NewOrchestrator(d, DefaultCostPolicy(), nil)
		assert.Error(t, err, name)
	}
}
