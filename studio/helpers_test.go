package studio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"productstudio/db"
	"productstudio/gallery"
	"productstudio/imagegen"
	"productstudio/ledger"
	"productstudio/metrics"
)

// countingLedger wraps a real ledger and counts calls.
type countingLedger struct {
	inner     Ledger
	mu        sync.Mutex
	debits    []int64
	credits   []int64
	creditErr error
}

func (l *countingLedger) Debit(ctx context.Context, userID string, amount int64, reason string) error {
	l.mu.Lock()
	l.debits = append(l.debits, amount)
	l.mu.Unlock()
	return l.inner.Debit(ctx, userID, amount, reason)
}

func (l *countingLedger) Credit(ctx context.Context, userID string, amount int64, reason string) error {
	l.mu.Lock()
	l.credits = append(l.credits, amount)
	err := l.creditErr
	l.mu.Unlock()
	if err != nil {
		return err
	}
	return l.inner.Credit(ctx, userID, amount, reason)
}

type fakeResolver struct {
	mu        sync.Mutex
	calls     []string
	failOn    map[string]error
	onResolve func()
}

func (r *fakeResolver) Resolve(ctx context.Context, item imagegen.SourceItem) (imagegen.EncodedImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, item.ID)
	if r.onResolve != nil {
		r.onResolve()
	}
	if err, ok := r.failOn[item.ID]; ok {
		return imagegen.EncodedImage{}, err
	}
	return imagegen.NewEncodedImage([]byte("src-"+item.ID), "image/png"), nil
}

type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	refs    []*imagegen.EncodedImage
	prompts []string
	// failAt is the 1-based call that fails with failErr.
	failAt  int
	failErr error
	// block, when set, is waited on before every call returns.
	block  chan struct{}
	ctxErr []error
}

func (g *fakeInvoker) Invoke(ctx context.Context, prompt string, ref *imagegen.EncodedImage) (imagegen.EncodedImage, error) {
	if g.block != nil {
		<-g.block
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.refs = append(g.refs, ref)
	g.prompts = append(g.prompts, prompt)
	g.ctxErr = append(g.ctxErr, ctx.Err())
	if g.failAt == g.calls {
		return imagegen.EncodedImage{}, g.failErr
	}
	return imagegen.NewEncodedImage([]byte(fmt.Sprintf("out-%d", g.calls)), "image/png"), nil
}

func (g *fakeInvoker) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type fakePersister struct {
	mu        sync.Mutex
	persisted []gallery.Artifact
	failAt    int
	failErr   error
	calls     int
}

func (p *fakePersister) Persist(ctx context.Context, image imagegen.EncodedImage, prompt, ownerID string) (gallery.Artifact, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failAt == p.calls {
		return gallery.Artifact{}, p.failErr
	}
	art := gallery.Artifact{
		ID:        fmt.Sprintf("art-%d", p.calls),
		OwnerID:   ownerID,
		Prompt:    prompt,
		PublicURL: "http://studio.test/files/generated_images/" + ownerID + fmt.Sprintf("/art-%d.png", p.calls),
		MIMEType:  image.MIMEType,
	}
	p.persisted = append(p.persisted, art)
	return art, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events []db.GenerationEvent
}

func (e *fakeEvents) InsertGenerationEvent(ctx context.Context, ev db.GenerationEvent) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return int64(len(e.events)), nil
}

type fakeGate struct{ closed bool }

func (g *fakeGate) Begin(name string) (func(), error) {
	if g.closed {
		return nil, errors.New("tracker closed")
	}
	return func() {}, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	updates []Progress
}

func (o *recordingObserver) ProgressChanged(userID string, p Progress) {
	o.mu.Lock()
	o.updates = append(o.updates, p)
	o.mu.Unlock()
}

type testEnv struct {
	orch      *Orchestrator
	ledger    *ledger.Ledger
	counting  *countingLedger
	resolver  *fakeResolver
	invoker   *fakeInvoker
	persister *fakePersister
	events    *fakeEvents
	metrics   *metrics.Store
	gate      *fakeGate
}

// setupOrchestrator wires fakes around a real sqlite-backed ledger. user-1
// starts with balance tokens.
func setupOrchestrator(t *testing.T, balance int64) *testEnv {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "studio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	repo := db.NewRepository(database, nil)
	_, _, err = repo.EnsureProfile(context.Background(), "user-1", "one@example.com", balance)
	require.NoError(t, err)

	env := &testEnv{
		ledger:    ledger.New(repo, balance, nil),
		resolver:  &fakeResolver{failOn: map[string]error{}},
		invoker:   &fakeInvoker{},
		persister: &fakePersister{},
		events:    &fakeEvents{},
		metrics:   metrics.NewStore(metrics.DefaultStoreConfig(), time.Now()),
		gate:      &fakeGate{},
	}
	env.counting = &countingLedger{inner: env.ledger}

	env.orch, err = NewOrchestrator(Dependencies{
		Ledger:    env.counting,
		Resolver:  env.resolver,
		Invoker:   env.invoker,
		Persister: env.persister,
		Events:    env.events,
		Metrics:   env.metrics,
		Gate:      env.gate,
	}, DefaultCostPolicy(), nil)
	require.NoError(t, err)
	return env
}

func (e *testEnv) balance(t *testing.T) int64 {
	t.Helper()
	b, err := e.ledger.Balance(context.Background(), "user-1")
	require.NoError(t, err)
	return b
}

func items(ids ...string) []imagegen.SourceItem {
	out := make([]imagegen.SourceItem, len(ids))
	for i, id := range ids {
		out[i] = imagegen.SourceItem{ID: id, Label: "product " + id, URL: "http://studio.test/files/products/user-1/" + id + ".png"}
	}
	return out
}
