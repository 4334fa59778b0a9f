// Package studio runs metered generation requests: it reserves the cost of
// a request from the user's ledger, generates and persists one artifact per
// source item in order, and refunds the whole reservation if any step fails.
package studio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"productstudio/db"
	"productstudio/gallery"
	"productstudio/imagegen"
	"productstudio/ledger"
	"productstudio/logging"
	"productstudio/metrics"
)

// Outcome recorded for requests that completed every item.
const OutcomeSuccess = "success"

// refundTimeout bounds the refund credit, which runs detached from the
// request context.
const refundTimeout = 10 * time.Second

// Ledger reserves and refunds tokens. *ledger.Ledger implements it.
type Ledger interface {
	Debit(ctx context.Context, userID string, amount int64, reason string) error
	Credit(ctx context.Context, userID string, amount int64, reason string) error
}

// Resolver turns a source item into image bytes. *imagegen.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, item imagegen.SourceItem) (imagegen.EncodedImage, error)
}

// Invoker runs one generation. A nil reference selects text-to-image.
// *imagegen.Generator implements it.
type Invoker interface {
	Invoke(ctx context.Context, prompt string, ref *imagegen.EncodedImage) (imagegen.EncodedImage, error)
}

// Persister stores a generated image. *gallery.Persister implements it.
type Persister interface {
	Persist(ctx context.Context, image imagegen.EncodedImage, prompt, ownerID string) (gallery.Artifact, error)
}

// EventRecorder stores the audit row of a finished request. *db.Repository implements it.
type EventRecorder interface {
	InsertGenerationEvent(ctx context.Context, e db.GenerationEvent) (int64, error)
}

// MetricsRecorder receives every finished request. *metrics.Store implements it.
type MetricsRecorder interface {
	RecordGeneration(record metrics.GenerationRecord)
	GenerationStarted()
	GenerationFinished()
}

// Gate admits new operations until shutdown starts. *shutdown.Manager implements it.
type Gate interface {
	Begin(name string) (func(), error)
}

// Dependencies are the collaborators of an Orchestrator. Ledger, Resolver,
// Invoker and Persister are required.
type Dependencies struct {
	Ledger    Ledger
	Resolver  Resolver
	Invoker   Invoker
	Persister Persister

	Events   EventRecorder
	Metrics  MetricsRecorder
	Gate     Gate
	Progress *ProgressTracker
}

// BatchRequest asks for one image per item. No items means text-to-image.
type BatchRequest struct {
	UserID string
	Prompt string
	Items  []imagegen.SourceItem
}

// BatchResult holds the artifacts of a successful batch, most recent first.
type BatchResult struct {
	BatchID   string             `json:"batch_id"`
	Cost      int64              `json:"cost"`
	Artifacts []gallery.Artifact `json:"artifacts"`
}

// EditRequest asks for one edited copy of Source.
type EditRequest struct {
	UserID string
	Prompt string
	Source imagegen.SourceItem
}

// EditResult holds the artifact of a successful edit.
type EditResult struct {
	BatchID  string           `json:"batch_id"`
	Cost     int64            `json:"cost"`
	Artifact gallery.Artifact `json:"artifact"`
}

// Orchestrator runs batches and edits.
//
// Thread Safety: Orchestrator is safe for concurrent use. Each user runs at
// most one request at a time; different users run in parallel.
type Orchestrator struct {
	deps   Dependencies
	costs  CostPolicy
	latch  *userLatch
	logger *logging.Logger
	model  string
	now    func() time.Time
	newID  func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithModelName sets the model name written to generation logs.
func WithModelName(name string) Option {
	return func(o *Orchestrator) { o.model = name }
}

// NewOrchestrator validates deps and creates an Orchestrator.
func NewOrchestrator(deps Dependencies, costs CostPolicy, logger *logging.Logger, opts ...Option) (*Orchestrator, error) {
	switch {
	case deps.Ledger == nil:
		return nil, errors.New("studio: ledger is required")
	case deps.Resolver == nil:
		return nil, errors.New("studio: resolver is required")
	case deps.Invoker == nil:
		return nil, errors.New("studio: invoker is required")
	case deps.Persister == nil:
		return nil, errors.New("studio: persister is required")
	}
	if deps.Progress == nil {
		deps.Progress = NewProgressTracker()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	o := &Orchestrator{
		deps:   deps,
		costs:  costs,
		latch:  newUserLatch(),
		logger: logger.Named("studio"),
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Progress returns the tracker shared with the progress endpoints.
func (o *Orchestrator) Progress() *ProgressTracker {
	return o.deps.Progress
}

// Costs returns the active price list.
func (o *Orchestrator) Costs() CostPolicy {
	return o.costs
}

// IsRunning reports whether userID has a request in flight.
func (o *Orchestrator) IsRunning(userID string) bool {
	return o.latch.isHeld(userID)
}

// run is the state of one metered request.
type run struct {
	id      string
	kind    string
	userID  string
	prompt  string
	items   int
	cost    int64
	started time.Time
	// completed counts persisted artifacts.
	completed int
}

// GenerateBatch reserves the cost of req, then resolves, generates and
// persists one artifact per item in order. The first failure stops the
// batch and refunds the full reservation. Artifacts persisted before the
// failure stay in the gallery.
//
// The request context is detached once the reservation succeeds, so a
// client that disconnects does not abort a paid batch.
func (o *Orchestrator) GenerateBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	kind := metrics.KindBatch
	if len(req.Items) == 0 {
		kind = metrics.KindText
	}
	r, release, err := o.admit(req.UserID, req.Prompt, kind, len(req.Items), o.costs.BatchCost(len(req.Items)))
	if err != nil {
		return BatchResult{}, err
	}
	defer release()

	if err := o.reserve(ctx, r); err != nil {
		return BatchResult{}, err
	}

	runCtx := context.WithoutCancel(ctx)
	progress := o.deps.Progress
	progress.Start(r.userID, r.id, Units(r.items))

	var artifacts []gallery.Artifact
	step := func(item *imagegen.SourceItem) *Error {
		var ref *imagegen.EncodedImage
		if item != nil {
			src, err := o.deps.Resolver.Resolve(runCtx, *item)
			if err != nil {
				return newError(KindSourceUnavailable, err, "could not load the image for %s", item.Name())
			}
			ref = &src
		}
		art, failure := o.generateAndPersist(runCtx, r, ref)
		if failure != nil {
			return failure
		}
		artifacts = append(artifacts, art)
		r.completed++
		progress.Advance(r.userID)
		return nil
	}

	var failure *Error
	if r.items == 0 {
		failure = step(nil)
	} else {
		for i := range req.Items {
			if failure = step(&req.Items[i]); failure != nil {
				break
			}
		}
	}

	if failure != nil {
		err := o.fail(ctx, r, failure)
		progress.Finish(r.userID, string(failure.Kind))
		return BatchResult{}, err
	}

	progress.Finish(r.userID, OutcomeSuccess)
	o.succeed(ctx, r)

	for i, j := 0, len(artifacts)-1; i < j; i, j = i+1, j-1 {
		artifacts[i], artifacts[j] = artifacts[j], artifacts[i]
	}
	return BatchResult{BatchID: r.id, Cost: r.cost, Artifacts: artifacts}, nil
}

// EditImage reserves the edit cost, fetches the source image and asks the
// model for an edited copy. Any failure refunds exactly the edit cost.
func (o *Orchestrator) EditImage(ctx context.Context, req EditRequest) (EditResult, error) {
	r, release, err := o.admit(req.UserID, req.Prompt, metrics.KindEdit, 1, o.costs.EditCost())
	if err != nil {
		return EditResult{}, err
	}
	defer release()

	if err := o.reserve(ctx, r); err != nil {
		return EditResult{}, err
	}
	runCtx := context.WithoutCancel(ctx)

	src, err := o.deps.Resolver.Resolve(runCtx, req.Source)
	if err != nil {
		return EditResult{}, o.fail(ctx, r, newError(KindSourceUnavailable, err, "could not load the original image for editing"))
	}
	art, failure := o.generateAndPersist(runCtx, r, &src)
	if failure != nil {
		return EditResult{}, o.fail(ctx, r, failure)
	}
	r.completed = 1
	o.succeed(ctx, r)
	return EditResult{BatchID: r.id, Cost: r.cost, Artifact: art}, nil
}

// admit checks the preconditions that must hold before any tokens move and
// takes the user's latch. The returned release must always be called.
func (o *Orchestrator) admit(userID, prompt, kind string, items int, cost int64) (*run, func(), error) {
	userID = strings.TrimSpace(userID)
	prompt = strings.TrimSpace(prompt)
	if userID == "" {
		return nil, nil, newError(KindNoIdentity, ErrNoIdentity, "sign in to generate images")
	}
	if prompt == "" {
		return nil, nil, newError(KindInvalidRequest, ErrEmptyPrompt, "a prompt is required")
	}

	r := &run{
		id:      o.newID(),
		kind:    kind,
		userID:  userID,
		prompt:  prompt,
		items:   items,
		cost:    cost,
		started: o.now(),
	}

	end := func() {}
	if o.deps.Gate != nil {
		var err error
		end, err = o.deps.Gate.Begin(kind + " " + r.id)
		if err != nil {
			return nil, nil, newError(KindUnavailable, fmt.Errorf("%w: %w", ErrShuttingDown, err), "the service is restarting, try again shortly")
		}
	}
	if !o.latch.tryAcquire(userID) {
		end()
		return nil, nil, newError(KindBusy, ErrBatchInProgress, "a generation is already running, wait for it to finish")
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.GenerationStarted()
	}

	release := func() {
		if o.deps.Metrics != nil {
			o.deps.Metrics.GenerationFinished()
		}
		o.latch.release(userID)
		end()
	}
	return r, release, nil
}

// reserve debits the full cost. Nothing has been debited when it fails.
func (o *Orchestrator) reserve(ctx context.Context, r *run) error {
	err := o.deps.Ledger.Debit(ctx, r.userID, r.cost, "reserve "+r.kind+" "+r.id)
	if err == nil {
		return nil
	}

	var failure *Error
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		failure = newError(KindReservationFailed, err, "insufficient tokens: %d required", r.cost)
	} else {
		failure = newError(KindReservationFailed, err, "could not reserve tokens, try again")
	}
	o.logger.Warn("reservation failed",
		logging.UserField(r.userID),
		zap.String("batch_id", r.id),
		zap.Int64("cost", r.cost),
		zap.Error(err),
	)
	o.record(ctx, r, string(failure.Kind), false, failure.Message, 0)
	return failure
}

// generateAndPersist runs one generation and stores its output.
func (o *Orchestrator) generateAndPersist(ctx context.Context, r *run, ref *imagegen.EncodedImage) (gallery.Artifact, *Error) {
	out, err := o.deps.Invoker.Invoke(ctx, r.prompt, ref)
	if err != nil {
		return gallery.Artifact{}, classifyGeneration(err)
	}
	art, err := o.deps.Persister.Persist(ctx, out, r.prompt, r.userID)
	if err != nil {
		if errors.Is(err, gallery.ErrMetadata) {
			return gallery.Artifact{}, newError(KindMetadataError, err, "failed to save the generated image")
		}
		return gallery.Artifact{}, newError(KindStorageError, err, "failed to store the generated image")
	}
	return art, nil
}

func classifyGeneration(err error) *Error {
	switch {
	case errors.Is(err, imagegen.ErrContentRejected):
		return newError(KindContentRejected, err, "the request was blocked by the content safety policy, try a different prompt")
	case errors.Is(err, imagegen.ErrNoOutput):
		return newError(KindGenerationFailed, err, "the model did not return an image")
	default:
		return newError(KindGenerationFailed, err, "image generation failed")
	}
}

// fail refunds the full reservation exactly once and records the outcome.
func (o *Orchestrator) fail(ctx context.Context, r *run, failure *Error) error {
	failure.Completed = r.completed

	refundCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	if err := o.deps.Ledger.Credit(refundCtx, r.userID, r.cost, "refund "+r.kind+" "+r.id); err != nil {
		failure.RefundFailed = true
		o.logger.Error("refund failed",
			logging.UserField(r.userID),
			zap.String("batch_id", r.id),
			zap.Int64("cost", r.cost),
			zap.Error(err),
		)
	} else {
		failure.Refunded = true
	}

	o.logger.Warn("generation aborted",
		logging.UserField(r.userID),
		zap.String("batch_id", r.id),
		logging.GenerationFields(o.fields(r, string(failure.Kind), failure.Refunded)),
		zap.Error(failure.Err),
	)
	o.record(ctx, r, string(failure.Kind), failure.Refunded, failure.Error(), r.cost)
	return failure
}

func (o *Orchestrator) succeed(ctx context.Context, r *run) {
	o.logger.Info("generation completed",
		logging.UserField(r.userID),
		zap.String("batch_id", r.id),
		logging.GenerationFields(o.fields(r, OutcomeSuccess, false)),
	)
	o.record(ctx, r, OutcomeSuccess, false, "", r.cost)
}

func (o *Orchestrator) fields(r *run, outcome string, refunded bool) logging.GenerationMetrics {
	return logging.GenerationMetrics{
		Kind:      r.kind,
		Model:     o.model,
		Items:     Units(r.items),
		Completed: r.completed,
		Cost:      r.cost,
		Refunded:  refunded,
		Outcome:   outcome,
		Duration:  o.now().Sub(r.started),
	}
}

// record writes the audit event and the metrics entry. charged is the
// number of tokens that moved; it is zero when the reservation failed.
func (o *Orchestrator) record(ctx context.Context, r *run, outcome string, refunded bool, message string, charged int64) {
	end := o.now()
	duration := end.Sub(r.started)

	if o.deps.Events != nil {
		event := db.GenerationEvent{
			BatchID:      r.id,
			OwnerID:      r.userID,
			Kind:         r.kind,
			Items:        Units(r.items),
			Completed:    r.completed,
			Cost:         r.cost,
			Refunded:     refunded,
			Outcome:      outcome,
			ErrorMessage: message,
			DurationMS:   duration.Milliseconds(),
		}
		if _, err := o.deps.Events.InsertGenerationEvent(context.WithoutCancel(ctx), event); err != nil {
			o.logger.Warn("failed to record generation event", zap.String("batch_id", r.id), zap.Error(err))
		}
	}

	if o.deps.Metrics != nil {
		status := metrics.StatusSuccess
		if outcome != OutcomeSuccess {
			status = metrics.StatusError
		}
		o.deps.Metrics.RecordGeneration(metrics.GenerationRecord{
			ID:        r.id,
			Kind:      r.kind,
			OwnerID:   r.userID,
			Status:    status,
			Outcome:   outcome,
			Items:     Units(r.items),
			Completed: r.completed,
			Cost:      charged,
			Refunded:  refunded,
			StartTime: r.started,
			EndTime:   end,
			Duration:  duration,
			ErrorMsg:  message,
		})
	}
}
