// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package job turns a batch submission into independently progressing task
// records and drives each one to a terminal state. Tasks in a batch never
// affect each other: one bad file fails alone. See docs/ARCHITECTURE
// § Orchestration.
package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/docmark/internal/broadcast"
	"github.com/pdiddy/docmark/internal/engine"
	"github.com/pdiddy/docmark/internal/store"
	"github.com/pdiddy/docmark/pkg/types"
)

var (
	// ErrEmptyBatch is returned by Submit for a batch with no inputs.
	// This is the only structural failure Submit reports through its own
	// error channel; per-file problems surface on the task records.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrClosed is returned once the orchestrator has been shut down.
	ErrClosed = errors.New("orchestrator closed")

	// ErrNotCompleted is returned by FetchOutput for tasks without a
	// completed artifact.
	ErrNotCompleted = errors.New("task not completed")
)

// cancelledDetail is the error detail recorded when a task is cancelled.
const cancelledDetail = "cancelled"

// Engine is the conversion capability the orchestrator dispatches to.
// Satisfied by *engine.Adapter.
type Engine interface {
	Convert(ctx context.Context, job engine.Job) (*engine.Outcome, error)
	HasUploadPhase() bool
}

// History receives terminal task records for durable storage. Record
// failures are logged and dropped; they never affect the task outcome.
type History interface {
	Record(rec types.TaskRecord) error
}

// Input is one file reference in a batch submission.
type Input struct {
	// Path locates the source document.
	Path string

	// DisplayName overrides the user-facing name. Defaults to the path's
	// base name.
	DisplayName string
}

// Orchestrator owns the task records: it is the only component that
// mutates them. Conversion work runs on a bounded worker pool; every
// record mutation is published to the broadcaster as a snapshot.
type Orchestrator struct {
	cfg     types.OrchestratorConfig
	engine  Engine
	records *store.Store
	bus     *broadcast.Bus
	history History
	logger  *slog.Logger

	slots chan struct{}
	wg    sync.WaitGroup

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex // guards cancels and closed
	cancels map[string]context.CancelFunc
	closed  bool

	recMu sync.Mutex // serializes record read-modify-write-publish
}

// New creates an orchestrator. history may be nil.
func New(cfg types.OrchestratorConfig, eng Engine, records *store.Store, bus *broadcast.Bus, history History, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.UploadWeight < 0 || cfg.ConvertWeight <= 0 || cfg.UploadWeight+cfg.ConvertWeight != 100 {
		cfg.UploadWeight = 30
		cfg.ConvertWeight = 70
	}

	baseCtx, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:     cfg,
		engine:  eng,
		records: records,
		bus:     bus,
		history: history,
		logger:  logger.With("component", "orchestrator"),
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		baseCtx: baseCtx,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}
}

// OutputName replaces a display name's final extension with .md.
// "a.b.docx" becomes "a.b.md".
func OutputName(displayName string) string {
	return strings.TrimSuffix(displayName, filepath.Ext(displayName)) + ".md"
}

// Submit creates one task record per input and dispatches conversion work
// asynchronously, returning the initial records immediately. Inputs that
// fail validation (unsupported format, unreadable file) are failed on the
// spot without an engine invocation; the rest of the batch is unaffected.
// Submit only errors for structural problems: an empty batch or a closed
// orchestrator.
func (o *Orchestrator) Submit(inputs []Input) ([]types.TaskRecord, error) {
	if len(inputs) == 0 {
		return nil, ErrEmptyBatch
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	o.mu.Unlock()

	out := make([]types.TaskRecord, 0, len(inputs))
	for _, input := range inputs {
		out = append(out, o.submitOne(input))
	}
	return out, nil
}

func (o *Orchestrator) submitOne(input Input) types.TaskRecord {
	name := input.DisplayName
	if name == "" {
		name = filepath.Base(input.Path)
	}
	now := time.Now().UTC()
	rec := types.TaskRecord{
		ID:          uuid.NewString(),
		InputRef:    input.Path,
		DisplayName: name,
		OutputName:  OutputName(name),
		Status:      types.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var failDetail string
	if !engine.SupportedPath(name) {
		failDetail = fmt.Sprintf("%v: %s", engine.ErrUnsupportedFormat, filepath.Ext(name))
	} else if info, err := os.Stat(input.Path); err != nil {
		failDetail = fmt.Sprintf("input not readable: %v", err)
	} else {
		rec.SizeBytes = info.Size()
	}

	o.recMu.Lock()
	o.records.Put(rec)
	o.bus.Publish(rec)
	o.recMu.Unlock()

	if failDetail != "" {
		return o.finishFailed(rec.ID, failDetail)
	}

	taskCtx, cancel := context.WithCancel(o.baseCtx)
	o.mu.Lock()
	o.cancels[rec.ID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go o.run(taskCtx, rec.ID)

	o.logger.Info("task submitted",
		"task_id", rec.ID, "file", name, "size_bytes", rec.SizeBytes)
	return rec
}

// run drives one task to a terminal state. It is the only goroutine that
// mutates this task's record.
func (o *Orchestrator) run(ctx context.Context, id string) {
	defer o.wg.Done()
	defer o.dropCancel(id)

	// Accepted for conversion, waiting for a worker slot. Engines with an
	// upload phase skip the queued mark: their transfer begins as soon as a
	// slot frees, and queued outranks uploading/uploaded in the state
	// machine, so an eager mark would suppress the upload states.
	if !o.engine.HasUploadPhase() {
		o.transition(id, types.StatusQueued, -1)
	}

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		o.finishFailed(id, cancelledDetail)
		return
	}
	defer func() { <-o.slots }()

	rec, err := o.records.Get(id)
	if err != nil {
		return
	}
	outputPath := filepath.Join(o.cfg.OutputDir, id, rec.OutputName)
	job := engine.Job{
		TaskID:      id,
		InputPath:   rec.InputRef,
		DisplayName: rec.DisplayName,
		OutputPath:  outputPath,
		Progress:    o.progressFunc(id),
	}

	attempts := o.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		o.apply(id, func(r *types.TaskRecord) { r.Attempts = attempt })
		if !o.engine.HasUploadPhase() {
			o.transition(id, types.StatusProcessing, -1)
		}

		outcome, err := o.engine.Convert(ctx, job)
		if err == nil {
			o.finishCompleted(id, outcome)
			return
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			o.finishFailed(id, cancelledDetail)
			return
		}
		if attempt < attempts && engine.Retryable(err) {
			o.logger.Warn("conversion failed, retrying",
				"task_id", id, "attempt", attempt, "error", err)
			continue
		}
		break
	}
	o.finishFailed(id, lastErr.Error())
}

// progressFunc maps engine phase reports onto the unified 0-100 progress
// scale and the corresponding lifecycle status.
func (o *Orchestrator) progressFunc(id string) engine.ProgressFunc {
	uploadW, convertW := 0, 100
	if o.engine.HasUploadPhase() {
		uploadW, convertW = o.cfg.UploadWeight, o.cfg.ConvertWeight
	}
	return func(phase engine.Phase, frac float64) {
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		var status types.Status
		var percent int
		switch phase {
		case engine.PhaseUpload:
			status = types.StatusUploading
			if frac >= 1 {
				status = types.StatusUploaded
			}
			percent = int(float64(uploadW) * frac)
		case engine.PhaseConvert:
			status = types.StatusProcessing
			percent = uploadW + int(float64(convertW)*frac)
		default:
			return
		}
		o.transition(id, status, percent)
	}
}

// apply performs a read-modify-write-publish cycle on one record.
// Terminal records are never touched again. Returns the updated snapshot.
func (o *Orchestrator) apply(id string, mutate func(*types.TaskRecord)) types.TaskRecord {
	o.recMu.Lock()
	defer o.recMu.Unlock()

	rec, err := o.records.Get(id)
	if err != nil || rec.Status.IsTerminal() {
		return rec
	}
	mutate(&rec)
	rec.UpdatedAt = time.Now().UTC()
	o.records.Put(rec)
	o.bus.Publish(rec)
	return rec
}

// transition moves a record forward in the state machine, ignoring moves
// the machine rejects (a late upload tick after processing began, for
// example). percent < 0 leaves progress unchanged; progress never
// decreases.
func (o *Orchestrator) transition(id string, status types.Status, percent int) {
	o.apply(id, func(r *types.TaskRecord) {
		if r.Status != status && r.Status.CanTransition(status) {
			r.Status = status
		}
		if percent > r.ProgressPercent {
			r.ProgressPercent = percent
		}
	})
}

func (o *Orchestrator) finishCompleted(id string, outcome *engine.Outcome) {
	// Completion is only legal from processing; backends that report no
	// convert tick still pass through it.
	o.transition(id, types.StatusProcessing, -1)
	rec := o.apply(id, func(r *types.TaskRecord) {
		r.Status = types.StatusCompleted
		r.ProgressPercent = 100
		r.OutputRef = outcome.OutputPath
		meta := outcome.Metadata
		r.Metadata = &meta
		r.ErrorDetail = ""
	})
	o.logger.Info("task completed",
		"task_id", id, "output", outcome.OutputPath, "words", outcome.Metadata.WordCount)
	o.record(rec)
}

func (o *Orchestrator) finishFailed(id, detail string) types.TaskRecord {
	rec := o.apply(id, func(r *types.TaskRecord) {
		r.Status = types.StatusFailed
		r.ErrorDetail = detail
		r.OutputRef = ""
		r.Metadata = nil
	})
	o.logger.Warn("task failed", "task_id", id, "error", detail)
	o.record(rec)
	return rec
}

// record hands a terminal snapshot to the history store. History errors
// are logged and dropped.
func (o *Orchestrator) record(rec types.TaskRecord) {
	if o.history == nil || rec.ID == "" {
		return
	}
	if err := o.history.Record(rec); err != nil {
		o.logger.Warn("recording task history failed", "task_id", rec.ID, "error", err)
	}
}

func (o *Orchestrator) dropCancel(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[id]; ok {
		cancel()
		delete(o.cancels, id)
	}
}

// Cancel aborts one in-flight task. The task fails with a "cancelled"
// detail; sibling tasks are unaffected. Cancelling an unknown or already
// terminal task returns store.ErrNotFound.
func (o *Orchestrator) Cancel(id string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[id]
	o.mu.Unlock()
	if !ok {
		return store.ErrNotFound
	}
	cancel()
	return nil
}

// FetchOutput returns the Markdown artifact bytes for a completed task.
func (o *Orchestrator) FetchOutput(id string) ([]byte, error) {
	rec, err := o.records.Get(id)
	if err != nil {
		return nil, err
	}
	if rec.Status != types.StatusCompleted {
		return nil, fmt.Errorf("%w: task %s is %s", ErrNotCompleted, id, rec.Status)
	}
	data, err := os.ReadFile(rec.OutputRef)
	if err != nil {
		return nil, fmt.Errorf("reading artifact for %s: %w", id, err)
	}
	return data, nil
}

// Forget evicts a task's record and retained snapshot. Intended for
// terminal tasks; in-flight tasks should be cancelled first.
func (o *Orchestrator) Forget(id string) {
	o.records.Forget(id)
	o.bus.Forget(id)
}

// Wait blocks until every dispatched task has reached a terminal state.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Close cancels all in-flight tasks and waits for workers to finish.
// Further Submit calls return ErrClosed.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.stop()
	o.wg.Wait()
}
