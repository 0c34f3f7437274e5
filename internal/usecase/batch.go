package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
)

// DefaultBatchSize is the number of enriched documents written per flush.
const DefaultBatchSize = 10

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// DelayRange is a closed interval a pause is drawn from uniformly.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniformly distributed duration in [Min, Max].
func (r DelayRange) Pick() time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

// BatchWriterDeps wires BatchWriter.
type BatchWriterDeps struct {
	Store      ports.DocumentStore
	Checkpoint ports.Checkpoint
	Size       int
	Delay      DelayRange
	Sleep      Sleeper
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

type pendingUpdate struct {
	id     string
	fields map[string]any
}

// BatchWriter buffers enriched documents and writes them back in groups, moving the checkpoint
// forward one document at a time as each upsert succeeds.
type BatchWriter struct {
	store      ports.DocumentStore
	checkpoint ports.Checkpoint
	size       int
	delay      DelayRange
	sleep      Sleeper
	logger     *slog.Logger
	metrics    *metrics.Recorder

	pending []pendingUpdate
	written int
}

// NewBatchWriter constructs a writer with an empty buffer.
func NewBatchWriter(deps BatchWriterDeps) *BatchWriter {
	size := deps.Size
	if size < 1 {
		size = DefaultBatchSize
	}
	sleep := deps.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	return &BatchWriter{
		store:      deps.Store,
		checkpoint: deps.Checkpoint,
		size:       size,
		delay:      deps.Delay,
		sleep:      sleep,
		logger:     logging.OrDiscard(deps.Logger),
		metrics:    deps.Metrics,
	}
}

// Add queues the changed fields of a document. When the buffer reaches the batch size it is
// flushed and the writer pauses for a random delay before returning.
func (w *BatchWriter) Add(ctx context.Context, id string, fields map[string]any) error {
	if id == "" {
		return errors.New("batch writer: empty document id")
	}
	w.pending = append(w.pending, pendingUpdate{id: id, fields: fields})
	if len(w.pending) < w.size {
		return nil
	}

	if err := w.Flush(ctx); err != nil {
		return err
	}

	pause := w.delay.Pick()
	w.logger.Debug("pausing between batches", "delay", pause)
	return w.sleep(ctx, pause)
}

// Flush writes every buffered document in the order it was added. On failure the failed
// document and everything after it stay buffered and the checkpoint stays on the last success.
func (w *BatchWriter) Flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	for len(w.pending) > 0 {
		next := w.pending[0]
		if err := w.store.Upsert(ctx, next.id, next.fields); err != nil {
			return fmt.Errorf("upsert document %s: %w", next.id, err)
		}
		if err := w.checkpoint.Save(ctx, next.id); err != nil {
			return fmt.Errorf("save checkpoint %s: %w", next.id, err)
		}
		w.pending = w.pending[1:]
		w.written++
		w.metrics.DocumentEnriched()
		w.logger.Info("document updated", "id", next.id, "fields", fieldNames(next.fields))
	}

	w.metrics.BatchFlushed()
	return nil
}

// Pending returns the number of buffered, unwritten documents.
func (w *BatchWriter) Pending() int {
	return len(w.pending)
}

// Written returns the number of documents upserted and checkpointed so far.
func (w *BatchWriter) Written() int {
	return w.written
}

func fieldNames(fields map[string]any) []string {
	names := make([]string, 0, len(fields))
	for _, f := range domain.RequiredFields {
		if _, ok := fields[string(f)]; ok {
			names = append(names, string(f))
		}
	}
	return names
}
