package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
)

// EnrichmentReport counts what a pass did with each streamed document.
type EnrichmentReport struct {
	Attempts         int
	Seen             int
	BeforeCheckpoint int
	Complete         int
	NoText           int
	FetchFailed      int
	Queued           int
	Written          int
}

func (r *EnrichmentReport) add(o EnrichmentReport) {
	r.Seen += o.Seen
	r.BeforeCheckpoint += o.BeforeCheckpoint
	r.Complete += o.Complete
	r.NoText += o.NoText
	r.FetchFailed += o.FetchFailed
	r.Queued += o.Queued
	r.Written += o.Written
}

// StreamCursorDeps wires StreamCursor.
type StreamCursorDeps struct {
	Store      ports.DocumentStore
	Checkpoint ports.Checkpoint
	Fetcher    ports.ContentFetcher
	Enricher   ports.Enricher
	Logger     *slog.Logger
}

// StreamCursor walks the document collection once, resuming past the checkpoint, and hands
// every document with missing generated fields to a BatchWriter.
type StreamCursor struct {
	store      ports.DocumentStore
	checkpoint ports.Checkpoint
	fetcher    ports.ContentFetcher
	enricher   ports.Enricher
	logger     *slog.Logger
}

// NewStreamCursor constructs a single-use cursor.
func NewStreamCursor(deps StreamCursorDeps) *StreamCursor {
	return &StreamCursor{
		store:      deps.Store,
		checkpoint: deps.Checkpoint,
		fetcher:    deps.Fetcher,
		enricher:   deps.Enricher,
		logger:     logging.OrDiscard(deps.Logger),
	}
}

// Run streams the collection. Documents up to and including the checkpointed one are skipped
// without being fetched. Store faults are returned unchanged so a RetryShell can classify them.
func (c *StreamCursor) Run(ctx context.Context, writer *BatchWriter) (report EnrichmentReport, err error) {
	defer func() { report.Written = writer.Written() }()

	last, resuming, err := c.checkpoint.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}
	if resuming {
		c.logger.Info("resuming after checkpoint", "last_processed", last)
	} else {
		c.logger.Info("no checkpoint, starting from the beginning")
	}

	for doc, streamErr := range c.store.Stream(ctx) {
		if streamErr != nil {
			return report, fmt.Errorf("stream documents: %w", streamErr)
		}
		report.Seen++

		if resuming {
			report.BeforeCheckpoint++
			if doc.ID == last {
				resuming = false
				c.logger.Info("checkpoint reached", "id", doc.ID, "skipped", report.BeforeCheckpoint)
			}
			continue
		}

		if err := c.process(ctx, doc, writer, &report); err != nil {
			return report, err
		}
	}

	if err := writer.Flush(ctx); err != nil {
		return report, fmt.Errorf("final flush: %w", err)
	}

	if resuming {
		c.logger.Warn("checkpoint document not found in collection; nothing was processed", "last_processed", last)
	}
	return report, nil
}

func (c *StreamCursor) process(ctx context.Context, doc domain.Document, writer *BatchWriter, report *EnrichmentReport) error {
	missing := doc.Missing()
	if len(missing) == 0 {
		report.Complete++
		c.logger.Debug("document already has all fields", "id", doc.ID)
		return nil
	}

	textURL := doc.TextURL()
	if textURL == "" {
		report.NoText++
		c.logger.Warn("no text url on document", "id", doc.ID)
		return nil
	}

	raw, err := c.fetcher.Fetch(ctx, textURL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		report.FetchFailed++
		c.logger.Warn("failed to fetch text, leaving document for a later pass", "id", doc.ID, "url", textURL, "error", err)
		return nil
	}

	fields, err := c.generate(ctx, domain.CleanText(string(raw)), missing)
	if err != nil {
		return fmt.Errorf("enrich document %s: %w", doc.ID, &generationError{err: err})
	}

	if err := writer.Add(ctx, doc.ID, fields); err != nil {
		return err
	}
	report.Queued++
	c.logger.Info("document queued for update", "id", doc.ID, "missing", len(missing))
	return nil
}

// generate calls the enricher once per missing field and never touches present ones.
func (c *StreamCursor) generate(ctx context.Context, text string, missing []domain.Field) (map[string]any, error) {
	fields := make(map[string]any, len(missing))
	for _, field := range missing {
		var (
			value any
			err   error
		)
		switch field {
		case domain.FieldDescription:
			value, err = c.enricher.Describe(ctx, text)
		case domain.FieldPositives:
			value, err = c.enricher.Positives(ctx, text)
		case domain.FieldNegatives:
			value, err = c.enricher.Negatives(ctx, text)
		case domain.FieldDate:
			value, err = c.enricher.ExtractDate(ctx, text)
		default:
			err = fmt.Errorf("unknown field %q", field)
		}
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", field, err)
		}
		fields[string(field)] = value
	}
	return fields, nil
}

// generationError marks a failure of the enrichment capability rather than of the store.
type generationError struct {
	err error
}

func (e *generationError) Error() string { return e.err.Error() }

func (e *generationError) Unwrap() error { return e.err }

// IsStoreFault reports whether err is a transient document store or checkpoint fault. Transient
// enricher failures do not qualify: they end the pass and the next run resumes at the checkpoint.
func IsStoreFault(err error) bool {
	var gen *generationError
	return IsTransient(err) && !errors.As(err, &gen)
}

// EnrichmentPassDeps wires the enrichment use case.
type EnrichmentPassDeps struct {
	Store      ports.DocumentStore
	Checkpoint ports.Checkpoint
	Fetcher    ports.ContentFetcher
	Enricher   ports.Enricher
	BatchSize  int
	Delay      DelayRange
	Retry      RetryPolicy
	Sleep      Sleeper
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// EnrichmentPass runs StreamCursor+BatchWriter inside a RetryShell that restarts the pass on
// transient store faults only.
type EnrichmentPass struct {
	deps   EnrichmentPassDeps
	shell  *RetryShell
	logger *slog.Logger
}

// NewEnrichmentPass constructs the per-field enrichment use case.
func NewEnrichmentPass(deps EnrichmentPassDeps) *EnrichmentPass {
	logger := logging.OrDiscard(deps.Logger)
	if deps.Retry.Delay == 0 {
		deps.Retry.Delay = DefaultRetryDelay
	}
	if deps.Retry.Retryable == nil {
		deps.Retry.Retryable = IsStoreFault
	}
	return &EnrichmentPass{
		deps:   deps,
		shell:  NewRetryShell("enrich", deps.Retry, deps.Sleep, logger, deps.Metrics),
		logger: logger,
	}
}

// Run completes one full pass over the collection. Items buffered but not yet flushed when a
// transient fault hits are dropped; the next attempt reaches them again because the checkpoint
// has not moved past them.
func (p *EnrichmentPass) Run(ctx context.Context) (report EnrichmentReport, err error) {
	started := time.Now()
	defer func() { p.deps.Metrics.ObservePass("enrich", started, err) }()

	if p.deps.Store == nil || p.deps.Checkpoint == nil || p.deps.Fetcher == nil || p.deps.Enricher == nil {
		return report, errors.New("enrichment pass is not fully configured")
	}

	err = p.shell.Run(ctx, func(ctx context.Context) error {
		report.Attempts++
		writer := NewBatchWriter(BatchWriterDeps{
			Store:      p.deps.Store,
			Checkpoint: p.deps.Checkpoint,
			Size:       p.deps.BatchSize,
			Delay:      p.deps.Delay,
			Sleep:      p.deps.Sleep,
			Logger:     p.logger,
			Metrics:    p.deps.Metrics,
		})
		cursor := NewStreamCursor(StreamCursorDeps{
			Store:      p.deps.Store,
			Checkpoint: p.deps.Checkpoint,
			Fetcher:    p.deps.Fetcher,
			Enricher:   p.deps.Enricher,
			Logger:     p.logger,
		})

		attempt, runErr := cursor.Run(ctx, writer)
		report.add(attempt)
		if dropped := writer.Pending(); runErr != nil && dropped > 0 {
			p.logger.Warn("dropping unflushed documents", "count", dropped)
		}
		return runErr
	})
	if err != nil {
		return report, err
	}

	p.logger.Info("enrichment pass done",
		"attempts", report.Attempts, "written", report.Written, "complete", report.Complete,
		"no_text", report.NoText, "fetch_failed", report.FetchFailed)
	return report, nil
}
