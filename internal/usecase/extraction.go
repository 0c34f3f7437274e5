package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
)

// DefaultExtractionWorkers bounds concurrent fetch+OCR jobs when no size is configured.
const DefaultExtractionWorkers = 6

// ExtractionResult is the outcome of a single bill. Bill.Text is empty when Err is set.
type ExtractionResult struct {
	Bill      domain.Bill
	Err       error
	Attempted bool
}

// ProgressFunc receives one call per finished item; calls are serialized.
type ProgressFunc func(done, total int, result ExtractionResult)

// ExtractorDeps wires the capabilities used by BoundedExtractor.
type ExtractorDeps struct {
	Fetcher   ports.ContentFetcher
	Extractor ports.TextExtractor
	Workers   int
	Progress  ProgressFunc
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// BoundedExtractor runs fetch+extract over a fixed-size worker pool.
type BoundedExtractor struct {
	fetcher   ports.ContentFetcher
	extractor ports.TextExtractor
	workers   int
	progress  ProgressFunc
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// NewBoundedExtractor constructs the worker pool component.
func NewBoundedExtractor(deps ExtractorDeps) *BoundedExtractor {
	workers := deps.Workers
	if workers < 1 {
		workers = DefaultExtractionWorkers
	}
	return &BoundedExtractor{
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		workers:   workers,
		progress:  deps.Progress,
		logger:    logging.OrDiscard(deps.Logger),
		metrics:   deps.Metrics,
	}
}

// Run extracts text for every bill. A failing item never stops the others; its text stays
// empty and its error is reported in the result. Results keep the order of bills.
func (e *BoundedExtractor) Run(ctx context.Context, bills []domain.Bill) []ExtractionResult {
	results := make([]ExtractionResult, len(bills))

	var (
		mu   sync.Mutex
		done int
	)

	// Plain group: a failed item must not cancel its siblings.
	var g errgroup.Group
	g.SetLimit(e.workers)

	for i, bill := range bills {
		g.Go(func() error {
			res := e.extractOne(ctx, bill)
			results[i] = res

			mu.Lock()
			done++
			e.report(done, len(bills), res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (e *BoundedExtractor) extractOne(ctx context.Context, bill domain.Bill) (res ExtractionResult) {
	res.Bill = bill
	res.Bill.Text = ""

	if err := ctx.Err(); err != nil {
		res.Err = err
		return res
	}
	res.Attempted = true

	defer func() {
		if r := recover(); r != nil {
			res.Bill.Text = ""
			res.Err = fmt.Errorf("extract %s: panic: %v", bill.PDFURL, r)
		}
		// A failure caused by cancellation says nothing about the bill; leave it for the next pass.
		if res.Err != nil && ctx.Err() != nil {
			res.Attempted = false
		}
	}()

	raw, err := e.fetcher.Fetch(ctx, bill.PDFURL)
	if err != nil {
		res.Err = fmt.Errorf("fetch %s: %w", bill.PDFURL, err)
		return res
	}

	text, err := e.extractor.Extract(ctx, raw)
	if err != nil {
		res.Err = fmt.Errorf("extract %s: %w", bill.PDFURL, err)
		return res
	}

	res.Bill.Text = text
	return res
}

func (e *BoundedExtractor) report(done, total int, res ExtractionResult) {
	if res.Attempted {
		e.metrics.ItemExtracted(res.Err == nil)
	}
	switch {
	case !res.Attempted:
		e.logger.Info("extraction interrupted", "done", done, "total", total, "title", res.Bill.Title)
	case res.Err != nil:
		e.logger.Warn("extraction failed", "done", done, "total", total, "title", res.Bill.Title, "error", res.Err)
	default:
		e.logger.Info("extracted", "done", done, "total", total, "title", res.Bill.Title, "chars", len(res.Bill.Text))
	}
	if e.progress != nil {
		e.progress(done, total, res)
	}
}

// ExtractionReport summarizes one extraction pass.
type ExtractionReport struct {
	Pending   int
	Extracted int
	Failed    int
	Skipped   int
}

// ExtractionPassDeps wires the storage adapters around BoundedExtractor.
type ExtractionPassDeps struct {
	Catalog   ports.Catalog
	Processed ports.ProcessedLog
	Output    ports.ExtractionOutput
	Extractor *BoundedExtractor
	Logger    *slog.Logger
	Metrics   *metrics.Recorder
}

// ExtractionPass diffs the catalog against the processed log and extracts what is left.
type ExtractionPass struct {
	catalog   ports.Catalog
	processed ports.ProcessedLog
	output    ports.ExtractionOutput
	extractor *BoundedExtractor
	logger    *slog.Logger
	metrics   *metrics.Recorder
}

// NewExtractionPass constructs the bulk-extraction use case.
func NewExtractionPass(deps ExtractionPassDeps) *ExtractionPass {
	return &ExtractionPass{
		catalog:   deps.Catalog,
		processed: deps.Processed,
		output:    deps.Output,
		extractor: deps.Extractor,
		logger:    logging.OrDiscard(deps.Logger),
		metrics:   deps.Metrics,
	}
}

// Run performs one pass. Every attempted bill, failed or not, is appended to the processed log
// and will not be retried; bills cut short by cancellation are not attempted. New results are
// merged into the output still waiting to be published, and the output is saved before the log
// so a crash in between only repeats extraction work.
func (p *ExtractionPass) Run(ctx context.Context) (report ExtractionReport, err error) {
	started := time.Now()
	defer func() { p.metrics.ObservePass("extract", started, err) }()

	if p.catalog == nil || p.processed == nil || p.output == nil || p.extractor == nil {
		return report, errors.New("extraction pass is not fully configured")
	}

	catalog, err := p.catalog.LoadCatalog(ctx)
	if err != nil {
		return report, fmt.Errorf("load catalog: %w", err)
	}
	processed, err := p.processed.LoadProcessed(ctx)
	if err != nil {
		return report, fmt.Errorf("load processed log: %w", err)
	}

	pending := DiffSet(catalog, processed)
	report.Pending = len(pending)
	p.metrics.Pending("extract", len(pending))
	p.logger.Info("extraction diff computed", "catalog", len(catalog), "processed", len(processed), "pending", len(pending))

	results := p.extractor.Run(ctx, pending)

	bills := make([]domain.Bill, 0, len(results))
	records := make([]domain.ProcessedRecord, 0, len(results))
	for _, res := range results {
		if !res.Attempted {
			report.Skipped++
			continue
		}
		if res.Err != nil {
			report.Failed++
		} else {
			report.Extracted++
		}
		bills = append(bills, res.Bill)
		records = append(records, res.Bill.Record())
	}

	// Results already exist for work that was done; persist them even when ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)
	leftover, err := p.output.LoadExtracted(persistCtx)
	if err != nil {
		return report, fmt.Errorf("load extraction output: %w", err)
	}
	if len(leftover) > 0 {
		p.logger.Info("keeping unpublished bills from earlier passes", "count", len(leftover))
	}
	if err := p.output.SaveExtracted(persistCtx, MergeExtracted(leftover, bills)); err != nil {
		return report, fmt.Errorf("save extracted bills: %w", err)
	}
	if len(records) > 0 {
		if err := p.processed.AppendProcessed(persistCtx, records); err != nil {
			return report, fmt.Errorf("append processed log: %w", err)
		}
	}

	p.logger.Info("extraction pass done",
		"extracted", report.Extracted, "failed", report.Failed, "skipped", report.Skipped)

	if report.Skipped > 0 {
		return report, fmt.Errorf("extraction interrupted: %w", context.Cause(ctx))
	}
	return report, nil
}

// MergeExtracted appends fresh results to the unpublished output of earlier passes. Bills are
// keyed by title; a fresh result replaces an older entry in place.
func MergeExtracted(leftover, fresh []domain.Bill) []domain.Bill {
	merged := make([]domain.Bill, 0, len(leftover)+len(fresh))
	index := make(map[string]int, len(leftover)+len(fresh))
	for _, bill := range slices.Concat(leftover, fresh) {
		if i, ok := index[bill.Title]; ok {
			merged[i] = bill
			continue
		}
		index[bill.Title] = len(merged)
		merged = append(merged, bill)
	}
	return merged
}
