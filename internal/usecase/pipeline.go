package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

// PipelineDeps wires the passes of a full run. Nil passes are skipped.
type PipelineDeps struct {
	Scrape   *ScrapePass
	Extract  *ExtractionPass
	Publish  *PublishPass
	Enrich   *EnrichmentPass
	Notifier ports.Notifier
	Logger   *slog.Logger
}

// Pipeline runs scrape, extraction, publish and enrichment in that order and reports the outcome.
type Pipeline struct {
	scrape   *ScrapePass
	extract  *ExtractionPass
	publish  *PublishPass
	enrich   *EnrichmentPass
	notifier ports.Notifier
	logger   *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		scrape:   deps.Scrape,
		extract:  deps.Extract,
		publish:  deps.Publish,
		enrich:   deps.Enrich,
		notifier: deps.Notifier,
		logger:   logging.OrDiscard(deps.Logger),
	}
}

// RunReport collects the per-pass reports of one pipeline run.
type RunReport struct {
	Trigger time.Time
	Scrape  *ScrapeReport
	Extract *ExtractionReport
	Publish *PublishReport
	Enrich  *EnrichmentReport
	Errors  []error
}

// Run executes every configured pass. A failing pass does not stop the later ones, since each
// works from durable state; only cancellation does. The joined pass errors are returned.
func (p *Pipeline) Run(ctx context.Context, trigger time.Time) (RunReport, error) {
	report := RunReport{Trigger: trigger}
	fail := func(pass string, err error) {
		p.logger.Error("pass failed", "pass", pass, "error", err)
		report.Errors = append(report.Errors, fmt.Errorf("%s: %w", pass, err))
	}

	if p.scrape != nil && ctx.Err() == nil {
		r, err := p.scrape.Run(ctx)
		report.Scrape = &r
		if err != nil {
			fail("scrape", err)
		}
	}
	if p.extract != nil && ctx.Err() == nil {
		r, err := p.extract.Run(ctx)
		report.Extract = &r
		if err != nil {
			fail("extract", err)
		}
	}
	if p.publish != nil && ctx.Err() == nil {
		r, err := p.publish.Run(ctx)
		report.Publish = &r
		if err != nil {
			fail("publish", err)
		}
	}
	if p.enrich != nil && ctx.Err() == nil {
		r, err := p.enrich.Run(ctx)
		report.Enrich = &r
		if err != nil {
			fail("enrich", err)
		}
	}

	if err := ctx.Err(); err != nil {
		report.Errors = append(report.Errors, err)
	}
	runErr := errors.Join(report.Errors...)

	if p.notifier != nil {
		if err := p.notifier.PublishReport(context.WithoutCancel(ctx), buildRunMessage(report)); err != nil {
			p.logger.Warn("failed to publish run report", "error", err)
		}
	}
	return report, runErr
}

func buildRunMessage(r RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Bills pipeline run %s\n", r.Trigger.Format("2006-01-02 15:04 MST"))
	if r.Scrape != nil {
		fmt.Fprintf(&b, "scrape: scraped=%d added=%d total=%d\n", r.Scrape.Scraped, r.Scrape.Added, r.Scrape.Total)
	}
	if r.Extract != nil {
		fmt.Fprintf(&b, "extract: pending=%d extracted=%d failed=%d skipped=%d\n",
			r.Extract.Pending, r.Extract.Extracted, r.Extract.Failed, r.Extract.Skipped)
	}
	if r.Publish != nil {
		fmt.Fprintf(&b, "publish: published=%d pdf_copied=%d failed=%d remaining=%d\n",
			r.Publish.Published, r.Publish.PDFCopied, r.Publish.Failed, r.Publish.Remaining)
	}
	if r.Enrich != nil {
		fmt.Fprintf(&b, "enrich: written=%d complete=%d no_text=%d fetch_failed=%d attempts=%d\n",
			r.Enrich.Written, r.Enrich.Complete, r.Enrich.NoText, r.Enrich.FetchFailed, r.Enrich.Attempts)
	}
	for _, err := range r.Errors {
		fmt.Fprintf(&b, "error: %v\n", err)
	}
	return strings.TrimRight(b.String(), "\n")
}
