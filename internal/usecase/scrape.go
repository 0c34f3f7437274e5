package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
)

// ScrapeReport summarises one catalog refresh.
type ScrapeReport struct {
	Scraped int
	Added   int
	Total   int
}

// ScrapePassDeps wires the listing scrape.
type ScrapePassDeps struct {
	Source  ports.BillSource
	Catalog ports.Catalog
	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// ScrapePass refreshes the catalog from the chamber listings.
type ScrapePass struct {
	source  ports.BillSource
	catalog ports.Catalog
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewScrapePass constructs the scrape use case.
func NewScrapePass(deps ScrapePassDeps) *ScrapePass {
	return &ScrapePass{
		source:  deps.Source,
		catalog: deps.Catalog,
		logger:  logging.OrDiscard(deps.Logger),
		metrics: deps.Metrics,
	}
}

// Run scrapes every chamber and appends bills whose pdf_url is new. The catalog is only
// rewritten when something was added.
func (p *ScrapePass) Run(ctx context.Context) (report ScrapeReport, err error) {
	started := time.Now()
	defer func() { p.metrics.ObservePass("scrape", started, err) }()

	if p.source == nil || p.catalog == nil {
		return report, errors.New("scrape pass is not fully configured")
	}

	existing, err := p.catalog.LoadCatalog(ctx)
	if errors.Is(err, fs.ErrNotExist) {
		p.logger.Info("no catalog yet, creating one")
		existing, err = nil, nil
	}
	if err != nil {
		return report, fmt.Errorf("load catalog: %w", err)
	}

	scraped, err := p.source.FetchAll(ctx)
	if err != nil {
		return report, fmt.Errorf("scrape listings: %w", err)
	}
	report.Scraped = len(scraped)

	merged, added := MergeCatalog(existing, scraped)
	report.Added = added
	report.Total = len(merged)

	if added == 0 {
		p.logger.Info("no new bills found", "scraped", len(scraped), "catalog", len(existing))
		return report, nil
	}
	if err := p.catalog.SaveCatalog(ctx, merged); err != nil {
		return report, fmt.Errorf("save catalog: %w", err)
	}

	p.logger.Info("catalog updated", "added", added, "total", len(merged))
	return report, nil
}

// MergeCatalog appends scraped bills whose pdf_url is not already known, keeping catalog order.
// Sentinel rows share the pdf_url "Unknown" and so collapse to a single entry.
func MergeCatalog(existing, scraped []domain.Bill) ([]domain.Bill, int) {
	known := make(map[string]struct{}, len(existing)+len(scraped))
	merged := make([]domain.Bill, 0, len(existing)+len(scraped))
	for _, bill := range existing {
		known[bill.PDFURL] = struct{}{}
		merged = append(merged, bill)
	}

	added := 0
	for _, bill := range scraped {
		if _, ok := known[bill.PDFURL]; ok {
			continue
		}
		known[bill.PDFURL] = struct{}{}
		merged = append(merged, bill)
		added++
	}
	return merged, added
}
