package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
)

const (
	DefaultPublishCollection = "pbills"
	DefaultIDPrefix          = "pbill"
	DefaultPauseEvery        = 5
	DefaultPublishPause      = 2 * time.Second
)

// NewDocumentID returns "<prefix>_<32 hex chars>" built from a UUIDv7, so ids sort in the order
// they were generated.
func NewDocumentID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.Must(uuid.NewV7()).String(), "-", "")
}

// PublishReport summarises one publish pass.
type PublishReport struct {
	Published int
	PDFCopied int
	PDFKept   int
	Failed    int
	Remaining int
}

// PublishPassDeps wires the upload of extracted bills into the document store.
type PublishPassDeps struct {
	Output     ports.ExtractionOutput
	Store      ports.DocumentStore
	Blobs      ports.BlobStore
	Fetcher    ports.ContentFetcher
	Collection string
	IDPrefix   string
	PauseEvery int
	Pause      time.Duration
	Sleep      Sleeper
	NewID      func(prefix string) string
	Logger     *slog.Logger
	Metrics    *metrics.Recorder
}

// PublishPass moves extracted bills into the document collection, parking PDFs and text in the
// blob store so documents stay small.
type PublishPass struct {
	deps   PublishPassDeps
	logger *slog.Logger
}

// NewPublishPass constructs the publish use case.
func NewPublishPass(deps PublishPassDeps) *PublishPass {
	if deps.Collection == "" {
		deps.Collection = DefaultPublishCollection
	}
	if deps.IDPrefix == "" {
		deps.IDPrefix = DefaultIDPrefix
	}
	if deps.PauseEvery <= 0 {
		deps.PauseEvery = DefaultPauseEvery
	}
	if deps.Pause <= 0 {
		deps.Pause = DefaultPublishPause
	}
	if deps.Sleep == nil {
		deps.Sleep = SleepContext
	}
	if deps.NewID == nil {
		deps.NewID = NewDocumentID
	}
	return &PublishPass{deps: deps, logger: logging.OrDiscard(deps.Logger)}
}

// Run publishes every bill in the extraction output. Bills that could not be published stay in
// the output for the next run; the rest are removed so re-running never inserts duplicates.
func (p *PublishPass) Run(ctx context.Context) (report PublishReport, err error) {
	started := time.Now()
	defer func() { p.deps.Metrics.ObservePass("publish", started, err) }()

	if p.deps.Output == nil || p.deps.Store == nil || p.deps.Blobs == nil || p.deps.Fetcher == nil {
		return report, errors.New("publish pass is not fully configured")
	}

	bills, err := p.deps.Output.LoadExtracted(ctx)
	if err != nil {
		return report, fmt.Errorf("load extracted bills: %w", err)
	}
	p.deps.Metrics.Pending("publish", len(bills))
	if len(bills) == 0 {
		p.logger.Info("nothing to publish")
		return report, nil
	}

	remaining := make([]domain.Bill, 0)
	var runErr error
	for i, bill := range bills {
		if runErr != nil {
			remaining = append(remaining, bill)
			continue
		}

		if err := p.publishOne(ctx, bill, &report); err != nil {
			remaining = append(remaining, bill)
			if ctx.Err() != nil || errors.Is(err, errStorePublish) {
				runErr = err
				continue
			}
			report.Failed++
			p.logger.Warn("bill not published, keeping it for the next run", "title", bill.Title, "error", err)
			continue
		}

		if (i+1)%p.deps.PauseEvery == 0 && i+1 < len(bills) {
			p.logger.Debug("pausing", "delay", p.deps.Pause)
			if err := p.deps.Sleep(ctx, p.deps.Pause); err != nil {
				runErr = err
			}
		}
	}

	report.Remaining = len(remaining)
	if err := p.deps.Output.SaveExtracted(context.WithoutCancel(ctx), remaining); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("save unpublished bills: %w", err))
	}
	if runErr != nil {
		return report, runErr
	}

	p.logger.Info("publish pass done",
		"published", report.Published, "pdf_copied", report.PDFCopied, "failed", report.Failed)
	return report, nil
}

var errStorePublish = errors.New("document store rejected insert")

func (p *PublishPass) publishOne(ctx context.Context, bill domain.Bill, report *PublishReport) error {
	id := p.deps.NewID(p.deps.IDPrefix)
	fields := map[string]any{
		domain.FieldTitle:  bill.Title,
		domain.FieldPDFURL: bill.PDFURL,
	}
	if bill.Chamber != "" {
		fields["chamber"] = bill.Chamber
	}

	pdfKept := true
	if stored, err := p.copyPDF(ctx, id, bill.PDFURL); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Warn("failed to copy pdf, keeping the original url", "id", id, "url", bill.PDFURL, "error", err)
	} else {
		fields[domain.FieldPDFURL] = stored
		pdfKept = false
	}

	if bill.Text != "" {
		textURL, err := p.deps.Blobs.Put(ctx, p.deps.Collection+"_text/"+id+".txt", []byte(bill.Text), "text/plain; charset=utf-8")
		if err != nil {
			return fmt.Errorf("upload text for %s: %w", id, err)
		}
		fields[domain.FieldTextURL] = textURL
	}

	if err := p.deps.Store.Insert(ctx, domain.Document{ID: id, Fields: fields}); err != nil {
		return fmt.Errorf("%w: %s: %w", errStorePublish, id, err)
	}

	report.Published++
	if pdfKept {
		report.PDFKept++
	} else {
		report.PDFCopied++
	}
	p.logger.Info("document added", "id", id, "title", bill.Title)
	return nil
}

func (p *PublishPass) copyPDF(ctx context.Context, id, pdfURL string) (string, error) {
	raw, err := p.deps.Fetcher.Fetch(ctx, pdfURL)
	if err != nil {
		return "", err
	}
	return p.deps.Blobs.Put(ctx, p.deps.Collection+"/"+id, raw, "application/pdf")
}
