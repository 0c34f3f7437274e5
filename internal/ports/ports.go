package ports

import (
	"context"
	"iter"
	"time"

	"BillsScanner/internal/domain"
)

// BillSource pulls the current bill listings from upstream chambers.
type BillSource interface {
	FetchAll(ctx context.Context) ([]domain.Bill, error)
}

// Catalog holds the full list of known bills.
type Catalog interface {
	LoadCatalog(ctx context.Context) ([]domain.Bill, error)
	SaveCatalog(ctx context.Context, bills []domain.Bill) error
}

// ProcessedLog is the append-only record of bills that went through extraction.
type ProcessedLog interface {
	LoadProcessed(ctx context.Context) ([]domain.ProcessedRecord, error)
	AppendProcessed(ctx context.Context, records []domain.ProcessedRecord) error
}

// ExtractionOutput stores the bills produced by the latest extraction pass.
type ExtractionOutput interface {
	SaveExtracted(ctx context.Context, bills []domain.Bill) error
	LoadExtracted(ctx context.Context) ([]domain.Bill, error)
}

// ContentFetcher resolves a locator to raw bytes.
// Missing content is reported with domain.ErrNotFound, retryable faults with domain.ErrTransient.
type ContentFetcher interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// TextExtractor turns raw document bytes (usually a scanned PDF) into text.
type TextExtractor interface {
	Extract(ctx context.Context, raw []byte) (string, error)
}

// Enricher generates the derived fields of a bill from its text.
type Enricher interface {
	Describe(ctx context.Context, text string) (string, error)
	Positives(ctx context.Context, text string) ([]domain.Entry, error)
	Negatives(ctx context.Context, text string) ([]domain.Entry, error)
	ExtractDate(ctx context.Context, text string) (string, error)
}

// DocumentStore is the remote collection of bill documents.
// Stream yields documents in the store's natural order; deadline faults carry domain.ErrTransient.
type DocumentStore interface {
	Stream(ctx context.Context) iter.Seq2[domain.Document, error]
	Upsert(ctx context.Context, id string, fields map[string]any) error
	Insert(ctx context.Context, doc domain.Document) error
}

// Checkpoint persists the id of the last document written by the enrichment pass.
type Checkpoint interface {
	Load(ctx context.Context) (string, bool, error)
	Save(ctx context.Context, key string) error
}

// BlobStore keeps large payloads (PDFs, extracted text) outside the document store.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// Notifier sends run reports to Telegram or other channels.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}

// Scheduler controls when passes execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
