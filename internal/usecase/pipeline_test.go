package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BillsScanner/internal/domain"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) PublishReport(_ context.Context, report string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, report)
	return nil
}

func TestPipelineRunsAllPasses(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{}
	store := newMemoryStore()
	cp := &memoryCheckpoint{}
	fetcher := &stubFetcher{
		content: map[string][]byte{
			"http://x/a.pdf": []byte("%PDF a"),
			"https://storage.example.org/bills/pbills_text/pbill_001.txt": []byte("Hello World"),
		},
		errs: map[string]error{},
	}
	notifier := &recordingNotifier{}

	pipeline := NewPipeline(PipelineDeps{
		Scrape: NewScrapePass(ScrapePassDeps{
			Source:  staticSource{bills: []domain.Bill{{Title: "Bill A", PDFURL: "http://x/a.pdf"}}},
			Catalog: files,
		}),
		Extract: NewExtractionPass(ExtractionPassDeps{
			Catalog:   files,
			Processed: files,
			Output:    files,
			Extractor: NewBoundedExtractor(ExtractorDeps{
				Fetcher: fetcher,
				Extractor: extractFunc(func(context.Context, []byte) (string, error) {
					return "Hello World", nil
				}),
				Workers: 2,
			}),
		}),
		Publish: NewPublishPass(PublishPassDeps{
			Output:  files,
			Store:   store,
			Blobs:   newMemoryBlobs(),
			Fetcher: fetcher,
			NewID:   sequentialIDs(),
			Sleep:   noSleep,
		}),
		Enrich: NewEnrichmentPass(EnrichmentPassDeps{
			Store:      store,
			Checkpoint: cp,
			Fetcher:    fetcher,
			Enricher:   newCountingEnricher(),
			Sleep:      noSleep,
		}),
		Notifier: notifier,
	})

	trigger := time.Date(2026, 10, 18, 6, 0, 0, 0, time.UTC)
	report, err := pipeline.Run(context.Background(), trigger)
	require.NoError(t, err)

	require.Equal(t, 1, report.Scrape.Added)
	require.Equal(t, 1, report.Extract.Extracted)
	require.Equal(t, 1, report.Publish.Published)
	require.Equal(t, 1, report.Enrich.Written)

	require.Equal(t, []string{"pbill_001"}, store.upserts)
	require.Equal(t, "pbill_001", cp.key)
	require.Equal(t, "Summary of Hello World", store.docs["pbill_001"][string(domain.FieldDescription)])

	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "Bills pipeline run 2026-10-18 06:00 UTC")
	require.Contains(t, notifier.messages[0], "publish: published=1")
}

func TestPipelineContinuesAfterFailedPass(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{catalog: []domain.Bill{{Title: "Bill A", PDFURL: "http://x/a.pdf"}}}
	notifier := &recordingNotifier{}
	pipeline := NewPipeline(PipelineDeps{
		Scrape: NewScrapePass(ScrapePassDeps{Source: staticSource{err: errors.New("listing offline")}, Catalog: files}),
		Extract: NewExtractionPass(ExtractionPassDeps{
			Catalog:   files,
			Processed: files,
			Output:    files,
			Extractor: NewBoundedExtractor(ExtractorDeps{
				Fetcher: &stubFetcher{content: map[string][]byte{"http://x/a.pdf": []byte("pdf")}},
				Extractor: extractFunc(func(context.Context, []byte) (string, error) {
					return "text", nil
				}),
			}),
		}),
		Notifier: notifier,
	})

	report, err := pipeline.Run(context.Background(), time.Now())
	require.ErrorContains(t, err, "scrape: scrape listings: listing offline")
	require.Equal(t, 1, report.Extract.Extracted)
	require.Len(t, notifier.messages, 1)
	require.Contains(t, notifier.messages[0], "error: scrape")
}

func TestPipelineStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	files := &memoryFiles{}
	report, err := NewPipeline(PipelineDeps{
		Scrape: NewScrapePass(ScrapePassDeps{Source: staticSource{}, Catalog: files}),
	}).Run(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, report.Scrape)
}
