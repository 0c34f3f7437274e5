package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BillsScanner/internal/domain"
)

func TestExtractionPassEndToEnd(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{catalog: []domain.Bill{{Title: "Bill A", PDFURL: "http://x/a.pdf"}}}
	fetcher := &stubFetcher{content: map[string][]byte{"http://x/a.pdf": []byte("%PDF-1.4")}}
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher: fetcher,
		Extractor: extractFunc(func(context.Context, []byte) (string, error) {
			return "Hello World", nil
		}),
	})
	pass := NewExtractionPass(ExtractionPassDeps{Catalog: files, Processed: files, Output: files, Extractor: extractor})

	report, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ExtractionReport{Pending: 1, Extracted: 1}, report)
	require.Equal(t, []domain.ProcessedRecord{{Title: "Bill A", PDFURL: "http://x/a.pdf"}}, files.processed)
	require.Len(t, files.extracted, 1)
	require.Equal(t, "Hello World", files.extracted[0].Text)
	require.Equal(t, []string{"extracted", "processed"}, files.saveOrder, "output is persisted before the processed log")

	report, err = pass.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.Pending, "second run has nothing left to do")
	require.Len(t, fetcher.calls, 1)
	require.Len(t, files.processed, 1)
	require.Len(t, files.extracted, 1, "unpublished output is kept, not duplicated")
}

func TestExtractionPassMarksFailuresProcessed(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{catalog: []domain.Bill{
		{Title: "Good", PDFURL: "http://x/good.pdf"},
		{Title: "Missing", PDFURL: "http://x/missing.pdf"},
		{Title: "Broken", PDFURL: "http://x/broken.pdf"},
		{Title: domain.Unknown, PDFURL: domain.Unknown},
	}}
	fetcher := &stubFetcher{content: map[string][]byte{
		"http://x/good.pdf":   []byte("good"),
		"http://x/broken.pdf": []byte("broken"),
	}}
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher: fetcher,
		Extractor: extractFunc(func(_ context.Context, raw []byte) (string, error) {
			if string(raw) == "broken" {
				return "", errors.New("tesseract: no pages")
			}
			return "text", nil
		}),
		Workers: 2,
	})
	pass := NewExtractionPass(ExtractionPassDeps{Catalog: files, Processed: files, Output: files, Extractor: extractor})

	report, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ExtractionReport{Pending: 3, Extracted: 1, Failed: 2}, report)
	require.Len(t, files.processed, 3)

	texts := map[string]string{}
	for _, b := range files.extracted {
		texts[b.Title] = b.Text
	}
	require.Equal(t, map[string]string{"Good": "text", "Missing": "", "Broken": ""}, texts)
}

func TestBoundedExtractorRespectsWorkerLimit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher: &stubFetcher{content: map[string][]byte{}, errs: map[string]error{}},
		Workers: 3,
	})
	extractor.fetcher = fetchFunc(func(ctx context.Context, locator string) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return []byte(locator), nil
	})
	extractor.extractor = extractFunc(func(_ context.Context, raw []byte) (string, error) {
		return string(raw), nil
	})

	bills := make([]domain.Bill, 12)
	for i := range bills {
		bills[i] = domain.Bill{Title: string(rune('A' + i)), PDFURL: "http://x/" + string(rune('a'+i))}
	}

	var (
		mu     sync.Mutex
		dones  []int
		totals = map[int]bool{}
	)
	extractor.progress = func(done, total int, _ ExtractionResult) {
		mu.Lock()
		defer mu.Unlock()
		totals[total] = true
		dones = append(dones, done)
	}

	results := extractor.Run(context.Background(), bills)

	require.LessOrEqual(t, peak.Load(), int32(3))
	require.Len(t, results, 12)
	for i, res := range results {
		require.NoError(t, res.Err)
		require.Equal(t, bills[i].PDFURL, res.Bill.Text, "results keep submission order")
	}
	require.Equal(t, map[int]bool{12: true}, totals)
	require.Len(t, dones, 12)
	require.Equal(t, 12, dones[len(dones)-1])
}

func TestBoundedExtractorIsolatesPanics(t *testing.T) {
	t.Parallel()

	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher: &stubFetcher{content: map[string][]byte{"a": []byte("a"), "b": []byte("b")}},
		Extractor: extractFunc(func(_ context.Context, raw []byte) (string, error) {
			if string(raw) == "a" {
				panic("corrupt image")
			}
			return "ok", nil
		}),
	})

	results := extractor.Run(context.Background(), []domain.Bill{
		{Title: "A", PDFURL: "a"},
		{Title: "B", PDFURL: "b"},
	})

	require.ErrorContains(t, results[0].Err, "panic: corrupt image")
	require.Empty(t, results[0].Bill.Text)
	require.True(t, results[0].Attempted)
	require.NoError(t, results[1].Err)
	require.Equal(t, "ok", results[1].Bill.Text)
}

func TestExtractionPassCancelledBeforeStart(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{catalog: []domain.Bill{{Title: "A", PDFURL: "http://x/a.pdf"}}}
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher:   &stubFetcher{content: map[string][]byte{}},
		Extractor: extractFunc(func(context.Context, []byte) (string, error) { return "", nil }),
	})
	pass := NewExtractionPass(ExtractionPassDeps{Catalog: files, Processed: files, Output: files, Extractor: extractor})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := pass.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, report.Skipped)
	require.Empty(t, files.processed, "unattempted bills stay eligible")
}

func TestExtractionPassCancelledMidFetchKeepsBillsPending(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{catalog: []domain.Bill{
		{Title: "A", PDFURL: "http://x/a.pdf"},
		{Title: "B", PDFURL: "http://x/b.pdf"},
	}}
	fetcher := &stubFetcher{
		content: map[string][]byte{"http://x/a.pdf": []byte("a"), "http://x/b.pdf": []byte("b")},
		delay:   time.Second,
	}
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher:   fetcher,
		Extractor: extractFunc(func(_ context.Context, raw []byte) (string, error) { return string(raw), nil }),
	})
	pass := NewExtractionPass(ExtractionPassDeps{Catalog: files, Processed: files, Output: files, Extractor: extractor})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	report, err := pass.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorContains(t, err, "extraction interrupted")
	require.Equal(t, ExtractionReport{Pending: 2, Skipped: 2}, report)
	require.Empty(t, files.processed, "interrupted bills are not marked processed")
	require.Empty(t, files.extracted)

	fetcher.delay = 0
	report, err = pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ExtractionReport{Pending: 2, Extracted: 2}, report)
	require.Len(t, files.processed, 2)
}

func TestExtractionPassKeepsUnpublishedOutput(t *testing.T) {
	t.Parallel()

	files := &memoryFiles{
		catalog: []domain.Bill{
			{Title: "Old", PDFURL: "http://x/old.pdf"},
			{Title: "New", PDFURL: "http://x/new.pdf"},
		},
		processed: []domain.ProcessedRecord{{Title: "Old", PDFURL: "http://x/old.pdf"}},
		extracted: []domain.Bill{{Title: "Old", PDFURL: "http://x/old.pdf", Text: "old text"}},
	}
	extractor := NewBoundedExtractor(ExtractorDeps{
		Fetcher:   &stubFetcher{content: map[string][]byte{"http://x/new.pdf": []byte("new text")}},
		Extractor: extractFunc(func(_ context.Context, raw []byte) (string, error) { return string(raw), nil }),
	})
	pass := NewExtractionPass(ExtractionPassDeps{Catalog: files, Processed: files, Output: files, Extractor: extractor})

	report, err := pass.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, ExtractionReport{Pending: 1, Extracted: 1}, report)
	require.Equal(t, []domain.Bill{
		{Title: "Old", PDFURL: "http://x/old.pdf", Text: "old text"},
		{Title: "New", PDFURL: "http://x/new.pdf", Text: "new text"},
	}, files.extracted)
}

func TestMergeExtractedReplacesByTitle(t *testing.T) {
	t.Parallel()

	merged := MergeExtracted(
		[]domain.Bill{{Title: "A", Text: "stale"}, {Title: "B", Text: "b"}},
		[]domain.Bill{{Title: "C", Text: "c"}, {Title: "A", Text: "fresh"}},
	)
	require.Equal(t, []domain.Bill{{Title: "A", Text: "fresh"}, {Title: "B", Text: "b"}, {Title: "C", Text: "c"}}, merged)
	require.Empty(t, MergeExtracted(nil, nil))
}

type fetchFunc func(ctx context.Context, locator string) ([]byte, error)

func (f fetchFunc) Fetch(ctx context.Context, locator string) ([]byte, error) {
	return f(ctx, locator)
}
