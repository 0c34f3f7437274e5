package usecase

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"BillsScanner/internal/domain"
)

var errDeadline = domain.TransientError(errors.New("rpc error: code = DeadlineExceeded"))

type memoryStore struct {
	mu       sync.Mutex
	order    []string
	docs     map[string]map[string]any
	upserts  []string
	inserted []domain.Document

	failStreamAt int
	failOnce     bool
	upsertErr    map[string]error
	// sortByID streams in id order instead of insertion order.
	sortByID     bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: map[string]map[string]any{}, upsertErr: map[string]error{}}
}

func (s *memoryStore) add(id string, fields map[string]any) {
	s.order = append(s.order, id)
	s.docs[id] = fields
}

func (s *memoryStore) Stream(ctx context.Context) iter.Seq2[domain.Document, error] {
	return func(yield func(domain.Document, error) bool) {
		s.mu.Lock()
		order := append([]string(nil), s.order...)
		if s.sortByID {
			slices.Sort(order)
		}
		s.mu.Unlock()

		for i, id := range order {
			if err := ctx.Err(); err != nil {
				yield(domain.Document{}, err)
				return
			}

			s.mu.Lock()
			if s.failOnce && i == s.failStreamAt {
				s.failOnce = false
				s.mu.Unlock()
				yield(domain.Document{}, errDeadline)
				return
			}
			doc := domain.Document{ID: id, Fields: maps.Clone(s.docs[id])}
			s.mu.Unlock()

			if !yield(doc, nil) {
				return
			}
		}
	}
}

func (s *memoryStore) Upsert(_ context.Context, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.upsertErr[id]; err != nil {
		delete(s.upsertErr, id)
		return err
	}
	if s.docs[id] == nil {
		s.docs[id] = map[string]any{}
	}
	maps.Copy(s.docs[id], fields)
	s.upserts = append(s.upserts, id)
	return nil
}

func (s *memoryStore) Insert(_ context.Context, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, doc)
	s.order = append(s.order, doc.ID)
	s.docs[doc.ID] = maps.Clone(doc.Fields)
	return nil
}

type memoryCheckpoint struct {
	key   string
	set   bool
	saves []string
}

func (c *memoryCheckpoint) Load(context.Context) (string, bool, error) {
	return c.key, c.set, nil
}

func (c *memoryCheckpoint) Save(_ context.Context, key string) error {
	c.key, c.set = key, true
	c.saves = append(c.saves, key)
	return nil
}

type stubFetcher struct {
	mu      sync.Mutex
	content map[string][]byte
	errs    map[string]error
	calls   []string
	delay   time.Duration
}

func (f *stubFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, locator)
	err := f.errs[locator]
	body, ok := f.content[locator]
	f.mu.Unlock()

	if f.delay > 0 {
		if err := SleepContext(ctx, f.delay); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNotFound
	}
	return body, nil
}

type extractFunc func(ctx context.Context, raw []byte) (string, error)

func (f extractFunc) Extract(ctx context.Context, raw []byte) (string, error) {
	return f(ctx, raw)
}

type countingEnricher struct {
	mu    sync.Mutex
	calls map[domain.Field]int
	err   error
}

func newCountingEnricher() *countingEnricher {
	return &countingEnricher{calls: map[domain.Field]int{}}
}

func (e *countingEnricher) hit(f domain.Field) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[f]++
	return e.err
}

func (e *countingEnricher) Describe(_ context.Context, text string) (string, error) {
	return "Summary of " + text, e.hit(domain.FieldDescription)
}

func (e *countingEnricher) Positives(context.Context, string) ([]domain.Entry, error) {
	return domain.ParseEntries("Good: yes."), e.hit(domain.FieldPositives)
}

func (e *countingEnricher) Negatives(context.Context, string) ([]domain.Entry, error) {
	return domain.ParseEntries("Bad: no."), e.hit(domain.FieldNegatives)
}

func (e *countingEnricher) ExtractDate(context.Context, string) (string, error) {
	return "12th March, 2024", e.hit(domain.FieldDate)
}

type memoryFiles struct {
	catalog   []domain.Bill
	processed []domain.ProcessedRecord
	extracted []domain.Bill
	saveOrder []string
}

func (m *memoryFiles) LoadCatalog(context.Context) ([]domain.Bill, error) {
	return m.catalog, nil
}

func (m *memoryFiles) SaveCatalog(_ context.Context, bills []domain.Bill) error {
	m.catalog = bills
	return nil
}

func (m *memoryFiles) LoadProcessed(context.Context) ([]domain.ProcessedRecord, error) {
	return m.processed, nil
}

func (m *memoryFiles) AppendProcessed(_ context.Context, records []domain.ProcessedRecord) error {
	m.processed = append(m.processed, records...)
	m.saveOrder = append(m.saveOrder, "processed")
	return nil
}

func (m *memoryFiles) SaveExtracted(_ context.Context, bills []domain.Bill) error {
	m.extracted = bills
	m.saveOrder = append(m.saveOrder, "extracted")
	return nil
}

func (m *memoryFiles) LoadExtracted(context.Context) ([]domain.Bill, error) {
	return m.extracted, nil
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	errs    map[string]error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}, errs: map[string]error{}}
}

func (b *memoryBlobs) Put(_ context.Context, name string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for prefix, err := range b.errs {
		if strings.HasPrefix(name, prefix) {
			return "", err
		}
	}
	b.objects[name] = data
	b.types[name] = contentType
	return "https://storage.example.org/bills/" + name, nil
}

type staticSource struct {
	bills []domain.Bill
	err   error
}

func (s staticSource) FetchAll(context.Context) ([]domain.Bill, error) {
	return s.bills, s.err
}
