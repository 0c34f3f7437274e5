// Package catalog keeps the bill catalog, the processed log and the extraction output as JSON files.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/infrastructure/atomicfile"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

// JSONStore implements the file-backed ports used by the scrape, extraction and publish passes.
type JSONStore struct {
	catalogPath   string
	processedPath string
	outputPath    string
	logger        *slog.Logger
}

var (
	_ ports.Catalog          = (*JSONStore)(nil)
	_ ports.ProcessedLog     = (*JSONStore)(nil)
	_ ports.ExtractionOutput = (*JSONStore)(nil)
)

// NewJSONStore wires the three file locations.
func NewJSONStore(catalogPath, processedPath, outputPath string, logger *slog.Logger) *JSONStore {
	return &JSONStore{
		catalogPath:   catalogPath,
		processedPath: processedPath,
		outputPath:    outputPath,
		logger:        logging.OrDiscard(logger),
	}
}

// LoadCatalog reads the full bill list. A missing catalog is an error: nothing can be diffed.
func (s *JSONStore) LoadCatalog(_ context.Context) ([]domain.Bill, error) {
	var bills []domain.Bill
	if err := atomicfile.ReadJSON(s.catalogPath, &bills); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", s.catalogPath, err)
	}
	return bills, nil
}

// SaveCatalog rewrites the catalog atomically.
func (s *JSONStore) SaveCatalog(_ context.Context, bills []domain.Bill) error {
	if bills == nil {
		bills = []domain.Bill{}
	}
	return atomicfile.WriteJSON(s.catalogPath, bills)
}

// LoadProcessed reads the processed log; a log that does not exist yet is empty.
func (s *JSONStore) LoadProcessed(_ context.Context) ([]domain.ProcessedRecord, error) {
	var records []domain.ProcessedRecord
	err := atomicfile.ReadJSON(s.processedPath, &records)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("processed log not found, starting empty", "path", s.processedPath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("processed log %s: %w", s.processedPath, err)
	}
	return records, nil
}

// AppendProcessed adds records to the end of the log and rewrites it atomically.
func (s *JSONStore) AppendProcessed(ctx context.Context, records []domain.ProcessedRecord) error {
	existing, err := s.LoadProcessed(ctx)
	if err != nil {
		return err
	}
	return atomicfile.WriteJSON(s.processedPath, append(existing, records...))
}

// SaveExtracted replaces the extraction output with the bills of the latest pass.
func (s *JSONStore) SaveExtracted(_ context.Context, bills []domain.Bill) error {
	if bills == nil {
		bills = []domain.Bill{}
	}
	return atomicfile.WriteJSON(s.outputPath, bills)
}

// LoadExtracted reads the latest extraction output; a missing file means nothing was extracted.
func (s *JSONStore) LoadExtracted(_ context.Context) ([]domain.Bill, error) {
	var bills []domain.Bill
	err := atomicfile.ReadJSON(s.outputPath, &bills)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extraction output %s: %w", s.outputPath, err)
	}
	return bills, nil
}
