package usecase

import "BillsScanner/internal/domain"

// DiffSet returns the catalog bills whose titles are absent from the processed log.
// Titles compare by exact string equality; sentinel rows are dropped and duplicate titles
// collapse to their first catalog occurrence. Order follows the catalog and only matters for
// progress reporting.
func DiffSet(catalog []domain.Bill, processed []domain.ProcessedRecord) []domain.Bill {
	done := make(map[string]struct{}, len(processed))
	for _, rec := range processed {
		done[rec.Title] = struct{}{}
	}

	pending := make([]domain.Bill, 0)
	seen := make(map[string]struct{}, len(catalog))
	for _, bill := range catalog {
		if !bill.Eligible() {
			continue
		}
		if _, ok := done[bill.Title]; ok {
			continue
		}
		if _, ok := seen[bill.Title]; ok {
			continue
		}
		seen[bill.Title] = struct{}{}
		pending = append(pending, bill)
	}

	return pending
}
