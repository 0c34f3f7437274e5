package parser

import (
	"context"
	"fmt"
	"log/slog"

	"BillsScanner/internal/config"
	"BillsScanner/internal/domain"
	"BillsScanner/internal/ports"
	"BillsScanner/internal/scanner"
)

// StrategySource implements BillSource via registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	chambers []config.ChamberConfig
	maxPages int
	logger   *slog.Logger
}

var _ ports.BillSource = (*StrategySource)(nil)

// NewStrategySource wires scanner registry with config-defined chambers.
func NewStrategySource(reg *scanner.Registry, chambers []config.ChamberConfig, maxPages int, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		chambers: chambers,
		maxPages: maxPages,
		logger:   log,
	}
}

// FetchAll iterates over configured chambers and executes their scanners in order.
func (s *StrategySource) FetchAll(ctx context.Context) ([]domain.Bill, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	s.debug("fetch all", "chambers", len(s.chambers))

	var aggregated []domain.Bill
	for _, chamber := range s.chambers {
		s.debug("process chamber", "chamber", chamber.Name, "scanner", chamber.Scanner)
		strategy, err := s.registry.Resolve(chamber.Scanner)
		if err != nil {
			return nil, fmt.Errorf("chamber %s: %w", chamber.Name, err)
		}

		results, err := strategy.Scan(ctx, scanner.Request{
			Chamber:  chamber.Name,
			ListURL:  chamber.ListURL,
			MaxPages: s.maxPages,
		})
		if err != nil {
			return nil, fmt.Errorf("scan chamber %s: %w", chamber.Name, err)
		}

		for i := range results {
			if results[i].Chamber == "" {
				results[i].Chamber = chamber.Name
			}
		}
		s.debug("chamber produced bills", "chamber", chamber.Name, "count", len(results))
		aggregated = append(aggregated, results...)
	}

	s.debug("strategy source done", "total_bills", len(aggregated))
	return aggregated, nil
}

func (s *StrategySource) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
