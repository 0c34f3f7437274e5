package scanner

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"BillsScanner/internal/domain"
)

// Request carries all parameters required to scan one chamber listing.
type Request struct {
	Chamber string
	ListURL string
	// MaxPages stops paging early; zero scans until the listing runs out.
	MaxPages int
}

// Scanner captures a single listing layout (parliament.go.ke tables, etc.).
type Scanner interface {
	Name() string
	Scan(ctx context.Context, req Request) ([]domain.Bill, error)
}

// Registry maps the scanner name used in chamber config to its implementation.
type Registry struct {
	scanners map[string]Scanner
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{scanners: map[string]Scanner{}}
}

// Register adds s under s.Name(), replacing any earlier scanner with that name.
func (r *Registry) Register(s Scanner) {
	if r.scanners == nil {
		r.scanners = map[string]Scanner{}
	}
	r.scanners[s.Name()] = s
}

// Names lists registered scanners in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.scanners))
}

// Resolve looks a chamber's scanner up by name.
func (r *Registry) Resolve(name string) (Scanner, error) {
	if scanner, ok := r.scanners[name]; ok {
		return scanner, nil
	}
	return nil, fmt.Errorf("scanner %q is not registered (known: %v)", name, r.Names())
}
