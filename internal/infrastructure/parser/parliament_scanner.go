package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/scanner"
)

const defaultPageInterval = 2 * time.Second

// ParliamentScanner pages through a parliament.go.ke bill table and returns one bill per row.
type ParliamentScanner struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *slog.Logger
}

// NewParliamentScanner wires an HTTP client and allows one page request per interval.
func NewParliamentScanner(client *http.Client, interval time.Duration, userAgent string, logger *slog.Logger) *ParliamentScanner {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if interval <= 0 {
		interval = defaultPageInterval
	}
	if userAgent == "" {
		userAgent = "BillsScanner/1.0"
	}
	return &ParliamentScanner{
		client:    client,
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		userAgent: userAgent,
		logger:    logging.OrDiscard(logger).With("component", "parliament_scanner"),
	}
}

// Name identifies the strategy inside the registry.
func (p *ParliamentScanner) Name() string {
	return "parliament"
}

// Scan requests ?page=0,1,... until a page answers non-200 or has no table rows.
func (p *ParliamentScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.Bill, error) {
	if req.ListURL == "" {
		return nil, fmt.Errorf("no list url provided for chamber %s", req.Chamber)
	}

	var results []domain.Bill
	for page := 0; req.MaxPages <= 0 || page < req.MaxPages; page++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		pageURL, err := buildPageURL(req.ListURL, page)
		if err != nil {
			return nil, fmt.Errorf("chamber %s: %w", req.Chamber, err)
		}

		doc, err := p.fetchDocument(ctx, pageURL)
		if errors.Is(err, errStopPaging) {
			p.logger.Info("listing ended", "chamber", req.Chamber, "page", page, "reason", err)
			break
		}
		if err != nil {
			return nil, fmt.Errorf("chamber %s page %d: %w", req.Chamber, page, err)
		}

		rows := doc.Find("tr")
		if rows.Length() == 0 {
			break
		}
		base, _ := url.Parse(pageURL)
		rows.Each(func(_ int, row *goquery.Selection) {
			bill := extractRow(row, base)
			bill.Chamber = req.Chamber
			results = append(results, bill)
		})
		p.logger.Debug("scraped page", "chamber", req.Chamber, "page", page, "rows", rows.Length())
	}

	return results, nil
}

var errStopPaging = errors.New("listing page unavailable")

func (p *ParliamentScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s", errStopPaging, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// extractRow reads the bill link cell. Rows without one, such as headers, become Unknown bills.
func extractRow(row *goquery.Selection, base *url.URL) domain.Bill {
	link := row.Find("td.views-field-nothing a[href]").First()
	if link.Length() == 0 {
		return domain.Bill{Title: domain.Unknown, PDFURL: domain.Unknown}
	}

	href, _ := link.Attr("href")
	href = strings.TrimSpace(href)
	if base != nil {
		if ref, err := url.Parse(href); err == nil {
			href = base.ResolveReference(ref).String()
		}
	}

	return domain.Bill{
		Title:  strings.TrimSpace(link.Text()),
		PDFURL: href,
	}
}

func buildPageURL(base string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid list url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set("page", strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
