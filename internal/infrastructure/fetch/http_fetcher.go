// Package fetch downloads bill PDFs and stored text over HTTP.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"BillsScanner/internal/config"
	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

const (
	defaultTimeout  = 60 * time.Second
	defaultInterval = time.Second
	maxBodyBytes    = 256 << 20
)

// HTTPFetcher implements ports.ContentFetcher with bounded retries on gateway errors.
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries uint64
	interval   time.Duration
	maxBody    int64
	logger     *slog.Logger
}

var errBodyTooLarge = errors.New("response body too large")

var _ ports.ContentFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher builds a fetcher from configuration. A nil client gets one with cfg.Timeout.
func NewHTTPFetcher(cfg config.FetchConfig, client *http.Client, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &HTTPFetcher{
		client:     client,
		userAgent:  cfg.UserAgent,
		maxRetries: uint64(retries),
		interval:   defaultInterval,
		maxBody:    maxBodyBytes,
		logger:     logging.OrDiscard(logger).With("component", "fetch"),
	}
}

// Fetch returns the body behind locator. 404 and 410 wrap domain.ErrNotFound; exhausted retries on
// network errors or 429/502/503/504 wrap domain.ErrTransient.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) ([]byte, error) {
	if locator == "" || locator == domain.Unknown {
		return nil, fmt.Errorf("fetch %q: %w", locator, domain.ErrNotFound)
	}
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("fetch %q: unsupported locator", locator)
	}

	var body []byte
	attempt := 0
	op := func() error {
		attempt++
		b, err := f.get(ctx, u.String())
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !errors.Is(err, domain.ErrTransient) {
				return backoff.Permanent(err)
			}
			f.logger.Debug("fetch attempt failed", "url", locator, "attempt", attempt, "error", err)
			return err
		}
		body = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.interval
	policy.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, f.maxRetries), ctx)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, domain.TransientError(fmt.Errorf("do request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("status %s: %w", resp.Status, domain.ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, domain.TransientError(fmt.Errorf("status %s", resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
	if err != nil {
		return nil, domain.TransientError(fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > f.maxBody {
		return nil, fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, f.maxBody)
	}
	return body, nil
}
