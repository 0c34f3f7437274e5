// Package ocr turns bill PDFs into plain text through an external OCR service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"BillsScanner/internal/config"
	"BillsScanner/internal/domain"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/ports"
)

const (
	defaultTimeout    = 5 * time.Minute
	defaultInterval   = 2 * time.Second
	defaultMaxRetries = 3
)

// Client posts raw PDF bytes to the OCR endpoint and reads back the recognised text.
type Client struct {
	endpoint   string
	apiKey     string
	http       *http.Client
	maxRetries uint64
	interval   time.Duration
	logger     *slog.Logger
}

var _ ports.TextExtractor = (*Client)(nil)

// NewClient creates a reusable HTTP client. A negative cfg.MaxRetries disables retries.
func NewClient(cfg config.OCRConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := cfg.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		http:       &http.Client{Timeout: timeout},
		maxRetries: uint64(retries),
		interval:   defaultInterval,
		logger:     logging.OrDiscard(logger).With("component", "ocr"),
	}
}

type response struct {
	Text  string `json:"text"`
	Pages []struct {
		Text string `json:"text"`
	} `json:"pages"`
}

// Extract sends the document and returns its text. Network errors, 429 and 5xx answers are
// retried with exponential backoff; once retries run out the error wraps domain.ErrTransient.
// Services that answer per page have their pages joined with newlines.
func (c *Client) Extract(ctx context.Context, raw []byte) (string, error) {
	if c.endpoint == "" {
		return "", errors.New("ocr endpoint is not configured")
	}
	if len(raw) == 0 {
		return "", errors.New("empty document")
	}

	var text string
	attempt := 0
	op := func() error {
		attempt++
		t, err := c.post(ctx, raw)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if !errors.Is(err, domain.ErrTransient) {
				return backoff.Permanent(err)
			}
			c.logger.Debug("ocr attempt failed", "attempt", attempt, "error", err)
			return err
		}
		text = t
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.interval
	policy.MaxElapsedTime = 0
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)); err != nil {
		return "", err
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/pdf")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", domain.TransientError(fmt.Errorf("do request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		closeErr := resp.Body.Close()
		statusErr := fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		if closeErr != nil {
			statusErr = fmt.Errorf("%w, close body: %v", statusErr, closeErr)
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return "", domain.TransientError(statusErr)
		}
		return "", statusErr
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		_ = resp.Body.Close()
		return "", fmt.Errorf("decode response: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return "", fmt.Errorf("close response body: %w", err)
	}

	text := out.Text
	if text == "" && len(out.Pages) > 0 {
		pages := make([]string, 0, len(out.Pages))
		for _, p := range out.Pages {
			pages = append(pages, p.Text)
		}
		text = strings.Join(pages, "\n")
	}
	return strings.TrimSpace(text), nil
}
