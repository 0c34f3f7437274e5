// Package llm generates bill summaries and assessments with an OpenAI-compatible chat API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"BillsScanner/internal/config"
	"BillsScanner/internal/domain"
	"BillsScanner/internal/ports"
)

const (
	defaultMaxInputChars = 3000
	defaultTimeout       = 90 * time.Second

	describePrompt  = "Generate a description of less than 23 words for the following bill (do not start with the bill name or Kenyan bill): "
	positivesPrompt = "Generate 10 concise positives in the format 'Short title (4 to 5 words) : explanation (not more than 30 words).' relevant to the following bill: "
	negativesPrompt = "Generate 10 concise negatives in the format 'Short title (4 to 5 words) : explanation (not more than 30 words).' relevant to the following bill: "
	datePrompt      = "Extract the relevant date from the following bill text. Return only the date without any additional text: "
)

// ChatGPTClient implements ports.Enricher backed by OpenAI-compatible APIs.
type ChatGPTClient struct {
	endpoint    string
	model       string
	apiKey      string
	temperature float64
	maxInput    int
	httpClient  *http.Client
}

var _ ports.Enricher = (*ChatGPTClient)(nil)

// NewChatGPTClient builds a client from configuration.
func NewChatGPTClient(cfg config.ChatGPTConfig) *ChatGPTClient {
	maxInput := cfg.MaxInputChars
	if maxInput <= 0 {
		maxInput = defaultMaxInputChars
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ChatGPTClient{
		endpoint:    cfg.Endpoint,
		model:       cfg.Model,
		apiKey:      cfg.APIKey,
		temperature: cfg.Temperature,
		maxInput:    maxInput,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Describe returns a one-sentence summary of the bill.
func (c *ChatGPTClient) Describe(ctx context.Context, text string) (string, error) {
	return c.complete(ctx, describePrompt+c.truncate(text))
}

// Positives returns exactly domain.EntriesPerBill entries, padded with empty ones.
func (c *ChatGPTClient) Positives(ctx context.Context, text string) ([]domain.Entry, error) {
	out, err := c.complete(ctx, positivesPrompt+c.truncate(text))
	if err != nil {
		return nil, err
	}
	return domain.ParseEntries(out), nil
}

// Negatives mirrors Positives.
func (c *ChatGPTClient) Negatives(ctx context.Context, text string) ([]domain.Entry, error) {
	out, err := c.complete(ctx, negativesPrompt+c.truncate(text))
	if err != nil {
		return nil, err
	}
	return domain.ParseEntries(out), nil
}

// ExtractDate returns the date the model finds in the text, or domain.Unknown.
func (c *ChatGPTClient) ExtractDate(ctx context.Context, text string) (string, error) {
	out, err := c.complete(ctx, datePrompt+c.truncate(text))
	if err != nil {
		return "", err
	}
	if out == "" {
		return domain.Unknown, nil
	}
	return out, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// complete sends prompt as a single user message and returns the trimmed reply.
func (c *ChatGPTClient) complete(ctx context.Context, prompt string) (string, error) {
	if c == nil {
		return "", errors.New("chatgpt client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", errors.New("chatgpt client misconfigured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chatgpt payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.TransientError(fmt.Errorf("chat completion: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("chatgpt error %s: %s", resp.Status, strings.TrimSpace(string(detail)))
		if retryableStatus(resp.StatusCode, detail) {
			return "", domain.TransientError(statusErr)
		}
		return "", statusErr
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chatgpt response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("chatgpt returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

// retryableStatus reports whether a failed completion may succeed later. A 429 caused by an
// exhausted quota stays that way until billing changes.
func retryableStatus(status int, detail []byte) bool {
	if status >= http.StatusInternalServerError {
		return true
	}
	return status == http.StatusTooManyRequests && !bytes.Contains(detail, []byte("insufficient_quota"))
}

// truncate keeps the first maxInput characters, never splitting a rune.
func (c *ChatGPTClient) truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= c.maxInput {
		return text
	}
	return string(runes[:c.maxInput])
}
