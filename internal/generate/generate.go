// Package generate talks to a hosted chat-completion provider to turn an
// evidence bundle into report text. The provider is OpenRouter-compatible;
// models are addressed by their router name (e.g. "anthropic/claude-3.5-sonnet").
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nicheradar/nicheradar/pkg/httpclient"
)

// Config holds provider settings.
type Config struct {
	// APIKey authenticates against the completion provider.
	APIKey string
	// BaseURL overrides the endpoint, for tests.
	BaseURL string
	// Timeout bounds one completion call. Default 120s; generation is slow.
	Timeout time.Duration
	// MaxAttempts bounds retries for a failed completion. Default 3.
	MaxAttempts int
	// Backoff is the base delay between attempts, doubled each retry.
	Backoff time.Duration
	// Referer and AppName identify the caller to the router, if set.
	Referer string
	AppName string
}

// Client issues chat completions with bounded retry.
type Client struct {
	client *httpclient.Client
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generate: APIKey is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("generate: build client: %w", err)
	}
	return &Client{client: client, cfg: cfg, logger: logger}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate sends one prompt and returns the completion text, retrying
// transient failures with exponential backoff. An empty completion counts as
// a failure.
func (c *Client) Generate(ctx context.Context, model, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.Backoff << (attempt - 1)
			c.logger.Debug("retrying completion", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.complete(ctx, model, prompt)
		if err == nil && text != "" {
			return text, nil
		}
		if err == nil {
			err = fmt.Errorf("provider returned an empty completion")
		}
		lastErr = err
		c.logger.Warn("completion attempt failed", "attempt", attempt+1, "model", model, "err", err)
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model:    model,
		Messages: []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.AppName != "" {
		req.Header.Set("X-Title", c.cfg.AppName)
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// SelectIndex asks the model to choose among n candidates and parses its
// answer as a zero-based index. Used for pick-one protocols where the model
// is instructed to answer with a bare number.
func (c *Client) SelectIndex(ctx context.Context, model, prompt string, n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("no candidates to select from")
	}

	text, err := c.Generate(ctx, model, prompt)
	if err != nil {
		return 0, err
	}

	idx, err := parseIndex(text)
	if err != nil {
		return 0, err
	}
	if idx < 0 || idx >= n {
		return 0, fmt.Errorf("selected index %d out of range [0,%d)", idx, n)
	}
	return idx, nil
}

// parseIndex extracts the first integer from a completion, tolerating
// surrounding prose.
func parseIndex(text string) (int, error) {
	start := -1
	for i, r := range text {
		if r >= '0' && r <= '9' {
			start = i
			break
		}
	}
	if start == -1 {
		return 0, fmt.Errorf("no index found in completion %q", truncate(text, 64))
	}
	end := start
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	return strconv.Atoi(text[start:end])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
