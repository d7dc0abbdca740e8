package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"

	"secscan/config"
	"secscan/logger"
	"secscan/models"
)

// ErrUnavailable is returned when the LLM endpoint is not configured.
var ErrUnavailable = errors.New("llm analyzer unavailable")

// Client talks to an OpenAI-compatible chat-completions endpoint. Transient
// failures (connection errors, 429, 5xx) are retried with bounded
// exponential backoff; anything else fails immediately.
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiKey     string
	maxRetries uint64
}

// NewClient builds a Client from injected configuration. The API key is
// read once from the configured environment variable; a missing key is
// allowed for local endpoints.
func NewClient(cfg *config.Config) *Client {
	retries := cfg.LLM.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.LLMTimeout()},
		baseURL:    strings.TrimRight(cfg.LLM.BaseURL, "/"),
		model:      cfg.LLM.Model,
		apiKey:     os.Getenv(cfg.LLM.APIKeyEnv),
		maxRetries: uint64(retries),
	}
}

// Model exposes the configured model identifier for cache fingerprinting.
func (c *Client) Model() string {
	return c.model
}

// IsAvailable reports whether the client has an endpoint to talk to.
func (c *Client) IsAvailable() bool {
	return c.baseURL != "" && c.model != ""
}

// Status describes the client for diagnostics. No probe request is made;
// availability is a configuration property.
func (c *Client) Status() models.AnalyzerStatus {
	status := models.AnalyzerStatus{Name: "llm"}
	if !c.IsAvailable() {
		status.Error = "llm.base_url and llm.model must be configured"
		status.InstallGuidance = "point llm.base_url at an OpenAI-compatible endpoint and set llm.model"
		return status
	}
	status.Available = true
	status.Version = c.model
	return status
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

// transientStatus reports whether an HTTP status is worth retrying.
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// Complete sends one chat request and returns the assistant message text.
func (c *Client) Complete(ctx context.Context, systemMsg, userPrompt string) (string, error) {
	if !c.IsAvailable() {
		return "", ErrUnavailable
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemMsg},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling chat request: %w", err)
	}

	operation := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", backoff.Permanent(fmt.Errorf("building chat request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", fmt.Errorf("llm request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return "", fmt.Errorf("reading llm response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("llm endpoint returned %d: %s", resp.StatusCode, truncate(string(raw), 300))
			if transientStatus(resp.StatusCode) {
				return "", err
			}
			return "", backoff.Permanent(err)
		}

		content := gjson.GetBytes(raw, "choices.0.message.content").String()
		if content == "" {
			return "", backoff.Permanent(fmt.Errorf("llm response contained no message content"))
		}
		return content, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(500*time.Millisecond),
			backoff.WithMaxInterval(10*time.Second),
		), c.maxRetries),
		ctx,
	)

	content, err := backoff.RetryWithData(operation, policy)
	if err != nil {
		return "", err
	}
	logger.Debug("llm completion received (%d chars)", len(content))
	return content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
