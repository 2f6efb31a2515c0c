package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Config is the agent provider configuration, consumed read-only.
type Config struct {
	APIKey      string  `json:"apiKey"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"baseUrl"`
	Enabled     bool    `json:"enabled"`
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// ConfigError is a malformed provider configuration. It is rejected before
// any network call and never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agent config: %s", e.Reason)
}

// TransportError is a network or timeout failure from the provider. The
// caller falls back to a default action; the game continues.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("agent transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Validate checks the credential shape and connection settings.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.APIKey, "sk-") {
		return &ConfigError{Reason: "api key must start with sk-"}
	}
	if len(c.APIKey) < 10 {
		return &ConfigError{Reason: "api key too short"}
	}
	if c.Model == "" {
		return &ConfigError{Reason: "model is required"}
	}
	if c.BaseURL != "" {
		if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
			return &ConfigError{Reason: fmt.Sprintf("invalid base url: %v", err)}
		}
	}
	return nil
}

// ConfigFromEnv builds a Config from environment variables.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:      os.Getenv("AGENT_API_KEY"),
		Model:       os.Getenv("AGENT_MODEL"),
		BaseURL:     os.Getenv("AGENT_BASE_URL"),
		Enabled:     os.Getenv("AGENT_API_KEY") != "" && os.Getenv("AGENT_ENABLED") != "false",
		MaxTokens:   1024,
		Temperature: 0.7,
	}
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20241022"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	return cfg
}

// Client handles communication with the model provider. It speaks the
// chat-completions wire format and returns the raw response body; envelope
// unwrapping is the parser's job.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a provider client. The config must validate first.
func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		// Model calls are throttled so a fast phase loop cannot hammer
		// the provider: 2 requests/second with a small burst.
		limiter: rate.NewLimiter(2, 4),
	}, nil
}

// chatMessage is one chat-completions message
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the chat-completions request body
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// Complete sends the prompt and returns the raw response text. The body may
// be any of the provider envelope shapes; ParseDecision accepts them all.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", &TransportError{Err: err}
	}

	req := chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
	}
	if req.Temperature == 0 {
		req.Temperature = 0.7
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", c.config.BaseURL), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.config.APIKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return "", &TransportError{Err: fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(respBody))}
	}

	return string(respBody), nil
}
