// Package generation holds HTTP clients for the text and media generation backends.
package generation

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

	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com"
	DefaultModel     = "claude-3-5-sonnet-latest"
	DefaultMaxTokens = 8192

	apiVersion   = "2023-06-01"
	maxErrorBody = 64 << 10
)

// Config configures a text Client
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client generates text through a messages-style completion API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
}

var _ mlrcontent.Generator = (*Client)(nil)

// New creates a text generation client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &mlrcontent.ConfigurationError{Key: "GENERATION_API_KEY"}
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = DefaultMaxTokens
	}
	if c.httpClient == nil {
		c.httpClient = newHTTPClient(cfg.Timeout)
	}
	return c, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate sends prompt as a single user message and returns the concatenated text blocks.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body := messagesRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	}
	headers := http.Header{}
	headers.Set("x-api-key", c.apiKey)
	headers.Set("anthropic-version", apiVersion)

	var resp messagesResponse
	if err := doJSON(ctx, c.httpClient, "generation", "generate", c.baseURL+"/v1/messages", headers, body, &resp); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if resp.StopReason == "max_tokens" {
		return "", &mlrcontent.UpstreamServiceError{Service: "generation", Op: "generate", Err: errors.New("response truncated at max_tokens")}
	}
	return b.String(), nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = mlrcontent.DefaultUpstreamTimeout
	}
	return &http.Client{Timeout: timeout}
}

// doJSON posts in as JSON and decodes the response into out. Non-2xx
// responses become *mlrcontent.UpstreamServiceError with the body verbatim.
func doJSON(ctx context.Context, httpClient *http.Client, service, op, endpoint string, headers http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return &mlrcontent.UpstreamServiceError{Service: service, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &mlrcontent.UpstreamServiceError{Service: service, Op: op, StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &mlrcontent.UpstreamServiceError{Service: service, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
