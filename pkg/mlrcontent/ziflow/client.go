// Package ziflow is the HTTP client for the Ziflow review service.
package ziflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// DefaultBaseURL is the public Ziflow API root.
const DefaultBaseURL = "https://api.ziflow.io/v1"

const serviceName = "ziflow"

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 64 << 10

// Config configures a Client
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client calls the Ziflow API. Every method performs exactly one request and
// never retries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	timeout    time.Duration
}

var _ mlrcontent.ReviewService = (*Client)(nil)

// New creates a client. A missing API key is a configuration error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, &mlrcontent.ConfigurationError{Key: "ZIFLOW_API_KEY"}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, &mlrcontent.ConfigurationError{Key: "ZIFLOW_BASE_URL", Reason: err.Error()}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = mlrcontent.DefaultUpstreamTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		timeout:    timeout,
	}, nil
}

type createProofBody struct {
	Name       string        `json:"name"`
	Input      []proofSource `json:"input"`
	Message    string        `json:"message,omitempty"`
	FolderID   string        `json:"folder_id,omitempty"`
	WorkflowID string        `json:"workflow_template_id,omitempty"`
}

type proofSource struct {
	Source string `json:"source"`
}

// CreateProof asks Ziflow to create a proof from a publicly fetchable URL.
func (c *Client) CreateProof(ctx context.Context, req mlrcontent.CreateProofRequest) (*mlrcontent.Proof, error) {
	if req.SourceURL == "" {
		return nil, mlrcontent.NewValidationError("sourceUrl", "source url is required")
	}
	body := createProofBody{
		Name:       req.Name,
		Input:      []proofSource{{Source: req.SourceURL}},
		Message:    req.Message,
		FolderID:   req.FolderID,
		WorkflowID: req.WorkflowID,
	}
	var proof mlrcontent.Proof
	if err := c.do(ctx, "create proof", http.MethodPost, "/proofs", nil, body, &proof); err != nil {
		return nil, err
	}
	if proof.ID == "" {
		return nil, &mlrcontent.UpstreamServiceError{Service: serviceName, Op: "create proof", Err: errors.New("response has no proof id")}
	}
	return &proof, nil
}

// GetProof fetches a proof by id.
func (c *Client) GetProof(ctx context.Context, id string) (*mlrcontent.Proof, error) {
	if strings.TrimSpace(id) == "" {
		return nil, &mlrcontent.ValidationError{Field: "id", Err: mlrcontent.ErrMissingProofID}
	}
	var proof mlrcontent.Proof
	if err := c.do(ctx, "get proof", http.MethodGet, "/proofs/"+url.PathEscape(id), nil, nil, &proof); err != nil {
		return nil, err
	}
	return &proof, nil
}

// ListProofs returns one page of proofs.
func (c *Client) ListProofs(ctx context.Context, opts mlrcontent.ListProofsOptions) ([]mlrcontent.Proof, error) {
	query := url.Values{}
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		query.Set("size", strconv.Itoa(opts.PageSize))
	}
	if opts.FolderID != "" {
		query.Set("folder_id", opts.FolderID)
	}
	var proofs listOf[mlrcontent.Proof]
	if err := c.do(ctx, "list proofs", http.MethodGet, "/proofs", query, nil, &proofs); err != nil {
		return nil, err
	}
	return proofs, nil
}

// ListFolders returns the account's folders.
func (c *Client) ListFolders(ctx context.Context) ([]mlrcontent.Folder, error) {
	var folders listOf[mlrcontent.Folder]
	if err := c.do(ctx, "list folders", http.MethodGet, "/folders", nil, nil, &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// ListWorkflows returns the account's workflow templates.
func (c *Client) ListWorkflows(ctx context.Context) ([]mlrcontent.Workflow, error) {
	var workflows listOf[mlrcontent.Workflow]
	if err := c.do(ctx, "list workflows", http.MethodGet, "/workflow-templates", nil, nil, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

// listOf decodes either a bare JSON array or an envelope with a data array.
type listOf[T any] []T

func (l *listOf[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*l = items
		return nil
	}
	var envelope struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	*l = envelope.Data
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return &mlrcontent.TimeoutError{Op: serviceName + " " + op, Timeout: c.timeout, Err: err}
		}
		return &mlrcontent.UpstreamServiceError{Service: serviceName, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &mlrcontent.UpstreamServiceError{
			Service:    serviceName,
			Op:         op,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &mlrcontent.UpstreamServiceError{Service: serviceName, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
