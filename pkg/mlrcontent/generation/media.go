package generation

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// MediaConfig configures a MediaClient
type MediaConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// MediaClient asks a media backend for an image or video and returns its hosted URL.
type MediaClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ mlrcontent.MediaGenerator = (*MediaClient)(nil)

// NewMediaClient creates a media client. BaseURL is required.
func NewMediaClient(cfg MediaConfig) (*MediaClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, &mlrcontent.ConfigurationError{Key: "MEDIA_URL"}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.Timeout)
	}
	return &MediaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}, nil
}

type mediaRequest struct {
	Prompt string               `json:"prompt"`
	Kind   mlrcontent.MediaKind `json:"kind"`
}

type mediaResponse struct {
	URL string `json:"url"`
}

// GenerateMedia returns the URL of the generated asset.
func (c *MediaClient) GenerateMedia(ctx context.Context, kind mlrcontent.MediaKind, prompt string) (string, error) {
	if kind != mlrcontent.MediaKindImage && kind != mlrcontent.MediaKindVideo {
		return "", mlrcontent.NewValidationError("kind", "unknown media kind %q", kind)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", mlrcontent.NewValidationError("prompt", "prompt is required")
	}

	headers := http.Header{}
	if c.apiKey != "" {
		headers.Set("Authorization", "Bearer "+c.apiKey)
	}
	var resp mediaResponse
	if err := doJSON(ctx, c.httpClient, "media", "generate "+string(kind), c.baseURL+"/generate", headers, mediaRequest{Prompt: prompt, Kind: kind}, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", &mlrcontent.UpstreamServiceError{Service: "media", Op: "generate " + string(kind), Err: errors.New("response has no url")}
	}
	return resp.URL, nil
}
