// Package urlstrategy builds the public URL the review service fetches content from.
package urlstrategy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// StrategyType selects how public URLs are produced
type StrategyType string

const (
	// StrategyServe points at this server's /serve-content/{id} route
	StrategyServe StrategyType = "serve"

	// StrategyUpload pushes an HTML snapshot to an upload sink and uses its URL
	StrategyUpload StrategyType = "upload"
)

// ServeStrategy routes the review service back through the application.
type ServeStrategy struct {
	BaseURL string
}

// NewServeStrategy creates a serve strategy rooted at baseURL
func NewServeStrategy(baseURL string) *ServeStrategy {
	return &ServeStrategy{BaseURL: strings.TrimSuffix(baseURL, "/")}
}

// PublicURL returns {BaseURL}/serve-content/{id}
func (s *ServeStrategy) PublicURL(ctx context.Context, item *mlrcontent.ContentItem) (string, error) {
	if s.BaseURL == "" {
		return "", &mlrcontent.ConfigurationError{Key: "PUBLIC_BASE_URL"}
	}
	return fmt.Sprintf("%s/serve-content/%s", s.BaseURL, item.ID), nil
}

// UploadStrategy snapshots the current HTML into an upload sink.
type UploadStrategy struct {
	Sink mlrcontent.UploadSink
}

// NewUploadStrategy creates an upload strategy over sink
func NewUploadStrategy(sink mlrcontent.UploadSink) *UploadStrategy {
	return &UploadStrategy{Sink: sink}
}

// PublicURL uploads the item's current HTML and returns the sink's URL.
// The key is derived from the HTML, so retries of the same version reuse it.
func (s *UploadStrategy) PublicURL(ctx context.Context, item *mlrcontent.ContentItem) (string, error) {
	key := SnapshotKey(item)
	return s.Sink.Upload(ctx, key, strings.NewReader(item.CurrentHTML), int64(len(item.CurrentHTML)), "text/html; charset=utf-8")
}

// SnapshotKey returns content/{id}/{digest}.html for the item's current HTML.
func SnapshotKey(item *mlrcontent.ContentItem) string {
	sum := sha256.Sum256([]byte(item.CurrentHTML))
	return fmt.Sprintf("content/%s/%s.html", item.ID, hex.EncodeToString(sum[:6]))
}

// Config holds configuration for strategy creation
type Config struct {
	Type          StrategyType
	PublicBaseURL string                // For serve strategy
	Sink          mlrcontent.UploadSink // For upload strategy
}

// New creates a PublicURLBuilder from config. An empty type selects serve.
func New(config Config) (mlrcontent.PublicURLBuilder, error) {
	switch config.Type {
	case StrategyServe, "":
		if config.PublicBaseURL == "" {
			return nil, &mlrcontent.ConfigurationError{Key: "PUBLIC_BASE_URL", Reason: "required for the serve url strategy"}
		}
		return NewServeStrategy(config.PublicBaseURL), nil
	case StrategyUpload:
		if config.Sink == nil {
			return nil, &mlrcontent.ConfigurationError{Key: "STORAGE_URL", Reason: "required for the upload url strategy"}
		}
		return NewUploadStrategy(config.Sink), nil
	default:
		return nil, &mlrcontent.ConfigurationError{Key: "PUBLIC_URL_MODE", Reason: fmt.Sprintf("unknown url strategy %q", config.Type)}
	}
}
