package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// ErrObjectNotFound is returned by Get for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

// Object is a stored upload.
type Object struct {
	Data        []byte
	ContentType string
}

// Sink is an in-memory implementation of mlrcontent.UploadSink
type Sink struct {
	mu      sync.RWMutex
	baseURL string
	objects map[string]Object
}

var _ mlrcontent.UploadSink = (*Sink)(nil)

// New creates a sink whose URLs are baseURL + "/" + key.
func New(baseURL string) *Sink {
	return &Sink{
		baseURL: strings.TrimRight(baseURL, "/"),
		objects: make(map[string]Object),
	}
}

// Upload stores the content of r under key
func (s *Sink) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", mlrcontent.NewValidationError("key", "object key is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	s.mu.Lock()
	s.objects[key] = Object{Data: data, ContentType: contentType}
	s.mu.Unlock()

	return s.baseURL + "/" + key, nil
}

// Get returns a copy of the object stored under key
func (s *Sink) Get(key string) (Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return Object{}, ErrObjectNotFound
	}
	data := make([]byte, len(obj.Data))
	copy(data, obj.Data)
	return Object{Data: data, ContentType: obj.ContentType}, nil
}
