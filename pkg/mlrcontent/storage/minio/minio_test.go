package minio

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

func TestNew_RequiresEndpointAndBucket(t *testing.T) {
	var cfgErr *mlrcontent.ConfigurationError

	_, err := New(context.Background(), Config{Bucket: "b"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "S3_ENDPOINT", cfgErr.Key)

	_, err = New(context.Background(), Config{Endpoint: "localhost:9000"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "S3_BUCKET", cfgErr.Key)
}

func TestSink_PresignedURL(t *testing.T) {
	sink, err := New(context.Background(), Config{
		Endpoint:  "localhost:9000",
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "mlr-content",
	})
	require.NoError(t, err)

	u, err := sink.URL(context.Background(), "content/abc.html")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://localhost:9000/mlr-content/content/abc.html?"), u)
	assert.Contains(t, u, "X-Amz-Signature=")
}

func TestSink_Upload(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotType string
		gotBody string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		body, _ := io.ReadAll(r.Body)
		gotPath, gotType, gotBody = r.URL.Path, r.Header.Get("Content-Type"), string(body)
		w.Header().Set("ETag", `"etag"`)
	}))
	defer srv.Close()

	sink, err := New(context.Background(), Config{
		Endpoint:      strings.TrimPrefix(srv.URL, "http://"),
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		Bucket:        "mlr-content",
		PublicBaseURL: "https://cdn.example",
	})
	require.NoError(t, err)

	u, err := sink.Upload(context.Background(), "uploads/logo.png", strings.NewReader("png-bytes"), 9, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/uploads/logo.png", u)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/mlr-content/uploads/logo.png", gotPath)
	assert.Equal(t, "image/png", gotType)
	assert.Contains(t, gotBody, "png-bytes")
}
