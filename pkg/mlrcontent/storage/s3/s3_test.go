package s3

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

type fakeS3 struct {
	mu       sync.Mutex
	requests []string
	objects  map[string]string
	types    map[string]string
	sse      map[string]string
	buckets  map[string]bool
}

func newFakeS3(t *testing.T) (*fakeS3, *httptest.Server) {
	f := &fakeS3{objects: map[string]string{}, types: map[string]string{}, sse: map[string]string{}, buckets: map[string]bool{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.requests = append(f.requests, r.Method+" "+r.URL.Path)

		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/"), "/", 2)
		switch {
		case len(parts) == 1 && r.Method == http.MethodHead:
			if !f.buckets[parts[0]] {
				w.WriteHeader(http.StatusNotFound)
			}
		case len(parts) == 1 && r.Method == http.MethodPut:
			f.buckets[parts[0]] = true
		case len(parts) == 2 && r.Method == http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			f.objects[parts[1]] = string(body)
			f.types[parts[1]] = r.Header.Get("Content-Type")
			f.sse[parts[1]] = r.Header.Get("X-Amz-Server-Side-Encryption") + "|" + r.Header.Get("X-Amz-Server-Side-Encryption-Aws-Kms-Key-Id")
			w.Header().Set("ETag", `"etag"`)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func testConfig(endpoint string) Config {
	return Config{
		Region:          "us-east-1",
		Bucket:          "mlr-content",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		Endpoint:        endpoint,
		UsePathStyle:    true,
	}
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	var cfgErr *mlrcontent.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "S3_BUCKET", cfgErr.Key)
}

func TestNew_Defaults(t *testing.T) {
	sink, err := New(context.Background(), Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", sink.config.Region)
	assert.Equal(t, time.Hour, sink.presignDuration)
}

func TestSink_PresignedURL(t *testing.T) {
	cfg := testConfig("http://localhost:9000")
	cfg.PresignDuration = 600
	sink, err := New(context.Background(), cfg)
	require.NoError(t, err)

	u, err := sink.URL(context.Background(), "content/abc.html")
	require.NoError(t, err)
	assert.Contains(t, u, "/mlr-content/content/abc.html")
	assert.Contains(t, u, "X-Amz-Signature=")
	assert.Contains(t, u, "X-Amz-Expires=600")
}

func TestSink_Upload(t *testing.T) {
	fake, srv := newFakeS3(t)
	cfg := testConfig(srv.URL)
	cfg.PublicBaseURL = "https://cdn.example/"
	sink, err := New(context.Background(), cfg)
	require.NoError(t, err)

	html := "<html><body>Hello</body></html>"
	u, err := sink.Upload(context.Background(), "content/abc.html", strings.NewReader(html), int64(len(html)), "text/html")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/content/abc.html", u)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.requests, "PUT /mlr-content/content/abc.html")
	assert.Equal(t, "text/html", fake.types["content/abc.html"])
}

func TestSink_UploadServerSideEncryption(t *testing.T) {
	fake, srv := newFakeS3(t)
	cfg := testConfig(srv.URL)
	cfg.EnableSSE = true
	cfg.SSEAlgorithm = "aws:kms"
	cfg.SSEKMSKeyID = "key-1"
	sink, err := New(context.Background(), cfg)
	require.NoError(t, err)

	_, err = sink.Upload(context.Background(), "content/enc.html", strings.NewReader("x"), 1, "text/html")
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "aws:kms|key-1", fake.sse["content/enc.html"])
}

func TestSink_UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sink, err := New(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)
	_, err = sink.Upload(context.Background(), "k", strings.NewReader("x"), 1, "text/plain")
	var upstream *mlrcontent.UpstreamServiceError
	assert.ErrorAs(t, err, &upstream)

	_, err = sink.Upload(context.Background(), "", strings.NewReader("x"), 1, "")
	var verr *mlrcontent.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestNew_CreatesMissingBucket(t *testing.T) {
	fake, srv := newFakeS3(t)
	cfg := testConfig(srv.URL)
	cfg.CreateBucketIfNotExist = true

	_, err := New(context.Background(), cfg)
	require.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.True(t, fake.buckets["mlr-content"])
	assert.Equal(t, []string{"HEAD /mlr-content", "PUT /mlr-content"}, fake.requests)
}
