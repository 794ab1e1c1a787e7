package minio

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// Config configures a MinIO upload sink
type Config struct {
	Endpoint  string // host:port, no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool

	// PublicBaseURL replaces presigned URLs when set.
	PublicBaseURL string
	URLExpiry     time.Duration

	EnsureBucket bool
}

// Sink implements mlrcontent.UploadSink for MinIO and other S3-compatible stores.
type Sink struct {
	client *minio.Client
	bucket string
	config Config
}

var _ mlrcontent.UploadSink = (*Sink)(nil)

// New connects to MinIO and, when EnsureBucket is set, creates the bucket if missing.
func New(ctx context.Context, config Config) (*Sink, error) {
	if config.Endpoint == "" {
		return nil, &mlrcontent.ConfigurationError{Key: "S3_ENDPOINT"}
	}
	if config.Bucket == "" {
		return nil, &mlrcontent.ConfigurationError{Key: "S3_BUCKET"}
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	if config.URLExpiry <= 0 {
		config.URLExpiry = time.Hour
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	if config.EnsureBucket {
		exists, err := client.BucketExists(ctx, config.Bucket)
		if err != nil {
			return nil, fmt.Errorf("check bucket: %w", err)
		}
		if !exists {
			if err := client.MakeBucket(ctx, config.Bucket, minio.MakeBucketOptions{Region: config.Region}); err != nil {
				return nil, fmt.Errorf("create bucket: %w", err)
			}
		}
	}
	return &Sink{client: client, bucket: config.Bucket, config: config}, nil
}

// Upload stores r under key and returns a URL for reading it back
func (s *Sink) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if key == "" {
		return "", mlrcontent.NewValidationError("key", "object key is required")
	}
	if size <= 0 {
		size = -1
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", &mlrcontent.UpstreamServiceError{Service: "minio", Op: "put object", Err: err}
	}
	return s.URL(ctx, key)
}

// URL returns the public or presigned GET URL for key.
func (s *Sink) URL(ctx context.Context, key string) (string, error) {
	if s.config.PublicBaseURL != "" {
		return strings.TrimRight(s.config.PublicBaseURL, "/") + "/" + key, nil
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.config.URLExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return u.String(), nil
}
