package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig mirrors the environment variables WithEnv understands.
type envConfig struct {
	Port          string `env:"PORT"`
	Environment   string `env:"ENVIRONMENT"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`

	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"CONTENT_DB_SCHEMA"`
	AutoMigrate bool   `env:"AUTO_MIGRATE"`

	ZiflowBaseURL string        `env:"ZIFLOW_BASE_URL"`
	ZiflowAPIKey  string        `env:"ZIFLOW_API_KEY"`
	ZiflowTimeout time.Duration `env:"ZIFLOW_TIMEOUT"`

	GenerationURL     string        `env:"GENERATION_URL"`
	GenerationAPIKey  string        `env:"GENERATION_API_KEY"`
	GenerationModel   string        `env:"GENERATION_MODEL"`
	GenerationTimeout time.Duration `env:"GENERATION_TIMEOUT"`

	MediaURL     string        `env:"MEDIA_URL"`
	MediaAPIKey  string        `env:"MEDIA_API_KEY"`
	MediaTimeout time.Duration `env:"MEDIA_TIMEOUT"`

	StorageURL        string `env:"STORAGE_URL"`
	S3Region          string `env:"S3_REGION"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3PublicBaseURL   string `env:"S3_PUBLIC_BASE_URL"`
	S3EnableSSE       bool   `env:"S3_ENABLE_SSE"`
	S3SSEAlgorithm    string `env:"S3_SSE_ALGORITHM"`
	S3SSEKMSKeyID     string `env:"S3_SSE_KMS_KEY_ID"`
	AWSRegion         string `env:"AWS_REGION"`
	AWSAccessKeyID    string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey      string `env:"AWS_SECRET_ACCESS_KEY"`

	PublicURLMode string `env:"PUBLIC_URL_MODE"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	HTMLCacheTTL  time.Duration `env:"HTML_CACHE_TTL"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE"`

	AuthMode      string `env:"AUTH_MODE"`
	APIKeySHA256  string `env:"API_KEY_SHA256"`
	JWTSecret     string `env:"JWT_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-separator:","`
}

// WithEnv applies environment variable overrides. Unset variables keep the
// current value.
//
// Database:
//
//	DATABASE_URL - "memory" (default) or "postgres://..." / "postgresql://..."
//
// Storage:
//
//	STORAGE_URL - one of:
//	              - "memory://" - In-memory storage (default)
//	              - "s3://bucket?region=us-east-1&endpoint=...&path_style=true"
//	              - "minio://host:9000/bucket?ssl=false"
//	S3_ACCESS_KEY_ID / S3_SECRET_ACCESS_KEY (or the AWS_* equivalents) supply credentials.
//	S3_ENABLE_SSE, S3_SSE_ALGORITHM and S3_SSE_KMS_KEY_ID enable server-side encryption.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var e envConfig
		if err := cleanenv.ReadEnv(&e); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}

		set(&c.Port, e.Port)
		set(&c.Environment, e.Environment)
		set(&c.PublicBaseURL, strings.TrimSuffix(e.PublicBaseURL, "/"))

		if err := applyDatabaseURL(c, e.DatabaseURL); err != nil {
			return err
		}
		set(&c.DBSchema, e.DBSchema)
		c.AutoMigrate = c.AutoMigrate || e.AutoMigrate

		set(&c.Ziflow.BaseURL, e.ZiflowBaseURL)
		set(&c.Ziflow.APIKey, e.ZiflowAPIKey)
		setDuration(&c.Ziflow.Timeout, e.ZiflowTimeout)

		set(&c.Generation.BaseURL, e.GenerationURL)
		set(&c.Generation.APIKey, e.GenerationAPIKey)
		set(&c.Generation.Model, e.GenerationModel)
		setDuration(&c.Generation.Timeout, e.GenerationTimeout)

		set(&c.Media.BaseURL, e.MediaURL)
		set(&c.Media.APIKey, e.MediaAPIKey)
		setDuration(&c.Media.Timeout, e.MediaTimeout)

		set(&c.Storage.Region, e.AWSRegion)
		set(&c.Storage.Region, e.S3Region)
		set(&c.Storage.AccessKeyID, e.AWSAccessKeyID)
		set(&c.Storage.AccessKeyID, e.S3AccessKeyID)
		set(&c.Storage.SecretAccessKey, e.AWSSecretKey)
		set(&c.Storage.SecretAccessKey, e.S3SecretAccessKey)
		set(&c.Storage.PublicBaseURL, e.S3PublicBaseURL)
		c.Storage.EnableSSE = c.Storage.EnableSSE || e.S3EnableSSE
		set(&c.Storage.SSEAlgorithm, e.S3SSEAlgorithm)
		set(&c.Storage.SSEKMSKeyID, e.S3SSEKMSKeyID)
		if err := applyStorageURL(c, e.StorageURL); err != nil {
			return err
		}

		set(&c.PublicURLMode, e.PublicURLMode)

		set(&c.RedisAddr, e.RedisAddr)
		set(&c.RedisPassword, e.RedisPassword)
		setDuration(&c.HTMLCacheTTL, e.HTMLCacheTTL)

		set(&c.AMQPURL, e.AMQPURL)
		set(&c.AMQPExchange, e.AMQPExchange)

		set(&c.AuthMode, strings.ToLower(e.AuthMode))
		set(&c.APIKeySHA256, e.APIKeySHA256)
		set(&c.JWTSecret, e.JWTSecret)
		set(&c.WebhookSecret, e.WebhookSecret)

		if len(e.CORSAllowedOrigins) > 0 {
			c.CORSAllowedOrigins = e.CORSAllowedOrigins
		}
		return nil
	}
}

func set(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v > 0 {
		*dst = v
	}
}

// applyDatabaseURL auto-detects the database type from the URL
func applyDatabaseURL(c *ServerConfig, dbURL string) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory":
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageURL configures the upload sink from STORAGE_URL
func applyStorageURL(c *ServerConfig, raw string) error {
	if raw == "" {
		return nil
	}
	if raw == "memory" || raw == "memory://" {
		c.Storage.Type = StorageMemory
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	q := u.Query()

	switch u.Scheme {
	case StorageS3:
		if u.Host == "" {
			return fmt.Errorf("bucket name cannot be empty in STORAGE_URL")
		}
		c.Storage.Type = StorageS3
		c.Storage.Bucket = u.Host
		set(&c.Storage.Region, q.Get("region"))
		set(&c.Storage.Endpoint, q.Get("endpoint"))
		c.Storage.UsePathStyle = queryBool(q, "path_style", c.Storage.UsePathStyle)

	case StorageMinio:
		bucket := strings.Trim(u.Path, "/")
		if u.Host == "" || bucket == "" {
			return fmt.Errorf("STORAGE_URL must look like minio://host:port/bucket")
		}
		c.Storage.Type = StorageMinio
		c.Storage.Endpoint = u.Host
		c.Storage.Bucket = bucket
		set(&c.Storage.Region, q.Get("region"))
		c.Storage.UseSSL = queryBool(q, "ssl", c.Storage.UseSSL)

	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 's3://...', or 'minio://...')", raw)
	}

	set(&c.Storage.PublicBaseURL, q.Get("public_base_url"))
	c.Storage.CreateBucket = queryBool(q, "create_bucket", c.Storage.CreateBucket)
	return nil
}

func queryBool(q url.Values, key string, fallback bool) bool {
	if b, err := strconv.ParseBool(q.Get(key)); err == nil {
		return b
	}
	return fallback
}
