// Package config assembles a content hub from declarative settings.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	rediscache "github.com/tendant/mlr-content/pkg/mlrcontent/cache/redis"
	amqpevents "github.com/tendant/mlr-content/pkg/mlrcontent/events/amqp"
	"github.com/tendant/mlr-content/pkg/mlrcontent/generation"
	"github.com/tendant/mlr-content/pkg/mlrcontent/repo/memory"
	repopg "github.com/tendant/mlr-content/pkg/mlrcontent/repo/postgres"
	memorystorage "github.com/tendant/mlr-content/pkg/mlrcontent/storage/memory"
	miniostorage "github.com/tendant/mlr-content/pkg/mlrcontent/storage/minio"
	s3storage "github.com/tendant/mlr-content/pkg/mlrcontent/storage/s3"
	"github.com/tendant/mlr-content/pkg/mlrcontent/urlstrategy"
	"github.com/tendant/mlr-content/pkg/mlrcontent/ziflow"
)

// Authentication modes for the client facing API.
const (
	AuthNone   = "none"
	AuthAPIKey = "apikey"
	AuthJWT    = "jwt"
)

// Storage backend types.
const (
	StorageMemory = "memory"
	StorageS3     = "s3"
	StorageMinio  = "minio"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:          "8080",
		Environment:   "development",
		PublicBaseURL: "http://localhost:8080",
		DatabaseType:  "memory",
		DBSchema:      "mlr",
		Ziflow: ZiflowConfig{
			BaseURL: ziflow.DefaultBaseURL,
			Timeout: mlrcontent.DefaultUpstreamTimeout,
		},
		Generation: GenerationConfig{
			BaseURL: generation.DefaultBaseURL,
			Model:   generation.DefaultModel,
			Timeout: mlrcontent.DefaultUpstreamTimeout,
		},
		Storage:       StorageConfig{Type: StorageMemory, Region: "us-east-1"},
		PublicURLMode: string(urlstrategy.StrategyServe),
		HTMLCacheTTL:  rediscache.DefaultTTL,
		AMQPExchange:  amqpevents.DefaultExchange,
		AuthMode:      AuthNone,
	}
}

// ServerConfig represents server configuration for the content hub
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// PublicBaseURL is the externally reachable origin of this server.
	PublicBaseURL string

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string
	AutoMigrate  bool

	Ziflow     ZiflowConfig
	Generation GenerationConfig
	Media      MediaConfig
	Storage    StorageConfig

	// PublicURLMode selects how the review service reaches content: serve or upload.
	PublicURLMode string

	RedisAddr     string
	RedisPassword string
	HTMLCacheTTL  time.Duration

	AMQPURL      string
	AMQPExchange string

	// Authentication
	AuthMode      string
	APIKeySHA256  string
	JWTSecret     string
	WebhookSecret string

	CORSAllowedOrigins []string
}

// ZiflowConfig configures the review service client
type ZiflowConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GenerationConfig configures the text generation client
type GenerationConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// MediaConfig configures the optional media backend
type MediaConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// StorageConfig configures the upload sink
type StorageConfig struct {
	Type            string // "memory", "s3", "minio"
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	UseSSL          bool
	PublicBaseURL   string
	CreateBucket    bool

	// Server-side encryption for s3 uploads
	EnableSSE    bool
	SSEAlgorithm string // AES256 or aws:kms
	SSEKMSKeyID  string
}

// IsDevelopment reports whether the server runs in development mode.
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageS3, StorageMinio:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("bucket is required for %s storage", c.Storage.Type)
		}
		if c.Storage.Type == StorageMinio && c.Storage.Endpoint == "" {
			return errors.New("endpoint is required for minio storage")
		}
		if c.Storage.EnableSSE && !slices.Contains([]string{"", "AES256", "aws:kms"}, c.Storage.SSEAlgorithm) {
			return fmt.Errorf("sse_algorithm must be AES256 or aws:kms, got: %s", c.Storage.SSEAlgorithm)
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	switch urlstrategy.StrategyType(c.PublicURLMode) {
	case urlstrategy.StrategyServe:
		if c.PublicBaseURL == "" {
			return errors.New("public_base_url is required for the serve url mode")
		}
	case urlstrategy.StrategyUpload:
	default:
		return fmt.Errorf("public_url_mode must be 'serve' or 'upload', got: %s", c.PublicURLMode)
	}

	if !slices.Contains([]string{AuthNone, AuthAPIKey, AuthJWT}, c.AuthMode) {
		return fmt.Errorf("auth_mode must be one of none, apikey, jwt, got: %s", c.AuthMode)
	}
	if c.AuthMode == AuthAPIKey && c.APIKeySHA256 == "" {
		return errors.New("api_key_sha256 is required when auth_mode is apikey")
	}
	if c.AuthMode == AuthJWT && c.JWTSecret == "" {
		return errors.New("jwt_secret is required when auth_mode is jwt")
	}

	return nil
}

// Services is the assembled set of components the HTTP layer serves.
type Services struct {
	Store     *mlrcontent.ContentStore
	Workflow  *mlrcontent.ApprovalWorkflow
	Ingestor  *mlrcontent.WebhookIngestor
	Optimizer *mlrcontent.FeedbackOptimizer

	Review mlrcontent.ReviewService
	Upload mlrcontent.UploadSink
	// Media is nil when no media backend is configured.
	Media mlrcontent.MediaGenerator

	// Ready reports whether backing stores are reachable.
	Ready func(ctx context.Context) error

	closers []func() error
}

// Close releases connections opened by BuildServices.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// BuildServices creates every component from the server configuration. The
// review service and generation credentials are required.
func (c *ServerConfig) BuildServices(ctx context.Context) (_ *Services, err error) {
	svc := &Services{Ready: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			_ = svc.Close()
		}
	}()

	review, err := ziflow.New(ziflow.Config{BaseURL: c.Ziflow.BaseURL, APIKey: c.Ziflow.APIKey, Timeout: c.Ziflow.Timeout})
	if err != nil {
		return nil, err
	}
	svc.Review = review

	generator, err := generation.New(generation.Config{
		BaseURL: c.Generation.BaseURL,
		APIKey:  c.Generation.APIKey,
		Model:   c.Generation.Model,
		Timeout: c.Generation.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if c.Media.BaseURL != "" {
		media, err := generation.NewMediaClient(generation.MediaConfig{BaseURL: c.Media.BaseURL, APIKey: c.Media.APIKey, Timeout: c.Media.Timeout})
		if err != nil {
			return nil, err
		}
		svc.Media = media
	}

	repo, feedbackRepo, err := c.buildRepository(ctx, svc)
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	upload, err := c.buildStorage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build storage: %w", err)
	}
	svc.Upload = upload

	var storeOpts []mlrcontent.StoreOption
	var ingestOpts []mlrcontent.IngestorOption

	if c.RedisAddr != "" {
		client, err := rediscache.Connect(ctx, c.RedisAddr, c.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		svc.closers = append(svc.closers, client.Close)
		storeOpts = append(storeOpts, mlrcontent.WithHTMLCache(rediscache.New(client, rediscache.Config{TTL: c.HTMLCacheTTL})))
		slog.Info("HTML cache enabled", "redis_addr", c.RedisAddr, "ttl", c.HTMLCacheTTL)
	}

	if c.AMQPURL != "" {
		sink, closeFn, err := amqpevents.Dial(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to amqp: %w", err)
		}
		svc.closers = append(svc.closers, closeFn)
		storeOpts = append(storeOpts, mlrcontent.WithEventSink(sink))
		ingestOpts = append(ingestOpts, mlrcontent.WithIngestorEventSink(sink))
		slog.Info("Event publishing enabled", "exchange", c.AMQPExchange)
	}

	svc.Store, err = mlrcontent.NewContentStore(repo, storeOpts...)
	if err != nil {
		return nil, err
	}

	urls, err := urlstrategy.New(urlstrategy.Config{
		Type:          urlstrategy.StrategyType(c.PublicURLMode),
		PublicBaseURL: c.PublicBaseURL,
		Sink:          upload,
	})
	if err != nil {
		return nil, err
	}

	svc.Workflow, err = mlrcontent.NewApprovalWorkflow(svc.Store, review, urls, c.Ziflow.Timeout)
	if err != nil {
		return nil, err
	}

	ingestOpts = append(ingestOpts, mlrcontent.WithDecisionPropagation(svc.Store))
	svc.Ingestor, err = mlrcontent.NewWebhookIngestor(feedbackRepo, ingestOpts...)
	if err != nil {
		return nil, err
	}

	svc.Optimizer, err = mlrcontent.NewFeedbackOptimizer(generator, c.Generation.Timeout)
	if err != nil {
		return nil, err
	}

	return svc, nil
}

// buildRepository creates the content and feedback repositories
func (c *ServerConfig) buildRepository(ctx context.Context, svc *Services) (mlrcontent.Repository, mlrcontent.FeedbackRepository, error) {
	switch c.DatabaseType {
	case "memory":
		repo := memory.New()
		return repo, repo, nil
	case "postgres":
		pool, err := newPool(ctx, c.DatabaseURL, c.DBSchema)
		if err != nil {
			return nil, nil, err
		}
		svc.closers = append(svc.closers, func() error { pool.Close(); return nil })
		svc.Ready = pool.Ping

		if c.AutoMigrate {
			if err := repopg.Migrate(ctx, pool); err != nil {
				return nil, nil, fmt.Errorf("failed to migrate: %w", err)
			}
			slog.Info("Database schema applied", "schema", c.DBSchema)
		}
		repo := repopg.NewWithPool(pool)
		return repo, repo, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

func newPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	return pool, nil
}

// PingPostgres verifies connectivity to Postgres with the given schema as search_path.
func PingPostgres(ctx context.Context, databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	pool, err := newPool(ctx, databaseURL, schema)
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// buildStorage creates the upload sink
func (c *ServerConfig) buildStorage(ctx context.Context) (mlrcontent.UploadSink, error) {
	s := c.Storage
	switch s.Type {
	case StorageMemory:
		base := s.PublicBaseURL
		if base == "" {
			base = "memory://uploads"
		}
		return memorystorage.New(base), nil

	case StorageS3:
		return s3storage.New(ctx, s3Config(s))

	case StorageMinio:
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:      s.Endpoint,
			AccessKey:     s.AccessKeyID,
			SecretKey:     s.SecretAccessKey,
			Bucket:        s.Bucket,
			Region:        s.Region,
			UseSSL:        s.UseSSL,
			PublicBaseURL: s.PublicBaseURL,
			EnsureBucket:  s.CreateBucket,
		})

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", s.Type)
	}
}

func s3Config(s StorageConfig) s3storage.Config {
	cfg := s3storage.Config{
		Region:                 s.Region,
		Bucket:                 s.Bucket,
		AccessKeyID:            s.AccessKeyID,
		SecretAccessKey:        s.SecretAccessKey,
		Endpoint:               s.Endpoint,
		UsePathStyle:           s.UsePathStyle,
		PublicBaseURL:          s.PublicBaseURL,
		CreateBucketIfNotExist: s.CreateBucket,
		EnableSSE:              s.EnableSSE,
		SSEAlgorithm:           s.SSEAlgorithm,
		SSEKMSKeyID:            s.SSEKMSKeyID,
	}
	if cfg.EnableSSE && cfg.SSEAlgorithm == "" {
		cfg.SSEAlgorithm = "AES256"
	}
	return cfg
}
