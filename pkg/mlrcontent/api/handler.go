// Package api exposes the content hub over HTTP.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// maxUploadBytes bounds multipart uploads held in memory.
const maxUploadBytes = 32 << 20

// Handler serves the content, review and generation endpoints.
type Handler struct {
	store     *mlrcontent.ContentStore
	workflow  *mlrcontent.ApprovalWorkflow
	ingestor  *mlrcontent.WebhookIngestor
	optimizer *mlrcontent.FeedbackOptimizer

	review mlrcontent.ReviewService
	upload mlrcontent.UploadSink
	media  mlrcontent.MediaGenerator

	webhookSecret string
	now           func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithReviewService enables the /ziflow proxy routes.
func WithReviewService(review mlrcontent.ReviewService) Option {
	return func(h *Handler) { h.review = review }
}

// WithUploadSink enables POST /upload.
func WithUploadSink(sink mlrcontent.UploadSink) Option {
	return func(h *Handler) { h.upload = sink }
}

// WithMediaGenerator enables POST /generate-media.
func WithMediaGenerator(media mlrcontent.MediaGenerator) Option {
	return func(h *Handler) { h.media = media }
}

// WithWebhookSecret requires deliveries to carry the shared secret.
func WithWebhookSecret(secret string) Option {
	return func(h *Handler) { h.webhookSecret = secret }
}

// WithClock overrides the time source used in response metadata.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a Handler. Optional collaborators that are not supplied
// make their routes answer 503.
func NewHandler(store *mlrcontent.ContentStore, workflow *mlrcontent.ApprovalWorkflow, ingestor *mlrcontent.WebhookIngestor, optimizer *mlrcontent.FeedbackOptimizer, options ...Option) *Handler {
	h := &Handler{
		store:     store,
		workflow:  workflow,
		ingestor:  ingestor,
		optimizer: optimizer,
		now:       time.Now,
	}
	for _, opt := range options {
		opt(h)
	}
	return h
}

// RegisterPublic mounts the routes the review service calls without client
// credentials: HTML serving and webhook delivery.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/serve-content/{id}", h.ServeContent)
	r.Get("/serve-content/{id}/stream", h.StreamContent)

	r.Group(func(r chi.Router) {
		r.Use(WebhookSecretMiddleware(h.webhookSecret))
		r.Post("/ziflow-webhook", h.ReceiveWebhook)
	})
}

// RegisterAPI mounts the client facing routes.
func (h *Handler) RegisterAPI(r chi.Router) {
	r.Route("/content", func(r chi.Router) {
		r.Post("/", h.CreateContent)
		r.Get("/", h.GetContent)
		r.Patch("/", h.UpdateContent)
		r.Delete("/", h.DeleteContent)
	})

	r.Post("/submit-for-approval", h.SubmitForApproval)
	r.Get("/ziflow-webhook", h.GetFeedback)
	r.Delete("/ziflow-webhook", h.DeleteFeedback)
	r.Post("/optimize-with-feedback", h.OptimizeWithFeedback)

	r.Route("/ziflow", func(r chi.Router) {
		r.Get("/proofs", h.ListProofs)
		r.Get("/proofs/{id}", h.GetProof)
		r.Get("/folders", h.ListFolders)
		r.Get("/workflows", h.ListWorkflows)
	})

	r.Post("/upload", h.Upload)
	r.Post("/generate-media", h.GenerateMedia)
}

// Routes returns a router with every route mounted and no authentication.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware)
	h.RegisterPublic(r)
	h.RegisterAPI(r)
	return r
}
