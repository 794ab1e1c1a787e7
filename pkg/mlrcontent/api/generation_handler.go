package api

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// OptimizeRequest is the body of POST /optimize-with-feedback. When
// ContentID is set the result is also recorded as a new version of that item.
type OptimizeRequest struct {
	OriginalContent string                    `json:"originalContent"`
	ContentType     string                    `json:"contentType"`
	Audience        string                    `json:"audience"`
	Feedback        []mlrcontent.FeedbackItem `json:"feedback"`
	ContentID       string                    `json:"contentId,omitempty"`
}

// OptimizeMetadata describes an optimization run
type OptimizeMetadata struct {
	OriginalLength  int       `json:"originalLength"`
	OptimizedLength int       `json:"optimizedLength"`
	FeedbackCount   int       `json:"feedbackCount"`
	Timestamp       time.Time `json:"timestamp"`
	ISIPreserved    bool      `json:"isiPreserved"`
}

// OptimizeResponse is the body of a successful optimization
type OptimizeResponse struct {
	Success           bool                    `json:"success"`
	OptimizedContent  string                  `json:"optimizedContent"`
	FeedbackAddressed []string                `json:"feedbackAddressed"`
	ChangesSummary    []string                `json:"changesSummary"`
	Metadata          OptimizeMetadata        `json:"metadata"`
	Content           *mlrcontent.ContentItem `json:"content,omitempty"`
}

// GenerateMediaRequest is the body of POST /generate-media
type GenerateMediaRequest struct {
	Prompt string `json:"prompt"`
	Kind   string `json:"kind"`
}

// URLResponse carries a hosted asset URL
type URLResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Key     string `json:"key,omitempty"`
}

// OptimizeWithFeedback handles POST /optimize-with-feedback
func (h *Handler) OptimizeWithFeedback(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", "invalid request body: %v", err)
		return
	}

	var contentID *uuid.UUID
	if req.ContentID != "" {
		id, err := uuid.Parse(req.ContentID)
		if err != nil {
			badRequest(w, r, "contentId", "invalid content id %q", req.ContentID)
			return
		}
		contentID = &id
	}

	result, err := h.optimizer.Optimize(r.Context(), mlrcontent.OptimizeRequest{
		OriginalHTML: req.OriginalContent,
		ContentType:  mlrcontent.ContentType(req.ContentType),
		Audience:     mlrcontent.Audience(req.Audience),
		Feedback:     req.Feedback,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := OptimizeResponse{
		Success:           true,
		OptimizedContent:  result.OptimizedHTML,
		FeedbackAddressed: result.FeedbackAddressed,
		ChangesSummary:    result.ChangesSummary,
		Metadata: OptimizeMetadata{
			OriginalLength:  len(req.OriginalContent),
			OptimizedLength: len(result.OptimizedHTML),
			FeedbackCount:   len(result.FeedbackAddressed),
			Timestamp:       h.now().UTC(),
			ISIPreserved:    result.ISIPreserved,
		},
	}

	if contentID != nil {
		item, _, err := h.store.UpdateContentHTML(r.Context(), mlrcontent.UpdateHTMLRequest{
			ID:           *contentID,
			HTML:         result.OptimizedHTML,
			ChangeNotes:  optimizationNotes(result.FeedbackAddressed),
			ChangeSource: mlrcontent.ChangeSourceAIOptimization,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		resp.Content = item
	}

	render.JSON(w, r, resp)
}

func optimizationNotes(addressed []string) string {
	if len(addressed) == 1 {
		return "Addressed feedback: " + addressed[0]
	}
	return fmt.Sprintf("Addressed %d feedback items", len(addressed))
}

// ListProofs handles GET /ziflow/proofs
func (h *Handler) ListProofs(w http.ResponseWriter, r *http.Request) {
	if !h.requireReview(w, r) {
		return
	}

	q := r.URL.Query()
	opts := mlrcontent.ListProofsOptions{FolderID: q.Get("folderId")}
	var err error
	if opts.Page, err = intParam(q.Get("page")); err != nil {
		badRequest(w, r, "page", "invalid page %q", q.Get("page"))
		return
	}
	if opts.PageSize, err = intParam(q.Get("pageSize")); err != nil {
		badRequest(w, r, "pageSize", "invalid page size %q", q.Get("pageSize"))
		return
	}

	proofs, err := h.review.ListProofs(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"proofs": nonNil(proofs)})
}

// GetProof handles GET /ziflow/proofs/{id}
func (h *Handler) GetProof(w http.ResponseWriter, r *http.Request) {
	if !h.requireReview(w, r) {
		return
	}

	proof, err := h.review.GetProof(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, proof)
}

// ListFolders handles GET /ziflow/folders
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	if !h.requireReview(w, r) {
		return
	}

	folders, err := h.review.ListFolders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"folders": nonNil(folders)})
}

// ListWorkflows handles GET /ziflow/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	if !h.requireReview(w, r) {
		return
	}

	workflows, err := h.review.ListWorkflows(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"workflows": nonNil(workflows)})
}

// Upload handles POST /upload with a multipart "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.upload == nil {
		writeError(w, r, &mlrcontent.ConfigurationError{Key: "STORAGE_URL", Reason: "upload storage is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "file", "multipart file is required: %v", err)
		return
	}
	defer file.Close()

	name := path.Base(strings.ReplaceAll(header.Filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	contentType := header.Header.Get("Content-Type")
	key := fmt.Sprintf("uploads/%s/%s", uuid.New(), name)

	url, err := h.upload.Upload(r.Context(), key, file, header.Size, contentType)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, URLResponse{Success: true, URL: url, Key: key})
}

// GenerateMedia handles POST /generate-media
func (h *Handler) GenerateMedia(w http.ResponseWriter, r *http.Request) {
	if h.media == nil {
		writeError(w, r, &mlrcontent.ConfigurationError{Key: "MEDIA_URL", Reason: "media generation is not configured"})
		return
	}

	var req GenerateMediaRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", "invalid request body: %v", err)
		return
	}
	kind := mlrcontent.MediaKind(req.Kind)
	if kind == "" {
		kind = mlrcontent.MediaKindImage
	}

	url, err := h.media.GenerateMedia(r.Context(), kind, req.Prompt)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, URLResponse{Success: true, URL: url})
}

func (h *Handler) requireReview(w http.ResponseWriter, r *http.Request) bool {
	if h.review == nil {
		writeError(w, r, &mlrcontent.ConfigurationError{Key: "ZIFLOW_API_KEY", Reason: "review service is not configured"})
		return false
	}
	return true
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
