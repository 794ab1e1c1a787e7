package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// maxWebhookBytes bounds a single webhook delivery.
const maxWebhookBytes = 1 << 20

// SubmitRequest is the body of POST /submit-for-approval. When ContentID is
// set the stored item is resubmitted and the content fields are ignored.
type SubmitRequest struct {
	ContentID   string `json:"contentId,omitempty"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Audience    string `json:"audience"`
	HTMLContent string `json:"htmlContent"`
	Focus       string `json:"focus,omitempty"`
	KeyMessage  string `json:"keyMessage,omitempty"`
}

// SubmitResponse is the body of a successful submission
type SubmitResponse struct {
	Success   bool      `json:"success"`
	ContentID uuid.UUID `json:"contentId"`
	ProofID   string    `json:"proofId"`
	ProofName string    `json:"proofName"`
	ProofURL  string    `json:"proofUrl"`
	FileURL   string    `json:"fileUrl"`
}

// RetryableResponse is returned when content was saved but proof creation failed
type RetryableResponse struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ContentID uuid.UUID `json:"contentId"`
	FileURL   string    `json:"fileUrl,omitempty"`
	CanRetry  bool      `json:"canRetry"`
}

// WebhookResponse acknowledges a delivery
type WebhookResponse struct {
	Received bool `json:"received"`
	*mlrcontent.IngestResult
}

// FeedbackListResponse is the body of GET /ziflow-webhook without a proof id
type FeedbackListResponse struct {
	Feedback []*mlrcontent.ReviewFeedback `json:"feedback"`
}

// SubmitForApproval handles POST /submit-for-approval
func (h *Handler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", "invalid request body: %v", err)
		return
	}

	submit := mlrcontent.SubmitRequest{
		ProofName:   req.Name,
		ContentType: mlrcontent.ContentType(req.ContentType),
		Audience:    mlrcontent.Audience(req.Audience),
		HTML:        req.HTMLContent,
		Focus:       req.Focus,
		KeyMessage:  req.KeyMessage,
	}
	if req.ContentID != "" {
		id, err := uuid.Parse(req.ContentID)
		if err != nil {
			badRequest(w, r, "contentId", "invalid content id %q", req.ContentID)
			return
		}
		submit.ContentID = &id
	}

	result, err := h.workflow.SubmitForApproval(r.Context(), submit)
	if err != nil {
		var retry *mlrcontent.RetryableFailure
		if errors.As(err, &retry) {
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, RetryableResponse{
				Error:     retry.Reason,
				ContentID: retry.ContentID,
				FileURL:   retry.FileURL,
				CanRetry:  true,
			})
			return
		}
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, SubmitResponse{
		Success:   true,
		ContentID: result.ContentID,
		ProofID:   result.ProofID,
		ProofName: result.ProofName,
		ProofURL:  result.ProofURL,
		FileURL:   result.FileURL,
	})
}

// ReceiveWebhook handles POST /ziflow-webhook. Storage failures answer 500 so
// the sender redelivers.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("Rejected oversized webhook", "request_id", requestIDFrom(r), "limit", tooLarge.Limit)
			render.Status(r, http.StatusRequestEntityTooLarge)
			render.JSON(w, r, ErrorResponse{Error: "webhook body exceeds size limit", Code: "payload_too_large", Field: "body"})
			return
		}
		badRequest(w, r, "body", "failed to read body: %v", err)
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), body)
	if err != nil {
		slog.Error("Failed to ingest webhook", "request_id", requestIDFrom(r), "error", err)
		writeError(w, r, err)
		return
	}

	slog.Info("Webhook ingested", "event", result.Event, "proof_id", result.ProofID, "comments_added", result.CommentsAdded)
	render.JSON(w, r, WebhookResponse{Received: true, IngestResult: result})
}

// GetFeedback handles GET /ziflow-webhook?proofId= and ?decision=
func (h *Handler) GetFeedback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if proofID := strings.TrimSpace(q.Get("proofId")); proofID != "" {
		feedback, err := h.ingestor.GetFeedback(r.Context(), proofID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		render.JSON(w, r, feedback)
		return
	}

	filters := mlrcontent.ListFeedbackFilters{}
	if raw := q.Get("decision"); raw != "" {
		decision, ok := mlrcontent.NormalizeDecision(raw)
		if !ok {
			badRequest(w, r, "decision", "unknown decision %q", raw)
			return
		}
		filters.Decision = decision
	}
	var err error
	if filters.Limit, err = intParam(q.Get("limit")); err != nil {
		badRequest(w, r, "limit", "invalid limit %q", q.Get("limit"))
		return
	}
	if filters.Offset, err = intParam(q.Get("offset")); err != nil {
		badRequest(w, r, "offset", "invalid offset %q", q.Get("offset"))
		return
	}

	items, err := h.ingestor.ListFeedback(r.Context(), filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*mlrcontent.ReviewFeedback{}
	}
	render.JSON(w, r, FeedbackListResponse{Feedback: items})
}

// DeleteFeedback handles DELETE /ziflow-webhook?proofId=
func (h *Handler) DeleteFeedback(w http.ResponseWriter, r *http.Request) {
	proofID := strings.TrimSpace(r.URL.Query().Get("proofId"))
	if proofID == "" {
		badRequest(w, r, "proofId", "proof id is required")
		return
	}

	if err := h.ingestor.DeleteFeedback(r.Context(), proofID); err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]any{"success": true, "deleted": proofID})
}
