package mlrcontent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultUpstreamTimeout bounds calls to the review and generation services.
const DefaultUpstreamTimeout = 30 * time.Second

// ApprovalWorkflow submits stored content to the external review service.
type ApprovalWorkflow struct {
	store   *ContentStore
	review  ReviewService
	urls    PublicURLBuilder
	timeout time.Duration
}

// NewApprovalWorkflow wires the workflow. timeout <= 0 selects DefaultUpstreamTimeout.
func NewApprovalWorkflow(store *ContentStore, review ReviewService, urls PublicURLBuilder, timeout time.Duration) (*ApprovalWorkflow, error) {
	if store == nil {
		return nil, &ConfigurationError{Key: "content store"}
	}
	if review == nil {
		return nil, &ConfigurationError{Key: "review service"}
	}
	if urls == nil {
		return nil, &ConfigurationError{Key: "public url builder"}
	}
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}
	return &ApprovalWorkflow{store: store, review: review, urls: urls, timeout: timeout}, nil
}

// SubmitForApproval persists the content (or reuses req.ContentID), creates a
// proof for its public URL and moves the item to pending_review.
//
// When anything after persistence fails the item keeps its status and a
// *RetryableFailure carrying the content id and URL is returned. Proof
// creation is never retried here.
func (w *ApprovalWorkflow) SubmitForApproval(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	item, err := w.resolveContent(ctx, req)
	if err != nil {
		return nil, err
	}

	fileURL, err := w.urls.PublicURL(ctx, item)
	if err != nil {
		slog.Error("Failed to build public URL", "content_id", item.ID, "error", err)
		return nil, &RetryableFailure{ContentID: item.ID, Reason: "failed to build public URL: " + err.Error(), Err: err}
	}

	proofName := strings.TrimSpace(req.ProofName)
	if proofName == "" {
		proofName = defaultProofName(item)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	proof, err := w.review.CreateProof(callCtx, CreateProofRequest{
		Name:      proofName,
		SourceURL: fileURL,
		Message:   ProofMessage(item),
	})
	if err != nil {
		err = asTimeout("create proof", w.timeout, err)
		slog.Error("Failed to create proof", "content_id", item.ID, "file_url", fileURL, "error", err)
		return nil, &RetryableFailure{ContentID: item.ID, FileURL: fileURL, Reason: err.Error(), Err: err}
	}

	if _, err := w.store.UpdateContentStatus(ctx, item.ID, ContentStatusPendingReview, proof.ID); err != nil {
		slog.Error("Proof created but content status update failed", "content_id", item.ID, "proof_id", proof.ID, "error", err)
		return nil, err
	}

	name := proof.Name
	if name == "" {
		name = proofName
	}
	return &SubmitResult{
		ContentID: item.ID,
		ProofID:   proof.ID,
		ProofName: name,
		ProofURL:  proof.ProofURL,
		FileURL:   fileURL,
	}, nil
}

func (w *ApprovalWorkflow) resolveContent(ctx context.Context, req SubmitRequest) (*ContentItem, error) {
	if req.ContentID == nil {
		return w.store.SaveContent(ctx, SaveContentRequest{
			ContentType: req.ContentType,
			Audience:    req.Audience,
			HTML:        req.HTML,
			Focus:       req.Focus,
			KeyMessage:  req.KeyMessage,
		})
	}

	item, err := w.store.GetContent(ctx, *req.ContentID)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(item.Status, ContentStatusPendingReview); err != nil {
		return nil, err
	}
	if item.Status == ContentStatusPendingReview && item.ExternalProofID != "" {
		return nil, NewValidationError("contentId", "content %s is already under review as proof %s", item.ID, item.ExternalProofID)
	}
	return item, nil
}

// ProofMessage folds the descriptive metadata of an item into the free-text proof message.
func ProofMessage(item *ContentItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Content type: %s\nAudience: %s", item.ContentType, item.Audience.Label())
	if item.Focus != "" {
		fmt.Fprintf(&b, "\nFocus: %s", item.Focus)
	}
	if item.KeyMessage != "" {
		fmt.Fprintf(&b, "\nKey message: %s", item.KeyMessage)
	}
	return b.String()
}

func defaultProofName(item *ContentItem) string {
	return fmt.Sprintf("%s %s %s", strings.ToUpper(string(item.ContentType)), item.Audience, item.CreatedAt.Format("2006-01-02 15:04"))
}

// asTimeout converts deadline expiry into a *TimeoutError.
func asTimeout(op string, timeout time.Duration, err error) error {
	var te *TimeoutError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return err
}
