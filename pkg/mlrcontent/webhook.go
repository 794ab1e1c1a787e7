package mlrcontent

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Recognized review service event names.
const (
	EventProofProcessed    = "proof.processed"
	EventProofCommented    = "proof.commented"
	EventProofDecision     = "proof.decision"
	EventProofStageChanged = "proof.stage_changed"
)

// ProofRef is the proof section of a webhook payload.
type ProofRef struct {
	ID           string
	Name         string
	Status       string
	CurrentStage string
}

// WebhookEvent is one of ProofProcessed, ProofCommented, ProofDecision,
// ProofStageChanged or UnrecognizedEvent.
type WebhookEvent interface {
	EventName() string
	ProofRef() ProofRef
	OccurredAt() time.Time
	isWebhookEvent()
}

type eventBase struct {
	Proof     ProofRef
	Timestamp time.Time
}

func (e eventBase) ProofRef() ProofRef    { return e.Proof }
func (e eventBase) OccurredAt() time.Time { return e.Timestamp }
func (eventBase) isWebhookEvent()         {}

type ProofProcessed struct{ eventBase }

func (ProofProcessed) EventName() string { return EventProofProcessed }

type ProofCommented struct {
	eventBase
	Comments []ReviewComment
}

func (ProofCommented) EventName() string { return EventProofCommented }

// ProofDecision carries DecisionNone when the decision is absent or not one
// the hub knows; the row is still recorded but content status is untouched.
type ProofDecision struct {
	eventBase
	Decision Decision
	// RawDecision is the value as sent by the review service.
	RawDecision string
}

func (ProofDecision) EventName() string { return EventProofDecision }

type ProofStageChanged struct{ eventBase }

func (ProofStageChanged) EventName() string { return EventProofStageChanged }

// UnrecognizedEvent keeps events with an unknown name so they are recorded, not rejected.
type UnrecognizedEvent struct {
	eventBase
	Name string
}

func (e UnrecognizedEvent) EventName() string { return e.Name }

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type webhookPayload struct {
	Event string `json:"event"`
	Proof *struct {
		ID           flexString `json:"id"`
		Name         string     `json:"name"`
		Status       string     `json:"status"`
		CurrentStage string     `json:"current_stage"`
		Decision     string     `json:"decision"`
	} `json:"proof"`
	Comments  []webhookComment `json:"comments"`
	Timestamp json.RawMessage  `json:"timestamp"`
}

type webhookComment struct {
	ID          flexString `json:"id"`
	Content     string     `json:"content"`
	Text        string     `json:"text"`
	AuthorName  string     `json:"author_name"`
	AuthorEmail string     `json:"author_email"`
	Author      *struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
	Page      *int            `json:"page"`
	X         *float64        `json:"x"`
	Y         *float64        `json:"y"`
	CreatedAt json.RawMessage `json:"created_at"`
}

// ParseWebhookEvent validates a raw payload and returns its tagged variant.
// A missing timestamp is replaced by now.
func ParseWebhookEvent(body []byte, now time.Time) (WebhookEvent, error) {
	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, &ValidationError{Field: "body", Err: err}
	}
	if p.Proof == nil || strings.TrimSpace(string(p.Proof.ID)) == "" {
		return nil, &ValidationError{Field: "proof.id", Err: ErrMissingProofID}
	}
	event := strings.TrimSpace(p.Event)
	if event == "" {
		return nil, NewValidationError("event", "event is required")
	}

	ts, err := parseTimestamp(p.Timestamp, now)
	if err != nil {
		return nil, &ValidationError{Field: "timestamp", Err: err}
	}

	base := eventBase{
		Proof: ProofRef{
			ID:           strings.TrimSpace(string(p.Proof.ID)),
			Name:         p.Proof.Name,
			Status:       p.Proof.Status,
			CurrentStage: p.Proof.CurrentStage,
		},
		Timestamp: ts,
	}

	switch event {
	case EventProofProcessed:
		return &ProofProcessed{eventBase: base}, nil
	case EventProofStageChanged:
		return &ProofStageChanged{eventBase: base}, nil
	case EventProofDecision:
		decision, ok := NormalizeDecision(p.Proof.Decision)
		if !ok {
			decision = DecisionNone
		}
		return &ProofDecision{eventBase: base, Decision: decision, RawDecision: p.Proof.Decision}, nil
	case EventProofCommented:
		comments := make([]ReviewComment, 0, len(p.Comments))
		for i, c := range p.Comments {
			comment, err := c.toComment(ts)
			if err != nil {
				return nil, &ValidationError{Field: fmt.Sprintf("comments[%d]", i), Err: err}
			}
			comments = append(comments, comment)
		}
		return &ProofCommented{eventBase: base, Comments: comments}, nil
	default:
		return &UnrecognizedEvent{eventBase: base, Name: event}, nil
	}
}

func (c webhookComment) toComment(fallback time.Time) (ReviewComment, error) {
	created, err := parseTimestamp(c.CreatedAt, fallback)
	if err != nil {
		return ReviewComment{}, err
	}
	comment := ReviewComment{
		ExternalCommentID: strings.TrimSpace(string(c.ID)),
		AuthorName:        c.AuthorName,
		AuthorEmail:       c.AuthorEmail,
		Content:           c.Content,
		Page:              c.Page,
		X:                 c.X,
		Y:                 c.Y,
		CommentCreatedAt:  created,
	}
	if comment.Content == "" {
		comment.Content = c.Text
	}
	if c.Author != nil {
		if comment.AuthorName == "" {
			comment.AuthorName = c.Author.Name
		}
		if comment.AuthorEmail == "" {
			comment.AuthorEmail = c.Author.Email
		}
	}
	if comment.ExternalCommentID == "" {
		comment.ExternalCommentID = derivedCommentID(comment)
	}
	return comment, nil
}

// derivedCommentID gives comments without an id a stable key so redelivery stays idempotent.
func derivedCommentID(c ReviewComment) string {
	h := sha256.New()
	for _, part := range []string{c.AuthorEmail, c.AuthorName, c.Content, c.CommentCreatedAt.UTC().Format(time.RFC3339Nano)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "derived-" + hex.EncodeToString(h.Sum(nil))[:32]
}

// parseTimestamp accepts RFC 3339 strings or unix seconds/milliseconds.
func parseTimestamp(raw json.RawMessage, fallback time.Time) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" || string(raw) == `""` {
		return fallback.UTC(), nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), nil
		}
		return time.Time{}, fmt.Errorf("unsupported timestamp %q", s)
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(raw), 64)
		if ferr != nil {
			return time.Time{}, fmt.Errorf("unsupported timestamp %s", raw)
		}
		n = int64(f)
	}
	return unixTime(n), nil
}

func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// NormalizeDecision maps review service decision strings onto Decision.
func NormalizeDecision(raw string) (Decision, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	switch s {
	case "approved", "approve":
		return DecisionApproved, true
	case "rejected", "reject", "not_approved", "declined":
		return DecisionRejected, true
	case "changes_requested", "changes_required", "request_changes", "approved_with_changes", "needs_changes":
		return DecisionChangesRequested, true
	case "none":
		return DecisionNone, true
	}
	return "", false
}

// IngestResult is the outcome of processing one webhook delivery.
type IngestResult struct {
	Event      string    `json:"event"`
	ProofID    string    `json:"proofId"`
	FeedbackID uuid.UUID `json:"feedbackId"`
	// CommentsAdded counts comments that were not already stored.
	CommentsAdded int `json:"commentsAdded"`
}

// WebhookIngestor records review service events. It is safe under duplicate
// and concurrent delivery because all writes are keyed upserts.
type WebhookIngestor struct {
	feedback  FeedbackRepository
	store     *ContentStore
	eventSink EventSink
	now       func() time.Time
}

// IngestorOption configures a WebhookIngestor
type IngestorOption func(*WebhookIngestor)

// WithDecisionPropagation moves content tagged with a decided proof to the decided status.
func WithDecisionPropagation(store *ContentStore) IngestorOption {
	return func(w *WebhookIngestor) {
		w.store = store
	}
}

// WithIngestorEventSink sets the sink notified after each recorded event
func WithIngestorEventSink(sink EventSink) IngestorOption {
	return func(w *WebhookIngestor) {
		w.eventSink = sink
	}
}

// WithIngestorClock overrides the time source used for missing timestamps
func WithIngestorClock(now func() time.Time) IngestorOption {
	return func(w *WebhookIngestor) {
		w.now = now
	}
}

// NewWebhookIngestor creates an ingestor over repo.
func NewWebhookIngestor(repo FeedbackRepository, options ...IngestorOption) (*WebhookIngestor, error) {
	w := &WebhookIngestor{
		feedback:  repo,
		eventSink: NewNoopEventSink(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(w)
	}
	if w.feedback == nil {
		return nil, &ConfigurationError{Key: "feedback repository"}
	}
	return w, nil
}

// Ingest parses and records a raw payload.
func (w *WebhookIngestor) Ingest(ctx context.Context, body []byte) (*IngestResult, error) {
	event, err := ParseWebhookEvent(body, w.now())
	if err != nil {
		return nil, err
	}
	return w.Handle(ctx, event)
}

// Handle records a parsed event. Persistence failures are returned as
// *PersistenceError so the sender redelivers.
func (w *WebhookIngestor) Handle(ctx context.Context, event WebhookEvent) (*IngestResult, error) {
	proof := event.ProofRef()
	update := FeedbackUpdate{
		ProofID:      proof.ID,
		ProofName:    proof.Name,
		Status:       proof.Status,
		CurrentStage: proof.CurrentStage,
		Event:        event.EventName(),
		Timestamp:    event.OccurredAt(),
	}

	var decision *ProofDecision
	switch e := event.(type) {
	case *ProofDecision:
		decision = e
		update.Decision = e.Decision
	case *UnrecognizedEvent:
		slog.Warn("Unrecognized webhook event", "event", e.Name, "proof_id", proof.ID)
	}

	fb, err := w.feedback.UpsertFeedback(ctx, update)
	if err != nil {
		slog.Error("Failed to upsert review feedback", "proof_id", proof.ID, "event", update.Event, "error", err)
		return nil, &PersistenceError{Op: "upsert feedback", Err: err}
	}

	result := &IngestResult{Event: update.Event, ProofID: proof.ID, FeedbackID: fb.ID}

	if commented, ok := event.(*ProofCommented); ok && len(commented.Comments) > 0 {
		n, err := w.feedback.AddComments(ctx, fb.ID, commented.Comments)
		if err != nil {
			slog.Error("Failed to store review comments", "proof_id", proof.ID, "error", err)
			return nil, &PersistenceError{Op: "add comments", Err: err}
		}
		result.CommentsAdded = n
	}

	if decision != nil && decision.Decision != DecisionNone && w.store != nil && fb.Decision == decision.Decision {
		if _, err := w.store.ApplyReviewDecision(ctx, proof.ID, decision.Decision); err != nil {
			slog.Warn("Failed to apply review decision to content", "proof_id", proof.ID, "decision", decision.Decision, "error", err)
		}
	}

	if err := w.eventSink.FeedbackRecorded(ctx, fb, update.Event); err != nil {
		slog.Warn("Failed to publish event", "event", "feedback_recorded", "error", err)
	}
	return result, nil
}

// GetFeedback returns the feedback for proofID together with its comments.
func (w *WebhookIngestor) GetFeedback(ctx context.Context, proofID string) (*ReviewFeedback, error) {
	if strings.TrimSpace(proofID) == "" {
		return nil, &ValidationError{Field: "proofId", Err: ErrMissingProofID}
	}
	fb, err := w.feedback.GetFeedbackByProofID(ctx, proofID)
	if err != nil {
		return nil, feedbackErr("get feedback", err)
	}
	comments, err := w.feedback.ListComments(ctx, fb.ID)
	if err != nil {
		return nil, &PersistenceError{Op: "list comments", Err: err}
	}
	fb.Comments = comments
	return fb, nil
}

// ListFeedback returns feedback rows, most recently updated first, one page
// at a time (default DefaultListLimit, at most MaxListLimit).
func (w *WebhookIngestor) ListFeedback(ctx context.Context, filters ListFeedbackFilters) ([]*ReviewFeedback, error) {
	if filters.Decision != "" && !filters.Decision.IsValid() {
		return nil, NewValidationError("decision", "unknown decision %q", filters.Decision)
	}
	if filters.Limit < 0 || filters.Offset < 0 {
		return nil, NewValidationError("limit", "pagination values must not be negative")
	}
	filters.Limit = NormalizeLimit(filters.Limit)
	items, err := w.feedback.ListFeedback(ctx, filters)
	if err != nil {
		return nil, &PersistenceError{Op: "list feedback", Err: err}
	}
	return items, nil
}

// DeleteFeedback removes the feedback for proofID and its comments.
func (w *WebhookIngestor) DeleteFeedback(ctx context.Context, proofID string) error {
	if strings.TrimSpace(proofID) == "" {
		return &ValidationError{Field: "proofId", Err: ErrMissingProofID}
	}
	if err := w.feedback.DeleteFeedback(ctx, proofID); err != nil {
		return feedbackErr("delete feedback", err)
	}
	return nil
}

func feedbackErr(op string, err error) error {
	if errors.Is(err, ErrFeedbackNotFound) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
