package mlrcontent

import (
	"time"

	"github.com/google/uuid"
)

// ContentType is the kind of marketing artifact.
type ContentType string

const (
	ContentTypeEmail  ContentType = "email"
	ContentTypeBanner ContentType = "banner"
)

// IsValid reports whether t is one of the supported content types.
func (t ContentType) IsValid() bool {
	return t == ContentTypeEmail || t == ContentTypeBanner
}

// Audience is the intended readership of an artifact.
type Audience string

const (
	AudienceHCP     Audience = "hcp"
	AudiencePatient Audience = "patient"
)

// IsValid reports whether a is one of the supported audiences.
func (a Audience) IsValid() bool {
	return a == AudienceHCP || a == AudiencePatient
}

// Label returns the human readable audience name used in prompts and proof messages.
func (a Audience) Label() string {
	switch a {
	case AudienceHCP:
		return "Healthcare Professionals"
	case AudiencePatient:
		return "Patients"
	default:
		return string(a)
	}
}

// ContentStatus is the review state of a content item.
type ContentStatus string

const (
	ContentStatusDraft            ContentStatus = "draft"
	ContentStatusPendingReview    ContentStatus = "pending_review"
	ContentStatusApproved         ContentStatus = "approved"
	ContentStatusRejected         ContentStatus = "rejected"
	ContentStatusChangesRequested ContentStatus = "changes_requested"
)

// IsValid reports whether s is a known status.
func (s ContentStatus) IsValid() bool {
	switch s {
	case ContentStatusDraft, ContentStatusPendingReview, ContentStatusApproved,
		ContentStatusRejected, ContentStatusChangesRequested:
		return true
	}
	return false
}

// ChangeSource records what produced a version.
type ChangeSource string

const (
	ChangeSourceUser           ChangeSource = "user"
	ChangeSourceAIOptimization ChangeSource = "ai_optimization"
	ChangeSourceMLRFeedback    ChangeSource = "mlr_feedback"
)

// IsValid reports whether s is a known change source.
func (s ChangeSource) IsValid() bool {
	return s == ChangeSourceUser || s == ChangeSourceAIOptimization || s == ChangeSourceMLRFeedback
}

// Decision is the normalized outcome of an external review.
type Decision string

const (
	DecisionApproved         Decision = "approved"
	DecisionRejected         Decision = "rejected"
	DecisionChangesRequested Decision = "changes_requested"
	DecisionNone             Decision = "none"
)

// IsValid reports whether d is a known decision.
func (d Decision) IsValid() bool {
	switch d {
	case DecisionApproved, DecisionRejected, DecisionChangesRequested, DecisionNone:
		return true
	}
	return false
}

// Status maps a decision onto the content status it implies. ok is false for DecisionNone.
func (d Decision) Status() (status ContentStatus, ok bool) {
	switch d {
	case DecisionApproved:
		return ContentStatusApproved, true
	case DecisionRejected:
		return ContentStatusRejected, true
	case DecisionChangesRequested:
		return ContentStatusChangesRequested, true
	}
	return "", false
}

// ContentItem is a marketing artifact under review.
//
// CurrentHTML always mirrors the HTML of the highest-sequence version.
type ContentItem struct {
	ID              uuid.UUID     `json:"id"`
	ContentType     ContentType   `json:"contentType"`
	Audience        Audience      `json:"audience"`
	Focus           string        `json:"focus,omitempty"`
	KeyMessage      string        `json:"keyMessage,omitempty"`
	CurrentHTML     string        `json:"currentHtml"`
	Status          ContentStatus `json:"status"`
	ExternalProofID string        `json:"ziflowProofId,omitempty"`
	ParentID        *uuid.UUID    `json:"parentId,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// ContentVersion is an immutable snapshot of a content item's HTML.
type ContentVersion struct {
	ID           uuid.UUID    `json:"id"`
	ContentID    uuid.UUID    `json:"contentId"`
	Sequence     int          `json:"sequence"`
	HTML         string       `json:"html"`
	ChangeNotes  string       `json:"changeNotes,omitempty"`
	ChangeSource ChangeSource `json:"changeSource"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// ReviewFeedback is the recorded state of one external review session, keyed by proof id.
type ReviewFeedback struct {
	ID           uuid.UUID  `json:"id"`
	ProofID      string     `json:"proofId"`
	ProofName    string     `json:"proofName,omitempty"`
	Status       string     `json:"status,omitempty"`
	Decision     Decision   `json:"decision"`
	CurrentStage string     `json:"currentStage,omitempty"`
	LastEvent    string     `json:"lastEvent"`
	DecidedAt    *time.Time `json:"decidedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Comments []ReviewComment `json:"comments,omitempty"`
}

// ReviewComment is a reviewer annotation attached to a feedback session.
type ReviewComment struct {
	ID                uuid.UUID `json:"id"`
	FeedbackID        uuid.UUID `json:"feedbackId"`
	ExternalCommentID string    `json:"externalCommentId"`
	AuthorName        string    `json:"authorName,omitempty"`
	AuthorEmail       string    `json:"authorEmail,omitempty"`
	Content           string    `json:"content"`
	Page              *int      `json:"page,omitempty"`
	X                 *float64  `json:"x,omitempty"`
	Y                 *float64  `json:"y,omitempty"`
	CommentCreatedAt  time.Time `json:"commentCreatedAt"`
}

// ListContentFilters narrows ListContent. Zero values mean "any".
type ListContentFilters struct {
	ContentType ContentType
	Audience    Audience
	Status      ContentStatus
	Limit       int
	Offset      int
}

// ListFeedbackFilters narrows ListFeedback.
type ListFeedbackFilters struct {
	Decision Decision
	Limit    int
	Offset   int
}

// FeedbackUpdate is a normalized webhook event ready to be merged into a
// ReviewFeedback row.
type FeedbackUpdate struct {
	ProofID      string
	ProofName    string
	Status       string
	CurrentStage string
	Event        string
	// Decision is set only for decision events.
	Decision  Decision
	Timestamp time.Time
}
