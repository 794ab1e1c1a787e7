package mlrcontent

import "github.com/google/uuid"

// SaveContentRequest contains parameters for creating a content item
type SaveContentRequest struct {
	ContentType ContentType
	Audience    Audience
	HTML        string
	Focus       string
	KeyMessage  string
	// ParentID links a derivative item to the item it was iterated from.
	ParentID *uuid.UUID
}

// UpdateHTMLRequest contains parameters for appending a new version
type UpdateHTMLRequest struct {
	ID           uuid.UUID
	HTML         string
	ChangeNotes  string
	ChangeSource ChangeSource
	// Status, when set, is applied in the same write as the new version and
	// must be reachable from the status the edit leaves the item in.
	Status *ContentStatus
	// ProofID replaces the external proof id when non-empty.
	ProofID string
}

// SubmitRequest contains parameters for submitting content for approval.
//
// When ContentID is set the stored item is reused (a retry) and the content
// fields are ignored; otherwise a new item is saved from them.
type SubmitRequest struct {
	ContentID   *uuid.UUID
	ProofName   string
	ContentType ContentType
	Audience    Audience
	HTML        string
	Focus       string
	KeyMessage  string
}

// SubmitResult is returned by a successful submission
type SubmitResult struct {
	ContentID uuid.UUID
	ProofID   string
	ProofName string
	ProofURL  string
	FileURL   string
}

// FeedbackItem is one reviewer remark passed to the optimizer
type FeedbackItem struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// OptimizeRequest contains parameters for a feedback-driven revision
type OptimizeRequest struct {
	OriginalHTML string
	ContentType  ContentType
	Audience     Audience
	Feedback     []FeedbackItem
}

// OptimizeResult is the revised artifact plus an approximate change summary
type OptimizeResult struct {
	OptimizedHTML     string
	ChangesSummary    []string
	FeedbackAddressed []string
	// ISIPreserved is false when the safety-information region differs after revision.
	ISIPreserved bool
}
