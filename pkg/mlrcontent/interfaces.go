package mlrcontent

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
)

// Repository persists content items and their version chains.
type Repository interface {
	// CreateContent stores a new item together with its first version.
	CreateContent(ctx context.Context, item *ContentItem, first *ContentVersion) error
	GetContent(ctx context.Context, id uuid.UUID) (*ContentItem, error)
	ListContent(ctx context.Context, filters ListContentFilters) ([]*ContentItem, error)

	// AppendVersion serializes with other writers on the same id: it reads the
	// current max sequence, stores version at max+1, mirrors its HTML onto the
	// item and applies mutate, all in one transaction. A mutate error aborts
	// the whole operation. Status and ExternalProofID set by mutate are persisted.
	AppendVersion(ctx context.Context, id uuid.UUID, version *ContentVersion, mutate func(*ContentItem) error) (*ContentItem, error)

	// UpdateContent applies a status-only mutation under the same per-id
	// serialization. Only Status, ExternalProofID and UpdatedAt are persisted.
	UpdateContent(ctx context.Context, id uuid.UUID, mutate func(*ContentItem) error) (*ContentItem, error)

	FindContentByProofID(ctx context.Context, proofID string) ([]*ContentItem, error)
	GetContentVersions(ctx context.Context, id uuid.UUID) ([]*ContentVersion, error)
	DeleteContent(ctx context.Context, id uuid.UUID) error
}

// FeedbackRepository persists review sessions and reviewer comments.
type FeedbackRepository interface {
	// UpsertFeedback merges update into the row keyed by update.ProofID using
	// MergeFeedback, creating the row when absent.
	UpsertFeedback(ctx context.Context, update FeedbackUpdate) (*ReviewFeedback, error)
	// AddComments stores comments keyed by (feedbackID, ExternalCommentID),
	// skipping keys that already exist. It returns the number inserted.
	AddComments(ctx context.Context, feedbackID uuid.UUID, comments []ReviewComment) (int, error)
	GetFeedbackByProofID(ctx context.Context, proofID string) (*ReviewFeedback, error)
	ListComments(ctx context.Context, feedbackID uuid.UUID) ([]ReviewComment, error)
	ListFeedback(ctx context.Context, filters ListFeedbackFilters) ([]*ReviewFeedback, error)
	DeleteFeedback(ctx context.Context, proofID string) error
}

// Proof is the review service's rendition of a submitted artifact.
type Proof struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status,omitempty"`
	ProofURL  string     `json:"proof_url,omitempty"`
	FolderID  string     `json:"folder_id,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// CreateProofRequest describes a proof to create from a publicly fetchable URL.
type CreateProofRequest struct {
	Name       string
	SourceURL  string
	Message    string
	FolderID   string
	WorkflowID string
}

// ListProofsOptions pages through proofs.
type ListProofsOptions struct {
	Page     int
	PageSize int
	FolderID string
}

// Folder is a review service folder.
type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Workflow is a review service workflow template.
type Workflow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReviewService is the contract of the external review service client.
// Implementations perform exactly one HTTP call per method and never retry.
type ReviewService interface {
	CreateProof(ctx context.Context, req CreateProofRequest) (*Proof, error)
	GetProof(ctx context.Context, id string) (*Proof, error)
	ListProofs(ctx context.Context, opts ListProofsOptions) ([]Proof, error)
	ListFolders(ctx context.Context) ([]Folder, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MediaKind selects the media backend output.
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// MediaGenerator turns a prompt into a hosted media URL.
type MediaGenerator interface {
	GenerateMedia(ctx context.Context, kind MediaKind, prompt string) (string, error)
}

// UploadSink stores binary content and returns a public URL for it.
type UploadSink interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// PublicURLBuilder returns a URL the review service can fetch the item's HTML from.
type PublicURLBuilder interface {
	PublicURL(ctx context.Context, item *ContentItem) (string, error)
}

// HTMLCache caches rendered HTML for the serve endpoint.
type HTMLCache interface {
	Get(ctx context.Context, id uuid.UUID) (html string, ok bool, err error)
	Set(ctx context.Context, id uuid.UUID, html string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// EventSink receives lifecycle events. Errors are logged by callers and never
// fail the originating operation.
type EventSink interface {
	ContentCreated(ctx context.Context, item *ContentItem) error
	ContentVersionAdded(ctx context.Context, item *ContentItem, version *ContentVersion) error
	ContentStatusChanged(ctx context.Context, item *ContentItem, from ContentStatus) error
	ContentDeleted(ctx context.Context, id uuid.UUID) error
	FeedbackRecorded(ctx context.Context, feedback *ReviewFeedback, event string) error
}
