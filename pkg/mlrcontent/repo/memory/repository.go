package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// Repository implements mlrcontent.Repository and mlrcontent.FeedbackRepository
// using in-memory storage. A single mutex serializes writers, which gives
// AppendVersion the same per-id guarantees as the Postgres row lock.
type Repository struct {
	mu        sync.RWMutex
	contents  map[uuid.UUID]*mlrcontent.ContentItem
	versions  map[uuid.UUID][]*mlrcontent.ContentVersion // content_id -> versions by sequence
	feedback  map[string]*mlrcontent.ReviewFeedback      // proof_id -> feedback
	comments  map[uuid.UUID][]mlrcontent.ReviewComment   // feedback_id -> comments
	commentBy map[uuid.UUID]map[string]struct{}          // feedback_id -> external comment ids
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		contents:  make(map[uuid.UUID]*mlrcontent.ContentItem),
		versions:  make(map[uuid.UUID][]*mlrcontent.ContentVersion),
		feedback:  make(map[string]*mlrcontent.ReviewFeedback),
		comments:  make(map[uuid.UUID][]mlrcontent.ReviewComment),
		commentBy: make(map[uuid.UUID]map[string]struct{}),
	}
}

// Content operations

func (r *Repository) CreateContent(ctx context.Context, item *mlrcontent.ContentItem, first *mlrcontent.ContentVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	itemCopy := copyItem(item)
	versionCopy := *first
	r.contents[item.ID] = itemCopy
	r.versions[item.ID] = []*mlrcontent.ContentVersion{&versionCopy}
	return nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*mlrcontent.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.contents[id]
	if !exists {
		return nil, mlrcontent.ErrContentNotFound
	}
	return copyItem(item), nil
}

func (r *Repository) ListContent(ctx context.Context, filters mlrcontent.ListContentFilters) ([]*mlrcontent.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mlrcontent.ContentItem
	for _, item := range r.contents {
		if filters.ContentType != "" && item.ContentType != filters.ContentType {
			continue
		}
		if filters.Audience != "" && item.Audience != filters.Audience {
			continue
		}
		if filters.Status != "" && item.Status != filters.Status {
			continue
		}
		result = append(result, copyItem(item))
	}

	// Newest first, id as tie breaker for a stable page order
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset >= len(result) {
		return []*mlrcontent.ContentItem{}, nil
	}
	end := len(result)
	if filters.Limit > 0 && filters.Offset+filters.Limit < end {
		end = filters.Offset + filters.Limit
	}
	return result[filters.Offset:end], nil
}

func (r *Repository) AppendVersion(ctx context.Context, id uuid.UUID, version *mlrcontent.ContentVersion, mutate func(*mlrcontent.ContentItem) error) (*mlrcontent.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.contents[id]
	if !exists {
		return nil, mlrcontent.ErrContentNotFound
	}

	item := copyItem(stored)
	if mutate != nil {
		if err := mutate(item); err != nil {
			return nil, err
		}
	}

	chain := r.versions[id]
	next := 1
	if len(chain) > 0 {
		next = chain[len(chain)-1].Sequence + 1
	}
	version.Sequence = next
	version.ContentID = id

	item.CurrentHTML = version.HTML
	item.UpdatedAt = version.CreatedAt

	versionCopy := *version
	r.versions[id] = append(chain, &versionCopy)
	r.contents[id] = copyItem(item)
	return item, nil
}

func (r *Repository) UpdateContent(ctx context.Context, id uuid.UUID, mutate func(*mlrcontent.ContentItem) error) (*mlrcontent.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.contents[id]
	if !exists {
		return nil, mlrcontent.ErrContentNotFound
	}

	item := copyItem(stored)
	if err := mutate(item); err != nil {
		return nil, err
	}

	// Only status fields are writable here
	stored.Status = item.Status
	stored.ExternalProofID = item.ExternalProofID
	stored.UpdatedAt = item.UpdatedAt
	return copyItem(stored), nil
}

func (r *Repository) FindContentByProofID(ctx context.Context, proofID string) ([]*mlrcontent.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mlrcontent.ContentItem
	for _, item := range r.contents {
		if item.ExternalProofID == proofID {
			result = append(result, copyItem(item))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *Repository) GetContentVersions(ctx context.Context, id uuid.UUID) ([]*mlrcontent.ContentVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.contents[id]; !exists {
		return nil, mlrcontent.ErrContentNotFound
	}

	chain := r.versions[id]
	result := make([]*mlrcontent.ContentVersion, 0, len(chain))
	for _, v := range chain {
		versionCopy := *v
		result = append(result, &versionCopy)
	}
	return result, nil
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contents[id]; !exists {
		return mlrcontent.ErrContentNotFound
	}
	delete(r.contents, id)
	delete(r.versions, id)
	return nil
}

// Feedback operations

func (r *Repository) UpsertFeedback(ctx context.Context, update mlrcontent.FeedbackUpdate) (*mlrcontent.ReviewFeedback, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	merged := mlrcontent.MergeFeedback(r.feedback[update.ProofID], update)
	r.feedback[update.ProofID] = &merged

	result := merged
	return &result, nil
}

func (r *Repository) AddComments(ctx context.Context, feedbackID uuid.UUID, comments []mlrcontent.ReviewComment) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen, ok := r.commentBy[feedbackID]
	if !ok {
		seen = make(map[string]struct{})
		r.commentBy[feedbackID] = seen
	}

	inserted := 0
	for _, c := range comments {
		if _, dup := seen[c.ExternalCommentID]; dup {
			continue
		}
		c.FeedbackID = feedbackID
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		seen[c.ExternalCommentID] = struct{}{}
		r.comments[feedbackID] = append(r.comments[feedbackID], c)
		inserted++
	}
	return inserted, nil
}

func (r *Repository) GetFeedbackByProofID(ctx context.Context, proofID string) (*mlrcontent.ReviewFeedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fb, exists := r.feedback[proofID]
	if !exists {
		return nil, mlrcontent.ErrFeedbackNotFound
	}
	result := *fb
	return &result, nil
}

func (r *Repository) ListComments(ctx context.Context, feedbackID uuid.UUID) ([]mlrcontent.ReviewComment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]mlrcontent.ReviewComment, len(r.comments[feedbackID]))
	copy(result, r.comments[feedbackID])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CommentCreatedAt.Before(result[j].CommentCreatedAt)
	})
	return result, nil
}

func (r *Repository) ListFeedback(ctx context.Context, filters mlrcontent.ListFeedbackFilters) ([]*mlrcontent.ReviewFeedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*mlrcontent.ReviewFeedback
	for _, fb := range r.feedback {
		if filters.Decision != "" && fb.Decision != filters.Decision {
			continue
		}
		fbCopy := *fb
		result = append(result, &fbCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	if filters.Offset >= len(result) {
		return []*mlrcontent.ReviewFeedback{}, nil
	}
	end := len(result)
	if filters.Limit > 0 && filters.Offset+filters.Limit < end {
		end = filters.Offset + filters.Limit
	}
	return result[filters.Offset:end], nil
}

func (r *Repository) DeleteFeedback(ctx context.Context, proofID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	fb, exists := r.feedback[proofID]
	if !exists {
		return mlrcontent.ErrFeedbackNotFound
	}
	delete(r.comments, fb.ID)
	delete(r.commentBy, fb.ID)
	delete(r.feedback, proofID)
	return nil
}

func copyItem(item *mlrcontent.ContentItem) *mlrcontent.ContentItem {
	itemCopy := *item
	if item.ParentID != nil {
		parent := *item.ParentID
		itemCopy.ParentID = &parent
	}
	return &itemCopy
}
