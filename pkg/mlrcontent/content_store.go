package mlrcontent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 100
)

// ContentStore is the durable, versioned store for content items.
type ContentStore struct {
	repository Repository
	eventSink  EventSink
	cache      HTMLCache
	now        func() time.Time
}

// StoreOption configures a ContentStore
type StoreOption func(*ContentStore)

// WithEventSink sets the sink that receives lifecycle events
func WithEventSink(sink EventSink) StoreOption {
	return func(s *ContentStore) {
		s.eventSink = sink
	}
}

// WithHTMLCache sets the cache used by ServeHTML
func WithHTMLCache(cache HTMLCache) StoreOption {
	return func(s *ContentStore) {
		s.cache = cache
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) StoreOption {
	return func(s *ContentStore) {
		s.now = now
	}
}

// NewContentStore creates a ContentStore over repo.
func NewContentStore(repo Repository, options ...StoreOption) (*ContentStore, error) {
	s := &ContentStore{
		repository: repo,
		eventSink:  NewNoopEventSink(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	if s.repository == nil {
		return nil, &ConfigurationError{Key: "repository"}
	}
	return s, nil
}

// SaveContent creates a new draft item with version 1.
func (s *ContentStore) SaveContent(ctx context.Context, req SaveContentRequest) (*ContentItem, error) {
	if !req.ContentType.IsValid() {
		return nil, &ValidationError{Field: "contentType", Err: fmt.Errorf("%w: %q", ErrInvalidContentType, req.ContentType)}
	}
	if !req.Audience.IsValid() {
		return nil, &ValidationError{Field: "audience", Err: fmt.Errorf("%w: %q", ErrInvalidAudience, req.Audience)}
	}
	if strings.TrimSpace(req.HTML) == "" {
		return nil, NewValidationError("htmlContent", "html content is required")
	}
	if req.ParentID != nil {
		if _, err := s.repository.GetContent(ctx, *req.ParentID); err != nil {
			if errors.Is(err, ErrContentNotFound) {
				return nil, &ValidationError{Field: "parentId", Err: err}
			}
			return nil, &PersistenceError{Op: "get parent content", Err: err}
		}
	}

	now := s.now()
	item := &ContentItem{
		ID:          uuid.New(),
		ContentType: req.ContentType,
		Audience:    req.Audience,
		Focus:       req.Focus,
		KeyMessage:  req.KeyMessage,
		CurrentHTML: req.HTML,
		Status:      ContentStatusDraft,
		ParentID:    req.ParentID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	first := &ContentVersion{
		ID:           uuid.New(),
		ContentID:    item.ID,
		Sequence:     1,
		HTML:         req.HTML,
		ChangeSource: ChangeSourceUser,
		CreatedAt:    now,
	}

	if err := s.repository.CreateContent(ctx, item, first); err != nil {
		slog.Error("Failed to save content", "content_id", item.ID, "error", err)
		return nil, &PersistenceError{Op: "save content", Err: err}
	}

	s.emit("content_created", s.eventSink.ContentCreated(ctx, item))
	return item, nil
}

// GetContent returns the item with id or ErrContentNotFound.
func (s *ContentStore) GetContent(ctx context.Context, id uuid.UUID) (*ContentItem, error) {
	item, err := s.repository.GetContent(ctx, id)
	if err != nil {
		return nil, s.wrap(id, "get", err)
	}
	return item, nil
}

// ListContent returns items newest first, paginated by offset.
func (s *ContentStore) ListContent(ctx context.Context, filters ListContentFilters) ([]*ContentItem, error) {
	if filters.ContentType != "" && !filters.ContentType.IsValid() {
		return nil, &ValidationError{Field: "contentType", Err: fmt.Errorf("%w: %q", ErrInvalidContentType, filters.ContentType)}
	}
	if filters.Audience != "" && !filters.Audience.IsValid() {
		return nil, &ValidationError{Field: "audience", Err: fmt.Errorf("%w: %q", ErrInvalidAudience, filters.Audience)}
	}
	if filters.Status != "" && !filters.Status.IsValid() {
		return nil, &ValidationError{Field: "status", Err: fmt.Errorf("%w: %q", ErrInvalidStatus, filters.Status)}
	}
	if filters.Limit < 0 {
		return nil, NewValidationError("limit", "must not be negative")
	}
	if filters.Offset < 0 {
		return nil, NewValidationError("offset", "must not be negative")
	}
	filters.Limit = NormalizeLimit(filters.Limit)

	items, err := s.repository.ListContent(ctx, filters)
	if err != nil {
		return nil, &PersistenceError{Op: "list content", Err: err}
	}
	return items, nil
}

// NormalizeLimit applies the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// UpdateContentHTML appends a new version and mirrors it onto the item.
// Items awaiting changes re-enter draft; approved and rejected items cannot be edited.
func (s *ContentStore) UpdateContentHTML(ctx context.Context, req UpdateHTMLRequest) (*ContentItem, *ContentVersion, error) {
	if strings.TrimSpace(req.HTML) == "" {
		return nil, nil, NewValidationError("htmlContent", "html content is required")
	}
	if req.ChangeSource == "" {
		req.ChangeSource = ChangeSourceUser
	}
	if !req.ChangeSource.IsValid() {
		return nil, nil, NewValidationError("changeSource", "unknown change source %q", req.ChangeSource)
	}
	if req.Status != nil && !req.Status.IsValid() {
		return nil, nil, &ValidationError{Field: "status", Err: fmt.Errorf("%w: %q", ErrInvalidStatus, *req.Status)}
	}

	version := &ContentVersion{
		ID:           uuid.New(),
		ContentID:    req.ID,
		HTML:         req.HTML,
		ChangeNotes:  req.ChangeNotes,
		ChangeSource: req.ChangeSource,
		CreatedAt:    s.now(),
	}

	var from ContentStatus
	item, err := s.repository.AppendVersion(ctx, req.ID, version, func(item *ContentItem) error {
		from = item.Status
		if err := canEditHTML(item.Status); err != nil {
			return err
		}
		if item.Status == ContentStatusChangesRequested {
			item.Status = ContentStatusDraft
		}
		if req.Status != nil {
			if err := CanTransition(item.Status, *req.Status); err != nil {
				return err
			}
			item.Status = *req.Status
		}
		if req.ProofID != "" {
			item.ExternalProofID = req.ProofID
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.wrap(req.ID, "update html", err)
	}

	s.invalidate(ctx, req.ID)
	s.emit("content_version_added", s.eventSink.ContentVersionAdded(ctx, item, version))
	if item.Status != from {
		s.emit("content_status_changed", s.eventSink.ContentStatusChanged(ctx, item, from))
	}
	return item, version, nil
}

// UpdateContentStatus changes status without creating a version. proofID
// replaces the stored external proof id only when non-empty.
func (s *ContentStore) UpdateContentStatus(ctx context.Context, id uuid.UUID, status ContentStatus, proofID string) (*ContentItem, error) {
	if !status.IsValid() {
		return nil, &ValidationError{Field: "status", Err: fmt.Errorf("%w: %q", ErrInvalidStatus, status)}
	}

	var from ContentStatus
	item, err := s.repository.UpdateContent(ctx, id, func(item *ContentItem) error {
		from = item.Status
		if err := CanTransition(item.Status, status); err != nil {
			return err
		}
		item.Status = status
		if proofID != "" {
			item.ExternalProofID = proofID
		}
		item.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, s.wrap(id, "update status", err)
	}

	if item.Status != from {
		s.emit("content_status_changed", s.eventSink.ContentStatusChanged(ctx, item, from))
	}
	return item, nil
}

// GetContentVersions returns the version chain ordered by sequence.
func (s *ContentStore) GetContentVersions(ctx context.Context, id uuid.UUID) ([]*ContentVersion, error) {
	versions, err := s.repository.GetContentVersions(ctx, id)
	if err != nil {
		return nil, s.wrap(id, "get versions", err)
	}
	return versions, nil
}

// DeleteContent removes an item and its versions.
func (s *ContentStore) DeleteContent(ctx context.Context, id uuid.UUID) error {
	if err := s.repository.DeleteContent(ctx, id); err != nil {
		return s.wrap(id, "delete", err)
	}
	s.invalidate(ctx, id)
	s.emit("content_deleted", s.eventSink.ContentDeleted(ctx, id))
	return nil
}

// ServeHTML returns the current HTML of an item, consulting the cache first.
func (s *ContentStore) ServeHTML(ctx context.Context, id uuid.UUID) (string, error) {
	if s.cache != nil {
		html, ok, err := s.cache.Get(ctx, id)
		if err != nil {
			slog.Warn("Failed to read html cache", "content_id", id, "error", err)
		} else if ok {
			return html, nil
		}
	}

	item, err := s.GetContent(ctx, id)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		s.fillCache(ctx, item)
	}
	return item.CurrentHTML, nil
}

// fillCache stores item's HTML, then re-reads the item and evicts the entry
// if an update committed in between, since that update's eviction may have
// run before the fill.
func (s *ContentStore) fillCache(ctx context.Context, item *ContentItem) {
	if err := s.cache.Set(ctx, item.ID, item.CurrentHTML); err != nil {
		slog.Warn("Failed to write html cache", "content_id", item.ID, "error", err)
		return
	}
	latest, err := s.repository.GetContent(ctx, item.ID)
	if err == nil && latest.CurrentHTML == item.CurrentHTML {
		return
	}
	if err := s.cache.Delete(ctx, item.ID); err != nil {
		slog.Warn("Failed to evict html cache", "content_id", item.ID, "error", err)
	}
}

// ApplyReviewDecision moves every item tagged with proofID to the status the
// decision implies. Items for which the transition is not allowed are skipped.
func (s *ContentStore) ApplyReviewDecision(ctx context.Context, proofID string, decision Decision) ([]*ContentItem, error) {
	status, ok := decision.Status()
	if !ok || proofID == "" {
		return nil, nil
	}

	items, err := s.repository.FindContentByProofID(ctx, proofID)
	if err != nil {
		return nil, &PersistenceError{Op: "find content by proof", Err: err}
	}

	var updated []*ContentItem
	for _, item := range items {
		next, err := s.UpdateContentStatus(ctx, item.ID, status, "")
		if err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				slog.Warn("Skipping review decision", "content_id", item.ID, "proof_id", proofID, "decision", decision, "error", err)
				continue
			}
			return updated, err
		}
		updated = append(updated, next)
	}
	return updated, nil
}

func (s *ContentStore) wrap(id uuid.UUID, op string, err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return err
	}
	if errors.Is(err, ErrContentNotFound) {
		return &ContentError{ContentID: id, Op: op, Err: err}
	}
	slog.Error("Content store operation failed", "op", op, "content_id", id, "error", err)
	return &PersistenceError{Op: op + " content", Err: err}
}

func (s *ContentStore) invalidate(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		slog.Warn("Failed to invalidate html cache", "content_id", id, "error", err)
	}
}

func (s *ContentStore) emit(event string, err error) {
	if err != nil {
		slog.Warn("Failed to publish event", "event", event, "error", err)
	}
}
