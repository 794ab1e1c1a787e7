package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
	"golang.org/x/sync/errgroup"
)

// CreateContentRequest is the body of POST /content
type CreateContentRequest struct {
	ContentType string `json:"contentType"`
	Audience    string `json:"audience"`
	Focus       string `json:"focus,omitempty"`
	KeyMessage  string `json:"keyMessage,omitempty"`
	HTMLContent string `json:"htmlContent"`
	ParentID    string `json:"parentId,omitempty"`
}

// UpdateContentRequest is the body of PATCH /content. Absent fields are left untouched.
type UpdateContentRequest struct {
	ID            string  `json:"id"`
	HTMLContent   *string `json:"htmlContent,omitempty"`
	Status        *string `json:"status,omitempty"`
	ChangeNotes   string  `json:"changeNotes,omitempty"`
	ChangeSource  string  `json:"changeSource,omitempty"`
	ZiflowProofID *string `json:"ziflowProofId,omitempty"`
}

// ContentResponse wraps a single content item
type ContentResponse struct {
	Success  bool                         `json:"success"`
	Content  *mlrcontent.ContentItem      `json:"content"`
	Versions []*mlrcontent.ContentVersion `json:"versions,omitempty"`
}

// Pagination echoes the window applied to a list request
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// ContentListResponse is the body of GET /content without an id
type ContentListResponse struct {
	Content    []*mlrcontent.ContentItem `json:"content"`
	Pagination Pagination                `json:"pagination"`
}

// CreateContent handles POST /content
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	var req CreateContentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", "invalid request body: %v", err)
		return
	}

	save := mlrcontent.SaveContentRequest{
		ContentType: mlrcontent.ContentType(req.ContentType),
		Audience:    mlrcontent.Audience(req.Audience),
		HTML:        req.HTMLContent,
		Focus:       req.Focus,
		KeyMessage:  req.KeyMessage,
	}
	if req.ParentID != "" {
		parentID, err := uuid.Parse(req.ParentID)
		if err != nil {
			badRequest(w, r, "parentId", "invalid parent id %q", req.ParentID)
			return
		}
		save.ParentID = &parentID
	}

	item, err := h.store.SaveContent(r.Context(), save)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, ContentResponse{Success: true, Content: item})
}

// GetContent handles GET /content. With ?id= it returns one item (and its
// versions when versions=true); otherwise it lists with filters.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if rawID := q.Get("id"); rawID != "" {
		id, err := uuid.Parse(rawID)
		if err != nil {
			badRequest(w, r, "id", "invalid content id %q", rawID)
			return
		}
		h.getContent(w, r, id, q.Get("versions") == "true")
		return
	}

	filters := mlrcontent.ListContentFilters{
		ContentType: mlrcontent.ContentType(q.Get("contentType")),
		Audience:    mlrcontent.Audience(q.Get("audience")),
		Status:      mlrcontent.ContentStatus(q.Get("status")),
	}
	var err error
	if filters.Limit, err = intParam(q.Get("limit")); err != nil {
		badRequest(w, r, "limit", "invalid limit %q", q.Get("limit"))
		return
	}
	if filters.Offset, err = intParam(q.Get("offset")); err != nil || filters.Offset < 0 {
		badRequest(w, r, "offset", "invalid offset %q", q.Get("offset"))
		return
	}

	items, err := h.store.ListContent(r.Context(), filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*mlrcontent.ContentItem{}
	}

	render.JSON(w, r, ContentListResponse{
		Content: items,
		Pagination: Pagination{
			Limit:  mlrcontent.NormalizeLimit(filters.Limit),
			Offset: filters.Offset,
			Count:  len(items),
		},
	})
}

func (h *Handler) getContent(w http.ResponseWriter, r *http.Request, id uuid.UUID, withVersions bool) {
	var (
		item     *mlrcontent.ContentItem
		versions []*mlrcontent.ContentVersion
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		item, err = h.store.GetContent(ctx, id)
		return err
	})
	if withVersions {
		g.Go(func() error {
			var err error
			versions, err = h.store.GetContentVersions(ctx, id)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, ContentResponse{Success: true, Content: item, Versions: versions})
}

// UpdateContent handles PATCH /content. Every requested change is validated
// against the current item before anything is written.
func (h *Handler) UpdateContent(w http.ResponseWriter, r *http.Request) {
	var req UpdateContentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		badRequest(w, r, "body", "invalid request body: %v", err)
		return
	}
	if req.ID == "" {
		badRequest(w, r, "id", "content id is required")
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		badRequest(w, r, "id", "invalid content id %q", req.ID)
		return
	}
	if req.HTMLContent == nil && req.Status == nil && req.ZiflowProofID == nil {
		badRequest(w, r, "body", "nothing to update")
		return
	}
	if req.HTMLContent != nil && strings.TrimSpace(*req.HTMLContent) == "" {
		badRequest(w, r, "htmlContent", "html content must not be empty")
		return
	}
	source := mlrcontent.ChangeSource(req.ChangeSource)
	if source != "" && !source.IsValid() {
		badRequest(w, r, "changeSource", "unknown change source %q", req.ChangeSource)
		return
	}

	ctx := r.Context()
	current, err := h.store.GetContent(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := current.Status
	if req.HTMLContent != nil {
		if mlrcontent.IsTerminal(current.Status) {
			badRequest(w, r, "htmlContent", "content is %s and can no longer be edited", current.Status)
			return
		}
		if status == mlrcontent.ContentStatusChangesRequested {
			status = mlrcontent.ContentStatusDraft
		}
	}
	target := status
	if req.Status != nil {
		target = mlrcontent.ContentStatus(*req.Status)
		if err := mlrcontent.CanTransition(status, target); err != nil {
			writeError(w, r, err)
			return
		}
	}

	proofID := ""
	if req.ZiflowProofID != nil {
		proofID = strings.TrimSpace(*req.ZiflowProofID)
	}

	item := current
	switch {
	case req.HTMLContent != nil:
		// Version, status and proof id land in one write.
		update := mlrcontent.UpdateHTMLRequest{
			ID:           id,
			HTML:         *req.HTMLContent,
			ChangeNotes:  req.ChangeNotes,
			ChangeSource: source,
			ProofID:      proofID,
		}
		if req.Status != nil {
			update.Status = &target
		}
		item, _, err = h.store.UpdateContentHTML(ctx, update)
	case req.Status != nil || proofID != "":
		item, err = h.store.UpdateContentStatus(ctx, id, target, proofID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, ContentResponse{Success: true, Content: item})
}

// DeleteContent handles DELETE /content?id=
func (h *Handler) DeleteContent(w http.ResponseWriter, r *http.Request) {
	rawID := r.URL.Query().Get("id")
	if rawID == "" {
		badRequest(w, r, "id", "content id is required")
		return
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		badRequest(w, r, "id", "invalid content id %q", rawID)
		return
	}

	if err := h.store.DeleteContent(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]any{"success": true, "deleted": id})
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
