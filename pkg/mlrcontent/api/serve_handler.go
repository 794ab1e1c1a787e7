package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// maxStreamPace caps the per-chunk delay a client may request.
const maxStreamPace = 2 * time.Second

// ServeContent handles GET /serve-content/{id}. The review service fetches
// proofs from here, so failures are plain text rather than JSON.
func (h *Handler) ServeContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookupID(w, r)
	if !ok {
		return
	}

	html, err := h.store.ServeHTML(r.Context(), id)
	if err != nil {
		h.servePlainError(w, r, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", id.String()+".html"))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(html)); err != nil {
		slog.Warn("Failed to write html", "content_id", id, "error", err)
	}
}

// StreamContent handles GET /serve-content/{id}/stream. The current HTML is
// sent as server-sent events, one JSON encoded chunk per event, followed by
// a done event.
func (h *Handler) StreamContent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.lookupID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	size, err := intParam(q.Get("chunkSize"))
	if err != nil || size < 0 {
		http.Error(w, "invalid chunkSize", http.StatusBadRequest)
		return
	}
	paceMs, err := intParam(q.Get("paceMs"))
	if err != nil || paceMs < 0 {
		http.Error(w, "invalid paceMs", http.StatusBadRequest)
		return
	}
	pace := min(time.Duration(paceMs)*time.Millisecond, maxStreamPace)

	html, err := h.store.ServeHTML(r.Context(), id)
	if err != nil {
		h.servePlainError(w, r, id, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	count := 0
	for chunk := range mlrcontent.Chunks(r.Context(), html, size, pace) {
		data, _ := json.Marshal(chunk)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			slog.Debug("Stream client went away", "content_id", id, "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			slog.Debug("Stream flush failed", "content_id", id, "error", err)
			return
		}
		count++
	}
	if r.Context().Err() != nil {
		return
	}

	fmt.Fprintf(w, "event: done\ndata: %d\n\n", count)
	_ = rc.Flush()
}

func (h *Handler) lookupID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	rawID := urlParam(r, "id")
	id, err := uuid.Parse(rawID)
	if err != nil {
		http.Error(w, "Content not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) servePlainError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	if mlrcontent.IsNotFound(err) {
		http.Error(w, "Content not found", http.StatusNotFound)
		return
	}
	slog.Error("Failed to serve content", "content_id", id, "request_id", requestIDFrom(r), "error", err)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
