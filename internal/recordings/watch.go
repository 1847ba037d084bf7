package recordings

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/streamcatch/streamcatch/internal/backend"
	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/web"
)

const (
	MsgPermissionDenied = "You do not have permission to watch this recording."
	MsgStreamFailed     = "Failed to load video stream."
	MsgNotFound         = "Recording not found."
)

// Watcher exchanges a recording id for a playable media URL.
type Watcher interface {
	WatchURL(ctx context.Context, accessToken string, recordingID int64) (string, error)
}

type Handler struct {
	catalog  *catalog.Catalog
	watcher  Watcher
	covers   *CoverResolver
	renderer *web.Renderer
}

func NewHandler(cat *catalog.Catalog, watcher Watcher, covers *CoverResolver, renderer *web.Renderer) *Handler {
	return &Handler{catalog: cat, watcher: watcher, covers: covers, renderer: renderer}
}

type WatchView struct {
	Recording *Card  `json:"recording,omitempty"`
	StreamURL string `json:"streamUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Watch shows a single recording. A failed lookup or URL exchange is terminal
// for the page; the user goes back to the list.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.SessionFromContext(ctx)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.watchError(w, r, http.StatusNotFound, MsgNotFound)
		return
	}

	rec, err := h.catalog.GetRecording(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		h.watchError(w, r, http.StatusNotFound, MsgNotFound)
		return
	}
	if err != nil {
		slog.Error("recordings: failed to load recording", "recording_id", id, "error", err)
		h.watchError(w, r, http.StatusBadGateway, MsgStreamFailed)
		return
	}

	streamURL, err := h.watcher.WatchURL(ctx, s.AccessToken, id)
	switch {
	case errors.Is(err, backend.ErrPermissionDenied):
		slog.Warn("recordings: watch url denied", "recording_id", id, "user_id", s.User.ID)
		h.watchError(w, r, http.StatusForbidden, MsgPermissionDenied)
		return
	case err != nil:
		slog.Error("recordings: watch url request failed", "recording_id", id, "error", err)
		h.watchError(w, r, http.StatusBadGateway, MsgStreamFailed)
		return
	}

	card := h.card(ctx, *rec)
	h.renderer.Render(w, r, http.StatusOK, "watch", web.Page{
		Title: card.AccountID,
		Nav:   "recordings",
		Data:  WatchView{Recording: &card, StreamURL: streamURL},
	})
}

func (h *Handler) watchError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.renderer.Render(w, r, status, "watch", web.Page{
		Title: "Unable to play video",
		Nav:   "recordings",
		Data:  WatchView{Error: msg},
	})
}
