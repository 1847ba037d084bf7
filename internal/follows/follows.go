package follows

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/streamcatch/streamcatch/internal/backend"
	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/config"
	"github.com/streamcatch/streamcatch/internal/httputil"
	"github.com/streamcatch/streamcatch/internal/recordings"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/validate"
	"github.com/streamcatch/streamcatch/internal/web"
)

const (
	MsgAdded            = "Channel added successfully"
	MsgAlreadyFollowing = "You are already following this channel"
	MsgInvalidChannel   = "Invalid URL or unsupported platform"
	MsgAddFailed        = "Failed to add channel"
	MsgLoadFailed       = "Failed to load channels"
	MsgRemoved          = "Channel removed"
	MsgRemoveFailed     = "Failed to remove channel"
	MsgPaused           = "Channel paused"
	MsgResumed          = "Channel resumed"
	MsgToggleFailed     = "Failed to update channel"
	MsgPurged           = "Channel deleted"
	MsgPurgeFailed      = "Failed to delete channel"
	MsgNotFound         = "Channel not found"
)

// Backend is the part of the recording backend used to add channels.
type Backend interface {
	Follow(ctx context.Context, accessToken, channelURL string) error
	ResolveLiveAccount(ctx context.Context, accessToken, channelURL string) (int64, error)
}

type Flasher interface {
	AddFlash(w http.ResponseWriter, r *http.Request, kind, message string)
}

type Handler struct {
	catalog  *catalog.Catalog
	backend  Backend
	strategy string
	flasher  Flasher
	renderer *web.Renderer
}

func NewHandler(cat *catalog.Catalog, b Backend, strategy string, flasher Flasher, renderer *web.Renderer) *Handler {
	if strategy == "" {
		strategy = config.FollowStrategyEndpoint
	}
	return &Handler{catalog: cat, backend: b, strategy: strategy, flasher: flasher, renderer: renderer}
}

type RecordingRow struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	Duration  string `json:"duration"`
	Size      string `json:"size"`
	Playable  bool   `json:"playable"`
	WatchURL  string `json:"watchUrl,omitempty"`
}

type Row struct {
	LiveAccountID  int64          `json:"liveAccountId"`
	Platform       string         `json:"platform"`
	AccountID      string         `json:"accountId"`
	CanonicalURL   string         `json:"canonicalUrl"`
	Status         string         `json:"status"`
	Active         bool           `json:"active"`
	Recording      bool           `json:"recording"`
	Expanded       bool           `json:"expanded"`
	ExpandHref     string         `json:"-"`
	RecordingCount int            `json:"recordingCount"`
	Recordings     []RecordingRow `json:"recordings,omitempty"`
}

type View struct {
	Follows   []Row    `json:"follows"`
	Platforms []string `json:"platforms"`
	Filter    Filter   `json:"filter"`
	Total     int      `json:"total"`
	Error     string   `json:"error,omitempty"`
	AddURL    string   `json:"-"`
}

// Result is the JSON answer of the mutating endpoints.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())
	query := r.URL.Query()

	view := View{
		Follows:   []Row{},
		Platforms: []string{},
		Filter: Filter{
			Search:   query.Get("q"),
			Status:   normalizeStatus(query.Get("status")),
			Platform: query.Get("platform"),
		},
		AddURL: query.Get("url"),
	}

	all, err := h.catalog.ListFollows(r.Context(), user.ID)
	if err != nil {
		slog.Error("follows: failed to load follows", "user_id", user.ID, "error", err)
		view.Error = MsgLoadFailed
		h.renderer.Render(w, r, http.StatusOK, "follows", web.Page{Title: "Followed Channels", Nav: "follows", Data: view})
		return
	}

	expanded := ParseExpanded(query.Get("expand"))
	view.Total = len(all)
	view.Platforms = Platforms(all)
	for _, f := range Apply(all, view.Filter) {
		view.Follows = append(view.Follows, h.row(f, query, expanded))
	}

	h.renderer.Render(w, r, http.StatusOK, "follows", web.Page{Title: "Followed Channels", Nav: "follows", Data: view})
}

func (h *Handler) row(f catalog.Follow, query url.Values, expanded map[int64]bool) Row {
	row := Row{
		LiveAccountID:  f.LiveAccountID,
		Platform:       f.Account.Platform,
		AccountID:      f.Account.AccountID,
		CanonicalURL:   f.Account.CanonicalURL,
		Status:         string(f.Status),
		Active:         f.Status == catalog.FollowActive,
		Recording:      IsRecording(f),
		Expanded:       expanded[f.LiveAccountID],
		RecordingCount: len(f.Account.Recordings),
	}

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if next := ToggleExpanded(expanded, f.LiveAccountID); next != "" {
		q.Set("expand", next)
	} else {
		q.Del("expand")
	}
	row.ExpandHref = "/follows?" + q.Encode() + "#follow-" + strconv.FormatInt(f.LiveAccountID, 10)

	if row.Expanded {
		row.Recordings = make([]RecordingRow, 0, len(f.Account.Recordings))
		for _, rec := range f.Account.Recordings {
			rr := RecordingRow{
				ID:        rec.ID,
				Status:    string(rec.Status),
				StartedAt: recordings.FormatStarted(rec.StartedAt),
				Duration:  recordings.FormatDuration(rec.DurationSec),
				Size:      recordings.FormatSize(rec.SizeBytes),
				Playable:  rec.Playable(),
			}
			if rr.Playable {
				rr.WatchURL = "/recordings/" + strconv.FormatInt(rec.ID, 10)
			}
			row.Recordings = append(row.Recordings, rr)
		}
	}
	return row
}

func (h *Handler) Add(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := session.SessionFromContext(ctx)
	channelURL := strings.TrimSpace(r.FormValue("url"))

	status, msg := h.add(ctx, s, channelURL)
	if status == http.StatusOK {
		slog.Info("follows: channel added", "user_id", s.User.ID, "strategy", h.strategy)
	}
	target := "/follows"
	if status != http.StatusOK && channelURL != "" {
		target += "?" + url.Values{"url": {channelURL}}.Encode()
	}
	h.respond(w, r, target, status, Result{OK: status == http.StatusOK, Message: msg})
}

// add runs the configured follow strategy and maps the outcome to a status
// and a user-facing message. Nothing is written unless the add succeeds.
func (h *Handler) add(ctx context.Context, s *session.Session, channelURL string) (int, string) {
	if msg := validate.ChannelURL(channelURL); msg != "" {
		return http.StatusBadRequest, msg
	}

	if h.strategy == config.FollowStrategyDirect {
		return h.addDirect(ctx, s, channelURL)
	}

	err := h.backend.Follow(ctx, s.AccessToken, channelURL)
	var apiErr *backend.APIError
	switch {
	case err == nil:
		return http.StatusOK, MsgAdded
	case errors.Is(err, backend.ErrConflict):
		return http.StatusConflict, MsgAlreadyFollowing
	case errors.Is(err, backend.ErrBadRequest):
		return http.StatusBadRequest, messageOr(err, MsgInvalidChannel)
	case errors.As(err, &apiErr):
		slog.Warn("follows: backend rejected follow", "status", apiErr.StatusCode, "error", err)
		return http.StatusBadGateway, messageOr(err, MsgAddFailed)
	default:
		slog.Error("follows: follow request failed", "error", err)
		return http.StatusBadGateway, MsgAddFailed
	}
}

func (h *Handler) addDirect(ctx context.Context, s *session.Session, channelURL string) (int, string) {
	accountID, err := h.backend.ResolveLiveAccount(ctx, s.AccessToken, channelURL)
	if err != nil {
		if errors.Is(err, backend.ErrBadRequest) {
			return http.StatusBadRequest, messageOr(err, MsgInvalidChannel)
		}
		slog.Error("follows: resolve live account failed", "error", err)
		return http.StatusBadGateway, messageOr(err, MsgAddFailed)
	}

	err = h.catalog.InsertFollow(ctx, s.User.ID, accountID)
	switch {
	case err == nil:
		return http.StatusOK, MsgAdded
	case errors.Is(err, catalog.ErrAlreadyExists):
		return http.StatusConflict, MsgAlreadyFollowing
	default:
		slog.Error("follows: insert follow failed", "user_id", s.User.ID, "live_account_id", accountID, "error", err)
		return http.StatusInternalServerError, MsgAddFailed
	}
}

func messageOr(err error, fallback string) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// Remove soft-deletes a follow by marking it inactive.
func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, MsgRemoved, MsgRemoveFailed, func(ctx context.Context, userID string, id int64) (string, error) {
		return string(catalog.FollowInactive), h.catalog.SetFollowStatus(ctx, userID, id, catalog.FollowInactive)
	})
}

// Toggle flips a follow between active and inactive.
func (h *Handler) Toggle(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "", MsgToggleFailed, func(ctx context.Context, userID string, id int64) (string, error) {
		status, err := h.catalog.ToggleFollow(ctx, userID, id)
		return string(status), err
	})
}

// Purge hard-deletes a follow.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, MsgPurged, MsgPurgeFailed, func(ctx context.Context, userID string, id int64) (string, error) {
		return "", h.catalog.DeleteFollow(ctx, userID, id)
	})
}

type mutation func(ctx context.Context, userID string, liveAccountID int64) (string, error)

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, okMsg, failMsg string, fn mutation) {
	user := session.UserFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.respond(w, r, "/follows", http.StatusBadRequest, Result{Message: MsgNotFound})
		return
	}

	status, err := fn(r.Context(), user.ID, id)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		h.respond(w, r, "/follows", http.StatusNotFound, Result{Message: MsgNotFound})
		return
	case err != nil:
		slog.Error("follows: mutation failed", "user_id", user.ID, "live_account_id", id, "error", err)
		h.respond(w, r, "/follows", http.StatusInternalServerError, Result{Message: failMsg})
		return
	}

	if okMsg == "" {
		okMsg = MsgPaused
		if status == string(catalog.FollowActive) {
			okMsg = MsgResumed
		}
	}
	h.respond(w, r, "/follows", http.StatusOK, Result{OK: true, Message: okMsg, Status: status})
}

// respond answers JSON clients directly; browsers get a flash and a redirect
// back to the list, which is reloaded from the store.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, target string, status int, res Result) {
	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, status, res)
		return
	}
	kind := "error"
	if res.OK {
		kind = "success"
	}
	if h.flasher != nil {
		h.flasher.AddFlash(w, r, kind, res.Message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
