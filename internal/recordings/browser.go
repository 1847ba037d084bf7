package recordings

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/web"
)

const (
	statusAll = "all"

	MsgLoadFailed = "Failed to load recordings"
)

// StatusOption is one entry of the status filter select.
type StatusOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var statusOptions = []StatusOption{
	{statusAll, "All statuses"},
	{string(catalog.StatusLiveRecording), "Recording"},
	{string(catalog.StatusLiveEnd), "Live ended"},
	{string(catalog.StatusWaitingUpload), "Waiting upload"},
	{string(catalog.StatusUploading), "Uploading"},
	{string(catalog.StatusProcessing), "Processing"},
	{string(catalog.StatusReady), "Ready"},
	{string(catalog.StatusFailed), "Failed"},
}

// Statuses returns the options of the status filter.
func Statuses() []StatusOption {
	return append([]StatusOption(nil), statusOptions...)
}

// ParseStatus maps the status query parameter to a catalog filter. "all" and
// empty mean no filter; any other value is matched exactly by the store.
func ParseStatus(raw string) catalog.RecordingStatus {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == statusAll {
		return ""
	}
	return catalog.RecordingStatus(raw)
}

// Card is one recording as shown in listings and on the watch page.
type Card struct {
	ID        int64  `json:"id"`
	Platform  string `json:"platform"`
	AccountID string `json:"accountId"`
	Status    string `json:"status"`
	StartedAt string `json:"startedAt"`
	Duration  string `json:"duration"`
	Size      string `json:"size"`
	Live      bool   `json:"live"`
	Playable  bool   `json:"playable"`
	CoverURL  string `json:"coverUrl,omitempty"`
	WatchURL  string `json:"watchUrl,omitempty"`
}

func (h *Handler) card(ctx context.Context, rec catalog.Recording) Card {
	c := Card{
		ID:        rec.ID,
		Status:    string(rec.Status),
		StartedAt: FormatStarted(rec.StartedAt),
		Duration:  FormatDuration(rec.DurationSec),
		Size:      FormatSize(rec.SizeBytes),
		Live:      rec.IsLive(),
		Playable:  rec.Playable(),
		CoverURL:  h.covers.Resolve(ctx, rec.PosterStoragePath),
	}
	if rec.Account != nil {
		c.Platform = rec.Account.Platform
		c.AccountID = rec.Account.AccountID
	}
	if c.Playable {
		c.WatchURL = "/recordings/" + strconv.FormatInt(rec.ID, 10)
	}
	return c
}

// Search keeps the recordings whose account id or platform contains query,
// case-insensitively.
func Search(recs []catalog.Recording, query string) []catalog.Recording {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return recs
	}
	out := make([]catalog.Recording, 0, len(recs))
	for _, rec := range recs {
		if rec.Account == nil {
			continue
		}
		if strings.Contains(strings.ToLower(rec.Account.AccountID), query) ||
			strings.Contains(strings.ToLower(rec.Account.Platform), query) {
			out = append(out, rec)
		}
	}
	return out
}

type ListView struct {
	Recordings []Card         `json:"recordings"`
	Query      string         `json:"query"`
	Status     string         `json:"status"`
	Statuses   []StatusOption `json:"-"`
	Error      string         `json:"error,omitempty"`
}

// Load returns the user's recordings newest first. With no followed channels
// no recordings query is issued.
func Load(ctx context.Context, cat *catalog.Catalog, userID string, status catalog.RecordingStatus) ([]catalog.Recording, error) {
	ids, err := cat.FollowedAccountIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []catalog.Recording{}, nil
	}
	return cat.ListRecordings(ctx, ids, status)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())
	query := r.URL.Query()

	status := ParseStatus(query.Get("status"))
	view := ListView{
		Recordings: []Card{},
		Query:      query.Get("q"),
		Status:     statusAll,
		Statuses:   Statuses(),
	}
	if status != "" {
		view.Status = string(status)
	}

	recs, err := Load(r.Context(), h.catalog, user.ID, status)
	if err != nil {
		slog.Error("recordings: failed to load recordings", "user_id", user.ID, "error", err)
		view.Error = MsgLoadFailed
	}
	for _, rec := range Search(recs, view.Query) {
		view.Recordings = append(view.Recordings, h.card(r.Context(), rec))
	}

	h.renderer.Render(w, r, http.StatusOK, "recordings", web.Page{Title: "Recordings", Nav: "recordings", Data: view})
}
