package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/recordings"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/web"
)

const recentLimit = 5

type RecentRecording struct {
	ID         int64     `json:"id"`
	Platform   string    `json:"platform"`
	AccountID  string    `json:"accountId"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	StartedAgo string    `json:"startedAgo"`
	Playable   bool      `json:"playable"`
	CoverURL   string    `json:"coverUrl,omitempty"`
	WatchURL   string    `json:"watchUrl,omitempty"`
}

// Snapshot is the dashboard's aggregate view. Ready never exceeds Recordings.
type Snapshot struct {
	Following  int64             `json:"following"`
	Recordings int64             `json:"recordings"`
	Ready      int64             `json:"ready"`
	Recent     []RecentRecording `json:"recent"`
}

func emptySnapshot() Snapshot {
	return Snapshot{Recent: []RecentRecording{}}
}

// Load aggregates the user's follow and recording counts. With no followed
// channels the recordings queries are skipped entirely. A nil covers leaves
// every recent row on the placeholder.
func Load(ctx context.Context, cat *catalog.Catalog, covers *recordings.CoverResolver, userID string, now time.Time) (Snapshot, error) {
	snap := emptySnapshot()

	following, err := cat.CountFollows(ctx, userID)
	if err != nil {
		return emptySnapshot(), err
	}
	snap.Following = following

	ids, err := cat.FollowedAccountIDs(ctx, userID)
	if err != nil {
		return emptySnapshot(), err
	}
	if len(ids) == 0 {
		return snap, nil
	}

	total, err := cat.CountRecordings(ctx, ids, "")
	if err != nil {
		return emptySnapshot(), err
	}
	ready, err := cat.CountRecordings(ctx, ids, catalog.StatusReady)
	if err != nil {
		return emptySnapshot(), err
	}
	recent, err := cat.RecentRecordings(ctx, ids, recentLimit)
	if err != nil {
		return emptySnapshot(), err
	}

	snap.Recordings = total
	snap.Ready = min(ready, total)
	for _, rec := range recent {
		row := RecentRecording{
			ID:         rec.ID,
			Status:     string(rec.Status),
			StartedAt:  rec.StartedAt,
			StartedAgo: web.TimeAgo(rec.StartedAt, now),
			Playable:   rec.Playable(),
			CoverURL:   covers.Resolve(ctx, rec.PosterStoragePath),
		}
		if rec.Account != nil {
			row.Platform = rec.Account.Platform
			row.AccountID = rec.Account.AccountID
		}
		if row.Playable {
			row.WatchURL = "/recordings/" + strconv.FormatInt(rec.ID, 10)
		}
		snap.Recent = append(snap.Recent, row)
	}
	return snap, nil
}

type Handler struct {
	catalog  *catalog.Catalog
	covers   *recordings.CoverResolver
	renderer *web.Renderer
	now      func() time.Time
}

func NewHandler(cat *catalog.Catalog, covers *recordings.CoverResolver, renderer *web.Renderer) *Handler {
	return &Handler{catalog: cat, covers: covers, renderer: renderer, now: time.Now}
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	user := session.UserFromContext(r.Context())

	snap, err := Load(r.Context(), h.catalog, h.covers, user.ID, h.now())
	if err != nil {
		slog.Error("dashboard: failed to load snapshot", "user_id", user.ID, "error", err)
	}

	h.renderer.Render(w, r, http.StatusOK, "dashboard", web.Page{
		Title: "Dashboard",
		Nav:   "dashboard",
		Data:  snap,
	})
}
