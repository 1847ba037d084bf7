package profile

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/identity"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/validate"
	"github.com/streamcatch/streamcatch/internal/web"
)

const (
	MsgUpdated      = "Profile updated successfully"
	MsgUpdateFailed = "Failed to update profile"
)

// Updater writes user metadata to the auth provider for the current session.
type Updater interface {
	UpdateUser(ctx context.Context, data map[string]any) (*session.User, error)
}

type Handler struct {
	catalog  *catalog.Catalog
	updater  Updater
	renderer *web.Renderer
}

func NewHandler(cat *catalog.Catalog, updater Updater, renderer *web.Renderer) *Handler {
	return &Handler{catalog: cat, updater: updater, renderer: renderer}
}

type View struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Status      string `json:"status,omitempty"`
	MemberSince string `json:"memberSince,omitempty"`
	Device      string `json:"device,omitempty"`
	Country     string `json:"country,omitempty"`
	Success     string `json:"success,omitempty"`
	Error       string `json:"error,omitempty"`
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, h.view(r.Context()))
}

// Update saves the display name to the auth provider's user metadata. The
// app_users row is maintained by the provider side and is not written here.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := strings.TrimSpace(r.FormValue("display_name"))

	if msg := validate.DisplayName(name); msg != "" {
		view := h.view(ctx)
		view.DisplayName = name
		view.Error = msg
		h.render(w, r, http.StatusBadRequest, view)
		return
	}

	user, err := h.updater.UpdateUser(ctx, map[string]any{"display_name": name})
	if err != nil {
		slog.Error("profile: failed to update user", "user_id", session.UserFromContext(ctx).ID, "error", err)
		view := h.view(ctx)
		view.DisplayName = name
		view.Error = identity.Message(err, MsgUpdateFailed)
		status := http.StatusBadGateway
		if errors.Is(err, session.ErrNotSignedIn) {
			status = http.StatusUnauthorized
		}
		h.render(w, r, status, view)
		return
	}

	view := h.view(ctx)
	view.DisplayName = user.DisplayName
	view.Success = MsgUpdated
	h.render(w, r, http.StatusOK, view)
}

func (h *Handler) view(ctx context.Context) View {
	s := session.SessionFromContext(ctx)
	view := View{
		Email:       s.User.Email,
		DisplayName: s.User.DisplayName,
		Device:      s.Device,
		Country:     s.Country,
	}

	u, err := h.catalog.GetAppUser(ctx, s.User.ID)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
	case err != nil:
		slog.Warn("profile: failed to load app user", "user_id", s.User.ID, "error", err)
	default:
		if u.DisplayName != nil && *u.DisplayName != "" && view.DisplayName == "" {
			view.DisplayName = *u.DisplayName
		}
		view.Status = string(u.Status)
		view.MemberSince = u.CreatedAt.Format("January 2, 2006")
	}
	return view
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, view View) {
	h.renderer.Render(w, r, status, "profile", web.Page{Title: "Profile", Nav: "profile", Data: view})
}
