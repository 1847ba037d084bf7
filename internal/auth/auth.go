package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/streamcatch/streamcatch/internal/httputil"
	"github.com/streamcatch/streamcatch/internal/identity"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/validate"
	"github.com/streamcatch/streamcatch/internal/web"
)

const (
	MsgUnexpected = "An unexpected error occurred"

	afterSignIn  = "/dashboard"
	afterSignOut = "/login"
)

// IdentityClient is the password grant and sign-up part of the auth provider.
type IdentityClient interface {
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Tokens, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.Tokens, *identity.User, error)
}

// Sessions starts and ends browser sessions.
type Sessions interface {
	Begin(w http.ResponseWriter, r *http.Request, tokens *identity.Tokens) (*session.Session, error)
	SignOut(w http.ResponseWriter, r *http.Request) error
}

type Handler struct {
	idp      IdentityClient
	sessions Sessions
	renderer *web.Renderer
}

func NewHandler(idp IdentityClient, sessions Sessions, renderer *web.Renderer) *Handler {
	return &Handler{idp: idp, sessions: sessions, renderer: renderer}
}

// FormView refills the auth forms after a failed submit. Passwords are never
// echoed back.
type FormView struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Error       string `json:"error,omitempty"`
}

type redirectResponse struct {
	Redirect string `json:"redirect"`
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if signedIn(r) {
		http.Redirect(w, r, afterSignIn, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "login", web.Page{Title: "Sign in", Data: FormView{}})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	view := FormView{Email: strings.TrimSpace(r.FormValue("email"))}
	password := r.FormValue("password")

	if msg := validate.Email(view.Email); msg != "" {
		view.Error = msg
		h.renderer.Render(w, r, http.StatusBadRequest, "login", web.Page{Title: "Sign in", Data: view})
		return
	}
	if password == "" {
		view.Error = "Password is required"
		h.renderer.Render(w, r, http.StatusBadRequest, "login", web.Page{Title: "Sign in", Data: view})
		return
	}

	tokens, err := h.idp.SignInWithPassword(r.Context(), view.Email, password)
	if err != nil {
		slog.Info("auth: sign in rejected", "ip", httputil.ClientIP(r), "error", err)
		view.Error = identity.Message(err, MsgUnexpected)
		h.renderer.Render(w, r, http.StatusUnauthorized, "login", web.Page{Title: "Sign in", Data: view})
		return
	}

	if !h.begin(w, r, tokens) {
		view.Error = MsgUnexpected
		h.renderer.Render(w, r, http.StatusInternalServerError, "login", web.Page{Title: "Sign in", Data: view})
		return
	}
	redirect(w, r, afterSignIn)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if signedIn(r) {
		http.Redirect(w, r, afterSignIn, http.StatusSeeOther)
		return
	}
	h.renderer.Render(w, r, http.StatusOK, "register", web.Page{Title: "Create account", Data: FormView{}})
}

// Register validates the form before anything is sent to the provider. When
// the provider wants the email confirmed first, no session is started.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	view := FormView{
		Email:       strings.TrimSpace(r.FormValue("email")),
		DisplayName: strings.TrimSpace(r.FormValue("display_name")),
	}
	password := r.FormValue("password")

	view.Error = firstNonEmpty(
		validate.Email(view.Email),
		validate.Password(password, r.FormValue("confirm_password")),
		validate.DisplayName(view.DisplayName),
	)
	if view.Error != "" {
		h.renderer.Render(w, r, http.StatusBadRequest, "register", web.Page{Title: "Create account", Data: view})
		return
	}

	tokens, user, err := h.idp.SignUp(r.Context(), view.Email, password, map[string]any{"display_name": view.DisplayName})
	switch {
	case errors.Is(err, identity.ErrNoSession):
		slog.Info("auth: account created, confirmation pending", "user_id", userID(user))
		h.renderer.Render(w, r, http.StatusCreated, "confirm", web.Page{Title: "Account Created", Data: struct{}{}})
		return
	case err != nil:
		slog.Info("auth: sign up rejected", "ip", httputil.ClientIP(r), "error", err)
		view.Error = identity.Message(err, MsgUnexpected)
		h.renderer.Render(w, r, http.StatusBadRequest, "register", web.Page{Title: "Create account", Data: view})
		return
	}

	if !h.begin(w, r, tokens) {
		view.Error = MsgUnexpected
		h.renderer.Render(w, r, http.StatusInternalServerError, "register", web.Page{Title: "Create account", Data: view})
		return
	}
	redirect(w, r, afterSignIn)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.SignOut(w, r); err != nil {
		slog.Error("auth: sign out failed", "error", err)
	}
	redirect(w, r, afterSignOut)
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request, tokens *identity.Tokens) bool {
	s, err := h.sessions.Begin(w, r, tokens)
	if err != nil {
		slog.Error("auth: failed to start session", "user_id", tokens.User.ID, "error", err)
		return false
	}
	slog.Info("auth: signed in",
		"user_id", s.User.ID,
		"device", s.Device,
		"country", s.Country,
		"ip", httputil.ClientIP(r),
	)
	return true
}

func redirect(w http.ResponseWriter, r *http.Request, target string) {
	if httputil.WantsJSON(r) {
		httputil.WriteJSON(w, http.StatusOK, redirectResponse{Redirect: target})
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func signedIn(r *http.Request) bool {
	st, ok := session.Lookup(r.Context())
	return ok && st.SignedIn()
}

func userID(u *identity.User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func firstNonEmpty(msgs ...string) string {
	for _, m := range msgs {
		if m != "" {
			return m
		}
	}
	return ""
}
