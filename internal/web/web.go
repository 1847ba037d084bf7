package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/streamcatch/streamcatch/internal/httputil"
	"github.com/streamcatch/streamcatch/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the stylesheet and other assets served under /static/.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// NavItem is one sidebar entry. Soon items render disabled with a badge.
type NavItem struct {
	Key   string
	Label string
	Href  string
	Soon  bool
}

var navItems = []NavItem{
	{Key: "dashboard", Label: "Dashboard", Href: "/dashboard"},
	{Key: "follows", Label: "Followed Channels", Href: "/follows"},
	{Key: "recordings", Label: "Recordings", Href: "/recordings"},
	{Key: "profile", Label: "Profile", Href: "/profile"},
	{Key: "plans", Label: "Plans", Soon: true},
	{Key: "billing", Label: "Billing", Soon: true},
}

// Nav returns the sidebar entries in display order.
func Nav() []NavItem {
	out := make([]NavItem, len(navItems))
	copy(out, navItems)
	return out
}

type Flash struct {
	Success []string
	Error   []string
}

// Page is the data every template receives. Data holds the page's view model
// and is also the JSON body for API clients.
type Page struct {
	Title string
	// Nav is the active sidebar key. An empty Nav renders without the app layout.
	Nav   string
	Nonce string
	User  *session.User
	Flash Flash
	Data  any
}

// Flasher pops one-shot messages queued by a previous request.
type Flasher interface {
	Flashes(w http.ResponseWriter, r *http.Request, kind string) []string
}

var pages = []string{
	"landing", "login", "register", "confirm",
	"dashboard", "follows", "recordings", "watch", "profile", "error",
}

type Renderer struct {
	templates map[string]*template.Template
	flasher   Flasher
}

func NewRenderer(flasher Flasher) (*Renderer, error) {
	funcs := template.FuncMap{
		"nav": Nav,
	}
	r := &Renderer{templates: make(map[string]*template.Template, len(pages)), flasher: flasher}
	for _, name := range pages {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render writes page as HTML, or its Data as JSON when the client asks for it.
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, name string, page Page) {
	if httputil.WantsJSON(r) {
		data := page.Data
		if data == nil {
			data = struct{}{}
		}
		httputil.WriteJSON(w, status, data)
		return
	}

	t, ok := rd.templates[name]
	if !ok {
		slog.Error("web: unknown template", "template", name)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	page.Nonce = httputil.NonceFromContext(r.Context())
	if page.User == nil {
		if st, ok := session.Lookup(r.Context()); ok {
			page.User = st.User
		}
	}
	if rd.flasher != nil {
		page.Flash.Success = append(page.Flash.Success, rd.flasher.Flashes(w, r, "success")...)
		page.Flash.Error = append(page.Flash.Error, rd.flasher.Flashes(w, r, "error")...)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", page); err != nil {
		slog.Error("web: failed to render template", "template", name, "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Error renders the generic error page.
func (rd *Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	if httputil.WantsJSON(r) {
		httputil.WriteError(w, status, message)
		return
	}
	rd.Render(w, r, status, "error", Page{Title: http.StatusText(status), Data: ErrorData{Status: status, Message: message}})
}

type ErrorData struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// TimeAgo renders t relative to now, e.g. "3 hours ago".
func TimeAgo(t, now time.Time) string {
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return plural(int(d/time.Minute), "minute")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	case d < 30*24*time.Hour:
		return plural(int(d/(24*time.Hour)), "day")
	case d < 365*24*time.Hour:
		return plural(int(d/(30*24*time.Hour)), "month")
	}
	return plural(int(d/(365*24*time.Hour)), "year")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
