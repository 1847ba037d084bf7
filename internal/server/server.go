package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/streamcatch/streamcatch/internal/auth"
	"github.com/streamcatch/streamcatch/internal/catalog"
	"github.com/streamcatch/streamcatch/internal/dashboard"
	"github.com/streamcatch/streamcatch/internal/database"
	"github.com/streamcatch/streamcatch/internal/follows"
	"github.com/streamcatch/streamcatch/internal/metrics"
	"github.com/streamcatch/streamcatch/internal/profile"
	"github.com/streamcatch/streamcatch/internal/ratelimit"
	"github.com/streamcatch/streamcatch/internal/recordings"
	"github.com/streamcatch/streamcatch/internal/session"
	"github.com/streamcatch/streamcatch/internal/web"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend is the recording backend: follow creation and playback URLs.
type Backend interface {
	follows.Backend
	recordings.Watcher
}

type Config struct {
	DB database.DBTX
	// Pinger checks the relational store for /api/health.
	Pinger Pinger
	// StorePinger checks the session store when it is remote.
	StorePinger Pinger
	Sessions    *session.Provider
	Identity    auth.IdentityClient
	Backend     Backend
	Covers      *recordings.CoverResolver
	Renderer    *web.Renderer
	Registry    *prometheus.Registry

	BaseURL         string
	StorageEndpoint string
	FollowStrategy  string
}

type Server struct {
	router      chi.Router
	pinger      Pinger
	storePinger Pinger
	renderer    *web.Renderer

	authHandler       *auth.Handler
	dashboardHandler  *dashboard.Handler
	followsHandler    *follows.Handler
	recordingsHandler *recordings.Handler
	profileHandler    *profile.Handler

	sessions    *session.Provider
	limiters    []*ratelimit.Limiter
	unsubscribe func()
}

func New(cfg Config) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.Registry != nil {
		r.Use(metrics.NewHTTPMetrics(cfg.Registry).Middleware)
	}
	r.Use(securityHeaders(SecurityConfig{
		BaseURL:         cfg.BaseURL,
		StorageEndpoint: cfg.StorageEndpoint,
	}))
	if cfg.Sessions != nil {
		r.Use(cfg.Sessions.Middleware)
	}
	r.Use(slogMiddleware)

	s := &Server{
		router:      r,
		pinger:      cfg.Pinger,
		storePinger: cfg.StorePinger,
		renderer:    cfg.Renderer,
		sessions:    cfg.Sessions,
	}

	if cfg.DB != nil && cfg.Sessions != nil && cfg.Renderer != nil {
		cat := catalog.New(cfg.DB)
		s.authHandler = auth.NewHandler(cfg.Identity, cfg.Sessions, cfg.Renderer)
		s.dashboardHandler = dashboard.NewHandler(cat, cfg.Covers, cfg.Renderer)
		s.followsHandler = follows.NewHandler(cat, cfg.Backend, cfg.FollowStrategy, cfg.Sessions, cfg.Renderer)
		s.recordingsHandler = recordings.NewHandler(cat, cfg.Backend, cfg.Covers, cfg.Renderer)
		s.profileHandler = profile.NewHandler(cat, cfg.Sessions, cfg.Renderer)
		s.unsubscribe = cfg.Sessions.Subscribe(logAuthEvent)
	}

	s.routes(cfg.Registry)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the rate limiters and detaches from the session provider.
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Server) limiter(requestsPerSecond float64, burst int) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(requestsPerSecond, burst)
	s.limiters = append(s.limiters, l)
	return l
}

func (s *Server) routes(reg *prometheus.Registry) {
	s.router.Get("/api/health", s.handleHealth)
	if reg != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", newStaticFileServer(web.Static())))

	if s.renderer != nil {
		s.router.Get("/", s.handleLanding)
		s.router.NotFound(s.handleNotFound)
	}

	if s.authHandler == nil {
		return
	}

	authLimiter := s.limiter(0.5, 5)
	s.router.Group(func(r chi.Router) {
		r.Use(authLimiter.Middleware)
		r.Get("/login", s.authHandler.LoginPage)
		r.Post("/login", s.authHandler.Login)
		r.Get("/register", s.authHandler.RegisterPage)
		r.Post("/register", s.authHandler.Register)
	})
	s.router.Post("/logout", s.authHandler.Logout)

	mutationLimiter := s.limiter(2, 10)
	s.router.Group(func(r chi.Router) {
		r.Use(session.RequireSession)
		r.Get("/dashboard", s.dashboardHandler.Show)

		r.Get("/follows", s.followsHandler.List)
		r.Group(func(r chi.Router) {
			r.Use(mutationLimiter.Middleware)
			r.Post("/follows/add", s.followsHandler.Add)
			r.Post("/follows/{id}/remove", s.followsHandler.Remove)
			r.Post("/follows/{id}/toggle", s.followsHandler.Toggle)
			r.Post("/follows/{id}/purge", s.followsHandler.Purge)
			r.Post("/profile", s.profileHandler.Update)
		})

		r.Get("/recordings", s.recordingsHandler.List)
		r.Get("/recordings/{id}", s.recordingsHandler.Watch)
		r.Get("/profile", s.profileHandler.Show)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.pinger != nil {
		if err := s.pinger.Ping(r.Context()); err != nil {
			slog.Error("health: database ping failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"database unreachable"}`))
			return
		}
	}
	if s.storePinger != nil {
		if err := s.storePinger.Ping(r.Context()); err != nil {
			slog.Error("health: session store ping failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy","error":"session store unreachable"}`))
			return
		}
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleLanding(w http.ResponseWriter, r *http.Request) {
	s.renderer.Render(w, r, http.StatusOK, "landing", web.Page{Title: "StreamCatch"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.renderer.Error(w, r, http.StatusNotFound, "Page not found")
}

func logAuthEvent(ev session.Event, s *session.Session) {
	userID := ""
	if s != nil {
		userID = s.User.ID
	}
	switch ev {
	case session.SignedOut:
		slog.Info("session: signed out, routes require sign-in again", "user_id", userID)
	default:
		slog.Info("session: auth state changed", "event", string(ev), "user_id", userID)
	}
}
