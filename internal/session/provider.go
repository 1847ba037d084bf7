package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/streamcatch/streamcatch/internal/httputil"
	"github.com/streamcatch/streamcatch/internal/identity"
)

const (
	defaultCookieName = "streamcatch_session"
	sessionIDKey      = "sid"
	refreshSkew       = 30 * time.Second
	refreshTimeout    = 15 * time.Second
	sweepInterval     = time.Minute
)

// ErrNotSignedIn is returned by operations that need a session when there is none.
var ErrNotSignedIn = errors.New("not signed in")

// IdentityClient is the subset of the auth provider the session layer needs.
type IdentityClient interface {
	Refresh(ctx context.Context, refreshToken string) (*identity.Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdateUser(ctx context.Context, accessToken string, data map[string]any) (*identity.User, error)
}

// Listener receives auth-state events. Listeners run synchronously in
// registration order on the goroutine that caused the change.
type Listener func(Event, *Session)

type Options struct {
	CookieName string
	// HashKey authenticates the session cookie.
	HashKey []byte
	MaxAge  time.Duration
	Secure  bool
	Clock   clockwork.Clock
	// Locate maps a client IP to a country code. Optional.
	Locate func(ip string) string
}

type listenerEntry struct {
	id int
	fn Listener
}

// Provider owns the session lifecycle: it loads the session for each request,
// refreshes expired tokens and publishes auth-state events.
type Provider struct {
	store      Store
	identity   IdentityClient
	verifier   *Verifier
	cookies    *sessions.CookieStore
	cookieName string
	clock      clockwork.Clock
	locate     func(string) string
	refreshes  singleflight.Group

	mu        sync.Mutex
	started   bool
	listeners []listenerEntry
	nextID    int
	stop      chan struct{}
	done      chan struct{}
}

func NewProvider(store Store, idp IdentityClient, verifier *Verifier, opts Options) *Provider {
	if opts.CookieName == "" {
		opts.CookieName = defaultCookieName
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}

	cookies := sessions.NewCookieStore(opts.HashKey)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &Provider{
		store:      store,
		identity:   idp,
		verifier:   verifier,
		cookies:    cookies,
		cookieName: opts.CookieName,
		clock:      opts.Clock,
		locate:     opts.Locate,
	}
}

type sweeper interface {
	Sweep() int
}

// Start marks the provider ready. Until then every request sees a loading
// state. Stores that keep expired entries in process are swept periodically.
func (p *Provider) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	sw, ok := p.store.(sweeper)
	if !ok {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.sweepLoop(sw, p.stop, p.done)
}

// Close stops background work and returns the provider to the loading state.
func (p *Provider) Close() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.started = false
	p.stop, p.done = nil, nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (p *Provider) sweepLoop(sw sweeper, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := p.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if n := sw.Sweep(); n > 0 {
				slog.Debug("session: swept expired sessions", "count", n)
			}
		}
	}
}

func (p *Provider) isStarted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Subscribe registers fn for auth-state events and returns its unsubscribe func.
func (p *Provider) Subscribe(fn Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, listenerEntry{id: id, fn: fn})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, l := range p.listeners {
			if l.id == id {
				p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
				return
			}
		}
	}
}

func (p *Provider) publish(ev Event, s *Session) {
	p.mu.Lock()
	listeners := make([]listenerEntry, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, l := range listeners {
		l.fn(ev, s)
	}
}

// Middleware resolves the request's session and stores the State in the
// request context. It must wrap every route that reads session state.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &State{}
		if !p.isStarted() {
			st.Loading = true
		} else if s := p.load(w, r); s != nil {
			st.Session = s
			st.User = &s.User
		}
		next.ServeHTTP(w, r.WithContext(withState(r.Context(), st)))
	})
}

func (p *Provider) cookie(r *http.Request) *sessions.Session {
	cs, err := p.cookies.Get(r, p.cookieName)
	if err != nil {
		slog.Debug("session: discarding unreadable cookie", "error", err)
	}
	return cs
}

func (p *Provider) load(w http.ResponseWriter, r *http.Request) *Session {
	ctx := r.Context()
	cs := p.cookie(r)
	sid, _ := cs.Values[sessionIDKey].(string)
	if sid == "" {
		return nil
	}

	s, err := p.store.Get(ctx, sid)
	if errors.Is(err, ErrNotFound) {
		p.clearCookie(w, r)
		return nil
	}
	if err != nil {
		slog.Error("session: failed to load session", "error", err)
		return nil
	}

	if p.fresh(s) {
		return s
	}

	refreshed, err := p.refresh(ctx, s)
	switch {
	case err == nil:
		return refreshed
	case refreshRejected(err):
		slog.Warn("session: refresh token rejected, signing out", "user_id", s.User.ID, "error", err)
		if err := p.store.Delete(ctx, s.ID); err != nil {
			slog.Error("session: failed to delete session", "error", err)
		}
		p.clearCookie(w, r)
		p.publish(SignedOut, s)
	default:
		// The stored session stays so the next request can retry the refresh.
		slog.Warn("session: token refresh failed, request served signed out", "user_id", s.User.ID, "error", err)
	}
	return nil
}

// refreshRejected reports whether the provider definitively refused the
// refresh token, or the session disappeared while refreshing. Network errors
// and 5xx answers are transient.
func refreshRejected(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var idErr *identity.Error
	return errors.As(err, &idErr) && idErr.StatusCode >= 400 && idErr.StatusCode < 500
}

// fresh reports whether the access token verifies and is not about to expire.
func (p *Provider) fresh(s *Session) bool {
	if !p.clock.Now().Add(refreshSkew).Before(s.ExpiresAt) {
		return false
	}
	claims, err := p.verifier.Verify(s.AccessToken)
	if err != nil {
		return false
	}
	return claims.Subject == s.User.ID
}

// refresh spends the refresh token once per session even when several
// requests of the same browser notice the expiry together.
func (p *Provider) refresh(ctx context.Context, stale *Session) (*Session, error) {
	v, err, _ := p.refreshes.Do(stale.ID, func() (any, error) {
		// Shared by every waiting request, so it must outlive the caller's.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		current, err := p.store.Get(ctx, stale.ID)
		if err != nil {
			return nil, fmt.Errorf("reload session: %w", err)
		}
		if current.RefreshToken != stale.RefreshToken && p.fresh(current) {
			return current, nil
		}

		tokens, err := p.identity.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return nil, err
		}
		current.AccessToken = tokens.AccessToken
		current.RefreshToken = tokens.RefreshToken
		current.ExpiresAt = tokens.Expiry(p.clock.Now())
		if tokens.User.ID != "" {
			current.User = userFromIdentity(tokens.User)
		}
		if err := p.store.Save(ctx, current); err != nil {
			return nil, err
		}
		p.publish(TokenRefreshed, current)
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	s := *v.(*Session)
	return &s, nil
}

// Begin creates a session from a token grant, sets the cookie and publishes
// SIGNED_IN. It must be called before the response is written.
func (p *Provider) Begin(w http.ResponseWriter, r *http.Request, tokens *identity.Tokens) (*Session, error) {
	now := p.clock.Now()
	s := &Session{
		ID:           uuid.NewString(),
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    tokens.Expiry(now),
		User:         userFromIdentity(tokens.User),
		CreatedAt:    now,
		Device:       DeviceLabel(r.UserAgent()),
	}
	if p.locate != nil {
		s.Country = p.locate(httputil.ClientIP(r))
	}

	if err := p.store.Save(r.Context(), s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	cs := p.cookie(r)
	cs.Values[sessionIDKey] = s.ID
	if err := cs.Save(r, w); err != nil {
		return nil, fmt.Errorf("write session cookie: %w", err)
	}

	if st := stateFrom(r.Context()); st != nil {
		st.Session = s
		st.User = &s.User
	}
	p.publish(SignedIn, s)
	return s, nil
}

// SignOut revokes the session at the provider (best effort), forgets it and
// publishes SIGNED_OUT.
func (p *Provider) SignOut(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	st := stateFrom(ctx)
	if st == nil || st.Session == nil {
		p.clearCookie(w, r)
		return nil
	}
	s := st.Session

	if err := p.identity.SignOut(ctx, s.AccessToken); err != nil {
		slog.Warn("session: provider sign-out failed", "user_id", s.User.ID, "error", err)
	}
	if err := p.store.Delete(ctx, s.ID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	p.clearCookie(w, r)

	st.Session = nil
	st.User = nil
	p.publish(SignedOut, s)
	return nil
}

// UpdateUser writes metadata to the auth provider and, on success, updates
// the stored session and publishes USER_UPDATED.
func (p *Provider) UpdateUser(ctx context.Context, data map[string]any) (*User, error) {
	st := stateFrom(ctx)
	if st == nil {
		panic(ErrNoProvider)
	}
	if st.Session == nil {
		return nil, ErrNotSignedIn
	}

	u, err := p.identity.UpdateUser(ctx, st.Session.AccessToken, data)
	if err != nil {
		return nil, err
	}

	updated := userFromIdentity(*u)
	if updated.ID == "" {
		updated.ID = st.Session.User.ID
	}
	if updated.Email == "" {
		updated.Email = st.Session.User.Email
	}
	st.Session.User = updated
	st.User = &st.Session.User

	if err := p.store.Save(ctx, st.Session); err != nil {
		slog.Error("session: failed to persist updated user", "user_id", updated.ID, "error", err)
	}
	p.publish(UserUpdated, st.Session)
	return st.User, nil
}

// AddFlash queues a one-shot message of the given kind for the next page.
func (p *Provider) AddFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	cs := p.cookie(r)
	cs.AddFlash(message, kind)
	if err := cs.Save(r, w); err != nil {
		slog.Error("session: failed to save flash", "error", err)
	}
}

// Flashes pops the queued messages of the given kind.
func (p *Provider) Flashes(w http.ResponseWriter, r *http.Request, kind string) []string {
	cs := p.cookie(r)
	raw := cs.Flashes(kind)
	if len(raw) == 0 {
		return nil
	}
	if err := cs.Save(r, w); err != nil {
		slog.Error("session: failed to save flashes", "error", err)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if msg, ok := v.(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (p *Provider) clearCookie(w http.ResponseWriter, r *http.Request) {
	cs := p.cookie(r)
	if _, ok := cs.Values[sessionIDKey]; !ok {
		return
	}
	delete(cs.Values, sessionIDKey)
	if err := cs.Save(r, w); err != nil {
		slog.Error("session: failed to clear cookie", "error", err)
	}
}

func userFromIdentity(u identity.User) User {
	return User{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName(),
		Metadata:    u.UserMetadata,
	}
}

// RequireSession guards pages that need a signed-in user: HTML requests are
// redirected to /login and JSON requests get 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := FromContext(r.Context())
		switch {
		case st.Loading:
			w.Header().Set("Retry-After", "1")
			if httputil.WantsJSON(r) {
				httputil.WriteError(w, http.StatusServiceUnavailable, "loading")
				return
			}
			http.Error(w, "Loading...", http.StatusServiceUnavailable)
		case st.Session == nil:
			if httputil.WantsJSON(r) {
				httputil.WriteError(w, http.StatusUnauthorized, "not signed in")
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
		default:
			next.ServeHTTP(w, r)
		}
	})
}
