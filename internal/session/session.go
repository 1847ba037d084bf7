package session

import (
	"context"
	"errors"
	"time"
	"unicode"
)

// ErrNoProvider is the panic value of the accessors when the request never
// passed through Provider.Middleware.
var ErrNoProvider = errors.New("session: accessed outside session provider")

// Event names an auth-state change.
type Event string

const (
	SignedIn       Event = "SIGNED_IN"
	SignedOut      Event = "SIGNED_OUT"
	TokenRefreshed Event = "TOKEN_REFRESHED"
	UserUpdated    Event = "USER_UPDATED"
)

type User struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	DisplayName string         `json:"displayName,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Initial returns the uppercase first letter of the display name, falling
// back to the email.
func (u User) Initial() string {
	name := u.DisplayName
	if name == "" {
		name = u.Email
	}
	for _, r := range name {
		return string(unicode.ToUpper(r))
	}
	return "?"
}

// Session is an authenticated browser session. Tokens are never serialized
// into page JSON.
type Session struct {
	ID           string    `json:"id"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         User      `json:"user"`
	CreatedAt    time.Time `json:"createdAt"`
	Device       string    `json:"device,omitempty"`
	Country      string    `json:"country,omitempty"`
}

// State is what every page reads: the current session and user, or nil for
// both when signed out. Loading is true until the provider has started.
type State struct {
	Session *Session
	User    *User
	Loading bool
}

// SignedIn reports whether a session is present.
func (s State) SignedIn() bool {
	return s.Session != nil
}

type contextKey struct{}

func withState(ctx context.Context, st *State) context.Context {
	return context.WithValue(ctx, contextKey{}, st)
}

// Lookup returns the session state carried by ctx, if any.
func Lookup(ctx context.Context) (State, bool) {
	st, ok := ctx.Value(contextKey{}).(*State)
	if !ok || st == nil {
		return State{}, false
	}
	return *st, true
}

// FromContext returns the session state and panics with ErrNoProvider when
// ctx was not produced by the provider's middleware.
func FromContext(ctx context.Context) State {
	st, ok := Lookup(ctx)
	if !ok {
		panic(ErrNoProvider)
	}
	return st
}

func SessionFromContext(ctx context.Context) *Session {
	return FromContext(ctx).Session
}

func UserFromContext(ctx context.Context) *User {
	return FromContext(ctx).User
}

// WithState returns a context carrying st. It lets handler tests run without
// the full provider.
func WithState(ctx context.Context, st State) context.Context {
	return withState(ctx, &st)
}

func stateFrom(ctx context.Context) *State {
	st, _ := ctx.Value(contextKey{}).(*State)
	return st
}
