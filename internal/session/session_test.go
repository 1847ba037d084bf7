package session

import (
	"context"
	"errors"
	"testing"
)

func TestFromContext_PanicsOutsideProvider(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoProvider) {
			t.Fatalf("expected panic with ErrNoProvider, got %v", r)
		}
	}()
	FromContext(context.Background())
}

func TestUserFromContext_PanicsOutsideProvider(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	UserFromContext(context.Background())
}

func TestLookup_NoPanic(t *testing.T) {
	if _, ok := Lookup(context.Background()); ok {
		t.Fatal("expected no state")
	}
}

func TestWithState_RoundTrip(t *testing.T) {
	s := &Session{ID: "s1", User: User{ID: "u1", Email: "a@example.com"}}
	ctx := WithState(context.Background(), State{Session: s, User: &s.User})

	if got := SessionFromContext(ctx); got != s {
		t.Errorf("expected session pointer to round trip")
	}
	if got := UserFromContext(ctx); got.ID != "u1" {
		t.Errorf("expected user u1, got %+v", got)
	}
	if !FromContext(ctx).SignedIn() {
		t.Error("expected signed in state")
	}
}

func TestWithState_SignedOut(t *testing.T) {
	ctx := WithState(context.Background(), State{})
	if SessionFromContext(ctx) != nil || UserFromContext(ctx) != nil {
		t.Error("expected nil session and user")
	}
	if FromContext(ctx).SignedIn() {
		t.Error("expected signed out state")
	}
}

func TestUser_Initial(t *testing.T) {
	tests := []struct {
		user User
		want string
	}{
		{User{DisplayName: "alice", Email: "x@example.com"}, "A"},
		{User{Email: "bob@example.com"}, "B"},
		{User{DisplayName: "émile"}, "É"},
		{User{}, "?"},
	}
	for _, tt := range tests {
		if got := tt.user.Initial(); got != tt.want {
			t.Errorf("Initial(%+v) = %q, want %q", tt.user, got, tt.want)
		}
	}
}
