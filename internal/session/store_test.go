package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestMemoryStore_SaveGetDelete(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(time.Hour, clock)
	ctx := context.Background()

	s := &Session{ID: "s1", AccessToken: "at", User: User{ID: "u1"}}
	if err := store.Save(ctx, s); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AccessToken != "at" || got.User.ID != "u1" {
		t.Errorf("unexpected session: %+v", got)
	}

	got.AccessToken = "mutated"
	again, _ := store.Get(ctx, "s1")
	if again.AccessToken != "at" {
		t.Error("store must return copies")
	}

	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(time.Hour, clock)
	ctx := context.Background()

	_ = store.Save(ctx, &Session{ID: "s1"})

	clock.Advance(59 * time.Minute)
	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("expected session before max age, got %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := store.Get(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound at max age, got %v", err)
	}
}

func TestMemoryStore_SaveExtendsExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(time.Hour, clock)
	ctx := context.Background()

	_ = store.Save(ctx, &Session{ID: "s1"})
	clock.Advance(50 * time.Minute)
	_ = store.Save(ctx, &Session{ID: "s1"})
	clock.Advance(50 * time.Minute)

	if _, err := store.Get(ctx, "s1"); err != nil {
		t.Fatalf("expected session to survive after re-save, got %v", err)
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryStore(time.Hour, clock)
	ctx := context.Background()

	_ = store.Save(ctx, &Session{ID: "old"})
	clock.Advance(30 * time.Minute)
	_ = store.Save(ctx, &Session{ID: "new"})
	clock.Advance(45 * time.Minute)

	if n := store.Sweep(); n != 1 {
		t.Errorf("expected 1 swept session, got %d", n)
	}
	if _, err := store.Get(ctx, "new"); err != nil {
		t.Errorf("expected newer session to remain, got %v", err)
	}
}
