package memory

import (
	"testing"

	"trivia-service/internal/app"
	"trivia-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()

	first := app.NewSession("game-1", domain.GameConfig{Amount: 1})
	store.Put(first)
	if got, ok := store.Get("game-1"); !ok || got != first {
		t.Fatalf("expected session present")
	}

	second := app.NewSession("game-1", domain.GameConfig{Amount: 1})
	store.Put(second)
	if got, _ := store.Get("game-1"); got != second {
		t.Fatalf("expected replacement to become active")
	}
	if n := len(store.All()); n != 1 {
		t.Fatalf("expected one session, got %d", n)
	}

	store.Delete("game-1")
	if _, ok := store.Get("game-1"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStoreReplaceRequiresActiveSession(t *testing.T) {
	store := NewSessionStore()

	old := app.NewSession("game-1", domain.GameConfig{Amount: 1})
	next := app.NewSession("game-1", domain.GameConfig{Amount: 1})
	if store.Replace(old, next) {
		t.Fatalf("expected replace of an unknown game to fail")
	}

	store.Put(old)
	if !store.Replace(old, next) {
		t.Fatalf("expected replace of the active session to succeed")
	}
	if got, _ := store.Get("game-1"); got != next {
		t.Fatalf("expected next to be active")
	}

	stale := app.NewSession("game-1", domain.GameConfig{Amount: 1})
	if store.Replace(old, stale) {
		t.Fatalf("expected replace of a superseded session to fail")
	}

	store.Delete("game-1")
	if store.Replace(next, stale) {
		t.Fatalf("expected replace after delete to fail")
	}
	if len(store.All()) != 0 {
		t.Fatalf("expected no sessions after a failed replace")
	}
}
