package pixel

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// failingStorage simulates disabled/blocked local storage.
type failingStorage struct{}

func (failingStorage) GetItem(string) (string, bool) { return "", false }
func (failingStorage) SetItem(string, string) error  { return errors.New("storage disabled") }
func (failingStorage) RemoveItem(string)             {}

func TestVisitorIDIsStable(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()

	first := newIdentity("42", storage, clock, 0)
	if first.VisitorID() == "" {
		t.Fatal("expected a visitor id")
	}
	if !strings.HasPrefix(first.VisitorID(), "plv_") {
		t.Fatalf("unexpected visitor id format: %s", first.VisitorID())
	}

	second := newIdentity("42", storage, clock, 0)
	if second.VisitorID() != first.VisitorID() {
		t.Fatalf("visitor id changed across initializations: %s vs %s", first.VisitorID(), second.VisitorID())
	}
}

func TestVisitorIDScopedPerOwner(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()

	a := newIdentity("1", storage, clock, 0)
	b := newIdentity("2", storage, clock, 0)
	if a.VisitorID() == b.VisitorID() {
		t.Fatal("expected different visitor ids for different owners")
	}
}

func TestSessionContinuity(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()
	id := newIdentity("42", storage, clock, 0)

	s1 := id.SessionID()
	if s1 == "" {
		t.Fatal("expected a session id")
	}
	if !id.SessionIsNew() {
		t.Fatal("first session should be marked new")
	}

	clock.Advance(29 * time.Minute)
	if got := id.SessionID(); got != s1 {
		t.Fatalf("gap under 30min should keep session: got %s, want %s", got, s1)
	}

	// The 29min call refreshed lastActivity, so 31 more minutes exceeds
	// the window measured from the refresh.
	clock.Advance(31 * time.Minute)
	s2 := id.SessionID()
	if s2 == s1 {
		t.Fatal("gap over 30min should mint a new session id")
	}
}

func TestSessionSurvivesReload(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()

	s1 := newIdentity("42", storage, clock, 0).SessionID()

	clock.Advance(5 * time.Minute)
	reloaded := newIdentity("42", storage, clock, 0)
	if got := reloaded.SessionID(); got != s1 {
		t.Fatalf("session should survive a reload within the window: got %s, want %s", got, s1)
	}
	if reloaded.SessionIsNew() {
		t.Fatal("resumed session must not be marked new")
	}
}

func TestShownRegistryCooldownBoundary(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := newFakeClock(start)
	storage := NewMemoryStorage()

	id := newIdentity("42", storage, clock, 0)
	id.MarkShown("expired-popup")

	clock.Advance(defaultCooldown + time.Millisecond)
	id.MarkShown("fresh-popup")
	reloaded := newIdentity("42", storage, clock, 0)

	if reloaded.WasShown("expired-popup") {
		t.Fatal("entry older than the cooldown must be pruned on load")
	}
	if !reloaded.WasShown("fresh-popup") {
		t.Fatal("entry within the cooldown must be retained")
	}
}

func TestShownRegistryRetainedJustInsideCooldown(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()

	id := newIdentity("42", storage, clock, 0)
	id.MarkShown("popup-1")

	clock.Advance(defaultCooldown - time.Millisecond)
	if !newIdentity("42", storage, clock, 0).WasShown("popup-1") {
		t.Fatal("entry 1ms inside the cooldown must be retained")
	}

	clock.Advance(2 * time.Millisecond)
	if newIdentity("42", storage, clock, 0).WasShown("popup-1") {
		t.Fatal("entry 1ms past the cooldown must be pruned")
	}
}

func TestStorageFailureDegradesToInMemory(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	id := newIdentity("42", failingStorage{}, clock, 0)

	// Identity still works, just page-view-scoped.
	if id.VisitorID() == "" {
		t.Fatal("expected an in-memory visitor id despite storage failure")
	}
	s1 := id.SessionID()
	if s1 == "" {
		t.Fatal("expected an in-memory session id despite storage failure")
	}
	clock.Advance(time.Minute)
	if got := id.SessionID(); got != s1 {
		t.Fatalf("in-memory session should stay continuous: got %s, want %s", got, s1)
	}

	id.MarkShown("popup-1")
	if !id.WasShown("popup-1") {
		t.Fatal("shown registry should work in memory despite storage failure")
	}
}

func TestCorruptSessionRecordIsDiscarded(t *testing.T) {
	clock := newFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	storage := NewMemoryStorage()
	storage.SetItem("poplift_session_42_analytics", "{not json")

	id := newIdentity("42", storage, clock, 0)
	if id.SessionID() == "" {
		t.Fatal("corrupt session record should be replaced, not fatal")
	}
}
