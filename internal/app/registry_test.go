package app

import (
	"errors"
	"testing"
	"time"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

func newTestSession(t *testing.T) (*domain.Session, []domain.PartyID) {
	t.Helper()
	parties := domain.PartyIDs(3)
	session, err := domain.NewSession("s1", "player1", "host", parties)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return session, parties
}

// bindingInvariant checks the rule that holds at every instant: one control
// mode per party, and a connection binding iff the mode is human.
func bindingInvariant(t *testing.T, r *Registry) {
	t.Helper()
	for _, p := range r.ListParties() {
		switch p.Mode {
		case domain.ModeHuman:
			if p.Connection == "" {
				t.Fatalf("party %s human without binding", p.ID)
			}
		case domain.ModeAI:
			if p.Connection != "" {
				t.Fatalf("party %s AI with binding %s", p.ID, p.Connection)
			}
		default:
			t.Fatalf("party %s has impossible mode %q", p.ID, p.Mode)
		}
	}
}

func TestMarkHumanBindsParty(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)

	if err := r.MarkHuman("player2", "ada", "c1"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	p, ok := r.Get("player2")
	if !ok {
		t.Fatal("player2 missing")
	}
	if p.Mode != domain.ModeHuman || p.Connection != "c1" || p.Alias != "ada" {
		t.Fatalf("unexpected state: %+v", p)
	}
	if p.LastHeartbeat.IsZero() {
		t.Fatal("heartbeat not stamped on bind")
	}
	bindingInvariant(t, r)
}

func TestMarkHumanRebinds(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)

	if err := r.MarkHuman("player2", "ada", "c1"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	// A reconnect replaces the stale link with a fresh connection id.
	if err := r.MarkHuman("player2", "ada", "c2"); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	p, _ := r.Get("player2")
	if p.Connection != "c2" {
		t.Fatalf("got binding %s, want c2", p.Connection)
	}
	bindingInvariant(t, r)
}

func TestMarkAIRevertsAndKeepsAlias(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)

	if err := r.MarkHuman("player2", "ada", "c1"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	if err := r.MarkAI("player2"); err != nil {
		t.Fatalf("MarkAI: %v", err)
	}
	p, _ := r.Get("player2")
	if p.Mode != domain.ModeAI || p.Connection != "" {
		t.Fatalf("unexpected state after revert: %+v", p)
	}
	if p.Alias != "ada" {
		t.Fatalf("alias lost on revert: %+v", p)
	}
	bindingInvariant(t, r)
}

func TestMarkAIIsNoOpWhenAlreadyAI(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	if err := r.MarkAI("player3"); err != nil {
		t.Fatalf("MarkAI on AI slot: %v", err)
	}
	bindingInvariant(t, r)
}

func TestMarkAIRefusesHostParty(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	if err := r.MarkAI("player1"); !errors.Is(err, ErrHostParty) {
		t.Fatalf("got %v, want ErrHostParty", err)
	}
	p, _ := r.Get("player1")
	if p.Mode != domain.ModeHuman {
		t.Fatal("host slot must stay human")
	}
}

func TestMarkAIUnknownParty(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	if err := r.MarkAI("player9"); !errors.Is(err, domain.ErrUnknownParty) {
		t.Fatalf("got %v, want ErrUnknownParty", err)
	}
}

func TestMarkAIIfRevertsMatchingBinding(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	if err := r.MarkHuman("player2", "ada", "c1"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	if err := r.MarkAIIf("player2", "c1"); err != nil {
		t.Fatalf("MarkAIIf: %v", err)
	}
	p, _ := r.Get("player2")
	if p.Mode != domain.ModeAI || p.Connection != "" {
		t.Fatalf("binding not reverted: %+v", p)
	}
	bindingInvariant(t, r)
}

func TestMarkAIIfSkipsMismatchedBinding(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	if err := r.MarkHuman("player2", "ada", "c2"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	// The party moved on to c2; the stale c1 close must not revert it.
	if err := r.MarkAIIf("player2", "c1"); err != nil {
		t.Fatalf("MarkAIIf: %v", err)
	}
	p, _ := r.Get("player2")
	if p.Mode != domain.ModeHuman || p.Connection != "c2" {
		t.Fatalf("stale revert applied: %+v", p)
	}
	// Already-AI slots are left alone too.
	if err := r.MarkAIIf("player3", "c9"); err != nil {
		t.Fatalf("MarkAIIf on AI slot: %v", err)
	}
	bindingInvariant(t, r)
}

func TestListPartiesKeepsOrder(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	list := r.ListParties()
	if len(list) != 3 {
		t.Fatalf("got %d parties, want 3", len(list))
	}
	for i, p := range list {
		if p.ID != parties[i] {
			t.Fatalf("slot %d is %s, want %s", i, p.ID, parties[i])
		}
	}
}

func TestTouchStampsHeartbeat(t *testing.T) {
	session, parties := newTestSession(t)
	r := NewRegistry(session, parties)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	if err := r.MarkHuman("player2", "ada", "c1"); err != nil {
		t.Fatalf("MarkHuman: %v", err)
	}
	now = now.Add(3 * time.Second)
	r.Touch("player2")
	p, _ := r.Get("player2")
	if !p.LastHeartbeat.Equal(now) {
		t.Fatalf("got heartbeat %v, want %v", p.LastHeartbeat, now)
	}
}
