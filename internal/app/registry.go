package app

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

var ErrHostParty = errors.New("host party cannot revert to AI")

// Registry is the authoritative mapping from party slot to control mode.
// The simulation's AI scheduler reads it every tick to decide whether to run
// AI behavior for a party; the UI reads it to render per-party status.
type Registry struct {
	mu      sync.RWMutex
	session *domain.Session
	order   []domain.PartyID
	now     func() time.Time
}

func NewRegistry(session *domain.Session, order []domain.PartyID) *Registry {
	return &Registry{session: session, order: order, now: time.Now}
}

// MarkHuman binds a party to a connection and flips it to human control.
// Re-calling with a new connection re-binds the party; the old binding is
// released first so a party is never bound to two connections.
func (r *Registry) MarkHuman(party domain.PartyID, alias string, conn domain.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.session.Parties[party]
	if !ok {
		return fmt.Errorf("mark human %q: %w", party, domain.ErrUnknownParty)
	}
	p.Mode = domain.ModeHuman
	p.Alias = alias
	p.Connection = conn
	p.LastHeartbeat = r.now()
	log.Info().Str("module", "app.registry").Str("party", string(party)).
		Str("alias", alias).Str("conn", string(conn)).Msg("party human-controlled")
	return nil
}

// MarkAI reverts a party to AI control and clears its binding. The last
// alias is kept for display continuity. No-op when already AI. The host's
// own slot never reverts.
func (r *Registry) MarkAI(party domain.PartyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if party == r.session.HostParty {
		return ErrHostParty
	}
	p, ok := r.session.Parties[party]
	if !ok {
		return fmt.Errorf("mark AI %q: %w", party, domain.ErrUnknownParty)
	}
	if p.Mode == domain.ModeAI {
		return nil
	}
	p.Mode = domain.ModeAI
	p.Connection = ""
	log.Info().Str("module", "app.registry").Str("party", string(party)).Msg("party reverted to AI")
	return nil
}

// MarkAIIf reverts a party to AI only while it is still bound to the given
// connection, in one critical section. A stale link's close must not undo a
// binding that a fresh join already replaced; checking and reverting under
// separate locks would leave that window open.
func (r *Registry) MarkAIIf(party domain.PartyID, conn domain.ConnectionID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.session.Parties[party]
	if !ok {
		return fmt.Errorf("mark AI %q: %w", party, domain.ErrUnknownParty)
	}
	if p.Mode != domain.ModeHuman || p.Connection != conn {
		return nil
	}
	if party == r.session.HostParty {
		return ErrHostParty
	}
	p.Mode = domain.ModeAI
	p.Connection = ""
	log.Info().Str("module", "app.registry").Str("party", string(party)).
		Str("conn", string(conn)).Msg("party reverted to AI")
	return nil
}

// Touch stamps the party's liveness on heartbeat receipt. Advisory only:
// nothing evicts on staleness, closes still come from the transport.
func (r *Registry) Touch(party domain.PartyID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.session.Parties[party]; ok {
		p.LastHeartbeat = r.now()
	}
}

// ListParties returns the fixed, ordered slot list with state snapshots.
func (r *Registry) ListParties() []domain.PartyState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.PartyState, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.session.Parties[id]; ok {
			out = append(out, *p)
		}
	}
	return out
}

// Get returns a snapshot of one party's state.
func (r *Registry) Get(party domain.PartyID) (domain.PartyState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.session.Parties[party]
	if !ok {
		return domain.PartyState{}, false
	}
	return *p, true
}
