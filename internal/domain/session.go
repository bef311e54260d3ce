package domain

import (
	"errors"
	"fmt"
	"time"
)

type SessionID string

var ErrUnknownParty = errors.New("unknown party")

// NegotiationState tracks one peer link through the offer/answer exchange.
// Host-side links move Pending → OfferSent → Connected; client-side links
// move AwaitingOffer → AnswerSent → Connected. Closed is terminal from any
// state.
type NegotiationState string

const (
	StatePending       NegotiationState = "pending"
	StateOfferSent     NegotiationState = "offer-sent"
	StateAwaitingOffer NegotiationState = "awaiting-offer"
	StateAnswerSent    NegotiationState = "answer-sent"
	StateConnected     NegotiationState = "connected"
	StateClosed        NegotiationState = "closed"
)

// ConnectionState is one negotiated peer link for one joined participant.
type ConnectionState struct {
	ID        ConnectionID
	Party     PartyID
	Alias     string
	State     NegotiationState
	CreatedAt time.Time
}

// Invite is a capability token scoped to exactly one (session, party) pair.
type Invite struct {
	ID        string
	Party     PartyID
	CreatedAt time.Time
}

// Session is the host-owned coordination context for one match. All mutation
// goes through the registry, invite authority, and negotiator; the host
// goroutine is the single writer of truth and everyone else holds mirrors.
type Session struct {
	ID          SessionID
	HostParty   PartyID
	Parties     map[PartyID]*PartyState
	Connections map[ConnectionID]*ConnectionState
	Invites     map[PartyID]*Invite
}

// NewSession builds a session with the given ordered slots, all AI-controlled
// except the host's own, which is human from the start and bound to the local
// sentinel so the binding-iff-human rule holds for every slot.
func NewSession(id SessionID, hostParty PartyID, hostAlias string, parties []PartyID) (*Session, error) {
	if err := ValidAlias(hostAlias); err != nil {
		return nil, err
	}
	s := &Session{
		ID:          id,
		HostParty:   hostParty,
		Parties:     make(map[PartyID]*PartyState, len(parties)),
		Connections: make(map[ConnectionID]*ConnectionState),
		Invites:     make(map[PartyID]*Invite),
	}
	for _, p := range parties {
		s.Parties[p] = &PartyState{ID: p, Mode: ModeAI}
	}
	host, ok := s.Parties[hostParty]
	if !ok {
		return nil, fmt.Errorf("host party %q: %w", hostParty, ErrUnknownParty)
	}
	host.Mode = ModeHuman
	host.Alias = hostAlias
	host.Connection = LocalConnection
	return s, nil
}

// PartyIDs returns the conventional ordered slot list for a player count
// of 2–4: player1 is the host seat, the rest start AI-controlled.
func PartyIDs(count int) []PartyID {
	if count < 2 {
		count = 2
	}
	if count > 4 {
		count = 4
	}
	out := make([]PartyID, count)
	for i := range out {
		out[i] = PartyID(fmt.Sprintf("player%d", i+1))
	}
	return out
}
