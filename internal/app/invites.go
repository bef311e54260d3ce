package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

// InviteMinter is the relay-side half of invite issuance. The relay mints
// the identifier so invite links resolve without contacting the host.
type InviteMinter interface {
	CreateInvite(ctx context.Context, session domain.SessionID, party domain.PartyID) (string, error)
}

// InviteAuthority issues and validates single-party capability tokens. At
// most one invite is outstanding per party; minting again overwrites the
// previous token, which stops validating immediately.
type InviteAuthority struct {
	mu        sync.RWMutex
	session   *domain.Session
	minter    InviteMinter
	publicURL string
	now       func() time.Time
}

func NewInviteAuthority(session *domain.Session, minter InviteMinter, publicURL string) *InviteAuthority {
	return &InviteAuthority{session: session, minter: minter, publicURL: publicURL, now: time.Now}
}

// CreateInvite mints an invite for the party and returns its shareable link.
// Relay unreachability surfaces as an error; the rest of the match carries on.
func (a *InviteAuthority) CreateInvite(ctx context.Context, party domain.PartyID) (*domain.Invite, string, error) {
	if _, ok := a.session.Parties[party]; !ok {
		return nil, "", fmt.Errorf("invite for %q: %w", party, domain.ErrUnknownParty)
	}
	if party == a.session.HostParty {
		return nil, "", fmt.Errorf("invite for %q: %w", party, ErrHostParty)
	}

	// The mint is an HTTP round trip; holding the lock across it would stall
	// Validate, and with it all inbound join handling, for up to the client
	// timeout. The party slot set is fixed at session creation, so the
	// checks above need no lock.
	id, err := a.minter.CreateInvite(ctx, a.session.ID, party)
	if err != nil {
		return nil, "", fmt.Errorf("unable to reach multiplayer service: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	inv := &domain.Invite{ID: id, Party: party, CreatedAt: a.now()}
	a.session.Invites[party] = inv
	log.Info().Str("module", "app.invites").Str("party", string(party)).Msg("invite created")
	return inv, fmt.Sprintf("%s/join?invite=%s", a.publicURL, id), nil
}

// Validate reports whether the presented token is the currently outstanding
// invite for the party. Pure over the session's invite table: unknown party,
// never-issued invite, and mismatched identifier all fail.
func (a *InviteAuthority) Validate(party domain.PartyID, inviteID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	inv, ok := a.session.Invites[party]
	return ok && inviteID != "" && inv.ID == inviteID
}

// Drop discards the outstanding invite for a party, if any. Used by the
// host's revoke action.
func (a *InviteAuthority) Drop(party domain.PartyID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.session.Invites, party)
}
