package app

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/protocol"
)

var (
	ErrInviteRejected = errors.New("invite no longer valid")
	ErrLinkClosed     = errors.New("peer link closed")
)

// Joiner is the client half of the negotiation: it claims one party slot
// with one invite and one fresh connection id, then mirrors the host's
// decisions. It holds no authoritative state; the host is the single writer
// of truth.
type Joiner struct {
	signal SignalSender
	peers  PeerFactory

	session  domain.SessionID
	party    domain.PartyID
	inviteID string
	alias    string
	connID   domain.ConnectionID

	mu    sync.Mutex
	state domain.NegotiationState
	link  PeerLink
	done  chan error
}

func NewJoiner(signal SignalSender, peers PeerFactory, session domain.SessionID, party domain.PartyID, inviteID, alias string) (*Joiner, error) {
	if err := domain.ValidAlias(alias); err != nil {
		return nil, err
	}
	return &Joiner{
		signal:   signal,
		peers:    peers,
		session:  session,
		party:    party,
		inviteID: inviteID,
		alias:    alias,
		connID:   domain.ConnectionID(uuid.NewString()),
		state:    domain.StateAwaitingOffer,
		done:     make(chan error, 1),
	}, nil
}

// ConnectionID returns the client-generated id for this join attempt.
func (j *Joiner) ConnectionID() domain.ConnectionID { return j.connID }

// Start sends the join request. The caller must already have subscribed
// HandleSignal on the session's transport.
func (j *Joiner) Start() error {
	log.Info().Str("module", "app.joiner").Str("party", string(j.party)).
		Str("conn", string(j.connID)).Msg("requesting join")
	return j.signal.Send(j.session, &protocol.JoinRequest{
		ConnectionID: j.connID,
		Party:        j.party,
		InviteID:     j.inviteID,
		Alias:        j.alias,
	})
}

// Wait blocks until the data channel is acknowledged open, the host rejects
// the invite, the link fails, or ctx expires.
func (j *Joiner) Wait(ctx context.Context) error {
	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		j.fail(ctx.Err())
		return ctx.Err()
	}
}

// HandleSignal processes one relayed message. Everything addressed to other
// connections of the session is filtered out here.
func (j *Joiner) HandleSignal(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Offer:
		if m.InviteID == j.inviteID && m.Party == j.party {
			j.handleOffer(m)
		}
	case *protocol.Candidate:
		if m.ConnectionID == j.connID {
			j.handleCandidate(m)
		}
	case *protocol.Acknowledge:
		if m.ConnectionID == j.connID {
			j.handleAcknowledge()
		}
	case *protocol.InviteInvalid:
		if m.ConnectionID == j.connID || (m.Party == j.party && m.ConnectionID == "") {
			log.Warn().Str("module", "app.joiner").Str("reason", m.Reason).Msg("join rejected")
			j.fail(ErrInviteRejected)
		}
	}
}

func (j *Joiner) handleOffer(m *protocol.Offer) {
	j.mu.Lock()
	if j.state != domain.StateAwaitingOffer {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	link, err := j.peers.NewAnswering(j.connID)
	if err != nil {
		j.fail(err)
		return
	}
	j.mu.Lock()
	j.link = link
	j.mu.Unlock()

	link.OnICECandidate(func(candidate string) {
		_ = j.signal.Send(j.session, &protocol.Candidate{ConnectionID: j.connID, Candidate: candidate})
	})
	link.OnMessage(func(data []byte) {
		// Host heartbeats are advisory; nothing to update on this side.
	})
	link.OnClosed(func() {
		j.fail(ErrLinkClosed)
	})

	sdp, err := link.ApplyOfferCreateAnswer(m.SDP)
	if err != nil {
		log.Error().Err(err).Str("module", "app.joiner").Msg("offer rejected")
		j.fail(err)
		return
	}
	j.setState(domain.StateAnswerSent)
	if err := j.signal.Send(j.session, &protocol.Answer{
		ConnectionID: j.connID,
		Party:        j.party,
		InviteID:     j.inviteID,
		Alias:        j.alias,
		SDP:          sdp,
	}); err != nil {
		j.fail(err)
		return
	}
	log.Info().Str("module", "app.joiner").Str("conn", string(j.connID)).Msg("answer sent")
}

func (j *Joiner) handleCandidate(m *protocol.Candidate) {
	j.mu.Lock()
	link := j.link
	j.mu.Unlock()
	if link == nil {
		return
	}
	if err := link.AddCandidate(m.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "app.joiner").Msg("candidate rejected")
	}
}

func (j *Joiner) handleAcknowledge() {
	j.mu.Lock()
	if j.state == domain.StateClosed || j.state == domain.StateConnected {
		j.mu.Unlock()
		return
	}
	j.state = domain.StateConnected
	j.mu.Unlock()
	log.Info().Str("module", "app.joiner").Str("party", string(j.party)).Msg("join acknowledged")
	j.done <- nil
}

func (j *Joiner) setState(s domain.NegotiationState) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != domain.StateClosed {
		j.state = s
	}
}

func (j *Joiner) fail(err error) {
	j.mu.Lock()
	if j.state == domain.StateClosed {
		j.mu.Unlock()
		return
	}
	j.state = domain.StateClosed
	link := j.link
	j.mu.Unlock()
	if link != nil {
		link.Close()
	}
	select {
	case j.done <- err:
	default:
	}
}

// Close abandons the join attempt.
func (j *Joiner) Close() {
	j.fail(ErrLinkClosed)
}
