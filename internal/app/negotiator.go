package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/protocol"
)

// SignalSender is the outbound half of the signaling transport.
type SignalSender interface {
	Send(domain.SessionID, protocol.Message) error
}

// PeerLink is one direct link under negotiation. Implemented by the rtc
// adapter; tests substitute fakes.
type PeerLink interface {
	CreateOffer() (string, error)
	ApplyAnswer(sdp string) error
	ApplyOfferCreateAnswer(sdp string) (string, error)
	AddCandidate(candidateJSON string) error
	Send(data []byte) error
	OnICECandidate(func(string))
	OnMessage(func([]byte))
	OnClosed(func())
	Close()
}

// PeerFactory creates links for either end of the exchange.
type PeerFactory interface {
	NewOffering(id domain.ConnectionID) (PeerLink, error)
	NewAnswering(id domain.ConnectionID) (PeerLink, error)
}

type hostConn struct {
	id       domain.ConnectionID
	party    domain.PartyID
	alias    string
	state    domain.NegotiationState
	link     PeerLink
	joinedAt time.Time
}

// HostNegotiator turns validated join requests into live data channels and
// keeps the party registry in step. One instance per hosted session; all
// inbound signals of the session funnel through HandleSignal.
type HostNegotiator struct {
	session  *domain.Session
	registry *Registry
	invites  *InviteAuthority
	signal   SignalSender
	peers    PeerFactory

	mu    sync.Mutex
	conns map[domain.ConnectionID]*hostConn
}

func NewHostNegotiator(
	session *domain.Session,
	registry *Registry,
	invites *InviteAuthority,
	signal SignalSender,
	peers PeerFactory,
) *HostNegotiator {
	return &HostNegotiator{
		session:  session,
		registry: registry,
		invites:  invites,
		signal:   signal,
		peers:    peers,
		conns:    make(map[domain.ConnectionID]*hostConn),
	}
}

// HandleSignal dispatches one relayed message. Offers, acknowledgements and
// rejections are host-originated, so only the claimant-sent variants matter
// here; everything correlates by connectionId, never arrival order.
func (n *HostNegotiator) HandleSignal(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.JoinRequest:
		n.handleJoin(m)
	case *protocol.Answer:
		n.handleAnswer(m)
	case *protocol.Candidate:
		n.handleCandidate(m)
	}
}

func (n *HostNegotiator) handleJoin(m *protocol.JoinRequest) {
	if !n.invites.Validate(m.Party, m.InviteID) {
		log.Warn().Str("module", "app.negotiator").Str("party", string(m.Party)).
			Str("conn", string(m.ConnectionID)).Msg("join rejected: invalid invite")
		n.reject(m.ConnectionID, m.Party, "invite no longer valid")
		return
	}

	n.mu.Lock()
	if _, ok := n.conns[m.ConnectionID]; ok {
		n.mu.Unlock()
		log.Warn().Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("duplicate join ignored")
		return
	}
	c := &hostConn{
		id:       m.ConnectionID,
		party:    m.Party,
		alias:    m.Alias,
		state:    domain.StatePending,
		joinedAt: time.Now(),
	}
	n.conns[m.ConnectionID] = c
	n.session.Connections[m.ConnectionID] = &domain.ConnectionState{
		ID: c.id, Party: c.party, Alias: c.alias, State: c.state, CreatedAt: c.joinedAt,
	}
	n.mu.Unlock()

	link, err := n.peers.NewOffering(m.ConnectionID)
	if err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("peer link create failed")
		n.fail(m.ConnectionID)
		return
	}
	n.wireLink(c, link)

	sdp, err := link.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("offer failed")
		n.fail(m.ConnectionID)
		return
	}
	n.setState(c, domain.StateOfferSent)
	n.send(&protocol.Offer{
		ConnectionID: c.id, Party: c.party, InviteID: m.InviteID, Alias: c.alias, SDP: sdp,
	})
	log.Info().Str("module", "app.negotiator").Str("party", string(c.party)).
		Str("conn", string(c.id)).Msg("offer sent")
}

func (n *HostNegotiator) handleAnswer(m *protocol.Answer) {
	n.mu.Lock()
	c, ok := n.conns[m.ConnectionID]
	if !ok || c.state != domain.StateOfferSent {
		n.mu.Unlock()
		return
	}
	link := c.link
	n.mu.Unlock()

	if err := link.ApplyAnswer(m.SDP); err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("answer rejected")
		n.fail(m.ConnectionID)
		return
	}

	// The peer can die while ApplyAnswer is in flight, with its close
	// callback landing on another goroutine. Binding under the negotiator
	// lock makes the race safe either way: a close that wins removes the
	// connection and this bind never happens; a close that loses finds the
	// binding in place and reverts it.
	n.mu.Lock()
	if _, live := n.conns[m.ConnectionID]; !live {
		n.mu.Unlock()
		log.Warn().Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("peer closed during answer")
		return
	}
	c.state = domain.StateConnected
	if cs, ok := n.session.Connections[c.id]; ok {
		cs.State = domain.StateConnected
	}
	err := n.registry.MarkHuman(c.party, c.alias, c.id)
	n.mu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("conn", string(c.id)).Msg("registry bind failed")
		n.fail(m.ConnectionID)
		return
	}
	n.send(&protocol.Acknowledge{ConnectionID: c.id, Party: c.party})
	log.Info().Str("module", "app.negotiator").Str("party", string(c.party)).
		Str("conn", string(c.id)).Msg("participant connected")
}

func (n *HostNegotiator) handleCandidate(m *protocol.Candidate) {
	n.mu.Lock()
	c, ok := n.conns[m.ConnectionID]
	link := PeerLink(nil)
	if ok {
		link = c.link
	}
	n.mu.Unlock()
	if link == nil {
		return
	}
	if err := link.AddCandidate(m.Candidate); err != nil {
		log.Warn().Err(err).Str("module", "app.negotiator").Str("conn", string(m.ConnectionID)).Msg("candidate rejected")
	}
}

// Revoke is the explicit host action that takes a party back for the AI:
// it drops the pending invite, tears down any live link, and reverts the
// slot.
func (n *HostNegotiator) Revoke(party domain.PartyID) error {
	if party == n.session.HostParty {
		return ErrHostParty
	}
	n.invites.Drop(party)

	n.mu.Lock()
	var doomed []domain.ConnectionID
	for id, c := range n.conns {
		if c.party == party {
			doomed = append(doomed, id)
		}
	}
	n.mu.Unlock()
	for _, id := range doomed {
		n.fail(id)
	}
	return n.registry.MarkAI(party)
}

// Connections returns a snapshot of in-flight and live connections.
func (n *HostNegotiator) Connections() []domain.ConnectionState {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]domain.ConnectionState, 0, len(n.conns))
	for _, c := range n.conns {
		out = append(out, domain.ConnectionState{
			ID: c.id, Party: c.party, Alias: c.alias, State: c.state, CreatedAt: c.joinedAt,
		})
	}
	return out
}

func (n *HostNegotiator) wireLink(c *hostConn, link PeerLink) {
	n.mu.Lock()
	c.link = link
	n.mu.Unlock()

	id, party := c.id, c.party
	link.OnICECandidate(func(candidate string) {
		n.send(&protocol.Candidate{ConnectionID: id, Candidate: candidate})
	})
	link.OnMessage(func(data []byte) {
		if protocol.IsHeartbeat(data) {
			n.registry.Touch(party)
		}
	})
	link.OnClosed(func() {
		n.fail(id)
	})
}

// fail is the single exit path for a connection: terminal state, removal
// from the session map, link teardown, and AI reversion for the bound
// party. Safe to reach from every state and from concurrent callbacks; the
// reversion happens at most once because the connection is removed first,
// and MarkAIIf only reverts while the party is still bound to this
// connection (a rebind from a fresh join must not be undone by the stale
// link's close).
func (n *HostNegotiator) fail(id domain.ConnectionID) {
	n.mu.Lock()
	c, ok := n.conns[id]
	if !ok {
		n.mu.Unlock()
		return
	}
	delete(n.conns, id)
	delete(n.session.Connections, id)
	c.state = domain.StateClosed
	link := c.link
	n.mu.Unlock()

	if link != nil {
		link.Close()
	}
	if err := n.registry.MarkAIIf(c.party, id); err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").Str("party", string(c.party)).Msg("AI reversion failed")
	}
	log.Info().Str("module", "app.negotiator").Str("party", string(c.party)).
		Str("conn", string(id)).Msg("connection closed")
}

func (n *HostNegotiator) setState(c *hostConn, s domain.NegotiationState) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if c.state == domain.StateClosed {
		return
	}
	c.state = s
	if cs, ok := n.session.Connections[c.id]; ok {
		cs.State = s
	}
}

func (n *HostNegotiator) reject(id domain.ConnectionID, party domain.PartyID, reason string) {
	n.send(&protocol.InviteInvalid{ConnectionID: id, Party: party, Reason: reason})
}

func (n *HostNegotiator) send(msg protocol.Message) {
	if err := n.signal.Send(n.session.ID, msg); err != nil {
		log.Error().Err(err).Str("module", "app.negotiator").
			Str("type", string(msg.SignalType())).Msg("signal send failed")
	}
}
