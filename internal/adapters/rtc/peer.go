// Package rtc wraps one pion PeerConnection plus its control data channel.
package rtc

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/protocol"
)

const controlChannel = "control"

var ErrClosed = errors.New("peer link closed")

// PeerLink is one negotiated link to one remote participant. The offering
// side (host) creates the data channel before the offer; the answering side
// receives it through OnDataChannel.
type PeerLink struct {
	id domain.ConnectionID
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	dc        *webrtc.DataChannel
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	closed    bool

	onICE     func(string)
	onMessage func([]byte)
	onClosed  func()

	heartbeat time.Duration
	openCh    chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
	stopHB    chan struct{}
}

func newPeerLink(cfg webrtc.Configuration, id domain.ConnectionID, heartbeat time.Duration) (*PeerLink, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	p := &PeerLink{
		id:        id,
		pc:        pc,
		heartbeat: heartbeat,
		openCh:    make(chan struct{}),
		stopHB:    make(chan struct{}),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		p.mu.Lock()
		fn := p.onICE
		p.mu.Unlock()
		if fn != nil {
			data, _ := json.Marshal(cand.ToJSON())
			fn(string(data))
		}
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("conn", string(id)).Str("peer_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateDisconnected ||
			s == webrtc.PeerConnectionStateClosed {
			p.Close()
		}
	})

	return p, nil
}

// NewOffering builds the host side of a link: the data channel exists up
// front so it is carried by the offer.
func NewOffering(cfg webrtc.Configuration, id domain.ConnectionID, heartbeat time.Duration) (*PeerLink, error) {
	p, err := newPeerLink(cfg, id, heartbeat)
	if err != nil {
		return nil, err
	}
	dc, err := p.pc.CreateDataChannel(controlChannel, nil)
	if err != nil {
		_ = p.pc.Close()
		return nil, err
	}
	p.adoptChannel(dc)
	return p, nil
}

// NewAnswering builds the joiner side of a link: the channel arrives with
// the remote offer.
func NewAnswering(cfg webrtc.Configuration, id domain.ConnectionID, heartbeat time.Duration) (*PeerLink, error) {
	p, err := newPeerLink(cfg, id, heartbeat)
	if err != nil {
		return nil, err
	}
	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != controlChannel {
			return
		}
		p.adoptChannel(dc)
	})
	return p, nil
}

func (p *PeerLink) adoptChannel(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		log.Info().Str("module", "rtc").Str("conn", string(p.id)).Msg("data channel open")
		p.openOnce.Do(func() { close(p.openCh) })
		go p.heartbeatLoop()
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		p.mu.Lock()
		fn := p.onMessage
		p.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
	dc.OnClose(func() {
		p.Close()
	})
}

func (p *PeerLink) heartbeatLoop() {
	if p.heartbeat <= 0 {
		return
	}
	ticker := time.NewTicker(p.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			dc, closed := p.dc, p.closed
			p.mu.Unlock()
			if closed || dc == nil {
				return
			}
			if err := dc.Send(protocol.HeartbeatFrame()); err != nil {
				return
			}
		case <-p.stopHB:
			return
		}
	}
}

// ID returns the connection identifier this link was negotiated for.
func (p *PeerLink) ID() domain.ConnectionID { return p.id }

// Ready is closed once the data channel is open in both directions.
func (p *PeerLink) Ready() <-chan struct{} { return p.openCh }

// CreateOffer produces and installs the local offer, returning its SDP.
func (p *PeerLink) CreateOffer() (string, error) {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("set local offer: %w", err)
	}
	return offer.SDP, nil
}

// ApplyAnswer installs the remote answer and flushes buffered candidates.
func (p *PeerLink) ApplyAnswer(sdp string) error {
	return p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

// ApplyOfferCreateAnswer installs the remote offer, produces the local
// answer, and returns its SDP.
func (p *PeerLink) ApplyOfferCreateAnswer(sdp string) (string, error) {
	if err := p.setRemote(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		return "", err
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("set local answer: %w", err)
	}
	return answer.SDP, nil
}

func (p *PeerLink) setRemote(desc webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote %s: %w", desc.Type, err)
	}
	p.mu.Lock()
	p.remoteSet = true
	queued := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range queued {
		if err := p.pc.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "rtc").Str("conn", string(p.id)).Msg("buffered candidate rejected")
		}
	}
	return nil
}

// AddCandidate applies a remote candidate, buffering it while the remote
// description has not landed yet. Relay fan-out gives no cross-sender
// ordering, so candidates can legally arrive before the offer or answer.
func (p *PeerLink) AddCandidate(candidateJSON string) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal([]byte(candidateJSON), &init); err != nil {
		return fmt.Errorf("parse candidate: %w", err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.pc.AddICECandidate(init)
}

// Send writes one frame to the data channel.
func (p *PeerLink) Send(data []byte) error {
	p.mu.Lock()
	dc, closed := p.dc, p.closed
	p.mu.Unlock()
	if closed || dc == nil {
		return ErrClosed
	}
	return dc.Send(data)
}

// OnICECandidate registers the callback for locally gathered candidates,
// already JSON-encoded for the wire.
func (p *PeerLink) OnICECandidate(fn func(string)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

// OnMessage registers the inbound data-channel callback.
func (p *PeerLink) OnMessage(fn func([]byte)) {
	p.mu.Lock()
	p.onMessage = fn
	p.mu.Unlock()
}

// OnClosed registers the cleanup callback, fired at most once.
func (p *PeerLink) OnClosed(fn func()) {
	p.mu.Lock()
	p.onClosed = fn
	p.mu.Unlock()
}

// Close tears the link down. Safe to call from any state and any number of
// times; the OnClosed callback fires exactly once.
func (p *PeerLink) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		fn := p.onClosed
		p.mu.Unlock()
		close(p.stopHB)
		if err := p.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("conn", string(p.id)).Msg("close error")
		}
		if fn != nil {
			fn()
		}
	})
}
