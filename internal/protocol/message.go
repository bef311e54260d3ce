// Package protocol defines the relayed signaling messages and the liveness
// frames exchanged over an established data channel. Messages are decoded
// once at the transport boundary into a closed set of variants so handlers
// can switch exhaustively instead of probing untyped JSON.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

type Type string

const (
	TypeJoinRequest   Type = "join-request"
	TypeOffer         Type = "offer"
	TypeAnswer        Type = "answer"
	TypeCandidate     Type = "ice-candidate"
	TypeAcknowledge   Type = "acknowledge"
	TypeInviteInvalid Type = "invite-invalid"
)

var (
	ErrUnknownType = errors.New("unknown signal type")
	validate       = validator.New()
)

// Message is the sealed union over the six signal variants.
type Message interface {
	SignalType() Type
	Connection() domain.ConnectionID
}

// JoinRequest asks the host to hand the party slot to the claimant.
type JoinRequest struct {
	ConnectionID domain.ConnectionID `json:"connectionId" validate:"required"`
	Party        domain.PartyID      `json:"partyId" validate:"required"`
	InviteID     string              `json:"inviteId" validate:"required"`
	Alias        string              `json:"alias" validate:"required,max=36"`
	SenderID     string              `json:"-"`
}

// Offer carries the host's session description for one join attempt.
type Offer struct {
	ConnectionID domain.ConnectionID `json:"connectionId" validate:"required"`
	Party        domain.PartyID      `json:"partyId" validate:"required"`
	InviteID     string              `json:"inviteId" validate:"required"`
	Alias        string              `json:"alias"`
	SDP          string              `json:"sdp" validate:"required"`
	SenderID     string              `json:"-"`
}

// Answer carries the joiner's session description back to the host.
type Answer struct {
	ConnectionID domain.ConnectionID `json:"connectionId" validate:"required"`
	Party        domain.PartyID      `json:"partyId" validate:"required"`
	InviteID     string              `json:"inviteId" validate:"required"`
	Alias        string              `json:"alias"`
	SDP          string              `json:"sdp" validate:"required"`
	SenderID     string              `json:"-"`
}

// Candidate carries one network-path candidate, JSON-encoded as
// webrtc.ICECandidateInit, exchanged opportunistically by both sides.
type Candidate struct {
	ConnectionID domain.ConnectionID `json:"connectionId" validate:"required"`
	Candidate    string              `json:"candidate" validate:"required"`
	SenderID     string              `json:"-"`
}

// Acknowledge confirms the host bound the party to the new connection.
type Acknowledge struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Party        domain.PartyID      `json:"partyId"`
	SenderID     string              `json:"-"`
}

// InviteInvalid is the explicit rejection for a failed invite validation.
type InviteInvalid struct {
	ConnectionID domain.ConnectionID `json:"connectionId"`
	Party        domain.PartyID      `json:"partyId"`
	Reason       string              `json:"reason,omitempty"`
	SenderID     string              `json:"-"`
}

func (m *JoinRequest) SignalType() Type   { return TypeJoinRequest }
func (m *Offer) SignalType() Type         { return TypeOffer }
func (m *Answer) SignalType() Type        { return TypeAnswer }
func (m *Candidate) SignalType() Type     { return TypeCandidate }
func (m *Acknowledge) SignalType() Type   { return TypeAcknowledge }
func (m *InviteInvalid) SignalType() Type { return TypeInviteInvalid }

func (m *JoinRequest) Connection() domain.ConnectionID   { return m.ConnectionID }
func (m *Offer) Connection() domain.ConnectionID         { return m.ConnectionID }
func (m *Answer) Connection() domain.ConnectionID        { return m.ConnectionID }
func (m *Candidate) Connection() domain.ConnectionID     { return m.ConnectionID }
func (m *Acknowledge) Connection() domain.ConnectionID   { return m.ConnectionID }
func (m *InviteInvalid) Connection() domain.ConnectionID { return m.ConnectionID }

// envelope is the wire shape: one flat object with a type tag. The relay
// injects senderId and never reads the rest.
type envelope struct {
	Type     Type   `json:"type"`
	SenderID string `json:"senderId,omitempty"`

	ConnectionID domain.ConnectionID `json:"connectionId,omitempty"`
	Party        domain.PartyID      `json:"partyId,omitempty"`
	InviteID     string              `json:"inviteId,omitempty"`
	Alias        string              `json:"alias,omitempty"`
	SDP          string              `json:"sdp,omitempty"`
	Candidate    string              `json:"candidate,omitempty"`
	Reason       string              `json:"reason,omitempty"`
}

// Encode serializes a message into its wire envelope.
func Encode(m Message) ([]byte, error) {
	env := envelope{Type: m.SignalType(), ConnectionID: m.Connection()}
	switch v := m.(type) {
	case *JoinRequest:
		env.Party, env.InviteID, env.Alias = v.Party, v.InviteID, v.Alias
	case *Offer:
		env.Party, env.InviteID, env.Alias, env.SDP = v.Party, v.InviteID, v.Alias, v.SDP
	case *Answer:
		env.Party, env.InviteID, env.Alias, env.SDP = v.Party, v.InviteID, v.Alias, v.SDP
	case *Candidate:
		env.Candidate = v.Candidate
	case *Acknowledge:
		env.Party = v.Party
	case *InviteInvalid:
		env.Party, env.Reason = v.Party, v.Reason
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, m)
	}
	return json.Marshal(env)
}

// Decode parses a wire envelope into its typed variant. Structural problems
// (unknown tag, missing required fields) come back as errors so callers can
// answer them explicitly instead of dropping frames.
func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode signal: %w", err)
	}
	var msg Message
	switch env.Type {
	case TypeJoinRequest:
		msg = &JoinRequest{
			ConnectionID: env.ConnectionID, Party: env.Party,
			InviteID: env.InviteID, Alias: env.Alias, SenderID: env.SenderID,
		}
	case TypeOffer:
		msg = &Offer{
			ConnectionID: env.ConnectionID, Party: env.Party, InviteID: env.InviteID,
			Alias: env.Alias, SDP: env.SDP, SenderID: env.SenderID,
		}
	case TypeAnswer:
		msg = &Answer{
			ConnectionID: env.ConnectionID, Party: env.Party, InviteID: env.InviteID,
			Alias: env.Alias, SDP: env.SDP, SenderID: env.SenderID,
		}
	case TypeCandidate:
		msg = &Candidate{ConnectionID: env.ConnectionID, Candidate: env.Candidate, SenderID: env.SenderID}
	case TypeAcknowledge:
		msg = &Acknowledge{ConnectionID: env.ConnectionID, Party: env.Party, SenderID: env.SenderID}
	case TypeInviteInvalid:
		msg = &InviteInvalid{ConnectionID: env.ConnectionID, Party: env.Party, Reason: env.Reason, SenderID: env.SenderID}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", env.Type, err)
	}
	return msg, nil
}
