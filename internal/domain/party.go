// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
	"unicode/utf8"
)

const MaxAliasLen = 36

var (
	ErrAliasTooLong = errors.New("alias too long")
	ErrAliasEmpty   = errors.New("alias empty")
)

type (
	PartyID      string
	ConnectionID string
)

// LocalConnection is the binding of the host's own slot. It never appears
// in the session connection map.
const LocalConnection ConnectionID = "local"

// ControlMode says who drives a party each simulation tick.
type ControlMode string

const (
	ModeAI    ControlMode = "ai"
	ModeHuman ControlMode = "human"
)

// PartyState is one logical player slot. The registry is the only writer;
// everyone else reads snapshots.
type PartyState struct {
	ID            PartyID      `json:"id"`
	Mode          ControlMode  `json:"mode"`
	Alias         string       `json:"alias,omitempty"`
	Connection    ConnectionID `json:"connectionId,omitempty"`
	LastHeartbeat time.Time    `json:"lastHeartbeat,omitzero"`
}

// ValidAlias checks display-name constraints shared by host and joiners.
// The limit counts runes, the same unit the wire-level `max` validation uses,
// so a name accepted off the wire is never rejected here.
func ValidAlias(alias string) error {
	if len(alias) == 0 {
		return ErrAliasEmpty
	}
	if utf8.RuneCountInString(alias) > MaxAliasLen {
		return ErrAliasTooLong
	}
	return nil
}
