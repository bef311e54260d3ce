package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

// InviteRecord is the relay's bookkeeping for one minted invite. It exists
// so a joining participant can resolve an invite link into session and
// party before opening the signaling channel; the host keeps its own,
// authoritative copy.
type InviteRecord struct {
	InviteID  string           `json:"inviteId"`
	SessionID domain.SessionID `json:"sessionId"`
	Party     domain.PartyID   `json:"partyId"`
	CreatedAt time.Time        `json:"createdAt"`
}

// InviteStore is the in-memory invite table. Records live for the relay
// process lifetime; there is no persistence by design.
type InviteStore struct {
	mu   sync.RWMutex
	byID map[string]InviteRecord
	now  func() time.Time
}

func NewInviteStore() *InviteStore {
	return &InviteStore{byID: make(map[string]InviteRecord), now: time.Now}
}

// Create mints a record and returns its opaque identifier.
func (s *InviteStore) Create(session domain.SessionID, party domain.PartyID) InviteRecord {
	rec := InviteRecord{
		InviteID:  uuid.NewString(),
		SessionID: session,
		Party:     party,
		CreatedAt: s.now(),
	}
	s.mu.Lock()
	s.byID[rec.InviteID] = rec
	s.mu.Unlock()
	return rec
}

// Get resolves an invite identifier.
func (s *InviteStore) Get(inviteID string) (InviteRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[inviteID]
	return rec, ok
}
