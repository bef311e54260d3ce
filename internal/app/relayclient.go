package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

// RelayClient talks to the relay's invite HTTP API.
type RelayClient struct {
	baseURL string
	http    *http.Client
}

// InviteRecord is the relay's resolution of an invite link.
type InviteRecord struct {
	SessionID domain.SessionID `json:"sessionId"`
	Party     domain.PartyID   `json:"partyId"`
	CreatedAt time.Time        `json:"createdAt"`
}

func NewRelayClient(baseURL string) *RelayClient {
	return &RelayClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateInvite mints an invite record on the relay and returns its id.
func (c *RelayClient) CreateInvite(ctx context.Context, session domain.SessionID, party domain.PartyID) (string, error) {
	body, _ := json.Marshal(map[string]string{
		"sessionId": string(session),
		"partyId":   string(party),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/invites", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("relay invite mint: status %d", resp.StatusCode)
	}
	var out struct {
		InviteID string `json:"inviteId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("relay invite mint: %w", err)
	}
	return out.InviteID, nil
}

// ResolveInvite turns an invite id into its session and party, the first
// step of a join before the signaling transport is opened.
func (c *RelayClient) ResolveInvite(ctx context.Context, inviteID string) (*InviteRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/invites/"+inviteID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("invite %s: not found", inviteID)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("relay invite resolve: status %d", resp.StatusCode)
	}
	var rec InviteRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("relay invite resolve: %w", err)
	}
	return &rec, nil
}
