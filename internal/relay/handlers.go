package relay

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type createInviteRequest struct {
	SessionID string `json:"sessionId" binding:"required"`
	PartyID   string `json:"partyId" binding:"required"`
}

// CreateInviteHandler mints an invite record: POST /api/invites.
func CreateInviteHandler(store *InviteStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createInviteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId and partyId are required"})
			return
		}
		rec := store.Create(domain.SessionID(req.SessionID), domain.PartyID(req.PartyID))
		log.Info().Str("module", "relay.http").Str("session", req.SessionID).
			Str("party", req.PartyID).Msg("invite minted")
		c.JSON(http.StatusOK, gin.H{"inviteId": rec.InviteID})
	}
}

// ResolveInviteHandler looks an invite up: GET /api/invites/:inviteId.
func ResolveInviteHandler(store *InviteStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, ok := store.Get(c.Param("inviteId"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown invite"})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// SignalHandler upgrades GET /ws and hands the socket to the hub. The
// session id is mandatory; a missing client id gets a generated one.
func SignalHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := domain.SessionID(c.Query("sessionId"))
		if session == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "sessionId is required"})
			return
		}
		clientID := c.Query("clientId")
		if clientID == "" {
			clientID = uuid.NewString()
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Error().Err(err).Str("module", "relay.http").Msg("ws upgrade")
			return
		}
		hub.Serve(conn, session, clientID)
	}
}
