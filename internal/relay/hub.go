// Package relay implements the thin coordination service: an invite-record
// API and a per-session fan-out channel. It never interprets signal
// payloads; each frame is re-broadcast to the session's other subscribers
// with the sender's client id injected.
package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

type subscriber struct {
	clientID string
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) trySend(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("connection closed")
	}
	select {
	case s.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
	s.mu.Unlock()
}

// Hub tracks the live subscribers of every session.
type Hub struct {
	mu        sync.RWMutex
	sessions  map[domain.SessionID]map[*subscriber]struct{}
	readLimit int64
}

func NewHub(readLimit int64) *Hub {
	return &Hub{
		sessions:  make(map[domain.SessionID]map[*subscriber]struct{}),
		readLimit: readLimit,
	}
}

// Serve owns one upgraded connection until it drops. Blocking; the caller's
// handler goroutine becomes the read pump.
func (h *Hub) Serve(conn *websocket.Conn, session domain.SessionID, clientID string) {
	sub := &subscriber{
		clientID: clientID,
		conn:     conn,
		send:     make(chan []byte, 32),
	}
	h.add(session, sub)
	log.Info().Str("module", "relay.hub").Str("session", string(session)).
		Str("client", clientID).Msg("subscriber joined")

	go h.writePump(sub)
	h.readPump(session, sub)

	h.remove(session, sub)
	sub.close()
	log.Info().Str("module", "relay.hub").Str("session", string(session)).
		Str("client", clientID).Msg("subscriber left")
}

func (h *Hub) add(session domain.SessionID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.sessions[session]
	if !ok {
		subs = make(map[*subscriber]struct{})
		h.sessions[session] = subs
	}
	subs[sub] = struct{}{}
}

func (h *Hub) remove(session domain.SessionID, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.sessions[session]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.sessions, session)
		}
	}
}

func (h *Hub) readPump(session domain.SessionID, sub *subscriber) {
	if h.readLimit > 0 {
		sub.conn.SetReadLimit(h.readLimit)
	}
	for {
		_, data, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		h.broadcast(session, sub, data)
	}
}

func (h *Hub) writePump(sub *subscriber) {
	for data := range sub.send {
		if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			return
		}
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// broadcast fans one frame out to every other subscriber of the session,
// tagged with the sender's client id. Payloads stay opaque beyond the
// top-level object needed to inject the tag.
func (h *Hub) broadcast(session domain.SessionID, from *subscriber, data []byte) {
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Str("module", "relay.hub").Str("client", from.clientID).Msg("non-object frame dropped")
		return
	}
	frame["senderId"] = from.clientID
	tagged, err := json.Marshal(frame)
	if err != nil {
		return
	}

	h.mu.RLock()
	subs := make([]*subscriber, 0, len(h.sessions[session]))
	for s := range h.sessions[session] {
		if s != from {
			subs = append(subs, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range subs {
		if err := s.trySend(tagged); err != nil {
			log.Warn().Err(err).Str("module", "relay.hub").Str("client", s.clientID).Msg("slow subscriber dropped")
			s.close()
		}
	}
}
