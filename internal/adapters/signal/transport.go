// Package signal is the participant-side client of the relay's fan-out
// channel. It owns one websocket per session, shared by every handler that
// opened it, and hides reconnection from callers: sends issued while the
// socket is down are queued in order and flushed on the next successful dial.
package signal

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/theSystem85/gemini-rts-game-sub008/internal/domain"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/protocol"
)

// Handler receives every decoded message relayed from other participants of
// the session. Consumers filter by connectionId/partyId themselves; the
// relay has no per-pair routing.
type Handler func(protocol.Message)

// Handle identifies one registered handler for Close.
type Handle int

// Conn is the minimal socket surface the transport needs; the default
// implementation wraps gorilla/websocket and tests substitute fakes.
type Conn interface {
	Read() ([]byte, error)
	Write([]byte) error
	Close() error
}

// Dialer opens a Conn to the relay for one session.
type Dialer func(ctx context.Context, rawURL string) (Conn, error)

type Options struct {
	RelayURL     string // http(s) base of the relay; ws scheme is derived
	ClientID     string
	BackoffFloor time.Duration
	BackoffCap   time.Duration
}

type Client struct {
	opts Options
	dial Dialer
	// sleep is swapped out in tests to observe backoff decisions.
	sleep func(context.Context, time.Duration) bool

	mu    sync.Mutex
	links map[domain.SessionID]*link
}

type link struct {
	session domain.SessionID
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	handlers map[Handle]Handler
	next     Handle
	conn     Conn
	queue    [][]byte
}

func NewClient(opts Options) *Client {
	if opts.BackoffFloor <= 0 {
		opts.BackoffFloor = 250 * time.Millisecond
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = 10 * time.Second
	}
	return &Client{
		opts:  opts,
		dial:  dialWebsocket,
		sleep: sleepCtx,
		links: make(map[domain.SessionID]*link),
	}
}

// Open subscribes a handler to a session's signal stream. Repeated opens for
// the same session share one underlying connection and accumulate handlers.
func (c *Client) Open(session domain.SessionID, h Handler) Handle {
	c.mu.Lock()
	l, ok := c.links[session]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		l = &link{
			session:  session,
			ctx:      ctx,
			cancel:   cancel,
			handlers: make(map[Handle]Handler),
		}
		c.links[session] = l
		go c.run(l)
	}
	c.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	handle := l.next
	l.handlers[handle] = h
	return handle
}

// Send transmits a message to every other participant of the session. While
// the connection is down the message joins an in-memory FIFO; delivery is
// best-effort at-most-once, in order per sender.
func (c *Client) Send(session domain.SessionID, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	l, ok := c.links[session]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s not open", session)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil && len(l.queue) == 0 {
		if err := l.conn.Write(data); err == nil {
			return nil
		}
		// Write failed: the read loop will notice and reconnect, the
		// message rides the queue instead.
	}
	l.queue = append(l.queue, data)
	return nil
}

// Close removes a handler. When the last handler of a session is removed the
// reconnect loop stops and the underlying connection is released.
func (c *Client) Close(session domain.SessionID, h Handle) {
	c.mu.Lock()
	l, ok := c.links[session]
	c.mu.Unlock()
	if !ok {
		return
	}

	l.mu.Lock()
	delete(l.handlers, h)
	empty := len(l.handlers) == 0
	conn := l.conn
	l.mu.Unlock()

	if !empty {
		return
	}
	c.mu.Lock()
	delete(c.links, session)
	c.mu.Unlock()
	l.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	log.Info().Str("module", "signal").Str("session", string(session)).Msg("transport released")
}

func (c *Client) run(l *link) {
	backoff := c.opts.BackoffFloor
	for {
		conn, err := c.dial(l.ctx, c.sessionURL(l.session))
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("module", "signal").Str("session", string(l.session)).
				Dur("backoff", backoff).Msg("relay dial failed")
			if !c.sleep(l.ctx, backoff) {
				return
			}
			backoff = min(backoff*2, c.opts.BackoffCap)
			continue
		}
		backoff = c.opts.BackoffFloor

		c.flush(l, conn)
		c.serve(l, conn)

		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
		_ = conn.Close()

		if l.ctx.Err() != nil {
			return
		}
		log.Warn().Str("module", "signal").Str("session", string(l.session)).
			Dur("backoff", backoff).Msg("relay connection lost")
		if !c.sleep(l.ctx, backoff) {
			return
		}
		backoff = min(backoff*2, c.opts.BackoffCap)
	}
}

// flush drains the offline queue in original order, then publishes the conn
// for direct sends.
func (c *Client) flush(l *link, conn Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.queue) > 0 {
		if err := conn.Write(l.queue[0]); err != nil {
			return
		}
		l.queue = l.queue[1:]
	}
	l.conn = conn
}

func (c *Client) serve(l *link, conn Conn) {
	for {
		data, err := conn.Read()
		if err != nil {
			return
		}
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("session", string(l.session)).Msg("undecodable signal dropped")
			continue
		}
		l.mu.Lock()
		handlers := make([]Handler, 0, len(l.handlers))
		for _, h := range l.handlers {
			handlers = append(handlers, h)
		}
		l.mu.Unlock()
		for _, h := range handlers {
			h(msg)
		}
	}
}

func (c *Client) sessionURL(session domain.SessionID) string {
	u, err := url.Parse(c.opts.RelayURL)
	if err != nil {
		return c.opts.RelayURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws"
	q := u.Query()
	q.Set("sessionId", string(session))
	q.Set("clientId", c.opts.ClientID)
	u.RawQuery = q.Encode()
	return u.String()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
