package relay_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	httpadapter "github.com/theSystem85/gemini-rts-game-sub008/internal/adapters/http"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/config"
	"github.com/theSystem85/gemini-rts-game-sub008/internal/relay"
)

func newRelayServer(t *testing.T) (*httptest.Server, *relay.InviteStore) {
	t.Helper()
	cfg := &config.Config{Mode: "release", ReadLimit: 32768}
	hub := relay.NewHub(cfg.ReadLimit)
	store := relay.NewInviteStore()
	srv := httptest.NewServer(httpadapter.SetupRouter(cfg, hub, store))
	t.Cleanup(srv.Close)
	return srv, store
}

func TestCreateInvite(t *testing.T) {
	srv, store := newRelayServer(t)

	resp, err := http.Post(srv.URL+"/api/invites", "application/json",
		strings.NewReader(`{"sessionId":"s1","partyId":"player2"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}

	var body struct {
		InviteID string `json:"inviteId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	rec, ok := store.Get(body.InviteID)
	if !ok {
		t.Fatalf("invite %s not stored", body.InviteID)
	}
	if rec.SessionID != "s1" || rec.Party != "player2" || rec.CreatedAt.IsZero() {
		t.Fatalf("bad record: %+v", rec)
	}
}

func TestCreateInviteRejectsIncompleteBody(t *testing.T) {
	srv, _ := newRelayServer(t)
	testCases := []struct {
		name string
		body string
	}{
		{"missing party", `{"sessionId":"s1"}`},
		{"missing session", `{"partyId":"player2"}`},
		{"empty object", `{}`},
		{"not json", `hello`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/invites", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("got status %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestResolveInvite(t *testing.T) {
	srv, store := newRelayServer(t)
	rec := store.Create("s1", "player3")

	resp, err := http.Get(srv.URL + "/api/invites/" + rec.InviteID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("got status %d, want 200", resp.StatusCode)
	}
	var got relay.InviteRecord
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.InviteID != rec.InviteID || got.SessionID != "s1" || got.Party != "player3" {
		t.Fatalf("bad record: %+v", got)
	}
}

func TestResolveUnknownInvite(t *testing.T) {
	srv, _ := newRelayServer(t)
	resp, err := http.Get(srv.URL + "/api/invites/no-such-invite")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", resp.StatusCode)
	}
}

func dialWS(t *testing.T, srv *httptest.Server, session, client string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?sessionId=" + session + "&clientId=" + client
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", u, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return frame
}

func TestSignalFanOutTagsSender(t *testing.T) {
	srv, _ := newRelayServer(t)

	host := dialWS(t, srv, "s1", "host")
	guestA := dialWS(t, srv, "s1", "guest-a")
	guestB := dialWS(t, srv, "s1", "guest-b")

	payload := `{"type":"offer","connectionId":"c1","partyId":"player2","inviteId":"inv-1","sdp":"v=0"}`
	if err := host.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, guest := range []*websocket.Conn{guestA, guestB} {
		frame := readFrame(t, guest)
		if frame["type"] != "offer" || frame["connectionId"] != "c1" {
			t.Fatalf("payload mangled: %v", frame)
		}
		if frame["senderId"] != "host" {
			t.Fatalf("got senderId %v, want host", frame["senderId"])
		}
	}

	// The sender must not hear its own frame.
	_ = host.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := host.ReadMessage(); err == nil {
		t.Fatal("sender received its own broadcast")
	}
}

func TestSignalSessionsAreIsolated(t *testing.T) {
	srv, _ := newRelayServer(t)

	a := dialWS(t, srv, "s1", "a")
	b := dialWS(t, srv, "s2", "b")

	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"type":"acknowledge","connectionId":"c1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	_ = b.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := b.ReadMessage(); err == nil {
		t.Fatal("frame leaked across sessions")
	}
}

func TestSignalRequiresSession(t *testing.T) {
	srv, _ := newRelayServer(t)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatal("dial without sessionId must fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("got %+v, want 400 response", resp)
	}
}

func TestSignalDropsNonObjectFrames(t *testing.T) {
	srv, _ := newRelayServer(t)
	a := dialWS(t, srv, "s1", "a")
	b := dialWS(t, srv, "s1", "b")

	if err := a.WriteMessage(websocket.TextMessage, []byte(`not json`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte(`{"type":"acknowledge","connectionId":"c1"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Only the well-formed frame comes through.
	frame := readFrame(t, b)
	if frame["type"] != "acknowledge" {
		t.Fatalf("got %v, want the acknowledge frame", frame)
	}
}
