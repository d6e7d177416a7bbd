package web

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingHandler struct {
	mu     sync.Mutex
	envs   []Envelope
	closed bool
	ch     *Channel
	seen   chan struct{}
}

func (h *recordingHandler) HandleEnvelope(env Envelope) {
	h.mu.Lock()
	h.envs = append(h.envs, env)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

func (h *recordingHandler) Close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

func (h *recordingHandler) envelopes() []Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Envelope(nil), h.envs...)
}

func newTestServer(t *testing.T) (*httptest.Server, *recordingHandler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := &recordingHandler{seen: make(chan struct{}, 16)}
	srv := NewServer(":0", func(ch *Channel) SessionHandler {
		handler.ch = ch
		return handler
	}, logger)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, handler
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitSeen(t *testing.T, h *recordingHandler) {
	t.Helper()
	select {
	case <-h.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received an envelope")
	}
}

func TestIndexServesPage(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "MCP Chat Client") {
		t.Fatal("index page missing title")
	}
}

func TestEnvelopeDispatch(t *testing.T) {
	ts, handler := newTestServer(t)
	conn := dial(t, ts)

	for _, env := range []Envelope{
		{Type: TypeMessage, Message: "hello"},
		{Type: TypeElicitationResponse, Message: "yes"},
		{Type: TypeReset},
	} {
		if err := conn.WriteJSON(env); err != nil {
			t.Fatalf("write: %v", err)
		}
		waitSeen(t, handler)
	}

	got := handler.envelopes()
	if len(got) != 3 {
		t.Fatalf("handler saw %d envelopes, want 3", len(got))
	}
	if got[0].Type != TypeMessage || got[0].Message != "hello" {
		t.Fatalf("first envelope = %+v", got[0])
	}
	if got[2].Type != TypeReset {
		t.Fatalf("third envelope = %+v", got[2])
	}
}

func TestMalformedAndUnknownDropped(t *testing.T) {
	ts, handler := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := conn.WriteJSON(Envelope{Type: "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	// A valid envelope after the junk proves the connection survived.
	if err := conn.WriteJSON(Envelope{Type: TypeMessage, Message: "still here"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitSeen(t, handler)

	got := handler.envelopes()
	if len(got) != 1 || got[0].Message != "still here" {
		t.Fatalf("handler envelopes = %+v", got)
	}
}

func TestChannelRoundTrip(t *testing.T) {
	ts, handler := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteJSON(Envelope{Type: TypeMessage, Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitSeen(t, handler)

	handler.ch.Send(Envelope{Type: TypeAssistant, Message: "hello back"})

	var got Envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != TypeAssistant || got.Message != "hello back" {
		t.Fatalf("got %+v", got)
	}
}

func TestHandlerClosedOnDisconnect(t *testing.T) {
	ts, handler := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteJSON(Envelope{Type: TypeMessage, Message: "hi"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitSeen(t, handler)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		handler.mu.Lock()
		closed := handler.closed
		handler.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("handler was not closed after disconnect")
}
