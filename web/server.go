package web

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

//go:embed index.html
var indexPage []byte

// SessionHandler consumes the inbound envelopes of one session. The
// server calls HandleEnvelope from the connection's read loop and Close
// exactly once when the connection goes away.
type SessionHandler interface {
	HandleEnvelope(env Envelope)
	Close()
}

// HandlerFactory builds a session handler bound to a freshly accepted
// channel.
type HandlerFactory func(ch *Channel) SessionHandler

// Server serves the chat page on "/" and sessions on "/ws".
type Server struct {
	addr       string
	newHandler HandlerFactory
	logger     *slog.Logger
	upgrader   websocket.Upgrader
}

// NewServer creates a server. Each websocket connection gets its own
// handler from the factory.
func NewServer(addr string, newHandler HandlerFactory, logger *slog.Logger) *Server {
	return &Server{
		addr:       addr,
		newHandler: newHandler,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the HTTP mux for the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe blocks serving HTTP on the configured address.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexPage)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := newChannel(conn, s.logger)
	handler := s.newHandler(ch)
	defer func() {
		handler.Close()
		ch.Close()
	}()

	// Read loop. Malformed frames are logged and dropped; the
	// connection stays up.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.logger.Info("websocket closed", "error", err)
			return
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("dropping malformed envelope", "error", err)
			continue
		}
		switch env.Type {
		case TypeMessage, TypeElicitationResponse, TypeReset:
			handler.HandleEnvelope(env)
		default:
			s.logger.Warn("dropping envelope with unknown type", "type", env.Type)
		}
	}
}
