// Package control implements the loopback control channel used when the
// client is launched with --screenshotslave: an external controller drives
// navigation and screenshot capture over a local WebSocket instead of a
// human operator (spec §6 CLI surface). Grounded on the teacher's
// internal/viewer/routes package, which serves its own auxiliary loopback
// WebSocket (the WebRTC media/signalling channel in call.go) off a
// *http.ServeMux with gorilla/websocket, rather than a raw net.Listener.
package control

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler is the minimal surface control needs from the running client. The
// composition root supplies the concrete implementation; this package knows
// nothing about Runtime, world state, or rendering.
type Handler interface {
	// Goto navigates to a substrata URL (sub://host[/world][/parcel/id]).
	Goto(url string) error
	// Screenshot requests a screenshot be written to path. Actual frame
	// capture is a rendering concern (spec §1 Non-goals) -- a production
	// composition root wires this to its renderer; this package only
	// carries the request across the wire.
	Screenshot(path string) error
	// Quit requests a graceful shutdown of the client.
	Quit()
}

// command is one JSON message read from the slave socket.
type command struct {
	Cmd  string `json:"cmd"`
	URL  string `json:"url,omitempty"`
	Path string `json:"path,omitempty"`
}

// reply is one JSON message written back.
type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Only ever reached over 127.0.0.1 by the controller process (spec §6
	// "a local socket"), so origin checking buys nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the loopback control listener. It serves exactly one endpoint,
// /control, and exits its ListenAndServe call once Shutdown is called.
type Server struct {
	addr    string
	handler Handler
	logger  *zap.Logger
	httpSrv *http.Server
}

// New builds a Server bound to 127.0.0.1:port (spec §6: "a local socket on
// port 34534").
func New(port int, handler Handler, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		handler: handler,
		logger:  logger,
		httpSrv: &http.Server{
			Addr:    loopbackAddr(port),
			Handler: mux,
		},
	}
	mux.HandleFunc("/control", s.serveWS)
	s.addr = s.httpSrv.Addr
	return s
}

func loopbackAddr(port int) string {
	if port <= 0 {
		port = 34534
	}
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// Run starts the HTTP listener and blocks until Shutdown is called.
// ErrServerClosed is swallowed -- that is the expected return from a
// graceful Shutdown, not a fault.
func (s *Server) Run() error {
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and closes the listener.
func (s *Server) Shutdown() error {
	return s.httpSrv.Close()
}

// Addr returns the bound loopback address, e.g. "127.0.0.1:34534".
func (s *Server) Addr() string { return s.addr }

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("control: upgrade failed", zap.Error(err))
		}
		return
	}
	defer conn.Close()

	for {
		var cmd command
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		conn.WriteJSON(s.dispatch(cmd))
	}
}

// dispatch runs one command synchronously and reports the outcome -- every
// command the slave protocol defines is a quick, idempotent call, so there
// is no need for an async job model here.
func (s *Server) dispatch(cmd command) reply {
	switch cmd.Cmd {
	case "goto":
		if err := s.handler.Goto(cmd.URL); err != nil {
			return reply{Error: err.Error()}
		}
		return reply{OK: true}

	case "screenshot":
		if err := s.handler.Screenshot(cmd.Path); err != nil {
			return reply{Error: err.Error()}
		}
		return reply{OK: true}

	case "quit":
		s.handler.Quit()
		return reply{OK: true}

	default:
		return reply{Error: "control: unknown command " + cmd.Cmd}
	}
}
