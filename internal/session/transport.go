// Package session owns the single TLS connection to the server: the
// handshake, the sender task, and the receiver task (spec §4.A-§4.C). It is
// grounded on the teacher's internal/p2p/node.go host-lifecycle pattern --
// one long-lived connection object with separately-started read/write
// goroutines guarded by an atomic shutdown flag -- adapted from a libp2p
// host to a single framed TLS session.
package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/wire"
	"github.com/petervdpas/substrata-client/internal/world"
)

// byteReader wraps a decoded frame payload for wire.NewReader.
func byteReader(b []byte) io.Reader { return bytes.NewReader(b) }

// Errors returned by the handshake, distinguished so callers can map them to
// the error kinds in spec §7.
var (
	ErrProtocolMismatch = fmt.Errorf("session: server did not echo hello")
)

// ProtocolTooOldError and ProtocolTooNewError carry the server's message for
// display (spec §4.A step 3, §7 AuthError).
type ProtocolTooOldError struct{ Message string }
type ProtocolTooNewError struct{ Message string }

func (e *ProtocolTooOldError) Error() string {
	return fmt.Sprintf("session: client protocol too old: %s", e.Message)
}
func (e *ProtocolTooNewError) Error() string {
	return fmt.Sprintf("session: client protocol too new: %s", e.Message)
}

// HandshakeResult carries what the server told us during the handshake.
type HandshakeResult struct {
	ServerProtocolVersion   uint32
	ServerCapabilities      uint32 // valid once ServerProtocolVersion >= 41
	ServerMeshOptVersion    int32  // valid once ServerProtocolVersion >= 43
	ClientAvatarUID         world.UID // Updates connections only, set after credentials exchange
}

// Session wraps one TLS connection plus its handshake result. Construction
// dials and performs the full handshake; callers then start Sender and
// Receiver against it.
type Session struct {
	conn   net.Conn
	logger *zap.Logger

	Handshake HandshakeResult
}

// Dial opens a TLS connection to addr and performs the fixed handshake for
// connType (spec §4.A). tlsCfg.InsecureSkipVerify should be false in
// production; tests may override it.
func Dial(ctx context.Context, addr string, connType wire.ConnectionType, tlsCfg *tls.Config, logger *zap.Logger) (*Session, error) {
	dialer := &tls.Dialer{Config: tlsCfg}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("session: dial %s: %w", addr, err)
	}

	s := &Session{conn: conn, logger: logger}
	if err := s.handshake(connType); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) handshake(connType wire.ConnectionType) error {
	w := wire.NewWriter()
	w.U32(wire.Hello)
	w.U32(wire.ProtocolVersion)
	w.U32(uint32(connType))
	if _, err := s.conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("session: write handshake: %w", err)
	}

	r := wire.NewReader(s.conn)
	echoedHello := r.U32()
	if r.Err() != nil {
		return fmt.Errorf("session: read hello echo: %w", r.Err())
	}
	if echoedHello != wire.Hello {
		return ErrProtocolMismatch
	}

	response := r.U32()
	switch response {
	case wire.ProtocolOK:
		// fall through
	case wire.ClientProtocolTooOld:
		msg := r.String()
		return &ProtocolTooOldError{Message: msg}
	case wire.ClientProtocolTooNew:
		msg := r.String()
		return &ProtocolTooNewError{Message: msg}
	default:
		return fmt.Errorf("session: unexpected handshake response code %d", response)
	}

	s.Handshake.ServerProtocolVersion = r.U32()
	if s.Handshake.ServerProtocolVersion >= 41 {
		s.Handshake.ServerCapabilities = r.U32()
	}
	if s.Handshake.ServerProtocolVersion >= 43 {
		s.Handshake.ServerMeshOptVersion = r.I32()
	}
	if r.Err() != nil {
		return fmt.Errorf("session: read handshake tail: %w", r.Err())
	}
	return nil
}

// AuthenticateUpdates sends credentials and world name on an Updates
// connection and records the server-assigned avatar UID (spec §4.A step 5).
func (s *Session) AuthenticateUpdates(username, password, worldName string) error {
	w := wire.NewWriter()
	w.String(username)
	w.String(password)
	w.String(worldName)
	if _, err := s.conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("session: write credentials: %w", err)
	}

	typ, payload, err := wire.ReadFrame(s.conn)
	if err != nil {
		return fmt.Errorf("session: read login response: %w", err)
	}
	r := wire.NewReader(byteReader(payload))
	switch typ {
	case wire.MsgLoggedIn:
		m := wire.DecodeLoggedIn(r)
		s.Handshake.ClientAvatarUID = m.ClientAvatarUID
		return nil
	case wire.MsgClientProtocolTooOld:
		return &ProtocolTooOldError{Message: r.String()}
	default:
		return fmt.Errorf("session: unexpected login response type %d", typ)
	}
}

// Conn exposes the underlying connection for Sender/Receiver construction.
func (s *Session) Conn() net.Conn { return s.conn }

// Close half-closes then closes the underlying connection.
func (s *Session) Close() error {
	if tc, ok := s.conn.(*tls.Conn); ok {
		_ = tc.CloseWrite()
	}
	return s.conn.Close()
}

// SetWriteDeadline sets a write deadline d from now on the underlying
// connection.
func (s *Session) SetWriteDeadline(d time.Duration) {
	s.conn.SetWriteDeadline(time.Now().Add(d))
}
