// Package voice implements the UDP voice receiver: per-avatar decode,
// sequence-number reorder/drop handling, and a drop-front backpressure ring
// buffer feeding the (out-of-scope) audio mixer (spec §4.N). Grounded on
// the teacher's internal/call package, which already manages a per-peer
// media session keyed by peer identity; here the transport is a single
// shared UDP socket instead of a WebRTC track per peer, and audio decode
// output lands in a ring buffer rather than a WebM mux.
package voice

import (
	"encoding/binary"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/world"
)

// packetType is the fixed tag at the front of every voice UDP datagram.
const packetType = 1

// packetHeaderLen is [u32 type][u32 avatar_id][u32 seq].
const packetHeaderLen = 12

// Decoder is the minimal surface this package needs from an Opus decoder;
// the concrete codec is out of scope (spec §1), so callers inject one.
type Decoder interface {
	Decode(payload []byte) (pcm []float32, err error)
}

// avatarState tracks one avatar's reorder window and audio ring buffer.
type avatarState struct {
	mu           sync.Mutex
	nextExpected uint32
	decoder      Decoder
	ring         *RingBuffer
}

// Receiver owns the UDP socket and per-avatar decode state (spec §4.N).
type Receiver struct {
	conn       *net.UDPConn
	serverIP   net.IP
	logger     *zap.Logger
	newDecoder func(avatarID world.UID) Decoder

	mu      sync.Mutex
	avatars map[world.UID]*avatarState

	shouldDie atomic.Bool
}

// NewReceiver binds a UDP socket on localAddr (":0" for an ephemeral port)
// and restricts accepted packets to serverIP, per spec §4.N step 1.
func NewReceiver(localAddr string, serverIP net.IP, newDecoder func(world.UID) Decoder, logger *zap.Logger) (*Receiver, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		conn:       conn,
		serverIP:   serverIP,
		logger:     logger,
		newDecoder: newDecoder,
		avatars:    make(map[world.UID]*avatarState),
	}, nil
}

// LocalAddr returns the bound UDP address.
func (r *Receiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Stop requests Run exit and unblocks a pending ReadFromUDP by closing the
// socket -- the spec's "flag plus platform interrupt" cancellation policy
// for this task (§4.N "Cancellation", §5).
func (r *Receiver) Stop() {
	r.shouldDie.Store(true)
	r.conn.Close()
}

// Run reads and processes packets until Stop is called. A closed-socket
// read error while should_die is set is treated as a normal shutdown, not a
// fault (spec §4.N "Cancellation").
func (r *Receiver) Run() error {
	buf := make([]byte, 4096)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if r.shouldDie.Load() {
				return nil
			}
			return err
		}
		if !from.IP.Equal(r.serverIP) {
			continue // spec §4.N step 1: verify source IP matches the session's server
		}
		r.handlePacket(buf[:n])
	}
}

func (r *Receiver) handlePacket(pkt []byte) {
	if len(pkt) < packetHeaderLen {
		return
	}
	typ := binary.LittleEndian.Uint32(pkt[0:4])
	if typ != packetType {
		return
	}
	avatarID := world.UID(binary.LittleEndian.Uint32(pkt[4:8]))
	seq := binary.LittleEndian.Uint32(pkt[8:12])
	payload := pkt[packetHeaderLen:]

	st := r.avatarStateFor(avatarID)

	st.mu.Lock()
	defer st.mu.Unlock()

	if seq < st.nextExpected {
		return // spec §4.N step 3: drop packets older than next_expected
	}
	st.nextExpected = seq + 1

	pcm, err := st.decoder.Decode(payload)
	if err != nil {
		if r.logger != nil {
			r.logger.Debug("voice: decode error", zap.Uint64("avatar", uint64(avatarID)), zap.Error(err))
		}
		return
	}
	st.ring.Append(pcm)
}

func (r *Receiver) avatarStateFor(avatarID world.UID) *avatarState {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.avatars[avatarID]
	if !ok {
		st = &avatarState{decoder: r.newDecoder(avatarID), ring: NewRingBuffer()}
		r.avatars[avatarID] = st
	}
	return st
}

// ReconcileAvatars drops decode state for any avatar no longer present in
// the world (spec §4.N step 2: "On world_state.avatars_changed, reconciles
// the decoder map").
func (r *Receiver) ReconcileAvatars(live map[world.UID]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uid := range r.avatars {
		if _, ok := live[uid]; !ok {
			delete(r.avatars, uid)
		}
	}
}
