package session

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/wire"
	"github.com/petervdpas/substrata-client/internal/world"
)

// Receiver is the single background task that reads frames off the session
// connection, applies object/avatar/parcel mutations directly to WorldState
// under its lock, and forwards everything else to the foreground queue
// (spec §4.C). Grounded on the teacher's internal/p2p/node.go read-loop,
// which dispatches inbound libp2p stream messages by a type tag the same
// way this dispatches by wire.MsgType.
type Receiver struct {
	r       io.Reader
	state   *world.State
	mq      *msgqueue.Queue
	logger  *zap.Logger
	shouldDie atomic.Bool

	// selfUID holds the client's own avatar UID so chat/physics
	// handlers can tell self- from other-originated events; set once after
	// login, read without synchronization from this goroutine only.
	selfUID world.UID
}

// NewReceiver wraps r (typically a Session's Conn) to dispatch into state
// and mq. logger may be nil.
func NewReceiver(r io.Reader, state *world.State, mq *msgqueue.Queue, logger *zap.Logger, selfUID world.UID) *Receiver {
	return &Receiver{r: r, state: state, mq: mq, logger: logger, selfUID: selfUID}
}

// Stop requests the receiver's Run loop exit at its next poll point. It does
// not itself unblock a pending read; callers should also close the
// underlying connection (spec §5 cancellation policy: flag plus a
// platform-level interrupt).
func (rc *Receiver) Stop() { rc.shouldDie.Store(true) }

// Run reads frames until the connection closes, an unrecoverable framing
// error occurs, or Stop is called. It never panics out: per-frame decode
// errors are logged (when a logger is set) and the loop continues, matching spec §7's
// "never throw out of the top-level loop" policy. A framing-level error
// (desynced header) is fatal to the session and returned.
func (rc *Receiver) Run() error {
	for {
		if rc.shouldDie.Load() {
			return nil
		}
		typ, payload, err := wire.ReadFrame(rc.r)
		if err != nil {
			if rc.shouldDie.Load() {
				return nil
			}
			return fmt.Errorf("session: receiver framing error: %w", err)
		}
		rc.dispatch(typ, payload)
	}
}

func (rc *Receiver) dispatch(typ wire.MsgType, payload []byte) {
	r := wire.NewReader(bytes.NewReader(payload))
	switch typ {
	case wire.MsgObjectCreated:
		rc.applyObjectCreated(wire.DecodeObjectCreated(r))
	case wire.MsgObjectInitialSend:
		rc.applyObjectCreated(wire.DecodeObjectCreated(r))
	case wire.MsgObjectInitialSendCompressed:
		rc.applyCompressedInitialSend(payload)
	case wire.MsgObjectFullUpdate:
		rc.applyObjectFullUpdate(wire.DecodeObjectFullUpdate(r))
	case wire.MsgObjectTransformUpdate:
		rc.applyObjectTransformUpdate(wire.DecodeObjectTransformUpdate(r))
	case wire.MsgObjectPhysicsTransformUpdate:
		rc.applyObjectPhysicsTransformUpdate(wire.DecodeObjectPhysicsTransformUpdate(r))
	case wire.MsgObjectDestroyed:
		rc.applyObjectDestroyed(wire.DecodeObjectDestroyed(r))
	case wire.MsgObjectFlagsChanged:
		rc.applyObjectFlagsChanged(wire.DecodeObjectFlagsChanged(r))
	case wire.MsgObjectModelURLChanged:
		rc.applyObjectModelURLChanged(wire.DecodeObjectModelURLChanged(r))
	case wire.MsgObjectLightmapURLChanged:
		rc.applyObjectLightmapURLChanged(wire.DecodeObjectLightmapURLChanged(r))
	case wire.MsgObjectPhysicsOwnershipTaken:
		rc.applyPhysicsOwnershipTaken(wire.DecodeObjectPhysicsOwnershipTaken(r))
	case wire.MsgObjectContentChanged:
		m := wire.DecodeObjectContentChanged(r)
		rc.state.MarkDirtyFromRemote(m.UID)
	case wire.MsgSummonObject:
		rc.applySummonObject(wire.DecodeSummonObject(r))

	case wire.MsgAvatarCreated, wire.MsgAvatarIsHere:
		rc.applyAvatarCreated(wire.DecodeAvatarCreated(r))
	case wire.MsgAvatarTransform:
		rc.applyAvatarTransform(wire.DecodeAvatarTransform(r))
	case wire.MsgAvatarPerformGesture, wire.MsgAvatarStopGesture:
		rc.applyAvatarGesture(typ, wire.DecodeAvatarGesture(r))
	case wire.MsgAvatarEnteredVehicle, wire.MsgAvatarExitedVehicle:
		rc.applyAvatarVehicle(typ, wire.DecodeAvatarVehicleTransition(r))
	case wire.MsgAvatarDestroyed:
		m := wire.DecodeAvatarDestroyed(r)
		rc.state.RemoveAvatar(m.UID)
		rc.mq.Post(msgqueue.Item{Kind: msgqueue.KindAvatarChanged})

	case wire.MsgChatMessage:
		m := wire.DecodeChatMessage(r)
		rc.mq.Post(msgqueue.Item{Kind: msgqueue.KindChat, Text: fmt.Sprintf("%s: %s", m.Name, m.Text)})

	case wire.MsgParcelCreated, wire.MsgParcelFullUpdate:
		rc.applyParcelUpdate(wire.DecodeParcelUpdate(r))
	case wire.MsgParcelInitialSendCompressed:
		rc.applyCompressedParcelSend(payload)

	case wire.MsgLODChunkInitialSend, wire.MsgLODChunkUpdated:
		rc.applyLODChunkUpdate(typ, wire.DecodeLODChunkUpdate(r))

	case wire.MsgMapTilesResult:
		m := wire.DecodeMapTilesResult(r)
		for _, u := range m.TileURLs {
			rc.mq.Post(msgqueue.Item{Kind: msgqueue.KindMapTileResult, URL: u})
		}

	case wire.MsgChangeToDifferentWorld:
		// Payload format is not pinned down by the current server protocol
		// docs; treated as opaque. The foreground reacts by reconnecting
		// to the world named in its config/control channel.
		rc.mq.Post(msgqueue.Item{Kind: msgqueue.KindWorldChanged})

	case wire.MsgTimeSyncMessage:
		m := wire.DecodeTimeSyncMessage(r)
		rc.state.Clock().UpdateWithGlobalTimeReceived(m.GlobalTime, time.Now())

	case wire.MsgKeepAlive:
		// no payload, no action required beyond having read the frame.

	case wire.MsgLoggedIn:
		m := wire.DecodeLoggedIn(r)
		rc.selfUID = m.ClientAvatarUID

	case wire.MsgErrorMessage:
		m := wire.DecodeErrorMessage(r)
		rc.mq.PostError(fmt.Errorf("server: %s", m.Text))

	case wire.MsgInfoMessage:
		m := wire.DecodeInfoMessage(r)
		rc.mq.PostLog(m.Text)

	default:
		if rc.logger != nil {
			rc.logger.Debug("session: unknown message type, skipping", zap.Uint32("type", uint32(typ)), zap.Int("len", len(payload)))
		}
	}

	if err := r.Err(); err != nil && rc.logger != nil {
		rc.logger.Warn("session: decode error in message", zap.Uint32("type", uint32(typ)), zap.Error(err))
	}
}

func (rc *Receiver) applyObjectCreated(m *wire.ObjectCreated) {
	ob := &world.WorldObject{
		UID:              m.UID,
		CreatorID:        m.CreatorID,
		CreatedTime:      m.CreatedTime,
		LastModifiedTime: m.CreatedTime,
		Pos:              m.Pos,
		Axis:             m.Axis,
		Angle:            m.Angle,
		Scale:            m.Scale,
		ObjectType:       m.ObjectType,
		ModelURL:         m.ModelURL,
		LightmapURL:      m.LightmapURL,
		AudioSourceURL:   m.AudioSourceURL,
		ScriptSource:     m.Script,
		Flags:            m.Flags,
		MaxModelLODLevel: int(m.MaxModelLODLevel),
		Materials:        m.Materials,
		AABBObjectSpace:  m.AABBOS,
		State:            world.StateJustCreated,
	}
	ob.MarkTransformDirty()
	rc.state.InsertObject(ob)
	rc.state.MarkDirtyFromRemote(ob.UID)
}

// applyCompressedInitialSend decompresses a Zstd stream of back-to-back
// ObjectCreated sub-frames (each itself length-prefixed the same way as a
// standalone frame) and applies each in turn (spec §4.C, P7).
func (rc *Receiver) applyCompressedInitialSend(payload []byte) {
	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		rc.mq.PostError(fmt.Errorf("session: compressed initial send: %w", err))
		return
	}
	defer zr.Close()
	for {
		typ, sub, err := wire.ReadFrame(zr)
		if err == io.EOF {
			return
		}
		if err != nil {
			rc.mq.PostError(fmt.Errorf("session: compressed initial send: %w", err))
			return
		}
		if typ != wire.MsgObjectCreated && typ != wire.MsgObjectInitialSend {
			continue
		}
		sr := wire.NewReader(bytes.NewReader(sub))
		rc.applyObjectCreated(wire.DecodeObjectCreated(sr))
	}
}

// applyObjectFullUpdate replaces every replicated field of an existing
// object with the snapshot, or falls back to treating it as a create when
// the UID is unknown -- interleaving with a compressed initial send is
// last-write-wins by arrival order (spec §9 open question resolution).
func (rc *Receiver) applyObjectFullUpdate(m *wire.ObjectFullUpdate) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		rc.applyObjectCreated(&m.ObjectCreated)
		return
	}
	ob.CreatorID = m.CreatorID
	ob.Pos, ob.Axis, ob.Angle, ob.Scale = m.Pos, m.Axis, m.Angle, m.Scale
	ob.ObjectType = m.ObjectType
	ob.ModelURL, ob.LightmapURL, ob.AudioSourceURL = m.ModelURL, m.LightmapURL, m.AudioSourceURL
	ob.ScriptSource = m.Script
	ob.Flags = m.Flags
	ob.MaxModelLODLevel = int(m.MaxModelLODLevel)
	ob.Materials = m.Materials
	ob.AABBObjectSpace = m.AABBOS
	ob.LastModifiedTime = time.Now()
	ob.MarkTransformDirty()
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyObjectTransformUpdate(m *wire.ObjectTransformUpdate) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.Pos, ob.Axis, ob.Angle, ob.Scale = m.Pos, m.Axis, m.Angle, m.Scale
	ob.LastModifiedTime = time.Now()
	ob.MarkTransformDirty()
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyObjectPhysicsTransformUpdate(m *wire.ObjectPhysicsTransformUpdate) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	// Non-owners apply physics transform updates as authoritative (spec §4.M).
	ob.Pos, ob.Axis, ob.Angle, ob.Scale = m.Pos, m.Axis, m.Angle, m.Scale
	ob.MarkTransformDirty()
	rc.state.MarkDirtyFromRemote(ob.UID)
}

// applyObjectDestroyed marks ob Dead and dirties it rather than removing it
// from state immediately: invariant (iii) says the Dead transition happens
// exactly once and is what drives removal from every derived set (proximity
// grid, script proximity tracking, handler lists), so the foreground tick
// does the actual teardown and state removal once it observes State==Dead
// in the drained dirty set (spec §3 invariants, §4.D).
func (rc *Receiver) applyObjectDestroyed(m *wire.ObjectDestroyed) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.State = world.StateDead
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyObjectFlagsChanged(m *wire.ObjectFlagsChanged) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.Flags = m.Flags
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyObjectModelURLChanged(m *wire.ObjectModelURLChanged) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.ModelURL = m.URL
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyObjectLightmapURLChanged(m *wire.ObjectLightmapURLChanged) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.LightmapURL = m.URL
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyPhysicsOwnershipTaken(m *wire.ObjectPhysicsOwnershipTaken) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	now := time.Now()
	ob.PhysicsOwner = &world.PhysicsOwnerInfo{
		OwnerClientID: m.OwnerClientID,
		TakeTime:      m.TakeTime,
		LastRenewal:   now,
	}
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applySummonObject(m *wire.SummonObject) {
	ob, ok := rc.state.GetObject(m.UID)
	if !ok {
		return
	}
	ob.Pos = m.Pos
	ob.MarkTransformDirty()
	rc.state.MarkDirtyFromRemote(ob.UID)
}

func (rc *Receiver) applyAvatarCreated(m *wire.AvatarCreated) {
	rc.state.InsertAvatar(&world.Avatar{UID: m.UID, Name: m.Name, Pos: m.Pos, Axis: m.Axis})
	rc.mq.Post(msgqueue.Item{Kind: msgqueue.KindAvatarChanged})
}

func (rc *Receiver) applyAvatarTransform(m *wire.AvatarTransform) {
	av, ok := rc.state.GetAvatar(m.UID)
	if !ok {
		return
	}
	av.Pos, av.Axis, av.Angle = m.Pos, m.Axis, m.Angle
}

func (rc *Receiver) applyAvatarGesture(typ wire.MsgType, m *wire.AvatarGesture) {
	av, ok := rc.state.GetAvatar(m.UID)
	if !ok {
		return
	}
	if typ == wire.MsgAvatarStopGesture {
		av.SelectedGesture = ""
		return
	}
	av.SelectedGesture = m.Gesture
}

func (rc *Receiver) applyAvatarVehicle(typ wire.MsgType, m *wire.AvatarVehicleTransition) {
	av, ok := rc.state.GetAvatar(m.AvatarUID)
	if !ok {
		return
	}
	if typ == wire.MsgAvatarEnteredVehicle {
		av.AnimState = "in_vehicle"
	} else {
		av.AnimState = ""
	}
}

func (rc *Receiver) applyParcelUpdate(m *wire.ParcelUpdate) {
	rc.state.InsertParcel(&world.Parcel{
		ID:         m.ID,
		AABB:       m.AABB,
		Flags:      m.Flags,
		WriterIDs:  m.WriterIDs,
		SpawnPoint: m.SpawnPoint,
		Title:      m.Title,
	})
}

// applyCompressedParcelSend mirrors applyCompressedInitialSend for the
// connect-time full parcel send: one Zstd stream of back-to-back
// ParcelCreated sub-frames.
func (rc *Receiver) applyCompressedParcelSend(payload []byte) {
	zr, err := zstd.NewReader(bytes.NewReader(payload))
	if err != nil {
		rc.mq.PostError(fmt.Errorf("session: compressed parcel send: %w", err))
		return
	}
	defer zr.Close()
	for {
		typ, sub, err := wire.ReadFrame(zr)
		if err == io.EOF {
			return
		}
		if err != nil {
			rc.mq.PostError(fmt.Errorf("session: compressed parcel send: %w", err))
			return
		}
		if typ != wire.MsgParcelCreated && typ != wire.MsgParcelFullUpdate {
			continue
		}
		rc.applyParcelUpdate(wire.DecodeParcelUpdate(wire.NewReader(bytes.NewReader(sub))))
	}
}

func (rc *Receiver) applyLODChunkUpdate(typ wire.MsgType, m *wire.LODChunkUpdate) {
	rc.state.InsertLODChunk(&world.LODChunk{
		Coord:           m.Coord,
		CombinedMeshURL: m.CombinedMeshURL,
		CombinedTexURL:  m.CombinedTexURL,
		MaterialInfo:    m.MaterialInfo,
		NeedsRebuild:    typ == wire.MsgLODChunkUpdated,
	})
}

// SelfUID returns the client's own avatar UID, valid once a LoggedIn
// message has been dispatched.
func (rc *Receiver) SelfUID() world.UID { return rc.selfUID }
