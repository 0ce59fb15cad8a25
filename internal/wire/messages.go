package wire

import (
	"time"

	"github.com/petervdpas/substrata-client/internal/world"
)

// globalTime{To,From}Wire convert between the wire's microseconds-since-Unix-
// epoch representation and time.Time.
func globalTimeToWire(t time.Time) uint64 {
	return uint64(t.UnixMicro())
}

func globalTimeFromWire(v uint64) time.Time {
	return time.UnixMicro(int64(v))
}

// ObjectTransformUpdate carries a new pose for an existing object (MsgObjectTransformUpdate).
type ObjectTransformUpdate struct {
	UID   world.UID
	Pos   world.Vec3d
	Axis  world.Vec3f
	Angle float32
	Scale world.Vec3f
}

func (m *ObjectTransformUpdate) Encode(w *Writer) {
	w.UID(m.UID)
	w.Vec3d(m.Pos)
	w.Vec3f(m.Axis)
	w.F32(m.Angle)
	w.Vec3f(m.Scale)
}

func DecodeObjectTransformUpdate(r *Reader) *ObjectTransformUpdate {
	m := &ObjectTransformUpdate{}
	m.UID = r.UID()
	m.Pos = r.Vec3d()
	m.Axis = r.Vec3f()
	m.Angle = r.F32()
	m.Scale = r.Vec3f()
	return m
}

// ObjectPhysicsTransformUpdate is identical in shape to ObjectTransformUpdate
// but routed distinctly because it originates from the current physics
// owner and is applied without ownership arbitration (spec §4.M).
type ObjectPhysicsTransformUpdate struct {
	ObjectTransformUpdate
}

func DecodeObjectPhysicsTransformUpdate(r *Reader) *ObjectPhysicsTransformUpdate {
	return &ObjectPhysicsTransformUpdate{*DecodeObjectTransformUpdate(r)}
}

// ObjectCreated carries a full object snapshot for a newly-created object
// (MsgObjectCreated / one ObjectInitialSend sub-frame).
type ObjectCreated struct {
	UID              world.UID
	CreatorID        world.UID
	CreatedTime      time.Time
	Pos              world.Vec3d
	Axis             world.Vec3f
	Angle            float32
	Scale            world.Vec3f
	ObjectType       world.ObjectType
	ModelURL         string
	LightmapURL      string
	AudioSourceURL   string
	Script           string
	Flags            world.ObjectFlags
	MaxModelLODLevel int32
	Materials        []world.Material
	AABBOS           world.AABB
}

func (m *ObjectCreated) Encode(w *Writer) {
	w.UID(m.UID)
	w.UID(m.CreatorID)
	w.U64(globalTimeToWire(m.CreatedTime))
	w.Vec3d(m.Pos)
	w.Vec3f(m.Axis)
	w.F32(m.Angle)
	w.Vec3f(m.Scale)
	w.U32(uint32(m.ObjectType))
	w.String(m.ModelURL)
	w.String(m.LightmapURL)
	w.String(m.AudioSourceURL)
	w.String(m.Script)
	w.U32(uint32(m.Flags))
	w.I32(m.MaxModelLODLevel)
	w.Vec3d(m.AABBOS.Min)
	w.Vec3d(m.AABBOS.Max)
	w.U32(uint32(len(m.Materials)))
	for _, mat := range m.Materials {
		encodeMaterial(w, mat)
	}
}

func DecodeObjectCreated(r *Reader) *ObjectCreated {
	m := &ObjectCreated{}
	m.UID = r.UID()
	m.CreatorID = r.UID()
	m.CreatedTime = globalTimeFromWire(r.U64())
	m.Pos = r.Vec3d()
	m.Axis = r.Vec3f()
	m.Angle = r.F32()
	m.Scale = r.Vec3f()
	m.ObjectType = world.ObjectType(r.U32())
	m.ModelURL = r.String()
	m.LightmapURL = r.String()
	m.AudioSourceURL = r.String()
	m.Script = r.String()
	m.Flags = world.ObjectFlags(r.U32())
	m.MaxModelLODLevel = r.I32()
	m.AABBOS.Min = r.Vec3d()
	m.AABBOS.Max = r.Vec3d()
	n := r.U32()
	m.Materials = make([]world.Material, 0, n)
	for i := uint32(0); i < n; i++ {
		m.Materials = append(m.Materials, decodeMaterial(r))
	}
	return m
}

func encodeMaterial(w *Writer, m world.Material) {
	for _, c := range m.Colour {
		w.F32(c)
	}
	w.String(m.ColourTexURL)
	w.String(m.EmissionTexURL)
	for _, c := range m.Emission {
		w.F32(c)
	}
	for _, c := range m.TexMatrix {
		w.F32(c)
	}
	w.F32(m.Opacity)
	w.Bool(m.FlipY)
	w.Bool(m.AnimatedColour)
	w.Bool(m.AnimatedEmiss)
}

func decodeMaterial(r *Reader) world.Material {
	var m world.Material
	for i := range m.Colour {
		m.Colour[i] = r.F32()
	}
	m.ColourTexURL = r.String()
	m.EmissionTexURL = r.String()
	for i := range m.Emission {
		m.Emission[i] = r.F32()
	}
	for i := range m.TexMatrix {
		m.TexMatrix[i] = r.F32()
	}
	m.Opacity = r.F32()
	m.FlipY = r.Bool()
	m.AnimatedColour = r.Bool()
	m.AnimatedEmiss = r.Bool()
	return m
}

// ObjectFullUpdate re-sends the complete snapshot of an existing object.
// Payload shape is identical to ObjectCreated; it is a distinct message so
// the receiver can distinguish "update everything" from "object is new".
type ObjectFullUpdate struct {
	ObjectCreated
}

func DecodeObjectFullUpdate(r *Reader) *ObjectFullUpdate {
	return &ObjectFullUpdate{*DecodeObjectCreated(r)}
}

// ObjectContentChanged notifies that an object's embedded content (hypercard
// text, script source) changed server-side; clients re-pull via a full
// update or re-run their load pipeline for it.
type ObjectContentChanged struct {
	UID world.UID
}

func (m *ObjectContentChanged) Encode(w *Writer) { w.UID(m.UID) }
func DecodeObjectContentChanged(r *Reader) *ObjectContentChanged {
	return &ObjectContentChanged{UID: r.UID()}
}

// ObjectDestroyed names the object to remove (MsgObjectDestroyed).
type ObjectDestroyed struct {
	UID world.UID
}

func (m *ObjectDestroyed) Encode(w *Writer) { w.UID(m.UID) }
func DecodeObjectDestroyed(r *Reader) *ObjectDestroyed {
	return &ObjectDestroyed{UID: r.UID()}
}

// ObjectFlagsChanged carries a replacement flags bitfield (MsgObjectFlagsChanged).
type ObjectFlagsChanged struct {
	UID   world.UID
	Flags world.ObjectFlags
}

func (m *ObjectFlagsChanged) Encode(w *Writer) {
	w.UID(m.UID)
	w.U32(uint32(m.Flags))
}

func DecodeObjectFlagsChanged(r *Reader) *ObjectFlagsChanged {
	return &ObjectFlagsChanged{UID: r.UID(), Flags: world.ObjectFlags(r.U32())}
}

// ObjectModelURLChanged / ObjectLightmapURLChanged swap out a single URL field.
type ObjectModelURLChanged struct {
	UID world.UID
	URL string
}

func (m *ObjectModelURLChanged) Encode(w *Writer) {
	w.UID(m.UID)
	w.String(m.URL)
}

func DecodeObjectModelURLChanged(r *Reader) *ObjectModelURLChanged {
	return &ObjectModelURLChanged{UID: r.UID(), URL: r.String()}
}

type ObjectLightmapURLChanged struct {
	UID world.UID
	URL string
}

func (m *ObjectLightmapURLChanged) Encode(w *Writer) {
	w.UID(m.UID)
	w.String(m.URL)
}

func DecodeObjectLightmapURLChanged(r *Reader) *ObjectLightmapURLChanged {
	return &ObjectLightmapURLChanged{UID: r.UID(), URL: r.String()}
}

// ObjectPhysicsOwnershipTaken records a take/renewal of physics ownership
// (spec §4.M). TakeTime is the wire-encoded global time at which the take
// occurred; LastRenewal is set locally to the receipt time, not decoded.
type ObjectPhysicsOwnershipTaken struct {
	UID           world.UID
	OwnerClientID string
	TakeTime      time.Time
}

func (m *ObjectPhysicsOwnershipTaken) Encode(w *Writer) {
	w.UID(m.UID)
	w.String(m.OwnerClientID)
	w.U64(globalTimeToWire(m.TakeTime))
}

func DecodeObjectPhysicsOwnershipTaken(r *Reader) *ObjectPhysicsOwnershipTaken {
	return &ObjectPhysicsOwnershipTaken{
		UID:           r.UID(),
		OwnerClientID: r.String(),
		TakeTime:      globalTimeFromWire(r.U64()),
	}
}

// SummonObject requests that an object be relocated to a position (e.g. a
// scripted "come here" call).
type SummonObject struct {
	UID world.UID
	Pos world.Vec3d
}

func (m *SummonObject) Encode(w *Writer) {
	w.UID(m.UID)
	w.Vec3d(m.Pos)
}

func DecodeSummonObject(r *Reader) *SummonObject {
	return &SummonObject{UID: r.UID(), Pos: r.Vec3d()}
}

// AvatarTransform carries a pose update for a remote avatar.
type AvatarTransform struct {
	UID   world.UID
	Pos   world.Vec3d
	Axis  world.Vec3f
	Angle float32
}

func (m *AvatarTransform) Encode(w *Writer) {
	w.UID(m.UID)
	w.Vec3d(m.Pos)
	w.Vec3f(m.Axis)
	w.F32(m.Angle)
}

func DecodeAvatarTransform(r *Reader) *AvatarTransform {
	return &AvatarTransform{UID: r.UID(), Pos: r.Vec3d(), Axis: r.Vec3f(), Angle: r.F32()}
}

// AvatarCreated / AvatarIsHere both introduce a remote avatar; they share
// payload shape and are decoded the same way.
type AvatarCreated struct {
	UID  world.UID
	Name string
	Pos  world.Vec3d
	Axis world.Vec3f
}

func DecodeAvatarCreated(r *Reader) *AvatarCreated {
	return &AvatarCreated{UID: r.UID(), Name: r.String(), Pos: r.Vec3d(), Axis: r.Vec3f()}
}

func (m *AvatarCreated) Encode(w *Writer) {
	w.UID(m.UID)
	w.String(m.Name)
	w.Vec3d(m.Pos)
	w.Vec3f(m.Axis)
}

// AvatarGesture starts (MsgAvatarPerformGesture) or stops
// (MsgAvatarStopGesture, empty Gesture) a gesture animation on an avatar.
type AvatarGesture struct {
	UID     world.UID
	Gesture string
}

func (m *AvatarGesture) Encode(w *Writer) {
	w.UID(m.UID)
	w.String(m.Gesture)
}

func DecodeAvatarGesture(r *Reader) *AvatarGesture {
	return &AvatarGesture{UID: r.UID(), Gesture: r.String()}
}

// AvatarVehicleTransition reports an avatar entering
// (MsgAvatarEnteredVehicle) or exiting (MsgAvatarExitedVehicle) a vehicle
// object.
type AvatarVehicleTransition struct {
	AvatarUID  world.UID
	VehicleUID world.UID
	SeatIndex  uint32
}

func (m *AvatarVehicleTransition) Encode(w *Writer) {
	w.UID(m.AvatarUID)
	w.UID(m.VehicleUID)
	w.U32(m.SeatIndex)
}

func DecodeAvatarVehicleTransition(r *Reader) *AvatarVehicleTransition {
	return &AvatarVehicleTransition{AvatarUID: r.UID(), VehicleUID: r.UID(), SeatIndex: r.U32()}
}

// AvatarDestroyed names the avatar to remove.
type AvatarDestroyed struct {
	UID world.UID
}

func DecodeAvatarDestroyed(r *Reader) *AvatarDestroyed { return &AvatarDestroyed{UID: r.UID()} }
func (m *AvatarDestroyed) Encode(w *Writer)            { w.UID(m.UID) }

// ChatMessage carries a chat line from another user.
type ChatMessage struct {
	AvatarUID world.UID
	Name      string
	Text      string
}

func (m *ChatMessage) Encode(w *Writer) {
	w.UID(m.AvatarUID)
	w.String(m.Name)
	w.String(m.Text)
}

func DecodeChatMessage(r *Reader) *ChatMessage {
	return &ChatMessage{AvatarUID: r.UID(), Name: r.String(), Text: r.String()}
}

// TimeSyncMessage carries the server's current global time (spec §4.D/§4.O).
type TimeSyncMessage struct {
	GlobalTime time.Time
}

func (m *TimeSyncMessage) Encode(w *Writer) { w.U64(globalTimeToWire(m.GlobalTime)) }
func DecodeTimeSyncMessage(r *Reader) *TimeSyncMessage {
	return &TimeSyncMessage{GlobalTime: globalTimeFromWire(r.U64())}
}

// LoggedIn completes authentication on an Updates connection.
type LoggedIn struct {
	ClientAvatarUID world.UID
	Username        string
	Flags           uint32
}

func (m *LoggedIn) Encode(w *Writer) {
	w.UID(m.ClientAvatarUID)
	w.String(m.Username)
	w.U32(m.Flags)
}

func DecodeLoggedIn(r *Reader) *LoggedIn {
	return &LoggedIn{ClientAvatarUID: r.UID(), Username: r.String(), Flags: r.U32()}
}

// ErrorMessage and InfoMessage are server-originated user-facing text,
// routed to the foreground notification surface (spec §7).
type ErrorMessage struct {
	Text string
}

func (m *ErrorMessage) Encode(w *Writer)     { w.String(m.Text) }
func DecodeErrorMessage(r *Reader) *ErrorMessage { return &ErrorMessage{Text: r.String()} }

type InfoMessage struct {
	Text string
}

func (m *InfoMessage) Encode(w *Writer)    { w.String(m.Text) }
func DecodeInfoMessage(r *Reader) *InfoMessage { return &InfoMessage{Text: r.String()} }

// GetFiles requests up to several resources by URL in one round-trip (spec §4.G).
type GetFiles struct {
	URLs []string
}

func (m *GetFiles) Encode(w *Writer) {
	w.U32(uint32(len(m.URLs)))
	for _, u := range m.URLs {
		w.String(u)
	}
}

func DecodeGetFiles(r *Reader) *GetFiles {
	n := r.U32()
	urls := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		urls = append(urls, r.String())
	}
	return &GetFiles{URLs: urls}
}

// ParcelUpdate carries a parcel's full state, used for both MsgParcelCreated
// and MsgParcelFullUpdate (and each sub-frame of a compressed initial send).
type ParcelUpdate struct {
	ID         world.ParcelID
	AABB       world.AABB
	Flags      uint32
	WriterIDs  []world.UID
	SpawnPoint world.Vec3d
	Title      string
}

func (m *ParcelUpdate) Encode(w *Writer) {
	w.U32(uint32(m.ID))
	w.Vec3d(m.AABB.Min)
	w.Vec3d(m.AABB.Max)
	w.U32(m.Flags)
	w.U32(uint32(len(m.WriterIDs)))
	for _, id := range m.WriterIDs {
		w.UID(id)
	}
	w.Vec3d(m.SpawnPoint)
	w.String(m.Title)
}

func DecodeParcelUpdate(r *Reader) *ParcelUpdate {
	m := &ParcelUpdate{}
	m.ID = world.ParcelID(r.U32())
	m.AABB.Min = r.Vec3d()
	m.AABB.Max = r.Vec3d()
	m.Flags = r.U32()
	n := r.U32()
	m.WriterIDs = make([]world.UID, 0, n)
	for i := uint32(0); i < n; i++ {
		m.WriterIDs = append(m.WriterIDs, r.UID())
	}
	m.SpawnPoint = r.Vec3d()
	m.Title = r.String()
	return m
}

// LODChunkUpdate carries one coarse spatial tile's combined-mesh data, used
// for both MsgLODChunkInitialSend and MsgLODChunkUpdated.
type LODChunkUpdate struct {
	Coord           [3]int32
	CombinedMeshURL string
	CombinedTexURL  string
	MaterialInfo    []byte
}

func (m *LODChunkUpdate) Encode(w *Writer) {
	w.I32(m.Coord[0])
	w.I32(m.Coord[1])
	w.I32(m.Coord[2])
	w.String(m.CombinedMeshURL)
	w.String(m.CombinedTexURL)
	w.U32(uint32(len(m.MaterialInfo)))
	w.RawBytes(m.MaterialInfo)
}

func DecodeLODChunkUpdate(r *Reader) *LODChunkUpdate {
	m := &LODChunkUpdate{}
	m.Coord[0] = r.I32()
	m.Coord[1] = r.I32()
	m.Coord[2] = r.I32()
	m.CombinedMeshURL = r.String()
	m.CombinedTexURL = r.String()
	n := r.U32()
	if n > 0 {
		m.MaterialInfo = r.Bytes(n)
	}
	return m
}

// UserObjectEvent is the shared payload of the client-to-server script event
// messages (MsgUserUsedObject, MsgUserTouchedObject, MsgUserMovedNearToObject,
// MsgUserMovedAwayFromObject): just the object the user interacted with. The
// server attributes the sending avatar itself.
type UserObjectEvent struct {
	ObjectUID world.UID
}

func (m *UserObjectEvent) Encode(w *Writer) { w.UID(m.ObjectUID) }
func DecodeUserObjectEvent(r *Reader) *UserObjectEvent {
	return &UserObjectEvent{ObjectUID: r.UID()}
}

// QueryObjectsInAABB asks the server for the initial send of every object
// inside an axis-aligned region, issued once per grid cell newly entering
// proximity (spec §4.E newCellInProximity).
type QueryObjectsInAABB struct {
	AABB world.AABB
}

func (m *QueryObjectsInAABB) Encode(w *Writer) {
	w.Vec3d(m.AABB.Min)
	w.Vec3d(m.AABB.Max)
}

func DecodeQueryObjectsInAABB(r *Reader) *QueryObjectsInAABB {
	return &QueryObjectsInAABB{AABB: world.AABB{Min: r.Vec3d(), Max: r.Vec3d()}}
}

// MapTilesResult returns the tile image URLs for a prior map-tiles query.
type MapTilesResult struct {
	TileURLs []string
}

func (m *MapTilesResult) Encode(w *Writer) {
	w.U32(uint32(len(m.TileURLs)))
	for _, u := range m.TileURLs {
		w.String(u)
	}
}

func DecodeMapTilesResult(r *Reader) *MapTilesResult {
	n := r.U32()
	urls := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		urls = append(urls, r.String())
	}
	return &MapTilesResult{TileURLs: urls}
}

// CyberspaceGoodbye is sent by the sender task as the last frame of a
// graceful shutdown (spec §4.B).
type CyberspaceGoodbye struct{}

func (m *CyberspaceGoodbye) Encode(w *Writer) {}
