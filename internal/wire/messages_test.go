package wire

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/petervdpas/substrata-client/internal/world"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

func TestObjectTransformUpdateRoundTrip(t *testing.T) {
	m := &ObjectTransformUpdate{
		UID: 5, Pos: world.Vec3d{X: 1, Y: 2, Z: 3},
		Axis: world.Vec3f{X: 0, Y: 1, Z: 0}, Angle: 1.5,
		Scale: world.Vec3f{X: 1, Y: 1, Z: 1},
	}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectTransformUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectPhysicsTransformUpdateRoundTrip(t *testing.T) {
	m := &ObjectPhysicsTransformUpdate{ObjectTransformUpdate{
		UID: 9, Pos: world.Vec3d{X: -1, Y: 0, Z: 2},
		Axis: world.Vec3f{X: 1, Y: 0, Z: 0}, Angle: 0.25,
		Scale: world.Vec3f{X: 2, Y: 2, Z: 2},
	}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectPhysicsTransformUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectCreatedRoundTripWithMaterials(t *testing.T) {
	createdTime := time.UnixMicro(1_700_000_000_123_456)
	m := &ObjectCreated{
		UID: 1, CreatorID: 2, CreatedTime: createdTime,
		Pos: world.Vec3d{X: 1, Y: 2, Z: 3}, Axis: world.Vec3f{X: 0, Y: 1, Z: 0}, Angle: 0.7,
		Scale: world.Vec3f{X: 1, Y: 1, Z: 1}, ObjectType: world.ObjectTypeVideo,
		ModelURL: "model_abc.bmesh", LightmapURL: "lm_def.ktx2", AudioSourceURL: "",
		Flags: world.FlagCollidable | world.FlagVideoAutoplay, MaxModelLODLevel: 2,
		AABBOS: world.AABB{Min: world.Vec3d{X: -1, Y: -1, Z: -1}, Max: world.Vec3d{X: 1, Y: 1, Z: 1}},
		Materials: []world.Material{
			{
				Colour: [4]float32{1, 0, 0, 1}, ColourTexURL: "tex_a.ktx2",
				EmissionTexURL: "tex_b.ktx2", Emission: [3]float32{0, 0, 0},
				TexMatrix: [4]float32{1, 0, 0, 1}, Opacity: 1, FlipY: true,
				AnimatedColour: false, AnimatedEmiss: true,
			},
		},
	}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectCreated(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m.UID, got.UID)
	assert.Equal(t, m.CreatedTime.UnixMicro(), got.CreatedTime.UnixMicro())
	assert.Equal(t, m.ModelURL, got.ModelURL)
	assert.Equal(t, m.Flags, got.Flags)
	assert.Equal(t, m.MaxModelLODLevel, got.MaxModelLODLevel)
	assert.Equal(t, m.AABBOS, got.AABBOS)
	assert.Equal(t, m.Materials, got.Materials)
}

func TestObjectCreatedRoundTripZeroMaterials(t *testing.T) {
	m := &ObjectCreated{UID: 1, CreatedTime: time.UnixMicro(0)}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectCreated(NewReader(bytesReader(w.Bytes())))
	assert.Empty(t, got.Materials)
}

func TestObjectDestroyedRoundTrip(t *testing.T) {
	m := &ObjectDestroyed{UID: 77}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectDestroyed(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectFlagsChangedRoundTrip(t *testing.T) {
	m := &ObjectFlagsChanged{UID: 3, Flags: world.FlagDynamic | world.FlagVideoLoop}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectFlagsChanged(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectModelURLChangedRoundTrip(t *testing.T) {
	m := &ObjectModelURLChanged{UID: 4, URL: "new_model_ff.bmesh"}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectModelURLChanged(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectLightmapURLChangedRoundTrip(t *testing.T) {
	m := &ObjectLightmapURLChanged{UID: 4, URL: "new_lm_ee.ktx2"}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectLightmapURLChanged(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestObjectPhysicsOwnershipTakenRoundTrip(t *testing.T) {
	tt := time.UnixMicro(1_600_000_000_000_000)
	m := &ObjectPhysicsOwnershipTaken{UID: 8, OwnerClientID: "client-abc", TakeTime: tt}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectPhysicsOwnershipTaken(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m.UID, got.UID)
	assert.Equal(t, m.OwnerClientID, got.OwnerClientID)
	assert.Equal(t, m.TakeTime.UnixMicro(), got.TakeTime.UnixMicro())
}

func TestSummonObjectRoundTrip(t *testing.T) {
	m := &SummonObject{UID: 1, Pos: world.Vec3d{X: 10, Y: 20, Z: 30}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeSummonObject(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestAvatarTransformRoundTrip(t *testing.T) {
	m := &AvatarTransform{UID: 2, Pos: world.Vec3d{X: 1, Y: 1, Z: 1}, Axis: world.Vec3f{X: 0, Y: 1, Z: 0}, Angle: 3.14}
	w := NewWriter()
	m.Encode(w)
	got := DecodeAvatarTransform(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestAvatarCreatedRoundTrip(t *testing.T) {
	m := &AvatarCreated{UID: 6, Name: "bob", Pos: world.Vec3d{X: 0, Y: 0, Z: 0}, Axis: world.Vec3f{X: 0, Y: 1, Z: 0}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeAvatarCreated(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestAvatarDestroyedRoundTrip(t *testing.T) {
	m := &AvatarDestroyed{UID: 6}
	w := NewWriter()
	m.Encode(w)
	got := DecodeAvatarDestroyed(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestChatMessageRoundTrip(t *testing.T) {
	m := &ChatMessage{AvatarUID: 6, Name: "bob", Text: "hello world"}
	w := NewWriter()
	m.Encode(w)
	got := DecodeChatMessage(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestTimeSyncMessageRoundTrip(t *testing.T) {
	tt := time.UnixMicro(1_650_000_000_500_000)
	m := &TimeSyncMessage{GlobalTime: tt}
	w := NewWriter()
	m.Encode(w)
	got := DecodeTimeSyncMessage(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m.GlobalTime.UnixMicro(), got.GlobalTime.UnixMicro())
}

func TestLoggedInRoundTrip(t *testing.T) {
	m := &LoggedIn{ClientAvatarUID: 1, Username: "alice", Flags: 7}
	w := NewWriter()
	m.Encode(w)
	got := DecodeLoggedIn(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestErrorAndInfoMessageRoundTrip(t *testing.T) {
	e := &ErrorMessage{Text: "bad request"}
	w := NewWriter()
	e.Encode(w)
	gotE := DecodeErrorMessage(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, e, gotE)

	i := &InfoMessage{Text: "welcome"}
	w2 := NewWriter()
	i.Encode(w2)
	gotI := DecodeInfoMessage(NewReader(bytesReader(w2.Bytes())))
	assert.Equal(t, i, gotI)
}

func TestGetFilesRoundTrip(t *testing.T) {
	m := &GetFiles{URLs: []string{"a_1.bmesh", "b_2.ktx2", "c_3.ogg"}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeGetFiles(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestGetFilesRoundTripEmpty(t *testing.T) {
	m := &GetFiles{}
	w := NewWriter()
	m.Encode(w)
	got := DecodeGetFiles(NewReader(bytesReader(w.Bytes())))
	assert.Empty(t, got.URLs)
}

func TestCyberspaceGoodbyeEncodesToEmptyFrame(t *testing.T) {
	m := &CyberspaceGoodbye{}
	w := NewWriter()
	m.Encode(w)
	assert.Empty(t, w.Bytes())
}

func TestGlobalTimeWireConversionPreservesMicroseconds(t *testing.T) {
	tt := time.UnixMicro(1_234_567_890_123_456)
	wire := globalTimeToWire(tt)
	back := globalTimeFromWire(wire)
	assert.Equal(t, tt.UnixMicro(), back.UnixMicro())
}

func TestObjectFullUpdateRoundTrip(t *testing.T) {
	m := &ObjectFullUpdate{ObjectCreated{
		UID: 12, CreatorID: 3, CreatedTime: time.UnixMicro(1_000_000),
		Pos: world.Vec3d{X: 4, Y: 5, Z: 6}, Axis: world.Vec3f{X: 0, Y: 0, Z: 1}, Angle: 0.5,
		Scale: world.Vec3f{X: 1, Y: 2, Z: 3}, ObjectType: world.ObjectTypeHypercard,
		ModelURL: "card_9.bmesh",
	}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectFullUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m.UID, got.UID)
	assert.Equal(t, m.ModelURL, got.ModelURL)
	assert.Equal(t, m.ObjectType, got.ObjectType)
}

func TestObjectContentChangedRoundTrip(t *testing.T) {
	m := &ObjectContentChanged{UID: 42}
	w := NewWriter()
	m.Encode(w)
	got := DecodeObjectContentChanged(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestAvatarGestureRoundTrip(t *testing.T) {
	m := &AvatarGesture{UID: 5, Gesture: "wave"}
	w := NewWriter()
	m.Encode(w)
	got := DecodeAvatarGesture(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestAvatarVehicleTransitionRoundTrip(t *testing.T) {
	m := &AvatarVehicleTransition{AvatarUID: 5, VehicleUID: 900, SeatIndex: 1}
	w := NewWriter()
	m.Encode(w)
	got := DecodeAvatarVehicleTransition(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestParcelUpdateRoundTrip(t *testing.T) {
	m := &ParcelUpdate{
		ID:   7,
		AABB: world.AABB{Min: world.Vec3d{X: -10, Y: -10, Z: 0}, Max: world.Vec3d{X: 10, Y: 10, Z: 50}},
		Flags: 3, WriterIDs: []world.UID{1, 2, 9},
		SpawnPoint: world.Vec3d{X: 0, Y: 0, Z: 1},
		Title:      "town square",
	}
	w := NewWriter()
	m.Encode(w)
	got := DecodeParcelUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestLODChunkUpdateRoundTrip(t *testing.T) {
	m := &LODChunkUpdate{
		Coord:           [3]int32{-1, 2, 0},
		CombinedMeshURL: "chunk_55.bmesh",
		CombinedTexURL:  "chunkarray_56.ktx2",
		MaterialInfo:    []byte{1, 2, 3, 4},
	}
	w := NewWriter()
	m.Encode(w)
	got := DecodeLODChunkUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestLODChunkUpdateRoundTripEmptyMaterialInfo(t *testing.T) {
	m := &LODChunkUpdate{Coord: [3]int32{0, 0, 0}, CombinedMeshURL: "c_1.bmesh"}
	w := NewWriter()
	m.Encode(w)
	got := DecodeLODChunkUpdate(NewReader(bytesReader(w.Bytes())))
	assert.Empty(t, got.MaterialInfo)
}

func TestUserObjectEventRoundTrip(t *testing.T) {
	m := &UserObjectEvent{ObjectUID: 31}
	w := NewWriter()
	m.Encode(w)
	got := DecodeUserObjectEvent(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestQueryObjectsInAABBRoundTrip(t *testing.T) {
	m := &QueryObjectsInAABB{AABB: world.AABB{
		Min: world.Vec3d{X: 0, Y: 200, Z: -200},
		Max: world.Vec3d{X: 200, Y: 400, Z: 0},
	}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeQueryObjectsInAABB(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}

func TestMapTilesResultRoundTrip(t *testing.T) {
	m := &MapTilesResult{TileURLs: []string{"tile_0_0_1.png", "tile_1_0_2.png"}}
	w := NewWriter()
	m.Encode(w)
	got := DecodeMapTilesResult(NewReader(bytesReader(w.Bytes())))
	assert.Equal(t, m, got)
}
