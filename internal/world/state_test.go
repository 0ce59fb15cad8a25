package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petervdpas/substrata-client/internal/clock"
)

func TestStateObjectLifecycle(t *testing.T) {
	s := New(clock.New())

	ob := &WorldObject{UID: 1}
	s.InsertObject(ob)

	got, ok := s.GetObject(1)
	require.True(t, ok)
	assert.Same(t, ob, got)

	// Removing a missing UID is a documented no-op (spec §4.D "Fails: none").
	s.RemoveObject(999)

	s.RemoveObject(1)
	_, ok = s.GetObject(1)
	assert.False(t, ok)
}

func TestStateDirtySets(t *testing.T) {
	s := New(clock.New())
	s.MarkDirtyFromRemote(1)
	s.MarkDirtyFromRemote(2)
	s.MarkDirtyFromLocal(3)

	remote := s.DrainDirtyFromRemote()
	assert.ElementsMatch(t, []UID{1, 2}, remote)
	// Draining clears the set.
	assert.Empty(t, s.DrainDirtyFromRemote())

	local := s.DrainDirtyFromLocal()
	assert.ElementsMatch(t, []UID{3}, local)
}

func TestStateRemoveObjectClearsDirtyEntries(t *testing.T) {
	s := New(clock.New())
	ob := &WorldObject{UID: 5}
	s.InsertObject(ob)
	s.MarkDirtyFromRemote(5)
	s.MarkDirtyFromLocal(5)

	s.RemoveObject(5)

	assert.Empty(t, s.DrainDirtyFromRemote())
	assert.Empty(t, s.DrainDirtyFromLocal())
}

func TestStateAvatarsParcelsLODChunks(t *testing.T) {
	s := New(clock.New())

	av := &Avatar{UID: 10, Name: "alice"}
	s.InsertAvatar(av)
	got, ok := s.GetAvatar(10)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Name)

	count := 0
	s.ForEachAvatar(func(*Avatar) { count++ })
	assert.Equal(t, 1, count)

	s.RemoveAvatar(10)
	_, ok = s.GetAvatar(10)
	assert.False(t, ok)

	p := &Parcel{ID: 7, Title: "spawn"}
	s.InsertParcel(p)
	gotP, ok := s.GetParcel(7)
	require.True(t, ok)
	assert.Equal(t, "spawn", gotP.Title)

	chunk := &LODChunk{Coord: [3]int32{1, 2, 3}}
	s.InsertLODChunk(chunk)
	gotC, ok := s.GetLODChunk([3]int32{1, 2, 3})
	require.True(t, ok)
	assert.Same(t, chunk, gotC)
}

func TestStateClockAccessor(t *testing.T) {
	clk := clock.New()
	s := New(clk)
	assert.Same(t, clk, s.Clock())
}

func TestWorldObjectResourceURLs(t *testing.T) {
	ob := &WorldObject{
		ModelURL:       "model_1.bmesh",
		LightmapURL:    "lm_2.ktx2",
		AudioSourceURL: "audio_3.ogg",
		Materials: []Material{
			{ColourTexURL: "tex_a.ktx2", EmissionTexURL: "tex_b.ktx2"},
			{ColourTexURL: "tex_c.ktx2"},
		},
	}
	urls := ob.ResourceURLs()
	assert.ElementsMatch(t, []string{
		"model_1.bmesh", "lm_2.ktx2", "audio_3.ogg", "tex_a.ktx2", "tex_b.ktx2", "tex_c.ktx2",
	}, urls)
}

func TestWorldObjectEffectiveLoadDist2(t *testing.T) {
	ob := &WorldObject{}
	// Unset (0) clamp defers entirely to the general load distance.
	assert.Equal(t, 10000.0, ob.EffectiveLoadDist2(10000))

	ob.MaxLoadDist2 = 25
	assert.Equal(t, 25.0, ob.EffectiveLoadDist2(10000))

	ob.MaxLoadDist2 = 99999
	assert.Equal(t, 10000.0, ob.EffectiveLoadDist2(10000))
}

func TestWorldObjectRecomputeDerived(t *testing.T) {
	ob := &WorldObject{
		Pos:             Vec3d{X: 10, Y: 0, Z: 0},
		AABBObjectSpace: AABB{Min: Vec3d{X: -1, Y: -1, Z: -1}, Max: Vec3d{X: 1, Y: 1, Z: 1}},
	}
	ob.MarkTransformDirty()

	centroid := ob.CentroidWorldSpace()
	assert.Equal(t, Vec3d{X: 10, Y: 0, Z: 0}, centroid)

	ws := ob.AABBWorldSpace()
	assert.Equal(t, Vec3d{X: 9, Y: -1, Z: -1}, ws.Min)
	assert.Equal(t, Vec3d{X: 11, Y: 1, Z: 1}, ws.Max)
}
