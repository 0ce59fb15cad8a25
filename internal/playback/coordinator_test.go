package playback

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func visibleFrustum(dist, bboxLen float64) FrustumInfo {
	return FrustumInfo{InFrustum: true, BBoxLen: bboxLen, RecipDist: 1 / dist}
}

func TestTickUploadsOnlyWhenFrameChangesUniformSchedule(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1, MatIndex: 0}
	c.SetFrameSchedule(key, true, 10, nil, 1) // 10 frames/sec

	var uploads []int
	c.UploadFrame = func(k MaterialKey, frame int) { uploads = append(uploads, frame) }

	c.Tick(key, visibleFrustum(50, 1), 0.25) // frame = int(0.25*10) = 2
	c.Tick(key, visibleFrustum(50, 1), 0.26) // still frame 2
	c.Tick(key, visibleFrustum(50, 1), 0.35) // frame = 3

	require.Len(t, uploads, 2)
	assert.Equal(t, []int{2, 3}, uploads)
}

func TestTickNotVisibleWhenOutsideFrustum(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	c.SetFrameSchedule(key, true, 10, nil, 1)
	var uploads []int
	c.UploadFrame = func(k MaterialKey, frame int) { uploads = append(uploads, frame) }

	c.Tick(key, FrustumInfo{InFrustum: false, BBoxLen: 1, RecipDist: 1.0 / 50}, 0.25)
	assert.Empty(t, uploads)
}

func TestTickNotVisibleWhenTooFarOrTooSmall(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	c.SetFrameSchedule(key, true, 10, nil, 1)
	var uploads []int
	c.UploadFrame = func(k MaterialKey, frame int) { uploads = append(uploads, frame) }

	// Beyond largeEnoughMaxDist.
	c.Tick(key, visibleFrustum(300, 1), 0.25)
	assert.Empty(t, uploads)

	// Projected length too small even though close.
	c.Tick(key, visibleFrustum(50, 0.0001), 0.25)
	assert.Empty(t, uploads)
}

func TestSelectFrameBinarySearchNonUniformSchedule(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	ends := []float64{1, 2, 3, 4}
	c.SetFrameSchedule(key, false, 0, ends, 4)

	var uploads []int
	c.UploadFrame = func(k MaterialKey, frame int) { uploads = append(uploads, frame) }

	c.Tick(key, visibleFrustum(50, 1), 2.5) // frame 2: [2,3)
	require.NotEmpty(t, uploads)
	assert.Equal(t, 2, uploads[len(uploads)-1])

	c.Tick(key, visibleFrustum(50, 1), 2.9) // still frame 2, fast path via cur match
	assert.Equal(t, 2, uploads[len(uploads)-1])

	c.Tick(key, visibleFrustum(50, 1), 3.1) // frame 3, fast path via next match
	assert.Equal(t, 3, uploads[len(uploads)-1])
}

func TestTickAllocatesDecoderWhenMP4LargeEnough(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	var allocated, released []MaterialKey
	c.AllocateDecoder = func(k MaterialKey) error { allocated = append(allocated, k); return nil }
	c.ReleaseDecoder = func(k MaterialKey) { released = append(released, k) }

	c.Tick(key, visibleFrustum(10, 1), 0) // dist=10 <= mp4LargeEnoughMaxDist(20)
	assert.Len(t, allocated, 1)
	assert.Empty(t, released)

	c.Tick(key, visibleFrustum(1000, 1), 0) // now far: release
	assert.Len(t, released, 1)
}

func TestTickMarksErrorOccurredWhenAllocateDecoderFails(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	c.AllocateDecoder = func(k MaterialKey) error { return errors.New("no decoder slots") }

	c.Tick(key, visibleFrustum(10, 1), 0)
	st := c.states[key]
	require.NotNil(t, st)
	assert.Equal(t, ErrorOccurred, st.browser)
	assert.False(t, st.decoderAllocated)
}

func TestTickForcesReuploadAfterDiscardedUpdatesWhileInvisible(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	c.SetFrameSchedule(key, true, 10, nil, 1)
	c.AllocateDecoder = func(MaterialKey) error { return nil }

	var uploads []int
	c.UploadFrame = func(k MaterialKey, frame int) { uploads = append(uploads, frame) }

	// Visible: frame 2 loads and uploads once.
	c.Tick(key, visibleFrustum(10, 1), 0.25)
	assert.Equal(t, []int{2}, uploads)

	// Goes out of frustum, but close enough that the decoder stays
	// allocated -- dirty updates accumulate while invisible.
	c.Tick(key, FrustumInfo{InFrustum: false, BBoxLen: 1, RecipDist: 1.0 / 10}, 0.25)
	st := c.states[key]
	require.True(t, st.decoderAllocated)
	assert.True(t, st.discardedDirtyUpdates)
	assert.Equal(t, []int{2}, uploads, "no upload fires while invisible")

	// Visibility returns at the same in-loop time (same frame 2): this
	// tick's own comparison still sees no change, but it clears
	// discardedDirtyUpdates and forces lastLoadedFrame to -1 for the next tick.
	c.Tick(key, visibleFrustum(10, 1), 0.25)
	assert.False(t, c.states[key].discardedDirtyUpdates)
	assert.Equal(t, []int{2}, uploads, "the regain-visibility tick itself doesn't re-upload")

	// Next tick at the same frame now re-uploads, because lastLoadedFrame
	// was reset to -1 by the previous tick.
	c.Tick(key, visibleFrustum(10, 1), 0.25)
	assert.Equal(t, []int{2, 2}, uploads, "forced reupload after regaining visibility")
}

func TestRemoveReleasesDecoderAndDropsState(t *testing.T) {
	c := New()
	key := MaterialKey{ObjectUID: 1}
	var released []MaterialKey
	c.AllocateDecoder = func(MaterialKey) error { return nil }
	c.ReleaseDecoder = func(k MaterialKey) { released = append(released, k) }

	c.Tick(key, visibleFrustum(10, 1), 0)
	c.Remove(key)

	assert.Len(t, released, 1)
	_, ok := c.states[key]
	assert.False(t, ok)
}

func TestRemoveOnUnknownKeyIsNoop(t *testing.T) {
	c := New()
	c.Remove(MaterialKey{ObjectUID: 999}) // must not panic
}
