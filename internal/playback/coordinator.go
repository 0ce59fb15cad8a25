// Package playback drives per-material animated-texture and embedded-browser
// state machines: which materials are worth decoding video/browser frames
// for right now, and which frame of an animated texture to show (spec
// §4.K). Grounded on the teacher's internal/call session/track lifecycle
// (media_common.go, session.go): a per-peer state machine there becomes a
// per-material state machine here, started and torn down on the same
// visibility/distance triggers a call track used for join/leave.
package playback

import (
	"sort"
	"sync"

	"github.com/petervdpas/substrata-client/internal/world"
)

// BrowserState is the per-texture mini state machine from spec §4.K.
type BrowserState int

const (
	Unloaded BrowserState = iota
	BrowserCreated
	ErrorOccurred
)

const (
	largeEnoughMaxDist    = 200.0
	largeEnoughMinProjLen = 0.01
	mp4LargeEnoughMaxDist = 20.0
)

// MaterialKey identifies one animated binding: an object's material slot,
// and whether it is the colour or emission channel.
type MaterialKey struct {
	ObjectUID world.UID
	MatIndex  int
	Emission  bool
}

// materialState tracks one animated texture's playback + decoder lifecycle.
type materialState struct {
	browser            BrowserState
	decoderAllocated    bool
	discardedDirtyUpdates bool
	lastLoadedFrame     int
	currentFrame        int

	frameDurationsUniform bool
	recipFrameDuration    float64
	frameEndTimes         []float64 // cumulative, seconds
	loopDuration          float64
}

// Coordinator owns every active MaterialKey's state (spec §4.K).
type Coordinator struct {
	mu     sync.Mutex
	states map[MaterialKey]*materialState

	// AllocateDecoder/ReleaseDecoder are injected so this package never
	// touches the actual video decoder or embedded browser -- both are
	// explicitly out of scope (spec §1).
	AllocateDecoder func(key MaterialKey) error
	ReleaseDecoder  func(key MaterialKey)
	UploadFrame     func(key MaterialKey, frameIndex int)
}

func New() *Coordinator {
	return &Coordinator{states: make(map[MaterialKey]*materialState)}
}

// FrustumInfo is what the render-side frustum test contributes per tick;
// rendering itself is out of scope, so the caller supplies these numbers.
type FrustumInfo struct {
	InFrustum bool
	BBoxLen   float64
	RecipDist float64
}

// Tick evaluates one material binding for one frame (spec §4.K steps 1-4).
func (c *Coordinator) Tick(key MaterialKey, fr FrustumInfo, tInLoop float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.states[key]
	if !ok {
		st = &materialState{}
		c.states[key] = st
	}

	projLen := fr.BBoxLen * fr.RecipDist
	dist := 0.0
	if fr.RecipDist > 0 {
		dist = 1 / fr.RecipDist
	}
	largeEnough := dist <= largeEnoughMaxDist && projLen > largeEnoughMinProjLen
	mp4LargeEnough := dist <= mp4LargeEnoughMaxDist

	visible := fr.InFrustum && largeEnough

	if visible {
		st.currentFrame = c.selectFrame(st, tInLoop)
		if st.currentFrame != st.lastLoadedFrame {
			st.lastLoadedFrame = st.currentFrame
			if c.UploadFrame != nil {
				c.UploadFrame(key, st.currentFrame)
			}
		}
	}

	if mp4LargeEnough {
		if !st.decoderAllocated {
			if c.AllocateDecoder == nil || c.AllocateDecoder(key) == nil {
				st.decoderAllocated = true
				st.browser = BrowserCreated
			} else {
				st.browser = ErrorOccurred
			}
		}
	} else if st.decoderAllocated {
		if c.ReleaseDecoder != nil {
			c.ReleaseDecoder(key)
		}
		st.decoderAllocated = false
		st.browser = Unloaded
	}

	if st.decoderAllocated && !visible {
		st.discardedDirtyUpdates = true
	} else if visible && st.discardedDirtyUpdates {
		st.discardedDirtyUpdates = false
		st.lastLoadedFrame = -1 // force an upload once visibility returns
	}
}

// selectFrame implements spec §4.K "Frame selection": uniform-duration fast
// path, else try current/next, else binary-search frame_end_times.
func (c *Coordinator) selectFrame(st *materialState, tInLoop float64) int {
	if st.frameDurationsUniform {
		return int(tInLoop * st.recipFrameDuration)
	}
	n := len(st.frameEndTimes)
	if n == 0 {
		return 0
	}
	cur := st.currentFrame
	if cur < n && inFrame(st.frameEndTimes, cur, tInLoop) {
		return cur
	}
	next := cur + 1
	if next < n && inFrame(st.frameEndTimes, next, tInLoop) {
		return next
	}
	idx := sort.Search(n, func(i int) bool { return st.frameEndTimes[i] >= tInLoop })
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func inFrame(ends []float64, i int, t float64) bool {
	lo := 0.0
	if i > 0 {
		lo = ends[i-1]
	}
	return t >= lo && t < ends[i]
}

// SetFrameSchedule configures a material binding's animation timing. Called
// once after the texture's metadata is decoded.
func (c *Coordinator) SetFrameSchedule(key MaterialKey, uniform bool, recipFrameDuration float64, frameEndTimes []float64, loopDuration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[key]
	if !ok {
		st = &materialState{}
		c.states[key] = st
	}
	st.frameDurationsUniform = uniform
	st.recipFrameDuration = recipFrameDuration
	st.frameEndTimes = frameEndTimes
	st.loopDuration = loopDuration
}

// Remove tears down any decoder for key (object destroyed or unloaded).
func (c *Coordinator) Remove(key MaterialKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.states[key]
	if !ok {
		return
	}
	if st.decoderAllocated && c.ReleaseDecoder != nil {
		c.ReleaseDecoder(key)
	}
	delete(c.states, key)
}
