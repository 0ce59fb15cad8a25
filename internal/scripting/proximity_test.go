package scripting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petervdpas/substrata-client/internal/world"
)

func newTrackedObject(uid world.UID, pos world.Vec3d) *world.WorldObject {
	ob := &world.WorldObject{
		UID: uid, Pos: pos,
		AABBObjectSpace: world.AABB{Min: world.Vec3d{}, Max: world.Vec3d{}},
	}
	ob.MarkTransformDirty()
	return ob
}

// TestScenario6ProximityCheckerFiresEnterAndExit covers spec Scenario 6: a
// scripted object's OnUserMovedNearTo/OnUserMovedAwayFrom handlers fire
// exactly once per crossing of the fixed 20m threshold.
func TestScenario6ProximityCheckerFiresEnterAndExit(t *testing.T) {
	h := NewHandlerLists()
	eval := &fakeEvaluator{alive: true}
	h.Register(1, OnUserMovedNearTo, eval, "onNear")
	h.Register(1, OnUserMovedAwayFrom, eval, "onAway")

	p := NewProximityChecker(h)
	ob := newTrackedObject(1, world.Vec3d{X: 0, Y: 0, Z: 0})
	p.Track(ob)

	p.Tick(world.Vec3d{X: 100, Y: 0, Z: 0}) // far away, no transition yet
	assert.False(t, ob.InScriptProximity)
	assert.Empty(t, eval.calls)

	p.Tick(world.Vec3d{X: 5, Y: 0, Z: 0}) // within 20m
	assert.True(t, ob.InScriptProximity)
	assert.Equal(t, []string{"onNear"}, eval.calls)

	// Staying near should not re-fire onNear.
	p.Tick(world.Vec3d{X: 6, Y: 0, Z: 0})
	assert.Equal(t, []string{"onNear"}, eval.calls)

	p.Tick(world.Vec3d{X: 100, Y: 0, Z: 0}) // walk away
	assert.False(t, ob.InScriptProximity)
	assert.Equal(t, []string{"onNear", "onAway"}, eval.calls)
}

func TestProximityCheckerExactThresholdIsNotNear(t *testing.T) {
	h := NewHandlerLists()
	p := NewProximityChecker(h)
	ob := newTrackedObject(1, world.Vec3d{X: 0, Y: 0, Z: 0})
	p.Track(ob)

	// Exactly at the threshold: dist < threshold is false at dist == threshold.
	p.Tick(world.Vec3d{X: scriptProximityThreshold, Y: 0, Z: 0})
	assert.False(t, ob.InScriptProximity)
}

func TestProximityCheckerOnEnterOnExitCallbacksFire(t *testing.T) {
	h := NewHandlerLists()
	p := NewProximityChecker(h)
	ob := newTrackedObject(1, world.Vec3d{X: 0, Y: 0, Z: 0})
	p.Track(ob)

	var entered, exited bool
	p.OnEnter = func(*world.WorldObject) { entered = true }
	p.OnExit = func(*world.WorldObject) { exited = true }

	p.Tick(world.Vec3d{X: 1, Y: 0, Z: 0})
	assert.True(t, entered)
	assert.False(t, exited)

	p.Tick(world.Vec3d{X: 1000, Y: 0, Z: 0})
	assert.True(t, exited)
}

func TestProximityCheckerUntrackStopsEvaluation(t *testing.T) {
	h := NewHandlerLists()
	p := NewProximityChecker(h)
	ob := newTrackedObject(1, world.Vec3d{X: 0, Y: 0, Z: 0})
	p.Track(ob)
	p.Untrack(1)

	p.Tick(world.Vec3d{X: 1, Y: 0, Z: 0})
	assert.False(t, ob.InScriptProximity, "untracked object must not be evaluated")
}

func TestProximityCheckerNoHysteresisOnRepeatedCrossing(t *testing.T) {
	h := NewHandlerLists()
	eval := &fakeEvaluator{alive: true}
	h.Register(1, OnUserMovedNearTo, eval, "onNear")
	h.Register(1, OnUserMovedAwayFrom, eval, "onAway")
	p := NewProximityChecker(h)
	ob := newTrackedObject(1, world.Vec3d{X: 0, Y: 0, Z: 0})
	p.Track(ob)

	// Oscillate right at the boundary -- with no hysteresis band, each
	// crossing toggles state and fires exactly once.
	positions := []float64{19, 21, 19, 21}
	for _, x := range positions {
		p.Tick(world.Vec3d{X: x, Y: 0, Z: 0})
	}
	require.Len(t, eval.calls, 4)
	assert.Equal(t, []string{"onNear", "onAway", "onNear", "onAway"}, eval.calls)
}
