package world

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVec3dArithmetic(t *testing.T) {
	a := Vec3d{X: 1, Y: 2, Z: 3}
	b := Vec3d{X: 4, Y: -1, Z: 0.5}

	assert.Equal(t, Vec3d{X: 5, Y: 1, Z: 3.5}, a.Add(b))
	assert.Equal(t, Vec3d{X: -3, Y: 3, Z: 2.5}, a.Sub(b))
}

func TestVec3dDist(t *testing.T) {
	a := Vec3d{X: 0, Y: 0, Z: 0}
	b := Vec3d{X: 3, Y: 4, Z: 0}

	assert.Equal(t, 25.0, a.Dist2(b))
	assert.InDelta(t, 5.0, a.Dist(b), 1e-9)
}

func TestVec3fLongestEdge(t *testing.T) {
	assert.Equal(t, float32(5), Vec3f{X: 1, Y: 5, Z: 2}.LongestEdge())
	assert.Equal(t, float32(2), Vec3f{X: 1, Y: -9, Z: 2}.LongestEdge())
}

func TestAABBClosestPointTo(t *testing.T) {
	box := AABB{Min: Vec3d{X: -1, Y: -1, Z: -1}, Max: Vec3d{X: 1, Y: 1, Z: 1}}

	// Point inside the box is its own closest point.
	inside := Vec3d{X: 0.5, Y: 0, Z: -0.5}
	assert.Equal(t, inside, box.ClosestPointTo(inside))

	// Point outside clamps per-axis.
	outside := Vec3d{X: 5, Y: -5, Z: 0}
	assert.Equal(t, Vec3d{X: 1, Y: -1, Z: 0}, box.ClosestPointTo(outside))
}

func TestAABBLongestEdge(t *testing.T) {
	box := AABB{Min: Vec3d{X: 0, Y: 0, Z: 0}, Max: Vec3d{X: 2, Y: 10, Z: 3}}
	assert.Equal(t, 10.0, box.LongestEdge())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, clamp(-5, 0, 10))
	assert.Equal(t, 10.0, clamp(50, 0, 10))
	assert.Equal(t, 5.0, clamp(5, 0, 10))
}

func TestVec3dDistNaNSafe(t *testing.T) {
	// Sanity: distance between identical points is exactly zero, not NaN.
	p := Vec3d{X: 1.5, Y: -2.25, Z: 100}
	assert.False(t, math.IsNaN(p.Dist(p)))
	assert.Equal(t, 0.0, p.Dist(p))
}
