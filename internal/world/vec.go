package world

import "math"

// Vec3d is a double-precision 3-vector, used for world-space object
// positions which need global range without precision loss near the origin.
type Vec3d struct {
	X, Y, Z float64
}

// Vec3f is a single-precision 3-vector, used for axes, scales, and any
// quantity that is meaningful only at object scale.
type Vec3f struct {
	X, Y, Z float32
}

func (v Vec3d) Sub(o Vec3d) Vec3d { return Vec3d{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }
func (v Vec3d) Add(o Vec3d) Vec3d { return Vec3d{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

// Dist2 returns the squared Euclidean distance between v and o.
func (v Vec3d) Dist2(o Vec3d) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

func (v Vec3d) Dist(o Vec3d) float64 {
	return math.Sqrt(v.Dist2(o))
}

func (v Vec3f) LongestEdge() float32 {
	return max3(v.X, v.Y, v.Z)
}

func max3(a, b, c float32) float32 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// AABB is an axis-aligned bounding box in double-precision world space.
type AABB struct {
	Min, Max Vec3d
}

// ClosestPointTo returns the point within the box closest to p, per axis clamp.
func (b AABB) ClosestPointTo(p Vec3d) Vec3d {
	return Vec3d{
		X: clamp(p.X, b.Min.X, b.Max.X),
		Y: clamp(p.Y, b.Min.Y, b.Max.Y),
		Z: clamp(p.Z, b.Min.Z, b.Max.Z),
	}
}

// LongestEdge returns the longest of the box's three axis extents.
func (b AABB) LongestEdge() float64 {
	dx := b.Max.X - b.Min.X
	dy := b.Max.Y - b.Min.Y
	dz := b.Max.Z - b.Min.Z
	longest := dx
	if dy > longest {
		longest = dy
	}
	if dz > longest {
		longest = dz
	}
	return longest
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
