package world

import "math"

// CellWidth is the fixed hashed-grid cell size (spec §4.E).
const CellWidth = 200.0

// defaultBucketCountLog2 gives 1<<10 buckets by default, matching the
// original ProximityLoader's expected_num_items hint.
const defaultBucketCountLog2 = 10

// grid is a hashed 3-D spatial index of WorldObject references. Buckets hold
// sets of objects keyed by their cell coordinates, hashed and masked to a
// power-of-two bucket count (spec §4.E).
type grid struct {
	cellWidth   float64
	bucketMask  uint32
	buckets     []bucket
}

type bucket struct {
	objects map[UID]*WorldObject
}

func newGrid(cellWidth float64, bucketCountLog2 uint) *grid {
	n := uint32(1) << bucketCountLog2
	g := &grid{
		cellWidth:  cellWidth,
		bucketMask: n - 1,
		buckets:    make([]bucket, n),
	}
	for i := range g.buckets {
		g.buckets[i].objects = make(map[UID]*WorldObject)
	}
	return g
}

// cellCoords returns the integer cell index containing p.
func (g *grid) cellCoords(p Vec3d) [3]int32 {
	return [3]int32{
		int32(math.Floor(p.X / g.cellWidth)),
		int32(math.Floor(p.Y / g.cellWidth)),
		int32(math.Floor(p.Z / g.cellWidth)),
	}
}

// hashCell implements the spec's fixed hash:
// (x·73856093) ⊕ (y·19349663) ⊕ (z·83492791), masked to the bucket count.
func (g *grid) hashCell(c [3]int32) uint32 {
	h := uint32(c[0])*73856093 ^ uint32(c[1])*19349663 ^ uint32(c[2])*83492791
	return h & g.bucketMask
}

func (g *grid) bucketFor(c [3]int32) *bucket {
	return &g.buckets[g.hashCell(c)]
}

// insert adds ob to the bucket for its current Pos, recording that position
// as lastPos for later removeAtLastPos calls.
func (g *grid) insert(ob *WorldObject) {
	c := g.cellCoords(ob.Pos)
	g.bucketFor(c).objects[ob.UID] = ob
	ob.lastPos = ob.Pos
}

// remove deletes ob from the bucket for its lastPos (the cell it was last
// inserted into, which may differ from its current Pos mid-transform-update).
func (g *grid) remove(ob *WorldObject) {
	c := g.cellCoords(ob.lastPos)
	delete(g.bucketFor(c).objects, ob.UID)
}

// cellRange returns the inclusive [begin, end] cell coordinate bounds for an
// axis-aligned cube of half-extent dist centred at p.
func (g *grid) cellRange(p Vec3d, dist float64) (begin, end [3]int32) {
	lo := Vec3d{p.X - dist, p.Y - dist, p.Z - dist}
	hi := Vec3d{p.X + dist, p.Y + dist, p.Z + dist}
	return g.cellCoords(lo), g.cellCoords(hi)
}

// forEachInRange calls fn for every object in buckets covering the cube
// [begin, end] (inclusive), once per UID: several cells of the cube can hash
// to the same bucket, and the seen set skips objects already visited.
func (g *grid) forEachInRange(begin, end [3]int32, fn func(*WorldObject)) {
	seen := make(map[UID]struct{})
	for z := begin[2]; z <= end[2]; z++ {
		for y := begin[1]; y <= end[1]; y++ {
			for x := begin[0]; x <= end[0]; x++ {
				b := g.bucketFor([3]int32{x, y, z})
				for uid, ob := range b.objects {
					if _, dup := seen[uid]; dup {
						continue
					}
					seen[uid] = struct{}{}
					fn(ob)
				}
			}
		}
	}
}

// forEachCellInRange calls fn once per distinct cell coordinate in the cube.
func forEachCellInRange(begin, end [3]int32, fn func(c [3]int32)) {
	for z := begin[2]; z <= end[2]; z++ {
		for y := begin[1]; y <= end[1]; y++ {
			for x := begin[0]; x <= end[0]; x++ {
				fn([3]int32{x, y, z})
			}
		}
	}
}

func cellInRange(c, begin, end [3]int32) bool {
	return c[0] >= begin[0] && c[0] <= end[0] &&
		c[1] >= begin[1] && c[1] <= end[1] &&
		c[2] >= begin[2] && c[2] <= end[2]
}
