package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridCellCoords(t *testing.T) {
	g := newGrid(CellWidth, 10)

	assert.Equal(t, [3]int32{0, 0, 0}, g.cellCoords(Vec3d{X: 0, Y: 0, Z: 0}))
	assert.Equal(t, [3]int32{0, 0, 0}, g.cellCoords(Vec3d{X: 199, Y: 199, Z: 199}))
	assert.Equal(t, [3]int32{1, 0, 0}, g.cellCoords(Vec3d{X: 200, Y: 0, Z: 0}))
	// Negative coordinates floor toward negative infinity, not toward zero.
	assert.Equal(t, [3]int32{-1, 0, 0}, g.cellCoords(Vec3d{X: -1, Y: 0, Z: 0}))
}

func TestGridHashCellMatchesSpecFormula(t *testing.T) {
	g := newGrid(CellWidth, 10)
	c := [3]int32{3, -2, 7}
	cy := uint32(c[1])
	want := (uint32(3)*73856093 ^ uint32(cy*19349663) ^ uint32(7)*83492791) & g.bucketMask
	assert.Equal(t, want, g.hashCell(c))
}

func TestGridInsertAndRemove(t *testing.T) {
	g := newGrid(CellWidth, 4) // small bucket count to force aliasing paths too
	ob := &WorldObject{UID: 1, Pos: Vec3d{X: 10, Y: 10, Z: 10}}

	g.insert(ob)
	found := false
	g.forEachInRange([3]int32{0, 0, 0}, [3]int32{0, 0, 0}, func(o *WorldObject) {
		if o.UID == ob.UID {
			found = true
		}
	})
	require.True(t, found, "inserted object should be found in its cell")

	g.remove(ob)
	found = false
	g.forEachInRange([3]int32{0, 0, 0}, [3]int32{0, 0, 0}, func(o *WorldObject) {
		if o.UID == ob.UID {
			found = true
		}
	})
	assert.False(t, found, "removed object should no longer be found")
}

func TestGridRemoveUsesLastPosNotCurrentPos(t *testing.T) {
	g := newGrid(CellWidth, 10)
	ob := &WorldObject{UID: 42, Pos: Vec3d{X: 10, Y: 10, Z: 10}}
	g.insert(ob)

	// Object moves without re-insertion -- remove must still find it via lastPos.
	ob.Pos = Vec3d{X: 10000, Y: 10000, Z: 10000}
	g.remove(ob)

	begin, end := g.cellCoords(Vec3d{X: 10, Y: 10, Z: 10}), g.cellCoords(Vec3d{X: 10, Y: 10, Z: 10})
	found := false
	g.forEachInRange(begin, end, func(o *WorldObject) {
		if o.UID == ob.UID {
			found = true
		}
	})
	assert.False(t, found)
}

func TestCellRangeAndCellInRange(t *testing.T) {
	g := newGrid(CellWidth, 10)
	begin, end := g.cellRange(Vec3d{X: 0, Y: 0, Z: 0}, 250)
	assert.True(t, cellInRange([3]int32{0, 0, 0}, begin, end))
	assert.True(t, cellInRange(begin, begin, end))
	assert.False(t, cellInRange([3]int32{end[0] + 1, end[1], end[2]}, begin, end))
}

func TestForEachCellInRangeVisitsEveryCellOnce(t *testing.T) {
	begin, end := [3]int32{0, 0, 0}, [3]int32{1, 1, 1}
	count := 0
	forEachCellInRange(begin, end, func(c [3]int32) { count++ })
	assert.Equal(t, 8, count)
}
