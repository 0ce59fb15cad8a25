package loaditem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petervdpas/substrata-client/internal/world"
)

func TestQueueSortOrdersByDistanceFromCamera(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Task{Key: "far", Pos: world.Vec3d{X: 100, Y: 0, Z: 0}})
	q.Enqueue(Task{Key: "near", Pos: world.Vec3d{X: 1, Y: 0, Z: 0}})

	q.Sort(world.Vec3d{X: 0, Y: 0, Z: 0})
	out := q.DequeueWithTimeout(time.Millisecond, 10, world.Vec3d{X: 0, Y: 0, Z: 0})
	require.Len(t, out, 2)
	assert.Equal(t, "near", out[0].Key)
	assert.Equal(t, "far", out[1].Key)
}

func TestQueueDiscardsStaleTasksBeyondTaskMaxDist(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Task{Key: "stays-close", Pos: world.Vec3d{X: 5, Y: 0, Z: 0}, TaskMaxDist: 50})
	q.Enqueue(Task{Key: "moved-away", Pos: world.Vec3d{X: 500, Y: 0, Z: 0}, TaskMaxDist: 50})

	out := q.DequeueWithTimeout(time.Millisecond, 10, world.Vec3d{X: 0, Y: 0, Z: 0})
	require.Len(t, out, 1)
	assert.Equal(t, "stays-close", out[0].Key)
}

func TestQueueZeroTaskMaxDistNeverStale(t *testing.T) {
	q := NewQueue()
	q.Enqueue(Task{Key: "unbounded", Pos: world.Vec3d{X: 1_000_000, Y: 0, Z: 0}, TaskMaxDist: 0})
	out := q.DequeueWithTimeout(time.Millisecond, 10, world.Vec3d{X: 0, Y: 0, Z: 0})
	require.Len(t, out, 1)
}

func TestQueueDequeueRespectsMaxItemsAndKeepsRemainder(t *testing.T) {
	q := NewQueue()
	for i := 0; i < 5; i++ {
		q.Enqueue(Task{Key: string(rune('a' + i)), Pos: world.Vec3d{}})
	}
	out := q.DequeueWithTimeout(time.Millisecond, 2, world.Vec3d{})
	assert.Len(t, out, 2)
	assert.Equal(t, 3, q.Len())
}

func TestQueueDequeueWithTimeoutBlocksOnEmpty(t *testing.T) {
	q := NewQueue()
	start := time.Now()
	out := q.DequeueWithTimeout(15*time.Millisecond, 10, world.Vec3d{})
	assert.Empty(t, out)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}
