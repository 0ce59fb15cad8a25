package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingBufferPushBelowCapacity(t *testing.T) {
	r := NewRingBuffer[int](4)
	r.Push(1)
	r.Push(2)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []int{1, 2}, r.Snapshot())
}

func TestRingBufferOverwritesOldestWhenFull(t *testing.T) {
	r := NewRingBuffer[int](3)
	r.Push(1)
	r.Push(2)
	r.Push(3)
	r.Push(4) // overwrites 1

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []int{2, 3, 4}, r.Snapshot())
}

func TestRingBufferWrapsAroundRepeatedly(t *testing.T) {
	r := NewRingBuffer[int](2)
	for i := 1; i <= 5; i++ {
		r.Push(i)
	}
	assert.Equal(t, []int{4, 5}, r.Snapshot())
}

func TestRingBufferEmptySnapshot(t *testing.T) {
	r := NewRingBuffer[string](5)
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
}
