package scripting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddTimerEnforcesPerScriptCap(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)

	for i := 0; i < MaxNumTimers; i++ {
		_, ok := q.AddTimer("script-1", base, false, 0, func() {})
		require.True(t, ok)
	}
	_, ok := q.AddTimer("script-1", base, false, 0, func() {})
	assert.False(t, ok, "a fifth timer should be rejected once MaxNumTimers slots are reserved")

	// A different script has its own independent cap.
	_, ok = q.AddTimer("script-2", base, false, 0, func() {})
	assert.True(t, ok)
}

func TestAddTimerMonotonicIDsPerScript(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)
	id1, _ := q.AddTimer("s", base, false, 0, func() {})
	id2, _ := q.AddTimer("s", base, false, 0, func() {})
	assert.Greater(t, id2, id1)
}

func TestUpdatePopsTimersInTriggerOrder(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)

	var order []string
	q.AddTimer("s", base.Add(3*time.Second), false, 0, func() { order = append(order, "third") })
	q.AddTimer("s", base.Add(1*time.Second), false, 0, func() { order = append(order, "first") })
	q.AddTimer("s", base.Add(2*time.Second), false, 0, func() { order = append(order, "second") })

	fired := q.Update(base.Add(5 * time.Second))
	require.Len(t, fired, 3)
	for _, timer := range fired {
		timer.Fn()
	}
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestUpdateOnlyPopsDueTimers(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)
	q.AddTimer("s", base.Add(10*time.Second), false, 0, func() {})
	q.AddTimer("s", base.Add(1*time.Second), false, 0, func() {})

	fired := q.Update(base.Add(2 * time.Second))
	require.Len(t, fired, 1)
	assert.Equal(t, 1, q.Len())
}

func TestCancelScriptRemovesOnlyItsTimers(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)
	q.AddTimer("a", base, false, 0, func() {})
	q.AddTimer("a", base, false, 0, func() {})
	q.AddTimer("b", base, false, 0, func() {})

	q.CancelScript("a")
	assert.Equal(t, 1, q.Len())

	// Script "a" should be able to reserve a fresh full set of slots again.
	for i := 0; i < MaxNumTimers; i++ {
		_, ok := q.AddTimer("a", base, false, 0, func() {})
		require.True(t, ok)
	}
}

func TestRescheduleReAddsRepeatingTimer(t *testing.T) {
	q := NewQueue()
	base := time.Unix(1000, 0)
	period := 5 * time.Second
	id1, ok := q.AddTimer("s", base, true, period, func() {})
	require.True(t, ok)

	fired := q.Update(base)
	require.Len(t, fired, 1)
	assert.Equal(t, id1, fired[0].ID)

	id2, ok := q.Reschedule(fired[0])
	require.True(t, ok)
	assert.Greater(t, id2, id1)
	assert.Equal(t, 1, q.Len())

	fired2 := q.Update(base.Add(period))
	require.Len(t, fired2, 1)
	assert.Equal(t, id2, fired2[0].ID)
}

func TestUpdateWithNoTimersReturnsNil(t *testing.T) {
	q := NewQueue()
	assert.Empty(t, q.Update(time.Now()))
}
