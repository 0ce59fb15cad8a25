package scripting

import (
	"container/heap"
	"sync"
	"time"
)

// MaxNumTimers is the per-script reservation limit (spec §4.L).
const MaxNumTimers = 4

// TimerID is a per-script, monotonically increasing identifier: a script
// never gets the same ID twice, so an ID kept from an earlier timer never
// names a later one in a reused slot (the spec's "avoid ABA" note). The
// queue itself does not compare IDs when firing.
type TimerID uint64

// Timer is one scheduled callback.
type Timer struct {
	ScriptID    string
	ID          TimerID
	TriggerTime time.Time
	Repeating   bool
	Period      time.Duration
	Fn          func()

	index int // heap bookkeeping
}

// timerHeap implements container/heap.Interface ordered by TriggerTime.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].TriggerTime.Before(h[j].TriggerTime) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Queue is the single min-heap timer queue shared by every scripted object
// (spec §4.L "Timer queue"). nextID hands out per-script monotonically
// increasing IDs.
type Queue struct {
	mu      sync.Mutex
	h       timerHeap
	nextID  map[string]TimerID
	perScript map[string]int // live timer count, enforces MaxNumTimers
}

func NewQueue() *Queue {
	return &Queue{
		nextID:    make(map[string]TimerID),
		perScript: make(map[string]int),
	}
}

// AddTimer reserves a slot for scriptID and schedules t, returning the
// assigned TimerID. Returns false if scriptID has already reserved
// MaxNumTimers slots.
func (q *Queue) AddTimer(scriptID string, triggerTime time.Time, repeating bool, period time.Duration, fn func()) (TimerID, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.perScript[scriptID] >= MaxNumTimers {
		return 0, false
	}
	id := q.nextID[scriptID] + 1
	q.nextID[scriptID] = id
	q.perScript[scriptID]++

	heap.Push(&q.h, &Timer{
		ScriptID: scriptID, ID: id, TriggerTime: triggerTime,
		Repeating: repeating, Period: period, Fn: fn,
	})
	return id, true
}

// CancelScript releases every slot reserved by scriptID (script torn down).
func (q *Queue) CancelScript(scriptID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.h[:0]
	for _, t := range q.h {
		if t.ScriptID == scriptID {
			continue
		}
		kept = append(kept, t)
	}
	q.h = kept
	heap.Init(&q.h)
	delete(q.perScript, scriptID)
}

// Update pops every timer whose TriggerTime has elapsed as of now, returning
// them in trigger order. Repeating timers are the caller's responsibility
// to re-add after firing (spec §4.L: "Repeating timers are re-added by the
// foreground after firing").
func (q *Queue) Update(now time.Time) []*Timer {
	q.mu.Lock()
	defer q.mu.Unlock()

	var fired []*Timer
	for len(q.h) > 0 && !q.h[0].TriggerTime.After(now) {
		t := heap.Pop(&q.h).(*Timer)
		q.perScript[t.ScriptID]--
		fired = append(fired, t)
	}
	return fired
}

// Reschedule re-adds a repeating timer at triggerTime + period, reusing its
// scriptID's reservation. Call only for timers with Repeating == true.
func (q *Queue) Reschedule(t *Timer) (TimerID, bool) {
	return q.AddTimer(t.ScriptID, t.TriggerTime.Add(t.Period), true, t.Period, t.Fn)
}

// Len reports the number of pending timers across all scripts.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
