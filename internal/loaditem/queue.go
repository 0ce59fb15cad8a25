// Package loaditem implements the CPU-bound decode/build task queue (spec
// §4.I) and the load coordinator that drives it from proximity and dirty-set
// events (§4.J). Grounded on the same priority-queue shape as
// internal/download (itself grounded on the teacher's internal/listen
// worker-pool pattern), parameterised over a task reference instead of a URL.
package loaditem

import (
	"sort"
	"sync"
	"time"

	"github.com/petervdpas/substrata-client/internal/world"
)

// TaskKind distinguishes what a Task actually does when run.
type TaskKind int

const (
	TaskDecodeMesh TaskKind = iota
	TaskDecodeTexture
	TaskCompileScript
	TaskDecodeAudio
)

// Task is one unit of CPU work: decode or build something referenced by
// ObjectUID. TaskMaxDist is the distance beyond which the task is stale and
// should be discarded without running (spec §4.I).
type Task struct {
	Kind        TaskKind
	Key         string // URL, or script content, depending on Kind
	ObjectUID   world.UID
	Pos         world.Vec3d
	TaskMaxDist float64
	WantDynamicPhysicsShape bool
	LODLevel    int

	// ScriptSource carries the text to compile for TaskCompileScript tasks
	// (Key holds the same text as the dedup key).
	ScriptSource string
}

// item wraps a Task with its computed priority for ordering.
type item struct {
	task     Task
	priority float64
}

// Queue is the thread-safe priority queue of pending load-item tasks,
// structurally identical to download.Queue but without URL-keyed merging --
// load-item tasks are deduplicated by the load coordinator's processing
// sets (§4.J), not by the queue itself.
type Queue struct {
	mu     sync.Mutex
	items  []item
	notify chan struct{}
}

func NewQueue() *Queue {
	return &Queue{notify: make(chan struct{}, 1)}
}

// Enqueue adds a task to the queue and wakes one blocked dequeuer.
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	q.items = append(q.items, item{task: t})
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Sort recomputes each task's priority as its distance from cam (scaled by
// size factor if the caller folded one into Pos's weighting upstream) and
// orders ascending, mirroring download.Queue.Sort (spec P4 applies
// analogously here).
func (q *Queue) Sort(cam world.Vec3d) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.items {
		q.items[i].priority = q.items[i].task.Pos.Dist(cam)
	}
	sort.Slice(q.items, func(i, j int) bool { return q.items[i].priority < q.items[j].priority })
}

// DequeueWithTimeout blocks up to wait for at least one task, then returns
// up to maxItems lowest-priority tasks whose current distance from cam is
// still within TaskMaxDist -- stale tasks are discarded silently (spec
// §4.I: "discards any task whose object has moved beyond task_max_dist").
func (q *Queue) DequeueWithTimeout(wait time.Duration, maxItems int, cam world.Vec3d) []Task {
	q.mu.Lock()
	empty := len(q.items) == 0
	q.mu.Unlock()

	if empty {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-q.notify:
		case <-timer.C:
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Task, 0, maxItems)
	kept := q.items[:0]
	for _, it := range q.items {
		if len(out) >= maxItems {
			kept = append(kept, it)
			continue
		}
		if it.task.TaskMaxDist > 0 && it.task.Pos.Dist(cam) > it.task.TaskMaxDist {
			continue // stale: drop without dispatching
		}
		out = append(out, it.task)
	}
	q.items = kept
	return out
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
