// Package download implements the priority-ordered resource download queue
// and its worker pool (spec §4.F, §4.G), plus the symmetric upload worker
// pool (§4.H). Grounded on the teacher's internal/listen package, which
// bounds a pool of concurrent stream listeners draining a shared unit of
// work; here the unit of work is a URL fetch instead of a listened stream.
package download

import (
	"sort"
	"sync"
	"time"

	"github.com/petervdpas/substrata-client/internal/world"
)

// PosEntry is one (position, size_factor) contribution to a queue item,
// recorded once per object that references the shared URL.
type PosEntry struct {
	Pos        world.Vec3d
	SizeFactor float64 // 1 / max(1, aabb_longest_edge); smaller is more important
}

// Item is one URL's queue entry: every object referencing that URL
// contributes a PosEntry, so a shared URL is fetched once no matter how
// many objects want it (spec §4.F invariant).
type Item struct {
	URL       string
	Positions []PosEntry
	Priority  float64
}

// Queue is the thread-safe, single-flight-by-URL priority queue of pending
// downloads (spec §4.F). notify is signalled (non-blockingly) whenever a
// brand-new URL entry -- not a position appended to an existing one -- is
// inserted, waking blocked dequeuers.
type Queue struct {
	mu     sync.Mutex
	byURL  map[string]*Item
	order  []string // insertion order kept stable until the next sort()
	notify chan struct{}
}

func New() *Queue {
	return &Queue{
		byURL:  make(map[string]*Item),
		notify: make(chan struct{}, 1),
	}
}

// EnqueueOrUpdate folds (pos, sizeFactor) into the existing entry for url,
// or creates a new one. Only creation wakes a blocked dequeuer -- updates to
// an existing entry don't change queue size (spec §4.F, P3).
func (q *Queue) EnqueueOrUpdate(url string, pos world.Vec3d, sizeFactor float64) {
	q.mu.Lock()
	item, exists := q.byURL[url]
	if !exists {
		item = &Item{URL: url}
		q.byURL[url] = item
		q.order = append(q.order, url)
	}
	item.Positions = append(item.Positions, PosEntry{Pos: pos, SizeFactor: sizeFactor})
	q.mu.Unlock()

	if !exists {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
}

// Sort recomputes each item's priority as the minimum over its positions of
// ‖pos - cam‖ · size_factor, then orders ascending (spec §4.F, P4).
func (q *Queue) Sort(cam world.Vec3d) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sortLocked(cam)
}

func (q *Queue) sortLocked(cam world.Vec3d) {
	for _, url := range q.order {
		item := q.byURL[url]
		best := float64(0)
		first := true
		for _, p := range item.Positions {
			pr := p.Pos.Dist(cam) * p.SizeFactor
			if first || pr < best {
				best = pr
				first = false
			}
		}
		item.Priority = best
	}
	sort.Slice(q.order, func(i, j int) bool {
		return q.byURL[q.order[i]].Priority < q.byURL[q.order[j]].Priority
	})
}

// DequeueWithTimeout blocks up to wait for at least one entry, then returns
// up to maxItems lowest-priority items, removing them from the queue.
// Returns immediately with whatever is available once woken; returns nil if
// wait elapses with nothing enqueued.
func (q *Queue) DequeueWithTimeout(wait time.Duration, maxItems int) []Item {
	q.mu.Lock()
	empty := len(q.order) == 0
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
	return q.dequeueLocked(maxItems)
}

// TryDequeueOne returns and removes the single front item (the lowest
// Priority value after the last Sort), or false if the queue is empty
// (non-blocking variant).
func (q *Queue) TryDequeueOne() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.dequeueLocked(1)
	if len(items) == 0 {
		return Item{}, false
	}
	return items[0], true
}

func (q *Queue) dequeueLocked(maxItems int) []Item {
	n := maxItems
	if n > len(q.order) {
		n = len(q.order)
	}
	if n <= 0 {
		return nil
	}
	out := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		url := q.order[i]
		out = append(out, *q.byURL[url])
		delete(q.byURL, url)
	}
	q.order = q.order[n:]
	return out
}

// Len reports the number of distinct URLs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.order)
}
