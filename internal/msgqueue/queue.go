// Package msgqueue is the foreground message queue: the single channel by
// which receiver and worker goroutines hand results back to the tick-driven
// foreground without it ever blocking on network or disk I/O (spec §5).
// Grounded on the teacher's internal/mq package, which fans typed messages
// out to topic subscribers; here there is exactly one topic (the foreground
// itself), so the manager collapses to a single buffered channel plus a
// drain method the tick loop calls with a zero timeout.
package msgqueue

import "github.com/petervdpas/substrata-client/internal/world"

// Kind distinguishes the payload carried by an Item so the foreground can
// switch on it without a type assertion per item.
type Kind int

const (
	KindLog Kind = iota
	KindError
	KindChat
	KindResourceDownloaded
	KindResourceNotFound
	KindResourceUploaded
	KindMapTileResult
	KindModelLoaded
	KindTextureLoaded
	KindAudioLoaded
	KindScriptCompiled
	KindAvatarChanged
	KindWorldChanged
)

// Item is one entry on the foreground queue. Only the field matching Kind is
// populated; the others are zero.
type Item struct {
	Kind Kind

	Text string   // KindLog, KindError, KindChat
	URL  string   // KindResourceDownloaded/Uploaded, Kind*Loaded
	Err  error    // KindError
	UID  world.UID // KindResourceDownloaded/Uploaded correlation, when known

	// WantDynamicPhysicsShape mirrors the load-item task's field for
	// KindModelLoaded so the load coordinator can clear the right
	// modelsProcessing entry without re-deriving it from world state.
	WantDynamicPhysicsShape bool

	// LoadResult carries a decoded artifact for Kind*Loaded items; its
	// concrete type is owned by the loaditem/playback packages, kept here as
	// an opaque payload to avoid an import cycle.
	LoadResult any
}

// Queue is a bounded, FIFO, multi-producer single-consumer channel of
// Items. Workers call Post from any goroutine; the foreground tick calls
// Drain once per frame.
type Queue struct {
	ch chan Item
}

// New creates a Queue with the given channel capacity. Capacity bounds how
// far producers can run ahead of a foreground that is temporarily busy;
// Post never drops an item, it blocks instead, so callers should size
// capacity generously for their worker count.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan Item, capacity)}
}

// Post enqueues item, blocking only if the channel is full.
func (q *Queue) Post(item Item) {
	q.ch <- item
}

// PostLog and PostError are convenience wrappers used by worker top-level
// loops per spec §7's propagation policy: exceptions never escape a
// worker's loop, they become queue entries.
func (q *Queue) PostLog(text string) {
	q.Post(Item{Kind: KindLog, Text: text})
}

func (q *Queue) PostError(err error) {
	q.Post(Item{Kind: KindError, Err: err})
}

// Drain returns every item currently buffered without blocking, for the
// foreground tick to process in one batch per frame.
func (q *Queue) Drain() []Item {
	var out []Item
	for {
		select {
		case item := <-q.ch:
			out = append(out, item)
		default:
			return out
		}
	}
}
