package loaditem

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/world"
)

// Decoder performs the actual CPU-bound work for a Task and returns an
// opaque artifact. Mesh/texture/audio parsing and script compilation are
// external collaborators per spec §1 (voxel meshing, the Lua VM internals,
// the audio mixer, and rendering are all explicitly out of scope) -- this
// package owns only the queue, dedup, and fan-out machinery around them, so
// the codec itself is injected the same way playback.Coordinator injects
// AllocateDecoder/ReleaseDecoder for the video/browser backends.
type Decoder func(t Task) (any, error)

// WorkerPool runs a small fixed pool of goroutines draining Queue and
// invoking Decode, posting a Kind*Loaded (or KindError) message for each
// completed task (spec §5: "a small CPU task-pool for mesh/texture
// decoding"). Grounded on the same fixed-goroutine-count shape as
// download.WorkerPool, minus the network session -- there is nothing to
// dial here, only local CPU work.
type WorkerPool struct {
	queue  *Queue
	mq     *msgqueue.Queue
	decode Decoder
	camPos func() world.Vec3d

	shouldDie atomic.Bool
	wg        sync.WaitGroup
}

// NewWorkerPool constructs a pool that decodes tasks from queue via decode,
// posting results to mq. camPos supplies the current camera position used
// to discard stale tasks per-dequeue (spec §4.I); it may be nil, in which
// case no task is ever considered stale.
func NewWorkerPool(queue *Queue, mq *msgqueue.Queue, decode Decoder, camPos func() world.Vec3d) *WorkerPool {
	return &WorkerPool{queue: queue, mq: mq, decode: decode, camPos: camPos}
}

// Start launches n worker goroutines.
func (p *WorkerPool) Start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

// Stop signals every worker to exit after its current task and waits for
// them to finish.
func (p *WorkerPool) Stop() {
	p.shouldDie.Store(true)
	p.wg.Wait()
}

func (p *WorkerPool) runWorker() {
	defer p.wg.Done()
	for !p.shouldDie.Load() {
		var cam world.Vec3d
		if p.camPos != nil {
			cam = p.camPos()
		}
		tasks := p.queue.DequeueWithTimeout(500*time.Millisecond, 1, cam)
		for _, t := range tasks {
			p.runOne(t)
		}
	}
}

func (p *WorkerPool) runOne(t Task) {
	artifact, err := p.decode(t)
	if err != nil {
		p.mq.PostError(err)
		return
	}

	kind := msgqueue.KindModelLoaded
	switch t.Kind {
	case TaskDecodeTexture:
		kind = msgqueue.KindTextureLoaded
	case TaskDecodeAudio:
		kind = msgqueue.KindAudioLoaded
	case TaskCompileScript:
		kind = msgqueue.KindScriptCompiled
	}
	p.mq.Post(msgqueue.Item{
		Kind:                    kind,
		URL:                     t.Key,
		UID:                     t.ObjectUID,
		WantDynamicPhysicsShape: t.WantDynamicPhysicsShape,
		LoadResult:              artifact,
	})
}
