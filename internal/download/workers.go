package download

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OneOfOne/xxhash"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/petervdpas/substrata-client/internal/localstore"
	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/session"
	"github.com/petervdpas/substrata-client/internal/wire"
)

// streamChunkSize bounds a single GetFiles response chunk (spec §4.G step 3).
const streamChunkSize = 16 * 1024

// batchSize is the number of URLs requested per GetFiles round-trip.
const batchSize = 4

// WorkerPool runs N download workers pulling from a Queue, each owning its
// own Downloads-type session (spec §4.G). Grounded on the teacher's
// internal/listen worker-pool shape: a fixed goroutine count each looping
// dequeue-then-handle until told to stop.
type WorkerPool struct {
	queue      *Queue
	mq         *msgqueue.Queue
	resourceDir string
	serverAddr string
	tlsCfg     *tls.Config
	logger     *zap.Logger

	// limiter bounds the rate at which new per-URL fetches are started
	// across every worker (spec §4.G/§5 backpressure:
	// "max_num_concurrent_downloads (default 10 ...)"). Grounded on
	// teranos-QNTX's ats/watcher/engine.go per-key rate.Limiter gate
	// (rate.NewLimiter(rate.Limit(perMinute/60), 1) plus limiter.Allow()
	// before firing); here the limiter is shared pool-wide and blocking
	// (Wait) rather than per-key and non-blocking, since a denied fetch
	// has nowhere else useful to go but to wait its turn.
	limiter *rate.Limiter

	mu     sync.Mutex
	failed map[string]struct{} // session-scoped denylist, spec §4.G step 6 / §7 ResourceNotFound

	shouldDie atomic.Bool
	wg        sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerPool constructs a pool that will write fetched bytes under
// resourceDir, named by URL (spec §6 persisted state). maxConcurrent bounds
// how many fetches the pool starts per second (spec §4.G
// max_num_concurrent_downloads); it must be > 0.
func NewWorkerPool(queue *Queue, mq *msgqueue.Queue, resourceDir, serverAddr string, tlsCfg *tls.Config, logger *zap.Logger, maxConcurrent int) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	burst := maxConcurrent
	if burst < batchSize {
		burst = batchSize // WaitN(ctx, n) always errors if n > burst
	}
	return &WorkerPool{
		queue:       queue,
		mq:          mq,
		resourceDir: resourceDir,
		serverAddr:  serverAddr,
		tlsCfg:      tlsCfg,
		logger:      logger,
		limiter:     rate.NewLimiter(rate.Limit(maxConcurrent), burst),
		failed:      make(map[string]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start launches n worker goroutines.
func (p *WorkerPool) Start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

// Stop signals every worker to exit after its current batch and waits for
// them to finish. Cancelling ctx also unblocks any worker currently waiting
// on the limiter for a fetch-start token.
func (p *WorkerPool) Stop() {
	p.shouldDie.Store(true)
	p.cancel()
	p.wg.Wait()
}

func (p *WorkerPool) isFailed(url string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.failed[url]
	return ok
}

func (p *WorkerPool) markFailed(url string) {
	p.mu.Lock()
	p.failed[url] = struct{}{}
	p.mu.Unlock()
}

func (p *WorkerPool) runWorker() {
	defer p.wg.Done()

	var sess *session.Session
	defer func() {
		if sess != nil {
			sess.Close()
		}
	}()

	for !p.shouldDie.Load() {
		items := p.queue.DequeueWithTimeout(500*time.Millisecond, batchSize)
		if len(items) == 0 {
			continue
		}

		urls := make([]string, 0, len(items))
		for _, it := range items {
			if p.isFailed(it.URL) {
				continue
			}
			urls = append(urls, it.URL)
		}
		if len(urls) == 0 {
			continue
		}

		if sess == nil {
			var err error
			sess, err = session.Dial(context.Background(), p.serverAddr, wire.ConnDownloadResources, p.tlsCfg, p.logger)
			if err != nil {
				p.mq.PostError(fmt.Errorf("download worker: dial: %w", err))
				// put urls back so another worker or a later pass retries
				p.requeueFailed(items)
				continue
			}
		}

		if err := p.fetchBatch(sess, urls); err != nil {
			p.mq.PostError(fmt.Errorf("download worker: %w", err))
			sess.Close()
			sess = nil
		}
	}
}

// requeueFailed re-enqueues items whose dial attempt failed so the work is
// not silently dropped; positions are preserved.
func (p *WorkerPool) requeueFailed(items []Item) {
	for _, it := range items {
		for _, pos := range it.Positions {
			p.queue.EnqueueOrUpdate(it.URL, pos.Pos, pos.SizeFactor)
		}
	}
}

// fetchBatch performs one GetFiles round-trip over sess for urls, streaming
// each result to disk (spec §4.G steps 2-5). It first waits for the pool's
// limiter to admit len(urls) fetch starts, bounding the pool-wide rate of
// fetch starts (spec §4.G/§5 max_num_concurrent_downloads); the number of
// downloads in flight at once is not counted or capped.
func (p *WorkerPool) fetchBatch(sess *session.Session, urls []string) error {
	if err := p.limiter.WaitN(p.ctx, len(urls)); err != nil {
		return fmt.Errorf("download worker: rate limiter: %w", err)
	}

	req := &wire.GetFiles{URLs: urls}
	w := wire.NewWriter()
	req.Encode(w)
	frame := buildFrame(wire.MsgGetFiles, w.Bytes())
	if _, err := sess.Conn().Write(frame); err != nil {
		return fmt.Errorf("write GetFiles: %w", err)
	}

	for _, url := range urls {
		if err := p.receiveOne(sess, url); err != nil {
			return err
		}
	}
	return nil
}

func buildFrame(typ wire.MsgType, payload []byte) []byte {
	var w sliceW
	_ = wire.WriteFrame(&w, typ, payload)
	return w.buf
}

type sliceW struct{ buf []byte }

func (s *sliceW) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// receiveOne reads one GetFiles result: a u32 status followed, on success,
// by a u64 length and the file bytes streamed in ≤16 KiB chunks, written
// atomically via a temp-file-then-rename (spec §4.G step 3-4).
func (p *WorkerPool) receiveOne(sess *session.Session, url string) error {
	r := wire.NewReader(sess.Conn())
	status := r.U32()
	if r.Err() != nil {
		return fmt.Errorf("read status for %s: %w", url, r.Err())
	}

	const (
		statusOK       = 0
		statusNotFound = 1
	)
	if status == statusNotFound {
		p.markFailed(url)
		p.mq.Post(msgqueue.Item{Kind: msgqueue.KindResourceNotFound, URL: url})
		p.mq.PostLog(fmt.Sprintf("resource not found: %s", url))
		return nil
	}
	if status != statusOK {
		return fmt.Errorf("unexpected status %d for %s", status, url)
	}

	length := r.U64()
	if r.Err() != nil {
		return fmt.Errorf("read length for %s: %w", url, r.Err())
	}

	dest := filepath.Join(p.resourceDir, url)
	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", url, err)
	}
	bw := bufio.NewWriterSize(f, streamChunkSize)
	digest := xxhash.New64()

	remaining := int64(length)
	buf := make([]byte, streamChunkSize)
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		got := r.Bytes(uint32(n))
		if r.Err() != nil {
			bw.Flush()
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("stream %s: %w", url, r.Err())
		}
		if _, err := bw.Write(got); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write %s: %w", url, err)
		}
		digest.Write(got)
		remaining -= n
	}
	if err := bw.Flush(); err != nil || f.Close() != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize %s: %w", url, err)
	}

	// Reject a blob whose content hash does not match the hash embedded in
	// its URL: the file on disk must always satisfy
	// hash(file_bytes) == url.embedded_hash. Mismatch discards the file but
	// does not denylist the URL -- a later fetch may serve the right bytes.
	if _, embedded, _, perr := localstore.ParseURL(url); perr == nil && digest.Sum64() != embedded {
		os.Remove(tmp)
		p.mq.PostLog(fmt.Sprintf("discarding %s: content hash %d != embedded %d", url, digest.Sum64(), embedded))
		return nil
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", url, err)
	}

	p.mq.Post(msgqueue.Item{Kind: msgqueue.KindResourceDownloaded, URL: url})
	return nil
}

var _ io.Writer = (*sliceW)(nil)
