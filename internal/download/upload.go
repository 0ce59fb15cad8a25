package download

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/msgqueue"
	"github.com/petervdpas/substrata-client/internal/session"
	"github.com/petervdpas/substrata-client/internal/wire"
)

// UploadRequest names a local file and the URL it should be published
// under (spec §4.H).
type UploadRequest struct {
	LocalPath string
	URL       string
}

// UploadQueue is a simple FIFO of pending uploads; unlike the download queue
// it carries no priority or single-flight merge since upload volume is low
// and driven entirely by local user action.
type UploadQueue struct {
	mu    sync.Mutex
	items []UploadRequest
	notify chan struct{}
}

func NewUploadQueue() *UploadQueue {
	return &UploadQueue{notify: make(chan struct{}, 1)}
}

func (q *UploadQueue) Enqueue(req UploadRequest) {
	q.mu.Lock()
	q.items = append(q.items, req)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *UploadQueue) dequeue() (UploadRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return UploadRequest{}, false
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req, true
}

// UploadWorkerPool mirrors WorkerPool but reverses the data flow: workers
// stream local bytes up to the server (spec §4.H). outstanding is a single
// atomic counter of in-flight uploads, reported by Outstanding.
type UploadWorkerPool struct {
	queue      *UploadQueue
	mq         *msgqueue.Queue
	serverAddr string
	tlsCfg     *tls.Config
	logger     *zap.Logger

	outstanding atomic.Int64
	shouldDie   atomic.Bool
	wg          sync.WaitGroup
}

func NewUploadWorkerPool(queue *UploadQueue, mq *msgqueue.Queue, serverAddr string, tlsCfg *tls.Config, logger *zap.Logger) *UploadWorkerPool {
	return &UploadWorkerPool{queue: queue, mq: mq, serverAddr: serverAddr, tlsCfg: tlsCfg, logger: logger}
}

func (p *UploadWorkerPool) Start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
}

func (p *UploadWorkerPool) Stop() {
	p.shouldDie.Store(true)
	p.wg.Wait()
}

// Outstanding returns the number of uploads currently in flight.
func (p *UploadWorkerPool) Outstanding() int64 { return p.outstanding.Load() }

func (p *UploadWorkerPool) runWorker() {
	defer p.wg.Done()
	for !p.shouldDie.Load() {
		req, ok := p.queue.dequeue()
		if !ok {
			select {
			case <-p.queue.notify:
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		p.outstanding.Add(1)
		if err := p.uploadOne(req); err != nil {
			p.mq.PostError(fmt.Errorf("upload worker: %w", err))
		}
		p.outstanding.Add(-1)
	}
}

const (
	uploadAllowed = 0
	uploadDenied  = 1
)

func (p *UploadWorkerPool) uploadOne(req UploadRequest) error {
	info, err := os.Stat(req.LocalPath)
	if err != nil {
		return fmt.Errorf("stat %s: %w", req.LocalPath, err)
	}

	sess, err := session.Dial(context.Background(), p.serverAddr, wire.ConnUploadResource, p.tlsCfg, p.logger)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer sess.Close()

	w := wire.NewWriter()
	w.String(req.URL)
	w.U64(uint64(info.Size()))
	if _, err := sess.Conn().Write(buildFrame(wire.MsgPhotoUploadRequest, w.Bytes())); err != nil {
		return fmt.Errorf("write upload request: %w", err)
	}

	r := wire.NewReader(sess.Conn())
	allowed := r.U32()
	if r.Err() != nil {
		return fmt.Errorf("read upload decision: %w", r.Err())
	}
	if allowed != uploadAllowed {
		return fmt.Errorf("upload denied for %s", req.URL)
	}

	f, err := os.Open(req.LocalPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", req.LocalPath, err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, streamChunkSize)
	buf := make([]byte, streamChunkSize)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			if _, werr := sess.Conn().Write(buf[:n]); werr != nil {
				return fmt.Errorf("stream %s: %w", req.URL, werr)
			}
		}
		if err != nil {
			break
		}
	}

	p.mq.Post(msgqueue.Item{Kind: msgqueue.KindResourceUploaded, URL: req.URL})
	return nil
}
