package session

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/petervdpas/substrata-client/internal/wire"
)

// Sender is the single background task that owns outbound writes. Holding
// one append buffer behind a mutex and waking a single writer goroutine
// keeps write ordering deterministic and avoids the deadlock that a
// bidirectional blocking-write scheme risks when both peers fill their send
// buffers at once (spec §4.B). Grounded on the teacher's single-writer
// queue-drain pattern in internal/mq/manager.go, adapted from pub/sub fan-out
// to a single ordered outbound stream.
type Sender struct {
	w      io.Writer
	logger *zap.Logger

	mu      sync.Mutex
	buf     []byte
	wake    chan struct{}
	dieOnce sync.Once
	die     chan struct{}
	done    chan struct{}
}

// NewSender wraps w (typically a Session's Conn) with an outbound buffer
// and starts its background drain loop.
func NewSender(w io.Writer, logger *zap.Logger) *Sender {
	s := &Sender{
		w:      w,
		logger: logger,
		wake:   make(chan struct{}, 1),
		die:    make(chan struct{}),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Enqueue appends a pre-framed message to the outbound buffer and wakes the
// writer. Safe for concurrent use by multiple foreground goroutines;
// ordering between two Enqueue calls on the same goroutine is preserved.
func (s *Sender) Enqueue(framed []byte) {
	s.mu.Lock()
	s.buf = append(s.buf, framed...)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// EnqueueMessage frames typ/payload and enqueues it in one call.
func (s *Sender) EnqueueMessage(typ wire.MsgType, payload []byte) {
	s.Enqueue(frameBytes(typ, payload))
}

func frameBytes(typ wire.MsgType, payload []byte) []byte {
	var sink sliceWriter
	_ = wire.WriteFrame(&sink, typ, payload)
	return sink.buf
}

type sliceWriter struct{ buf []byte }

func (s *sliceWriter) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}

// run is the single writer goroutine: swap the buffer under the lock, write
// the swapped copy without holding the lock, repeat until told to die.
func (s *Sender) run() {
	defer close(s.done)
	for {
		select {
		case <-s.die:
			s.flush()
			s.writeGoodbye()
			return
		case <-s.wake:
			s.flush()
		}
	}
}

func (s *Sender) flush() {
	s.mu.Lock()
	out := s.buf
	s.buf = nil
	s.mu.Unlock()
	if len(out) == 0 {
		return
	}
	if _, err := s.w.Write(out); err != nil {
		if s.logger != nil {
			s.logger.Warn("session: sender write failed", zap.Error(err))
		}
	}
}

func (s *Sender) writeGoodbye() {
	framed := frameBytes(wire.MsgCyberspaceGoodbye, nil)
	if _, err := s.w.Write(framed); err != nil && s.logger != nil {
		s.logger.Warn("session: goodbye write failed", zap.Error(err))
	}
}

// Shutdown signals the writer to flush, send CyberspaceGoodbye, and stop,
// then waits up to timeout for it to finish (spec §4.B).
func (s *Sender) Shutdown(timeout time.Duration) {
	s.dieOnce.Do(func() { close(s.die) })
	select {
	case <-s.done:
	case <-time.After(timeout):
	}
}
