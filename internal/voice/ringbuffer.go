package voice

import "sync"

// highWaterMark and retainSamples implement spec §4.N's drop-front
// backpressure policy: once the buffer exceeds ~85ms at 48kHz, pop the
// front until only the most recent 2048 samples remain, preferring
// freshness to continuity. This is a distinct policy from
// internal/util.RingBuffer's overwrite-oldest-on-push semantics -- that
// type drops one item per push past capacity, whereas voice playback needs
// a periodic bulk trim so decode bursts don't thrash on every sample.
const (
	highWaterMark = 4096
	retainSamples = 2048
)

// RingBuffer is the per-avatar float PCM sample backlog feeding the (out of
// scope) audio mixer source.
type RingBuffer struct {
	mu      sync.Mutex
	samples []float32
}

func NewRingBuffer() *RingBuffer {
	return &RingBuffer{samples: make([]float32, 0, highWaterMark)}
}

// Append adds pcm to the buffer, trimming to retainSamples if the result
// exceeds highWaterMark.
func (r *RingBuffer) Append(pcm []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, pcm...)
	if len(r.samples) > highWaterMark {
		drop := len(r.samples) - retainSamples
		r.samples = append(r.samples[:0], r.samples[drop:]...)
	}
}

// Drain removes and returns every buffered sample.
func (r *RingBuffer) Drain() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.samples
	r.samples = make([]float32, 0, highWaterMark)
	return out
}

// Len reports the number of buffered samples.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}
