package audio

import "sync"

// Ring is a fixed-capacity FIFO buffer of mono float32 samples connecting the
// audio hardware callback (producer) to the capture loop (consumer).
//
// Push never blocks: when the buffer is full, excess samples are dropped and
// counted. The device callback must return quickly, so a gap in the stream is
// preferred over back-pressuring the driver or letting latency build up.
// Consumers always read copies; no sample slice is shared across goroutines.
type Ring struct {
	mu      sync.Mutex
	buf     []float32
	head    int // index of the oldest buffered sample
	size    int // number of buffered samples
	dropped uint64
}

// NewRing creates a ring buffer holding at most capacity samples.
// Capacity must be positive.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Push appends samples to the buffer and returns how many were dropped
// because the buffer was full. Samples are copied; the caller may reuse the
// slice immediately.
func (r *Ring) Push(samples []float32) (dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	free := len(r.buf) - r.size
	n := len(samples)
	if n > free {
		dropped = n - free
		n = free
	}
	for i := range n {
		r.buf[(r.head+r.size+i)%len(r.buf)] = samples[i]
	}
	r.size += n
	r.dropped += uint64(dropped)
	return dropped
}

// Drain removes and returns every buffered sample. It never blocks and
// returns nil when the buffer is empty.
func (r *Ring) Drain() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}
	out := make([]float32, r.size)
	for i := range r.size {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = 0
	r.size = 0
	return out
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the buffer capacity in samples.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped returns the total number of samples discarded due to overflow since
// the ring was created.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
