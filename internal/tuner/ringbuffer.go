package tuner

import "sync"

// DefaultRingCapacity is the stream buffer size used when none is configured.
const DefaultRingCapacity = 2 * 1024 * 1024

// RingBuffer is a fixed-capacity circular byte store. It decouples the
// hardware poll loop (producer) from the decoder's pull thread (consumer):
// both sides go through one mutex and neither ever blocks waiting for the
// other. When the producer outruns the consumer, Write keeps the bytes
// already buffered and drops the tail of the new payload.
//
// One extra internal slot distinguishes full from empty, so the usable byte
// count equals the requested capacity.
type RingBuffer struct {
	mu       sync.Mutex
	buf      []byte
	writePos int
	readPos  int
}

// NewRingBuffer returns a ring buffer holding up to capacity bytes.
// A non-positive capacity falls back to DefaultRingCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &RingBuffer{buf: make([]byte, capacity+1)}
}

// Write stores as much of p as fits and returns the number of bytes stored.
// It never blocks. If free space is short, exactly the first Free() bytes of
// p are kept and the remainder is dropped; the caller is responsible for
// counting the loss.
func (r *RingBuffer) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if free := r.freeLocked(); n > free {
		n = free
	}
	if n == 0 {
		return 0
	}

	first := len(r.buf) - r.writePos
	if first > n {
		first = n
	}
	copy(r.buf[r.writePos:], p[:first])
	copy(r.buf, p[first:n])
	r.writePos = (r.writePos + n) % len(r.buf)
	return n
}

// Read copies up to len(p) buffered bytes into p in FIFO order, removes them,
// and returns the count. It returns 0 when the buffer is empty; for a live
// stream that means "no data yet", never end-of-stream.
func (r *RingBuffer) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(p)
	if avail := r.availableLocked(); n > avail {
		n = avail
	}
	if n == 0 {
		return 0
	}

	first := len(r.buf) - r.readPos
	if first > n {
		first = n
	}
	copy(p, r.buf[r.readPos:r.readPos+first])
	copy(p[first:n], r.buf)
	r.readPos = (r.readPos + n) % len(r.buf)
	return n
}

// Available returns the number of buffered bytes, 0..Capacity.
func (r *RingBuffer) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.availableLocked()
}

// Free returns the number of bytes Write can currently accept.
func (r *RingBuffer) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.freeLocked()
}

// Capacity returns the fixed usable capacity in bytes.
func (r *RingBuffer) Capacity() int {
	return len(r.buf) - 1
}

// Reset discards all buffered bytes.
func (r *RingBuffer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writePos = 0
	r.readPos = 0
}

func (r *RingBuffer) availableLocked() int {
	return (r.writePos - r.readPos + len(r.buf)) % len(r.buf)
}

func (r *RingBuffer) freeLocked() int {
	return len(r.buf) - 1 - r.availableLocked()
}
