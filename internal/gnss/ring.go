package gnss

import "sync"

// ring is a fixed-capacity byte FIFO. The producer keeps writing regardless
// of drain speed; once full, incoming bytes are dropped and counted. There
// is deliberately no blocking and no growth.
type ring struct {
	mu   sync.Mutex
	buf  []byte
	head int
	size int

	highWater int
	dropped   uint64
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 16 * 1024
	}
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) Capacity() int {
	return len(r.buf)
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Write appends as much of p as fits; the remainder is dropped.
func (r *ring) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := len(r.buf) - r.size
	n := len(p)
	if n > room {
		r.dropped += uint64(n - room)
		n = room
	}
	for i := 0; i < n; i++ {
		r.buf[(r.head+r.size+i)%len(r.buf)] = p[i]
	}
	r.size += n
	if r.size > r.highWater {
		r.highWater = r.size
	}
}

// Extract removes and returns exactly n bytes from the head, or nil if fewer
// are buffered.
func (r *ring) Extract(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || n > r.size {
		return nil
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return out
}

// HighWaterMark is the largest fill level seen since the last Clear.
func (r *ring) HighWaterMark() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highWater
}

// Dropped is the cumulative count of bytes lost to overflow.
func (r *ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
	r.highWater = 0
}
