package executor

import (
	"fmt"
	"sync"
)

// Buffer is the bounded, ordered byte queue between a PTY reader and its
// consumer. Writes append; when the cap is exceeded the OLDEST unconsumed
// bytes are dropped and a truncation marker is spliced in at the drop point
// on the next read. Bytes are never reordered or silently corrupted, only
// elided with a recorded marker.
type Buffer struct {
	mu      sync.Mutex
	cap     int
	data    []byte
	dropped int
	notify  chan struct{}
	closed  bool
}

// DefaultBufferCap is the per-task backpressure cap.
const DefaultBufferCap = 256 * 1024

// NewBuffer creates a buffer with the given cap (DefaultBufferCap if <= 0).
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &Buffer{
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// Write implements io.Writer for the PTY reader side.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, fmt.Errorf("write to closed buffer")
	}

	b.data = append(b.data, p...)
	if over := len(b.data) - b.cap; over > 0 {
		b.data = b.data[over:]
		b.dropped += over
	}

	b.wake()
	return len(p), nil
}

// Next drains all currently buffered bytes. When bytes were dropped since
// the previous drain, the returned chunk starts with a truncation marker.
// ok is false once the buffer is closed and fully drained.
func (b *Buffer) Next() (chunk []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 && b.dropped == 0 {
		return nil, !b.closed
	}

	if b.dropped > 0 {
		chunk = fmt.Appendf(chunk, "\n[... %d bytes dropped ...]\n", b.dropped)
		b.dropped = 0
	}
	chunk = append(chunk, b.data...)
	b.data = nil
	return chunk, true
}

// Ready returns a channel that receives a signal when new bytes arrive or
// the buffer closes.
func (b *Buffer) Ready() <-chan struct{} {
	return b.notify
}

// Close marks the producer side finished. Pending bytes remain readable.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	b.wake()
}

// wake signals the consumer without blocking. Caller holds b.mu.
func (b *Buffer) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
