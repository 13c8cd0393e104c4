package audio

import (
	"sync"
	"time"
)

// CallbackBuffer bridges callback-driven backends (miniaudio, PortAudio,
// file replay) to the wait/drain model of Session. The driver callback
// pushes bytes from its own thread; the capture goroutine waits on the
// signal and drains.
type CallbackBuffer struct {
	mu       sync.Mutex
	pending  []byte
	flags    BufferFlags
	limit    int
	closed   bool
	signal   chan struct{}
	closedCh chan struct{}
}

// NewCallbackBuffer returns a buffer that holds at most limit bytes between
// drains. Older bytes are dropped past the limit and the next drain reports
// a discontinuity.
func NewCallbackBuffer(limit int) *CallbackBuffer {
	return &CallbackBuffer{
		limit:    limit,
		signal:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
}

// Push copies b into the buffer and wakes a waiter. Safe to call from a
// driver thread.
func (c *CallbackBuffer) Push(b []byte, flags BufferFlags) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = append(c.pending, b...)
	c.flags = c.flags.Merge(flags)
	if c.limit > 0 && len(c.pending) > c.limit {
		drop := len(c.pending) - c.limit
		c.pending = append(c.pending[:0], c.pending[drop:]...)
		c.flags.Discontinuity = true
	}
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
}

// PushFloat32 encodes interleaved float samples and pushes them.
func (c *CallbackBuffer) PushFloat32(samples []float32, flags BufferFlags) {
	c.Push(EncodeFloat32(make([]byte, 0, len(samples)*4), samples), flags)
}

// Wait blocks until data is pushed, the buffer is closed or timeout elapses.
func (c *CallbackBuffer) Wait(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.signal:
		return nil
	case <-c.closedCh:
		return ErrSessionClosed
	case <-timer.C:
		return ErrTimeout
	}
}

// DrainInto moves all pending bytes into q and returns the accumulated flags.
func (c *CallbackBuffer) DrainInto(q *ByteQueue) (BufferFlags, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return BufferFlags{}, ErrSessionClosed
	}
	if _, err := q.Write(c.pending); err != nil {
		return BufferFlags{}, err
	}
	flags := c.flags
	c.pending = c.pending[:0]
	c.flags = BufferFlags{}
	return flags, nil
}

// Close wakes any waiter and rejects further pushes.
func (c *CallbackBuffer) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pending = nil
	close(c.closedCh)
}
