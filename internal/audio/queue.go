package audio

// ByteQueue is a growable FIFO ring of captured bytes. It is owned by the
// capture goroutine and is not safe for concurrent use.
type ByteQueue struct {
	buf  []byte
	head int
	n    int
}

// NewByteQueue returns a queue with room for capacity bytes before growing.
func NewByteQueue(capacity int) *ByteQueue {
	if capacity < 64 {
		capacity = 64
	}
	return &ByteQueue{buf: make([]byte, capacity)}
}

// Len returns the number of queued bytes.
func (q *ByteQueue) Len() int {
	return q.n
}

// Write appends p to the tail of the queue.
func (q *ByteQueue) Write(p []byte) (int, error) {
	q.grow(len(p))
	tail := (q.head + q.n) % len(q.buf)
	c := copy(q.buf[tail:], p)
	if c < len(p) {
		copy(q.buf, p[c:])
	}
	q.n += len(p)
	return len(p), nil
}

// WriteZeros appends n zero bytes, used for packets flagged silent.
func (q *ByteQueue) WriteZeros(n int) {
	q.grow(n)
	tail := (q.head + q.n) % len(q.buf)
	for i := 0; i < n; i++ {
		q.buf[(tail+i)%len(q.buf)] = 0
	}
	q.n += n
}

// Read moves up to len(p) bytes from the head of the queue into p.
func (q *ByteQueue) Read(p []byte) int {
	want := min(len(p), q.n)
	c := copy(p[:want], q.buf[q.head:min(q.head+want, len(q.buf))])
	if c < want {
		copy(p[c:want], q.buf[:want-c])
	}
	q.advance(want)
	return want
}

// Discard drops up to n bytes from the head of the queue.
func (q *ByteQueue) Discard(n int) int {
	n = min(n, q.n)
	q.advance(n)
	return n
}

// Reset empties the queue without releasing its storage.
func (q *ByteQueue) Reset() {
	q.head, q.n = 0, 0
}

func (q *ByteQueue) advance(n int) {
	q.head = (q.head + n) % len(q.buf)
	q.n -= n
	if q.n == 0 {
		q.head = 0
	}
}

func (q *ByteQueue) grow(extra int) {
	if q.n+extra <= len(q.buf) {
		return
	}
	size := len(q.buf) * 2
	for size < q.n+extra {
		size *= 2
	}
	buf := make([]byte, size)
	c := copy(buf, q.buf[q.head:min(q.head+q.n, len(q.buf))])
	if c < q.n {
		copy(buf[c:], q.buf[:q.n-c])
	}
	q.buf = buf
	q.head = 0
}
