package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteQueueFIFOAcrossWrap(t *testing.T) {
	q := NewByteQueue(64)

	first := make([]byte, 48)
	for i := range first {
		first[i] = byte(i)
	}
	q.Write(first)

	out := make([]byte, 40)
	require.Equal(t, 40, q.Read(out))
	assert.Equal(t, first[:40], out)

	// Tail wraps past the end of the backing array.
	second := make([]byte, 50)
	for i := range second {
		second[i] = byte(100 + i)
	}
	q.Write(second)
	assert.Equal(t, 58, q.Len())

	rest := make([]byte, 58)
	require.Equal(t, 58, q.Read(rest))
	assert.Equal(t, append(append([]byte{}, first[40:]...), second...), rest)
	assert.Zero(t, q.Len())
}

func TestByteQueueGrowKeepsOrder(t *testing.T) {
	q := NewByteQueue(64)
	q.Write(make([]byte, 60))
	q.Discard(50)

	big := make([]byte, 500)
	for i := range big {
		big[i] = byte(i % 251)
	}
	q.Write(big)
	require.Equal(t, 510, q.Len())

	q.Discard(10)
	out := make([]byte, 500)
	require.Equal(t, 500, q.Read(out))
	assert.Equal(t, big, out)
}

func TestByteQueueReadShort(t *testing.T) {
	q := NewByteQueue(0)
	q.Write([]byte{1, 2, 3})

	out := make([]byte, 8)
	assert.Equal(t, 3, q.Read(out))
	assert.Equal(t, []byte{1, 2, 3}, out[:3])
	assert.Equal(t, 0, q.Read(out))
	assert.Equal(t, 0, q.Discard(4))
}

func TestByteQueueWriteZeros(t *testing.T) {
	q := NewByteQueue(64)
	q.Write([]byte{9, 9})
	q.WriteZeros(4)
	q.Write([]byte{7})

	out := make([]byte, 7)
	q.Read(out)
	assert.Equal(t, []byte{9, 9, 0, 0, 0, 0, 7}, out)
}

func TestByteQueueReset(t *testing.T) {
	q := NewByteQueue(64)
	q.Write([]byte{1, 2, 3})
	q.Reset()
	assert.Zero(t, q.Len())
}
