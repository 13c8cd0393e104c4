package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ChunkBytes returns the number of queued bytes needed for one chunk.
func ChunkBytes(f Format, chunkSize int) int {
	return chunkSize * f.FrameSize()
}

// ExtractChunk takes exactly chunkSize frames from q and returns their first
// channel as float samples. The remaining channels of every frame are
// dropped, not averaged. ok is false, and q untouched, when fewer than
// ChunkBytes bytes are queued. dst is reused when it has enough capacity.
func ExtractChunk(q *ByteQueue, f Format, chunkSize int, dst []float32) (chunk []float32, ok bool, err error) {
	if f.Kind != Float || f.ContainerBits != 32 || f.Channels < 1 {
		return nil, false, fmt.Errorf("%w: extractor needs float32 frames, got %s", ErrFormatMismatch, f)
	}
	if chunkSize <= 0 || q.Len() < ChunkBytes(f, chunkSize) {
		return dst, false, nil
	}

	if cap(dst) < chunkSize {
		dst = make([]float32, chunkSize)
	}
	dst = dst[:chunkSize]

	var sample [4]byte
	skip := (f.Channels - 1) * f.ContainerBytes()
	for i := range dst {
		q.Read(sample[:])
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(sample[:]))
		q.Discard(skip)
	}
	return dst, true, nil
}

// EncodeFloat32 appends interleaved float32 samples to b in little-endian
// order. Callback-driven backends use it to feed the byte queue.
func EncodeFloat32(b []byte, samples []float32) []byte {
	for _, s := range samples {
		b = binary.LittleEndian.AppendUint32(b, math.Float32bits(s))
	}
	return b
}
