package audio

import "fmt"

// SampleKind is the numeric representation of a PCM sample.
type SampleKind int

const (
	Float SampleKind = iota
	Int
)

func (k SampleKind) String() string {
	switch k {
	case Float:
		return "float"
	case Int:
		return "int"
	default:
		return fmt.Sprintf("SampleKind(%d)", int(k))
	}
}

// Format describes an interleaved PCM stream. It is fixed once a session is open.
type Format struct {
	ContainerBits int
	ValidBits     int
	Kind          SampleKind
	SampleRate    int
	Channels      int
}

// DefaultFormat is the format requested from loopback endpoints:
// 32-bit float, stereo, 44.1 kHz.
func DefaultFormat() Format {
	return Format{
		ContainerBits: 32,
		ValidBits:     32,
		Kind:          Float,
		SampleRate:    44100,
		Channels:      2,
	}
}

// ContainerBytes returns the size of one channel sample in bytes.
func (f Format) ContainerBytes() int {
	return f.ContainerBits / 8
}

// FrameSize returns the size of one interleaved frame in bytes.
func (f Format) FrameSize() int {
	return f.Channels * f.ContainerBytes()
}

// Valid reports whether the format can describe a real stream.
func (f Format) Valid() bool {
	return f.Channels > 0 && f.SampleRate > 0 && f.ContainerBits > 0 &&
		f.ContainerBits%8 == 0 && f.ValidBits > 0 && f.ValidBits <= f.ContainerBits
}

func (f Format) Equal(o Format) bool {
	return f == o
}

func (f Format) String() string {
	return fmt.Sprintf("%s%d/%d %dHz %dch", f.Kind, f.ContainerBits, f.ValidBits, f.SampleRate, f.Channels)
}

// BufferFlags carries the per-packet status reported by a capture buffer.
type BufferFlags struct {
	Discontinuity  bool
	Silent         bool
	TimestampError bool
}

// Any reports whether any flag is set.
func (b BufferFlags) Any() bool {
	return b.Discontinuity || b.Silent || b.TimestampError
}

// Merge ORs the flags of another packet into b.
func (b BufferFlags) Merge(o BufferFlags) BufferFlags {
	return BufferFlags{
		Discontinuity:  b.Discontinuity || o.Discontinuity,
		Silent:         b.Silent || o.Silent,
		TimestampError: b.TimestampError || o.TimestampError,
	}
}
