package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultFormat(t *testing.T) {
	f := DefaultFormat()
	assert.Equal(t, 8, f.FrameSize())
	assert.Equal(t, 4, f.ContainerBytes())
	assert.True(t, f.Valid())
	assert.Equal(t, "float32/32 44100Hz 2ch", f.String())
}

func TestFormatValid(t *testing.T) {
	tests := []struct {
		name string
		f    Format
		want bool
	}{
		{"zero", Format{}, false},
		{"pcm16", Format{ContainerBits: 16, ValidBits: 16, Kind: Int, SampleRate: 48000, Channels: 2}, true},
		{"24 in 32", Format{ContainerBits: 32, ValidBits: 24, Kind: Int, SampleRate: 48000, Channels: 2}, true},
		{"valid exceeds container", Format{ContainerBits: 16, ValidBits: 24, Kind: Int, SampleRate: 48000, Channels: 2}, false},
		{"odd container", Format{ContainerBits: 12, ValidBits: 12, Kind: Int, SampleRate: 48000, Channels: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Valid())
		})
	}
}

func TestBufferFlagsMerge(t *testing.T) {
	a := BufferFlags{Silent: true}
	b := BufferFlags{Discontinuity: true}
	m := a.Merge(b)
	assert.True(t, m.Silent)
	assert.True(t, m.Discontinuity)
	assert.False(t, m.TimestampError)
	assert.True(t, m.Any())
	assert.False(t, BufferFlags{}.Any())
}

func TestStableIDIsDeterministic(t *testing.T) {
	a := StableID("Speakers", 2, 48000)
	assert.Equal(t, a, StableID("Speakers", 2, 48000))
	assert.NotEqual(t, a, StableID("Speakers", 2, 44100))
	assert.Len(t, a, 16)
}
