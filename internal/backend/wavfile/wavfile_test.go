package wavfile

import (
	"math"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/capture"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRate = 44100

// writeTone writes a 16-bit stereo file with a sine on the left channel and
// silence on the right.
func writeTone(t *testing.T, freq float64, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	frames := int(seconds * testRate)
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = int(16000 * math.Sin(2*math.Pi*freq*float64(i)/testRate))
	}

	enc := wav.NewEncoder(f, testRate, 16, 2, 1)
	require.NoError(t, enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 2, SampleRate: testRate},
		Data:           data,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
	return path
}

func TestNewListsSingleDefaultDevice(t *testing.T) {
	sys, err := New(writeTone(t, 1000, 0.1), zerolog.Nop())
	require.NoError(t, err)

	devices, err := sys.OutputDevices()
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "tone.wav", devices[0].Name)
	assert.Equal(t, testRate, devices[0].SampleRate)
	assert.True(t, devices[0].Default)

	def, err := sys.DefaultOutputDevice()
	require.NoError(t, err)
	assert.Equal(t, devices[0].ID, def.ID)

	ep, err := sys.Endpoint(def.ID)
	require.NoError(t, err)
	mix, err := ep.MixFormat()
	require.NoError(t, err)
	assert.Equal(t, "float32/32 44100Hz 2ch", mix.String())

	_, err = sys.Endpoint("nope")
	assert.ErrorIs(t, err, audio.ErrDeviceNotFound)
}

func TestNewRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	require.NoError(t, os.WriteFile(path, []byte("definitely not riff"), 0o644))

	_, err := New(path, zerolog.Nop())
	assert.ErrorIs(t, err, audio.ErrFormatUnsupported)

	_, err = New(filepath.Join(t.TempDir(), "missing.wav"), zerolog.Nop())
	assert.Error(t, err)
}

func TestIsSupportedOffersFileFormat(t *testing.T) {
	sys, err := New(writeTone(t, 1000, 0.1), zerolog.Nop())
	require.NoError(t, err)
	ep, err := sys.Endpoint(sys.id)
	require.NoError(t, err)

	closest, err := ep.IsSupported(sys.format)
	require.NoError(t, err)
	assert.Nil(t, closest)

	want := audio.DefaultFormat()
	want.SampleRate = 48000
	closest, err = ep.IsSupported(want)
	require.NoError(t, err)
	require.NotNil(t, closest)
	assert.Equal(t, testRate, closest.SampleRate)
}

func TestSessionPacesAndLoops(t *testing.T) {
	sys, err := New(writeTone(t, 1000, 0.01), zerolog.Nop())
	require.NoError(t, err)
	ep, err := sys.Endpoint(sys.id)
	require.NoError(t, err)

	sess, err := sys.Open(ep, sys.format, 5*time.Millisecond)
	require.NoError(t, err)
	defer sess.Close()

	q := audio.NewByteQueue(1024)
	assert.ErrorIs(t, sess.WaitForData(time.Millisecond), audio.ErrTimeout, "not started")

	require.NoError(t, sess.Start())
	deadline := time.Now().Add(time.Second)
	for time.Since(deadline) < 0 && q.Len() < 8*testRate/20 {
		_ = sess.WaitForData(20 * time.Millisecond)
		_, err := sess.DrainInto(q)
		require.NoError(t, err)
	}
	// 50 ms of audio spans several loops of the 10 ms file.
	assert.GreaterOrEqual(t, q.Len(), 8*testRate/20)
	assert.Zero(t, q.Len()%8, "whole frames only")

	require.NoError(t, sess.Close())
	_, err = sess.DrainInto(q)
	assert.ErrorIs(t, err, audio.ErrSessionClosed)
}

func TestReplayThroughCaptureLoop(t *testing.T) {
	sys, err := New(writeTone(t, 1000, 0.5), zerolog.Nop())
	require.NoError(t, err)

	loop := capture.NewLoop(capture.Config{
		System:     sys,
		ChunkSize:  2048,
		PeriodHint: 10 * time.Millisecond,
		Logger:     zerolog.Nop(),
	})

	var running atomic.Bool
	running.Store(true)
	out := make(chan []float32, 10)
	done := make(chan struct{})
	result := make(chan error, 1)
	go func() { result <- loop.Run(running.Load, out, done) }()

	var chunk []float32
	select {
	case chunk = <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("no chunk from wav replay")
	}
	running.Store(false)
	close(done)
	require.NoError(t, <-result)

	require.Len(t, chunk, 2048)
	banded := spectrum.Analyze(chunk, 64, 2048)
	peak, _ := spectrum.Peak(banded)
	assert.Equal(t, 2, peak)
}
