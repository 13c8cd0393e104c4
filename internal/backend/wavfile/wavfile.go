// Package wavfile replays a WAV file as if it were the loopback mix of an
// output device. It paces delivery against the wall clock and loops at the
// end of the file, which makes the tray and CLI usable without audio
// hardware.
package wavfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

// maxCatchUp bounds how much audio one drain delivers after a stall.
const maxCatchUp = time.Second

var ErrEmptyFile = errors.New("wav file contains no audio")

type System struct {
	path    string
	id      string
	samples []float32
	format  audio.Format
	log     zerolog.Logger
}

// New decodes the whole file up front.
func New(path string, log zerolog.Logger) (*System, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid wav file", audio.ErrFormatUnsupported, path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 || len(buf.Data) < buf.Format.NumChannels {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	format := audio.Format{
		ContainerBits: 32,
		ValidBits:     32,
		Kind:          audio.Float,
		SampleRate:    buf.Format.SampleRate,
		Channels:      buf.Format.NumChannels,
	}
	s := &System{
		path:    path,
		id:      audio.StableID(filepath.Base(path), format.Channels, format.SampleRate),
		samples: toFloat32(buf, int(d.BitDepth)),
		format:  format,
		log:     log.With().Str("backend", "wav").Logger(),
	}
	s.log.Debug().
		Str("path", path).
		Str("format", format.String()).
		Int("frames", len(s.samples)/format.Channels).
		Msg("WAV source loaded")
	return s, nil
}

func toFloat32(buf *goaudio.IntBuffer, bitDepth int) []float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << (bitDepth - 1))
	frames := len(buf.Data) / buf.Format.NumChannels
	out := make([]float32, frames*buf.Format.NumChannels)
	for i := range out {
		out[i] = float32(buf.Data[i]) / scale
	}
	return out
}

func (s *System) Name() string { return "wav" }

func (s *System) device() audio.Device {
	return audio.Device{
		ID:         s.id,
		Name:       filepath.Base(s.path),
		SampleRate: s.format.SampleRate,
		State:      "active",
		Default:    true,
	}
}

func (s *System) OutputDevices() ([]audio.Device, error) {
	return []audio.Device{s.device()}, nil
}

func (s *System) DefaultOutputDevice() (*audio.Device, error) {
	d := s.device()
	return &d, nil
}

func (s *System) Endpoint(id string) (audio.Endpoint, error) {
	if id != s.id {
		return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, id)
	}
	return &endpoint{sys: s}, nil
}

// Open replays at the file's own rate and layout; the session reports the
// format it actually delivers.
func (s *System) Open(ep audio.Endpoint, _ audio.Format, periodHint time.Duration) (audio.Session, error) {
	if _, ok := ep.(*endpoint); !ok {
		return nil, fmt.Errorf("wav: foreign endpoint %T", ep)
	}
	if periodHint <= 0 {
		periodHint = 10 * time.Millisecond
	}
	return &session{
		samples: s.samples,
		format:  s.format,
		period:  periodHint,
	}, nil
}

func (s *System) Close() error { return nil }

type endpoint struct {
	sys *System
}

func (e *endpoint) ID() string                       { return e.sys.id }
func (e *endpoint) Name() string                     { return filepath.Base(e.sys.path) }
func (e *endpoint) MixFormat() (audio.Format, error) { return e.sys.format, nil }

func (e *endpoint) IsSupported(f audio.Format) (*audio.Format, error) {
	if f.Equal(e.sys.format) {
		return nil, nil
	}
	mix := e.sys.format
	return &mix, nil
}

type session struct {
	samples []float32
	format  audio.Format
	period  time.Duration

	mu        sync.Mutex
	started   time.Time
	running   bool
	closed    bool
	delivered int64
	pos       int
	scratch   []byte
}

func (s *session) Format() audio.Format { return s.format }

func (s *session) BufferFrames() int {
	return int(s.period.Seconds() * float64(s.format.SampleRate))
}

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSessionClosed
	}
	if !s.running {
		s.running = true
		s.started = time.Now()
		s.delivered = 0
	}
	return nil
}

func (s *session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	return nil
}

// due is the number of frames the wall clock says should have been
// delivered but have not been yet.
func (s *session) due() int64 {
	elapsed := time.Since(s.started)
	return int64(elapsed.Seconds()*float64(s.format.SampleRate)) - s.delivered
}

func (s *session) WaitForData(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return audio.ErrSessionClosed
	}
	if !s.running {
		s.mu.Unlock()
		time.Sleep(timeout)
		return audio.ErrTimeout
	}
	need := int64(s.BufferFrames()) - s.due()
	s.mu.Unlock()

	if need <= 0 {
		return nil
	}
	wait := time.Duration(float64(need) / float64(s.format.SampleRate) * float64(time.Second))
	if wait > timeout {
		time.Sleep(timeout)
		return audio.ErrTimeout
	}
	time.Sleep(wait)
	return nil
}

func (s *session) DrainInto(q *audio.ByteQueue) (audio.BufferFlags, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flags audio.BufferFlags
	if s.closed {
		return flags, audio.ErrSessionClosed
	}
	if !s.running {
		return flags, nil
	}

	n := s.due()
	if n <= 0 {
		return flags, nil
	}
	limit := int64(maxCatchUp.Seconds() * float64(s.format.SampleRate))
	if n > limit {
		s.delivered += n - limit
		n = limit
		flags.Discontinuity = true
	}

	ch := s.format.Channels
	frames := len(s.samples) / ch
	for remaining := int(n); remaining > 0; {
		take := min(remaining, frames-s.pos)
		s.scratch = audio.EncodeFloat32(s.scratch[:0], s.samples[s.pos*ch:(s.pos+take)*ch])
		if _, err := q.Write(s.scratch); err != nil {
			return flags, err
		}
		s.pos += take
		remaining -= take
		if s.pos == frames {
			s.pos = 0
		}
	}
	s.delivered += n
	return flags, nil
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.closed = true
	return nil
}
