// Package portaudio captures loopback audio through PortAudio input devices
// that carry an output mix: PulseAudio/PipeWire monitors, Stereo Mix, or
// virtual drivers such as BlackHole.
package portaudio

import (
	"fmt"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

// pendingLimit caps bytes buffered between drains (about 3 s of stereo float at 48 kHz).
const pendingLimit = 48000 * 8 * 3

type System struct {
	log zerolog.Logger
}

// New initializes PortAudio. Close must be called to terminate it.
func New(log zerolog.Logger) (*System, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &System{log: log.With().Str("backend", "portaudio").Logger()}, nil
}

func (s *System) Name() string { return "portaudio" }

func deviceID(d *pa.DeviceInfo) string {
	return audio.StableID(d.Name, d.MaxInputChannels, int(d.DefaultSampleRate))
}

// loopbackInputs returns input devices that look like loopback sources.
func loopbackInputs() ([]*pa.DeviceInfo, error) {
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	var result []*pa.DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels > 0 && audio.LooksLikeLoopback(d.Name) {
			result = append(result, d)
		}
	}
	return result, nil
}

// defaultInput picks the monitor of the default output device, or the first
// loopback input when no monitor matches.
func defaultInput(inputs []*pa.DeviceInfo) *pa.DeviceInfo {
	if len(inputs) == 0 {
		return nil
	}
	if out, err := pa.DefaultOutputDevice(); err == nil && out != nil {
		for _, d := range inputs {
			if audio.MonitorOf(d.Name, out.Name) {
				return d
			}
		}
	}
	return inputs[0]
}

func (s *System) OutputDevices() ([]audio.Device, error) {
	inputs, err := loopbackInputs()
	if err != nil {
		return nil, err
	}
	def := defaultInput(inputs)

	result := make([]audio.Device, 0, len(inputs))
	for _, d := range inputs {
		result = append(result, audio.Device{
			ID:         deviceID(d),
			Name:       d.Name,
			SampleRate: int(d.DefaultSampleRate),
			State:      "active",
			Default:    d == def,
		})
	}
	return result, nil
}

func (s *System) DefaultOutputDevice() (*audio.Device, error) {
	devices, err := s.OutputDevices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].Default {
			return &devices[i], nil
		}
	}
	return nil, audio.ErrNoDefaultDevice
}

func (s *System) Endpoint(id string) (audio.Endpoint, error) {
	inputs, err := loopbackInputs()
	if err != nil {
		return nil, err
	}
	for _, d := range inputs {
		if deviceID(d) == id {
			return &endpoint{id: id, info: d}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, id)
}

func (s *System) Open(ep audio.Endpoint, f audio.Format, periodHint time.Duration) (audio.Session, error) {
	e, ok := ep.(*endpoint)
	if !ok {
		return nil, fmt.Errorf("portaudio: foreign endpoint %T", ep)
	}

	// PortAudio delivers float32 only in this configuration; channel count
	// and rate fall back to the device's own when the request is rejected.
	actual := f
	actual.Kind, actual.ContainerBits, actual.ValidBits = audio.Float, 32, 32
	if closest, err := e.IsSupported(actual); err != nil || closest != nil {
		mix, _ := e.MixFormat()
		s.log.Debug().Str("requested", f.String()).Str("using", mix.String()).Msg("Falling back to device format")
		actual = mix
	}

	framesPerBuffer := pa.FramesPerBufferUnspecified
	if periodHint > 0 {
		framesPerBuffer = int(periodHint.Seconds() * float64(actual.SampleRate))
	}

	sess := &session{
		format: actual,
		frames: framesPerBuffer,
		buf:    audio.NewCallbackBuffer(pendingLimit),
	}
	stream, err := pa.OpenStream(e.params(actual, framesPerBuffer), sess.callback)
	if err != nil {
		sess.buf.Close()
		return nil, &audio.DeviceError{Op: "open", DeviceID: e.id, Err: fmt.Errorf("%w: %v", audio.ErrDeviceActivation, err)}
	}
	sess.stream = stream
	return sess, nil
}

func (s *System) Close() error {
	return pa.Terminate()
}

type endpoint struct {
	id   string
	info *pa.DeviceInfo
}

func (e *endpoint) ID() string   { return e.id }
func (e *endpoint) Name() string { return e.info.Name }

func (e *endpoint) MixFormat() (audio.Format, error) {
	return audio.Format{
		ContainerBits: 32,
		ValidBits:     32,
		Kind:          audio.Float,
		SampleRate:    int(e.info.DefaultSampleRate),
		Channels:      min(e.info.MaxInputChannels, 2),
	}, nil
}

func (e *endpoint) params(f audio.Format, framesPerBuffer int) pa.StreamParameters {
	return pa.StreamParameters{
		Input: pa.StreamDeviceParameters{
			Device:   e.info,
			Channels: f.Channels,
			Latency:  e.info.DefaultLowInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: framesPerBuffer,
	}
}

func (e *endpoint) IsSupported(f audio.Format) (*audio.Format, error) {
	mix, _ := e.MixFormat()
	if f.Kind != audio.Float || f.ContainerBits != 32 || f.Channels > e.info.MaxInputChannels {
		return &mix, nil
	}
	if err := pa.IsFormatSupported(e.params(f, pa.FramesPerBufferUnspecified), make([]float32, f.Channels)); err != nil {
		return &mix, nil
	}
	return nil, nil
}

type session struct {
	format audio.Format
	frames int
	buf    *audio.CallbackBuffer

	mu      sync.Mutex
	stream  *pa.Stream
	started bool
	closed  bool
}

func (s *session) callback(in []float32, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
	s.buf.PushFloat32(in, audio.BufferFlags{Discontinuity: flags&pa.InputOverflow != 0})
}

func (s *session) Format() audio.Format { return s.format }
func (s *session) BufferFrames() int    { return s.frames }

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSessionClosed
	}
	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("failed to start audio stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.started = false
	return s.stream.Stop()
}

func (s *session) WaitForData(timeout time.Duration) error {
	return s.buf.Wait(timeout)
}

func (s *session) DrainInto(q *audio.ByteQueue) (audio.BufferFlags, error) {
	return s.buf.DrainInto(q)
}

func (s *session) Close() error {
	if err := s.Stop(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.buf.Close()
	return s.stream.Close()
}
