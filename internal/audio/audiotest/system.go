// Package audiotest provides a synthetic audio.System for exercising the
// capture pipeline without audio hardware.
package audiotest

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/petems/spectrum-tray/internal/audio"
)

// Generator returns the sample value for a frame index and channel.
type Generator func(frame, channel int) float32

// Sine returns a generator producing a sine of freq Hz at amplitude amp on
// channel 0 and silence on every other channel.
func Sine(sampleRate int, freq, amp float64) Generator {
	return func(frame, channel int) float32 {
		if channel != 0 {
			return 0
		}
		t := float64(frame) / float64(sampleRate)
		return float32(amp * math.Sin(2*math.Pi*freq*t))
	}
}

// Ramp returns a generator where channel 0 carries the frame index scaled by
// step and channel c carries the negated value, which makes down-mix
// behaviour observable.
func Ramp(step float32) Generator {
	return func(frame, channel int) float32 {
		v := float32(frame) * step
		if channel == 0 {
			return v
		}
		return -v
	}
}

// Endpoint is a synthetic output endpoint.
type Endpoint struct {
	DeviceID   string
	DeviceName string
	Mix        audio.Format
	// Accept decides IsSupported. Nil accepts every valid format.
	Accept func(audio.Format) (*audio.Format, error)
}

func (e *Endpoint) ID() string   { return e.DeviceID }
func (e *Endpoint) Name() string { return e.DeviceName }

func (e *Endpoint) MixFormat() (audio.Format, error) {
	return e.Mix, nil
}

func (e *Endpoint) IsSupported(f audio.Format) (*audio.Format, error) {
	if e.Accept != nil {
		return e.Accept(f)
	}
	if !f.Valid() {
		return nil, errors.New("invalid format")
	}
	return nil, nil
}

// System is an in-memory audio.System.
type System struct {
	// Generator fills every opened session. Defaults to silence.
	Generator Generator
	// FramesPerPeriod is delivered per signalled period.
	FramesPerPeriod int
	// Period is the simulated device period.
	Period time.Duration
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// FailDrainAfter makes DrainInto fail after that many successful drains. Zero disables.
	FailDrainAfter int

	mu        sync.Mutex
	endpoints []*Endpoint
	defaultID string
	opens     int
	active    int
	closed    bool
}

// NewSystem returns a system with the given endpoints; the first one is the default.
func NewSystem(endpoints ...*Endpoint) *System {
	s := &System{
		FramesPerPeriod: 441,
		Period:          time.Millisecond,
		endpoints:       endpoints,
	}
	if len(endpoints) > 0 {
		s.defaultID = endpoints[0].DeviceID
	}
	return s
}

// NewDefaultSystem returns a system with two stereo float endpoints,
// "speakers" (default) and "headphones".
func NewDefaultSystem(gen Generator) *System {
	s := NewSystem(
		&Endpoint{DeviceID: "speakers", DeviceName: "Speakers", Mix: audio.DefaultFormat()},
		&Endpoint{DeviceID: "headphones", DeviceName: "Headphones", Mix: audio.DefaultFormat()},
	)
	s.Generator = gen
	return s
}

// SetDefault changes the default endpoint. An empty id means none.
func (s *System) SetDefault(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaultID = id
}

// Opens returns how many sessions were opened.
func (s *System) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Active returns how many sessions are open and not yet closed.
func (s *System) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *System) Name() string { return "synthetic" }

func (s *System) OutputDevices() ([]audio.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]audio.Device, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		devices = append(devices, audio.Device{
			ID:         ep.DeviceID,
			Name:       ep.DeviceName,
			SampleRate: ep.Mix.SampleRate,
			State:      "active",
			Default:    ep.DeviceID == s.defaultID,
		})
	}
	return devices, nil
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
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ep := range s.endpoints {
		if ep.DeviceID == id {
			return ep, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, id)
}

func (s *System) Open(ep audio.Endpoint, f audio.Format, periodHint time.Duration) (audio.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, audio.ErrSessionClosed
	}
	if s.OpenErr != nil {
		return nil, &audio.DeviceError{Op: "open", DeviceID: ep.ID(), Err: s.OpenErr}
	}
	s.opens++
	s.active++

	gen := s.Generator
	if gen == nil {
		gen = func(int, int) float32 { return 0 }
	}
	return &session{
		sys:       s,
		format:    f,
		gen:       gen,
		frames:    s.FramesPerPeriod,
		period:    s.Period,
		failAfter: s.FailDrainAfter,
	}, nil
}

func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *System) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
}

type session struct {
	sys       *System
	format    audio.Format
	gen       Generator
	frames    int
	period    time.Duration
	failAfter int

	started bool
	closed  bool
	ready   int
	frame   int
	drains  int
}

func (s *session) Format() audio.Format { return s.format }
func (s *session) BufferFrames() int    { return s.frames * 4 }

func (s *session) Start() error {
	if s.closed {
		return audio.ErrSessionClosed
	}
	s.started = true
	return nil
}

func (s *session) Stop() error {
	s.started = false
	return nil
}

func (s *session) WaitForData(timeout time.Duration) error {
	if s.closed {
		return audio.ErrSessionClosed
	}
	if !s.started {
		time.Sleep(timeout)
		return audio.ErrTimeout
	}
	time.Sleep(min(s.period, timeout))
	s.ready++
	return nil
}

func (s *session) DrainInto(q *audio.ByteQueue) (audio.BufferFlags, error) {
	if s.closed {
		return audio.BufferFlags{}, audio.ErrSessionClosed
	}
	if s.failAfter > 0 && s.drains >= s.failAfter {
		return audio.BufferFlags{}, &audio.DeviceError{Op: "drain", Err: audio.ErrDeviceActivation}
	}
	s.drains++

	n := s.ready * s.frames
	s.ready = 0
	samples := make([]float32, 0, n*s.format.Channels)
	for i := 0; i < n; i++ {
		for c := 0; c < s.format.Channels; c++ {
			samples = append(samples, s.gen(s.frame, c))
		}
		s.frame++
	}
	_, err := q.Write(audio.EncodeFloat32(nil, samples))
	return audio.BufferFlags{}, err
}

func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.started = false
	s.sys.release()
	return nil
}
