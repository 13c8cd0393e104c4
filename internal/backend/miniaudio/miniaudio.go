// Package miniaudio captures output audio through malgo. On Windows it uses
// miniaudio's WASAPI loopback device type against render endpoints; elsewhere
// it records from capture devices that look like loopback sources.
package miniaudio

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

const pendingLimit = 48000 * 8 * 3

type System struct {
	ctx *malgo.AllocatedContext
	log zerolog.Logger
}

// New initializes a miniaudio context with automatic backend selection.
func New(log zerolog.Logger) (*System, error) {
	l := log.With().Str("backend", "malgo").Logger()
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		l.Debug().Msg(strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init malgo context: %w", err)
	}
	return &System{ctx: ctx, log: l}, nil
}

func (s *System) Name() string { return "malgo" }

// enumKind is the device list that holds loopback candidates.
func enumKind() malgo.DeviceType {
	if runtime.GOOS == "windows" {
		return malgo.Playback
	}
	return malgo.Capture
}

// streamKind is the device type opened for capture.
func streamKind() malgo.DeviceType {
	if runtime.GOOS == "windows" {
		return malgo.Loopback
	}
	return malgo.Capture
}

func (s *System) candidates() ([]malgo.DeviceInfo, error) {
	infos, err := s.ctx.Devices(enumKind())
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	if enumKind() == malgo.Playback {
		return infos, nil
	}
	var result []malgo.DeviceInfo
	for _, info := range infos {
		if audio.LooksLikeLoopback(info.Name()) {
			result = append(result, info)
		}
	}
	return result, nil
}

func (s *System) describe(info malgo.DeviceInfo, def bool) audio.Device {
	d := audio.Device{
		ID:      info.ID.String(),
		Name:    info.Name(),
		State:   "active",
		Default: def,
	}
	if full, err := s.ctx.DeviceInfo(enumKind(), info.ID, malgo.Shared); err == nil && full.FormatCount > 0 {
		d.SampleRate = int(full.Formats[0].SampleRate)
	}
	return d
}

func (s *System) OutputDevices() ([]audio.Device, error) {
	infos, err := s.candidates()
	if err != nil {
		return nil, err
	}
	def := defaultIndex(infos)
	result := make([]audio.Device, 0, len(infos))
	for i, info := range infos {
		result = append(result, s.describe(info, i == def))
	}
	return result, nil
}

// defaultIndex prefers the device miniaudio flags as default, then the
// first candidate.
func defaultIndex(infos []malgo.DeviceInfo) int {
	if len(infos) == 0 {
		return -1
	}
	for i, info := range infos {
		if info.IsDefault != 0 {
			return i
		}
	}
	return 0
}

func (s *System) DefaultOutputDevice() (*audio.Device, error) {
	infos, err := s.candidates()
	if err != nil {
		return nil, err
	}
	i := defaultIndex(infos)
	if i < 0 {
		return nil, audio.ErrNoDefaultDevice
	}
	d := s.describe(infos[i], true)
	return &d, nil
}

func (s *System) Endpoint(id string) (audio.Endpoint, error) {
	infos, err := s.candidates()
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.ID.String() == id {
			return &endpoint{sys: s, info: info}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, id)
}

func (s *System) Open(ep audio.Endpoint, f audio.Format, periodHint time.Duration) (audio.Session, error) {
	e, ok := ep.(*endpoint)
	if !ok {
		return nil, fmt.Errorf("malgo: foreign endpoint %T", ep)
	}

	// miniaudio converts to whatever the stream asks for; only float32 is
	// requested so chunk extraction can read samples directly.
	actual := f
	actual.Kind, actual.ContainerBits, actual.ValidBits = audio.Float, 32, 32

	cfg := malgo.DefaultDeviceConfig(streamKind())
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(actual.Channels)
	cfg.Capture.DeviceID = e.info.ID.Pointer()
	cfg.SampleRate = uint32(actual.SampleRate)
	if periodHint > 0 {
		cfg.PeriodSizeInMilliseconds = uint32(periodHint.Milliseconds())
	}

	sess := &session{
		format: actual,
		frames: int(periodHint.Seconds() * float64(actual.SampleRate)),
		buf:    audio.NewCallbackBuffer(pendingLimit),
		log:    s.log,
	}
	dev, err := malgo.InitDevice(s.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, in []byte, _ uint32) {
			sess.buf.Push(in, audio.BufferFlags{})
		},
		Stop: sess.onStop,
	})
	if err != nil {
		sess.buf.Close()
		return nil, &audio.DeviceError{Op: "open", DeviceID: e.ID(), Err: fmt.Errorf("%w: %v", audio.ErrDeviceActivation, err)}
	}
	sess.dev = dev
	return sess, nil
}

func (s *System) Close() error {
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Uninit()
	s.ctx.Free()
	s.ctx = nil
	return err
}

type endpoint struct {
	sys  *System
	info malgo.DeviceInfo
}

func (e *endpoint) ID() string   { return e.info.ID.String() }
func (e *endpoint) Name() string { return e.info.Name() }

func (e *endpoint) MixFormat() (audio.Format, error) {
	f := audio.DefaultFormat()
	full, err := e.sys.ctx.DeviceInfo(enumKind(), e.info.ID, malgo.Shared)
	if err != nil {
		return f, &audio.DeviceError{Op: "mix format", DeviceID: e.ID(), Err: err}
	}
	if full.FormatCount > 0 {
		native := full.Formats[0]
		if native.SampleRate > 0 {
			f.SampleRate = int(native.SampleRate)
		}
		if native.Channels > 0 {
			f.Channels = int(native.Channels)
		}
	}
	return f, nil
}

// IsSupported accepts every format; miniaudio converts internally.
func (e *endpoint) IsSupported(audio.Format) (*audio.Format, error) {
	return nil, nil
}

type session struct {
	format audio.Format
	frames int
	buf    *audio.CallbackBuffer
	dev    *malgo.Device
	log    zerolog.Logger

	mu       sync.Mutex
	stopping atomic.Bool
	closed   bool
}

// onStop runs on miniaudio's thread. An unrequested stop means the device
// went away, so waiters are released and the next drain fails.
func (s *session) onStop() {
	if s.stopping.Load() {
		return
	}
	s.log.Warn().Msg("Device stopped unexpectedly")
	s.buf.Close()
}

func (s *session) Format() audio.Format { return s.format }
func (s *session) BufferFrames() int    { return s.frames }

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSessionClosed
	}
	s.stopping.Store(false)
	if err := s.dev.Start(); err != nil {
		return fmt.Errorf("start device: %w", err)
	}
	return nil
}

func (s *session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.dev.IsStarted() {
		return nil
	}
	s.stopping.Store(true)
	return s.dev.Stop()
}

func (s *session) WaitForData(timeout time.Duration) error {
	return s.buf.Wait(timeout)
}

func (s *session) DrainInto(q *audio.ByteQueue) (audio.BufferFlags, error) {
	return s.buf.DrainInto(q)
}

func (s *session) Close() error {
	err := s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.closed = true
	s.stopping.Store(true)
	s.dev.Uninit()
	s.buf.Close()
	return err
}
